package identity

import (
	"fmt"
	"hash/fnv"
	"net"
	"sync"
)

// IPv6Allocator deterministically allocates unique IPv6 source addresses
// within a configured prefix, one per user identity. The same key always
// maps to the same address for the lifetime of the allocator; a collision
// against a different key (extremely unlikely with a /64 or wider prefix,
// but possible with a narrow one) is resolved by probing forward until a
// free address is found.
type IPv6Allocator struct {
	mu        sync.Mutex
	byKey     map[string]net.IP
	byAddress map[string]string // address.String() -> key, for collision checks
}

// NewIPv6Allocator returns an empty allocator.
func NewIPv6Allocator() *IPv6Allocator {
	return &IPv6Allocator{
		byKey:     make(map[string]net.IP),
		byAddress: make(map[string]string),
	}
}

// Allocate returns the IPv6 address assigned to key within prefix,
// allocating one deterministically from a hash of key if this is the
// first request for that key. prefix must be an IPv6 CIDR, e.g.
// "2001:db8:b1d9::/64".
func (a *IPv6Allocator) Allocate(prefix *net.IPNet, key string) (net.IP, error) {
	if prefix == nil {
		return nil, fmt.Errorf("identity: no IPv6 prefix configured")
	}
	if prefix.IP.To4() != nil {
		return nil, fmt.Errorf("identity: prefix %s is not an IPv6 prefix", prefix)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if addr, ok := a.byKey[key]; ok {
		return addr, nil
	}

	ones, bits := prefix.Mask.Size()
	hostBits := bits - ones
	if hostBits <= 0 {
		return nil, fmt.Errorf("identity: prefix %s leaves no host bits to allocate", prefix)
	}

	seed := fnvSeed(key)
	for attempt := uint64(0); attempt < (1 << 20); attempt++ {
		addr := addressFromSeed(prefix, seed+attempt, hostBits)
		addrStr := addr.String()
		if existingKey, used := a.byAddress[addrStr]; used && existingKey != key {
			continue
		}
		a.byKey[key] = addr
		a.byAddress[addrStr] = key
		return addr, nil
	}

	return nil, fmt.Errorf("identity: exhausted collision probes allocating within %s", prefix)
}

// Release frees the address assigned to key, if any, allowing it to be
// reassigned to a future key.
func (a *IPv6Allocator) Release(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if addr, ok := a.byKey[key]; ok {
		delete(a.byAddress, addr.String())
		delete(a.byKey, key)
	}
}

func fnvSeed(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}

// addressFromSeed lays seed's low hostBits bits into prefix's host
// portion, leaving the network bits from prefix untouched.
func addressFromSeed(prefix *net.IPNet, seed uint64, hostBits int) net.IP {
	addr := make(net.IP, len(prefix.IP.To16()))
	copy(addr, prefix.IP.To16())

	// Walk the address from the last byte, filling in host bits from seed
	// until hostBits are consumed or we hit the network portion.
	remaining := hostBits
	for i := len(addr) - 1; i >= 0 && remaining > 0; i-- {
		bitsInByte := 8
		if remaining < 8 {
			bitsInByte = remaining
		}
		mask := byte(0xFF) >> (8 - bitsInByte)
		addr[i] = (addr[i] &^ mask) | (byte(seed) & mask)
		seed >>= uint(bitsInByte)
		remaining -= bitsInByte
	}
	return addr
}
