package identity

import (
	"net"
	"testing"
)

func mustPrefix(t *testing.T, cidr string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", cidr, err)
	}
	return n
}

func TestIPv6AllocateDeterministic(t *testing.T) {
	a := NewIPv6Allocator()
	prefix := mustPrefix(t, "2001:db8:b1d9::/64")

	addr1, err := a.Allocate(prefix, "user-1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	addr2, err := a.Allocate(prefix, "user-1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !addr1.Equal(addr2) {
		t.Fatalf("repeat allocation for the same key changed: %s != %s", addr1, addr2)
	}
	if !prefix.Contains(addr1) {
		t.Fatalf("allocated address %s is outside prefix %s", addr1, prefix)
	}
}

func TestIPv6AllocateUniquePerKey(t *testing.T) {
	a := NewIPv6Allocator()
	prefix := mustPrefix(t, "2001:db8:b1d9::/64")

	addr1, err := a.Allocate(prefix, "user-1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	addr2, err := a.Allocate(prefix, "user-2")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr1.Equal(addr2) {
		t.Fatalf("two distinct keys got the same address: %s", addr1)
	}
}

func TestIPv6AllocateRejectsIPv4Prefix(t *testing.T) {
	a := NewIPv6Allocator()
	_, v4net, _ := net.ParseCIDR("10.0.0.0/24")
	if _, err := a.Allocate(v4net, "user-1"); err == nil {
		t.Fatal("expected an error for an IPv4 prefix")
	}
}

func TestIPv6AllocateRejectsNilPrefix(t *testing.T) {
	a := NewIPv6Allocator()
	if _, err := a.Allocate(nil, "user-1"); err == nil {
		t.Fatal("expected an error for a nil prefix")
	}
}

func TestIPv6ReleaseFreesAddressForReuse(t *testing.T) {
	a := NewIPv6Allocator()
	prefix := mustPrefix(t, "2001:db8:b1d9::/64")

	addr1, _ := a.Allocate(prefix, "user-1")
	a.Release("user-1")
	addr2, err := a.Allocate(prefix, "user-1")
	if err != nil {
		t.Fatalf("Allocate after Release: %v", err)
	}
	if !addr1.Equal(addr2) {
		t.Fatalf("re-allocating the same key after Release gave a different address: %s != %s", addr1, addr2)
	}
}
