// Package bridgedclient implements the Bridged Client: a per-user,
// long-lived IRC session that maps a home-side identity to a virtual IRC
// user and drives the IRC protocol state machine on its behalf, reporting
// lifecycle events to an eventbroker.Broker.
package bridgedclient

import (
	"errors"
	"net"
	"regexp"
	"time"
)

// ServerDescriptor is the immutable, injected description of one IRC
// network a Bridged Client can connect to. One value is shared by every
// Bridged Client connecting to that network.
type ServerDescriptor struct {
	// Domain is the host:port (or bare host, default port assumed by the
	// caller) this descriptor connects to.
	Domain string

	// DefaultPassword is used when a ClientConfig does not carry its own.
	DefaultPassword string

	// NickTemplate renders the desired nick from a home user id and
	// display name when ClientConfig.DesiredNick is empty. "$USERID" and
	// "$DISPLAYNAME" are substituted literally; e.g. "$DISPLAYNAME[m]".
	NickTemplate string

	// UserModes, when non-empty, is set on the session's own nick right
	// after registration, for non-bot sessions only.
	UserModes string

	// IdleTimeoutSeconds arms the idle liveness timer; 0 disables it.
	IdleTimeoutSeconds int

	// MessageExpirySeconds bounds how stale a SendAction may be before it
	// is silently dropped; 0 means no expiry.
	MessageExpirySeconds int

	// IPv6Prefix, when set, is the CIDR the IPv6 Allocator draws this
	// server's virtual source addresses from.
	IPv6Prefix *net.IPNet

	// BindIPv6 controls whether the allocated address (if any) is bound
	// as the local address for the outbound TCP dial.
	BindIPv6 bool

	// Proxy, when set, routes the outbound dial through a SOCKS hop.
	Proxy *ProxyDescriptor

	// MembershipMirror maps a phase name ("initial", ...) to whether
	// home-side membership state drives IRC joins/parts for that phase.
	// When true for "initial", idle disconnection is suppressed.
	MembershipMirror map[string]bool

	// ExcludedChannel reports whether channel must never be tracked by
	// JoinChannel. Nil means nothing is excluded.
	ExcludedChannel func(channel string) bool

	// DynamicAliasPolicy, HardcodedRoomIDs, UserRegex and AliasRegex are
	// carried for completeness but are not consumed by any operation in
	// this package: alias/room mapping is the surrounding bridge's
	// responsibility, not the Bridged Client's.
	DynamicAliasPolicy string
	HardcodedRoomIDs   []string
	UserRegex          *regexp.Regexp
	AliasRegex         *regexp.Regexp
}

// ProxyDescriptor is the TOML-facing shape of an ircconn.Proxy.
type ProxyDescriptor struct {
	Type     string // "socks4", "socks4a", or "socks5"
	Address  string
	Username string
	Password string
}

// ClientConfig is mutable during Connect: the Identity Generator and IPv6
// Allocator fill in Username/RealName/IPv6Address before the TCP dial.
type ClientConfig struct {
	DesiredNick string
	Password    string

	IPv6Address net.IP
	Username    string
	RealName    string
}

// IrcRoom is a resolved join target: a channel on a server.
type IrcRoom struct {
	Server  string
	Channel string
}

// Action is one outbound event SendAction dispatches.
type Action struct {
	Type string // "message", "notice", "emote", "topic"
	Text string
	Ts   time.Time // origin timestamp, compared against server.MessageExpirySeconds
}

// WhoisInfo is the resolved reply to Whois.
type WhoisInfo struct {
	Server string
	Nick   string
	Msg    string
}

// NamesResult is the resolved reply to GetNicks.
type NamesResult struct {
	Server  string
	Channel string
	Nicks   []string
	Names   map[string]string // nick -> prefix string, e.g. "@", "+", ""
}

// GetOperatorsOpts configures GetOperators.
type GetOperatorsOpts struct {
	Key             string
	CacheDurationMs int // 0 means "do not cache"
}

// OperatorsResult is the resolved reply to GetOperators.
type OperatorsResult struct {
	Server        string
	Channel       string
	Nicks         []string
	Names         map[string]string
	OperatorNicks []string
}

// Lifecycle errors: rejected with a sentinel message; callers may retry
// after reconnect.
var (
	ErrNotConnected  = errors.New("bridgedclient: not connected")
	ErrDisconnected  = errors.New("bridgedclient: disconnected")
	ErrKilled        = errors.New("bridgedclient: client killed")
	ErrExcluded      = errors.New("bridgedclient: channel is excluded from tracking")
	ErrUnknownAction = errors.New("bridgedclient: unknown action type")
)

func isChannelName(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '#', '!', '&', '+':
		return true
	}
	return false
}
