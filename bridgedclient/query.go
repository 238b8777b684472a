package bridgedclient

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bridgehub/ircbridge/ircconn"
	"github.com/bridgehub/ircbridge/opcache"
)

// namesTimeout bounds GetNicks.
const namesTimeout = 5 * time.Second

type whoisAccum struct {
	hasUser  bool
	userHost string
	realName string
	channels string
	idle     string
}

// Whois issues WHOIS nick and waits for RPL_ENDOFWHOIS (318), accumulating
// whatever of user@host (311), channel list (319) and idle time (317)
// arrived first. Rejects if no 311 (RPL_WHOISUSER) ever arrived.
func (c *Client) Whois(nick string) (WhoisInfo, error) {
	c.mu.Lock()
	conn := c.conn
	dead := c.isDead()
	c.mu.Unlock()
	if dead {
		return WhoisInfo{}, ErrDisconnected
	}
	if conn == nil {
		return WhoisInfo{}, ErrNotConnected
	}

	var mu sync.Mutex
	acc := whoisAccum{}
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	// Every WHOIS numeric is "<client> <nick> ...": Arguments[0] is our
	// own nick (the recipient), Arguments[1] is the nick being queried.
	matchesNick := func(e *ircconn.Event) bool {
		return len(e.Arguments) > 1 && strings.EqualFold(e.Arguments[1], nick)
	}

	id311 := conn.AddCallback("311", func(e *ircconn.Event) {
		if len(e.Arguments) < 5 || !matchesNick(e) {
			return
		}
		mu.Lock()
		acc.hasUser = true
		acc.userHost = fmt.Sprintf("%s@%s", e.Arguments[2], e.Arguments[3])
		acc.realName = e.Message()
		mu.Unlock()
	})
	id319 := conn.AddCallback("319", func(e *ircconn.Event) {
		if !matchesNick(e) {
			return
		}
		mu.Lock()
		acc.channels = e.Message()
		mu.Unlock()
	})
	id317 := conn.AddCallback("317", func(e *ircconn.Event) {
		if len(e.Arguments) < 3 || !matchesNick(e) {
			return
		}
		mu.Lock()
		acc.idle = e.Arguments[2]
		mu.Unlock()
	})
	id318 := conn.AddCallback("318", func(e *ircconn.Event) {
		if !matchesNick(e) {
			return
		}
		finish()
	})
	defer conn.RemoveCallback("311", id311)
	defer conn.RemoveCallback("319", id319)
	defer conn.RemoveCallback("317", id317)
	defer conn.RemoveCallback("318", id318)

	conn.Whois(nick)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if !acc.hasUser {
		return WhoisInfo{}, fmt.Errorf("bridgedclient: no such nick %s", nick)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s is %s", nick, acc.userHost)
	if acc.realName != "" {
		fmt.Fprintf(&b, " (%s)", acc.realName)
	}
	if acc.channels != "" {
		fmt.Fprintf(&b, ", channels: %s", acc.channels)
	}
	if acc.idle != "" {
		fmt.Fprintf(&b, ", idle for %ss", acc.idle)
	}

	return WhoisInfo{Server: c.server.Domain, Nick: nick, Msg: b.String()}, nil
}

// GetNicks issues NAMES channel with a 5-second timeout, returning the
// joined nick set and each nick's PREFIX string.
func (c *Client) GetNicks(channel string) (NamesResult, error) {
	c.mu.Lock()
	conn := c.conn
	dead := c.isDead()
	c.mu.Unlock()
	if dead {
		return NamesResult{}, ErrDisconnected
	}
	if conn == nil {
		return NamesResult{}, ErrNotConnected
	}

	names := make(map[string]string)
	var mu sync.Mutex
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	symbols := conn.PrefixSymbols()

	id353 := conn.AddCallback("353", func(e *ircconn.Event) {
		if len(e.Arguments) < 2 {
			return
		}
		chanArg := e.Arguments[len(e.Arguments)-2]
		if !strings.EqualFold(chanArg, channel) {
			return
		}
		mu.Lock()
		for _, n := range strings.Fields(e.Message()) {
			prefix := ""
			for len(n) > 0 && strings.IndexByte(symbols, n[0]) >= 0 {
				prefix += string(n[0])
				n = n[1:]
			}
			names[n] = prefix
		}
		mu.Unlock()
	})
	cancel366 := conn.OneShot("366", func(e *ircconn.Event) {
		if len(e.Arguments) < 2 || !strings.EqualFold(e.Arguments[1], channel) {
			return
		}
		finish()
	})
	defer conn.RemoveCallback("353", id353)
	defer cancel366()

	conn.Names(channel)

	select {
	case <-done:
	case <-time.After(namesTimeout):
	}

	mu.Lock()
	defer mu.Unlock()
	nicks := make([]string, 0, len(names))
	for n := range names {
		nicks = append(nicks, n)
	}
	return NamesResult{Server: c.server.Domain, Channel: channel, Nicks: nicks, Names: names}, nil
}

// GetOperators returns the operator snapshot for channel, from the
// configured cache if opts.CacheDurationMs is set and an entry exists,
// otherwise by joining, listing names, leaving, and computing operators.
func (c *Client) GetOperators(channel string, opts GetOperatorsOpts) (OperatorsResult, error) {
	if opts.CacheDurationMs < 0 {
		return OperatorsResult{}, fmt.Errorf("cacheDurationMs must be a positive integer")
	}

	cacheKey := c.instanceID + ":" + channel
	if opts.CacheDurationMs > 0 && c.opStore != nil {
		c.mu.Lock()
		dead := c.isDead()
		c.mu.Unlock()
		if dead {
			return OperatorsResult{}, ErrDisconnected
		}
		if snap, ok := c.opStore.Get(cacheKey); ok {
			return OperatorsResult{
				Server:        c.server.Domain,
				Channel:       channel,
				Nicks:         snap.Nicks,
				Names:         snap.Names,
				OperatorNicks: snap.OperatorNicks,
			}, nil
		}
	}

	if _, err := c.JoinChannel(channel, opts.Key); err != nil {
		return OperatorsResult{}, err
	}
	names, err := c.GetNicks(channel)
	if err != nil {
		return OperatorsResult{}, err
	}
	if err := c.LeaveChannel(channel, ""); err != nil {
		return OperatorsResult{}, err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	var operators []string
	for nick, prefixes := range names.Names {
		if isOperatorPrefix(conn, prefixes) {
			operators = append(operators, nick)
		}
	}

	result := OperatorsResult{
		Server:        c.server.Domain,
		Channel:       channel,
		Nicks:         names.Nicks,
		Names:         names.Names,
		OperatorNicks: operators,
	}

	if opts.CacheDurationMs > 0 && c.opStore != nil {
		c.opStore.Set(cacheKey, opcache.Snapshot{
			Nicks:         result.Nicks,
			Names:         result.Names,
			OperatorNicks: result.OperatorNicks,
		}, time.Duration(opts.CacheDurationMs)*time.Millisecond)
	}

	return result, nil
}

// isOperatorPrefix reports whether prefixes (a nick's PREFIX-symbol
// string, e.g. "@" or "@+") denotes operator status: it contains "@", or
// any symbol in it outranks "@" per the server's PREFIX table.
func isOperatorPrefix(conn *ircconn.Conn, prefixes string) bool {
	for i := 0; i < len(prefixes); i++ {
		if prefixes[i] == '@' {
			return true
		}
		if conn != nil && conn.IsUserPrefixMorePowerfulThan(prefixes[i], '@') {
			return true
		}
	}
	return false
}
