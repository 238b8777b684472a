package bridgedclient

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bridgehub/ircbridge/eventbroker"
	"github.com/bridgehub/ircbridge/identity"
	"github.com/bridgehub/ircbridge/ircconn"
	"github.com/bridgehub/ircbridge/nickname"
	"github.com/bridgehub/ircbridge/opcache"
)

// Client is one Bridged Client: a virtualized IRC session standing in for
// one home-side user on one IRC network. All mutating methods are safe for
// concurrent use; internally they serialize on mu, matching the
// single-writer, cooperative scheduling model while still
// allowing many Bridged Clients to run concurrently.
type Client struct {
	server       *ServerDescriptor
	clientConfig ClientConfig
	homeUserID   string
	displayName  string
	isBot        bool

	broker        eventbroker.Broker
	identGen      identity.Generator
	ipv6Alloc     *identity.IPv6Allocator
	identRegistry *identity.Registry
	socketLimiter *ircconn.SocketLimiter
	opStore       opcache.Store
	logger        *slog.Logger

	instanceID string

	mu                 sync.Mutex
	nick               string
	conn               *ircconn.Conn
	identPort          uint16
	hasIdentPort       bool
	chanList           map[string]struct{}
	lastActionTs       time.Time
	idleTimer          *time.Timer
	instCreationFailed bool
	killed             bool
	explicitDisconnect bool
	disconnectReason   string
	state              State

	connectReadyMu sync.Mutex
	connectReadyCh chan struct{}
}

// New constructs a Bridged Client in state Fresh. Nothing happens on the
// wire until Connect is called.
func New(
	server *ServerDescriptor,
	cfg ClientConfig,
	homeUserID, displayName string,
	isBot bool,
	broker eventbroker.Broker,
	identGen identity.Generator,
	ipv6Alloc *identity.IPv6Allocator,
	identRegistry *identity.Registry,
	socketLimiter *ircconn.SocketLimiter,
	opStore opcache.Store,
	logger *slog.Logger,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		server:         server,
		clientConfig:   cfg,
		homeUserID:     homeUserID,
		displayName:    displayName,
		isBot:          isBot,
		broker:         broker,
		identGen:       identGen,
		ipv6Alloc:      ipv6Alloc,
		identRegistry:  identRegistry,
		socketLimiter:  socketLimiter,
		opStore:        opStore,
		logger:         logger,
		chanList:       make(map[string]struct{}),
		connectReadyCh: make(chan struct{}),
		state:          Fresh,
	}
}

// InstanceID, HomeUserID and Server satisfy eventbroker.ClientRef.
func (c *Client) InstanceID() string { return c.instanceID }
func (c *Client) HomeUserID() string { return c.homeUserID }
func (c *Client) Server() string     { return c.server.Domain }

func newInstanceID() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "000000"
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:])
	enc = strings.ToLower(enc)
	if len(enc) > 6 {
		enc = enc[:6]
	}
	return enc
}

func renderNickTemplate(tmpl, homeUserID, displayName string) string {
	s := strings.ReplaceAll(tmpl, "$USERID", homeUserID)
	s = strings.ReplaceAll(s, "$DISPLAYNAME", displayName)
	return s
}

// isDead reports whether the session can no longer perform any protocol
// operation: the initial connect failed outright, the session was killed,
// or a connection exists and has died. Monotonic once true.
func (c *Client) isDead() bool {
	if c.instCreationFailed || c.killed {
		return true
	}
	return c.conn != nil && c.conn.Dead()
}

// IsDead is the exported, lock-guarded form of isDead.
func (c *Client) IsDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isDead()
}

// State returns the current coarse lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect performs identity acquisition, opens the connection, registers
// the permanent nick/error listeners, emits client-connected, sets any
// server-mandated user modes for non-bot sessions, and arms the idle
// timer. On any failure instCreationFailed is set and no listeners remain
// attached.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state != Fresh {
		c.mu.Unlock()
		return fmt.Errorf("bridgedclient: Connect called twice")
	}
	c.instanceID = newInstanceID()
	c.state = Connecting
	c.mu.Unlock()

	// 1. Identity generation completes before the TCP connection opens.
	id, err := c.identGen.Generate(c.homeUserID, c.displayName)
	if err != nil {
		return c.failConnect(fmt.Errorf("bridgedclient: generating identity: %w", err))
	}
	c.clientConfig.Username = id.Username
	c.clientConfig.RealName = id.RealName

	// IPv6 allocation, if this server is configured for it.
	if c.server.IPv6Prefix != nil && c.ipv6Alloc != nil {
		addr, err := c.ipv6Alloc.Allocate(c.server.IPv6Prefix, c.homeUserID)
		if err != nil {
			return c.failConnect(fmt.Errorf("bridgedclient: allocating IPv6 address: %w", err))
		}
		c.clientConfig.IPv6Address = addr
	}

	desired := c.clientConfig.DesiredNick
	if desired == "" && c.server.NickTemplate != "" {
		desired = renderNickTemplate(c.server.NickTemplate, c.homeUserID, c.displayName)
	}
	nick, err := nickname.Validate(desired, false, nil)
	if err != nil {
		return c.failConnect(fmt.Errorf("bridgedclient: validating nick: %w", err))
	}

	password := c.clientConfig.Password
	if password == "" {
		password = c.server.DefaultPassword
	}

	var proxy *ircconn.Proxy
	if c.server.Proxy != nil {
		proxy = &ircconn.Proxy{
			Type:     c.server.Proxy.Type,
			Address:  c.server.Proxy.Address,
			Username: c.server.Proxy.Username,
			Password: c.server.Proxy.Password,
		}
	}
	var localAddr = c.clientConfig.IPv6Address
	if !c.server.BindIPv6 {
		localAddr = nil
	}

	cfg := ircconn.Config{
		Server:    c.server.Domain,
		Nick:      nick,
		User:      c.clientConfig.Username,
		RealName:  c.clientConfig.RealName,
		Password:  password,
		LocalAddr: localAddr,
		Proxy:     proxy,
		Socket:    c.socketLimiter,
	}

	onCreated := func(conn *ircconn.Conn) {
		// 2. The socket-level "connect" event sets the ident mapping for
		// the local source port -- distinct from IRC registration. The
		// port is remembered so handleDisconnect can undo it.
		if c.identRegistry != nil {
			if port, ok := conn.LocalPort(); ok {
				c.identRegistry.Store(port, c.clientConfig.Username)
				c.mu.Lock()
				c.identPort = port
				c.hasIdentPort = true
				c.mu.Unlock()
			}
		}
		conn.OnDisconnect(c.handleDisconnect)
		c.installPermanentListeners(conn)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
	}

	conn, err := ircconn.Create(cfg, onCreated)
	if err != nil {
		return c.failConnect(fmt.Errorf("bridgedclient: connecting: %w", err))
	}

	c.mu.Lock()
	c.conn = conn
	// 3. nick is overwritten from the raw client's effective nick (the
	// server may have coerced it).
	c.nick = conn.GetNick()
	c.state = Registered
	c.lastActionTs = time.Now()
	c.mu.Unlock()

	if !c.isBot && c.server.UserModes != "" {
		conn.Mode(c.nick, c.server.UserModes)
	}

	c.broker.ClientConnected(c)
	c.broker.SendMetadata(c, eventbroker.Metadata{Text: fmt.Sprintf("Connected to %s as %s", c.server.Domain, c.nick)})

	c.armIdleTimer()

	c.closeConnectReady()
	return nil
}

// installPermanentListeners installs the two listeners that live for the whole
// session: tracking server-initiated nick changes and forwarding IRC
// errors to the event broker.
func (c *Client) installPermanentListeners(conn *ircconn.Conn) {
	conn.AddCallback("NICK", func(e *ircconn.Event) {
		if len(e.Arguments) == 0 {
			return
		}
		c.mu.Lock()
		old := c.nick
		if strings.EqualFold(e.Nick, old) {
			c.nick = e.Arguments[0]
			c.mu.Unlock()
			c.broker.NickChange(c, old, e.Arguments[0])
			return
		}
		c.mu.Unlock()
	})

	forceNotice := map[string]bool{"err_nononreg": true}
	conn.AddCallback("*", func(e *ircconn.Event) {
		if !ircconn.IsErrorCode(e.Code) {
			return
		}
		c.broker.SendMetadata(c, eventbroker.Metadata{
			Text:        e.Code + ": " + e.Message(),
			ForceNotice: forceNotice[e.Code],
		})
	})
}

func (c *Client) failConnect(err error) error {
	c.mu.Lock()
	c.instCreationFailed = true
	c.state = Failed
	c.mu.Unlock()
	c.closeConnectReady()
	return err
}

func (c *Client) closeConnectReady() {
	c.connectReadyMu.Lock()
	defer c.connectReadyMu.Unlock()
	select {
	case <-c.connectReadyCh:
	default:
		close(c.connectReadyCh)
	}
}

// awaitConnectReady blocks until Connect has finished (successfully or
// not), so JoinChannel/SendAction calls issued while a connect is still in
// flight queue instead of racing a nil conn.
func (c *Client) awaitConnectReady() {
	<-c.connectReadyCh
}
