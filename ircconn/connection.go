// Copyright (c) 2024 Jerzy Dąbrowski
// Based on original work by Thomas Jager, 2009. All rights reserved.
//
// This project is a fork of the original go-ircevent library created by Thomas Jager.
// Redistribution and use in source and binary forms, with or without modification, are permitted provided
// that the following conditions are met:
//
//    - Redistributions of source code must retain the above copyright notice, this list of conditions,
//      and the following disclaimer.
//    - Redistributions in binary form must reproduce the above copyright notice, this list of conditions,
//      and the following disclaimer in the documentation and/or other materials provided with the distribution.
//    - Neither the name of the original authors nor the names of its contributors may be used to endorse
//      or promote products derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED "AS IS" WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT NOT
// LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE, AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE COPYRIGHT HOLDERS OR CONTRIBUTORS BE LIABLE FOR ANY CLAIM, DAMAGES, OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT, OR OTHERWISE, ARISING FROM, OUT OF, OR IN CONNECTION WITH THE SOFTWARE
// OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package ircconn

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/text/encoding"
	"h12.io/socks"
)

var errMalformed = errors.New("ircconn: malformed line from server")

// ErrRegistrationFailed is returned by Create when the socket connects but
// the server never completes IRC registration (no 001 within Timeout) and
// no more specific protocol error was received first.
var ErrRegistrationFailed = errors.New("ircconn: registration did not complete")

// Proxy describes an optional upstream-side proxy hop for the TCP dial.
type Proxy struct {
	Type     string // "socks4", "socks4a", or "socks5"
	Address  string
	Username string
	Password string
}

// Config configures one Connection Instance. Fields are read once by
// Create and not safe to mutate afterwards.
type Config struct {
	Server    string // host:port
	UseTLS    bool
	TLSConfig *tls.Config

	Nick     string
	User     string
	RealName string
	Password string

	// LocalAddr, when set, is bound as the local address for the outbound
	// TCP dial -- this is how the IPv6 Allocator's address actually
	// changes the source address used on the wire.
	LocalAddr net.IP

	Proxy *Proxy

	Encoding encoding.Encoding // defaults to UTF-8 passthrough if nil

	Timeout   time.Duration // read/write deadline and registration timeout
	PingFreq  time.Duration
	KeepAlive time.Duration

	Debug bool
	Log   *log.Logger

	// Socket is a process-wide outbound-connection semaphore. Acquire is
	// called before dialing and Release after the connection dies. Nil
	// disables the limit.
	Socket *SocketLimiter
}

func (cfg *Config) setDefaults() {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PingFreq == 0 {
		cfg.PingFreq = 3 * time.Minute
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 4 * time.Minute
	}
	if cfg.Log == nil {
		cfg.Log = log.New(os.Stderr, "ircconn: ", log.LstdFlags)
	}
}

// Conn is the Connection Instance: one TCP/TLS socket to an IRC server plus
// the line-level protocol state (current nick, joined channels, ISUPPORT).
type Conn struct {
	cfg Config

	socket net.Conn
	pwrite chan string
	end    chan struct{}
	wg     sync.WaitGroup

	mu          sync.Mutex
	nickCurrent string

	events    map[string]map[int]func(*Event)
	eventsMu  sync.Mutex
	idCounter int

	lastMessage   time.Time
	lastMessageMu sync.Mutex

	chansMu sync.Mutex
	chans   map[string]struct{}

	isup *isupport

	deadMu sync.Mutex
	dead   bool

	releaseSocket func()

	onDisconnectMu sync.Mutex
	onDisconnectFn func(reason string)
	disconnectOnce sync.Once
}

// Create dials the server, invokes onCreated synchronously once the socket
// is up (so the caller can wire the ident mapping off LocalPort before
// anything else happens), then performs IRC registration and blocks until
// it completes or fails. On error the caller must treat this instance as
// failed; Create never returns a live *Conn alongside a non-nil error.
func Create(cfg Config, onCreated func(*Conn)) (*Conn, error) {
	cfg.setDefaults()

	if cfg.Socket != nil {
		if !cfg.Socket.Acquire() {
			return nil, errors.New("ircconn: outbound socket limit reached")
		}
	}

	c := &Conn{
		cfg:   cfg,
		pwrite: make(chan string, 64),
		end:    make(chan struct{}),
		chans:  make(map[string]struct{}),
		isup:   newISupport(),
	}
	c.nickCurrent = cfg.Nick

	socket, err := dial(cfg)
	if err != nil {
		if cfg.Socket != nil {
			cfg.Socket.Release()
		}
		return nil, fmt.Errorf("ircconn: dial %s: %w", cfg.Server, err)
	}
	c.socket = socket
	c.releaseSocket = func() {
		if cfg.Socket != nil {
			cfg.Socket.Release()
		}
	}

	if onCreated != nil {
		onCreated(c)
	}

	c.wg.Add(3)
	go c.readLoop()
	go c.writeLoop()
	go c.pingLoop()

	if err := c.register(); err != nil {
		c.teardown(err.Error())
		return nil, err
	}

	return c, nil
}

func dial(cfg Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if cfg.LocalAddr != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: cfg.LocalAddr}
	}

	if cfg.Proxy != nil {
		switch cfg.Proxy.Type {
		case "socks5":
			var auth *proxy.Auth
			if cfg.Proxy.Username != "" {
				auth = &proxy.Auth{User: cfg.Proxy.Username, Password: cfg.Proxy.Password}
			}
			d, err := proxy.SOCKS5("tcp", cfg.Proxy.Address, auth, dialer)
			if err != nil {
				return nil, err
			}
			return dialTLSIfNeeded(cfg, d.Dial)
		case "socks4", "socks4a":
			dialFunc := socks.Dial(fmt.Sprintf("%s://%s", cfg.Proxy.Type, cfg.Proxy.Address))
			return dialTLSIfNeeded(cfg, dialFunc)
		default:
			return nil, fmt.Errorf("ircconn: unknown proxy type %q", cfg.Proxy.Type)
		}
	}

	return dialTLSIfNeeded(cfg, dialer.Dial)
}

func dialTLSIfNeeded(cfg Config, dialFunc func(network, addr string) (net.Conn, error)) (net.Conn, error) {
	conn, err := dialFunc("tcp", cfg.Server)
	if err != nil {
		return nil, err
	}
	if !cfg.UseTLS {
		return conn, nil
	}
	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		host, _, _ := net.SplitHostPort(cfg.Server)
		tlsConfig = &tls.Config{ServerName: host}
	}
	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// register sends PASS/NICK/USER and blocks until RPL_WELCOME (001), an
// err_* reply, or Timeout elapses.
func (c *Conn) register() error {
	if c.cfg.Password != "" {
		c.SendRawf("PASS %s", c.cfg.Password)
	}
	c.SendRawf("NICK %s", c.cfg.Nick)
	realName := c.cfg.RealName
	if realName == "" {
		realName = c.cfg.User
	}
	c.SendRawf("USER %s 0 * :%s", c.cfg.User, realName)

	result := make(chan error, 1)
	var once sync.Once
	finish := func(err error) { once.Do(func() { result <- err }) }

	cancelWelcome := c.OneShot("001", func(e *Event) {
		c.mu.Lock()
		if len(e.Arguments) > 0 {
			c.nickCurrent = e.Arguments[0]
		}
		c.mu.Unlock()
		finish(nil)
	})
	errID := c.AddCallback("*", func(e *Event) {
		if isErrorCode(e.Code) {
			finish(fmt.Errorf("ircconn: registration rejected: %s %s", e.Code, e.Message()))
		}
	})
	defer cancelWelcome()
	defer c.RemoveCallback("*", errID)

	select {
	case err := <-result:
		return err
	case <-time.After(c.cfg.Timeout):
		return ErrRegistrationFailed
	case <-c.end:
		return ErrRegistrationFailed
	}
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	enc := c.cfg.Encoding
	var r io.Reader = c.socket
	if enc != nil {
		r = enc.NewDecoder().Reader(c.socket)
	}
	br := bufio.NewReaderSize(r, 4096)

	for {
		select {
		case <-c.end:
			return
		default:
		}

		if c.socket != nil {
			c.socket.SetReadDeadline(time.Now().Add(c.cfg.Timeout + c.cfg.PingFreq))
		}
		msg, err := br.ReadString('\n')
		if c.socket != nil {
			var zero time.Time
			c.socket.SetReadDeadline(zero)
		}
		if err != nil {
			c.teardown(fmt.Sprintf("read error: %s", err))
			return
		}

		if c.cfg.Debug {
			c.cfg.Log.Printf("<-- %s", strings.TrimSpace(msg))
		}

		c.lastMessageMu.Lock()
		c.lastMessage = time.Now()
		c.lastMessageMu.Unlock()

		event, err := parseToEvent(msg)
		if err != nil {
			continue
		}
		c.handleBuiltin(event)
		c.runCallbacks(event)
	}
}

// handleBuiltin updates connection state (nick tracking, ISUPPORT, chans,
// numeric-to-symbolic translation) before user callbacks see the event.
func (c *Conn) handleBuiltin(e *Event) {
	switch e.Code {
	case "005":
		c.isup.apply(e.Arguments)
	case "NICK":
		if len(e.Arguments) > 0 {
			c.mu.Lock()
			if strings.EqualFold(e.Nick, c.nickCurrent) {
				c.nickCurrent = e.Arguments[0]
			}
			c.mu.Unlock()
		}
	case "JOIN":
		if len(e.Arguments) > 0 && strings.EqualFold(e.Nick, c.GetNick()) {
			c.chansMu.Lock()
			c.chans[e.Arguments[0]] = struct{}{}
			c.chansMu.Unlock()
		}
	case "PART":
		if len(e.Arguments) > 0 && strings.EqualFold(e.Nick, c.GetNick()) {
			c.chansMu.Lock()
			delete(c.chans, e.Arguments[0])
			c.chansMu.Unlock()
		}
	case "KICK":
		if len(e.Arguments) > 1 && strings.EqualFold(e.Arguments[1], c.GetNick()) {
			c.chansMu.Lock()
			delete(c.chans, e.Arguments[0])
			c.chansMu.Unlock()
		}
	default:
		if len(e.Code) == 3 {
			e.Code = numericName(e.Code, e.Message())
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	enc := c.cfg.Encoding
	var w io.Writer = c.socket
	if enc != nil {
		w = enc.NewEncoder().Writer(c.socket)
	}

	for {
		select {
		case <-c.end:
			return
		case line, ok := <-c.pwrite:
			if !ok || line == "" || c.socket == nil {
				return
			}
			if c.cfg.Debug {
				c.cfg.Log.Printf("--> %s", strings.TrimSpace(line))
			}
			c.socket.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
			_, err := w.Write([]byte(line))
			var zero time.Time
			c.socket.SetWriteDeadline(zero)
			if err != nil {
				c.teardown(fmt.Sprintf("write error: %s", err))
				return
			}
		}
	}
}

func (c *Conn) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingFreq)
	defer ticker.Stop()
	for {
		select {
		case <-c.end:
			return
		case <-ticker.C:
			c.lastMessageMu.Lock()
			idle := time.Since(c.lastMessage)
			c.lastMessageMu.Unlock()
			if idle >= c.cfg.KeepAlive {
				c.SendRawf("PING :%d", time.Now().UnixNano())
			}
		}
	}
}

// SendRawf queues a formatted raw line for the write loop, appending the
// trailing CRLF.
func (c *Conn) SendRawf(format string, a ...interface{}) {
	c.SendRaw(fmt.Sprintf(format, a...))
}

// SendRaw queues a raw line (without CRLF) for the write loop.
func (c *Conn) SendRaw(line string) {
	select {
	case c.pwrite <- line + "\r\n":
	case <-c.end:
	}
}

// GetNick returns the server-confirmed current nick (which may differ from
// what was last requested with Nick, if a change is still pending).
func (c *Conn) GetNick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nickCurrent
}

// NickLen returns the server-advertised NICKLEN, if the ISUPPORT 005 line
// has been seen yet.
func (c *Conn) NickLen() (int, bool) { return c.isup.nickLen() }

// IsUserPrefixMorePowerfulThan reports whether prefixChar outranks against
// in the server's PREFIX table. Only "@" is meaningful for against today,
// by the operator predicate, but the signature stays general.
func (c *Conn) IsUserPrefixMorePowerfulThan(prefixChar byte, against byte) bool {
	if against != '@' {
		return false
	}
	return c.isup.isMorePowerfulThanOp(prefixChar)
}

// PrefixSymbols returns the server's PREFIX symbols ordered from most to
// least powerful, e.g. "@%+" -- used to parse NAMES replies into
// nick-to-prefix mappings.
func (c *Conn) PrefixSymbols() string { return c.isup.symbolsByPower() }

// Chans returns a snapshot of the channels the server has confirmed this
// connection joined.
func (c *Conn) Chans() map[string]struct{} {
	c.chansMu.Lock()
	defer c.chansMu.Unlock()
	out := make(map[string]struct{}, len(c.chans))
	for k := range c.chans {
		out[k] = struct{}{}
	}
	return out
}

// LocalPort returns the local TCP source port of the underlying socket, if
// known -- used to populate the Ident Registry.
func (c *Conn) LocalPort() (uint16, bool) {
	addr, ok := c.socket.LocalAddr().(*net.TCPAddr)
	if !ok || addr == nil {
		return 0, false
	}
	return uint16(addr.Port), true
}

// Dead reports whether the connection has torn down (network error,
// explicit Disconnect, or the server closing the socket).
func (c *Conn) Dead() bool {
	c.deadMu.Lock()
	defer c.deadMu.Unlock()
	return c.dead
}

// OnDisconnect installs the single callback invoked when the connection
// dies, for any reason. It is invoked at most once.
func (c *Conn) OnDisconnect(fn func(reason string)) {
	c.onDisconnectMu.Lock()
	c.onDisconnectFn = fn
	c.onDisconnectMu.Unlock()
}

// Disconnect idempotently tears the connection down with reason.
func (c *Conn) Disconnect(reason string) {
	if reason == "" {
		reason = "Disconnect called"
	}
	c.SendRawf("QUIT :%s", reason)
	c.teardown(reason)
}

func (c *Conn) teardown(reason string) {
	c.deadMu.Lock()
	alreadyDead := c.dead
	c.dead = true
	c.deadMu.Unlock()
	if alreadyDead {
		return
	}

	close(c.end)
	if c.socket != nil {
		c.socket.Close()
	}
	if c.releaseSocket != nil {
		c.releaseSocket()
	}

	c.disconnectOnce.Do(func() {
		c.onDisconnectMu.Lock()
		fn := c.onDisconnectFn
		c.onDisconnectMu.Unlock()
		if fn != nil {
			fn(reason)
		}
	})
}

// SocketLimiter bounds the number of concurrently-open outbound sockets
// across every Connection Instance in the process. It is created once at
// process startup and shared by every dial.
type SocketLimiter struct {
	sem chan struct{}
}

// NewSocketLimiter creates a limiter allowing up to n concurrent sockets.
func NewSocketLimiter(n int) *SocketLimiter {
	if n <= 0 {
		n = 1000
	}
	return &SocketLimiter{sem: make(chan struct{}, n)}
}

// Acquire reserves a slot, returning false immediately if none are free.
func (l *SocketLimiter) Acquire() bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a previously-acquired slot. Safe to call at most once per
// successful Acquire.
func (l *SocketLimiter) Release() {
	select {
	case <-l.sem:
	default:
	}
}
