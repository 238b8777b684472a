package bridgedclient

import (
	"fmt"
	"time"

	"github.com/bridgehub/ircbridge/eventbroker"
)

// armIdleTimer (re)arms the idle timer at server.IdleTimeoutSeconds. At
// most one idleTimer is ever live.
func (c *Client) armIdleTimer() {
	if c.server.IdleTimeoutSeconds <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armIdleTimerLocked()
}

func (c *Client) armIdleTimerLocked() {
	if c.server.IdleTimeoutSeconds <= 0 {
		return
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	d := time.Duration(c.server.IdleTimeoutSeconds) * time.Second
	c.idleTimer = time.AfterFunc(d, c.onIdleTimeout)
}

func (c *Client) cancelIdleTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// resetIdle records activity and rearms the idle timer. Called by every
// operation that counts as liveness (SendAction).
func (c *Client) resetIdle() {
	c.mu.Lock()
	c.lastActionTs = time.Now()
	c.armIdleTimerLocked()
	c.mu.Unlock()
}

func (c *Client) onIdleTimeout() {
	if c.server.MembershipMirror["initial"] {
		return
	}
	if c.isBot {
		return
	}
	seconds := c.server.IdleTimeoutSeconds
	c.Disconnect(fmt.Sprintf("Idle timeout reached: %ds", seconds))
}

// Disconnect sets explicitDisconnect and tears the connection down. A
// no-op if no connection exists or it is already dead.
func (c *Client) Disconnect(reason string) error {
	c.mu.Lock()
	c.explicitDisconnect = true
	conn := c.conn
	if conn != nil && !conn.Dead() {
		c.state = Disconnecting
	}
	c.mu.Unlock()

	if conn == nil || conn.Dead() {
		return nil
	}
	conn.Disconnect(reason)
	return nil
}

// Kill clears the raw-client handle (blocking further commands via any
// stale reference) and disconnects.
func (c *Client) Kill(reason string) error {
	if reason == "" {
		reason = "Bridged client killed"
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.killed = true
	c.explicitDisconnect = true
	if conn != nil && !conn.Dead() {
		c.state = Disconnecting
	}
	c.mu.Unlock()

	if conn == nil || conn.Dead() {
		return nil
	}
	conn.Disconnect(reason)
	return nil
}

// handleDisconnect is wired as the Connection Instance's onDisconnect
// callback: fired at most once, for any reason the connection died.
func (c *Client) handleDisconnect(reason string) {
	c.mu.Lock()
	c.disconnectReason = reason
	if reason == "banned" {
		c.explicitDisconnect = true
	}
	if c.state != Failed {
		c.state = Dead
	}
	port := c.identPort
	hasPort := c.hasIdentPort
	c.hasIdentPort = false
	c.mu.Unlock()

	if hasPort && c.identRegistry != nil {
		c.identRegistry.Delete(port)
	}

	c.broker.ClientDisconnected(c, reason)
	c.broker.SendMetadata(c, eventbroker.Metadata{Text: fmt.Sprintf("Disconnected from %s: %s", c.server.Domain, reason)})
	c.cancelIdleTimer()
}
