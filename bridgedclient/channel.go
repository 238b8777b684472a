package bridgedclient

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bridgehub/ircbridge/eventbroker"
	"github.com/bridgehub/ircbridge/ircconn"
)

const (
	joinRoundTimeout = 15 * time.Second
	joinMaxAttempts  = 5
)

var joinErrors = map[string]bool{
	"err_nosuchchannel":   true,
	"err_toomanychannels": true,
	"err_channelisfull":   true,
	"err_inviteonlychan":  true,
	"err_bannedfromchan":  true,
	"err_badchannelkey":   true,
	"err_needreggednick":  true,
}

// JoinChannel resolves immediately for an already-joined channel or a
// non-channel (direct-message) target, rejects for an excluded channel,
// and otherwise drives a 15-second x 5-round JOIN protocol with
// silent-success detection on every round.
func (c *Client) JoinChannel(channel, key string) (IrcRoom, error) {
	c.mu.Lock()
	conn := c.conn
	dead := c.isDead()
	c.mu.Unlock()

	if conn == nil && !dead {
		c.awaitConnectReady()
		c.mu.Lock()
		conn = c.conn
		dead = c.isDead()
		c.mu.Unlock()
	}
	if dead {
		return IrcRoom{}, ErrDisconnected
	}
	if conn == nil {
		return IrcRoom{}, ErrNotConnected
	}

	if !isChannelName(channel) {
		return IrcRoom{Server: c.server.Domain, Channel: channel}, nil
	}
	if c.server.ExcludedChannel != nil && c.server.ExcludedChannel(channel) {
		return IrcRoom{}, ErrExcluded
	}
	if _, joined := conn.Chans()[channel]; joined {
		return IrcRoom{Server: c.server.Domain, Channel: channel}, nil
	}

	c.mu.Lock()
	c.chanList[channel] = struct{}{}
	c.mu.Unlock()

	for attempt := 1; attempt <= joinMaxAttempts; attempt++ {
		room, done, err := c.joinRound(conn, channel, key)
		if done {
			return room, err
		}
		// Neither the JOIN callback nor silent-success fired; retry.
	}

	c.mu.Lock()
	delete(c.chanList, channel)
	c.mu.Unlock()

	c.broker.JoinError(c, channel, "join-timeout")
	c.broker.SendMetadata(c, eventbroker.Metadata{
		Text:        fmt.Sprintf("Failed to join %s after multiple tries", channel),
		ForceNotice: true,
	})
	return IrcRoom{}, fmt.Errorf("bridgedclient: joining %s failed after multiple tries", channel)
}

// joinRound runs one 15-second attempt. done is true when the join has
// resolved (success or hard failure); false means the round timed out
// without silent success, so the caller should retry.
func (c *Client) joinRound(conn *ircconn.Conn, channel, key string) (room IrcRoom, done bool, err error) {
	myNick := conn.GetNick()

	result := make(chan struct {
		room IrcRoom
		err  error
	}, 1)
	var once sync.Once
	finish := func(room IrcRoom, err error) {
		once.Do(func() {
			result <- struct {
				room IrcRoom
				err  error
			}{room, err}
		})
	}

	joinID := conn.AddCallback("JOIN", func(e *ircconn.Event) {
		if len(e.Arguments) == 0 || !strings.EqualFold(e.Nick, myNick) || e.Arguments[0] != channel {
			return
		}
		finish(IrcRoom{Server: c.server.Domain, Channel: channel}, nil)
	})
	cancelJoin := func() { conn.RemoveCallback("JOIN", joinID) }

	errID := conn.AddCallback("*", func(e *ircconn.Event) {
		if !joinErrors[e.Code] {
			return
		}
		for _, arg := range e.Arguments {
			if arg == channel {
				finish(IrcRoom{}, fmt.Errorf("%s", e.Code))
				return
			}
		}
	})

	if key != "" {
		conn.Join(channel, key)
	} else {
		conn.Join(channel, "")
	}

	select {
	case r := <-result:
		cancelJoin()
		conn.RemoveCallback("*", errID)
		if r.err != nil {
			c.mu.Lock()
			delete(c.chanList, channel)
			c.mu.Unlock()
			c.broker.JoinError(c, channel, r.err.Error())
			c.broker.SendMetadata(c, eventbroker.Metadata{Text: r.err.Error(), ForceNotice: true})
			return IrcRoom{}, true, r.err
		}
		return r.room, true, nil
	case <-time.After(joinRoundTimeout):
		cancelJoin()
		conn.RemoveCallback("*", errID)
		if _, joined := conn.Chans()[channel]; joined {
			return IrcRoom{Server: c.server.Domain, Channel: channel}, true, nil
		}
		return IrcRoom{}, false, nil
	}
}

// LeaveChannel removes channel from chanList before sending PART, so a
// concurrent JoinChannel sees the channel absent immediately; resolves
// once the PART callback fires. No-op if disconnected, not tracked, or
// not a channel name.
func (c *Client) LeaveChannel(channel, reason string) error {
	c.mu.Lock()
	conn := c.conn
	_, tracked := c.chanList[channel]
	dead := c.isDead()
	c.mu.Unlock()

	if dead || conn == nil || !tracked || !isChannelName(channel) {
		return nil
	}

	c.mu.Lock()
	delete(c.chanList, channel)
	c.mu.Unlock()

	myNick := conn.GetNick()
	done := make(chan struct{})
	var once sync.Once
	partID := conn.AddCallback("PART", func(e *ircconn.Event) {
		if len(e.Arguments) == 0 || !strings.EqualFold(e.Nick, myNick) || e.Arguments[0] != channel {
			return
		}
		once.Do(func() { close(done) })
	})
	defer conn.RemoveCallback("PART", partID)

	conn.Part(channel, reason)
	<-done
	return nil
}

// Kick sends KICK and resolves immediately; IRC gives no reliable success
// reply, so the caller cannot distinguish permission failures from
// success.
func (c *Client) Kick(nick, channel, reason string) error {
	c.mu.Lock()
	conn := c.conn
	dead := c.isDead()
	c.mu.Unlock()

	if dead || conn == nil || !isChannelName(channel) {
		return nil
	}
	if _, joined := conn.Chans()[channel]; !joined {
		return nil
	}
	conn.Kick(nick, channel, reason)
	return nil
}
