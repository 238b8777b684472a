package bridgedclient

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bridgehub/ircbridge/ircconn"
	"github.com/bridgehub/ircbridge/nickname"
)

// nickChangeTimeout is the hard timeout on ChangeNick.
const nickChangeTimeout = 10 * time.Second

var nickChangeErrors = map[string]bool{
	"err_banonchan":        true,
	"err_nickcollision":    true,
	"err_nicknameinuse":    true,
	"err_erroneusnickname": true,
	"err_nonicknamegiven":  true,
	"err_eventnickchange":  true,
	"err_nicktoofast":      true,
	"err_unavailresource":  true,
}

// ChangeNick validates newNick, issues NICK and awaits the server's
// confirmation or rejection, or a 10-second timeout. Exactly one outcome
// fires; both one-shot listeners are always removed before returning.
func (c *Client) ChangeNick(newNick string, strict bool) (string, error) {
	c.mu.Lock()
	conn := c.conn
	current := c.nick
	dead := c.isDead()
	c.mu.Unlock()

	if dead {
		return "", ErrDisconnected
	}
	if conn == nil {
		return "", ErrNotConnected
	}

	validated, err := nickname.Validate(newNick, strict, conn.NickLen)
	if err != nil {
		return "", err
	}

	if strings.EqualFold(validated, current) {
		return fmt.Sprintf("already %s", validated), nil
	}

	result := make(chan struct {
		msg string
		err error
	}, 1)
	var once sync.Once
	finish := func(msg string, err error) {
		once.Do(func() {
			result <- struct {
				msg string
				err error
			}{msg, err}
		})
	}

	nickID := conn.AddCallback("NICK", func(e *ircconn.Event) {
		if len(e.Arguments) == 0 {
			return
		}
		if strings.EqualFold(e.Nick, current) && strings.EqualFold(e.Arguments[0], validated) {
			finish(fmt.Sprintf("Nick changed from %s to %s", current, validated), nil)
		}
	})
	cancelNick := func() { conn.RemoveCallback("NICK", nickID) }

	errID := conn.AddCallback("*", func(e *ircconn.Event) {
		if nickChangeErrors[e.Code] {
			finish("", fmt.Errorf("bridgedclient: changing nick failed: %s", e.Code))
		}
	})

	conn.Nick(validated)

	select {
	case r := <-result:
		cancelNick()
		conn.RemoveCallback("*", errID)
		return r.msg, r.err
	case <-time.After(nickChangeTimeout):
		cancelNick()
		conn.RemoveCallback("*", errID)
		return "", fmt.Errorf("bridgedclient: changing nick to %s timed out", validated)
	}
}
