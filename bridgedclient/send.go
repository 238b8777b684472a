package bridgedclient

import (
	"time"

	"github.com/bridgehub/ircbridge/eventbroker"
)

// SendAction resets the idle timer, awaits connect-ready, implicitly joins
// room.Channel if not already tracked, and dispatches action according to
// its type. A configured message-expiry deadline that has already passed
// by the time the join completes causes the event to be dropped silently.
func (c *Client) SendAction(room IrcRoom, action Action) error {
	c.resetIdle()

	var deadline time.Time
	hasDeadline := c.server.MessageExpirySeconds > 0
	if hasDeadline {
		deadline = action.Ts.Add(time.Duration(c.server.MessageExpirySeconds) * time.Second)
	}

	c.awaitConnectReady()

	c.mu.Lock()
	_, alreadyJoined := c.chanList[room.Channel]
	dead := c.isDead()
	c.mu.Unlock()
	if dead {
		return ErrDisconnected
	}

	if isChannelName(room.Channel) && !alreadyJoined {
		if _, err := c.JoinChannel(room.Channel, ""); err != nil {
			return err
		}
		c.broker.SendMetadata(c, eventbroker.Metadata{Text: "implicit-join: " + room.Channel})
	}

	if hasDeadline && time.Now().After(deadline) {
		c.logger.Debug("dropping expired action", "channel", room.Channel, "type", action.Type)
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	switch action.Type {
	case "message":
		conn.Say(room.Channel, action.Text)
	case "notice":
		conn.Notice(room.Channel, action.Text)
	case "emote":
		conn.Action(room.Channel, action.Text)
	case "topic":
		conn.Topic(room.Channel, action.Text)
	default:
		return ErrUnknownAction
	}
	return nil
}
