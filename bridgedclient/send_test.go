package bridgedclient

import (
	"strings"
	"testing"
	"time"
)

func TestSendActionDispatchesByType(t *testing.T) {
	c, fs, _ := newConnectedClient(t, nil)
	defer fs.close()

	// Seed the channel as already joined so SendAction's implicit-join
	// check is a no-op and the dispatch is the only thing on the wire.
	fs.send(":alice!a@b JOIN #room")
	waitFor(t, time.Second, func() bool {
		_, ok := c.conn.Chans()["#room"]
		return ok
	})
	c.mu.Lock()
	c.chanList["#room"] = struct{}{}
	c.mu.Unlock()

	cases := []struct {
		action Action
		want   string
	}{
		{Action{Type: "message", Text: "hi"}, "PRIVMSG #room :hi"},
		{Action{Type: "notice", Text: "hi"}, "NOTICE #room :hi"},
		{Action{Type: "emote", Text: "waves"}, "ACTION waves"},
		{Action{Type: "topic", Text: "new topic"}, "TOPIC #room :new topic"},
	}
	for _, tc := range cases {
		if err := c.SendAction(IrcRoom{Server: c.server.Domain, Channel: "#room"}, tc.action); err != nil {
			t.Fatalf("SendAction(%s): %v", tc.action.Type, err)
		}
		waitFor(t, time.Second, func() bool { return len(fs.linesContaining(tc.want)) > 0 })
	}
}

func TestSendActionUnknownTypeRejects(t *testing.T) {
	c, fs, _ := newConnectedClient(t, nil)
	defer fs.close()

	err := c.SendAction(IrcRoom{Server: c.server.Domain, Channel: "somebody"}, Action{Type: "poke"})
	if err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Fatalf("err = %v, want unknown action type", err)
	}
}

func TestSendActionDropsExpiredEvent(t *testing.T) {
	server := &ServerDescriptor{MessageExpirySeconds: 1}
	c, fs, _ := newConnectedClient(t, server)
	defer fs.close()

	stale := Action{Type: "message", Text: "too late", Ts: time.Now().Add(-10 * time.Second)}
	if err := c.SendAction(IrcRoom{Server: c.server.Domain, Channel: "somebody"}, stale); err != nil {
		t.Fatalf("SendAction: %v", err)
	}
	if len(fs.linesContaining("too late")) != 0 {
		t.Fatal("an expired action must be dropped, not sent")
	}
}
