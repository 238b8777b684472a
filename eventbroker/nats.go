package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects this broker publishes to, following the "<app>.<category>.<action>"
// convention.
const (
	subjectClientConnected    = "ircbridge.client.connected"
	subjectClientDisconnected = "ircbridge.client.disconnected"
	subjectNickChange         = "ircbridge.client.nick_change"
	subjectJoinError          = "ircbridge.client.join_error"
	subjectMetadata           = "ircbridge.client.metadata"
)

// event is the JSON envelope published for every broker call. Call-specific
// fields that a call does not set are omitted.
type event struct {
	Kind        string    `json:"kind"`
	InstanceID  string    `json:"instance_id"`
	HomeUserID  string    `json:"home_user_id"`
	Server      string    `json:"server"`
	OldNick     string    `json:"old_nick,omitempty"`
	NewNick     string    `json:"new_nick,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Code        string    `json:"code,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Text        string    `json:"text,omitempty"`
	ForceNotice bool      `json:"force_notice,omitempty"`
	Time        time.Time `json:"time"`
}

// NATS is a multi-process Broker backed by a NATS connection. Every call
// marshals an event and publishes it fire-and-forget; it never waits on a
// subscriber, matching the Broker contract that none of this blocks a
// protocol operation.
type NATS struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATS connects to the NATS server at url and returns a broker. Dropped
// connections are retried indefinitely by the client library; callers only
// learn about persistent failure through the logger.
func NewNATS(url string, logger *slog.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("ircbridge"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			if err != nil {
				logger.Error("nats error", "error", err.Error())
			}
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("eventbroker: connecting to nats at %s: %w", url, err)
	}

	logger.Info("nats connection established", "url", nc.ConnectedUrl())
	return &NATS{conn: nc, logger: logger}, nil
}

func (b *NATS) publish(subject string, e event) {
	e.Time = time.Now()
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("marshaling event", "subject", subject, "error", err.Error())
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Error("publishing event", "subject", subject, "error", err.Error())
	}
}

func (b *NATS) ClientConnected(c ClientRef) {
	b.publish(subjectClientConnected, event{
		Kind: "connected", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(),
	})
}

func (b *NATS) ClientDisconnected(c ClientRef, reason string) {
	b.publish(subjectClientDisconnected, event{
		Kind: "disconnected", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(), Reason: reason,
	})
}

func (b *NATS) NickChange(c ClientRef, oldNick, newNick string) {
	b.publish(subjectNickChange, event{
		Kind: "nick-change", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(),
		OldNick: oldNick, NewNick: newNick,
	})
}

func (b *NATS) JoinError(c ClientRef, channel, code string) {
	b.publish(subjectJoinError, event{
		Kind: "join-error", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(),
		Channel: channel, Code: code,
	})
}

func (b *NATS) SendMetadata(c ClientRef, meta Metadata) {
	b.publish(subjectMetadata, event{
		Kind: "metadata", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(),
		Text: meta.Text, ForceNotice: meta.ForceNotice,
	})
}

func (b *NATS) Close(ctx context.Context) error {
	b.conn.Close()
	return nil
}
