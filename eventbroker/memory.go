package eventbroker

import (
	"context"
	"log/slog"
	"sync"
)

// Record is one fan-in event captured by InProcess, for tests that want to
// assert on what was delivered.
type Record struct {
	Kind       string // "connected", "disconnected", "nick-change", "join-error", "metadata"
	InstanceID string
	HomeUserID string
	Server     string
	OldNick    string
	NewNick    string
	Channel    string
	Code       string
	Reason     string
	Metadata   Metadata
}

// InProcess is a single-process fan-in Broker: every event is appended to
// an in-memory log (capped) and optionally logged via slog, matching the
// structured-logging convention the rest of this module uses. It's the
// default broker for tests and for bridges that run one process.
type InProcess struct {
	logger *slog.Logger

	mu      sync.Mutex
	records []Record
	cap     int
	closed  bool
}

// NewInProcess returns a broker that keeps at most capRecords in memory
// (oldest dropped first); logger may be nil to disable logging.
func NewInProcess(logger *slog.Logger, capRecords int) *InProcess {
	if capRecords <= 0 {
		capRecords = 1000
	}
	return &InProcess{logger: logger, cap: capRecords}
}

func (b *InProcess) append(r Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.records = append(b.records, r)
	if len(b.records) > b.cap {
		b.records = b.records[len(b.records)-b.cap:]
	}
}

// Records returns a snapshot of everything delivered so far.
func (b *InProcess) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

func (b *InProcess) ClientConnected(c ClientRef) {
	b.append(Record{Kind: "connected", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server()})
	if b.logger != nil {
		b.logger.Info("client-connected", "instance", c.InstanceID(), "server", c.Server())
	}
}

func (b *InProcess) ClientDisconnected(c ClientRef, reason string) {
	b.append(Record{Kind: "disconnected", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(), Reason: reason})
	if b.logger != nil {
		b.logger.Info("client-disconnected", "instance", c.InstanceID(), "server", c.Server(), "reason", reason)
	}
}

func (b *InProcess) NickChange(c ClientRef, oldNick, newNick string) {
	b.append(Record{Kind: "nick-change", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(), OldNick: oldNick, NewNick: newNick})
	if b.logger != nil {
		b.logger.Info("nick-change", "instance", c.InstanceID(), "old", oldNick, "new", newNick)
	}
}

func (b *InProcess) JoinError(c ClientRef, channel, code string) {
	b.append(Record{Kind: "join-error", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(), Channel: channel, Code: code})
	if b.logger != nil {
		b.logger.Warn("join-error", "instance", c.InstanceID(), "channel", channel, "code", code)
	}
}

func (b *InProcess) SendMetadata(c ClientRef, meta Metadata) {
	b.append(Record{Kind: "metadata", InstanceID: c.InstanceID(), HomeUserID: c.HomeUserID(), Server: c.Server(), Metadata: meta})
	if b.logger != nil {
		b.logger.Info("metadata", "instance", c.InstanceID(), "force_notice", meta.ForceNotice, "text", meta.Text)
	}
}

func (b *InProcess) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
