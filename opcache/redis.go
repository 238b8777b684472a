package opcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a shared Redis/DragonflyDB instance, so the
// cache lives outside any one OS process. GetOperators keys entries by the
// session's instance ID and channel, so a snapshot is only read back by the
// session that stored it, not by other sessions or processes.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a Store using client, namespacing every key under
// prefix (e.g. "ircbridge:opcache:").
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) Get(key string) (Snapshot, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Redis) Set(key string, snap Snapshot, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	s.client.Set(ctx, s.prefix+key, data, ttl)
}
