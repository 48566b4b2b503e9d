// Package mirror keeps a Redis copy of every tracked challenge snapshot so
// companion processes (push workers, dashboards) can read engine state
// without talking to the engine itself. The engine is the only writer.
package mirror

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swingmate-app/challenge-engine/internal/challenge"
)

const (
	// ttlSnapshot bounds how stale a mirror entry can get if the engine
	// dies without cleaning up. Live entries are rewritten on every event.
	ttlSnapshot = 24 * time.Hour
)

type Mirror struct{ rdb *redis.Client }

func New(rdb *redis.Client) *Mirror { return &Mirror{rdb: rdb} }

// NewFromURL dials Redis from a redis:// URL, the same way the engine's
// other Redis consumers are configured.
func NewFromURL(url string) (*Mirror, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(opt)), nil
}

func (m *Mirror) keySnapshot(id string) string { return "swing:challenge:" + strings.TrimSpace(id) }
func (m *Mirror) keyLive() string              { return "swing:challenge:live" }

// Save writes the snapshot and keeps the live index in sync: sessions in a
// terminal state drop out of the index but their last snapshot stays
// readable until the TTL expires.
func (m *Mirror) Save(ctx context.Context, snap *challenge.Session) error {
	if snap == nil || snap.ID == "" {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := m.rdb.Set(ctx, m.keySnapshot(snap.ID), raw, ttlSnapshot).Err(); err != nil {
		return err
	}
	if snap.State.Terminal() {
		return m.rdb.SRem(ctx, m.keyLive(), snap.ID).Err()
	}
	if err := m.rdb.SAdd(ctx, m.keyLive(), snap.ID).Err(); err != nil {
		return err
	}
	return m.rdb.Expire(ctx, m.keyLive(), ttlSnapshot).Err()
}

func (m *Mirror) Load(ctx context.Context, id string) (*challenge.Session, error) {
	raw, err := m.rdb.Get(ctx, m.keySnapshot(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s challenge.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Drop removes the snapshot and its index entry, for sessions the engine
// evicted rather than finished.
func (m *Mirror) Drop(ctx context.Context, id string) error {
	if err := m.rdb.SRem(ctx, m.keyLive(), id).Err(); err != nil {
		return err
	}
	return m.rdb.Del(ctx, m.keySnapshot(id)).Err()
}

// ListLive loads every non-terminal session currently mirrored. Entries
// whose snapshot expired are skipped and pruned from the index.
func (m *Mirror) ListLive(ctx context.Context) ([]*challenge.Session, error) {
	ids, err := m.rdb.SMembers(ctx, m.keyLive()).Result()
	if err != nil {
		return nil, err
	}
	var out []*challenge.Session
	for _, id := range ids {
		s, err := m.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			_ = m.rdb.SRem(ctx, m.keyLive(), id).Err()
			continue
		}
		if s.State.Terminal() {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Mirror) Close() error { return m.rdb.Close() }
