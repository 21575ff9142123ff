package presence

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"marketchat/internal/domain/entity"
)

// RedisTracker shares presence between gateway nodes. Each user is one hash
// keyed by connection ref, holding the last time that connection was seen.
// The key TTL is the inactivity window, so Redis drops users nobody touches,
// and fields older than the window are ignored on read.
type RedisTracker struct {
	client *redis.Client
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewRedisTracker(client *redis.Client, prefix string, window time.Duration) *RedisTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if prefix == "" {
		prefix = "marketchat"
	}
	return &RedisTracker{
		client: client,
		prefix: prefix + ":presence:",
		window: window,
		now:    time.Now,
	}
}

// SetClock replaces the time source used to stamp and age connections.
func (t *RedisTracker) SetClock(now func() time.Time) {
	t.now = now
}

func (t *RedisTracker) key(userID string) string {
	return t.prefix + userID
}

func (t *RedisTracker) SetOnline(ctx context.Context, userID, connectionRef string) error {
	return t.hold(ctx, userID, connectionRef)
}

// SetOffline drops one connection. Redis removes the hash with its last
// field, which is what takes the user offline.
func (t *RedisTracker) SetOffline(ctx context.Context, userID, connectionRef string) error {
	return t.client.HDel(ctx, t.key(userID), connectionRef).Err()
}

func (t *RedisTracker) Touch(ctx context.Context, userID, connectionRef string) error {
	return t.hold(ctx, userID, connectionRef)
}

func (t *RedisTracker) hold(ctx context.Context, userID, connectionRef string) error {
	key := t.key(userID)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, connectionRef, t.now().UnixMilli())
		pipe.PExpire(ctx, key, t.window)
		return nil
	})
	return err
}

func (t *RedisTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	fields, err := t.client.HGetAll(ctx, t.key(userID)).Result()
	if err != nil {
		return false, err
	}
	_, ok := t.record(userID, fields)
	return ok, nil
}

func (t *RedisTracker) ListOnline(ctx context.Context) ([]entity.PresenceRecord, error) {
	var keys []string
	iter := t.client.Scan(ctx, 0, t.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []entity.PresenceRecord{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := t.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]entity.PresenceRecord, 0, len(keys))
	for i, cmd := range cmds {
		// a hash that expired between SCAN and HGETALL reads as empty
		if record, ok := t.record(strings.TrimPrefix(keys[i], t.prefix), cmd.Val()); ok {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// record folds the connection fields of one user into a presence record
// naming the most recently seen connection. ok is false when no field is
// inside the window.
func (t *RedisTracker) record(userID string, fields map[string]string) (entity.PresenceRecord, bool) {
	record := entity.PresenceRecord{UserID: userID, Status: entity.PresenceOnline}
	cutoff := t.now().Add(-t.window)
	for ref, raw := range fields {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		seen := time.UnixMilli(ms)
		if seen.Before(cutoff) {
			continue
		}
		record.Connections++
		if seen.After(record.LastSeen) || (seen.Equal(record.LastSeen) && ref < record.ConnectionRef) {
			record.LastSeen = seen
			record.ConnectionRef = ref
		}
	}
	return record, record.Connections > 0
}
