package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	presenceInstancesKey = "chat:presence:instances"
	presenceLastSeenKey  = "chat:presence:last_seen:"
	presenceLastSeenTTL  = 30 * 24 * time.Hour
)

// PresenceMirror cluster-wide view of presence, one hash field per participant counting online gateway instances
type PresenceMirror interface {
	MarkOnline(ctx context.Context, participantID string) error
	MarkOffline(ctx context.Context, participantID string, lastSeen time.Time) error
	IsOnline(ctx context.Context, participantID string) (bool, error)
	LastSeen(ctx context.Context, participantID string) (time.Time, error)
}

type redisPresenceMirror struct {
	client *redis.Client
}

// NewRedisPresenceMirror create PresenceMirror
func NewRedisPresenceMirror(client *redis.Client) PresenceMirror {
	return &redisPresenceMirror{client: client}
}

// decrScript 歸零時刪掉 field, 避免 crash 後留下負數
var decrScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
	return 0
end
return n
`)

func (r *redisPresenceMirror) MarkOnline(ctx context.Context, participantID string) error {
	return r.client.HIncrBy(ctx, presenceInstancesKey, participantID, 1).Err()
}

func (r *redisPresenceMirror) MarkOffline(ctx context.Context, participantID string, lastSeen time.Time) error {
	if err := decrScript.Run(ctx, r.client, []string{presenceInstancesKey}, participantID).Err(); err != nil {
		return err
	}
	return r.client.Set(ctx, presenceLastSeenKey+participantID, lastSeen.UTC().Format(time.RFC3339Nano), presenceLastSeenTTL).Err()
}

func (r *redisPresenceMirror) IsOnline(ctx context.Context, participantID string) (bool, error) {
	n, err := r.client.HGet(ctx, presenceInstancesKey, participantID).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisPresenceMirror) LastSeen(ctx context.Context, participantID string) (time.Time, error) {
	v, err := r.client.Get(ctx, presenceLastSeenKey+participantID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, v)
}
