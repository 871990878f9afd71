package repository

import (
	"context"
	"errors"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/pkg/database"
	"course_messaging_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// ParticipantDirectory read-only view of the account directory
type ParticipantDirectory interface {
	// Lookup 查不到的 id 不會出現在回傳的 map 中
	Lookup(ctx context.Context, ids []string) (map[string]domain.Profile, error)
}

type participantDirectory struct {
	db *pgxpool.Pool
}

// NewParticipantDirectory create a ParticipantDirectory over the participant table
func NewParticipantDirectory(db *pgxpool.Pool) ParticipantDirectory {
	return &participantDirectory{db: db}
}

func (r *participantDirectory) Lookup(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx,
		"SELECT participant_id, display_name, COALESCE(avatar_url, ''), role FROM participant WHERE participant_id = ANY($1)",
		ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Profile
		var role string
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvatarURL, &role); err != nil {
			return nil, err
		}
		p.Role = domain.Role(role)
		out[p.ID] = p
	}
	return out, rows.Err()
}

// profileCachePrefix redis key prefix of cached profiles
const profileCachePrefix = "chat:profile:"

type cachedDirectory struct {
	next  ParticipantDirectory
	cache database.RedisRepository[domain.Profile]
	ttl   time.Duration
}

// NewProfileCache redis repository holding cached profiles
func NewProfileCache(client *redis.Client) database.RedisRepository[domain.Profile] {
	return database.NewRedisRepository[domain.Profile](client, profileCachePrefix)
}

// NewCachedDirectory read-through redis cache in front of another directory
func NewCachedDirectory(next ParticipantDirectory, cache database.RedisRepository[domain.Profile], ttl time.Duration) ParticipantDirectory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &cachedDirectory{next: next, cache: cache, ttl: ttl}
}

func (c *cachedDirectory) Lookup(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	var missing []string

	for _, id := range ids {
		p, err := c.cache.Get(ctx, id)
		if err == nil {
			out[id] = p
			continue
		}
		if !errors.Is(err, database.ErrCacheMiss) {
			// cache 掛掉時直接查 DB
			logger.Log.Warn("profile cache get failed", zap.String("participant_id", id), zap.Error(err))
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := c.next.Lookup(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, p := range found {
		out[id] = p
		if err := c.cache.Set(ctx, id, p, c.ttl); err != nil {
			logger.Log.Warn("profile cache set failed", zap.String("participant_id", id), zap.Error(err))
		}
	}
	return out, nil
}
