package repository

import (
	"context"
	"time"

	"course_messaging_service/internal/chat/domain"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationCollection mongo collection name
const NotificationCollection = "notifications"

// NotificationRepository offline notice inbox
type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) error
	ListLatest(ctx context.Context, participantID string, limit int) ([]domain.Notification, error)
}

type mongoNotificationRepository struct {
	coll *mongo.Collection
}

// NewMongoNotificationRepository create NotificationRepository
func NewMongoNotificationRepository(db *mongo.Database) NotificationRepository {
	return &mongoNotificationRepository{coll: db.Collection(NotificationCollection)}
}

// EnsureNotificationIndexes message_id unique 讓重送的 notice 不會重複寫入
func EnsureNotificationIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(NotificationCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "participant_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	return err
}

func (r *mongoNotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	_, err := r.coll.InsertOne(ctx, n)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (r *mongoNotificationRepository) ListLatest(ctx context.Context, participantID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{"participant_id": participantID}, opts)
	if err != nil {
		return nil, err
	}
	out := []domain.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NoticeThrottle one notice per key per window
type NoticeThrottle interface {
	// Allow true 代表這個 window 內第一次
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
	// Release 寫入失敗要重送時呼叫, 否則重送會被自己擋掉
	Release(ctx context.Context, key string) error
}

const throttlePrefix = "chat:notice:throttle:"

type redisNoticeThrottle struct {
	client *redis.Client
}

// NewRedisNoticeThrottle SET NX EX based throttle
func NewRedisNoticeThrottle(client *redis.Client) NoticeThrottle {
	return &redisNoticeThrottle{client: client}
}

func (t *redisNoticeThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return t.client.SetNX(ctx, throttlePrefix+key, 1, window).Result()
}

func (t *redisNoticeThrottle) Release(ctx context.Context, key string) error {
	return t.client.Del(ctx, throttlePrefix+key).Err()
}
