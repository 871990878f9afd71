package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course_messaging_service/internal/chat/app"
	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	"course_messaging_service/pkg/config"
	"course_messaging_service/pkg/database"
	"course_messaging_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.NotifyWorker, config.EnvConfig.NotifyWorkerLogPath)
	defer logger.Log.Sync()
	cfg := config.LoadConfig[config.NotifyWorker](config.EnvConfig.NotifyWorker, config.EnvConfig.NotifyWorkerYAMLPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 通知收件匣 (Mongo)
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongoDB, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries", zap.Error(err))
	}
	defer mongoDB.Close(context.Background())
	if err := repository.EnsureNotificationIndexes(ctx, mongoDB.Database); err != nil {
		logger.Log.Fatal("ensure notification indexes failed", zap.Error(err))
	}
	notifications := repository.NewMongoNotificationRepository(mongoDB.Database)

	// 2. Redis throttle, 沒設定就每則都寫
	var (
		throttle    repository.NoticeThrottle
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = database.NewRedisSingleClient(cfg.Redis.Addr, cfg.Redis.RedisDB)
	} else if masterName, sentinel := config.GetRedisSetting(); len(sentinel) > 0 {
		redisClient, err = database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal("connect redis failed", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		throttle = repository.NewRedisNoticeThrottle(redisClient)
	} else {
		logger.Log.Warn("redis not configured, offline notices are not throttled")
	}

	// 3. 寄件者名稱 (PostgreSQL)
	var directory repository.ParticipantDirectory
	if cfg.PostgreSQL.Host != "" {
		pool, err := database.NewDatabaseConnection(database.Connection{
			ConnectStr: fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
				cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database),
			RetryCount:    cfg.PostgreSQL.RetryCount,
			RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("Unable to connect to postgreSQL after retries", zap.Error(err))
		}
		defer pool.Close()
		directory = repository.NewParticipantDirectory(pool)
		if redisClient != nil {
			directory = repository.NewCachedDirectory(directory, repository.NewProfileCache(redisClient), cfg.Redis.CacheTTL)
		}
	}

	// 4. RabbitMQ
	rabbitConn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port),
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("connect rabbitMQ failed", zap.Error(err))
	}
	defer rabbitConn.Close()

	rabbitChannel, err := database.GetRabbitMQChannelWithRetry(rabbitConn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval))
	if err != nil {
		logger.Log.Fatal("open rabbitMQ channel failed", zap.Error(err))
	}
	defer rabbitChannel.Close()

	queue := cfg.RabbitMQ.Queue
	if queue == "" {
		queue = domain.OfflineNoticeQueue
	}
	if err := database.DeclareDurableQueue(rabbitChannel, queue); err != nil {
		logger.Log.Fatal("declare notice queue failed", zap.String("queue", queue), zap.Error(err))
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 16
	}
	if err := rabbitChannel.Qos(prefetch, 0, false); err != nil {
		logger.Log.Fatal("set rabbitMQ prefetch failed", zap.Error(err))
	}

	consumer := app.NewNoticeConsumer(rabbitChannel, queue, notifications, throttle, directory, cfg.ThrottleWindow)
	logger.Log.Info("Notify Worker started", zap.String("queue", queue), zap.Int("prefetch", prefetch))
	if err := consumer.StartConsumer(ctx); err != nil {
		logger.Log.Fatal("notice consumer stopped", zap.Error(err))
	}
	logger.Log.Info("shutting down notify worker")
}
