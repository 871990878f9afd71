package database

import (
	"fmt"
	"time"

	"course_messaging_service/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RabbitRepo definition rabbit repo
type RabbitRepo interface {
	GetRabbit() *amqp.Channel
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type rabbitRepo struct {
	channel *amqp.Channel
}

// NewRabbitRepository create a RabbitRepository
func NewRabbitRepository(ch *amqp.Channel) RabbitRepo {
	return &rabbitRepo{channel: ch}
}

// ConnectRabbitMQWithRetry 嘗試連線到 RabbitMQ, 失敗時固定間隔重試
func ConnectRabbitMQWithRetry(d Connection) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for attempt := 1; attempt <= d.RetryCount; attempt++ {
		conn, err = amqp.Dial(d.ConnectStr)
		if err == nil {
			logger.Log.Info("rabbitMQ connected", zap.Int("attempt", attempt))
			return conn, nil
		}

		logger.Log.Warn("rabbitMQ connect failed, retrying...", zap.Int("attempt", attempt), zap.Int("max", d.RetryCount), zap.Error(err))
		time.Sleep(d.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("rabbitMQ not reachable after %d attempts: %w", d.RetryCount, err)
}

// GetRabbitMQChannelWithRetry 使用已有的 RabbitMQ 連線嘗試取得 Channel
func GetRabbitMQChannelWithRetry(conn *amqp.Connection, maxRetries int, baseDelay time.Duration) (*amqp.Channel, error) {
	var ch *amqp.Channel
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ch, err = conn.Channel()
		if err == nil {
			return ch, nil
		}

		logger.Log.Warn("rabbitMQ channel failed, retrying...", zap.Int("attempt", attempt), zap.Int("max", maxRetries), zap.Error(err))
		time.Sleep(baseDelay * time.Second)
	}

	return nil, fmt.Errorf("rabbitMQ channel not available after %d attempts: %w", maxRetries, err)
}

// DeclareDurableQueue 宣告持久化 queue, worker 與 publisher 兩端都會呼叫
func DeclareDurableQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // arguments
	)
	return err
}

func (r *rabbitRepo) GetRabbit() *amqp.Channel {
	return r.channel
}

func (r *rabbitRepo) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return r.channel.Publish(exchange, key, mandatory, immediate, msg)
}
