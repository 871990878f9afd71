package repository

import (
	"context"
	"encoding/json"
	"sync"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/pkg/database"

	"github.com/streadway/amqp"
)

// OfflineNoticeQueue publish notices for messages nobody received live
type OfflineNoticeQueue interface {
	Publish(ctx context.Context, n domain.OfflineNotice) error
}

type rabbitNoticeQueue struct {
	// amqp.Channel 不保證 concurrent publish 安全
	mu    sync.Mutex
	rabbit database.RabbitRepo
	queue string
}

// NewRabbitNoticeQueue queue 需先以 database.DeclareDurableQueue 宣告
func NewRabbitNoticeQueue(rabbit database.RabbitRepo, queue string) OfflineNoticeQueue {
	if queue == "" {
		queue = domain.OfflineNoticeQueue
	}
	return &rabbitNoticeQueue{rabbit: rabbit, queue: queue}
}

func (q *rabbitNoticeQueue) Publish(_ context.Context, n domain.OfflineNotice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rabbit.Publish(
		"",      // default exchange
		q.queue, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.MessageID,
			Timestamp:    n.CreatedAt,
			Body:         body,
		},
	)
}
