package repository

import (
	"context"
	"encoding/json"

	"course_messaging_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
)

// MessageEventPublisher message event log
type MessageEventPublisher interface {
	Publish(ctx context.Context, ev domain.MessageEvent) error
	Close() error
}

type kafkaEventPublisher struct {
	writer *kafka.Writer
}

// NewKafkaEventPublisher writer 由 database.NewKafkaWriterWithRetry 建立 (async)
func NewKafkaEventPublisher(w *kafka.Writer) MessageEventPublisher {
	return &kafkaEventPublisher{writer: w}
}

// Publish key 用 conversation id, 同一對話的事件落在同一 partition 保持順序
func (p *kafkaEventPublisher) Publish(ctx context.Context, ev domain.MessageEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Message.ConversationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
		Time: ev.At,
	})
}

func (p *kafkaEventPublisher) Close() error {
	return p.writer.Close()
}
