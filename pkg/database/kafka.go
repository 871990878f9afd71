package database

import (
	"context"
	"fmt"
	"time"

	"course_messaging_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry 先確認 broker 可連線並且 topic 存在, 再建立非同步 Writer
func NewKafkaWriterWithRetry(k KafkaConnection) (*kafka.Writer, error) {
	var err error

	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		err = checkKafkaTopic(k)
		if err == nil {
			logger.Log.Info("kafka writer ready", zap.Strings("brokers", k.Brokers), zap.String("topic", k.Topic), zap.Int("attempt", attempt))
			return &kafka.Writer{
				Addr:         kafka.TCP(k.Brokers...),
				Topic:        k.Topic,
				Balancer:     &kafka.Hash{},
				BatchTimeout: 50 * time.Millisecond,
				RequiredAcks: kafka.RequireOne,
				Async:        true,
				Completion: func(messages []kafka.Message, err error) {
					if err != nil {
						logger.Log.Error("kafka async write failed", zap.Int("count", len(messages)), zap.Error(err))
					}
				},
			}, nil
		}

		logger.Log.Warn("kafka connect failed, retrying...", zap.Int("attempt", attempt), zap.Int("max", k.RetryCount), zap.Error(err))
		time.Sleep(k.RetryInterval * time.Second)
	}

	return nil, fmt.Errorf("kafka writer not ready after %d attempts: %w", k.RetryCount, err)
}

func checkKafkaTopic(k KafkaConnection) error {
	if len(k.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", k.Brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(k.Topic)
	if err != nil {
		return err
	}
	if len(partitions) == 0 {
		return fmt.Errorf("topic %s has no partitions", k.Topic)
	}
	return nil
}
