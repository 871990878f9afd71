package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	errprocess "course_messaging_service/pkg/err"
	"course_messaging_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/streadway/amqp" // RabbitMQ 客戶端
	"go.uber.org/zap"
)

// errMalformedNotice 解析失敗的訊息重送也沒用
var errMalformedNotice = errors.New("malformed offline notice")

// NoticeConsumer 消費 offline notice, 寫入通知收件匣
type NoticeConsumer struct {
	rabbitChannel *amqp.Channel
	queueName     string

	notifications repository.NotificationRepository
	throttle      repository.NoticeThrottle
	directory     repository.ParticipantDirectory

	window     time.Duration
	retryDelay time.Duration
}

// NewNoticeConsumer throttle and directory may be nil
func NewNoticeConsumer(
	rabbitChannel *amqp.Channel,
	queueName string,
	notifications repository.NotificationRepository,
	throttle repository.NoticeThrottle,
	directory repository.ParticipantDirectory,
	window time.Duration,
) *NoticeConsumer {
	if queueName == "" {
		queueName = domain.OfflineNoticeQueue
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &NoticeConsumer{
		rabbitChannel: rabbitChannel,
		queueName:     queueName,
		notifications: notifications,
		throttle:      throttle,
		directory:     directory,
		window:        window,
		retryDelay:    10 * time.Second,
	}
}

// StartConsumer 開始消費訊息, ctx 結束或 channel 關閉才 return
func (c *NoticeConsumer) StartConsumer(ctx context.Context) error {
	msgs, err := c.rabbitChannel.Consume(
		c.queueName, // queue name
		"",          // consumer tag，留空由系統分配
		false,       // autoAck 為 false，使用手動確認
		false,       // exclusive
		false,       // noLocal
		false,       // noWait
		nil,         // arguments
	)
	if err != nil {
		return err
	}

	logger.Log.Info("notice consumer started", zap.String("queue", c.queueName))
	c.consume(ctx, msgs)
	return nil
}

func (c *NoticeConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Info("rabbitMQ delivery channel closed")
				return
			}
			c.handleDelivery(ctx, d)
		case <-ctx.Done():
			logger.Log.Info("notice consumer stopped")
			return
		}
	}
}

func (c *NoticeConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	err := c.Process(ctx, d.Body)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			logger.Log.Error("ack notice failed", zap.Error(err))
		}
	case errors.Is(err, errMalformedNotice):
		logger.Log.Error("drop malformed notice", zap.String("message_id", d.MessageId), zap.Error(err))
		if err := d.Nack(false, false); err != nil {
			logger.Log.Error("nack notice failed", zap.Error(err))
		}
	default:
		// 儲存失敗, 等一下再放回 queue
		logger.Log.Warn("requeue notice", zap.String("message_id", d.MessageId), zap.Duration("delay", c.retryDelay))
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
		}
		if err := d.Nack(false, true); err != nil {
			logger.Log.Error("nack notice failed", zap.Error(err))
		}
	}
}

// Process decode one notice and store it unless the conversation was notified recently
func (c *NoticeConsumer) Process(ctx context.Context, body []byte) error {
	var n domain.OfflineNotice
	if err := json.Unmarshal(body, &n); err != nil {
		return errors.Join(errMalformedNotice, err)
	}
	if n.MessageID == "" || n.ReceiverID == "" || n.SenderID == "" {
		return errMalformedNotice
	}

	key := n.ReceiverID + ":" + n.ConversationID
	if c.throttle != nil {
		allowed, err := c.throttle.Allow(ctx, key, c.window)
		if err != nil {
			logger.Log.Warn("notice throttle unavailable", zap.Error(err))
		} else if !allowed {
			logger.Log.Debug("notice throttled", zap.String("receiver_id", n.ReceiverID), zap.String("conversation_id", n.ConversationID))
			return nil
		}
	}

	notification := &domain.Notification{
		ID:             uuid.NewString(),
		ParticipantID:  n.ReceiverID,
		ConversationID: n.ConversationID,
		MessageID:      n.MessageID,
		SenderID:       n.SenderID,
		SenderName:     c.senderName(ctx, n.SenderID),
		Preview:        n.Preview,
		AttachmentKind: n.AttachmentKind,
		CreatedAt:      n.CreatedAt,
	}
	if err := c.notifications.Insert(ctx, notification); err != nil {
		if c.throttle != nil {
			if rerr := c.throttle.Release(ctx, key); rerr != nil {
				logger.Log.Warn("notice throttle release failed", zap.Error(rerr))
			}
		}
		return errprocess.Wrap("insert notification", err, zap.String("message_id", n.MessageID))
	}

	logger.Log.Info("offline notice stored",
		zap.String("receiver_id", n.ReceiverID),
		zap.String("message_id", n.MessageID))
	return nil
}

func (c *NoticeConsumer) senderName(ctx context.Context, senderID string) string {
	if c.directory == nil {
		return senderID
	}
	profiles, err := c.directory.Lookup(ctx, []string{senderID})
	if err != nil {
		logger.Log.Warn("directory lookup failed", zap.String("participant_id", senderID), zap.Error(err))
		return senderID
	}
	if p, ok := profiles[senderID]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return senderID
}
