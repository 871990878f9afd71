package app

import (
	"context"
	"errors"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	"course_messaging_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageStore 訊息的唯一寫入入口, 負責驗證 / 冪等 / 狀態只進不退
type MessageStore struct {
	repo         repository.MessageRepository
	events       repository.MessageEventPublisher
	metrics      *Metrics
	maxBodyChars int
	now          func() time.Time
}

// NewMessageStore events may be nil, nil metrics are dropped
func NewMessageStore(
	repo repository.MessageRepository,
	events repository.MessageEventPublisher,
	metrics *Metrics,
	maxBodyChars int,
) *MessageStore {
	return &MessageStore{
		repo:         repo,
		events:       events,
		metrics:      metricsOrDiscard(metrics),
		maxBodyChars: maxBodyChars,
		now:          time.Now,
	}
}

// Append persist a candidate message.
// created=false means (conversationId, clientMessageId) was already stored and that record is returned.
func (s *MessageStore) Append(ctx context.Context, candidate domain.Message) (domain.Message, bool, error) {
	if err := candidate.Validate(s.maxBodyChars); err != nil {
		s.metrics.MessagesAppended.WithLabelValues(outcomeRejected).Inc()
		return domain.Message{}, false, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.metrics.MessagesAppended.WithLabelValues(outcomeFailed).Inc()
		return domain.Message{}, false, domain.Persistence(err)
	}

	m := candidate
	m.ServerID = id.String()
	m.ConversationID = domain.ConversationIDFor(m.SenderID, m.ReceiverID)
	m.Status = domain.StatusSent
	// mongo 只存到毫秒, 兩種 backend 回傳同樣的時間
	m.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	m.DeliveredAt = nil
	m.ReadAt = nil

	err = s.repo.Insert(ctx, &m)
	if errors.Is(err, domain.ErrDuplicateMessage) {
		existing, ferr := s.repo.FindByClientID(ctx, m.ConversationID, m.ClientMessageID)
		if ferr != nil {
			s.metrics.MessagesAppended.WithLabelValues(outcomeFailed).Inc()
			return domain.Message{}, false, domain.Persistence(ferr)
		}
		// 同一對話裡另一方用了相同的 client id, 不能把對方的訊息當成重送結果
		if existing.SenderID != m.SenderID {
			s.metrics.MessagesAppended.WithLabelValues(outcomeRejected).Inc()
			return domain.Message{}, false, domain.Validation("clientMessageId already used in this conversation")
		}
		s.metrics.MessagesAppended.WithLabelValues(outcomeDuplicate).Inc()
		return *existing, false, nil
	}
	if err != nil {
		s.metrics.MessagesAppended.WithLabelValues(outcomeFailed).Inc()
		logger.Log.Error("message insert failed",
			zap.String("conversation_id", m.ConversationID),
			zap.String("client_message_id", m.ClientMessageID),
			zap.Error(err))
		return domain.Message{}, false, domain.Persistence(err)
	}

	s.metrics.MessagesAppended.WithLabelValues(outcomeCreated).Inc()
	s.publish(ctx, domain.EventAppended, m)
	return m, true, nil
}

// MarkDelivered sent -> delivered, anything else is a no-op returning the current record
func (s *MessageStore) MarkDelivered(ctx context.Context, serverID string) (domain.Message, bool, error) {
	return s.advance(ctx, serverID, domain.StatusDelivered, domain.EventDelivered)
}

// MarkRead sent|delivered -> read
func (s *MessageStore) MarkRead(ctx context.Context, serverID string) (domain.Message, bool, error) {
	return s.advance(ctx, serverID, domain.StatusRead, domain.EventRead)
}

func (s *MessageStore) advance(ctx context.Context, serverID string, to domain.MessageStatus, ev domain.MessageEventType) (domain.Message, bool, error) {
	if serverID == "" {
		return domain.Message{}, false, domain.Validation("messageId is required")
	}

	m, changed, err := s.repo.AdvanceStatus(ctx, serverID, to, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return domain.Message{}, false, domain.NotFound(err)
		}
		return domain.Message{}, false, domain.Persistence(err)
	}
	if changed {
		s.publish(ctx, ev, *m)
	}
	return *m, changed, nil
}

// Get one message by server id
func (s *MessageStore) Get(ctx context.Context, serverID string) (domain.Message, error) {
	m, err := s.repo.FindByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			return domain.Message{}, domain.NotFound(err)
		}
		return domain.Message{}, domain.Persistence(err)
	}
	return *m, nil
}

// ListByConversation one page of history, ascending by (createdAt, serverId)
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID string, page domain.Page) (domain.MessagePage, error) {
	if _, _, ok := domain.Participants(conversationID); !ok {
		return domain.MessagePage{}, domain.Validation("invalid conversation id")
	}
	if err := page.Validate(); err != nil {
		return domain.MessagePage{}, err
	}

	p, err := s.repo.ListByConversation(ctx, conversationID, page)
	if err != nil {
		var ce *domain.ChatError
		switch {
		case errors.As(err, &ce):
			return domain.MessagePage{}, err
		case errors.Is(err, domain.ErrMessageNotFound):
			return domain.MessagePage{}, domain.Validation("unknown cursor")
		}
		return domain.MessagePage{}, domain.Persistence(err)
	}
	return p, nil
}

// ListConversationsForParticipant one summary per peer, most recent first
func (s *MessageStore) ListConversationsForParticipant(ctx context.Context, participantID string) ([]domain.ConversationSummary, error) {
	list, err := s.repo.ListConversations(ctx, participantID)
	if err != nil {
		return nil, domain.Persistence(err)
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	return list, nil
}

// CountUnread messages to participantID not yet read
func (s *MessageStore) CountUnread(ctx context.Context, participantID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, participantID)
	if err != nil {
		return 0, domain.Persistence(err)
	}
	return n, nil
}

func (s *MessageStore) publish(ctx context.Context, typ domain.MessageEventType, m domain.Message) {
	if s.events == nil {
		return
	}
	ev := domain.MessageEvent{Type: typ, Message: m, At: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Log.Warn("message event publish failed",
			zap.String("type", string(typ)),
			zap.String("message_id", m.ServerID),
			zap.Error(err))
	}
}
