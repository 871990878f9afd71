package app

import (
	"context"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	"course_messaging_service/pkg/logger"

	"go.uber.org/zap"
)

// ConversationView conversation list row with peer profile and presence
type ConversationView struct {
	domain.ConversationSummary
	Peer       *domain.Profile `json:"peer,omitempty"`
	PeerOnline bool            `json:"peerOnline"`
}

// ConversationQuery read side used by the REST handlers
type ConversationQuery struct {
	store         *MessageStore
	presence      *PresenceTracker
	directory     repository.ParticipantDirectory
	notifications repository.NotificationRepository
}

// NewConversationQuery directory and notifications may be nil
func NewConversationQuery(
	store *MessageStore,
	presence *PresenceTracker,
	directory repository.ParticipantDirectory,
	notifications repository.NotificationRepository,
) *ConversationQuery {
	return &ConversationQuery{
		store:         store,
		presence:      presence,
		directory:     directory,
		notifications: notifications,
	}
}

// ListConversations summaries of participantID, enriched with profiles when the directory answers
func (q *ConversationQuery) ListConversations(ctx context.Context, participantID string) ([]ConversationView, error) {
	summaries, err := q.store.ListConversationsForParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	profiles := map[string]domain.Profile{}
	if q.directory != nil && len(summaries) > 0 {
		ids := make([]string, 0, len(summaries))
		for _, s := range summaries {
			ids = append(ids, s.PeerID)
		}
		// 名片查不到不影響列表
		if found, err := q.directory.Lookup(ctx, ids); err != nil {
			logger.Log.Warn("directory lookup failed", zap.Int("ids", len(ids)), zap.Error(err))
		} else {
			profiles = found
		}
	}

	out := make([]ConversationView, 0, len(summaries))
	for _, s := range summaries {
		v := ConversationView{
			ConversationSummary: s,
			PeerOnline:          q.presence.IsOnline(s.PeerID),
		}
		if p, ok := profiles[s.PeerID]; ok {
			p := p
			v.Peer = &p
		}
		out = append(out, v)
	}
	return out, nil
}

// History page of the conversation between participantID and peerID
func (q *ConversationQuery) History(ctx context.Context, participantID, peerID string, page domain.Page) (domain.MessagePage, error) {
	if err := domain.ValidateParticipantID(peerID); err != nil {
		return domain.MessagePage{}, err
	}
	if peerID == participantID {
		return domain.MessagePage{}, domain.Validation("cannot open a conversation with yourself")
	}
	return q.store.ListByConversation(ctx, domain.ConversationIDFor(participantID, peerID), page)
}

// Unread total unread messages
func (q *ConversationQuery) Unread(ctx context.Context, participantID string) (int, error) {
	return q.store.CountUnread(ctx, participantID)
}

// Presence current presence record
func (q *ConversationQuery) Presence(participantID string) domain.PresenceRecord {
	return q.presence.Snapshot(participantID)
}

// Notifications offline notice inbox, empty when the inbox is not configured
func (q *ConversationQuery) Notifications(ctx context.Context, participantID string, limit int) ([]domain.Notification, error) {
	if q.notifications == nil {
		return []domain.Notification{}, nil
	}
	list, err := q.notifications.ListLatest(ctx, participantID, limit)
	if err != nil {
		return nil, domain.Persistence(err)
	}
	return list, nil
}
