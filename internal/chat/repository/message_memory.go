package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"course_messaging_service/internal/chat/domain"
)

// memoryMessageRepository storage.driver=memory, single instance only, lost on restart
type memoryMessageRepository struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Message
	byClient map[string]string
	// conversation id -> messages, kept in history order
	byConv map[string][]*domain.Message
}

// NewMemoryMessageRepository create in-memory MessageRepository
func NewMemoryMessageRepository() MessageRepository {
	return &memoryMessageRepository{
		byID:     make(map[string]*domain.Message),
		byClient: make(map[string]string),
		byConv:   make(map[string][]*domain.Message),
	}
}

func clientKey(conversationID, clientMessageID string) string {
	return conversationID + "\x00" + clientMessageID
}

func (r *memoryMessageRepository) Insert(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ck := clientKey(m.ConversationID, m.ClientMessageID)
	if _, ok := r.byClient[ck]; ok {
		return domain.ErrDuplicateMessage
	}

	cp := *m
	r.byID[cp.ServerID] = &cp
	r.byClient[ck] = cp.ServerID

	list := r.byConv[cp.ConversationID]
	i := sort.Search(len(list), func(i int) bool { return domain.MessageLess(&cp, list[i]) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &cp
	r.byConv[cp.ConversationID] = list
	return nil
}

func (r *memoryMessageRepository) FindByClientID(_ context.Context, conversationID, clientMessageID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byClient[clientKey(conversationID, clientMessageID)]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *memoryMessageRepository) FindByID(_ context.Context, serverID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[serverID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memoryMessageRepository) AdvanceStatus(_ context.Context, serverID string, to domain.MessageStatus, at time.Time) (*domain.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[serverID]
	if !ok {
		return nil, false, domain.ErrMessageNotFound
	}
	if !m.Status.CanAdvanceTo(to) {
		cp := *m
		return &cp, false, nil
	}

	m.Status = to
	ts := at
	switch to {
	case domain.StatusDelivered:
		m.DeliveredAt = &ts
	case domain.StatusRead:
		m.ReadAt = &ts
	}
	cp := *m
	return &cp, true, nil
}

func (r *memoryMessageRepository) ListByConversation(_ context.Context, conversationID string, page domain.Page) (domain.MessagePage, error) {
	page = page.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byConv[conversationID]

	cursorID := page.After
	if page.Backward() {
		cursorID = page.Before
	}
	var cursor *domain.Message
	if cursorID != "" {
		c, ok := r.byID[cursorID]
		if !ok {
			return domain.MessagePage{}, domain.ErrMessageNotFound
		}
		if c.ConversationID != conversationID {
			return domain.MessagePage{}, domain.Validation("cursor does not belong to this conversation")
		}
		cursor = c
	}

	// 跟 mongo 一樣先取 limit+1 筆 (查詢方向), 交給 buildPage
	var msgs []domain.Message
	if page.Backward() {
		end := len(list)
		if cursor != nil {
			end = sort.Search(len(list), func(i int) bool { return !domain.MessageLess(list[i], cursor) })
		}
		for i := end - 1; i >= 0 && len(msgs) <= page.Limit; i-- {
			msgs = append(msgs, *list[i])
		}
	} else {
		start := 0
		if cursor != nil {
			start = sort.Search(len(list), func(i int) bool { return domain.MessageLess(cursor, list[i]) })
		}
		for i := start; i < len(list) && len(msgs) <= page.Limit; i++ {
			msgs = append(msgs, *list[i])
		}
	}

	return buildPage(msgs, page), nil
}

func (r *memoryMessageRepository) ListConversations(_ context.Context, participantID string) ([]domain.ConversationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ConversationSummary
	for convID, list := range r.byConv {
		if len(list) == 0 {
			continue
		}
		a, b, ok := domain.Participants(convID)
		if !ok || (a != participantID && b != participantID) {
			continue
		}

		s := domain.ConversationSummary{
			ConversationID: convID,
			LastMessage:    *list[len(list)-1],
		}
		s.PeerID = s.LastMessage.PeerOf(participantID)
		for _, m := range list {
			if m.ReceiverID == participantID && m.Status != domain.StatusRead {
				s.UnreadCount++
			}
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].LastMessage.CreatedAt, out[j].LastMessage.CreatedAt
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out, nil
}

func (r *memoryMessageRepository) CountUnread(_ context.Context, participantID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, m := range r.byID {
		if m.ReceiverID == participantID && m.Status != domain.StatusRead {
			n++
		}
	}
	return n, nil
}
