package app

import (
	"context"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	"course_messaging_service/pkg/database"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Insert mock insert message
func (m *MockMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindByClientID mock find by idempotency key
func (m *MockMessageRepository) FindByClientID(ctx context.Context, conversationID, clientMessageID string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID, clientMessageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID mock find by server id
func (m *MockMessageRepository) FindByID(ctx context.Context, serverID string) (*domain.Message, error) {
	args := m.Called(ctx, serverID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// AdvanceStatus mock status transition
func (m *MockMessageRepository) AdvanceStatus(ctx context.Context, serverID string, to domain.MessageStatus, at time.Time) (*domain.Message, bool, error) {
	args := m.Called(ctx, serverID, to, at)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

// ListByConversation mock history page
func (m *MockMessageRepository) ListByConversation(ctx context.Context, conversationID string, page domain.Page) (domain.MessagePage, error) {
	args := m.Called(ctx, conversationID, page)
	return args.Get(0).(domain.MessagePage), args.Error(1)
}

// ListConversations mock conversation list
func (m *MockMessageRepository) ListConversations(ctx context.Context, participantID string) ([]domain.ConversationSummary, error) {
	args := m.Called(ctx, participantID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ConversationSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

// CountUnread mock unread count
func (m *MockMessageRepository) CountUnread(ctx context.Context, participantID string) (int, error) {
	args := m.Called(ctx, participantID)
	return args.Int(0), args.Error(1)
}

// MockEventPublisher Mock MessageEventPublisher
type MockEventPublisher struct {
	mock.Mock
}

// Publish mock publish event
func (m *MockEventPublisher) Publish(ctx context.Context, ev domain.MessageEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// Close mock close
func (m *MockEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockNoticeQueue Mock OfflineNoticeQueue
type MockNoticeQueue struct {
	mock.Mock
}

// Publish mock publish notice
func (m *MockNoticeQueue) Publish(ctx context.Context, n domain.OfflineNotice) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockPresigner Mock UploadPresigner
type MockPresigner struct {
	mock.Mock
}

// PresignPostPolicy mock presign
func (m *MockPresigner) PresignPostPolicy(ctx context.Context, req database.PostPolicyRequest) (string, map[string]string, error) {
	args := m.Called(ctx, req)
	if args.Get(1) != nil {
		return args.String(0), args.Get(1).(map[string]string), args.Error(2)
	}
	return args.String(0), nil, args.Error(2)
}

// MockAttachmentSlotRepo Mock AttachmentSlotRepo
type MockAttachmentSlotRepo struct {
	mock.Mock
}

// AutoMigrate mock migrate
func (m *MockAttachmentSlotRepo) AutoMigrate() error {
	args := m.Called()
	return args.Error(0)
}

// Create mock create slot
func (m *MockAttachmentSlotRepo) Create(ctx context.Context, slot *domain.AttachmentSlot) error {
	args := m.Called(ctx, slot)
	return args.Error(0)
}

// CountIssuedSince mock count slots
func (m *MockAttachmentSlotRepo) CountIssuedSince(ctx context.Context, participantID string, since time.Time) (int64, error) {
	args := m.Called(ctx, participantID, since)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotificationRepository Mock NotificationRepository
type MockNotificationRepository struct {
	mock.Mock
}

// Insert mock insert notification
func (m *MockNotificationRepository) Insert(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// ListLatest mock inbox
func (m *MockNotificationRepository) ListLatest(ctx context.Context, participantID string, limit int) ([]domain.Notification, error) {
	args := m.Called(ctx, participantID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockNoticeThrottle Mock NoticeThrottle
type MockNoticeThrottle struct {
	mock.Mock
}

// Allow mock throttle check
func (m *MockNoticeThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, window)
	return args.Bool(0), args.Error(1)
}

// Release mock throttle release
func (m *MockNoticeThrottle) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockDirectory Mock ParticipantDirectory
type MockDirectory struct {
	mock.Mock
}

// Lookup mock profile lookup
func (m *MockDirectory) Lookup(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPresenceMirror Mock PresenceMirror
type MockPresenceMirror struct {
	mock.Mock
}

// MarkOnline mock
func (m *MockPresenceMirror) MarkOnline(ctx context.Context, participantID string) error {
	args := m.Called(ctx, participantID)
	return args.Error(0)
}

// MarkOffline mock
func (m *MockPresenceMirror) MarkOffline(ctx context.Context, participantID string, lastSeen time.Time) error {
	args := m.Called(ctx, participantID, lastSeen)
	return args.Error(0)
}

// IsOnline mock
func (m *MockPresenceMirror) IsOnline(ctx context.Context, participantID string) (bool, error) {
	args := m.Called(ctx, participantID)
	return args.Bool(0), args.Error(1)
}

// LastSeen mock
func (m *MockPresenceMirror) LastSeen(ctx context.Context, participantID string) (time.Time, error) {
	args := m.Called(ctx, participantID)
	return args.Get(0).(time.Time), args.Error(1)
}

// MockRoomRelay Mock RoomRelay
type MockRoomRelay struct {
	mock.Mock
}

// Publish mock relay publish
func (m *MockRoomRelay) Publish(ctx context.Context, env repository.RelayEnvelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

// Subscribe mock relay subscribe
func (m *MockRoomRelay) Subscribe(ctx context.Context, handler func(env repository.RelayEnvelope)) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}

// MockAuthenticator Mock Authenticator
type MockAuthenticator struct {
	mock.Mock
}

// Authenticate mock credential check
func (m *MockAuthenticator) Authenticate(ctx context.Context, credential string) (domain.Participant, error) {
	args := m.Called(ctx, credential)
	return args.Get(0).(domain.Participant), args.Error(1)
}
