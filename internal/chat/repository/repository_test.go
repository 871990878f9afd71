package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/pkg/database"
	"course_messaging_service/pkg/logger"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRabbitRepo struct {
	mock.Mock
}

func (m *mockRabbitRepo) GetRabbit() *amqp.Channel {
	return nil
}

func (m *mockRabbitRepo) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

type mockProfileCache struct {
	mock.Mock
}

var _ database.RedisRepository[domain.Profile] = (*mockProfileCache)(nil)

func (m *mockProfileCache) Set(ctx context.Context, key string, value domain.Profile, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *mockProfileCache) Get(ctx context.Context, key string) (domain.Profile, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.Profile), args.Error(1)
}

func (m *mockProfileCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockProfileCache) GetTTL(ctx context.Context, key string) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

func (m *mockProfileCache) ExtendTTL(ctx context.Context, key string, ttl time.Duration) error {
	return m.Called(ctx, key, ttl).Error(0)
}

type stubDirectory struct {
	profiles map[string]domain.Profile
	asked    [][]string
	err      error
}

func (d *stubDirectory) Lookup(_ context.Context, ids []string) (map[string]domain.Profile, error) {
	d.asked = append(d.asked, ids)
	if d.err != nil {
		return nil, d.err
	}
	out := map[string]domain.Profile{}
	for _, id := range ids {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestRabbitNoticeQueue_Publish(t *testing.T) {
	rabbit := new(mockRabbitRepo)
	q := NewRabbitNoticeQueue(rabbit, "")

	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	notice := domain.OfflineNotice{
		MessageID:      "m-1",
		ConversationID: "instructor-1:learner-1",
		SenderID:       "learner-1",
		ReceiverID:     "instructor-1",
		Preview:        "hi",
		CreatedAt:      created,
	}
	rabbit.On("Publish", "", domain.OfflineNoticeQueue, false, false, mock.MatchedBy(func(p amqp.Publishing) bool {
		var got domain.OfflineNotice
		if err := json.Unmarshal(p.Body, &got); err != nil {
			return false
		}
		return p.DeliveryMode == amqp.Persistent &&
			p.MessageId == "m-1" &&
			p.ContentType == "application/json" &&
			got.ReceiverID == "instructor-1"
	})).Return(nil).Once()

	require.NoError(t, q.Publish(context.Background(), notice))
	rabbit.AssertExpectations(t)
}

func TestRabbitNoticeQueue_PublishError(t *testing.T) {
	rabbit := new(mockRabbitRepo)
	q := NewRabbitNoticeQueue(rabbit, "custom.queue")
	rabbit.On("Publish", "", "custom.queue", false, false, mock.Anything).Return(amqp.ErrClosed)

	err := q.Publish(context.Background(), domain.OfflineNotice{MessageID: "m-2"})
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestCachedDirectory_MixesCacheAndSource(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	cache := new(mockProfileCache)
	next := &stubDirectory{profiles: map[string]domain.Profile{
		"instructor-1": {ID: "instructor-1", DisplayName: "Mei"},
	}}
	dir := NewCachedDirectory(next, cache, 0)

	cache.On("Get", ctx, "learner-1").Return(domain.Profile{ID: "learner-1", DisplayName: "Kai"}, nil)
	cache.On("Get", ctx, "instructor-1").Return(domain.Profile{}, database.ErrCacheMiss)
	cache.On("Get", ctx, "ghost").Return(domain.Profile{}, database.ErrCacheMiss)
	cache.On("Set", ctx, "instructor-1", mock.Anything, 10*time.Minute).Return(nil).Once()

	got, err := dir.Lookup(ctx, []string{"learner-1", "instructor-1", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, "Kai", got["learner-1"].DisplayName)
	assert.Equal(t, "Mei", got["instructor-1"].DisplayName)
	assert.NotContains(t, got, "ghost")
	assert.Equal(t, [][]string{{"instructor-1", "ghost"}}, next.asked)
	cache.AssertExpectations(t)
}

func TestCachedDirectory_CacheDownFallsThrough(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	cache := new(mockProfileCache)
	next := &stubDirectory{profiles: map[string]domain.Profile{"learner-1": {ID: "learner-1"}}}
	dir := NewCachedDirectory(next, cache, time.Minute)

	cache.On("Get", ctx, "learner-1").Return(domain.Profile{}, errors.New("connection refused"))
	cache.On("Set", ctx, "learner-1", mock.Anything, time.Minute).Return(errors.New("connection refused"))

	got, err := dir.Lookup(ctx, []string{"learner-1"})
	require.NoError(t, err)
	assert.Contains(t, got, "learner-1")
}

func TestCachedDirectory_SourceError(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()
	cache := new(mockProfileCache)
	next := &stubDirectory{err: errors.New("pg down")}
	dir := NewCachedDirectory(next, cache, time.Minute)
	cache.On("Get", ctx, "learner-1").Return(domain.Profile{}, database.ErrCacheMiss)

	_, err := dir.Lookup(ctx, []string{"learner-1"})
	assert.EqualError(t, err, "pg down")
}

func TestMemoryMessageRepository_CursorChecks(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()

	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	a := &domain.Message{ServerID: "a", ClientMessageID: "c-a", ConversationID: domain.ConversationIDFor("l", "i"), SenderID: "l", ReceiverID: "i", Status: domain.StatusSent, CreatedAt: at}
	b := &domain.Message{ServerID: "b", ClientMessageID: "c-b", ConversationID: domain.ConversationIDFor("x", "y"), SenderID: "x", ReceiverID: "y", Status: domain.StatusSent, CreatedAt: at}
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.Insert(ctx, b))
	assert.ErrorIs(t, repo.Insert(ctx, &domain.Message{ServerID: "a2", ClientMessageID: "c-a", ConversationID: a.ConversationID}), domain.ErrDuplicateMessage)

	_, err := repo.ListByConversation(ctx, a.ConversationID, domain.Page{After: "missing"})
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	_, err = repo.ListByConversation(ctx, a.ConversationID, domain.Page{After: "b"})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	// 回傳的是複本, 外部修改不影響儲存內容
	got, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	got.Body = "changed"
	again, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, again.Body)
}

func TestMemoryMessageRepository_OutOfOrderInsert(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessageRepository()
	conv := domain.ConversationIDFor("l", "i")
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	// 寫入順序跟時間順序不同
	for _, offset := range []int{3, 1, 4, 0, 2} {
		require.NoError(t, repo.Insert(ctx, &domain.Message{
			ServerID:        fmt.Sprintf("s%d", offset),
			ClientMessageID: fmt.Sprintf("c%d", offset),
			ConversationID:  conv,
			SenderID:        "l",
			ReceiverID:      "i",
			Status:          domain.StatusSent,
			CreatedAt:       base.Add(time.Duration(offset) * time.Second),
		}))
	}

	all, err := repo.ListByConversation(ctx, conv, domain.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1", "s2", "s3", "s4"}, pageIDs(all))

	first, err := repo.ListByConversation(ctx, conv, domain.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1"}, pageIDs(first))

	next, err := repo.ListByConversation(ctx, conv, domain.Page{After: first.NextCursor, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s3"}, pageIDs(next))

	tail, err := repo.ListByConversation(ctx, conv, domain.Page{Tail: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s4"}, pageIDs(tail))

	older, err := repo.ListByConversation(ctx, conv, domain.Page{Before: tail.NextCursor, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1", "s2"}, pageIDs(older))
	assert.False(t, older.HasMore)
}

func pageIDs(p domain.MessagePage) []string {
	ids := make([]string, 0, len(p.Messages))
	for _, m := range p.Messages {
		ids = append(ids, m.ServerID)
	}
	return ids
}
