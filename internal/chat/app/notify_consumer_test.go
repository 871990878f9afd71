package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"course_messaging_service/internal/chat/domain"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingAcknowledger captures what the consumer did with each delivery
type recordingAcknowledger struct {
	mu      sync.Mutex
	acks    []uint64
	nacks   []uint64
	requeue []bool
}

func (r *recordingAcknowledger) Ack(tag uint64, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, tag)
	return nil
}

func (r *recordingAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nacks = append(r.nacks, tag)
	r.requeue = append(r.requeue, requeue)
	return nil
}

func (r *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return r.Nack(tag, false, requeue)
}

func noticeBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(domain.OfflineNotice{
		MessageID:      "m-1",
		ConversationID: "instructor-1:learner-1",
		SenderID:       "learner-1",
		ReceiverID:     "instructor-1",
		Preview:        "when is the next live session?",
		CreatedAt:      time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return body
}

func TestNoticeConsumer_StoresNotification(t *testing.T) {
	notifications := new(MockNotificationRepository)
	throttle := new(MockNoticeThrottle)
	directory := new(MockDirectory)

	throttle.On("Allow", mock.Anything, "instructor-1:instructor-1:learner-1", 5*time.Minute).Return(true, nil)
	directory.On("Lookup", mock.Anything, []string{"learner-1"}).
		Return(map[string]domain.Profile{"learner-1": {ID: "learner-1", DisplayName: "Mei"}}, nil)
	notifications.On("Insert", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.ParticipantID == "instructor-1" &&
			n.MessageID == "m-1" &&
			n.SenderName == "Mei" &&
			n.ID != ""
	})).Return(nil).Once()

	c := NewNoticeConsumer(nil, "", notifications, throttle, directory, 0)
	require.NoError(t, c.Process(context.Background(), noticeBody(t)))

	notifications.AssertExpectations(t)
	throttle.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestNoticeConsumer_ThrottledNoticeIsDropped(t *testing.T) {
	notifications := new(MockNotificationRepository)
	throttle := new(MockNoticeThrottle)
	throttle.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

	c := NewNoticeConsumer(nil, "", notifications, throttle, nil, time.Minute)
	require.NoError(t, c.Process(context.Background(), noticeBody(t)))
	notifications.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestNoticeConsumer_ThrottleDownStillStores(t *testing.T) {
	notifications := new(MockNotificationRepository)
	throttle := new(MockNoticeThrottle)
	throttle.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	notifications.On("Insert", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		// 沒有名片時用 id 當名稱
		return n.SenderName == "learner-1"
	})).Return(nil).Once()

	c := NewNoticeConsumer(nil, "", notifications, throttle, nil, time.Minute)
	require.NoError(t, c.Process(context.Background(), noticeBody(t)))
	notifications.AssertExpectations(t)
}

func TestNoticeConsumer_InsertFailureReleasesThrottle(t *testing.T) {
	notifications := new(MockNotificationRepository)
	throttle := new(MockNoticeThrottle)
	throttle.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	throttle.On("Release", mock.Anything, "instructor-1:instructor-1:learner-1").Return(nil).Once()
	notifications.On("Insert", mock.Anything, mock.Anything).Return(errors.New("mongo down"))

	c := NewNoticeConsumer(nil, "", notifications, throttle, nil, time.Minute)
	err := c.Process(context.Background(), noticeBody(t))
	require.Error(t, err)
	assert.False(t, errors.Is(err, errMalformedNotice))
	throttle.AssertExpectations(t)
}

func TestNoticeConsumer_Malformed(t *testing.T) {
	c := NewNoticeConsumer(nil, "", new(MockNotificationRepository), nil, nil, time.Minute)

	err := c.Process(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, errMalformedNotice)

	err = c.Process(context.Background(), []byte(`{"message_id":"m-1"}`))
	assert.ErrorIs(t, err, errMalformedNotice)
}

func TestNoticeConsumer_AckNackPolicy(t *testing.T) {
	notifications := new(MockNotificationRepository)
	notifications.On("Insert", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.MessageID == "m-1"
	})).Return(nil).Once()
	notifications.On("Insert", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.MessageID == "m-2"
	})).Return(errors.New("mongo down")).Once()

	c := NewNoticeConsumer(nil, "", notifications, nil, nil, time.Minute)
	c.retryDelay = 10 * time.Millisecond

	failing := domain.OfflineNotice{MessageID: "m-2", ConversationID: "a:b", SenderID: "a", ReceiverID: "b"}
	failingBody, err := json.Marshal(failing)
	require.NoError(t, err)

	ack := &recordingAcknowledger{}
	msgs := make(chan amqp.Delivery, 3)
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: noticeBody(t)}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{")}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: failingBody}
	close(msgs)

	c.consume(context.Background(), msgs)

	assert.Equal(t, []uint64{1}, ack.acks)
	assert.Equal(t, []uint64{2, 3}, ack.nacks)
	assert.Equal(t, []bool{false, true}, ack.requeue)
	notifications.AssertExpectations(t)
}

func TestNoticeConsumer_StopsOnContextCancel(t *testing.T) {
	c := NewNoticeConsumer(nil, "", new(MockNotificationRepository), nil, nil, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		c.consume(ctx, make(chan amqp.Delivery))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
