package app

import (
	"testing"

	"course_messaging_service/internal/chat/repository"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsDropped(t *testing.T) {
	store := NewMessageStore(repository.NewMemoryMessageRepository(), nil, nil, 4000)
	router := NewConversationRouter(nil)

	assert.Same(t, discardMetrics, store.metrics)
	assert.Same(t, discardMetrics, router.metrics)
	assert.Nil(t, discardMetrics.Registry)
}

func TestMetrics_SharedInstanceSeesEveryComponent(t *testing.T) {
	metrics := NewMetrics()
	router := NewConversationRouter(metrics)
	router.Register(NewClient("c-1", "learner-1", 4))

	assert.NoError(t, router.Join("instructor-1:learner-1", "c-1"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JoinedRooms))

	n, err := testutil.GatherAndCount(metrics.Registry, "chat_room_memberships")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
