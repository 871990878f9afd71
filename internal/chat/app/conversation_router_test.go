package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomKeyFor_Commutative(t *testing.T) {
	assert.Equal(t, RoomKeyFor("learner-9", "inst-1"), RoomKeyFor("inst-1", "learner-9"))
	assert.NotEqual(t, RoomKeyFor("a", "b"), RoomKeyFor("a", "c"))
}

func TestRouter_JoinRequiresLiveConnection(t *testing.T) {
	r := NewConversationRouter(nil)

	err := r.Join("a:b", "conn-x")
	assert.ErrorIs(t, err, ErrUnknownConnection)

	c := NewClient("conn-x", "a", 4)
	r.Register(c)
	require.NoError(t, r.Join("a:b", "conn-x"))
	require.NoError(t, r.Join("a:b", "conn-x"))
	assert.Equal(t, []string{"conn-x"}, r.Members("a:b"))

	c.Close()
	assert.ErrorIs(t, r.Join("a:c", "conn-x"), ErrUnknownConnection)
}

func TestRouter_BroadcastSkipsSenderAndCountsReach(t *testing.T) {
	r := NewConversationRouter(nil)
	a1 := NewClient("a1", "a", 4)
	a2 := NewClient("a2", "a", 4)
	b1 := NewClient("b1", "b", 4)
	for _, c := range []*Client{a1, a2, b1} {
		r.Register(c)
		require.NoError(t, r.Join("a:b", c.ConnID))
	}

	receipt := r.Broadcast("a:b", []byte(`{"type":"x"}`), "a1")
	assert.Equal(t, 1, receipt.Reached["a"])
	assert.True(t, receipt.ReachedParticipant("b"))
	assert.Len(t, a1.Outbound(), 0)
	assert.Len(t, a2.Outbound(), 1)
	assert.Len(t, b1.Outbound(), 1)
}

func TestRouter_BroadcastNeverBlocksOnFullQueue(t *testing.T) {
	r := NewConversationRouter(nil)
	slow := NewClient("slow", "b", 1)
	r.Register(slow)
	require.NoError(t, r.Join("a:b", "slow"))

	first := r.Broadcast("a:b", []byte("1"), "")
	second := r.Broadcast("a:b", []byte("2"), "")

	assert.True(t, first.ReachedParticipant("b"))
	assert.False(t, second.ReachedParticipant("b"))
	assert.Equal(t, 1, second.Dropped)
}

func TestRouter_BroadcastSkipsClosedClient(t *testing.T) {
	r := NewConversationRouter(nil)
	c := NewClient("c", "b", 4)
	r.Register(c)
	require.NoError(t, r.Join("a:b", "c"))
	c.Close()

	receipt := r.Broadcast("a:b", []byte("x"), "")
	assert.False(t, receipt.ReachedParticipant("b"))
	assert.Equal(t, 0, receipt.Dropped)
	assert.False(t, r.HasParticipant("a:b", "b"))
}

func TestRouter_UnregisterLeavesEveryRoom(t *testing.T) {
	r := NewConversationRouter(nil)
	c := NewClient("c", "inst", 4)
	other := NewClient("o", "l1", 4)
	r.Register(c)
	r.Register(other)
	require.NoError(t, r.Join("inst:l1", "c"))
	require.NoError(t, r.Join("inst:l2", "c"))
	require.NoError(t, r.Join("inst:l1", "o"))

	assert.ElementsMatch(t, []string{"inst:l1", "inst:l2"}, r.RoomsNaming("inst"))
	assert.Equal(t, []string{"inst:l2"}, r.RoomsNaming("l2"))

	left := r.Unregister("c")
	assert.ElementsMatch(t, []string{"inst:l1", "inst:l2"}, left)
	assert.Empty(t, r.RoomsOf("c"))
	assert.Equal(t, []string{"o"}, r.Members("inst:l1"))
	assert.Empty(t, r.Members("inst:l2"))
	// l1 還在房間裡, 房間留著
	assert.Equal(t, []string{"inst:l1"}, r.RoomsNaming("inst"))
	assert.Empty(t, r.RoomsNaming("l2"))

	// 斷線後不能再加入
	assert.ErrorIs(t, r.Join("inst:l1", "c"), ErrUnknownConnection)
}

func TestRouter_LeaveSingleRoom(t *testing.T) {
	r := NewConversationRouter(nil)
	c := NewClient("c", "a", 4)
	r.Register(c)
	require.NoError(t, r.Join("a:b", "c"))
	require.NoError(t, r.Join("a:c", "c"))

	r.Leave("a:b", "c")
	r.Leave("a:b", "c")
	assert.Equal(t, []string{"a:c"}, r.RoomsOf("c"))
	assert.False(t, r.HasParticipant("a:b", "a"))
	assert.True(t, r.HasParticipant("a:c", "a"))
}

func TestRouter_ConcurrentJoinBroadcastLeave(t *testing.T) {
	r := NewConversationRouter(nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		c := NewClient(string(rune('a'+i)), "p", 256)
		r.Register(c)
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.Join("room", c.ConnID)
				r.Broadcast("room", []byte("x"), c.ConnID)
				r.Leave("room", c.ConnID)
			}
			r.Unregister(c.ConnID)
		}(c)
	}
	wg.Wait()

	assert.Empty(t, r.Members("room"))
}
