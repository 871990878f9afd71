package repository

import (
	"context"
	"encoding/json"
	"strings"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// roomChannelPrefix 每個 room 一個 channel, chat:room:<roomKey>
const roomChannelPrefix = "chat:room:"

// RelayEnvelope 一次 room broadcast 跨 instance 轉送的內容
type RelayEnvelope struct {
	Origin  string          `json:"origin"`
	RoomKey string          `json:"room_key"`
	Except  string          `json:"except,omitempty"`
	Type    domain.Action   `json:"type"`
	Frame   json.RawMessage `json:"frame"`
	// message-received 時帶上, 遠端送達收件者後由遠端推進 delivered
	MessageID  string `json:"message_id,omitempty"`
	ReceiverID string `json:"receiver_id,omitempty"`
}

// RoomRelay cross-instance fan-out of room broadcasts
type RoomRelay interface {
	Publish(ctx context.Context, env RelayEnvelope) error
	// Subscribe 非阻塞, ctx 結束時關閉訂閱
	Subscribe(ctx context.Context, handler func(env RelayEnvelope)) error
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
	}
}

// RoomChannel channel name of a room
func RoomChannel(roomKey string) string {
	return roomChannelPrefix + roomKey
}

// Publish 將 envelope 序列化後, 發布到 room channel
func (r *RedisPubSub) Publish(ctx context.Context, env RelayEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, RoomChannel(env.RoomKey), data).Err()
}

// Subscribe 訂閱所有 room channel, 收到訊息後呼叫 handler 處理
func (r *RedisPubSub) Subscribe(ctx context.Context, handler func(env RelayEnvelope)) error {
	sub := r.client.PSubscribe(ctx, roomChannelPrefix+"*")
	// 確認訂閱成功再回傳, 避免啟動後前幾則 broadcast 漏接
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}

				var env RelayEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					logger.Log.Error("relay envelope decode failed", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				if env.RoomKey == "" {
					env.RoomKey = strings.TrimPrefix(m.Channel, roomChannelPrefix)
				}
				handler(env)
			case <-ctx.Done():
				logger.Log.Info("room relay subscription closed")
				return
			}
		}
	}()
	return nil
}
