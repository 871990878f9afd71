package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"course_messaging_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository durable message records, one document per message
type MessageRepository interface {
	// Insert 新增訊息, (conversation_id, client_message_id) 已存在時回傳 domain.ErrDuplicateMessage
	Insert(ctx context.Context, m *domain.Message) error
	FindByClientID(ctx context.Context, conversationID, clientMessageID string) (*domain.Message, error)
	FindByID(ctx context.Context, serverID string) (*domain.Message, error)
	// AdvanceStatus 只往前推進狀態, changed=false 代表已經在該狀態或之後
	AdvanceStatus(ctx context.Context, serverID string, to domain.MessageStatus, at time.Time) (*domain.Message, bool, error)
	ListByConversation(ctx context.Context, conversationID string, page domain.Page) (domain.MessagePage, error)
	ListConversations(ctx context.Context, participantID string) ([]domain.ConversationSummary, error)
	CountUnread(ctx context.Context, participantID string) (int, error)
}

// MessageCollection mongo collection name
const MessageCollection = "messages"

type mongoMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{
		coll: db.Collection(MessageCollection),
	}
}

// EnsureMessageIndexes 建立冪等鍵與查詢用索引, 服務啟動時呼叫
func EnsureMessageIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(MessageCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "client_message_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_conversation_client_id"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("conversation_history"),
		},
		{
			Keys:    bson.D{{Key: "receiver_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("receiver_status"),
		},
		{
			Keys:    bson.D{{Key: "sender_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("sender_recent"),
		},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (r *mongoMessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	_, err := r.coll.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicateMessage
	}
	return err
}

func (r *mongoMessageRepository) FindByClientID(ctx context.Context, conversationID, clientMessageID string) (*domain.Message, error) {
	return r.findOne(ctx, bson.M{"conversation_id": conversationID, "client_message_id": clientMessageID})
}

func (r *mongoMessageRepository) FindByID(ctx context.Context, serverID string) (*domain.Message, error) {
	return r.findOne(ctx, bson.M{"_id": serverID})
}

func (r *mongoMessageRepository) findOne(ctx context.Context, filter bson.M) (*domain.Message, error) {
	var m domain.Message
	if err := r.coll.FindOne(ctx, filter).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *mongoMessageRepository) AdvanceStatus(ctx context.Context, serverID string, to domain.MessageStatus, at time.Time) (*domain.Message, bool, error) {
	set := bson.M{"status": to}
	switch to {
	case domain.StatusDelivered:
		set["delivered_at"] = at
	case domain.StatusRead:
		set["read_at"] = at
	}

	// 條件更新: 只有目前狀態排在 to 之前才會寫入, 亂序的 ack 自然變成 no-op
	filter := bson.M{"_id": serverID, "status": bson.M{"$in": to.Below()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m domain.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&m)
	if err == nil {
		return &m, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	current, err := r.FindByID(ctx, serverID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *mongoMessageRepository) ListByConversation(ctx context.Context, conversationID string, page domain.Page) (domain.MessagePage, error) {
	page = page.Normalize()
	filter := bson.M{"conversation_id": conversationID}

	cursorID := page.After
	if page.Backward() {
		cursorID = page.Before
	}
	if cursorID != "" {
		cur, err := r.FindByID(ctx, cursorID)
		if err != nil {
			return domain.MessagePage{}, err
		}
		if cur.ConversationID != conversationID {
			return domain.MessagePage{}, domain.Validation("cursor does not belong to this conversation")
		}
		op := "$gt"
		if page.Backward() {
			op = "$lt"
		}
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{op: cur.CreatedAt}},
			bson.M{"created_at": cur.CreatedAt, "_id": bson.M{op: cur.ServerID}},
		}
	}

	dir := 1
	if page.Backward() {
		dir = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}).
		SetLimit(int64(page.Limit + 1))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return domain.MessagePage{}, err
	}
	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return domain.MessagePage{}, err
	}

	return buildPage(msgs, page), nil
}

// buildPage msgs 是查詢方向的順序且最多 limit+1 筆, 多出的那筆只用來判斷 hasMore
func buildPage(msgs []domain.Message, page domain.Page) domain.MessagePage {
	hasMore := len(msgs) > page.Limit
	if hasMore {
		msgs = msgs[:page.Limit]
	}
	if page.Backward() {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	out := domain.MessagePage{Messages: msgs, HasMore: hasMore}
	if hasMore {
		if page.Backward() {
			out.NextCursor = msgs[0].ServerID
		} else {
			out.NextCursor = msgs[len(msgs)-1].ServerID
		}
	}
	return out
}

func (r *mongoMessageRepository) ListConversations(ctx context.Context, participantID string) ([]domain.ConversationSummary, error) {
	pipeline := mongo.Pipeline{
		// 1. 參與者收發的所有訊息
		bson.D{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": participantID},
			bson.M{"receiver_id": participantID},
		}}}},
		// 2. 新的在前, $first 就是最後一則
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		// 3. 依 conversation 分組, 同時計算該參與者的未讀數
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversation_id"},
			{Key: "last_message", Value: bson.M{"$first": "$$ROOT"}},
			{Key: "unread_count", Value: bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$receiver_id", participantID}},
					bson.M{"$ne": bson.A{"$status", string(domain.StatusRead)}},
				}},
				1,
				0,
			}}}},
		}}},
		// 4. 最近有訊息的對話在前
		bson.D{{Key: "$sort", Value: bson.D{{Key: "last_message.created_at", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate error: %w", err)
	}

	var results []domain.ConversationSummary
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("cursor All error: %w", err)
	}
	for i := range results {
		results[i].PeerID = results[i].LastMessage.PeerOf(participantID)
	}
	return results, nil
}

func (r *mongoMessageRepository) CountUnread(ctx context.Context, participantID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"receiver_id": participantID,
		"status":      bson.M{"$ne": domain.StatusRead},
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
