package domain

import "time"

const (
	// OfflineNoticeQueue rabbitMQ queue for messages that reached no recipient socket
	OfflineNoticeQueue = "chat.offline_notice"
	// MessageEventTopic kafka topic for the message event log
	MessageEventTopic = "chat.message-events"
)

// OfflineNotice queued when a message stays sent
type OfflineNotice struct {
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	ReceiverID     string         `json:"receiver_id"`
	Preview        string         `json:"preview"`
	AttachmentKind AttachmentKind `json:"attachment_kind,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

const previewChars = 80

// NewOfflineNotice build notice from a stored message
func NewOfflineNotice(m Message) OfflineNotice {
	n := OfflineNotice{
		MessageID:      m.ServerID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Preview:        m.Body,
		CreatedAt:      m.CreatedAt,
	}
	if r := []rune(n.Preview); len(r) > previewChars {
		n.Preview = string(r[:previewChars]) + "…"
	}
	if m.Attachment != nil {
		n.AttachmentKind = m.Attachment.Kind
	}
	return n
}

// Notification inbox entry written by the notify worker
type Notification struct {
	ID             string         `bson:"_id" json:"id"`
	ParticipantID  string         `bson:"participant_id" json:"participantId"`
	ConversationID string         `bson:"conversation_id" json:"conversationId"`
	MessageID      string         `bson:"message_id" json:"messageId"`
	SenderID       string         `bson:"sender_id" json:"senderId"`
	SenderName     string         `bson:"sender_name" json:"senderName"`
	Preview        string         `bson:"preview" json:"preview"`
	AttachmentKind AttachmentKind `bson:"attachment_kind,omitempty" json:"attachmentKind,omitempty"`
	CreatedAt      time.Time      `bson:"created_at" json:"createdAt"`
}

// MessageEventType kind of entry in the message event log
type MessageEventType string

const (
	// EventAppended new message stored
	EventAppended MessageEventType = "appended"
	// EventDelivered status moved to delivered
	EventDelivered MessageEventType = "delivered"
	// EventRead status moved to read
	EventRead MessageEventType = "read"
)

// MessageEvent one entry of the message event log
type MessageEvent struct {
	Type    MessageEventType `json:"type"`
	Message Message          `json:"message"`
	At      time.Time        `json:"at"`
}
