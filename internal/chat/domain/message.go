package domain

import (
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageStatus delivery state of a message, sent -> delivered -> read
type MessageStatus string

const (
	// StatusSent persisted, not yet on any recipient socket
	StatusSent MessageStatus = "sent"
	// StatusDelivered fanned out to at least one recipient connection
	StatusDelivered MessageStatus = "delivered"
	// StatusRead explicitly acknowledged by the recipient
	StatusRead MessageStatus = "read"
)

// Rank position in the lifecycle, unknown status is 0
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// CanAdvanceTo true only when next is strictly later in the lifecycle
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

// Below statuses ranked lower than s, used as the update filter for forward-only transitions
func (s MessageStatus) Below() []MessageStatus {
	var out []MessageStatus
	for _, st := range []MessageStatus{StatusSent, StatusDelivered, StatusRead} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// AttachmentKind media kind of an attachment
type AttachmentKind string

const (
	// KindImage image attachment
	KindImage AttachmentKind = "image"
	// KindVideo video attachment
	KindVideo AttachmentKind = "video"
	// KindAudio audio attachment
	KindAudio AttachmentKind = "audio"
)

// Valid kind check
func (k AttachmentKind) Valid() bool {
	return k == KindImage || k == KindVideo || k == KindAudio
}

// Attachment reference to media hosted by the object store
type Attachment struct {
	URL  string         `bson:"url" json:"url"`
	Kind AttachmentKind `bson:"kind" json:"kind"`
}

// Message 一則 1 對 1 訊息, 建立後只有 status 會變動
type Message struct {
	ServerID        string        `bson:"_id" json:"serverId"`
	ClientMessageID string        `bson:"client_message_id" json:"clientMessageId"`
	ConversationID  string        `bson:"conversation_id" json:"conversationId"`
	SenderID        string        `bson:"sender_id" json:"senderId"`
	ReceiverID      string        `bson:"receiver_id" json:"receiverId"`
	Body            string        `bson:"body" json:"body"`
	Attachment      *Attachment   `bson:"attachment,omitempty" json:"attachment,omitempty"`
	Status          MessageStatus `bson:"status" json:"status"`
	CreatedAt       time.Time     `bson:"created_at" json:"createdAt"`
	DeliveredAt     *time.Time    `bson:"delivered_at,omitempty" json:"deliveredAt,omitempty"`
	ReadAt          *time.Time    `bson:"read_at,omitempty" json:"readAt,omitempty"`
}

// conversationSeparator 不會出現在 participant id 內
const conversationSeparator = ":"

// ConversationIDFor 兩個 participant id 排序後串接, 與誰先發起無關
func ConversationIDFor(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, conversationSeparator)
}

// Participants split a conversation id back into its two ids
func Participants(conversationID string) (string, string, bool) {
	parts := strings.SplitN(conversationID, conversationSeparator, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// PeerOf the other participant of the message
func (m *Message) PeerOf(participantID string) string {
	if m.SenderID == participantID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ValidateParticipantID ids are opaque but must be usable inside a conversation key
func ValidateParticipantID(id string) error {
	if strings.TrimSpace(id) == "" {
		return Validation("participant id is required")
	}
	if strings.Contains(id, conversationSeparator) {
		return Validation("participant id must not contain '" + conversationSeparator + "'")
	}
	return nil
}

// Validate checks a send candidate before anything is persisted
func (m *Message) Validate(maxBodyChars int) error {
	if strings.TrimSpace(m.ClientMessageID) == "" {
		return Validation("clientMessageId is required")
	}
	if err := ValidateParticipantID(m.SenderID); err != nil {
		return err
	}
	if strings.TrimSpace(m.ReceiverID) == "" {
		return Validation("receiverId is required")
	}
	if err := ValidateParticipantID(m.ReceiverID); err != nil {
		return err
	}
	if m.SenderID == m.ReceiverID {
		return Validation("receiverId must differ from sender")
	}

	hasBody := strings.TrimSpace(m.Body) != ""
	if !hasBody && m.Attachment == nil {
		return Validation("body or attachment is required")
	}
	if maxBodyChars > 0 && utf8.RuneCountInString(m.Body) > maxBodyChars {
		return Validation("body is too long")
	}
	if m.Attachment != nil {
		if !m.Attachment.Kind.Valid() {
			return Validation("attachment kind must be image, video or audio")
		}
		u, err := url.Parse(m.Attachment.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Validation("attachment url must be an absolute http(s) url")
		}
	}
	return nil
}

// Page history query, After / Before are server ids used as cursors.
// Before (or Tail) pages backward from the newest end, otherwise pages forward from After.
type Page struct {
	After  string
	Before string
	Tail   bool
	Limit  int
}

// Backward true when the page walks from the newest end
func (p Page) Backward() bool {
	return p.Before != "" || p.Tail
}

// Validate After only walks forward, so it cannot be mixed with a backward cursor
func (p Page) Validate() error {
	if p.After != "" && p.Before != "" {
		return Validation("after and before are mutually exclusive")
	}
	if p.After != "" && p.Tail {
		return Validation("after and tail are mutually exclusive")
	}
	return nil
}

const (
	// DefaultPageLimit history page size when none is given
	DefaultPageLimit = 50
	// MaxPageLimit upper bound for a history page
	MaxPageLimit = 200
)

// Normalize clamp limit into [1, MaxPageLimit]
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// MessagePage one page of history, always ascending by createdAt
type MessagePage struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"hasMore"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// ConversationSummary one row of the conversation list
type ConversationSummary struct {
	ConversationID string  `bson:"_id" json:"conversationId"`
	PeerID         string  `bson:"-" json:"peerId"`
	LastMessage    Message `bson:"last_message" json:"lastMessage"`
	UnreadCount    int     `bson:"unread_count" json:"unreadCount"`
}

// MessageLess total order used by every history listing
func MessageLess(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ServerID < b.ServerID
}
