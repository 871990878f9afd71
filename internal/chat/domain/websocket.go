package domain

import (
	"encoding/json"
	"time"
)

// Action websocket event type
type Action string

const (
	// Join C->S join{peerId}
	Join Action = "join"
	// Leave C->S leave{peerId}
	Leave Action = "leave"
	// Send C->S send{clientMessageId, receiverId, body?, attachmentUrl?, attachmentKind?}
	Send Action = "send"
	// ReadAck C->S read-ack{messageId}
	ReadAck Action = "read-ack"
	// Logout C->S explicit close
	Logout Action = "logout"

	// Joined S->C join accepted
	Joined Action = "joined"
	// SendAck S->C to sender only
	SendAck Action = "send-ack"
	// SendFailure S->C to sender only, store rejected the message
	SendFailure Action = "send-failure"
	// MessageReceived S->C to room members
	MessageReceived Action = "message-received"
	// StatusChanged S->C to room members
	StatusChanged Action = "status-changed"
	// PresenceChanged S->C to rooms containing the participant
	PresenceChanged Action = "presence-changed"
	// Error S->C to the originating connection only
	Error Action = "error"
)

// WSRequest inbound websocket frame
type WSRequest struct {
	Type    Action          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSResponse outbound websocket frame
type WSResponse struct {
	Type    Action      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Encode marshal once, the same bytes go to every room member
func (r WSResponse) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// JoinPayload join / leave
type JoinPayload struct {
	PeerID string `json:"peerId"`
}

// SendPayload send
type SendPayload struct {
	ClientMessageID string         `json:"clientMessageId"`
	ReceiverID      string         `json:"receiverId"`
	Body            string         `json:"body,omitempty"`
	AttachmentURL   string         `json:"attachmentUrl,omitempty"`
	AttachmentKind  AttachmentKind `json:"attachmentKind,omitempty"`
}

// Candidate build the message to append
func (p SendPayload) Candidate(senderID string) Message {
	m := Message{
		ClientMessageID: p.ClientMessageID,
		SenderID:        senderID,
		ReceiverID:      p.ReceiverID,
		Body:            p.Body,
	}
	if p.AttachmentURL != "" || p.AttachmentKind != "" {
		m.Attachment = &Attachment{URL: p.AttachmentURL, Kind: p.AttachmentKind}
	}
	return m
}

// ReadAckPayload read-ack
type ReadAckPayload struct {
	MessageID string `json:"messageId"`
}

// JoinedPayload joined
type JoinedPayload struct {
	ConversationID string `json:"conversationId"`
	PeerID         string `json:"peerId"`
	PeerOnline     bool   `json:"peerOnline"`
}

// SendAckPayload send-ack
type SendAckPayload struct {
	ClientMessageID string        `json:"clientMessageId"`
	ServerID        string        `json:"serverId"`
	CreatedAt       time.Time     `json:"createdAt"`
	Status          MessageStatus `json:"status"`
}

// SendFailurePayload send-failure
type SendFailurePayload struct {
	ClientMessageID string    `json:"clientMessageId"`
	Code            ErrorCode `json:"code"`
	Message         string    `json:"message"`
}

// StatusChangedPayload status-changed
type StatusChangedPayload struct {
	MessageID      string        `json:"messageId"`
	ConversationID string        `json:"conversationId"`
	Status         MessageStatus `json:"status"`
}

// PresenceChangedPayload presence-changed
type PresenceChangedPayload struct {
	ParticipantID string    `json:"participantId"`
	Online        bool      `json:"online"`
	LastSeen      time.Time `json:"lastSeen"`
}

// ErrorPayload error
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewErrorResponse error event for the originating connection
func NewErrorResponse(err error) WSResponse {
	return WSResponse{Type: Error, Payload: ErrorPayload{Code: CodeOf(err), Message: MessageOf(err)}}
}
