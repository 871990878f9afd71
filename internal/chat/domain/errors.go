package domain

import (
	"errors"
	"fmt"
)

// ErrorCode error taxonomy reported to clients
type ErrorCode string

const (
	// CodeValidation bad input, nothing was mutated
	CodeValidation ErrorCode = "validation"
	// CodePersistence store unavailable or write failed, client may retry with the same clientMessageId
	CodePersistence ErrorCode = "persistence"
	// CodeTransport connection level failure
	CodeTransport ErrorCode = "transport"
	// CodeAuth credential rejected, connection is closed
	CodeAuth ErrorCode = "auth"
	// CodeNotFound unknown message / resource
	CodeNotFound ErrorCode = "not_found"
)

var (
	// ErrMessageNotFound no message with that server id
	ErrMessageNotFound = errors.New("message not found")
	// ErrDuplicateMessage (conversationId, clientMessageId) already stored
	ErrDuplicateMessage = errors.New("duplicate client message id")
	// ErrNotRecipient only the receiver may acknowledge a message
	ErrNotRecipient = errors.New("only the receiver may acknowledge this message")
	// ErrNotJoined connection has not joined the conversation room
	ErrNotJoined = errors.New("join a conversation first")
	// ErrConnectionClosed connection already closed
	ErrConnectionClosed = errors.New("connection closed")
	// ErrUnauthenticated missing or invalid credential
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ChatError carries a taxonomy code together with a client-facing message
type ChatError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// Validation new validation error
func Validation(msg string) error {
	return &ChatError{Code: CodeValidation, Message: msg}
}

// Persistence wrap a store failure
func Persistence(err error) error {
	return &ChatError{Code: CodePersistence, Message: "message store unavailable", Err: err}
}

// Auth wrap a credential failure
func Auth(err error) error {
	return &ChatError{Code: CodeAuth, Message: "authentication failed", Err: err}
}

// NotFound wrap a not found failure
func NotFound(err error) error {
	return &ChatError{Code: CodeNotFound, Message: err.Error(), Err: err}
}

// CodeOf classify any error, unknown errors count as persistence
func CodeOf(err error) ErrorCode {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrMessageNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNotRecipient), errors.Is(err, ErrNotJoined):
		return CodeValidation
	case errors.Is(err, ErrUnauthenticated):
		return CodeAuth
	case errors.Is(err, ErrConnectionClosed):
		return CodeTransport
	}
	return CodePersistence
}

// MessageOf client-facing text, internal causes are not leaked
func MessageOf(err error) string {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Message
	}
	switch CodeOf(err) {
	case CodePersistence:
		return "message store unavailable"
	}
	return err.Error()
}
