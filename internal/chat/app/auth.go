package app

import (
	"context"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/pkg/token"
)

// Authenticator resolve a credential into a participant
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (domain.Participant, error)
}

// JWTAuthenticator HS256 tokens issued by the account system
type JWTAuthenticator struct{}

// NewJWTAuthenticator create JWTAuthenticator, secret comes from token.SetSecret
func NewJWTAuthenticator() *JWTAuthenticator {
	return &JWTAuthenticator{}
}

// Authenticate errors are always CodeAuth
func (a *JWTAuthenticator) Authenticate(_ context.Context, credential string) (domain.Participant, error) {
	if credential == "" {
		return domain.Participant{}, domain.Auth(domain.ErrUnauthenticated)
	}

	claims, err := token.ParseJWTWrapper(credential)
	if err != nil {
		return domain.Participant{}, domain.Auth(err)
	}
	if err := domain.ValidateParticipantID(claims.ParticipantID); err != nil {
		return domain.Participant{}, domain.Auth(err)
	}
	if !token.RoleType(claims.Role).Valid() {
		return domain.Participant{}, domain.Auth(domain.ErrUnauthenticated)
	}

	return domain.Participant{ID: claims.ParticipantID, Role: domain.Role(claims.Role)}, nil
}
