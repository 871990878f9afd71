package app

import (
	"context"
	"errors"
	"testing"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthenticator_ValidToken(t *testing.T) {
	jwtStr, err := token.GenerateJWT("inst-42", string(token.RoleInstructor), "course-platform")
	require.NoError(t, err)

	p, err := NewJWTAuthenticator().Authenticate(context.Background(), jwtStr)
	require.NoError(t, err)
	assert.Equal(t, "inst-42", p.ID)
	assert.Equal(t, domain.RoleInstructor, p.Role)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	adminToken, err := token.GenerateJWT("admin-1", "admin", "course-platform")
	require.NoError(t, err)
	colonToken, err := token.GenerateJWT("a:b", string(token.RoleLearner), "course-platform")
	require.NoError(t, err)

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"unknown role":   adminToken,
		"bad identifier": colonToken,
	}
	auth := NewJWTAuthenticator()
	for name, credential := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Authenticate(context.Background(), credential)
			require.Error(t, err)
			assert.Equal(t, domain.CodeAuth, domain.CodeOf(err))
		})
	}
}

func TestJWTAuthenticator_UsesParseWrapper(t *testing.T) {
	orig := token.ParseJWTFunc
	defer func() { token.ParseJWTFunc = orig }()

	token.ParseJWTFunc = func(string) (*token.Claims, error) {
		return nil, errors.New("token expired")
	}
	_, err := NewJWTAuthenticator().Authenticate(context.Background(), "whatever")
	assert.Equal(t, domain.CodeAuth, domain.CodeOf(err))

	token.ParseJWTFunc = func(string) (*token.Claims, error) {
		return &token.Claims{ParticipantID: "learner-7", Role: "learner"}, nil
	}
	p, err := NewJWTAuthenticator().Authenticate(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, "learner-7", p.ID)
}
