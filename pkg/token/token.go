package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleType participant role carried in the token
type RoleType string

const (
	// RoleLearner course learner
	RoleLearner RoleType = "learner"
	// RoleInstructor course instructor
	RoleInstructor RoleType = "instructor"
)

// Valid only learner / instructor may open a chat session
func (r RoleType) Valid() bool {
	return r == RoleLearner || r == RoleInstructor
}

// Claims structure for custom claims in JWT
type Claims struct {
	ParticipantID string `json:"user_id"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// Secret Key for JWT signing and validation
var (
	JWTSecret       = []byte("secure_secret_key")
	tokenExpiration = 60 * time.Minute
)

// SetSecret 由設定檔覆寫簽章金鑰
func SetSecret(secret string) {
	if secret != "" {
		JWTSecret = []byte(secret)
	}
}

// GenerateJWT generates a JWT token, 發 token 屬於帳號系統, 這裡只給本機與測試使用
func GenerateJWT(participantID, role, issuer string) (string, error) {
	claims := Claims{
		ParticipantID: participantID,
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(JWTSecret)
}

// ParseJWT parses a JWT and extracts the Claims
func ParseJWT(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ParticipantID == "" {
		return nil, errors.New("token without participant id")
	}

	return claims, nil
}
