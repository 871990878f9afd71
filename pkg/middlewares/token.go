package middlewares

import (
	"strings"

	t_token "course_messaging_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenParticipantID get participant form token, set c.locals name
	TokenParticipantID = "ParticipantID"
	//TokenRole get role form token, set c.locals name
	TokenRole = "role"
	//TokenCredential raw credential handed to the websocket gateway
	TokenCredential = "credential"
)

// Credential token from query, cookie or Authorization header, in that order
func Credential(c *fiber.Ctx) string {
	if tokenStr := c.Query(QueryToken); tokenStr != "" {
		return tokenStr
	}

	// 如果查詢參數中沒有 token，則嘗試從 Cookie 中獲取
	if tokenStr := c.Cookies(CookieToken); tokenStr != "" {
		return tokenStr
	}

	auth := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// JWTMiddleware validates the participant token of REST calls
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := Credential(c)

		// 如果仍然沒有 token，則返回未授權錯誤
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := t_token.ParseJWTWrapper(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}
		if !t_token.RoleType(claims.Role).Valid() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Role not allowed",
			})
		}

		c.Locals(TokenParticipantID, claims.ParticipantID)
		c.Locals(TokenRole, claims.Role)
		return c.Next()
	}
}

// ParticipantID participant set by JWTMiddleware
func ParticipantID(c *fiber.Ctx) (string, bool) {
	id, ok := c.Locals(TokenParticipantID).(string)
	return id, ok && id != ""
}
