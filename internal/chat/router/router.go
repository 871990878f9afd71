package router

import (
	"context"

	"course_messaging_service/internal/chat/app"
	"course_messaging_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 註冊 chat service 的 REST / websocket 路由
// @title Course Messaging Service API
// @version 1.0
// @description Real-time messaging between learners and instructors
// @host localhost:8080
// @BasePath /
func RegisterRoutes(r *fiber.App, chatHandler *ChatHandler, gateway *app.Gateway, metrics *app.Metrics) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/", ConnectCheck)
	r.Post("/debug", DebugLogFlag)
	r.Get("/healthz", chatHandler.Health)
	if metrics != nil {
		r.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}

	// 認證交給 gateway, 失敗時升級後用 close code 回報
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals(middlewares.TokenCredential, middlewares.Credential(c))
		return c.Next()
	})
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		credential, _ := c.Locals(middlewares.TokenCredential).(string)
		gateway.HandleConnection(context.Background(), c, credential)
	}))

	api := r.Group("/api/v1", middlewares.JWTMiddleware())
	api.Get("/conversations", chatHandler.ListConversations)
	api.Get("/conversations/:peerId/messages", chatHandler.History)
	api.Get("/unread", chatHandler.Unread)
	api.Get("/presence/:participantId", chatHandler.Presence)
	api.Post("/attachments/slots", chatHandler.RequestUploadSlot)
	api.Get("/notifications", chatHandler.Notifications)
}
