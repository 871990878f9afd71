package main

import (
	"course_messaging_service/internal/chat/router"

	"github.com/gofiber/fiber/v2"
)

// 此程式只用於 init swagger
// swag init -g main.go -o ./cmd/chat_service/docs
func main() {
	// 创建 Fiber 应用
	app := fiber.New()

	// 注册路由
	router.RegisterRoutes(app, router.NewChatHandler(nil, nil, nil), nil, nil)
}
