package router

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"course_messaging_service/internal/chat/app"
	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/pkg/logger"
	"course_messaging_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatHandler REST side of the chat service
type ChatHandler struct {
	query       *app.ConversationQuery
	attachments *app.AttachmentCoordinator
	ready       func(ctx context.Context) error
}

// NewChatHandler attachments and ready may be nil
func NewChatHandler(query *app.ConversationQuery, attachments *app.AttachmentCoordinator, ready func(ctx context.Context) error) *ChatHandler {
	return &ChatHandler{
		query:       query,
		attachments: attachments,
		ready:       ready,
	}
}

// errorStatus http status of a domain error code
func errorStatus(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeValidation:
		return fiber.StatusBadRequest
	case domain.CodeNotFound:
		return fiber.StatusNotFound
	case domain.CodeAuth:
		return fiber.StatusUnauthorized
	case domain.CodePersistence:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func writeError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": domain.MessageOf(err),
		"code":  domain.CodeOf(err),
	})
}

func missingParticipant(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fmt.Sprintf("c.Locals(%s) is nil", middlewares.TokenParticipantID),
	})
}

func pageFromQuery(c *fiber.Ctx) (domain.Page, error) {
	page := domain.Page{
		After:  c.Query("after"),
		Before: c.Query("before"),
	}
	if raw := c.Query("tail"); raw != "" {
		tail, err := strconv.ParseBool(raw)
		if err != nil {
			return page, domain.Validation("tail must be a boolean")
		}
		page.Tail = tail
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return page, domain.Validation("limit must be a non-negative integer")
		}
		page.Limit = limit
	}
	return page, nil
}

// ConnectCheck check chat service start
// @Summary Check chat service status
// @Description Returns a simple confirmation message
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	query, err := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	status, err := strconv.ParseBool(query.Get("status"))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// Health readiness of the backing stores
// @Summary Readiness probe
// @Tags Shared
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /healthz [get]
func (h *ChatHandler) Health(c *fiber.Ctx) error {
	if h.ready != nil {
		if err := h.ready(c.UserContext()); err != nil {
			logger.Log.Warn("readiness check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListConversations 對話列表
// @Summary List conversations
// @Description One row per peer, most recent first, with unread count and peer presence
// @Tags Conversations
// @Produce json
// @Param auth query string false "participant token"
// @Success 200 {array} app.ConversationView
// @Failure 401 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/conversations [get]
func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	pid, ok := middlewares.ParticipantID(c)
	if !ok {
		return missingParticipant(c)
	}
	views, err := h.query.ListConversations(c.UserContext(), pid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(views)
}

// History 歷史訊息, 預設從最舊的開始
// @Summary Conversation history
// @Description Paged messages with a peer, ascending by creation time. Use tail=true for the newest page.
// @Tags Conversations
// @Produce json
// @Param peerId path string true "peer participant id"
// @Param after query string false "cursor, messages strictly after this server id"
// @Param before query string false "cursor, messages strictly before this server id"
// @Param tail query bool false "newest page when no cursor is given"
// @Param limit query int false "page size, default 50, max 200"
// @Success 200 {object} domain.MessagePage
// @Failure 400 {object} map[string]string
// @Router /api/v1/conversations/{peerId}/messages [get]
func (h *ChatHandler) History(c *fiber.Ctx) error {
	pid, ok := middlewares.ParticipantID(c)
	if !ok {
		return missingParticipant(c)
	}
	page, err := pageFromQuery(c)
	if err != nil {
		return writeError(c, err)
	}
	peerID, err := url.PathUnescape(c.Params("peerId"))
	if err != nil {
		return writeError(c, domain.Validation("malformed peer id"))
	}

	result, err := h.query.History(c.UserContext(), pid, peerID, page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// Unread 未讀總數
// @Summary Unread count
// @Tags Conversations
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/v1/unread [get]
func (h *ChatHandler) Unread(c *fiber.Ctx) error {
	pid, ok := middlewares.ParticipantID(c)
	if !ok {
		return missingParticipant(c)
	}
	n, err := h.query.Unread(c.UserContext(), pid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}

// Presence 查詢對方上線狀態
// @Summary Participant presence
// @Tags Presence
// @Produce json
// @Param participantId path string true "participant id"
// @Success 200 {object} domain.PresenceRecord
// @Router /api/v1/presence/{participantId} [get]
func (h *ChatHandler) Presence(c *fiber.Ctx) error {
	if _, ok := middlewares.ParticipantID(c); !ok {
		return missingParticipant(c)
	}
	target, err := url.PathUnescape(c.Params("participantId"))
	if err != nil {
		return writeError(c, domain.Validation("malformed participant id"))
	}
	if err := domain.ValidateParticipantID(target); err != nil {
		return writeError(c, err)
	}
	return c.JSON(h.query.Presence(target))
}

// RequestUploadSlot 取得附件上傳位置
// @Summary Request an attachment upload slot
// @Description Validates kind and size and returns a presigned POST target on the object store
// @Tags Attachments
// @Accept json
// @Produce json
// @Param request body domain.SlotRequest true "declared upload"
// @Success 201 {object} domain.UploadSlot
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/attachments/slots [post]
func (h *ChatHandler) RequestUploadSlot(c *fiber.Ctx) error {
	pid, ok := middlewares.ParticipantID(c)
	if !ok {
		return missingParticipant(c)
	}
	if h.attachments == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "attachments are not configured"})
	}

	var req domain.SlotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	slot, err := h.attachments.RequestUploadSlot(c.UserContext(), pid, req)
	if err != nil {
		return writeError(c, err)
	}
	logger.Log.Info("upload slot issued",
		zap.String("participant_id", pid),
		zap.String("kind", string(req.Kind)),
		zap.String("object_key", slot.ObjectKey))
	return c.Status(fiber.StatusCreated).JSON(slot)
}

// Notifications 離線通知收件匣
// @Summary Offline notifications
// @Tags Notifications
// @Produce json
// @Param limit query int false "max entries, default 20"
// @Success 200 {array} domain.Notification
// @Router /api/v1/notifications [get]
func (h *ChatHandler) Notifications(c *fiber.Ctx) error {
	pid, ok := middlewares.ParticipantID(c)
	if !ok {
		return missingParticipant(c)
	}
	limit := c.QueryInt("limit", 20)
	list, err := h.query.Notifications(c.UserContext(), pid, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(list)
}
