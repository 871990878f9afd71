package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"course_messaging_service/internal/chat/app"
	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	"course_messaging_service/pkg/config"
	"course_messaging_service/pkg/logger"
	"course_messaging_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetNewNop()
	os.Exit(m.Run())
}

type testServer struct {
	addr     string
	store    *app.MessageStore
	presence *app.PresenceTracker
}

func startServer(t *testing.T, presigner app.UploadPresigner) *testServer {
	t.Helper()
	metrics := app.NewMetrics()
	store := app.NewMessageStore(repository.NewMemoryMessageRepository(), nil, metrics, 4000)
	presence := app.NewPresenceTracker(nil)
	router := app.NewConversationRouter(metrics)
	gateway := app.NewGateway(config.GatewayConfig{}, app.NewJWTAuthenticator(), store, presence, router, metrics)

	var attachments *app.AttachmentCoordinator
	if presigner != nil {
		attachments = app.NewAttachmentCoordinator(config.AttachmentConfig{}, presigner, nil)
	}
	handler := NewChatHandler(app.NewConversationQuery(store, presence, nil, nil), attachments, nil)

	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterRoutes(r, handler, gateway, metrics)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = r.Listener(ln) }()
	t.Cleanup(func() { _ = r.Shutdown() })

	return &testServer{addr: ln.Addr().String(), store: store, presence: presence}
}

func mustToken(t *testing.T, participantID string, role token.RoleType) string {
	t.Helper()
	s, err := token.GenerateJWTWrapper(participantID, string(role), "course-platform")
	require.NoError(t, err)
	return s
}

func (s *testServer) get(t *testing.T, path, bearer string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://"+s.addr+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func (s *testServer) dial(t *testing.T, credential string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?auth=%s", s.addr, credential), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wsFrame struct {
	Type    domain.Action   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func sendFrame(t *testing.T, conn *gws.Conn, typ domain.Action, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(domain.WSRequest{Type: typ, Payload: raw}))
}

// readUntil skip frames until typ arrives
func readUntil(t *testing.T, conn *gws.Conn, typ domain.Action, into interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type != typ {
			continue
		}
		if into != nil {
			require.NoError(t, json.Unmarshal(f.Payload, into))
		}
		return
	}
}

func TestRoutes_RESTRequiresToken(t *testing.T) {
	s := startServer(t, nil)

	status, _ := s.get(t, "/api/v1/conversations", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.get(t, "/api/v1/conversations", "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := s.get(t, "/api/v1/conversations", mustToken(t, "learner-1", token.RoleLearner))
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	s := startServer(t, nil)

	status, body := s.get(t, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = s.get(t, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "chat_ws_connections")
}

func TestRoutes_WebsocketRejectsBadCredential(t *testing.T) {
	s := startServer(t, nil)
	conn := s.dial(t, "forged")

	readUntil(t, conn, domain.Error, nil)
	_, _, err := conn.ReadMessage()
	var closeErr *gws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, app.CloseAuthFailed, closeErr.Code)
}

func TestRoutes_ConversationEndToEnd(t *testing.T) {
	s := startServer(t, nil)
	learnerToken := mustToken(t, "learner-1", token.RoleLearner)
	instructorToken := mustToken(t, "instructor-1", token.RoleInstructor)

	learner := s.dial(t, learnerToken)
	instructor := s.dial(t, instructorToken)

	sendFrame(t, learner, domain.Join, domain.JoinPayload{PeerID: "instructor-1"})
	readUntil(t, learner, domain.Joined, nil)
	sendFrame(t, instructor, domain.Join, domain.JoinPayload{PeerID: "learner-1"})
	var joined domain.JoinedPayload
	readUntil(t, instructor, domain.Joined, &joined)
	assert.True(t, joined.PeerOnline)

	sendFrame(t, learner, domain.Send, domain.SendPayload{ClientMessageID: "c-1", ReceiverID: "instructor-1", Body: "Is the quiz graded?"})

	var ack domain.SendAckPayload
	readUntil(t, learner, domain.SendAck, &ack)
	assert.Equal(t, domain.StatusDelivered, ack.Status)

	var received domain.Message
	readUntil(t, instructor, domain.MessageReceived, &received)
	assert.Equal(t, "Is the quiz graded?", received.Body)

	sendFrame(t, instructor, domain.ReadAck, domain.ReadAckPayload{MessageID: received.ServerID})
	var changed domain.StatusChangedPayload
	readUntil(t, learner, domain.StatusChanged, &changed)
	assert.Equal(t, domain.StatusRead, changed.Status)

	status, body := s.get(t, "/api/v1/conversations/instructor-1/messages?tail=true", learnerToken)
	require.Equal(t, http.StatusOK, status)
	var page domain.MessagePage
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, domain.StatusRead, page.Messages[0].Status)

	status, body = s.get(t, "/api/v1/presence/learner-1", instructorToken)
	require.Equal(t, http.StatusOK, status)
	var rec domain.PresenceRecord
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.True(t, rec.Online)

	status, body = s.get(t, "/api/v1/unread", instructorToken)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"unread":0}`, string(body))

	// 斷線後對方會收到 offline
	sendFrame(t, instructor, domain.Logout, struct{}{})
	var presence domain.PresenceChangedPayload
	for {
		readUntil(t, learner, domain.PresenceChanged, &presence)
		if !presence.Online {
			break
		}
	}
	assert.Equal(t, "instructor-1", presence.ParticipantID)
}

func TestRoutes_HistoryValidation(t *testing.T) {
	s := startServer(t, nil)
	tok := mustToken(t, "learner-1", token.RoleLearner)

	status, _ := s.get(t, "/api/v1/conversations/instructor-1/messages?after=a&before=b", tok)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.get(t, "/api/v1/conversations/instructor-1/messages?after=a&tail=true", tok)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.get(t, "/api/v1/conversations/instructor-1/messages?limit=abc", tok)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.get(t, "/api/v1/conversations/learner-1/messages", tok)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := s.get(t, "/api/v1/conversations/instructor-1/messages", tok)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"messages":[],"hasMore":false}`, string(body))
}

func TestRoutes_UploadSlot(t *testing.T) {
	presigner := new(app.MockPresigner)
	presigner.On("PresignPostPolicy", mock.Anything, mock.Anything).
		Return("http://minio:9000/chat", map[string]string{"policy": "p"}, nil)
	s := startServer(t, presigner)
	tok := mustToken(t, "instructor-1", token.RoleInstructor)

	post := func(body string) (int, []byte) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
			"http://"+s.addr+"/api/v1/attachments/slots", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		out, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, out
	}

	status, body := post(`{"kind":"video","sizeBytes":1048576,"contentType":"video/mp4","fileName":"lecture.mp4"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	var slot domain.UploadSlot
	require.NoError(t, json.Unmarshal(body, &slot))
	assert.Equal(t, "POST", slot.Method)
	assert.True(t, strings.HasPrefix(slot.ObjectKey, "attachments/video/instructor-1/"))

	status, _ = post(`{"kind":"video","sizeBytes":0,"contentType":"video/mp4"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}
