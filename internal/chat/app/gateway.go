package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"course_messaging_service/internal/chat/domain"
	"course_messaging_service/internal/chat/repository"
	"course_messaging_service/pkg/config"
	"course_messaging_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CloseAuthFailed close code sent after a rejected credential
const CloseAuthFailed = 4401

const relayTimeout = 3 * time.Second

// WSConn the part of *websocket.Conn the gateway uses
type WSConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Gateway 每條 websocket 連線的狀態機, 串起 store / presence / router
type Gateway struct {
	cfg      config.GatewayConfig
	auth     Authenticator
	store    *MessageStore
	presence *PresenceTracker
	router   *ConversationRouter
	metrics  *Metrics

	relay      repository.RoomRelay
	instanceID string
	notices    repository.OfflineNoticeQueue

	// 已經通知過 online 的房間, 最後一條連線斷線時全部補發 offline
	announcedMu sync.Mutex
	announced   map[string]map[string]struct{}
}

// GatewayOption optional collaborators
type GatewayOption func(*Gateway)

// WithRelay fan out every room broadcast to the other gateway instances
func WithRelay(relay repository.RoomRelay, instanceID string) GatewayOption {
	return func(g *Gateway) {
		g.relay = relay
		if instanceID != "" {
			g.instanceID = instanceID
		}
	}
}

// WithOfflineNotices queue a notice when a message reaches nobody
func WithOfflineNotices(q repository.OfflineNoticeQueue) GatewayOption {
	return func(g *Gateway) {
		g.notices = q
	}
}

// NewGateway nil metrics are dropped, pass the one the store and router use
func NewGateway(
	cfg config.GatewayConfig,
	auth Authenticator,
	store *MessageStore,
	presence *PresenceTracker,
	router *ConversationRouter,
	metrics *Metrics,
	opts ...GatewayOption,
) *Gateway {
	g := &Gateway{
		cfg:        cfg.WithDefaults(),
		auth:       auth,
		store:      store,
		presence:   presence,
		router:     router,
		metrics:    metricsOrDiscard(metrics),
		instanceID: uuid.NewString(),
		announced:  make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// StartRelay subscribe to remote broadcasts, no-op without a relay
func (g *Gateway) StartRelay(ctx context.Context) error {
	if g.relay == nil {
		return nil
	}
	return g.relay.Subscribe(ctx, g.handleRelay)
}

type session struct {
	g       *Gateway
	conn    WSConn
	connID  string
	state   sessionState
	client  *Client
	limiter *rate.Limiter

	writerDone chan struct{}
}

// HandleConnection 是 WebSocket 連線的進入點, 連線結束才會 return
func (g *Gateway) HandleConnection(ctx context.Context, conn WSConn, credential string) {
	s := &session{
		g:      g,
		conn:   conn,
		connID: uuid.NewString(),
		state:  stateConnecting{},
	}

	participant, err := g.auth.Authenticate(ctx, credential)
	if err != nil {
		s.rejectAuth(err)
		return
	}

	s.state = stateAuthenticated{participant: participant}
	s.client = NewClient(s.connID, participant.ID, g.cfg.SendBuffer)
	s.limiter = rate.NewLimiter(rate.Limit(g.cfg.RatePerSecond), g.cfg.RateBurst)
	s.writerDone = make(chan struct{})

	g.router.Register(s.client)
	g.metrics.Connections.Inc()
	rec, cameOnline := g.presence.SetOnline(participant.ID, s.connID)
	logger.Log.Info("websocket authenticated",
		zap.String("participant_id", participant.ID),
		zap.String("role", string(participant.Role)),
		zap.String("conn_id", s.connID),
		zap.Bool("came_online", cameOnline))
	if cameOnline {
		// 對方可能已經在房間裡等
		g.announce(ctx, rec, g.router.RoomsNaming(participant.ID), s.connID)
	}

	go s.writeLoop()
	defer s.close()
	s.readLoop(ctx)
}

func (s *session) rejectAuth(err error) {
	s.g.metrics.WSErrors.WithLabelValues(string(domain.CodeAuth)).Inc()
	logger.Log.Info("websocket auth rejected", zap.String("conn_id", s.connID), zap.Error(err))

	deadline := time.Now().Add(s.g.cfg.WriteWait)
	if frame, encErr := domain.NewErrorResponse(err).Encode(); encErr == nil {
		_ = s.conn.SetWriteDeadline(deadline)
		_ = s.conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseAuthFailed, "authentication failed"), deadline)
	s.state = stateClosed{}
	_ = s.conn.Close()
}

func (s *session) readLoop(ctx context.Context) {
	pongWait := s.g.cfg.PongWait
	s.conn.SetReadLimit(s.g.cfg.MaxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	//server發出ping之後client連線正常會回pong, 收到就延長 deadline
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Warn("websocket read error", zap.String("conn_id", s.connID), zap.Error(err))
			} else {
				logger.Log.Debug("websocket read closed", zap.String("conn_id", s.connID), zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if mt != websocket.TextMessage {
			s.sendError(domain.Validation("only text frames are supported"))
			continue
		}
		if stop := s.dispatch(ctx, data); stop {
			return
		}
	}
}

// writeLoop 唯一會寫 conn 的 goroutine (auth 失敗除外)
func (s *session) writeLoop() {
	ticker := time.NewTicker(s.g.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
	}()

	for {
		select {
		case frame, ok := <-s.client.Outbound():
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.g.cfg.WriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Log.Debug("websocket write failed", zap.String("conn_id", s.connID), zap.Error(err))
				// 讓 readLoop 也跟著結束
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.g.cfg.WriteWait)); err != nil {
				logger.Log.Debug("websocket ping failed", zap.String("conn_id", s.connID), zap.Error(err))
				_ = s.conn.Close()
				return
			}
		}
	}
}

// close any -> closed, leave every room and drop presence
func (s *session) close() {
	p, _ := participantOf(s.state)
	s.state = stateClosed{}

	rooms := s.g.router.Unregister(s.connID)
	s.client.Close()

	if rec, offline := s.g.presence.SetOffline(s.connID); offline {
		targets := s.g.takeAnnounced(p.ID)
		for _, key := range rooms {
			targets[key] = struct{}{}
		}
		for _, key := range s.g.router.RoomsNaming(p.ID) {
			targets[key] = struct{}{}
		}
		if frame, err := presenceFrame(rec); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
			for key := range targets {
				s.g.fanOut(ctx, key, domain.PresenceChanged, frame, "", nil)
			}
			cancel()
		}
	}

	select {
	case <-s.writerDone:
	case <-time.After(s.g.cfg.WriteWait):
	}
	_ = s.conn.Close()

	s.g.metrics.Connections.Dec()
	logger.Log.Info("websocket closed",
		zap.String("participant_id", p.ID),
		zap.String("conn_id", s.connID),
		zap.Int("rooms_left", len(rooms)))
}

func (s *session) dispatch(ctx context.Context, data []byte) bool {
	var req domain.WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendError(domain.Validation("malformed frame"))
		return false
	}

	switch req.Type {
	case domain.Join:
		s.handleJoin(ctx, req.Payload)
	case domain.Leave:
		s.handleLeave(req.Payload)
	case domain.Send:
		s.handleSend(ctx, req.Payload)
	case domain.ReadAck:
		s.handleReadAck(ctx, req.Payload)
	case domain.Logout:
		return true
	default:
		s.sendError(domain.Validation("unknown event type"))
	}
	return false
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return domain.Validation("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.Validation("malformed payload")
	}
	return nil
}

func (s *session) handleJoin(ctx context.Context, raw json.RawMessage) {
	p, _ := participantOf(s.state)

	var pl domain.JoinPayload
	if err := decodePayload(raw, &pl); err != nil {
		s.sendError(err)
		return
	}
	if err := domain.ValidateParticipantID(pl.PeerID); err != nil {
		s.sendError(err)
		return
	}
	if pl.PeerID == p.ID {
		s.sendError(domain.Validation("cannot open a conversation with yourself"))
		return
	}

	roomKey := RoomKeyFor(p.ID, pl.PeerID)
	if err := s.g.router.Join(roomKey, s.connID); err != nil {
		s.sendError(&domain.ChatError{Code: domain.CodeTransport, Message: "connection is not live", Err: err})
		return
	}
	s.state = withRoom(s.state, roomKey, pl.PeerID)
	// 連線時已經上線, 這裡只是確保
	rec, _ := s.g.presence.SetOnline(p.ID, s.connID)

	s.reply(domain.WSResponse{Type: domain.Joined, Payload: domain.JoinedPayload{
		ConversationID: roomKey,
		PeerID:         pl.PeerID,
		PeerOnline:     s.g.presence.IsOnline(pl.PeerID),
	}})

	s.g.announce(ctx, rec, []string{roomKey}, s.connID)
}

// announce tell rooms about rec and remember them for the offline follow-up
func (g *Gateway) announce(ctx context.Context, rec domain.PresenceRecord, rooms []string, exceptConnID string) {
	if len(rooms) == 0 {
		return
	}
	g.announcedMu.Lock()
	set, ok := g.announced[rec.ParticipantID]
	if !ok {
		set = make(map[string]struct{})
		g.announced[rec.ParticipantID] = set
	}
	for _, key := range rooms {
		set[key] = struct{}{}
	}
	g.announcedMu.Unlock()

	frame, err := presenceFrame(rec)
	if err != nil {
		logger.Log.Error("encode presence-changed failed", zap.String("participant_id", rec.ParticipantID), zap.Error(err))
		return
	}
	for _, key := range rooms {
		g.fanOut(ctx, key, domain.PresenceChanged, frame, exceptConnID, nil)
	}
}

// takeAnnounced rooms told participantID was online, forgotten afterwards
func (g *Gateway) takeAnnounced(participantID string) map[string]struct{} {
	g.announcedMu.Lock()
	defer g.announcedMu.Unlock()
	set, ok := g.announced[participantID]
	if !ok {
		return make(map[string]struct{})
	}
	delete(g.announced, participantID)
	return set
}

func (s *session) handleLeave(raw json.RawMessage) {
	p, _ := participantOf(s.state)

	var pl domain.JoinPayload
	if err := decodePayload(raw, &pl); err != nil {
		s.sendError(err)
		return
	}
	roomKey := RoomKeyFor(p.ID, pl.PeerID)
	if !joined(s.state, roomKey) {
		return
	}
	s.g.router.Leave(roomKey, s.connID)
	s.state = withoutRoom(s.state, roomKey)
}

func (s *session) handleSend(ctx context.Context, raw json.RawMessage) {
	p, _ := participantOf(s.state)

	var pl domain.SendPayload
	if err := decodePayload(raw, &pl); err != nil {
		s.sendError(err)
		return
	}

	// 1. 驗證, 失敗只回給發送者
	candidate := pl.Candidate(p.ID)
	if err := candidate.Validate(s.g.cfg.MaxBodyChars); err != nil {
		s.sendError(err)
		return
	}
	roomKey := RoomKeyFor(p.ID, pl.ReceiverID)
	if !joined(s.state, roomKey) {
		s.sendError(domain.ErrNotJoined)
		return
	}
	if !s.limiter.Allow() {
		s.sendError(domain.Validation("rate limit exceeded"))
		return
	}

	// 2. 先寫入, 寫入失敗不做任何廣播
	msg, created, err := s.g.store.Append(ctx, candidate)
	if err != nil {
		s.g.metrics.WSErrors.WithLabelValues(string(domain.CodeOf(err))).Inc()
		s.reply(domain.WSResponse{Type: domain.SendFailure, Payload: domain.SendFailurePayload{
			ClientMessageID: pl.ClientMessageID,
			Code:            domain.CodeOf(err),
			Message:         domain.MessageOf(err),
		}})
		return
	}

	// 3. 重送的訊息只回 ack
	if created {
		msg = s.g.deliver(ctx, roomKey, msg, s.connID)
	}

	s.reply(domain.WSResponse{Type: domain.SendAck, Payload: domain.SendAckPayload{
		ClientMessageID: msg.ClientMessageID,
		ServerID:        msg.ServerID,
		CreatedAt:       msg.CreatedAt,
		Status:          msg.Status,
	}})
}

// deliver fan out a freshly stored message, returns the record with its final status
func (g *Gateway) deliver(ctx context.Context, roomKey string, msg domain.Message, exceptConnID string) domain.Message {
	payload := msg
	if g.router.HasParticipant(roomKey, msg.ReceiverID) {
		payload.Status = domain.StatusDelivered
	}
	frame, err := domain.WSResponse{Type: domain.MessageReceived, Payload: payload}.Encode()
	if err != nil {
		logger.Log.Error("encode message-received failed", zap.String("message_id", msg.ServerID), zap.Error(err))
		return msg
	}

	receipt := g.fanOut(ctx, roomKey, domain.MessageReceived, frame, exceptConnID, &msg)
	if receipt.ReachedParticipant(msg.ReceiverID) {
		updated, _, err := g.store.MarkDelivered(ctx, msg.ServerID)
		if err != nil {
			logger.Log.Warn("mark delivered failed", zap.String("message_id", msg.ServerID), zap.Error(err))
			return msg
		}
		return updated
	}

	// 對方在其他 instance 上線時由該 instance 推進 delivered
	if g.notices != nil && !g.presence.IsOnline(msg.ReceiverID) {
		g.queueOfflineNotice(ctx, msg)
	}
	return msg
}

func (g *Gateway) queueOfflineNotice(ctx context.Context, msg domain.Message) {
	if err := g.notices.Publish(ctx, domain.NewOfflineNotice(msg)); err != nil {
		g.metrics.OfflineNotices.WithLabelValues("failed").Inc()
		logger.Log.Warn("offline notice publish failed", zap.String("message_id", msg.ServerID), zap.Error(err))
		return
	}
	g.metrics.OfflineNotices.WithLabelValues("queued").Inc()
}

func (s *session) handleReadAck(ctx context.Context, raw json.RawMessage) {
	p, _ := participantOf(s.state)

	var pl domain.ReadAckPayload
	if err := decodePayload(raw, &pl); err != nil {
		s.sendError(err)
		return
	}
	if pl.MessageID == "" {
		s.sendError(domain.Validation("messageId is required"))
		return
	}

	m, err := s.g.store.Get(ctx, pl.MessageID)
	if err != nil {
		s.sendError(err)
		return
	}
	if m.ReceiverID != p.ID {
		s.sendError(domain.ErrNotRecipient)
		return
	}
	if !joined(s.state, m.ConversationID) {
		s.sendError(domain.ErrNotJoined)
		return
	}

	updated, changed, err := s.g.store.MarkRead(ctx, m.ServerID)
	if err != nil {
		s.sendError(err)
		return
	}
	if !changed {
		return
	}
	frame, err := statusFrame(updated)
	if err != nil {
		return
	}
	s.g.fanOut(ctx, updated.ConversationID, domain.StatusChanged, frame, "", nil)
}

// fanOut local broadcast, then the relay when configured
func (g *Gateway) fanOut(ctx context.Context, roomKey string, typ domain.Action, frame []byte, exceptConnID string, msg *domain.Message) Receipt {
	receipt := g.router.Broadcast(roomKey, frame, exceptConnID)
	if g.relay == nil {
		return receipt
	}

	env := repository.RelayEnvelope{
		Origin:  g.instanceID,
		RoomKey: roomKey,
		Except:  exceptConnID,
		Type:    typ,
		Frame:   frame,
	}
	if msg != nil {
		env.MessageID = msg.ServerID
		env.ReceiverID = msg.ReceiverID
	}
	ctx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()
	if err := g.relay.Publish(ctx, env); err != nil {
		logger.Log.Warn("relay publish failed", zap.String("room", roomKey), zap.Error(err))
	}
	return receipt
}

// handleRelay broadcast from another instance
func (g *Gateway) handleRelay(env repository.RelayEnvelope) {
	if env.Origin == g.instanceID {
		return
	}
	receipt := g.router.Broadcast(env.RoomKey, env.Frame, env.Except)
	if env.Type != domain.MessageReceived || env.MessageID == "" || !receipt.ReachedParticipant(env.ReceiverID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	m, changed, err := g.store.MarkDelivered(ctx, env.MessageID)
	if err != nil {
		logger.Log.Warn("mark delivered from relay failed", zap.String("message_id", env.MessageID), zap.Error(err))
		return
	}
	if !changed {
		return
	}
	if frame, err := statusFrame(m); err == nil {
		g.fanOut(ctx, env.RoomKey, domain.StatusChanged, frame, "", nil)
	}
}

func (s *session) reply(resp domain.WSResponse) {
	frame, err := resp.Encode()
	if err != nil {
		logger.Log.Error("encode reply failed", zap.String("type", string(resp.Type)), zap.Error(err))
		return
	}
	if ok, full := s.client.Enqueue(frame); !ok && full {
		s.g.metrics.Drops.Inc()
		logger.Log.Warn("outbound queue full, reply dropped", zap.String("conn_id", s.connID), zap.String("type", string(resp.Type)))
	}
}

func (s *session) sendError(err error) {
	s.g.metrics.WSErrors.WithLabelValues(string(domain.CodeOf(err))).Inc()
	s.reply(domain.NewErrorResponse(err))
}

func presenceFrame(rec domain.PresenceRecord) ([]byte, error) {
	return domain.WSResponse{Type: domain.PresenceChanged, Payload: domain.PresenceChangedPayload{
		ParticipantID: rec.ParticipantID,
		Online:        rec.Online,
		LastSeen:      rec.LastSeen,
	}}.Encode()
}

func statusFrame(m domain.Message) ([]byte, error) {
	return domain.WSResponse{Type: domain.StatusChanged, Payload: domain.StatusChangedPayload{
		MessageID:      m.ServerID,
		ConversationID: m.ConversationID,
		Status:         m.Status,
	}}.Encode()
}
