package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"safimatch/middleware"
	"safimatch/model"
	"safimatch/realtime"
	"safimatch/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// CORS 由外层 rs/cors 处理
		return true
	},
}

const onlineTTL = 30 * time.Second

// Client WebSocket 客户端
type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Identity model.Identity
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub

	rt          *realtime.Client
	stopMatches func()

	mu     sync.RWMutex
	rooms  map[uuid.UUID]*openRoom // matchID -> 打开的对话
	closed bool                    // Send channel 是否已关闭
}

// openRoom 一个打开的对话和它的实时订阅
type openRoom struct {
	room         *service.ChatRoom
	stopMessages func()
	presence     *service.TypingPresence
}

func (r *openRoom) stop() {
	if r.stopMessages != nil {
		r.stopMessages()
	}
	if r.presence != nil {
		r.presence.Stop()
	}
}

// HubConfig realtime 连接参数
type HubConfig struct {
	RealtimeURL           string
	APIKey                string
	EventsPerSecond       int
	OperationTimeout      time.Duration
	MaxConnectionsPerUser int
}

// Hub WebSocket 连接管理中心
type Hub struct {
	// 在线用户 map[userID]map[clientID]*Client（支持多设备）
	Clients map[uuid.UUID]map[uuid.UUID]*Client
	mu      sync.RWMutex

	cfg      HubConfig
	rdb      *redis.Client // 可以为空（memory 模式），此时不记录在线状态
	chatSvc  *service.ChatService
	matchSvc *service.MatchService
}

// NewHub 创建 Hub
func NewHub(cfg HubConfig, rdb *redis.Client, chatSvc *service.ChatService, matchSvc *service.MatchService) *Hub {
	if cfg.MaxConnectionsPerUser <= 0 {
		cfg.MaxConnectionsPerUser = 5
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 15 * time.Second
	}
	return &Hub{
		Clients:  make(map[uuid.UUID]map[uuid.UUID]*Client),
		cfg:      cfg,
		rdb:      rdb,
		chatSvc:  chatSvc,
		matchSvc: matchSvc,
	}
}

// Register 注册客户端（限制每个用户的设备数）
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	if h.Clients[client.UserID] == nil {
		h.Clients[client.UserID] = make(map[uuid.UUID]*Client)
	}

	if len(h.Clients[client.UserID]) >= h.cfg.MaxConnectionsPerUser {
		h.mu.Unlock()
		log.Printf("[ERROR] User %s exceeds max connections (%d), rejecting client %s",
			client.UserID, h.cfg.MaxConnectionsPerUser, client.ID)

		reason := fmt.Sprintf("Máximo de %d dispositivos", h.cfg.MaxConnectionsPerUser)
		if msg, err := json.Marshal(WSMessage{Type: "error", Data: mustJSON(map[string]string{"code": "too_many_devices", "message": reason})}); err == nil {
			_ = client.Conn.WriteMessage(websocket.TextMessage, msg)
		}
		client.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		client.Conn.Close()
		return false
	}

	h.Clients[client.UserID][client.ID] = client
	deviceCount := len(h.Clients[client.UserID])
	totalUsers := len(h.Clients)
	h.mu.Unlock()

	h.markOnline(client.UserID)
	log.Printf("User %s connected (client: %s), total devices: %d, total users: %d",
		client.UserID, client.ID, deviceCount, totalUsers)
	return true
}

// Unregister 注销客户端并释放它的 realtime 连接
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if userClients, exists := h.Clients[client.UserID]; exists {
		if _, found := userClients[client.ID]; found {
			delete(userClients, client.ID)
			if len(userClients) == 0 {
				delete(h.Clients, client.UserID)
				h.markOffline(client.UserID)
				log.Printf("User %s disconnected (client: %s), all devices offline", client.UserID, client.ID)
			} else {
				log.Printf("User %s disconnected (client: %s), remaining devices: %d",
					client.UserID, client.ID, len(userClients))
			}
		}
	}
	h.mu.Unlock()

	client.teardown()
}

// ForceOffline 强制用户离线（登出或会话失效时）
func (h *Hub) ForceOffline(userID uuid.UUID) {
	h.markOffline(userID)

	for _, client := range h.clientsOf(userID) {
		h.Unregister(client)
	}
}

// Deliver HTTP 发出的消息交给发送者已打开的对话，实时回声到达时会被去重
func (h *Hub) Deliver(userID, matchID uuid.UUID, msg model.Message) {
	for _, client := range h.clientsOf(userID) {
		client.appendToRoom(matchID, msg)
	}
}

func (h *Hub) clientsOf(userID uuid.UUID) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	userClients := h.Clients[userID]
	out := make([]*Client, 0, len(userClients))
	for _, client := range userClients {
		out = append(out, client)
	}
	return out
}

func (h *Hub) markOnline(userID uuid.UUID) {
	if h.rdb == nil {
		return
	}
	if err := h.rdb.Set(context.Background(), "online:"+userID.String(), "1", onlineTTL).Err(); err != nil {
		log.Printf("[WARN] Failed to refresh online status for %s: %v", userID, err)
	}
}

func (h *Hub) markOffline(userID uuid.UUID) {
	if h.rdb == nil {
		return
	}
	h.rdb.Del(context.Background(), "online:"+userID.String())
}

// WSMessage WebSocket 消息格式
type WSMessage struct {
	Type string          `json:"type"` // heartbeat | open_chat | close_chat | typing | view_once | access_token
	Data json.RawMessage `json:"data,omitempty"`
}

// HandleWebSocket 处理 WebSocket 连接（路由上挂 QueryTokenAuth）
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := middleware.GetIdentity(c)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ERROR] WebSocket upgrade failed for user %s: %v", ident.UserID, err)
			return
		}

		client := &Client{
			ID:       uuid.New(),
			UserID:   ident.UserID,
			Identity: ident,
			Conn:     conn,
			Send:     make(chan []byte, 256),
			Hub:      hub,
			rooms:    make(map[uuid.UUID]*openRoom),
		}

		if !hub.Register(client) {
			return
		}

		go client.writePump()

		if err := client.connectRealtime(); err != nil {
			log.Printf("[ERROR] Realtime connect failed for user %s: %v", ident.UserID, err)
			client.sendError("Não foi possível conectar ao tempo real")
		}

		go client.readPump()
	}
}

// connectRealtime 每个客户端一条 realtime 连接，并订阅新的 match
func (c *Client) connectRealtime() error {
	rt := realtime.NewClient(c.Hub.cfg.RealtimeURL, c.Hub.cfg.APIKey, realtime.Options{
		AccessToken:     c.identity().AccessToken,
		EventsPerSecond: c.Hub.cfg.EventsPerSecond,
	})

	ctx, cancel := c.opContext()
	defer cancel()
	if err := rt.Connect(ctx); err != nil {
		return err
	}

	stop, err := c.Hub.matchSvc.ListenNewMatches(ctx, rt, c.UserID, func(m model.Match) {
		c.push("match", m)
	})
	if err != nil {
		rt.Close()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		stop()
		rt.Close()
		return nil
	}
	c.rt = rt
	c.stopMatches = stop
	c.mu.Unlock()

	go c.watchRealtime(rt)
	return nil
}

// watchRealtime realtime 连接断开后通知客户端并断开，由客户端重连
func (c *Client) watchRealtime(rt *realtime.Client) {
	<-rt.Done()

	c.mu.RLock()
	stale := c.closed || c.rt != rt
	c.mu.RUnlock()
	if stale {
		return
	}

	log.Printf("[WARN] Realtime connection lost for user %s (client: %s), closing websocket", c.UserID, c.ID)
	c.push("error", map[string]string{"code": "realtime_lost", "message": "Conexão em tempo real perdida"})
	c.Hub.Unregister(c)
}

// readPump 从 WebSocket 读取消息
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] User %s WebSocket unexpected close error: %v", c.UserID, err)
			}
			break
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			log.Printf("[ERROR] Invalid message format: %v", err)
			c.sendError("Invalid JSON format")
			continue
		}

		switch wsMsg.Type {
		case "heartbeat":
			c.Hub.markOnline(c.UserID)
		case "open_chat":
			c.handleOpenChat(wsMsg.Data)
		case "close_chat":
			c.handleCloseChat(wsMsg.Data)
		case "typing":
			c.handleTyping(wsMsg.Data)
		case "view_once":
			c.handleViewOnce(wsMsg.Data)
		case "access_token":
			c.handleAccessToken(wsMsg.Data)
		default:
			c.sendError("Tipo de mensagem desconhecido: " + wsMsg.Type)
		}
	}
}

// writePump 向 WebSocket 写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type matchRequest struct {
	MatchID uuid.UUID `json:"match_id"`
}

// handleOpenChat 打开对话：推送历史，订阅新消息和输入状态
func (c *Client) handleOpenChat(data json.RawMessage) {
	var req matchRequest
	if err := json.Unmarshal(data, &req); err != nil || req.MatchID == uuid.Nil {
		c.sendError("match_id inválido")
		return
	}

	c.mu.RLock()
	existing := c.rooms[req.MatchID]
	rt := c.rt
	c.mu.RUnlock()
	if existing != nil {
		c.push("history", historyPayload(req.MatchID, existing.room.Messages()))
		return
	}
	if rt == nil {
		c.sendError("Tempo real indisponível")
		return
	}

	ctx, cancel := c.opContext()
	defer cancel()

	ident := c.identity()
	match, err := c.Hub.matchSvc.GetMatch(ctx, ident, req.MatchID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	room := service.NewChatRoom(c.Hub.chatSvc, ident, req.MatchID, match.Other(c.UserID))
	history, err := room.Load(ctx)
	if err != nil {
		log.Printf("[ERROR] Failed to load chat %s for %s: %v", req.MatchID, c.UserID, err)
		c.sendError("Não foi possível carregar as mensagens")
		return
	}

	open := &openRoom{room: room}
	open.stopMessages, err = c.Hub.chatSvc.ListenMessages(ctx, rt, ident, req.MatchID, func(msg model.Message) {
		if !room.Append(msg) {
			return
		}
		c.push("message", msg)
		if msg.DeUserID == room.Counterpart() {
			// 对话开着时收到的消息直接已读
			go c.markRead(room)
		}
	})
	if err != nil {
		log.Printf("[ERROR] Failed to listen chat %s: %v", req.MatchID, err)
		c.sendError("Não foi possível conectar ao chat")
		return
	}

	open.presence, err = c.Hub.chatSvc.Presence(ctx, rt, req.MatchID, c.UserID, func(typing bool) {
		c.push("typing", map[string]interface{}{"match_id": req.MatchID, "digitando": typing})
	})
	if err != nil {
		// 没有输入状态也能聊天
		log.Printf("[WARN] Presence unavailable for chat %s: %v", req.MatchID, err)
	}

	c.mu.Lock()
	if c.closed || c.rooms[req.MatchID] != nil {
		c.mu.Unlock()
		open.stop()
		return
	}
	c.rooms[req.MatchID] = open
	c.mu.Unlock()

	c.push("history", historyPayload(req.MatchID, history))
}

func (c *Client) handleCloseChat(data json.RawMessage) {
	var req matchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	c.mu.Lock()
	open := c.rooms[req.MatchID]
	delete(c.rooms, req.MatchID)
	c.mu.Unlock()

	if open != nil {
		open.stop()
	}
}

func (c *Client) handleTyping(data json.RawMessage) {
	var req struct {
		MatchID   uuid.UUID `json:"match_id"`
		Digitando bool      `json:"digitando"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	open := c.room(req.MatchID)
	if open == nil || open.presence == nil {
		return
	}

	ctx, cancel := c.opContext()
	defer cancel()
	if err := open.presence.SetTyping(ctx, req.Digitando); err != nil {
		log.Printf("[WARN] Failed to track typing for %s: %v", c.UserID, err)
	}
}

// handleViewOnce 打开一次性照片
func (c *Client) handleViewOnce(data json.RawMessage) {
	var req struct {
		MatchID   uuid.UUID `json:"match_id"`
		MessageID uuid.UUID `json:"message_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("Invalid message format")
		return
	}

	open := c.room(req.MatchID)
	if open == nil {
		c.sendError("Abra a conversa primeiro")
		return
	}

	ctx, cancel := c.opContext()
	defer cancel()
	msg, err := open.room.OpenViewOnce(ctx, req.MessageID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.push("message", msg)
}

// handleAccessToken token 续期后更新 realtime 授权
func (c *Client) handleAccessToken(data json.RawMessage) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Token == "" {
		c.sendError("token inválido")
		return
	}

	ident, err := middleware.ValidateToken(req.Token)
	if err != nil || ident.UserID != c.UserID {
		c.sendError("token inválido")
		return
	}

	c.mu.Lock()
	c.Identity = ident
	rt := c.rt
	c.mu.Unlock()

	if rt != nil {
		ctx, cancel := c.opContext()
		defer cancel()
		if err := rt.SetAuth(ctx, req.Token); err != nil {
			log.Printf("[WARN] Failed to refresh realtime token for %s: %v", c.UserID, err)
		}
	}
}

func (c *Client) markRead(room *service.ChatRoom) {
	ctx, cancel := c.opContext()
	defer cancel()
	if err := c.Hub.chatSvc.MarkRead(ctx, c.identity(), room.MatchID(), room.Counterpart()); err != nil {
		log.Printf("[WARN] Failed to mark chat %s as read: %v", room.MatchID(), err)
	}
}

// appendToRoom 对话开着时追加并推送
func (c *Client) appendToRoom(matchID uuid.UUID, msg model.Message) {
	open := c.room(matchID)
	if open == nil {
		return
	}
	if open.room.Append(msg) {
		c.push("message", msg)
	}
}

func (c *Client) identity() model.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Identity
}

func (c *Client) room(matchID uuid.UUID) *openRoom {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[matchID]
}

// teardown 关闭 Send 和所有实时订阅
func (c *Client) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	rooms := c.rooms
	c.rooms = make(map[uuid.UUID]*openRoom)
	stopMatches := c.stopMatches
	rt := c.rt
	c.mu.Unlock()

	for _, open := range rooms {
		open.stop()
	}
	if stopMatches != nil {
		stopMatches()
	}
	if rt != nil {
		rt.Close()
	}
}

func (c *Client) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.Hub.cfg.OperationTimeout)
}

// push 非阻塞发送
func (c *Client) push(msgType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": msgType,
		"data": data,
	})
	if err != nil {
		log.Printf("[ERROR] Failed to marshal %s push: %v", msgType, err)
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- payload:
	default:
		log.Printf("[ERROR] Send channel FULL: user=%s, client=%s, dropping %s", c.UserID, c.ID, msgType)
	}
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.push("error", map[string]string{"message": errMsg})
}

func historyPayload(matchID uuid.UUID, msgs []model.Message) map[string]interface{} {
	return map[string]interface{}{
		"match_id":  matchID,
		"mensagens": msgs,
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
