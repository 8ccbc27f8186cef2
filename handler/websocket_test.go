package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"safimatch/model"
	"safimatch/realtime"
	"safimatch/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRealtimeServer 回复所有 join，并把已加入的连接交给测试
func newRealtimeServer(t *testing.T) (string, chan *websocket.Conn) {
	t.Helper()
	joined := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			var msg realtime.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Event != realtime.EventJoin {
				continue
			}
			_ = conn.WriteJSON(realtime.Message{
				Topic:   msg.Topic,
				Event:   realtime.EventReply,
				Payload: json.RawMessage(`{"status":"ok","response":{"postgres_changes":[]}}`),
				Ref:     msg.Ref,
			})
			select {
			case joined <- conn:
			default:
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/v1/websocket", joined
}

func TestRealtimeLossClosesClient(t *testing.T) {
	rtURL, joined := newRealtimeServer(t)
	hub := NewHub(HubConfig{RealtimeURL: rtURL, APIKey: "anon", OperationTimeout: 2 * time.Second},
		nil, service.NewChatService(nil), service.NewMatchService(nil))

	ident := model.Identity{UserID: uuid.New(), Role: "authenticated"}
	r := gin.New()
	r.GET("/ws", withIdentity(ident), HandleWebSocket(hub))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var rtConn *websocket.Conn
	select {
	case rtConn = <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("realtime channel never joined")
	}
	require.NoError(t, rtConn.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "realtime_lost", frame.Data["code"])

	// 之后服务端关闭 websocket
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.Clients[ident.UserID]) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
