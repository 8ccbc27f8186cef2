package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer 模拟 realtime 服务端：回复 join，把收到的帧转发给测试
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	received chan Message
	conns    chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	return newFakeServerWithIDs(t, true)
}

// newFakeServerWithIDs withIDs=false 时 join 回复不带订阅 id（旧版服务端）
func newFakeServerWithIDs(t *testing.T, withIDs bool) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:        t,
		received: make(chan Message, 32),
		conns:    make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon", r.URL.Query().Get("apikey"))
		assert.Equal(t, "1.0.0", r.URL.Query().Get("vsn"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Event == EventJoin {
				var join struct {
					Config struct {
						PostgresChanges []PostgresChangesFilter `json:"postgres_changes"`
					} `json:"config"`
				}
				_ = json.Unmarshal(msg.Payload, &join)

				changes := make([]map[string]interface{}, 0)
				for i, f := range join.Config.PostgresChanges {
					if !withIDs {
						break
					}
					changes = append(changes, map[string]interface{}{
						"id": 100 + i, "event": f.Event, "schema": f.Schema, "table": f.Table, "filter": f.Filter,
					})
				}
				reply, _ := json.Marshal(map[string]interface{}{
					"status":   "ok",
					"response": map[string]interface{}{"postgres_changes": changes},
				})
				_ = conn.WriteJSON(Message{Topic: msg.Topic, Event: EventReply, Payload: reply, Ref: msg.Ref})
			}
			fs.received <- msg
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) endpoint() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/realtime/v1/websocket"
}

func (fs *fakeServer) conn() *websocket.Conn {
	select {
	case c := <-fs.conns:
		return c
	case <-time.After(2 * time.Second):
		fs.t.Fatal("no websocket connection")
		return nil
	}
}

func (fs *fakeServer) waitFor(event string) Message {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-fs.received:
			if msg.Event == event {
				return msg
			}
		case <-deadline:
			fs.t.Fatalf("event %s not received", event)
			return Message{}
		}
	}
}

func connect(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	client := NewClient(fs.endpoint(), "anon", Options{AccessToken: "user-token", ReplyTimeout: 2 * time.Second})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSubscribeDispatchesBySubscriptionID(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)
	conn := fs.conn()

	got := make(chan ChangeEvent, 1)
	ch := client.Channel("chat-abc", ChannelConfig{}).
		OnPostgresChanges(PostgresChangesFilter{Event: "INSERT", Table: "mensagens", Filter: "match_id=eq.abc"}, func(e ChangeEvent) {
			got <- e
		})
	require.NoError(t, ch.Subscribe(context.Background()))

	join := fs.waitFor(EventJoin)
	assert.Equal(t, "realtime:chat-abc", join.Topic)
	assert.Contains(t, string(join.Payload), `"access_token":"user-token"`)
	assert.Contains(t, string(join.Payload), `"filter":"match_id=eq.abc"`)

	payload := `{"ids":[100],"data":{"schema":"public","table":"mensagens","type":"INSERT","record":{"id":"m1","conteudo":"oi"}}}`
	require.NoError(t, conn.WriteJSON(Message{Topic: "realtime:chat-abc", Event: EventPostgresChanges, Payload: json.RawMessage(payload)}))

	select {
	case e := <-got:
		var rec struct {
			ID       string `json:"id"`
			Conteudo string `json:"conteudo"`
		}
		require.NoError(t, e.Decode(&rec))
		assert.Equal(t, "m1", rec.ID)
		assert.Equal(t, "oi", rec.Conteudo)
	case <-time.After(2 * time.Second):
		t.Fatal("change not dispatched")
	}
}

func TestChangeWithOtherIDIsIgnored(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)
	conn := fs.conn()

	got := make(chan ChangeEvent, 2)
	ch := client.Channel("novos-matches", ChannelConfig{}).
		OnPostgresChanges(PostgresChangesFilter{Event: "INSERT", Table: "matches", Filter: "usuario_a_id=eq.u"}, func(e ChangeEvent) { got <- e })
	require.NoError(t, ch.Subscribe(context.Background()))

	payload := `{"ids":[999],"data":{"schema":"public","table":"matches","type":"INSERT","record":{}}}`
	require.NoError(t, conn.WriteJSON(Message{Topic: ch.Topic(), Event: EventPostgresChanges, Payload: json.RawMessage(payload)}))

	select {
	case <-got:
		t.Fatal("change with unknown id dispatched")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFallbackMatchingHonoursFilter(t *testing.T) {
	fs := newFakeServerWithIDs(t, false)
	client := connect(t, fs)
	conn := fs.conn()

	var asA, asB int
	calls := make(chan string, 4)
	ch := client.Channel("novos-matches", ChannelConfig{}).
		OnPostgresChanges(PostgresChangesFilter{Event: "INSERT", Schema: "public", Table: "matches", Filter: "usuario_a_id=eq.u1"}, func(e ChangeEvent) { calls <- "a" }).
		OnPostgresChanges(PostgresChangesFilter{Event: "INSERT", Schema: "public", Table: "matches", Filter: "usuario_b_id=eq.u1"}, func(e ChangeEvent) { calls <- "b" })
	require.NoError(t, ch.Subscribe(context.Background()))

	payload := `{"data":{"schema":"public","table":"matches","type":"INSERT","record":{"id":"m1","usuario_a_id":"u1","usuario_b_id":"u2"}}}`
	require.NoError(t, conn.WriteJSON(Message{Topic: ch.Topic(), Event: EventPostgresChanges, Payload: json.RawMessage(payload)}))
	other := `{"data":{"schema":"public","table":"matches","type":"INSERT","record":{"id":"m2","usuario_a_id":"u3","usuario_b_id":"u4"}}}`
	require.NoError(t, conn.WriteJSON(Message{Topic: ch.Topic(), Event: EventPostgresChanges, Payload: json.RawMessage(other)}))

	deadline := time.After(300 * time.Millisecond)
	for done := false; !done; {
		select {
		case c := <-calls:
			if c == "a" {
				asA++
			} else {
				asB++
			}
		case <-deadline:
			done = true
		}
	}
	assert.Equal(t, 1, asA)
	assert.Equal(t, 0, asB)
}

func TestRecordMatches(t *testing.T) {
	e := ChangeEvent{Type: "INSERT", Record: json.RawMessage(`{"match_id":"abc","lida":false}`)}

	assert.True(t, recordMatches("", e))
	assert.True(t, recordMatches("match_id=eq.abc", e))
	assert.False(t, recordMatches("match_id=eq.xyz", e))
	assert.True(t, recordMatches("match_id=neq.xyz", e))
	assert.True(t, recordMatches("lida=eq.false", e))
	assert.False(t, recordMatches("missing=eq.abc", e))
	assert.True(t, recordMatches("match_id=in.(abc,def)", e))
}

func TestClientDoneClosesWhenServerDrops(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)
	conn := fs.conn()

	require.NoError(t, conn.Close())
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after the server dropped the connection")
	}
}

func TestPresenceStateAndDiff(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)
	conn := fs.conn()

	synced := make(chan struct{}, 4)
	ch := client.Channel("presence-abc", ChannelConfig{PresenceKey: "u1"}).
		OnPresenceSync(func() { synced <- struct{}{} })
	require.NoError(t, ch.Subscribe(context.Background()))

	require.NoError(t, ch.Track(context.Background(), map[string]interface{}{"digitando": true}))
	track := fs.waitFor(EventPresence)
	assert.JSONEq(t, `{"type":"presence","event":"track","payload":{"digitando":true}}`, string(track.Payload))

	state := `{"u2":{"metas":[{"phx_ref":"a","digitando":true}]}}`
	require.NoError(t, conn.WriteJSON(Message{Topic: ch.Topic(), Event: EventPresenceState, Payload: json.RawMessage(state)}))
	waitSync(t, synced)
	assert.Equal(t, true, ch.PresenceState()["u2"][0]["digitando"])

	diff := `{"joins":{},"leaves":{"u2":{"metas":[{"phx_ref":"a"}]}}}`
	require.NoError(t, conn.WriteJSON(Message{Topic: ch.Topic(), Event: EventPresenceDiff, Payload: json.RawMessage(diff)}))
	waitSync(t, synced)
	assert.Empty(t, ch.PresenceState())
}

func TestRemoveChannelSendsLeave(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)
	fs.conn()

	ch := client.Channel("chat-x", ChannelConfig{})
	require.NoError(t, ch.Subscribe(context.Background()))
	require.NoError(t, client.RemoveChannel(context.Background(), ch))

	leave := fs.waitFor(EventLeave)
	assert.Equal(t, "realtime:chat-x", leave.Topic)
}

func TestApplyDiffKeepsOtherMetas(t *testing.T) {
	state := map[string]Presence{
		"u1": {{"phx_ref": "a"}, {"phx_ref": "b"}},
	}
	applyDiff(state, presenceDiff{
		Joins:  map[string]presenceEntry{"u3": {Metas: Presence{{"phx_ref": "c"}}}},
		Leaves: map[string]presenceEntry{"u1": {Metas: Presence{{"phx_ref": "a"}}}},
	})

	require.Len(t, state["u1"], 1)
	assert.Equal(t, "b", state["u1"][0]["phx_ref"])
	assert.Len(t, state["u3"], 1)
}

func waitSync(t *testing.T, synced chan struct{}) {
	t.Helper()
	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("presence sync not fired")
	}
}
