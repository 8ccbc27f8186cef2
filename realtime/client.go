package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	ErrClosed       = errors.New("realtime: connection closed")
	ErrNotConnected = errors.New("realtime: not connected")
)

// Options 客户端参数
type Options struct {
	AccessToken       string
	EventsPerSecond   int           // 默认 10
	HeartbeatInterval time.Duration // 默认 25s
	ReplyTimeout      time.Duration // 默认 10s
	Dialer            *websocket.Dialer
}

// Client 一条 realtime websocket 连接，上面复用多个 channel
type Client struct {
	endpoint string
	apiKey   string
	opts     Options
	limiter  *rate.Limiter

	mu          sync.Mutex
	conn        *websocket.Conn
	accessToken string
	channels    map[string]*Channel
	pending     map[string]chan Message
	ref         uint64

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient endpoint 形如 ws://host/realtime/v1/websocket
func NewClient(endpoint, apiKey string, opts Options) *Client {
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = 10
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 25 * time.Second
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		endpoint:    endpoint,
		apiKey:      apiKey,
		opts:        opts,
		limiter:     rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.EventsPerSecond),
		accessToken: opts.AccessToken,
		channels:    make(map[string]*Channel),
		pending:     make(map[string]chan Message),
		done:        make(chan struct{}),
	}
}

// Connect 建立连接并启动读循环和心跳
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid realtime endpoint: %w", err)
	}
	q := u.Query()
	q.Set("apikey", c.apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	conn, _, err := c.opts.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial realtime: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.heartbeatLoop()
	return nil
}

// Done 连接关闭时关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Channel 创建（或返回已有的）channel，topic = realtime:<name>
func (c *Client) Channel(name string, cfg ChannelConfig) *Channel {
	topic := topicPrefix + name

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[topic]; ok {
		return ch
	}
	ch := newChannel(c, topic, cfg)
	c.channels[topic] = ch
	return ch
}

// RemoveChannel 离开 channel 并丢弃其回调
func (c *Client) RemoveChannel(ctx context.Context, ch *Channel) error {
	c.mu.Lock()
	delete(c.channels, ch.topic)
	c.mu.Unlock()

	ch.reset()
	if !ch.isJoined() {
		return nil
	}
	ch.setJoined(false)
	return c.push(ctx, Message{Topic: ch.topic, Event: EventLeave, Payload: json.RawMessage(`{}`), Ref: c.nextRef()})
}

// SetAuth 更新 access token 并下发给已加入的 channel
func (c *Client) SetAuth(ctx context.Context, token string) error {
	c.mu.Lock()
	c.accessToken = token
	joined := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		if ch.isJoined() {
			joined = append(joined, ch)
		}
	}
	c.mu.Unlock()

	payload, _ := json.Marshal(map[string]string{"access_token": token})
	for _, ch := range joined {
		if err := c.push(ctx, Message{Topic: ch.topic, Event: EventAccessToken, Payload: payload, Ref: c.nextRef()}); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭连接
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		for ref, ch := range c.pending {
			close(ch)
			delete(c.pending, ref)
		}
		c.mu.Unlock()
		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			err = conn.Close()
		}
	})
	return err
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) nextRef() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ref++
	return strconv.FormatUint(c.ref, 10)
}

// push 发送一帧，受 eventsPerSecond 限制
func (c *Client) push(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

// request 发送并等待同 ref 的 phx_reply
func (c *Client) request(ctx context.Context, topic, event string, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	ref := c.nextRef()
	replyCh := make(chan Message, 1)
	c.mu.Lock()
	c.pending[ref] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	if err := c.push(ctx, Message{Topic: topic, Event: event, Payload: data, Ref: ref}); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(c.opts.ReplyTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return Message{}, ErrClosed
		}
		return reply, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("realtime: %s on %s timed out", event, topic)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, ErrClosed
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[WARN] Realtime connection lost: %v", err)
				}
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WARN] Realtime invalid frame: %v", err)
			continue
		}

		if msg.Event == EventReply && msg.Ref != "" && c.deliverReply(msg) {
			continue
		}

		c.mu.Lock()
		ch := c.channels[msg.Topic]
		c.mu.Unlock()
		if ch != nil {
			ch.handle(msg)
		}
	}
}

// deliverReply 在锁内投递，避免和 Close 关闭 pending 竞争
func (c *Client) deliverReply(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	replyCh, ok := c.pending[msg.Ref]
	if !ok {
		return false
	}
	delete(c.pending, msg.Ref)
	select {
	case replyCh <- msg:
	default:
	}
	return true
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.push(ctx, Message{Topic: topicPhoenix, Event: EventHeartbeat, Payload: json.RawMessage(`{}`), Ref: c.nextRef()})
			cancel()
			if err != nil && !errors.Is(err, ErrClosed) {
				log.Printf("[WARN] Realtime heartbeat failed: %v", err)
			}
		}
	}
}
