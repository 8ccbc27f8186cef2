package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
)

// ChannelConfig channel 加入参数
type ChannelConfig struct {
	PresenceKey   string
	BroadcastSelf bool
}

type binding struct {
	filter PostgresChangesFilter
	id     int64 // 服务端返回的订阅 id，0 表示未知
	fn     func(ChangeEvent)
}

// Channel 一个 realtime topic
type Channel struct {
	client *Client
	topic  string
	cfg    ChannelConfig

	mu           sync.RWMutex
	bindings     []*binding
	presence     map[string]Presence
	presenceSync []func()
	joined       bool
}

func newChannel(client *Client, topic string, cfg ChannelConfig) *Channel {
	return &Channel{
		client:   client,
		topic:    topic,
		cfg:      cfg,
		presence: make(map[string]Presence),
	}
}

// Topic realtime:<name>
func (ch *Channel) Topic() string {
	return ch.topic
}

// OnPostgresChanges 注册行变更回调，必须在 Subscribe 之前调用
func (ch *Channel) OnPostgresChanges(filter PostgresChangesFilter, fn func(ChangeEvent)) *Channel {
	if filter.Schema == "" {
		filter.Schema = "public"
	}
	if filter.Event == "" {
		filter.Event = "*"
	}
	ch.mu.Lock()
	ch.bindings = append(ch.bindings, &binding{filter: filter, fn: fn})
	ch.mu.Unlock()
	return ch
}

// OnPresenceSync presence 状态变化后回调
func (ch *Channel) OnPresenceSync(fn func()) *Channel {
	ch.mu.Lock()
	ch.presenceSync = append(ch.presenceSync, fn)
	ch.mu.Unlock()
	return ch
}

// Subscribe 发送 phx_join 并等待服务端确认
func (ch *Channel) Subscribe(ctx context.Context) error {
	ch.mu.RLock()
	filters := make([]PostgresChangesFilter, 0, len(ch.bindings))
	for _, b := range ch.bindings {
		filters = append(filters, b.filter)
	}
	ch.mu.RUnlock()

	payload := map[string]interface{}{
		"config": map[string]interface{}{
			"broadcast":        map[string]interface{}{"self": ch.cfg.BroadcastSelf, "ack": false},
			"presence":         map[string]interface{}{"key": ch.cfg.PresenceKey},
			"postgres_changes": filters,
		},
	}
	if token := ch.client.token(); token != "" {
		payload["access_token"] = token
	}

	reply, err := ch.client.request(ctx, ch.topic, EventJoin, payload)
	if err != nil {
		return err
	}

	var jr joinReply
	if err := json.Unmarshal(reply.Payload, &jr); err != nil {
		return fmt.Errorf("realtime: invalid join reply: %w", err)
	}
	if jr.Status != "ok" {
		return fmt.Errorf("realtime: join %s rejected: %s", ch.topic, jr.Response.Reason)
	}

	ch.mu.Lock()
	for _, server := range jr.Response.PostgresChanges {
		for _, b := range ch.bindings {
			if b.id == 0 && sameFilter(b.filter, server.PostgresChangesFilter) {
				b.id = server.ID
				break
			}
		}
	}
	ch.joined = true
	ch.mu.Unlock()
	return nil
}

// Track 广播自己的 presence 状态
func (ch *Channel) Track(ctx context.Context, state map[string]interface{}) error {
	data, err := json.Marshal(map[string]interface{}{
		"type":    "presence",
		"event":   "track",
		"payload": state,
	})
	if err != nil {
		return err
	}
	return ch.client.push(ctx, Message{Topic: ch.topic, Event: EventPresence, Payload: data, Ref: ch.client.nextRef()})
}

// PresenceState 当前 presence 的快照
func (ch *Channel) PresenceState() map[string]Presence {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	out := make(map[string]Presence, len(ch.presence))
	for key, metas := range ch.presence {
		cp := make(Presence, len(metas))
		copy(cp, metas)
		out[key] = cp
	}
	return out
}

func (ch *Channel) isJoined() bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.joined
}

func (ch *Channel) setJoined(v bool) {
	ch.mu.Lock()
	ch.joined = v
	ch.mu.Unlock()
}

func (ch *Channel) reset() {
	ch.mu.Lock()
	ch.bindings = nil
	ch.presenceSync = nil
	ch.presence = make(map[string]Presence)
	ch.mu.Unlock()
}

func (ch *Channel) handle(msg Message) {
	switch msg.Event {
	case EventPostgresChanges:
		var p changesPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("[WARN] Realtime invalid postgres_changes payload on %s: %v", ch.topic, err)
			return
		}
		for _, fn := range ch.matching(p) {
			fn(p.Data)
		}

	case EventPresenceState:
		var state map[string]presenceEntry
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			log.Printf("[WARN] Realtime invalid presence_state on %s: %v", ch.topic, err)
			return
		}
		ch.mu.Lock()
		ch.presence = make(map[string]Presence, len(state))
		for key, entry := range state {
			ch.presence[key] = entry.Metas
		}
		ch.mu.Unlock()
		ch.firePresenceSync()

	case EventPresenceDiff:
		var diff presenceDiff
		if err := json.Unmarshal(msg.Payload, &diff); err != nil {
			log.Printf("[WARN] Realtime invalid presence_diff on %s: %v", ch.topic, err)
			return
		}
		ch.mu.Lock()
		applyDiff(ch.presence, diff)
		ch.mu.Unlock()
		ch.firePresenceSync()

	case EventSystem:
		var sys struct {
			Status    string `json:"status"`
			Message   string `json:"message"`
			Extension string `json:"extension"`
		}
		if err := json.Unmarshal(msg.Payload, &sys); err == nil && sys.Status == "error" {
			log.Printf("[WARN] Realtime %s error on %s: %s", sys.Extension, ch.topic, sys.Message)
		}

	case EventClose, EventError:
		ch.setJoined(false)
		log.Printf("[WARN] Realtime channel %s closed by server (%s)", ch.topic, msg.Event)
	}
}

// matching 先按订阅 id 匹配，拿不到 id 时按 schema/table/event 和 filter 匹配
func (ch *Channel) matching(p changesPayload) []func(ChangeEvent) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()

	var fns []func(ChangeEvent)
	for _, b := range ch.bindings {
		if b.id != 0 && len(p.IDs) > 0 {
			for _, id := range p.IDs {
				if id == b.id {
					fns = append(fns, b.fn)
					break
				}
			}
			continue
		}
		if b.filter.Table == p.Data.Table && b.filter.Schema == p.Data.Schema &&
			(b.filter.Event == "*" || b.filter.Event == p.Data.Type) &&
			recordMatches(b.filter.Filter, p.Data) {
			fns = append(fns, b.fn)
		}
	}
	return fns
}

// recordMatches 本地计算 col=eq.value / col=neq.value；其它运算符交给服务端
func recordMatches(filter string, e ChangeEvent) bool {
	if filter == "" {
		return true
	}
	col, rest, ok := strings.Cut(filter, "=")
	if !ok {
		return true
	}
	op, want, ok := strings.Cut(rest, ".")
	if !ok || (op != "eq" && op != "neq") {
		return true
	}

	record := e.Record
	if e.Type == "DELETE" && len(e.OldRecord) > 0 {
		record = e.OldRecord
	}
	var row map[string]interface{}
	if err := json.Unmarshal(record, &row); err != nil {
		return false
	}
	v, present := row[col]
	got := fmt.Sprint(v)
	if v == nil {
		got = "null"
	}
	equal := present && got == want
	if op == "eq" {
		return equal
	}
	return present && !equal
}

func (ch *Channel) firePresenceSync() {
	ch.mu.RLock()
	fns := make([]func(), len(ch.presenceSync))
	copy(fns, ch.presenceSync)
	ch.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

func applyDiff(state map[string]Presence, diff presenceDiff) {
	for key, entry := range diff.Joins {
		existing := state[key]
		for _, meta := range entry.Metas {
			if !hasRef(existing, meta) {
				existing = append(existing, meta)
			}
		}
		state[key] = existing
	}

	for key, entry := range diff.Leaves {
		existing, ok := state[key]
		if !ok {
			continue
		}
		kept := existing[:0]
		for _, meta := range existing {
			if !hasRef(entry.Metas, meta) {
				kept = append(kept, meta)
			}
		}
		if len(kept) == 0 {
			delete(state, key)
		} else {
			state[key] = kept
		}
	}
}

func hasRef(metas Presence, meta map[string]interface{}) bool {
	ref, _ := meta["phx_ref"].(string)
	if ref == "" {
		return false
	}
	for _, m := range metas {
		if r, _ := m["phx_ref"].(string); r == ref {
			return true
		}
	}
	return false
}

func sameFilter(a, b PostgresChangesFilter) bool {
	return a.Event == b.Event && a.Schema == b.Schema && a.Table == b.Table && a.Filter == b.Filter
}
