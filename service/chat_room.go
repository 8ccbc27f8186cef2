package service

import (
	"context"
	"log"
	"sync"

	"safimatch/model"

	"github.com/google/uuid"
)

// ChatStore 聊天室需要的消息读写
type ChatStore interface {
	Messages(ctx context.Context, ident model.Identity, matchID uuid.UUID, page, perPage int) ([]model.Message, error)
	MarkRead(ctx context.Context, ident model.Identity, matchID, fromUserID uuid.UUID) error
	MarkViewOnceSeen(ctx context.Context, ident model.Identity, messageID uuid.UUID) error
}

// ChatRoom 一个打开的对话：历史 + 实时追加（按 id 去重）
type ChatRoom struct {
	store       ChatStore
	ident       model.Identity
	matchID     uuid.UUID
	counterpart uuid.UUID

	mu       sync.Mutex
	messages []model.Message
	seen     map[uuid.UUID]struct{}
	loaded   bool
}

func NewChatRoom(store ChatStore, ident model.Identity, matchID, counterpart uuid.UUID) *ChatRoom {
	return &ChatRoom{
		store:       store,
		ident:       ident,
		matchID:     matchID,
		counterpart: counterpart,
		seen:        make(map[uuid.UUID]struct{}),
	}
}

func (r *ChatRoom) MatchID() uuid.UUID {
	return r.matchID
}

func (r *ChatRoom) Counterpart() uuid.UUID {
	return r.counterpart
}

// Load 第一次打开时读取历史并把对方的消息标记已读；之后直接返回当前列表
func (r *ChatRoom) Load(ctx context.Context) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return r.snapshotLocked(), nil
	}

	history, err := r.store.Messages(ctx, r.ident, r.matchID, 0, DefaultMessagesPerPage)
	if err != nil {
		return nil, err
	}
	for _, msg := range history {
		r.appendLocked(msg)
	}
	r.loaded = true

	if err := r.store.MarkRead(ctx, r.ident, r.matchID, r.counterpart); err != nil {
		log.Printf("[WARN] Failed to mark match %s as read: %v", r.matchID, err)
	}
	return r.snapshotLocked(), nil
}

// Append 追加实时消息，id 已存在时返回 false
func (r *ChatRoom) Append(msg model.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(msg)
}

func (r *ChatRoom) appendLocked(msg model.Message) bool {
	if _, ok := r.seen[msg.ID]; ok {
		return false
	}
	r.seen[msg.ID] = struct{}{}
	r.messages = append(r.messages, msg)
	return true
}

// Messages 当前列表副本
func (r *ChatRoom) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *ChatRoom) snapshotLocked() []model.Message {
	out := make([]model.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// OpenViewOnce 接收方打开一次性照片；第二次打开返回 ErrPhotoExpired
func (r *ChatRoom) OpenViewOnce(ctx context.Context, messageID uuid.UUID) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.messages {
		if r.messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrMessageNotFound
	}

	msg := r.messages[idx]
	if !msg.ViewOnce {
		return &msg, nil
	}
	if msg.DeUserID == r.ident.UserID {
		return nil, ErrNotRecipient
	}
	if msg.ViewOnceVisto {
		return nil, ErrPhotoExpired
	}

	if err := r.store.MarkViewOnceSeen(ctx, r.ident, messageID); err != nil {
		return nil, err
	}
	r.messages[idx].ViewOnceVisto = true
	msg.ViewOnceVisto = true
	return &msg, nil
}
