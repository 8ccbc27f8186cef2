package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"safimatch/model"
	"safimatch/realtime"
	"safimatch/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultMessagesPerPage = 50

	// senderLookupTimeout 实时回调跑在 realtime 读循环上，查询必须有上限
	senderLookupTimeout = 3 * time.Second
)

// ChatService 消息（mensagens）
type ChatService struct {
	db            *gorm.DB
	lookupTimeout time.Duration
}

func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{db: db, lookupTimeout: senderLookupTimeout}
}

// Messages 分页读取：按时间倒序取一页，再反转成旧的在前
func (s *ChatService) Messages(ctx context.Context, ident model.Identity, matchID uuid.UUID, page, perPage int) ([]model.Message, error) {
	if page < 0 {
		page = 0
	}
	if perPage <= 0 {
		perPage = DefaultMessagesPerPage
	}

	var messages []model.Message
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Where("match_id = ?", matchID).
			Order("criado_em DESC").
			Offset(page * perPage).
			Limit(perPage).
			Find(&messages).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SendText 发送文字消息
func (s *ChatService) SendText(ctx context.Context, ident model.Identity, matchID uuid.UUID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	return s.insert(ctx, ident, &model.Message{
		MatchID:  matchID,
		DeUserID: ident.UserID,
		Conteudo: &content,
		Tipo:     model.MessageTypeText,
	})
}

// SendPhoto 发送照片；viewOnce 为一次性照片
func (s *ChatService) SendPhoto(ctx context.Context, ident model.Identity, matchID uuid.UUID, photoURL string, viewOnce bool) (*model.Message, error) {
	if photoURL == "" {
		return nil, invalidInput("foto_url é obrigatória")
	}
	tipo := model.MessageTypePhoto
	if viewOnce {
		tipo = model.MessageTypeViewOnce
	}
	return s.insert(ctx, ident, &model.Message{
		MatchID:  matchID,
		DeUserID: ident.UserID,
		Tipo:     tipo,
		FotoURL:  &photoURL,
		ViewOnce: viewOnce,
	})
}

func (s *ChatService) insert(ctx context.Context, ident model.Identity, msg *model.Message) (*model.Message, error) {
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return msg, nil
}

// MarkRead 把对方发来的未读消息标记为已读
func (s *ChatService) MarkRead(ctx context.Context, ident model.Identity, matchID, fromUserID uuid.UUID) error {
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Model(&model.Message{}).
			Where("match_id = ? AND de_user_id = ? AND lida = ?", matchID, fromUserID, false).
			Update("lida", true).Error
	})
	if err != nil {
		return fmt.Errorf("failed to mark messages as read: %w", err)
	}
	return nil
}

// MarkViewOnceSeen 一次性照片已查看；已经看过时返回 ErrPhotoExpired
func (s *ChatService) MarkViewOnceSeen(ctx context.Context, ident model.Identity, messageID uuid.UUID) error {
	var affected int64
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		res := markViewOnceSeen(tx, messageID, ident.UserID)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("failed to mark photo as seen: %w", err)
	}
	if affected == 0 {
		return ErrPhotoExpired
	}
	return nil
}

// markViewOnceSeen 只有接收方、且照片还没看过时才会命中一行
func markViewOnceSeen(tx *gorm.DB, messageID, viewer uuid.UUID) *gorm.DB {
	return tx.Model(&model.Message{}).
		Where("id = ? AND view_once = ? AND view_once_visto = ? AND de_user_id <> ?", messageID, true, false, viewer).
		Update("view_once_visto", true)
}

// UnreadTotal 活跃匹配里对方发来的未读总数
func (s *ChatService) UnreadTotal(ctx context.Context, ident model.Identity) (int64, error) {
	var total int64
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		activeMatches := tx.Session(&gorm.Session{NewDB: true}).
			Model(&model.Match{}).
			Select("id").
			Where("(usuario_a_id = ? OR usuario_b_id = ?) AND status = ?", ident.UserID, ident.UserID, model.MatchStatusActive)

		return tx.Model(&model.Message{}).
			Where("lida = ? AND de_user_id <> ?", false, ident.UserID).
			Where("match_id IN (?)", activeMatches).
			Count(&total).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return total, nil
}

// SenderSnippet 发送者的名字和头像
func (s *ChatService) SenderSnippet(ctx context.Context, ident model.Identity, userID uuid.UUID) (*model.SenderSnippet, error) {
	var rows []model.SenderSnippet
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Model(&model.Profile{}).
			Select("nome, foto_principal").
			Where("user_id = ?", userID).
			Limit(1).
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// senderFor 带超时的 SenderSnippet，失败时返回 nil
func (s *ChatService) senderFor(ident model.Identity, userID uuid.UUID) *model.SenderSnippet {
	ctx, cancel := context.WithTimeout(context.Background(), s.lookupTimeout)
	defer cancel()
	snippet, err := s.SenderSnippet(ctx, ident, userID)
	if err != nil {
		log.Printf("[WARN] Failed to load sender %s: %v", userID, err)
		return nil
	}
	return snippet
}

// ListenMessages 订阅一个匹配的新消息，附带发送者信息
func (s *ChatService) ListenMessages(ctx context.Context, rt *realtime.Client, ident model.Identity, matchID uuid.UUID, fn func(model.Message)) (func(), error) {
	ch := rt.Channel("chat-"+matchID.String(), realtime.ChannelConfig{}).
		OnPostgresChanges(realtime.PostgresChangesFilter{
			Event:  "INSERT",
			Schema: "public",
			Table:  "mensagens",
			Filter: "match_id=eq." + matchID.String(),
		}, func(e realtime.ChangeEvent) {
			var msg model.Message
			if err := e.Decode(&msg); err != nil {
				log.Printf("[WARN] Invalid message payload on match %s: %v", matchID, err)
				return
			}
			msg.Perfis = s.senderFor(ident, msg.DeUserID)
			fn(msg)
		})

	if err := ch.Subscribe(ctx); err != nil {
		rt.RemoveChannel(context.Background(), ch)
		return nil, fmt.Errorf("failed to subscribe to messages: %w", err)
	}

	return func() {
		if err := rt.RemoveChannel(context.Background(), ch); err != nil {
			log.Printf("[WARN] Failed to leave chat channel: %v", err)
		}
	}, nil
}

// TypingPresence "正在输入"状态
type TypingPresence struct {
	rt      *realtime.Client
	channel *realtime.Channel
}

// Presence 加入 presence 频道；对方任一 meta 带 digitando=true 时回调 true
func (s *ChatService) Presence(ctx context.Context, rt *realtime.Client, matchID, userID uuid.UUID, onTyping func(bool)) (*TypingPresence, error) {
	key := userID.String()
	ch := rt.Channel("presence-"+matchID.String(), realtime.ChannelConfig{PresenceKey: key})
	ch.OnPresenceSync(func() {
		onTyping(OthersTyping(ch.PresenceState(), key))
	})

	if err := ch.Subscribe(ctx); err != nil {
		rt.RemoveChannel(context.Background(), ch)
		return nil, fmt.Errorf("failed to join presence: %w", err)
	}
	return &TypingPresence{rt: rt, channel: ch}, nil
}

// SetTyping 广播自己的输入状态
func (p *TypingPresence) SetTyping(ctx context.Context, typing bool) error {
	return p.channel.Track(ctx, map[string]interface{}{"digitando": typing})
}

// Stop 离开 presence 频道
func (p *TypingPresence) Stop() {
	if err := p.rt.RemoveChannel(context.Background(), p.channel); err != nil {
		log.Printf("[WARN] Failed to leave presence channel: %v", err)
	}
}

// OthersTyping selfKey 以外是否有人在输入（看每个 key 的第一条 meta）
func OthersTyping(state map[string]realtime.Presence, selfKey string) bool {
	for key, metas := range state {
		if key == selfKey || len(metas) == 0 {
			continue
		}
		if typing, _ := metas[0]["digitando"].(bool); typing {
			return true
		}
	}
	return false
}
