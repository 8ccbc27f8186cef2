package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"safimatch/model"
	"safimatch/realtime"
	"safimatch/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchService 喜欢和匹配（curtidas / matches）
type MatchService struct {
	db *gorm.DB
}

func NewMatchService(db *gorm.DB) *MatchService {
	return &MatchService{db: db}
}

// Like 记录滑动；like / superlike 在同一个事务里查询是否已经匹配
//
// matches 行由数据库触发器在插入 curtidas 时创建，同事务内可见，
// 所以不存在"写完再读"的时间窗口。
func (s *MatchService) Like(ctx context.Context, ident model.Identity, targetUserID uuid.UUID, kind model.LikeKind) (*model.LikeResult, error) {
	if !kind.Valid() {
		return nil, ErrInvalidLikeKind
	}
	if targetUserID == ident.UserID {
		return nil, ErrSelfTarget
	}

	result := &model.LikeResult{}
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		like := &model.Like{
			DeUserID:   ident.UserID,
			ParaUserID: targetUserID,
			Tipo:       kind,
		}
		if err := upsertLike(tx, like).Error; err != nil {
			return fmt.Errorf("failed to record like: %w", err)
		}

		if !kind.ChecksMatch() {
			return nil
		}

		match, err := findMatchBetween(tx, ident.UserID, targetUserID)
		if err != nil {
			return err
		}
		if match != nil {
			result.Matched = true
			result.MatchID = &match.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UndoLike 删除这条边
func (s *MatchService) UndoLike(ctx context.Context, ident model.Identity, targetUserID uuid.UUID) error {
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return deleteLike(tx, ident.UserID, targetUserID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to undo like: %w", err)
	}
	return nil
}

// ListMatches 匹配列表，按最后一条消息时间倒序（没有消息的排最后）
func (s *MatchService) ListMatches(ctx context.Context, ident model.Identity) ([]model.MatchSummary, error) {
	var rows []model.MatchWithProfile
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Order("ultima_msg_em DESC NULLS LAST").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	summaries := make([]model.MatchSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.Summary())
	}
	return summaries, nil
}

// GetMatch 读取一个匹配（RLS 只返回自己参与的）
func (s *MatchService) GetMatch(ctx context.Context, ident model.Identity, matchID uuid.UUID) (*model.Match, error) {
	var match model.Match
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Where("id = ?", matchID).First(&match).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	if match.UsuarioAID != ident.UserID && match.UsuarioBID != ident.UserID {
		return nil, ErrMatchNotFound
	}
	return &match, nil
}

// EndMatch 结束匹配（status = encerrado）
func (s *MatchService) EndMatch(ctx context.Context, ident model.Identity, matchID uuid.UUID) error {
	var affected int64
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		res := tx.Model(&model.Match{}).
			Where("id = ? AND (usuario_a_id = ? OR usuario_b_id = ?)", matchID, ident.UserID, ident.UserID).
			Update("status", model.MatchStatusEnded)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("failed to end match: %w", err)
	}
	if affected == 0 {
		return ErrMatchNotFound
	}
	return nil
}

// WhoLikedMe 收到的 like / superlike，最新的在前
func (s *MatchService) WhoLikedMe(ctx context.Context, ident model.Identity) ([]model.LikeReceived, error) {
	var rows []model.LikeReceived
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Table("curtidas AS c").
			Select("c.de_user_id, c.tipo, c.criado_em, p.nome, p.foto_principal, p.cidade, p.verificada").
			Joins("JOIN perfis p ON p.user_id = c.de_user_id").
			Where("c.para_user_id = ? AND c.tipo IN ?", ident.UserID, []model.LikeKind{model.LikeKindLike, model.LikeKindSuperlike}).
			Order("c.criado_em DESC").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list likes: %w", err)
	}
	return rows, nil
}

// ListenNewMatches 订阅新匹配（自己在 a 或 b 任一侧），返回取消函数
func (s *MatchService) ListenNewMatches(ctx context.Context, rt *realtime.Client, userID uuid.UUID, fn func(model.Match)) (func(), error) {
	handler := func(e realtime.ChangeEvent) {
		var match model.Match
		if err := e.Decode(&match); err != nil {
			log.Printf("[WARN] Invalid match payload: %v", err)
			return
		}
		fn(match)
	}

	ch := rt.Channel("novos-matches", realtime.ChannelConfig{}).
		OnPostgresChanges(realtime.PostgresChangesFilter{
			Event: "INSERT", Schema: "public", Table: "matches",
			Filter: "usuario_a_id=eq." + userID.String(),
		}, handler).
		OnPostgresChanges(realtime.PostgresChangesFilter{
			Event: "INSERT", Schema: "public", Table: "matches",
			Filter: "usuario_b_id=eq." + userID.String(),
		}, handler)

	if err := ch.Subscribe(ctx); err != nil {
		rt.RemoveChannel(context.Background(), ch)
		return nil, fmt.Errorf("failed to subscribe to matches: %w", err)
	}

	return func() {
		if err := rt.RemoveChannel(context.Background(), ch); err != nil {
			log.Printf("[WARN] Failed to leave matches channel: %v", err)
		}
	}, nil
}

func findMatchBetween(tx *gorm.DB, a, b uuid.UUID) (*model.Match, error) {
	var matches []model.Match
	err := matchBetween(tx, a, b).Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check match: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// upsertLike 同一方向的边只保留一条，重复滑动改写类型和时间
func upsertLike(tx *gorm.DB, like *model.Like) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "de_user_id"}, {Name: "para_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tipo", "criado_em"}),
	}).Create(like)
}

func deleteLike(tx *gorm.DB, from, to uuid.UUID) *gorm.DB {
	return tx.Where("de_user_id = ? AND para_user_id = ?", from, to).Delete(&model.Like{})
}

// matchBetween 两个方向都要查，usuario_a / usuario_b 的顺序不固定
func matchBetween(tx *gorm.DB, a, b uuid.UUID) *gorm.DB {
	return tx.Model(&model.Match{}).
		Where("(usuario_a_id = ? AND usuario_b_id = ?) OR (usuario_a_id = ? AND usuario_b_id = ?)", a, b, b, a).
		Limit(1)
}
