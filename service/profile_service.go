package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safimatch/model"
	"safimatch/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	DefaultDiscoveryLimit = 20
	discoveryMinAge       = 18
	discoveryMaxAge       = 60
)

// ProfileService 资料服务（perfis / perfis_publicos）
type ProfileService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{db: db, now: time.Now}
}

// MyProfile 当前用户资料，idade 按出生日期计算
func (s *ProfileService) MyProfile(ctx context.Context, ident model.Identity) (*model.Profile, error) {
	var profile *model.Profile
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		var err error
		profile, err = loadOwnProfile(tx, ident.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.fillAge(profile)
	return profile, nil
}

// TouchLastAccess 登录时更新 ultimo_acesso
func (s *ProfileService) TouchLastAccess(ctx context.Context, ident model.Identity) error {
	return utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Model(&model.Profile{}).
			Where("user_id = ?", ident.UserID).
			Update("ultimo_acesso", s.now().UTC()).Error
	})
}

// Deactivate 停用资料（ativa = false）
func (s *ProfileService) Deactivate(ctx context.Context, ident model.Identity) error {
	return utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Model(&model.Profile{}).
			Where("user_id = ?", ident.UserID).
			Update("ativa", false).Error
	})
}

// PublicProfile 其他用户的公开资料
func (s *ProfileService) PublicProfile(ctx context.Context, ident model.Identity, userID uuid.UUID) (*model.PublicProfile, error) {
	var profile model.PublicProfile
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Where("user_id = ?", userID).First(&profile).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load public profile: %w", err)
	}
	return &profile, nil
}

// UpdateProfile 只更新允许的字段，合并当前行后重新计算 completude
func (s *ProfileService) UpdateProfile(ctx context.Context, ident model.Identity, update model.ProfileUpdate) (*model.Profile, error) {
	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	var updated *model.Profile
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		current, err := loadOwnProfile(tx, ident.UserID)
		if err != nil {
			return err
		}

		update.Apply(current)
		cols := update.Columns()
		cols["completude"] = Completeness(current)

		if err := tx.Model(&model.Profile{}).Where("user_id = ?", ident.UserID).Updates(cols).Error; err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}

		updated, err = loadOwnProfile(tx, ident.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.fillAge(updated)
	return updated, nil
}

// DiscoveryCandidates 发现页候选
//
// 总是排除自己；restart 为 false 时再排除所有已经滑过的人。年龄范围取自设置，
// 没有设置行时为 18..60。
func (s *ProfileService) DiscoveryCandidates(ctx context.Context, ident model.Identity, restart bool, limit int) ([]model.PublicProfile, error) {
	if limit <= 0 {
		limit = DefaultDiscoveryLimit
	}

	var profiles []model.PublicProfile
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		minAge, maxAge := discoveryMinAge, discoveryMaxAge
		var settings []model.Settings
		if err := settingsRow(tx, ident.UserID).Find(&settings).Error; err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if len(settings) == 1 {
			minAge, maxAge = settings[0].IdadeMin, settings[0].IdadeMax
		}

		exclude := []uuid.UUID{ident.UserID}
		if !restart {
			var seen []uuid.UUID
			if err := swipedBy(tx, ident.UserID).Pluck("para_user_id", &seen).Error; err != nil {
				return fmt.Errorf("failed to load swipes: %w", err)
			}
			exclude = append(exclude, seen...)
		}

		return candidates(tx, exclude, minAge, maxAge, limit).Find(&profiles).Error
	})
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

func swipedBy(tx *gorm.DB, userID uuid.UUID) *gorm.DB {
	return tx.Model(&model.Like{}).Where("de_user_id = ?", userID)
}

// candidates exclude 至少包含自己
func candidates(tx *gorm.DB, exclude []uuid.UUID, minAge, maxAge, limit int) *gorm.DB {
	return tx.Model(&model.PublicProfile{}).
		Where("user_id NOT IN ?", exclude).
		Where("idade >= ? AND idade <= ?", minAge, maxAge).
		Limit(limit)
}

// SetPhoto 把 url 放到 slot；slot 0 同时成为主图
func (s *ProfileService) SetPhoto(ctx context.Context, ident model.Identity, slot int, url string) (*model.Profile, error) {
	if slot < 0 || slot >= model.MaxProfilePhotos {
		return nil, ErrInvalidSlot
	}
	current, err := s.MyProfile(ctx, ident)
	if err != nil {
		return nil, err
	}

	fotos := PlacePhoto(current.Fotos, slot, url)
	update := model.ProfileUpdate{Fotos: fotos, FotoPrincipal: current.FotoPrincipal}
	if slot == 0 {
		update.FotoPrincipal = &url
	}
	return s.UpdateProfile(ctx, ident, update)
}

// RemovePhoto 删除 slot 并压缩数组，返回被删掉的 url
func (s *ProfileService) RemovePhoto(ctx context.Context, ident model.Identity, slot int) (*model.Profile, string, error) {
	current, err := s.MyProfile(ctx, ident)
	if err != nil {
		return nil, "", err
	}
	if slot < 0 || slot >= len(current.Fotos) {
		return nil, "", ErrInvalidSlot
	}

	removed := current.Fotos[slot]
	fotos := SplicePhoto(current.Fotos, slot)
	update := model.ProfileUpdate{Fotos: fotos}
	if slot == 0 {
		if len(fotos) > 0 {
			update.FotoPrincipal = &fotos[0]
		} else {
			update.ClearFotoPrincipal = true
		}
	}

	profile, err := s.UpdateProfile(ctx, ident, update)
	if err != nil {
		return nil, "", err
	}
	return profile, removed, nil
}

// SetPhotos 整体替换照片列表，第一张为主图
func (s *ProfileService) SetPhotos(ctx context.Context, ident model.Identity, urls []string) (*model.Profile, error) {
	update := model.ProfileUpdate{Fotos: append([]string{}, urls...)}
	if len(urls) > 0 {
		update.FotoPrincipal = &urls[0]
	} else {
		update.ClearFotoPrincipal = true
	}
	return s.UpdateProfile(ctx, ident, update)
}

func (s *ProfileService) fillAge(p *model.Profile) {
	if p.DataNascimento == nil || p.DataNascimento.IsZero() {
		p.Idade = nil
		return
	}
	age := Age(*p.DataNascimento, s.now())
	p.Idade = &age
}

// PlacePhoto slot 超出当前长度时追加到末尾
func PlacePhoto(fotos pq.StringArray, slot int, url string) []string {
	out := append([]string{}, fotos...)
	if slot < len(out) {
		out[slot] = url
		return out
	}
	return append(out, url)
}

// SplicePhoto 删除并压缩
func SplicePhoto(fotos pq.StringArray, slot int) []string {
	out := make([]string, 0, len(fotos))
	for i, f := range fotos {
		if i != slot {
			out = append(out, f)
		}
	}
	return out
}

func loadOwnProfile(tx *gorm.DB, userID uuid.UUID) (*model.Profile, error) {
	var rows []model.Profile
	if err := tx.Where("user_id = ?", userID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrProfileNotFound
	}
	return &rows[0], nil
}

func validateUpdate(u model.ProfileUpdate) error {
	if u.Orientacao != nil && *u.Orientacao != "" && !ValidOrientation(*u.Orientacao) {
		return invalidInput("orientação inválida: %s", *u.Orientacao)
	}
	if len(u.Interesses) > model.MaxInterests {
		return invalidInput("no máximo %d interesses", model.MaxInterests)
	}
	if len(u.Fotos) > model.MaxProfilePhotos {
		return invalidInput("no máximo %d fotos", model.MaxProfilePhotos)
	}
	return nil
}
