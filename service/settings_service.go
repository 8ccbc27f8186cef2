package service

import (
	"context"
	"fmt"
	"sync"

	"safimatch/model"
	"safimatch/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsService 用户设置（configuracoes_usuario），按用户缓存
type SettingsService struct {
	db      *gorm.DB
	cache   map[uuid.UUID]model.Settings
	cacheMu sync.RWMutex
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{
		db:    db,
		cache: make(map[uuid.UUID]model.Settings),
	}
}

// Get 读取设置；没有行时返回默认值（Persisted = false）
func (s *SettingsService) Get(ctx context.Context, ident model.Identity) (model.Settings, error) {
	if cached, ok := s.cached(ident.UserID); ok {
		return cached, nil
	}

	var rows []model.Settings
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return settingsRow(tx, ident.UserID).Find(&rows).Error
	})
	if err != nil {
		return model.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	settings := settingsOrDefault(ident.UserID, rows)
	if settings.Persisted {
		s.store(settings)
	}
	return settings, nil
}

func settingsRow(tx *gorm.DB, userID uuid.UUID) *gorm.DB {
	return tx.Model(&model.Settings{}).Where("user_id = ?", userID).Limit(1)
}

// upsertSettings 冲突键 user_id，整行覆盖
func upsertSettings(tx *gorm.DB, settings *model.Settings) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(settings)
}

// settingsOrDefault 没有行时返回默认值（Persisted = false）
func settingsOrDefault(userID uuid.UUID, rows []model.Settings) model.Settings {
	if len(rows) == 0 {
		return model.DefaultSettings(userID)
	}
	settings := rows[0]
	settings.Persisted = true
	return settings
}

// Upsert 整行写入，冲突键 user_id
func (s *SettingsService) Upsert(ctx context.Context, ident model.Identity, settings model.Settings) (model.Settings, error) {
	settings.UserID = ident.UserID
	if err := validateSettings(settings); err != nil {
		return model.Settings{}, err
	}

	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return upsertSettings(tx, &settings).Error
	})

	// 写失败时缓存可能已经过时
	s.invalidate(ident.UserID)
	if err != nil {
		return model.Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}

	settings.Persisted = true
	s.store(settings)
	return settings, nil
}

func (s *SettingsService) cached(userID uuid.UUID) (model.Settings, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	v, ok := s.cache[userID]
	return v, ok
}

func (s *SettingsService) store(settings model.Settings) {
	s.cacheMu.Lock()
	s.cache[settings.UserID] = settings
	s.cacheMu.Unlock()
}

func (s *SettingsService) invalidate(userID uuid.UUID) {
	s.cacheMu.Lock()
	delete(s.cache, userID)
	s.cacheMu.Unlock()
}

func validateSettings(v model.Settings) error {
	if v.IdadeMin < 18 {
		return invalidInput("idade mínima deve ser pelo menos 18")
	}
	if v.IdadeMax < v.IdadeMin {
		return invalidInput("idade máxima menor que a mínima")
	}
	if v.DistanciaMaxKm <= 0 {
		return invalidInput("distância máxima inválida")
	}
	return nil
}
