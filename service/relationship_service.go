package service

import (
	"context"
	"fmt"
	"strings"

	"safimatch/model"
	"safimatch/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RelationshipService 安全操作：拉黑和举报，只追加
type RelationshipService struct {
	db *gorm.DB
}

func NewRelationshipService(db *gorm.DB) *RelationshipService {
	return &RelationshipService{db: db}
}

// Block 拉黑
func (s *RelationshipService) Block(ctx context.Context, ident model.Identity, targetUserID uuid.UUID) error {
	if targetUserID == ident.UserID {
		return ErrSelfTarget
	}

	block := &model.Block{
		DeUserID:   ident.UserID,
		ParaUserID: targetUserID,
	}
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Create(block).Error
	})
	if err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

// Report 举报，motivo 必填
func (s *RelationshipService) Report(ctx context.Context, ident model.Identity, targetUserID uuid.UUID, motivo string, descricao *string) error {
	if targetUserID == ident.UserID {
		return ErrSelfTarget
	}
	motivo = strings.TrimSpace(motivo)
	if motivo == "" {
		return invalidInput("motivo é obrigatório")
	}

	report := &model.Report{
		DeUserID:   ident.UserID,
		ParaUserID: targetUserID,
		Motivo:     motivo,
		Descricao:  descricao,
	}
	err := utils.WithUser(ctx, s.db, ident, func(tx *gorm.DB) error {
		return tx.Create(report).Error
	})
	if err != nil {
		return fmt.Errorf("failed to report user: %w", err)
	}
	return nil
}
