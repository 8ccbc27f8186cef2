package model

import (
	"time"

	"github.com/google/uuid"
)

// Block 拉黑记录（bloqueios），只追加
type Block struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DeUserID   uuid.UUID `json:"de_user_id" gorm:"type:uuid;not null"`
	ParaUserID uuid.UUID `json:"para_user_id" gorm:"type:uuid;not null"`
	CriadoEm   time.Time `json:"criado_em" gorm:"autoCreateTime"`
}

func (Block) TableName() string {
	return "bloqueios"
}

// Report 举报记录（denuncias），只追加
type Report struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DeUserID   uuid.UUID `json:"de_user_id" gorm:"type:uuid;not null"`
	ParaUserID uuid.UUID `json:"para_user_id" gorm:"type:uuid;not null"`
	Motivo     string    `json:"motivo" gorm:"not null"`
	Descricao  *string   `json:"descricao,omitempty"`
	CriadoEm   time.Time `json:"criado_em" gorm:"autoCreateTime"`
}

func (Report) TableName() string {
	return "denuncias"
}
