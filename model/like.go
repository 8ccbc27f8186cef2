package model

import (
	"time"

	"github.com/google/uuid"
)

// LikeKind curtidas.tipo
type LikeKind string

const (
	LikeKindLike      LikeKind = "like"
	LikeKindSuperlike LikeKind = "superlike"
	LikeKindNope      LikeKind = "nope"
)

// Valid 是否为已知类型
func (k LikeKind) Valid() bool {
	switch k {
	case LikeKindLike, LikeKindSuperlike, LikeKindNope:
		return true
	}
	return false
}

// ChecksMatch nope 不需要查询 match
func (k LikeKind) ChecksMatch() bool {
	return k == LikeKindLike || k == LikeKindSuperlike
}

// Like 有向边（curtidas），(de_user_id, para_user_id) 唯一
type Like struct {
	DeUserID   uuid.UUID `json:"de_user_id" gorm:"type:uuid;primaryKey"`
	ParaUserID uuid.UUID `json:"para_user_id" gorm:"type:uuid;primaryKey"`
	Tipo       LikeKind  `json:"tipo" gorm:"type:varchar(20);not null"`
	CriadoEm   time.Time `json:"criado_em" gorm:"autoCreateTime"`
}

func (Like) TableName() string {
	return "curtidas"
}

// LikeResult 点赞结果
type LikeResult struct {
	Matched bool       `json:"matched"`
	MatchID *uuid.UUID `json:"match_id,omitempty"`
}
