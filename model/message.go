package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType mensagens.tipo
type MessageType string

const (
	MessageTypeText     MessageType = "texto"
	MessageTypePhoto    MessageType = "foto"
	MessageTypeViewOnce MessageType = "foto_unica"
)

// Message 消息表（mensagens），只追加，只翻转 lida / view_once_visto
type Message struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MatchID       uuid.UUID      `json:"match_id" gorm:"type:uuid;not null;index"`
	DeUserID      uuid.UUID      `json:"de_user_id" gorm:"type:uuid;not null"`
	Conteudo      *string        `json:"conteudo" gorm:"type:text"` // 照片类为空
	Tipo          MessageType    `json:"tipo" gorm:"type:varchar(20);not null;default:texto"`
	Lida          bool           `json:"lida" gorm:"default:false"`
	FotoURL       *string        `json:"foto_url,omitempty"`
	ViewOnce      bool           `json:"view_once" gorm:"default:false"`
	ViewOnceVisto bool           `json:"view_once_visto" gorm:"default:false"`
	CriadoEm      time.Time      `json:"criado_em" gorm:"autoCreateTime"`
	Perfis        *SenderSnippet `json:"perfis,omitempty" gorm:"-"`
}

func (Message) TableName() string {
	return "mensagens"
}

// SenderSnippet 实时推送附带的发送者信息
type SenderSnippet struct {
	Nome          string  `json:"nome"`
	FotoPrincipal *string `json:"foto_principal,omitempty"`
}
