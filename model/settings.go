package model

import (
	"time"

	"github.com/google/uuid"
)

// Settings 每个用户至多一行（configuracoes_usuario）
type Settings struct {
	UserID           uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	DistanciaMaxKm   int       `json:"distancia_max_km"`
	IdadeMin         int       `json:"idade_min"`
	IdadeMax         int       `json:"idade_max"`
	NotifMatch       bool      `json:"notif_match"`
	NotifMensagem    bool      `json:"notif_mensagem"`
	NotifSuperlike   bool      `json:"notif_superlike"`
	ModoInvisivel    bool      `json:"modo_invisivel"`
	MostrarDistancia bool      `json:"mostrar_distancia"`
	AtualizadoEm     time.Time `json:"atualizado_em" gorm:"autoUpdateTime"`

	// Persisted 为 false 表示数据库里还没有这行，返回的是默认值
	Persisted bool `json:"persistido" gorm:"-"`
}

func (Settings) TableName() string {
	return "configuracoes_usuario"
}

// DefaultSettings 没有配置行时的默认值
func DefaultSettings(userID uuid.UUID) Settings {
	return Settings{
		UserID:           userID,
		DistanciaMaxKm:   50,
		IdadeMin:         18,
		IdadeMax:         45,
		NotifMatch:       true,
		NotifMensagem:    true,
		NotifSuperlike:   true,
		ModoInvisivel:    false,
		MostrarDistancia: true,
	}
}
