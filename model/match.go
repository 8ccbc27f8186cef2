package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	MatchStatusActive = "ativo"
	MatchStatusEnded  = "encerrado"
)

// Match 由数据库触发器在双向喜欢时创建（matches）
type Match struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UsuarioAID uuid.UUID `json:"usuario_a_id" gorm:"column:usuario_a_id;type:uuid;not null"`
	UsuarioBID uuid.UUID `json:"usuario_b_id" gorm:"column:usuario_b_id;type:uuid;not null"`
	Status     string    `json:"status" gorm:"type:varchar(20);default:ativo"`
	CriadoEm   time.Time `json:"criado_em" gorm:"autoCreateTime"`
}

func (Match) TableName() string {
	return "matches"
}

// Other 返回另一方
func (m Match) Other(userID uuid.UUID) uuid.UUID {
	if m.UsuarioAID == userID {
		return m.UsuarioBID
	}
	return m.UsuarioAID
}

// MatchWithProfile matches_com_perfis 视图的一行（对当前用户视角计算）
type MatchWithProfile struct {
	MatchID         uuid.UUID  `json:"match_id" gorm:"type:uuid"`
	Status          string     `json:"status"`
	MatchEm         time.Time  `json:"match_em"`
	UltimaMsg       *string    `json:"ultima_msg,omitempty"`
	UltimaMsgEm     *time.Time `json:"ultima_msg_em,omitempty"`
	MsgsNaoLidas    int        `json:"msgs_nao_lidas"`
	OutraUserID     uuid.UUID  `json:"outra_user_id" gorm:"type:uuid"`
	OutraNome       string     `json:"outra_nome"`
	OutraFoto       *string    `json:"outra_foto,omitempty"`
	OutraVerificada bool       `json:"outra_verificada"`
	OutraOnline     bool       `json:"outra_online"`
}

func (MatchWithProfile) TableName() string {
	return "matches_com_perfis"
}

// MatchPartner 列表里对方的摘要
type MatchPartner struct {
	UserID        uuid.UUID `json:"user_id"`
	Nome          string    `json:"nome"`
	FotoPrincipal *string   `json:"foto_principal,omitempty"`
	Fotos         []string  `json:"fotos"`
	Verificada    bool      `json:"verificada"`
	OnlineAgora   bool      `json:"online_agora"`
}

// MatchSummary 匹配列表项
type MatchSummary struct {
	ID           uuid.UUID    `json:"id"`
	Status       string       `json:"status"`
	CriadoEm     time.Time    `json:"criado_em"`
	UltimaMsg    *string      `json:"ultima_msg,omitempty"`
	UltimaMsgEm  *time.Time   `json:"ultima_msg_em,omitempty"`
	MsgsNaoLidas int          `json:"msgs_nao_lidas"`
	PerfilDela   MatchPartner `json:"perfil_dela"`
}

// Summary 转成列表项
func (m MatchWithProfile) Summary() MatchSummary {
	fotos := []string{}
	if m.OutraFoto != nil {
		fotos = append(fotos, *m.OutraFoto)
	}
	return MatchSummary{
		ID:           m.MatchID,
		Status:       m.Status,
		CriadoEm:     m.MatchEm,
		UltimaMsg:    m.UltimaMsg,
		UltimaMsgEm:  m.UltimaMsgEm,
		MsgsNaoLidas: m.MsgsNaoLidas,
		PerfilDela: MatchPartner{
			UserID:        m.OutraUserID,
			Nome:          m.OutraNome,
			FotoPrincipal: m.OutraFoto,
			Fotos:         fotos,
			Verificada:    m.OutraVerificada,
			OnlineAgora:   m.OutraOnline,
		},
	}
}

// LikeReceived 收到的喜欢（带发送者资料）
type LikeReceived struct {
	DeUserID      uuid.UUID `json:"de_user_id"`
	Tipo          LikeKind  `json:"tipo"`
	CriadoEm      time.Time `json:"criado_em"`
	Nome          string    `json:"nome"`
	FotoPrincipal *string   `json:"foto_principal,omitempty"`
	Cidade        *string   `json:"cidade,omitempty"`
	Verificada    bool      `json:"verificada"`
}
