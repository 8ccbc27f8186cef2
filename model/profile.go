package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Orientation 取值（perfis.orientacao）
const (
	OrientationLesbian       = "lesbica"
	OrientationBisexual      = "bissexual"
	OrientationPansexual     = "pansexual"
	OrientationPreferNotSay  = "prefiro_nao_dizer"
	MaxInterests             = 5
	MaxProfilePhotos         = 6
	DiscoveryPlaceholderFoto = "https://randomuser.me/api/portraits/women/90.jpg"
)

// Profile 用户资料表（perfis）
type Profile struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID         uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	Nome           string         `json:"nome"`
	Bio            *string        `json:"bio,omitempty"`
	DataNascimento *Date          `json:"data_nascimento,omitempty" gorm:"type:date"`
	Cidade         *string        `json:"cidade,omitempty"`
	Estado         *string        `json:"estado,omitempty"`
	Orientacao     *string        `json:"orientacao,omitempty"`
	Interesses     pq.StringArray `json:"interesses" gorm:"type:text[]"`
	Latitude       *float64       `json:"latitude,omitempty"`
	Longitude      *float64       `json:"longitude,omitempty"`
	Fotos          pq.StringArray `json:"fotos" gorm:"type:text[]"`
	FotoPrincipal  *string        `json:"foto_principal,omitempty"`
	Verificada     bool           `json:"verificada"`
	Ativa          bool           `json:"ativa"`
	Completude     int            `json:"completude"`
	UltimoAcesso   *time.Time     `json:"ultimo_acesso,omitempty"`
	CriadoEm       time.Time      `json:"criado_em" gorm:"autoCreateTime"`
	AtualizadoEm   time.Time      `json:"atualizado_em" gorm:"autoUpdateTime"`

	// 客户端计算，不落库
	Idade *int `json:"idade,omitempty" gorm:"-"`
}

func (Profile) TableName() string {
	return "perfis"
}

// PublicProfile 公开资料视图（perfis_publicos，idade 由视图计算）
type PublicProfile struct {
	UserID         uuid.UUID      `json:"user_id" gorm:"type:uuid"`
	Nome           string         `json:"nome"`
	Bio            *string        `json:"bio,omitempty"`
	DataNascimento *Date          `json:"data_nascimento,omitempty" gorm:"type:date"`
	Idade          *int           `json:"idade,omitempty"`
	Cidade         *string        `json:"cidade,omitempty"`
	Estado         *string        `json:"estado,omitempty"`
	Orientacao     *string        `json:"orientacao,omitempty"`
	Interesses     pq.StringArray `json:"interesses" gorm:"type:text[]"`
	Fotos          pq.StringArray `json:"fotos" gorm:"type:text[]"`
	FotoPrincipal  *string        `json:"foto_principal,omitempty"`
	Verificada     bool           `json:"verificada"`
	OnlineAgora    bool           `json:"online_agora"`
}

func (PublicProfile) TableName() string {
	return "perfis_publicos"
}

// ProfileUpdate 允许更新的字段（nil 表示不修改）
type ProfileUpdate struct {
	Nome           *string  `json:"nome,omitempty"`
	Bio            *string  `json:"bio,omitempty"`
	DataNascimento *Date    `json:"data_nascimento,omitempty"`
	Cidade         *string  `json:"cidade,omitempty"`
	Estado         *string  `json:"estado,omitempty"`
	Orientacao     *string  `json:"orientacao,omitempty"`
	Interesses     []string `json:"interesses,omitempty"`
	Fotos          []string `json:"fotos,omitempty"`
	FotoPrincipal  *string  `json:"foto_principal,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`

	// ClearFotoPrincipal 显式清空主图（removerFoto 后没有照片时）
	ClearFotoPrincipal bool `json:"-"`
}

// Apply 把更新合并到资料上
func (u ProfileUpdate) Apply(p *Profile) {
	if u.Nome != nil {
		p.Nome = *u.Nome
	}
	if u.Bio != nil {
		p.Bio = u.Bio
	}
	if u.DataNascimento != nil {
		p.DataNascimento = u.DataNascimento
	}
	if u.Cidade != nil {
		p.Cidade = u.Cidade
	}
	if u.Estado != nil {
		p.Estado = u.Estado
	}
	if u.Orientacao != nil {
		p.Orientacao = u.Orientacao
	}
	if u.Interesses != nil {
		p.Interesses = pq.StringArray(u.Interesses)
	}
	if u.Fotos != nil {
		p.Fotos = pq.StringArray(u.Fotos)
	}
	if u.FotoPrincipal != nil {
		p.FotoPrincipal = u.FotoPrincipal
	}
	if u.ClearFotoPrincipal {
		p.FotoPrincipal = nil
	}
	if u.Latitude != nil {
		p.Latitude = u.Latitude
	}
	if u.Longitude != nil {
		p.Longitude = u.Longitude
	}
}

// Columns 生成 UPDATE 的列映射
func (u ProfileUpdate) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if u.Nome != nil {
		cols["nome"] = *u.Nome
	}
	if u.Bio != nil {
		cols["bio"] = *u.Bio
	}
	if u.DataNascimento != nil {
		cols["data_nascimento"] = *u.DataNascimento
	}
	if u.Cidade != nil {
		cols["cidade"] = *u.Cidade
	}
	if u.Estado != nil {
		cols["estado"] = *u.Estado
	}
	if u.Orientacao != nil {
		cols["orientacao"] = *u.Orientacao
	}
	if u.Interesses != nil {
		cols["interesses"] = pq.StringArray(u.Interesses)
	}
	if u.Fotos != nil {
		cols["fotos"] = pq.StringArray(u.Fotos)
	}
	if u.FotoPrincipal != nil {
		cols["foto_principal"] = *u.FotoPrincipal
	}
	if u.ClearFotoPrincipal {
		cols["foto_principal"] = nil
	}
	if u.Latitude != nil {
		cols["latitude"] = *u.Latitude
	}
	if u.Longitude != nil {
		cols["longitude"] = *u.Longitude
	}
	return cols
}
