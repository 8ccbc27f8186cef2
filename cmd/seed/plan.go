package main

import (
	"fmt"

	"safimatch/model"

	"github.com/goccy/go-yaml"
)

// Account 一个测试账号
type Account struct {
	Email          string   `yaml:"email"`
	Nome           string   `yaml:"nome"`
	Bio            string   `yaml:"bio"`
	DataNascimento string   `yaml:"data_nascimento"`
	Cidade         string   `yaml:"cidade"`
	Estado         string   `yaml:"estado"`
	Orientacao     string   `yaml:"orientacao"`
	Interesses     []string `yaml:"interesses"`
	Latitude       float64  `yaml:"latitude"`
	Longitude      float64  `yaml:"longitude"`
}

// Pair 一对喜欢；Volta 为空时只有单向
type Pair struct {
	De    int            `yaml:"de"`
	Para  int            `yaml:"para"`
	Ida   model.LikeKind `yaml:"ida"`
	Volta model.LikeKind `yaml:"volta"`
}

func (p Pair) Mutual() bool {
	return p.Volta != ""
}

type Line struct {
	Autora int    `yaml:"autora"`
	Texto  string `yaml:"texto"`
}

// Conversation 已匹配的两人之间的示例对话
type Conversation struct {
	A         int    `yaml:"a"`
	B         int    `yaml:"b"`
	Mensagens []Line `yaml:"mensagens"`
}

// Plan 种子数据
type Plan struct {
	Senha     string         `yaml:"senha"`
	Contas    []Account      `yaml:"contas"`
	Pares     []Pair         `yaml:"pares"`
	Conversas []Conversation `yaml:"conversas"`
}

// ParsePlan 解析并校验下标
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if plan.Senha == "" {
		return nil, fmt.Errorf("seed file has no senha")
	}

	n := len(plan.Contas)
	inRange := func(i int) bool { return i >= 0 && i < n }

	for i, acc := range plan.Contas {
		if acc.Email == "" {
			return nil, fmt.Errorf("conta %d has no email", i)
		}
		if acc.DataNascimento != "" {
			if _, err := model.ParseDate(acc.DataNascimento); err != nil {
				return nil, fmt.Errorf("conta %s: %w", acc.Email, err)
			}
		}
	}
	for i, p := range plan.Pares {
		if !inRange(p.De) || !inRange(p.Para) || p.De == p.Para {
			return nil, fmt.Errorf("par %d: invalid indices %d/%d", i, p.De, p.Para)
		}
		if !p.Ida.Valid() || (p.Mutual() && !p.Volta.Valid()) {
			return nil, fmt.Errorf("par %d: invalid like kind", i)
		}
	}
	for i, c := range plan.Conversas {
		if !inRange(c.A) || !inRange(c.B) {
			return nil, fmt.Errorf("conversa %d: invalid indices %d/%d", i, c.A, c.B)
		}
		for _, line := range c.Mensagens {
			if line.Autora != 0 && line.Autora != 1 {
				return nil, fmt.Errorf("conversa %d: autora must be 0 or 1", i)
			}
		}
	}
	return &plan, nil
}

// ProfileUpdate 账号对应的资料更新
func (a Account) ProfileUpdate() model.ProfileUpdate {
	u := model.ProfileUpdate{
		Nome:       strPtr(a.Nome),
		Bio:        strPtr(a.Bio),
		Cidade:     strPtr(a.Cidade),
		Estado:     strPtr(a.Estado),
		Orientacao: strPtr(a.Orientacao),
		Interesses: a.Interesses,
		Latitude:   &a.Latitude,
		Longitude:  &a.Longitude,
	}
	if a.DataNascimento != "" {
		if d, err := model.ParseDate(a.DataNascimento); err == nil {
			u.DataNascimento = &d
		}
	}
	return u
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
