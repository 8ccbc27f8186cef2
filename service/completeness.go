package service

import (
	"math"
	"time"

	"safimatch/model"
)

// Completeness 资料完整度 0..100
func Completeness(p *model.Profile) int {
	if p == nil {
		return 0
	}

	score := 0
	if p.Nome != "" {
		score += 15
	}
	if nonEmpty(p.Bio) {
		score += 15
	}
	if p.DataNascimento != nil && !p.DataNascimento.IsZero() {
		score += 10
	}
	if nonEmpty(p.Cidade) {
		score += 10
	}
	if nonEmpty(p.Orientacao) {
		score += 10
	}
	if nonEmpty(p.FotoPrincipal) {
		score += 20
	}
	if len(p.Interesses) > 0 {
		score += 10
	}
	if len(p.Fotos) >= 2 {
		score += 10
	}
	return score
}

// Age 按 365.25 天一年向下取整
func Age(birth model.Date, now time.Time) int {
	days := now.Sub(birth.Time).Hours() / 24
	return int(math.Floor(days / 365.25))
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}
