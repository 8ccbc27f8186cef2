package service

import "safimatch/model"

// InterestOptions 可选兴趣
var InterestOptions = []string{
	"Arte", "Música", "Viagem", "Esportes", "Leitura",
	"Cinema", "Culinária", "Yoga", "Natureza", "Moda",
	"Tecnologia", "Fotografia", "Dança", "Gaming",
}

// Orientation 取值和显示名
type Orientation struct {
	Value string `json:"valor"`
	Label string `json:"rotulo"`
}

var Orientations = []Orientation{
	{model.OrientationLesbian, "Lésbica"},
	{model.OrientationBisexual, "Bissexual"},
	{model.OrientationPansexual, "Pansexual"},
	{model.OrientationPreferNotSay, "Prefiro não dizer"},
}

// ToggleInterest 已选则移除；未选且不足上限时追加，否则原样返回
func ToggleInterest(selected []string, item string) []string {
	out := make([]string, 0, len(selected)+1)
	found := false
	for _, s := range selected {
		if s == item {
			found = true
			continue
		}
		out = append(out, s)
	}
	if found {
		return out
	}
	if len(selected) >= model.MaxInterests {
		return append(out[:0:0], selected...)
	}
	return append(out, item)
}

// ValidOrientation 是否为已知取向
func ValidOrientation(v string) bool {
	for _, o := range Orientations {
		if o.Value == v {
			return true
		}
	}
	return false
}
