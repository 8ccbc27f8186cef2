package model

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotAuthenticated 没有登录身份
var ErrNotAuthenticated = errors.New("não autenticada")

// Identity 当前请求的登录身份（来自 access token）
type Identity struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role"`
	AccessToken string    `json:"-"`
}

// IsZero 是否为空身份
func (i Identity) IsZero() bool {
	return i.UserID == uuid.Nil
}
