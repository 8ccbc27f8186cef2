package handler

import (
	"safimatch/service"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settingsSvc *service.SettingsService
}

func NewSettingsHandler(settingsSvc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsSvc: settingsSvc}
}

// GetSettings 当前用户的偏好，没有记录时返回默认值
// GET /api/v1/configuracoes
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	settings, err := h.settingsSvc.Get(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, settings)
}

// UpdateSettings 在当前值上合并请求里的字段后保存
// PUT /api/v1/configuracoes
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	current, err := h.settingsSvc.Get(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := c.ShouldBindJSON(&current); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	current.UserID = ident.UserID

	saved, err := h.settingsSvc.Upsert(c.Request.Context(), ident, current)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Configurações salvas.", saved)
}
