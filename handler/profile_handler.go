package handler

import (
	"safimatch/model"
	"safimatch/service"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profileSvc *service.ProfileService
}

func NewProfileHandler(profileSvc *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileSvc: profileSvc}
}

// GetMyProfile GET /api/v1/perfil
func (h *ProfileHandler) GetMyProfile(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	profile, err := h.profileSvc.MyProfile(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, profile)
}

// UpdateMyProfile PUT /api/v1/perfil，只接受可编辑字段
func (h *ProfileHandler) UpdateMyProfile(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	var update model.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	profile, err := h.profileSvc.UpdateProfile(c.Request.Context(), ident, update)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Perfil atualizado!", profile)
}

// GetPublicProfile GET /api/v1/perfis/:id
func (h *ProfileHandler) GetPublicProfile(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	profile, err := h.profileSvc.PublicProfile(c.Request.Context(), ident, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, service.NormalizeCandidate(*profile))
}

// ToggleInterest 选中或取消一个兴趣，已满 5 个时拒绝新增
func (h *ProfileHandler) ToggleInterest(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req struct {
		Interesse string `json:"interesse" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	current, err := h.profileSvc.MyProfile(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}

	next := service.ToggleInterest(current.Interesses, req.Interesse)
	if len(next) == len(current.Interesses) && !containsString(current.Interesses, req.Interesse) {
		utils.BadRequest(c, "Escolha no máximo 5 interesses")
		return
	}

	profile, err := h.profileSvc.UpdateProfile(c.Request.Context(), ident, model.ProfileUpdate{Interesses: next})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, profile)
}

// Options 兴趣和取向的可选值
func (h *ProfileHandler) Options(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"interesses":     service.InterestOptions,
		"orientacoes":    service.Orientations,
		"max_interesses": model.MaxInterests,
		"max_fotos":      model.MaxProfilePhotos,
	})
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
