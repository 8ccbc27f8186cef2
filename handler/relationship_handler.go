package handler

import (
	"safimatch/service"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RelationshipHandler struct {
	relSvc *service.RelationshipService
}

func NewRelationshipHandler(relSvc *service.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relSvc: relSvc}
}

// BlockUser 拉黑用户
func (h *RelationshipHandler) BlockUser(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req struct {
		TargetUserID uuid.UUID `json:"para_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := h.relSvc.Block(c.Request.Context(), ident, req.TargetUserID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Usuária bloqueada.", nil)
}

// ReportUser 举报用户
func (h *RelationshipHandler) ReportUser(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req struct {
		TargetUserID uuid.UUID `json:"para_user_id" binding:"required"`
		Motivo       string    `json:"motivo" binding:"required"`
		Descricao    *string   `json:"descricao"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := h.relSvc.Report(c.Request.Context(), ident, req.TargetUserID, req.Motivo, req.Descricao); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Denúncia enviada.", nil)
}
