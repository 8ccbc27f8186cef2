package handler

import (
	"safimatch/model"
	"safimatch/service"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MatchHandler struct {
	matchSvc *service.MatchService
}

func NewMatchHandler(matchSvc *service.MatchService) *MatchHandler {
	return &MatchHandler{matchSvc: matchSvc}
}

// ListMatches GET /api/v1/matches
func (h *MatchHandler) ListMatches(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	matches, err := h.matchSvc.ListMatches(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, matches)
}

// GetMatch GET /api/v1/matches/:id
func (h *MatchHandler) GetMatch(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	match, err := h.matchSvc.GetMatch(c.Request.Context(), ident, matchID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, match)
}

// EndMatch DELETE /api/v1/matches/:id
func (h *MatchHandler) EndMatch(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.matchSvc.EndMatch(c.Request.Context(), ident, matchID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Match encerrado.", nil)
}

// Like POST /api/v1/curtidas，直接对某个用户 like / nope / superlike
func (h *MatchHandler) Like(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req struct {
		ParaUserID uuid.UUID      `json:"para_user_id" binding:"required"`
		Tipo       model.LikeKind `json:"tipo" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	result, err := h.matchSvc.Like(c.Request.Context(), ident, req.ParaUserID, req.Tipo)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// UndoLike DELETE /api/v1/curtidas/:id
func (h *MatchHandler) UndoLike(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	target, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.matchSvc.UndoLike(c.Request.Context(), ident, target); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Curtida desfeita.", nil)
}

// WhoLikedMe GET /api/v1/curtidas/recebidas
func (h *MatchHandler) WhoLikedMe(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	likes, err := h.matchSvc.WhoLikedMe(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, likes)
}
