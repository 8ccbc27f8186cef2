package handler

import (
	"safimatch/service"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
)

type DiscoveryHandler struct {
	discovery *service.DiscoveryManager
}

func NewDiscoveryHandler(discovery *service.DiscoveryManager) *DiscoveryHandler {
	return &DiscoveryHandler{discovery: discovery}
}

// Queue GET /api/v1/descobrir?reiniciar=true
func (h *DiscoveryHandler) Queue(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	restart := c.Query("reiniciar") == "true"

	queue, err := h.discovery.For(ident).Load(c.Request.Context(), restart)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"perfis": queue, "total": len(queue)})
}

// Swipe POST /api/v1/descobrir/swipe {"direcao": "right|left|super"}
func (h *DiscoveryHandler) Swipe(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req struct {
		Direcao service.SwipeDirection `json:"direcao" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	d := h.discovery.For(ident)
	result, err := d.Swipe(c.Request.Context(), req.Direcao)
	if err != nil {
		respondError(c, err)
		return
	}

	next, hasNext := d.Current()
	resp := gin.H{"resultado": result}
	if hasNext {
		resp["proximo"] = next
	}
	if result.Matched {
		utils.SuccessWithMessage(c, "É um match! 💕", resp)
		return
	}
	utils.SuccessResponse(c, resp)
}

// Undo POST /api/v1/descobrir/desfazer
func (h *DiscoveryHandler) Undo(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	profile, err := h.discovery.For(ident).Undo(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, profile)
}
