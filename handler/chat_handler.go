package handler

import (
	"strconv"

	"safimatch/service"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatSvc    *service.ChatService
	matchSvc   *service.MatchService
	storageSvc *service.StorageService
	hub        *Hub
}

func NewChatHandler(chatSvc *service.ChatService, matchSvc *service.MatchService, storageSvc *service.StorageService, hub *Hub) *ChatHandler {
	return &ChatHandler{
		chatSvc:    chatSvc,
		matchSvc:   matchSvc,
		storageSvc: storageSvc,
		hub:        hub,
	}
}

// GetMessages GET /api/v1/matches/:id/mensagens?page=0&per_page=50，旧的在前
func (h *ChatHandler) GetMessages(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(service.DefaultMessagesPerPage)))

	messages, err := h.chatSvc.Messages(c.Request.Context(), ident, matchID, page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"mensagens": messages, "page": page})
}

// SendText POST /api/v1/matches/:id/mensagens {"conteudo": "..."}
func (h *ChatHandler) SendText(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Conteudo string `json:"conteudo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}

	msg, err := h.chatSvc.SendText(c.Request.Context(), ident, matchID, req.Conteudo)
	if err != nil {
		respondError(c, err)
		return
	}
	h.hub.Deliver(ident.UserID, matchID, *msg)
	utils.SuccessResponse(c, msg)
}

// SendPhoto POST /api/v1/matches/:id/fotos（multipart foto，view_once=true 为一次性）
func (h *ChatHandler) SendPhoto(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	matchID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	// 先确认是这个匹配的成员，再上传
	if _, err := h.matchSvc.GetMatch(c.Request.Context(), ident, matchID); err != nil {
		respondError(c, err)
		return
	}

	file, err := c.FormFile("foto")
	if err != nil {
		utils.BadRequest(c, "foto é obrigatória")
		return
	}
	data, contentType, err := readUpload(file)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	viewOnce := c.PostForm("view_once") == "true"

	url, err := h.storageSvc.UploadChatPhoto(c.Request.Context(), ident.UserID, matchID, data, contentType)
	if err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.chatSvc.SendPhoto(c.Request.Context(), ident, matchID, url, viewOnce)
	if err != nil {
		respondError(c, err)
		return
	}
	h.hub.Deliver(ident.UserID, matchID, *msg)
	utils.SuccessResponse(c, msg)
}

// MarkRead POST /api/v1/matches/:id/lidas
func (h *ChatHandler) MarkRead(c *gin.Context) {
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
	if err := h.chatSvc.MarkRead(c.Request.Context(), ident, matchID, match.Other(ident.UserID)); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "ok", nil)
}

// OpenViewOnce POST /api/v1/mensagens/:id/visualizar，第二次返回 410
func (h *ChatHandler) OpenViewOnce(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	messageID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.chatSvc.MarkViewOnceSeen(c.Request.Context(), ident, messageID); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"id": messageID, "view_once_visto": true})
}

// UnreadTotal GET /api/v1/mensagens/nao-lidas
func (h *ChatHandler) UnreadTotal(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	total, err := h.chatSvc.UnreadTotal(c.Request.Context(), ident)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"total": total})
}
