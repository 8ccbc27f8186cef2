package handler

import (
	"safimatch/middleware"
	"safimatch/service"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authSvc *service.AuthService
}

func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// SignUp 注册
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req struct {
		Nome  string `json:"nome" binding:"required"`
		Email string `json:"email" binding:"required"`
		Senha string `json:"senha" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	result, err := h.authSvc.SignUp(c.Request.Context(), req.Nome, req.Email, req.Senha)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	if result.NeedsEmailConfirmation {
		utils.SuccessWithMessage(c, "Verifique seu e-mail para confirmar o cadastro.", result)
		return
	}
	utils.SuccessResponse(c, result)
}

// Login 邮箱密码登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Senha string `json:"senha" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	session, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Senha)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	utils.SuccessResponse(c, session)
}

// Logout 注销
func (h *AuthHandler) Logout(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	if err := h.authSvc.Logout(c.Request.Context(), ident); err != nil {
		// 本地会话已经清除，远端失败只记日志
		utils.SuccessWithMessage(c, service.TranslateAuthError(err), nil)
		return
	}
	utils.SuccessWithMessage(c, "logged out", nil)
}

// RecoverPassword 发送重置密码邮件
func (h *AuthHandler) RecoverPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if err := h.authSvc.RecoverPassword(c.Request.Context(), req.Email); err != nil {
		respondAuthError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "E-mail de recuperação enviado.", nil)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	var req struct {
		Senha string `json:"senha" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if err := h.authSvc.ChangePassword(c.Request.Context(), ident, req.Senha); err != nil {
		respondAuthError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Senha alterada.", nil)
}

func (h *AuthHandler) ChangeEmail(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	if err := h.authSvc.ChangeEmail(c.Request.Context(), ident, req.Email); err != nil {
		respondAuthError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Confirme o novo e-mail.", nil)
}

// Deactivate 停用账号并注销
func (h *AuthHandler) Deactivate(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	if err := h.authSvc.DeactivateAccount(c.Request.Context(), ident); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "Conta desativada.", nil)
}

// Session 启动时恢复会话（SessionAuth，允许过期 token）
func (h *AuthHandler) Session(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Unauthorized(c, service.ErrNotAuthenticated.Error())
		return
	}
	result, err := h.authSvc.Bootstrap(c.Request.Context(), userID)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// Refresh 用保存的 refresh token 续期
func (h *AuthHandler) Refresh(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Unauthorized(c, service.ErrNotAuthenticated.Error())
		return
	}
	session, err := h.authSvc.Refresh(c.Request.Context(), userID)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	utils.SuccessResponse(c, session)
}
