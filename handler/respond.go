package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"safimatch/gotrue"
	"safimatch/middleware"
	"safimatch/model"
	"safimatch/service"
	"safimatch/storage"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// currentIdentity 认证中间件写入的身份，没有时直接返回 401
func currentIdentity(c *gin.Context) (model.Identity, bool) {
	ident, ok := middleware.GetIdentity(c)
	if !ok || ident.IsZero() {
		utils.Unauthorized(c, service.ErrNotAuthenticated.Error())
		return model.Identity{}, false
	}
	return ident, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// respondError 把服务层错误映射成统一响应
func respondError(c *gin.Context, err error) {
	var inputErr *service.InputError

	switch {
	case errors.As(err, &inputErr):
		utils.BadRequest(c, inputErr.Message)
	case errors.Is(err, service.ErrNotAuthenticated), errors.Is(err, service.ErrNoSession):
		utils.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrNotRecipient), errors.Is(err, service.ErrForeignObject):
		utils.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, service.ErrMatchNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrEmptyQueue):
		utils.NotFound(c, err.Error())
	case errors.Is(err, service.ErrPhotoExpired):
		utils.ErrorResponse(c, http.StatusGone, err.Error())
	case errors.Is(err, service.ErrNothingToUndo), errors.Is(err, storage.ErrAlreadyExists):
		utils.Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidSlot),
		errors.Is(err, service.ErrInvalidLikeKind),
		errors.Is(err, service.ErrSelfTarget),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrNoPhotosUploaded):
		utils.BadRequest(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		utils.GatewayTimeout(c, "A conexão demorou muito. Tente novamente.")
	default:
		log.Printf("[ERROR] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		utils.InternalServerError(c, "Ocorreu um erro inesperado.")
	}
}

// respondAuthError GoTrue 错误翻译成用户可读的消息
func respondAuthError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var gerr *gotrue.Error
	switch {
	case errors.As(err, &gerr):
		if gerr.StatusCode >= 400 && gerr.StatusCode < 500 {
			status = gerr.StatusCode
		}
		// 邮箱未确认时 app 要显示重发确认的入口
		if strings.Contains(gerr.Message, "Email not confirmed") {
			utils.Fail(c, status, service.TranslateAuthError(err), gin.H{"precisa_confirmar_email": true})
			return
		}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, service.ErrNotAuthenticated), errors.Is(err, service.ErrNoSession):
		status = http.StatusUnauthorized
	}
	utils.ErrorResponse(c, status, service.TranslateAuthError(err))
}
