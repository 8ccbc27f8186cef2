package handler

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"safimatch/model"
	"safimatch/service"
	"safimatch/utils"

	"github.com/gin-gonic/gin"
)

const maxPhotoBytes = 10 << 20

type PhotoHandler struct {
	storageSvc *service.StorageService
	profileSvc *service.ProfileService
}

func NewPhotoHandler(storageSvc *service.StorageService, profileSvc *service.ProfileService) *PhotoHandler {
	return &PhotoHandler{storageSvc: storageSvc, profileSvc: profileSvc}
}

// UploadSlot POST /api/v1/perfil/fotos/:slot（multipart 字段 foto）
func (h *PhotoHandler) UploadSlot(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		respondError(c, service.ErrInvalidSlot)
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

	url, err := h.storageSvc.UploadProfilePhoto(c.Request.Context(), ident.UserID, slot, data, contentType)
	if err != nil {
		respondError(c, err)
		return
	}

	profile, err := h.profileSvc.SetPhoto(c.Request.Context(), ident, slot, url)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"url": url, "perfil": profile})
}

// RemoveSlot DELETE /api/v1/perfil/fotos/:slot，之后的照片前移
func (h *PhotoHandler) RemoveSlot(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		respondError(c, service.ErrInvalidSlot)
		return
	}

	profile, removed, err := h.profileSvc.RemovePhoto(c.Request.Context(), ident, slot)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.storageSvc.RemovePhoto(c.Request.Context(), removed); err != nil {
		// 资料已经更新，对象删不掉只记日志
		log.Printf("[WARN] Failed to remove stored photo %s: %v", removed, err)
	}
	utils.SuccessResponse(c, profile)
}

// UploadAll POST /api/v1/perfil/fotos（multipart 字段 fotos，按顺序占 slot）
func (h *PhotoHandler) UploadAll(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequest(c, "invalid multipart form")
		return
	}
	files := form.File["fotos"]
	if len(files) == 0 {
		utils.BadRequest(c, "nenhuma foto enviada")
		return
	}
	if len(files) > model.MaxProfilePhotos {
		utils.BadRequest(c, fmt.Sprintf("no máximo %d fotos", model.MaxProfilePhotos))
		return
	}

	photos := make([]service.PhotoUpload, 0, len(files))
	for i, fh := range files {
		data, contentType, err := readUpload(fh)
		if err != nil {
			utils.BadRequest(c, err.Error())
			return
		}
		photos = append(photos, service.PhotoUpload{Slot: i, Data: data, ContentType: contentType})
	}

	result, profile, err := h.storageSvc.SyncProfilePhotos(c.Request.Context(), ident, photos)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"resultado": result, "perfil": profile})
}

// ListStored GET /api/v1/perfil/fotos/arquivos
func (h *PhotoHandler) ListStored(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	objects, err := h.storageSvc.ListUserPhotos(c.Request.Context(), ident.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, objects)
}

// SignedURL GET /api/v1/storage/assinada?path=&ttl=
func (h *PhotoHandler) SignedURL(c *gin.Context) {
	ident, ok := currentIdentity(c)
	if !ok {
		return
	}
	path := c.Query("path")
	if path == "" {
		utils.BadRequest(c, "path é obrigatório")
		return
	}
	ttlSeconds, _ := strconv.Atoi(c.DefaultQuery("ttl", "3600"))

	url, err := h.storageSvc.SignedURL(c.Request.Context(), ident.UserID, path, time.Duration(ttlSeconds)*time.Second)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"url": url})
}

// readUpload 读取上传文件，类型优先取请求头，否则按内容识别
func readUpload(fh *multipart.FileHeader) ([]byte, string, error) {
	if fh.Size > maxPhotoBytes {
		return nil, "", fmt.Errorf("arquivo maior que %d MB", maxPhotoBytes>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxPhotoBytes {
		return nil, "", fmt.Errorf("arquivo maior que %d MB", maxPhotoBytes>>20)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
