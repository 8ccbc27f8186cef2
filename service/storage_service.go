package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"safimatch/model"
	"safimatch/storage"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	profilePhotoMaxWidth  = 1080
	profilePhotoMaxHeight = 1350
	profilePhotoQuality   = 85
	profileCacheControl   = "3600"
	uploadParallelism     = 3
	userPhotosListLimit   = 10
	DefaultSignedURLTTL   = time.Hour
)

// ObjectStore bucket 操作（storage.Bucket 实现）
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType, cacheControl string, overwrite bool) error
	Remove(ctx context.Context, keys ...string) error
	List(ctx context.Context, prefix string, limit int) ([]storage.Object, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PublicURL(key string) string
}

// PhotoProfile 上传后写回资料
type PhotoProfile interface {
	SetPhotos(ctx context.Context, ident model.Identity, urls []string) (*model.Profile, error)
}

// PhotoUpload 一张待上传的照片
type PhotoUpload struct {
	Slot        int
	Data        []byte
	ContentType string
}

// UploadBatchResult 批量上传结果（允许部分成功）
type UploadBatchResult struct {
	URLs   []string `json:"urls"`
	Sent   int      `json:"enviadas"`
	Errors []string `json:"erros,omitempty"`
}

// StorageService 照片上传
type StorageService struct {
	store      ObjectStore
	profiles   PhotoProfile
	publicBase string
	now        func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

func NewStorageService(store ObjectStore, profiles PhotoProfile, publicBase string) *StorageService {
	return &StorageService{
		store:      store,
		profiles:   profiles,
		publicBase: publicBase,
		now:        time.Now,
	}
}

// UploadProfilePhoto 上传到固定 slot（覆盖），返回带 ?t= 的公开地址
func (s *StorageService) UploadProfilePhoto(ctx context.Context, userID uuid.UUID, slot int, data []byte, contentType string) (string, error) {
	if slot < 0 || slot >= model.MaxProfilePhotos {
		return "", ErrInvalidSlot
	}

	body, contentType, ext, err := normalizePhoto(data, contentType)
	if err != nil {
		return "", err
	}

	key := ProfilePhotoKey(userID, slot, ext)
	if err := s.store.Put(ctx, key, body, contentType, profileCacheControl, true); err != nil {
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}
	return fmt.Sprintf("%s?t=%d", s.store.PublicURL(key), s.now().UnixMilli()), nil
}

// UploadChatPhoto 聊天照片，每次一个新 key，不覆盖
func (s *StorageService) UploadChatPhoto(ctx context.Context, userID, matchID uuid.UUID, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", invalidInput("arquivo vazio")
	}
	key := ChatPhotoKey(userID, matchID, s.nextStamp(), extensionFor(contentType))
	if err := s.store.Put(ctx, key, data, contentType, profileCacheControl, false); err != nil {
		return "", fmt.Errorf("failed to upload chat photo: %w", err)
	}
	return s.store.PublicURL(key), nil
}

// UploadProfilePhotos 并发上传多张，失败的记录到 Errors
func (s *StorageService) UploadProfilePhotos(ctx context.Context, userID uuid.UUID, photos []PhotoUpload) *UploadBatchResult {
	urls := make([]string, len(photos))
	errs := make([]error, len(photos))

	var g errgroup.Group
	g.SetLimit(uploadParallelism)
	for i, p := range photos {
		g.Go(func() error {
			url, err := s.UploadProfilePhoto(ctx, userID, p.Slot, p.Data, p.ContentType)
			if err != nil {
				errs[i] = err
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	_ = g.Wait()

	result := &UploadBatchResult{URLs: []string{}}
	for i := range photos {
		if errs[i] != nil {
			log.Printf("[WARN] Photo slot %d upload failed for %s: %v", photos[i].Slot, userID, errs[i])
			result.Errors = append(result.Errors, fmt.Sprintf("foto %d: %v", photos[i].Slot, errs[i]))
			continue
		}
		result.URLs = append(result.URLs, urls[i])
	}
	result.Sent = len(result.URLs)
	return result
}

// SyncProfilePhotos 上传后把成功的地址写入资料
func (s *StorageService) SyncProfilePhotos(ctx context.Context, ident model.Identity, photos []PhotoUpload) (*UploadBatchResult, *model.Profile, error) {
	result := s.UploadProfilePhotos(ctx, ident.UserID, photos)
	if result.Sent == 0 {
		return result, nil, ErrNoPhotosUploaded
	}
	profile, err := s.profiles.SetPhotos(ctx, ident, result.URLs)
	if err != nil {
		return result, nil, err
	}
	return result, profile, nil
}

// RemovePhoto 接受 key 或公开地址
func (s *StorageService) RemovePhoto(ctx context.Context, pathOrURL string) error {
	key := storage.KeyFromURL(s.publicBase, pathOrURL)
	if key == "" {
		return invalidInput("caminho inválido")
	}
	return s.store.Remove(ctx, key)
}

// ListUserPhotos 用户目录下的对象
func (s *StorageService) ListUserPhotos(ctx context.Context, userID uuid.UUID) ([]storage.Object, error) {
	return s.store.List(ctx, userID.String()+"/", userPhotosListLimit)
}

// SignedURL 临时访问地址，只签自己目录（<uid>/）下的对象；ttl<=0 用默认一小时
func (s *StorageService) SignedURL(ctx context.Context, userID uuid.UUID, pathOrURL string, ttl time.Duration) (string, error) {
	key := storage.KeyFromURL(s.publicBase, pathOrURL)
	if key == "" {
		return "", invalidInput("caminho inválido")
	}
	key = path.Clean(key)
	if !strings.HasPrefix(key, userID.String()+"/") {
		return "", ErrForeignObject
	}
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return s.store.PresignGet(ctx, key, ttl)
}

// nextStamp 单调递增的毫秒时间戳
func (s *StorageService) nextStamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.now().UnixMilli()
	if ms <= s.lastStamp {
		ms = s.lastStamp + 1
	}
	s.lastStamp = ms
	return ms
}

// ProfilePhotoKey <uid>/foto_<slot>.<ext>
func ProfilePhotoKey(userID uuid.UUID, slot int, ext string) string {
	return fmt.Sprintf("%s/foto_%d.%s", userID, slot, ext)
}

// ChatPhotoKey <uid>/chat/<match>/<ms>.<ext>
func ChatPhotoKey(userID, matchID uuid.UUID, stamp int64, ext string) string {
	return fmt.Sprintf("%s/chat/%s/%d.%s", userID, matchID, stamp, ext)
}

// normalizePhoto JPEG/PNG 缩放到 1080x1350 以内并转成 JPEG，其它格式原样上传
func normalizePhoto(data []byte, contentType string) ([]byte, string, string, error) {
	if len(data) == 0 {
		return nil, "", "", invalidInput("arquivo vazio")
	}
	if contentType != "image/jpeg" && contentType != "image/jpg" && contentType != "image/png" {
		return data, contentType, extensionFor(contentType), nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", "", invalidInput("imagem inválida: %v", err)

	}
	img = imaging.Fit(img, profilePhotoMaxWidth, profilePhotoMaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(profilePhotoQuality)); err != nil {
		return nil, "", "", fmt.Errorf("failed to encode photo: %w", err)
	}
	return buf.Bytes(), "image/jpeg", "jpg", nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/heic":
		return "heic"
	}
	return "jpg"
}
