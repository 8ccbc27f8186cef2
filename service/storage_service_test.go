package service

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"safimatch/model"
	"safimatch/storage"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	key         string
	contentType string
	overwrite   bool
}

type fakeObjectStore struct {
	mu      sync.Mutex
	puts    []putCall
	failKey string
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, body []byte, contentType, cacheControl string, overwrite bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKey != "" && strings.Contains(key, f.failKey) {
		return errors.New("boom")
	}
	f.puts = append(f.puts, putCall{key: key, contentType: contentType, overwrite: overwrite})
	return nil
}

func (f *fakeObjectStore) Remove(ctx context.Context, keys ...string) error { return nil }

func (f *fakeObjectStore) List(ctx context.Context, prefix string, limit int) ([]storage.Object, error) {
	return nil, nil
}

func (f *fakeObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "signed://" + key, nil
}

func (f *fakeObjectStore) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

type fakePhotoProfile struct {
	urls []string
}

func (f *fakePhotoProfile) SetPhotos(ctx context.Context, ident model.Identity, urls []string) (*model.Profile, error) {
	f.urls = urls
	return &model.Profile{UserID: ident.UserID}, nil
}

func newTestStorageService(store *fakeObjectStore, profiles PhotoProfile) *StorageService {
	s := NewStorageService(store, profiles, "https://cdn.example.com")
	fixed := time.UnixMilli(1700000000000)
	s.now = func() time.Time { return fixed }
	return s
}

func TestProfileSlotOverwritesChatPhotosDoNot(t *testing.T) {
	ctx := context.Background()
	store := &fakeObjectStore{}
	s := newTestStorageService(store, nil)
	user, match := uuid.New(), uuid.New()

	_, err := s.UploadProfilePhoto(ctx, user, 2, []byte("a"), "image/webp")
	require.NoError(t, err)
	_, err = s.UploadProfilePhoto(ctx, user, 2, []byte("b"), "image/webp")
	require.NoError(t, err)

	_, err = s.UploadChatPhoto(ctx, user, match, []byte("c"), "image/webp")
	require.NoError(t, err)
	_, err = s.UploadChatPhoto(ctx, user, match, []byte("d"), "image/webp")
	require.NoError(t, err)

	require.Len(t, store.puts, 4)
	assert.Equal(t, store.puts[0].key, store.puts[1].key)
	assert.Equal(t, user.String()+"/foto_2.webp", store.puts[0].key)
	assert.True(t, store.puts[0].overwrite)

	assert.NotEqual(t, store.puts[2].key, store.puts[3].key)
	assert.False(t, store.puts[2].overwrite)
	assert.True(t, strings.HasPrefix(store.puts[2].key, user.String()+"/chat/"+match.String()+"/"))
}

func TestUploadProfilePhotoNormalizesPNG(t *testing.T) {
	img := imaging.New(2000, 2000, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))

	store := &fakeObjectStore{}
	s := newTestStorageService(store, nil)
	user := uuid.New()

	url, err := s.UploadProfilePhoto(context.Background(), user, 0, buf.Bytes(), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/"+user.String()+"/foto_0.jpg?t=1700000000000", url)
	assert.Equal(t, "image/jpeg", store.puts[0].contentType)
}

func TestUploadProfilePhotoRejectsBadSlot(t *testing.T) {
	s := newTestStorageService(&fakeObjectStore{}, nil)
	_, err := s.UploadProfilePhoto(context.Background(), uuid.New(), model.MaxProfilePhotos, []byte("x"), "image/webp")
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestSyncProfilePhotosPartialSuccess(t *testing.T) {
	store := &fakeObjectStore{failKey: "foto_1"}
	profiles := &fakePhotoProfile{}
	s := newTestStorageService(store, profiles)
	ident := testIdentity()

	result, profile, err := s.SyncProfilePhotos(context.Background(), ident, []PhotoUpload{
		{Slot: 0, Data: []byte("a"), ContentType: "image/webp"},
		{Slot: 1, Data: []byte("b"), ContentType: "image/webp"},
		{Slot: 2, Data: []byte("c"), ContentType: "image/webp"},
	})
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 2, result.Sent)
	assert.Len(t, result.Errors, 1)
	require.Len(t, profiles.urls, 2)
	assert.Contains(t, profiles.urls[0], "foto_0.webp")
	assert.Contains(t, profiles.urls[1], "foto_2.webp")
}

func TestSyncProfilePhotosNothingUploaded(t *testing.T) {
	store := &fakeObjectStore{failKey: "foto_"}
	s := newTestStorageService(store, &fakePhotoProfile{})

	_, _, err := s.SyncProfilePhotos(context.Background(), testIdentity(), []PhotoUpload{
		{Slot: 0, Data: []byte("a"), ContentType: "image/webp"},
	})
	assert.ErrorIs(t, err, ErrNoPhotosUploaded)
}

func TestSignedURLAcceptsPublicURL(t *testing.T) {
	s := newTestStorageService(&fakeObjectStore{}, nil)
	userID := uuid.New()
	url, err := s.SignedURL(context.Background(), userID, "https://cdn.example.com/"+userID.String()+"/foto_0.jpg?t=1", 0)
	require.NoError(t, err)
	assert.Equal(t, "signed://"+userID.String()+"/foto_0.jpg", url)
}

func TestSignedURLRejectsOtherUsersObjects(t *testing.T) {
	s := newTestStorageService(&fakeObjectStore{}, nil)
	me, other := uuid.New(), uuid.New()

	tests := []struct {
		name string
		path string
	}{
		{"other user", other.String() + "/foto_0.jpg"},
		{"other user public url", "https://cdn.example.com/" + other.String() + "/chat/x/1.jpg"},
		{"traversal", me.String() + "/../" + other.String() + "/foto_0.jpg"},
		{"bucket root", "foto_0.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SignedURL(context.Background(), me, tt.path, time.Minute)
			assert.ErrorIs(t, err, ErrForeignObject)
		})
	}
}
