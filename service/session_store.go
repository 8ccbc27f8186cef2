package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"safimatch/gotrue"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore 持久化登录会话（对应客户端的 localStorage / AsyncStorage）
type SessionStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*gotrue.Session, error) // 不存在时返回 nil, nil
	Set(ctx context.Context, userID uuid.UUID, session *gotrue.Session) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// MemorySessionStore 进程内存储，单实例和测试使用
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]gotrue.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[uuid.UUID]gotrue.Session)}
}

func (s *MemorySessionStore) Get(ctx context.Context, userID uuid.UUID) (*gotrue.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *MemorySessionStore) Set(ctx context.Context, userID uuid.UUID, session *gotrue.Session) error {
	s.mu.Lock()
	s.sessions[userID] = *session
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}

// RedisSessionStore 多实例共享会话
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionStore ttl 跟随 refresh token 的有效期，0 时为 30 天
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(userID uuid.UUID) string {
	return "session:" + userID.String()
}

func (s *RedisSessionStore) Get(ctx context.Context, userID uuid.UUID) (*gotrue.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session gotrue.Session
	if err := json.Unmarshal(data, &session); err != nil {
		// 损坏的会话按不存在处理
		s.rdb.Del(ctx, sessionKey(userID))
		return nil, nil
	}
	return &session, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, userID uuid.UUID, session *gotrue.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, sessionKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.rdb.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
