package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"safimatch/gotrue"
	"safimatch/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthEvent 认证状态变化事件
type AuthEvent string

const (
	AuthSignedIn       AuthEvent = "SIGNED_IN"
	AuthSignedOut      AuthEvent = "SIGNED_OUT"
	AuthTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	AuthUserUpdated    AuthEvent = "USER_UPDATED"
)

// AuthListener session 在 SIGNED_OUT 时为 nil
type AuthListener func(event AuthEvent, userID uuid.UUID, session *gotrue.Session)

// AuthClient GoTrue 客户端需要的能力
type AuthClient interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*gotrue.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*gotrue.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*gotrue.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	RecoverPassword(ctx context.Context, email string) error
	UpdateUser(ctx context.Context, accessToken string, update gotrue.UserUpdate) (*gotrue.User, error)
}

// ProfileAccount 认证流程里对资料行的副作用
type ProfileAccount interface {
	MyProfile(ctx context.Context, ident model.Identity) (*model.Profile, error)
	TouchLastAccess(ctx context.Context, ident model.Identity) error
	Deactivate(ctx context.Context, ident model.Identity) error
}

// SignUpResult 注册结果
type SignUpResult struct {
	User                   gotrue.User     `json:"usuario"`
	Session                *gotrue.Session `json:"sessao,omitempty"`
	NeedsEmailConfirmation bool            `json:"precisa_confirmar_email"`
}

// BootstrapResult 启动时的会话恢复结果
type BootstrapResult struct {
	Session  *gotrue.Session `json:"sessao,omitempty"`
	Profile  *model.Profile  `json:"perfil,omitempty"`
	TimedOut bool            `json:"timeout"`
}

// AuthService 认证服务
type AuthService struct {
	client      AuthClient
	store       SessionStore
	profiles    ProfileAccount
	bootTimeout time.Duration
	now         func() time.Time

	mu        sync.RWMutex
	listeners map[uint64]AuthListener
	nextID    uint64
}

func NewAuthService(client AuthClient, store SessionStore, profiles ProfileAccount, bootTimeout time.Duration) *AuthService {
	if bootTimeout <= 0 {
		bootTimeout = 6 * time.Second
	}
	return &AuthService{
		client:      client,
		store:       store,
		profiles:    profiles,
		bootTimeout: bootTimeout,
		now:         time.Now,
		listeners:   make(map[uint64]AuthListener),
	}
}

// OnAuthStateChange 订阅认证事件，返回取消函数
func (s *AuthService) OnAuthStateChange(fn AuthListener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *AuthService) emit(event AuthEvent, userID uuid.UUID, session *gotrue.Session) {
	s.mu.RLock()
	listeners := make([]AuthListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(event, userID, session)
	}
}

// SignUp 注册；关闭自动确认时没有会话，需要先确认邮箱
func (s *AuthService) SignUp(ctx context.Context, nome, email, password string) (*SignUpResult, error) {
	res, err := s.client.SignUp(ctx, email, password, map[string]interface{}{"nome": nome})
	if err != nil {
		return nil, err
	}

	result := &SignUpResult{
		User:                   res.User,
		Session:                res.Session,
		NeedsEmailConfirmation: res.Session == nil,
	}
	if res.Session != nil {
		if err := s.store.Set(ctx, res.User.ID, res.Session); err != nil {
			return nil, err
		}
		s.emit(AuthSignedIn, res.User.ID, res.Session)
	}
	return result, nil
}

// Login 登录并记录最后访问时间
func (s *AuthService) Login(ctx context.Context, email, password string) (*gotrue.Session, error) {
	session, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := s.store.Set(ctx, session.User.ID, session); err != nil {
		return nil, err
	}

	if err := s.profiles.TouchLastAccess(ctx, IdentityFromSession(session)); err != nil {
		log.Printf("[WARN] Failed to stamp last access for %s: %v", session.User.ID, err)
	}

	s.emit(AuthSignedIn, session.User.ID, session)
	return session, nil
}

// Logout 注销；远端失败时本地会话照样清除
func (s *AuthService) Logout(ctx context.Context, ident model.Identity) error {
	if ident.IsZero() {
		return ErrNotAuthenticated
	}

	var remoteErr error
	if ident.AccessToken != "" {
		remoteErr = s.client.SignOut(ctx, ident.AccessToken)
	}

	if err := s.store.Delete(ctx, ident.UserID); err != nil {
		return err
	}
	s.emit(AuthSignedOut, ident.UserID, nil)
	return remoteErr
}

// RecoverPassword 发送重置邮件
func (s *AuthService) RecoverPassword(ctx context.Context, email string) error {
	return s.client.RecoverPassword(ctx, email)
}

// ChangePassword 已登录用户修改密码
func (s *AuthService) ChangePassword(ctx context.Context, ident model.Identity, newPassword string) error {
	return s.updateUser(ctx, ident, gotrue.UserUpdate{Password: newPassword})
}

// ChangeEmail 修改邮箱（GoTrue 会发确认邮件）
func (s *AuthService) ChangeEmail(ctx context.Context, ident model.Identity, newEmail string) error {
	return s.updateUser(ctx, ident, gotrue.UserUpdate{Email: newEmail})
}

func (s *AuthService) updateUser(ctx context.Context, ident model.Identity, update gotrue.UserUpdate) error {
	if ident.IsZero() {
		return ErrNotAuthenticated
	}
	user, err := s.client.UpdateUser(ctx, ident.AccessToken, update)
	if err != nil {
		return err
	}

	session, err := s.store.Get(ctx, ident.UserID)
	if err == nil && session != nil {
		session.User = *user
		_ = s.store.Set(ctx, ident.UserID, session)
	}
	s.emit(AuthUserUpdated, ident.UserID, session)
	return nil
}

// DeactivateAccount 停用资料后注销；真正删除账号需要 service role，不在这里做
func (s *AuthService) DeactivateAccount(ctx context.Context, ident model.Identity) error {
	if ident.IsZero() {
		return ErrNotAuthenticated
	}
	if err := s.profiles.Deactivate(ctx, ident); err != nil {
		return fmt.Errorf("failed to deactivate profile: %w", err)
	}
	return s.Logout(ctx, ident)
}

// Session 读取保存的会话，过期时用 refresh token 续期
func (s *AuthService) Session(ctx context.Context, userID uuid.UUID) (*gotrue.Session, error) {
	session, err := s.store.Get(ctx, userID)
	if err != nil || session == nil {
		return nil, err
	}
	if session.Expired(s.now()) && session.RefreshToken != "" {
		return s.Refresh(ctx, userID)
	}
	return session, nil
}

// Refresh 强制续期
func (s *AuthService) Refresh(ctx context.Context, userID uuid.UUID) (*gotrue.Session, error) {
	current, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoSession
	}

	session, err := s.client.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		var gerr *gotrue.Error
		if errors.As(err, &gerr) && gerr.StatusCode < 500 {
			// refresh token 失效，会话作废
			s.ForceSignOut(ctx, userID)
		}
		return nil, err
	}

	if err := s.store.Set(ctx, userID, session); err != nil {
		return nil, err
	}
	s.emit(AuthTokenRefreshed, userID, session)
	return session, nil
}

// Bootstrap 应用启动时恢复会话，最多等 bootTimeout
//
// 保存的 access token 没有 role 声明时直接丢弃会话（本地解码，不校验签名，
// 不区分过期和格式错误）。
func (s *AuthService) Bootstrap(ctx context.Context, userID uuid.UUID) (*BootstrapResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.bootTimeout)
	defer cancel()

	session, err := s.Session(ctx, userID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[WARN] Session bootstrap timed out for %s", userID)
			return &BootstrapResult{TimedOut: true}, nil
		}
		return nil, err
	}
	if session == nil {
		return &BootstrapResult{}, nil
	}

	if TokenRole(session.AccessToken) == "" {
		log.Printf("[WARN] Session for %s has no role claim, discarding", userID)
		s.ForceSignOut(ctx, userID)
		return &BootstrapResult{}, nil
	}

	result := &BootstrapResult{Session: session}
	profile, err := s.profiles.MyProfile(ctx, IdentityFromSession(session))
	switch {
	case err == nil:
		result.Profile = profile
	case errors.Is(err, context.DeadlineExceeded):
		result.TimedOut = true
	case !errors.Is(err, ErrProfileNotFound):
		log.Printf("[WARN] Failed to load profile during bootstrap for %s: %v", userID, err)
	}
	return result, nil
}

// ForceSignOut 清除本地会话并广播 SIGNED_OUT，不访问 GoTrue
func (s *AuthService) ForceSignOut(ctx context.Context, userID uuid.UUID) {
	if err := s.store.Delete(ctx, userID); err != nil {
		log.Printf("[ERROR] Failed to clear session for %s: %v", userID, err)
	}
	s.emit(AuthSignedOut, userID, nil)
}

// TokenRole 不校验签名，只读取 role 声明
func TokenRole(accessToken string) string {
	if strings.Count(accessToken, ".") != 2 {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return ""
	}
	role, _ := claims["role"].(string)
	return role
}

// IdentityFromSession 会话转成请求身份
func IdentityFromSession(session *gotrue.Session) model.Identity {
	return model.Identity{
		UserID:      session.User.ID,
		Email:       session.User.Email,
		Role:        TokenRole(session.AccessToken),
		AccessToken: session.AccessToken,
	}
}
