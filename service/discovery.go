package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"safimatch/model"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CandidateLoader 发现页候选来源
type CandidateLoader interface {
	DiscoveryCandidates(ctx context.Context, ident model.Identity, restart bool, limit int) ([]model.PublicProfile, error)
}

// SwipeRecorder 记录和撤销滑动
type SwipeRecorder interface {
	Like(ctx context.Context, ident model.Identity, targetUserID uuid.UUID, kind model.LikeKind) (*model.LikeResult, error)
	UndoLike(ctx context.Context, ident model.Identity, targetUserID uuid.UUID) error
}

// SwipeDirection 滑动方向
type SwipeDirection string

const (
	SwipeRight SwipeDirection = "right"
	SwipeLeft  SwipeDirection = "left"
	SwipeSuper SwipeDirection = "super"
)

// Kind 方向对应的喜欢类型
func (d SwipeDirection) Kind() (model.LikeKind, error) {
	switch d {
	case SwipeRight:
		return model.LikeKindLike, nil
	case SwipeLeft:
		return model.LikeKindNope, nil
	case SwipeSuper:
		return model.LikeKindSuperlike, nil
	}
	return "", invalidInput("direção inválida: %s", d)
}

// SwipeResult 一次滑动的结果
type SwipeResult struct {
	Profile model.PublicProfile `json:"perfil"`
	Kind    model.LikeKind      `json:"tipo"`
	Matched bool                `json:"matched"`
	MatchID *uuid.UUID          `json:"match_id,omitempty"`
}

// Discovery 一个用户的发现队列（只在内存里）
type Discovery struct {
	loader   CandidateLoader
	recorder SwipeRecorder

	// identMu 独立于 mu：滑动进行中也能刷新身份
	identMu  sync.RWMutex
	ident    model.Identity
	lastUsed time.Time

	mu      sync.Mutex
	queue   []model.PublicProfile
	history []model.PublicProfile
	loaded  bool
}

func NewDiscovery(ident model.Identity, loader CandidateLoader, recorder SwipeRecorder) *Discovery {
	return &Discovery{ident: ident, lastUsed: time.Now(), loader: loader, recorder: recorder}
}

// SetIdentity token 续期后更新身份
func (d *Discovery) SetIdentity(ident model.Identity) {
	d.identMu.Lock()
	d.ident = ident
	d.lastUsed = time.Now()
	d.identMu.Unlock()
}

func (d *Discovery) identity() model.Identity {
	d.identMu.RLock()
	defer d.identMu.RUnlock()
	return d.ident
}

func (d *Discovery) idleSince(now time.Time) time.Duration {
	d.identMu.RLock()
	defer d.identMu.RUnlock()
	return now.Sub(d.lastUsed)
}

// Load 重新加载队列；restart 时只排除自己
func (d *Discovery) Load(ctx context.Context, restart bool) ([]model.PublicProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadLocked(ctx, restart); err != nil {
		return nil, err
	}
	return d.snapshotLocked(), nil
}

// Queue 当前队列副本
func (d *Discovery) Queue() []model.PublicProfile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Current 队首
func (d *Discovery) Current() (model.PublicProfile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return model.PublicProfile{}, false
	}
	return d.queue[0], true
}

// Swipe 对队首执行滑动；写入失败时资料放回队首
func (d *Discovery) Swipe(ctx context.Context, dir SwipeDirection) (*SwipeResult, error) {
	kind, err := dir.Kind()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		if err := d.loadLocked(ctx, false); err != nil {
			return nil, err
		}
	}
	if len(d.queue) == 0 {
		return nil, ErrEmptyQueue
	}

	profile := d.queue[0]
	d.queue = d.queue[1:]
	d.history = append(d.history, profile)

	res, err := d.recorder.Like(ctx, d.identity(), profile.UserID, kind)
	if err != nil {
		d.history = d.history[:len(d.history)-1]
		d.queue = append([]model.PublicProfile{profile}, d.queue...)
		return nil, err
	}

	result := &SwipeResult{Profile: profile, Kind: kind}
	if res != nil {
		result.Matched = res.Matched
		result.MatchID = res.MatchID
	}

	if len(d.queue) == 0 {
		if err := d.loadLocked(ctx, false); err != nil {
			log.Printf("[WARN] Discovery reload failed for %s: %v", d.identity().UserID, err)
		}
	}
	return result, nil
}

// Undo 撤销最近一次滑动，资料回到队首
func (d *Discovery) Undo(ctx context.Context) (*model.PublicProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.history) == 0 {
		return nil, ErrNothingToUndo
	}
	last := d.history[len(d.history)-1]

	if err := d.recorder.UndoLike(ctx, d.identity(), last.UserID); err != nil {
		return nil, err
	}

	d.history = d.history[:len(d.history)-1]
	// 自动重载可能已经把它拉回队列
	queue := make([]model.PublicProfile, 0, len(d.queue)+1)
	queue = append(queue, last)
	for _, p := range d.queue {
		if p.UserID != last.UserID {
			queue = append(queue, p)
		}
	}
	d.queue = queue
	return &last, nil
}

func (d *Discovery) loadLocked(ctx context.Context, restart bool) error {
	profiles, err := d.loader.DiscoveryCandidates(ctx, d.identity(), restart, DefaultDiscoveryLimit)
	if err != nil {
		return fmt.Errorf("failed to load candidates: %w", err)
	}

	queue := make([]model.PublicProfile, 0, len(profiles))
	for _, p := range profiles {
		queue = append(queue, NormalizeCandidate(p))
	}
	d.queue = queue
	d.loaded = true
	return nil
}

func (d *Discovery) snapshotLocked() []model.PublicProfile {
	out := make([]model.PublicProfile, len(d.queue))
	copy(out, d.queue)
	return out
}

// NormalizeCandidate 保证至少一张照片，兴趣不为 nil
func NormalizeCandidate(p model.PublicProfile) model.PublicProfile {
	if len(p.Fotos) == 0 {
		foto := model.DiscoveryPlaceholderFoto
		if p.FotoPrincipal != nil && *p.FotoPrincipal != "" {
			foto = *p.FotoPrincipal
		}
		p.Fotos = pq.StringArray{foto}
	}
	if p.Interesses == nil {
		p.Interesses = pq.StringArray{}
	}
	return p
}

// DiscoveryManager 每个用户一个 Discovery
type DiscoveryManager struct {
	loader   CandidateLoader
	recorder SwipeRecorder

	mu       sync.Mutex
	sessions map[uuid.UUID]*Discovery
}

func NewDiscoveryManager(loader CandidateLoader, recorder SwipeRecorder) *DiscoveryManager {
	return &DiscoveryManager{
		loader:   loader,
		recorder: recorder,
		sessions: make(map[uuid.UUID]*Discovery),
	}
}

// For 获取（或创建）用户的队列，并刷新身份；不在 m.mu 下碰 d.mu
func (m *DiscoveryManager) For(ident model.Identity) *Discovery {
	m.mu.Lock()
	d, ok := m.sessions[ident.UserID]
	if !ok {
		d = NewDiscovery(ident, m.loader, m.recorder)
		m.sessions[ident.UserID] = d
	}
	m.mu.Unlock()

	if ok {
		d.SetIdentity(ident)
	}
	return d
}

// Sweep 丢弃超过 idle 没有访问的队列，返回丢弃数量
func (m *DiscoveryManager) Sweep(idle time.Duration) int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	var dropped int
	for userID, d := range m.sessions {
		if d.idleSince(now) > idle {
			delete(m.sessions, userID)
			dropped++
		}
	}
	return dropped
}

// RunSweeper 每 interval 清理一次空闲队列，ctx 结束时退出
func (m *DiscoveryManager) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(idle); n > 0 {
				log.Printf("[INFO] Dropped %d idle discovery queues", n)
			}
		}
	}
}

// Drop 登出时丢弃队列
func (m *DiscoveryManager) Drop(userID uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}
