package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"safimatch/model"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	batches  [][]model.PublicProfile
	calls    int
	restarts []bool
}

func (f *fakeLoader) DiscoveryCandidates(ctx context.Context, ident model.Identity, restart bool, limit int) ([]model.PublicProfile, error) {
	f.restarts = append(f.restarts, restart)
	f.calls++
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type likeCall struct {
	target uuid.UUID
	kind   model.LikeKind
}

type fakeRecorder struct {
	likes   []likeCall
	undos   []uuid.UUID
	likeErr error
	matched bool
}

func (f *fakeRecorder) Like(ctx context.Context, ident model.Identity, target uuid.UUID, kind model.LikeKind) (*model.LikeResult, error) {
	if f.likeErr != nil {
		return nil, f.likeErr
	}
	f.likes = append(f.likes, likeCall{target, kind})
	res := &model.LikeResult{}
	if f.matched && kind.ChecksMatch() {
		id := uuid.New()
		res.Matched = true
		res.MatchID = &id
	}
	return res, nil
}

func (f *fakeRecorder) UndoLike(ctx context.Context, ident model.Identity, target uuid.UUID) error {
	f.undos = append(f.undos, target)
	return nil
}

func candidate(nome string) model.PublicProfile {
	return model.PublicProfile{UserID: uuid.New(), Nome: nome}
}

func testIdentity() model.Identity {
	return model.Identity{UserID: uuid.New(), Role: "authenticated"}
}

func TestSwipeLeftThenUndoRestoresFirst(t *testing.T) {
	ctx := context.Background()
	a, b := candidate("A"), candidate("B")
	loader := &fakeLoader{batches: [][]model.PublicProfile{{a, b}}}
	recorder := &fakeRecorder{}
	d := NewDiscovery(testIdentity(), loader, recorder)

	_, err := d.Load(ctx, false)
	require.NoError(t, err)

	res, err := d.Swipe(ctx, SwipeLeft)
	require.NoError(t, err)
	assert.Equal(t, a.UserID, res.Profile.UserID)
	assert.Equal(t, model.LikeKindNope, res.Kind)
	assert.False(t, res.Matched)

	restored, err := d.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.UserID, restored.UserID)

	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, a.UserID, current.UserID)
	assert.Len(t, d.Queue(), 2)

	assert.Equal(t, []uuid.UUID{a.UserID}, recorder.undos)
	assert.Len(t, recorder.likes, 1)
}

func TestUndoWithoutHistory(t *testing.T) {
	d := NewDiscovery(testIdentity(), &fakeLoader{}, &fakeRecorder{})
	_, err := d.Undo(context.Background())
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestSwipeKinds(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{batches: [][]model.PublicProfile{{candidate("A"), candidate("B"), candidate("C"), candidate("D")}}}
	recorder := &fakeRecorder{matched: true}
	d := NewDiscovery(testIdentity(), loader, recorder)

	right, err := d.Swipe(ctx, SwipeRight)
	require.NoError(t, err)
	assert.True(t, right.Matched)
	assert.NotNil(t, right.MatchID)

	left, err := d.Swipe(ctx, SwipeLeft)
	require.NoError(t, err)
	assert.False(t, left.Matched)

	super, err := d.Swipe(ctx, SwipeSuper)
	require.NoError(t, err)
	assert.True(t, super.Matched)

	kinds := []model.LikeKind{}
	for _, l := range recorder.likes {
		kinds = append(kinds, l.kind)
	}
	assert.Equal(t, []model.LikeKind{model.LikeKindLike, model.LikeKindNope, model.LikeKindSuperlike}, kinds)
}

func TestFailedSwipeRestoresProfile(t *testing.T) {
	ctx := context.Background()
	a := candidate("A")
	loader := &fakeLoader{batches: [][]model.PublicProfile{{a}}}
	recorder := &fakeRecorder{likeErr: errors.New("boom")}
	d := NewDiscovery(testIdentity(), loader, recorder)

	_, err := d.Swipe(ctx, SwipeRight)
	require.Error(t, err)

	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, a.UserID, current.UserID)

	_, err = d.Undo(ctx)
	assert.ErrorIs(t, err, ErrNothingToUndo)
}

func TestEmptyQueueReloadsWithoutRestart(t *testing.T) {
	ctx := context.Background()
	a, b := candidate("A"), candidate("B")
	loader := &fakeLoader{batches: [][]model.PublicProfile{{a}, {b}}}
	d := NewDiscovery(testIdentity(), loader, &fakeRecorder{})

	_, err := d.Swipe(ctx, SwipeLeft)
	require.NoError(t, err)

	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, b.UserID, current.UserID)
	assert.Equal(t, []bool{false, false}, loader.restarts)
}

func TestSwipeOnExhaustedQueue(t *testing.T) {
	d := NewDiscovery(testIdentity(), &fakeLoader{}, &fakeRecorder{})
	_, err := d.Swipe(context.Background(), SwipeRight)
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestRestartLoad(t *testing.T) {
	loader := &fakeLoader{}
	d := NewDiscovery(testIdentity(), loader, &fakeRecorder{})
	_, err := d.Load(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, loader.restarts)
}

func TestNormalizeCandidate(t *testing.T) {
	principal := "http://x/foto_0.jpg"

	p := NormalizeCandidate(model.PublicProfile{FotoPrincipal: &principal})
	assert.Equal(t, pq.StringArray{principal}, p.Fotos)
	assert.NotNil(t, p.Interesses)
	assert.Empty(t, p.Interesses)

	p = NormalizeCandidate(model.PublicProfile{})
	assert.Equal(t, pq.StringArray{model.DiscoveryPlaceholderFoto}, p.Fotos)

	p = NormalizeCandidate(model.PublicProfile{Fotos: pq.StringArray{"a", "b"}, Interesses: pq.StringArray{"Arte"}})
	assert.Equal(t, pq.StringArray{"a", "b"}, p.Fotos)
}

func TestDiscoveryManagerKeepsOnePerUser(t *testing.T) {
	m := NewDiscoveryManager(&fakeLoader{}, &fakeRecorder{})
	ident := testIdentity()

	assert.Same(t, m.For(ident), m.For(ident))
	first := m.For(ident)
	m.Drop(ident.UserID)
	assert.NotSame(t, first, m.For(ident))
}

// blockingRecorder 的 Like 一直阻塞到 release 关闭
type blockingRecorder struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRecorder) Like(ctx context.Context, ident model.Identity, target uuid.UUID, kind model.LikeKind) (*model.LikeResult, error) {
	close(b.entered)
	<-b.release
	return &model.LikeResult{}, nil
}

func (b *blockingRecorder) UndoLike(ctx context.Context, ident model.Identity, target uuid.UUID) error {
	return nil
}

func TestSlowSwipeDoesNotBlockOtherUsers(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{batches: [][]model.PublicProfile{{candidate("A"), candidate("B")}}}
	recorder := &blockingRecorder{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewDiscoveryManager(loader, recorder)
	alice, bob := testIdentity(), testIdentity()

	swiped := make(chan error, 1)
	go func() {
		_, err := m.For(alice).Swipe(ctx, SwipeLeft)
		swiped <- err
	}()
	<-recorder.entered

	// alice 的第二个请求和 bob 的请求都不能等 alice 的滑动
	done := make(chan struct{})
	go func() {
		m.For(alice)
		m.For(bob)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("For blocked while another swipe was in flight")
	}

	close(recorder.release)
	require.NoError(t, <-swiped)
}

func TestSweepDropsIdleQueues(t *testing.T) {
	m := NewDiscoveryManager(&fakeLoader{}, &fakeRecorder{})
	idle, active := testIdentity(), testIdentity()

	m.For(idle).lastUsed = time.Now().Add(-time.Hour)
	m.For(active)

	assert.Equal(t, 1, m.Sweep(30*time.Minute))
	m.mu.Lock()
	_, idleKept := m.sessions[idle.UserID]
	_, activeKept := m.sessions[active.UserID]
	m.mu.Unlock()
	assert.False(t, idleKept)
	assert.True(t, activeKept)
}
