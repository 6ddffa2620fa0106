package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRevokedStore struct {
	rows    map[string]time.Time
	now     func() time.Time
	inserts int
	sweeps  int
	err     error
}

func newFakeRevokedStore(now func() time.Time) *fakeRevokedStore {
	return &fakeRevokedStore{rows: map[string]time.Time{}, now: now}
}

func (f *fakeRevokedStore) InsertRevokedToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.inserts++
	f.rows[tokenHash] = expiresAt
	return nil
}

func (f *fakeRevokedStore) IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	exp, ok := f.rows[tokenHash]
	return ok && exp.After(f.now()), nil
}

func (f *fakeRevokedStore) DeleteExpiredRevokedTokens(ctx context.Context) (int64, error) {
	f.sweeps++
	var n int64
	for k, exp := range f.rows {
		if !exp.After(f.now()) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func TestPostgresRegistryRevoke(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newFakeRevokedStore(clock.Now)
	reg := NewPostgresRegistry(store)
	reg.now = clock.Now
	ctx := context.Background()

	require.NoError(t, reg.Revoke(ctx, "tok", clock.Now().Add(time.Hour)))
	_, stored := store.rows[HashToken("tok")]
	assert.True(t, stored)

	revoked, err := reg.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	clock.Advance(2 * time.Hour)
	revoked, err = reg.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)

	removed, err := reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestPostgresRegistrySkipsExpired(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newFakeRevokedStore(clock.Now)
	reg := NewPostgresRegistry(store)
	reg.now = clock.Now

	require.NoError(t, reg.Revoke(context.Background(), "tok", clock.Now().Add(-time.Minute)))
	assert.Zero(t, store.inserts)
}

func TestPostgresRegistryPropagatesErrors(t *testing.T) {
	store := newFakeRevokedStore(time.Now)
	store.err = errors.New("db down")
	reg := NewPostgresRegistry(store)

	_, err := reg.IsRevoked(context.Background(), "tok")
	assert.Error(t, err)
}

type countingSweeper struct {
	calls chan struct{}
}

func (c *countingSweeper) Sweep(ctx context.Context) (int64, error) {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return 1, nil
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	s := &countingSweeper{calls: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, s, 5*time.Millisecond, zap.NewNop())
		close(done)
	}()

	select {
	case <-s.calls:
	case <-time.After(time.Second):
		t.Fatal("sweeper never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
