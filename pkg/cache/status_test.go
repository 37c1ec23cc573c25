package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"project-hub-backend/pkg/models"
)

type countingUsers struct {
	users map[string]*models.User
	calls int
}

var errMissing = errors.New("missing")

func (c *countingUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	c.calls++
	u, ok := c.users[id]
	if !ok {
		return nil, errMissing
	}
	cp := *u
	return &cp, nil
}

type brokenCache struct{ *MemoryCache }

func (*brokenCache) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("connection refused")
}

func TestResolverCachesLookups(t *testing.T) {
	ctx := context.Background()
	users := &countingUsers{users: map[string]*models.User{
		"u1": {ID: "u1", Status: models.UserActive, Role: models.RoleEmployee},
	}}
	r := NewResolver(NewMemoryCache(time.Minute), users, zap.NewNop())

	e, err := r.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Entry{Status: models.UserActive, Role: models.RoleEmployee}, e)

	_, err = r.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, users.calls)

	// Invalidation forces the next lookup back to the store.
	users.users["u1"].Status = models.UserInactive
	r.Invalidate(ctx, "u1")
	e, err = r.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserInactive, e.Status)
	assert.Equal(t, 2, users.calls)
}

func TestResolverMissingUser(t *testing.T) {
	r := NewResolver(NewMemoryCache(time.Minute), &countingUsers{users: map[string]*models.User{}}, zap.NewNop())
	_, err := r.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, errMissing)
}

func TestResolverFallsBackWhenCacheFails(t *testing.T) {
	users := &countingUsers{users: map[string]*models.User{"u1": {ID: "u1", Status: models.UserActive}}}
	r := NewResolver(&brokenCache{MemoryCache: NewMemoryCache(time.Minute)}, users, zap.NewNop())

	e, err := r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserActive, e.Status)
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "u1", Entry{Status: models.UserActive}))
	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}
