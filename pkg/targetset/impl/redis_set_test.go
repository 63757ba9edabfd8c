package impl

import (
	"context"
	"testing"

	"github.com/castsync/go-castsync/internal/castsync"
	"github.com/castsync/go-castsync/tests"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	set := NewRedisSet(redis.NewClient(tests.RedisOptions(t)), "targets")

	ok, err := set.Contains(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, set.Add(ctx, 1))
	require.NoError(t, set.Add(ctx, 2))
	require.NoError(t, set.Add(ctx, 2))

	ok, err = set.Contains(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	size, err := set.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), size)

	require.NoError(t, set.Remove(ctx, 1))
	ok, err = set.Contains(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	members, err := set.Members(ctx)
	require.NoError(t, err)
	require.Equal(t, []castsync.FID{2}, members)
}

func TestRedisSetReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	set := NewRedisSet(redis.NewClient(tests.RedisOptions(t)), "targets")

	require.NoError(t, set.Add(ctx, 99))
	require.NoError(t, set.Replace(ctx, []castsync.FID{1, 2, 3}))

	size, err := set.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), size)

	ok, err := set.Contains(ctx, 99)
	require.NoError(t, err)
	require.False(t, ok)

	// Replacing with an empty list clears the set.
	require.NoError(t, set.Replace(ctx, nil))
	size, err = set.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestRedisSetKeyIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := redis.NewClient(tests.RedisOptions(t))
	targets := NewRedisSet(client, "targets")
	clientTargets := NewRedisSet(client, "client-targets")

	require.NoError(t, targets.Add(ctx, 1))

	ok, err := clientTargets.Contains(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
}
