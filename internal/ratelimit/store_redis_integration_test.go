//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titleregistry/pkg/testutil/containers"
)

func TestRedisStoreSharesBudget(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	a := NewRedisStore(rc.Client)
	b := NewRedisStore(rc.Client)

	res, err := a.Allow(ctx, "write:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, err = b.Allow(ctx, "write:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = a.Allow(ctx, "write:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
}
