package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Identity(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)

	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx = WithIdentity(ctx, "alice")
	ctx = WithSubject(ctx, "user-42")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")
	ctx = WithTime(ctx, fixed)

	assert.Equal(t, "alice", Identity(ctx))
	assert.Equal(t, "user-42", Subject(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
