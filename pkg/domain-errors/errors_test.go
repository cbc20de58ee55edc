package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	t.Run("retryable codes", func(t *testing.T) {
		assert.True(t, IsRetryable(New(CodeNetwork, "peer unreachable")))
		assert.True(t, IsRetryable(New(CodeTimeout, "commit wait expired")))
		assert.False(t, IsRetryable(New(CodeLedgerRejected, "asset exists")))
		assert.False(t, IsRetryable(New(CodeConfigMissing, "no profile")))
		assert.False(t, IsRetryable(nil))
	})

	t.Run("fatal codes", func(t *testing.T) {
		assert.True(t, IsFatal(New(CodeConfigMissing, "no profile")))
		assert.True(t, IsFatal(New(CodeIdentityNotFound, "appUser")))
		assert.False(t, IsFatal(New(CodeNetwork, "peer unreachable")))
		assert.False(t, IsFatal(nil))
	})

	t.Run("unclassified errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(cause, CodeNetwork, "bind ledger session")

	require.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeNetwork))
	assert.Equal(t, "network_error: bind ledger session: dial tcp: connection refused", err.Error())
	assert.Equal(t, "bind ledger session", MessageOf(err))
}

func TestCodeOfFindsWrappedError(t *testing.T) {
	err := fmt.Errorf("update title: %w", New(CodeNotFound, "title not found"))

	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, "title not found", MessageOf(err))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
}
