package main

import (
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titleregistry/internal/platform/config"
	dErrors "titleregistry/pkg/domain-errors"
)

func TestNewLedger(t *testing.T) {
	t.Run("missing connection profile", func(t *testing.T) {
		cfg := config.Default().Ledger
		cfg.ProfilePath = ""

		_, _, err := newLedger(cfg, slog.New(slog.DiscardHandler), prometheus.NewRegistry())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigMissing))
	})

	t.Run("missing wallet", func(t *testing.T) {
		cfg := config.Default().Ledger
		cfg.WalletPath = ""

		_, _, err := newLedger(cfg, slog.New(slog.DiscardHandler), prometheus.NewRegistry())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigMissing))
	})

	t.Run("defaults build a manager without touching the network", func(t *testing.T) {
		manager, breaker, err := newLedger(config.Default().Ledger, slog.New(slog.DiscardHandler), prometheus.NewRegistry())
		require.NoError(t, err)
		assert.Equal(t, "appUser", manager.DefaultIdentity())
		assert.Equal(t, "mychannel", manager.Config().Channel)
		assert.False(t, breaker.IsOpen())
	})
}
