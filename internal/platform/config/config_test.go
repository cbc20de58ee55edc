package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titleregistry/internal/title/wire"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "mychannel", cfg.Ledger.Channel)
	assert.Equal(t, "basic", cfg.Ledger.Contract)
	assert.Equal(t, "appUser", cfg.Ledger.Identity)
	assert.Equal(t, 30*time.Second, cfg.Ledger.CommitTimeout)
	assert.Equal(t, "/mnt/nfs/titres/", cfg.Documents.Dir)
	assert.Equal(t, AuditSinkMemory, cfg.Audit.Sink)
	assert.Empty(t, cfg.Auth.JWTSigningKey)
	assert.Equal(t, 60, cfg.RateLimit.Writes)
}

func TestLoadEnvironment(t *testing.T) {
	cfg, err := Load(nil, env(map[string]string{
		"PORT":               "8080",
		"CHANNEL_NAME":       "registry",
		"CONTRACT_NAME":      "titres",
		"WALLET_PATH":        "/etc/wallet",
		"IDENTITY_NAME":      "registrar",
		"CONNECTION_PROFILE": "/etc/ccp.yaml",
		"REPERTOIRE_PARTAGE": "/srv/titres",
		"COMMIT_TIMEOUT":     "45",
		"KAFKA_BROKERS":      "k1:9092, k2:9092,",
		"AUDIT_SINK":         "kafka",
		"AS_LOCALHOST":       "false",
		"RATE_LIMIT_WRITES":  "0",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "registry", cfg.Ledger.Channel)
	assert.Equal(t, "titres", cfg.Ledger.Contract)
	assert.Equal(t, "/etc/wallet", cfg.Ledger.WalletPath)
	assert.Equal(t, "registrar", cfg.Ledger.Identity)
	assert.Equal(t, "/etc/ccp.yaml", cfg.Ledger.ProfilePath)
	assert.Equal(t, "/srv/titres", cfg.Documents.Dir)
	assert.Equal(t, 45*time.Second, cfg.Ledger.CommitTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Ledger.AsLocalhost)
	assert.Equal(t, 0, cfg.RateLimit.Writes)
}

func TestLoadLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
ledger:
  channel: from-file
  commit_timeout: 1m
log:
  format: text
`), 0o600))

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := Load([]string{"--config", path}, env(nil))
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, "from-file", cfg.Ledger.Channel)
		assert.Equal(t, time.Minute, cfg.Ledger.CommitTimeout)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, "basic", cfg.Ledger.Contract)
	})

	t.Run("env overrides file", func(t *testing.T) {
		cfg, err := Load(nil, env(map[string]string{
			"TITLE_REGISTRY_CONFIG": path,
			"CHANNEL_NAME":          "from-env",
		}))
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Ledger.Channel)
		assert.Equal(t, ":9000", cfg.Server.Addr)
	})

	t.Run("flags override env", func(t *testing.T) {
		cfg, err := Load([]string{"--config", path, "--addr", ":7000", "--identity", "admin"},
			env(map[string]string{"PORT": "8080", "IDENTITY_NAME": "registrar"}))
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.Server.Addr)
		assert.Equal(t, "admin", cfg.Ledger.Identity)
	})
}

func TestLoadTransactions(t *testing.T) {
	t.Run("defaults match the deployed contract", func(t *testing.T) {
		cfg, err := Load(nil, env(nil))
		require.NoError(t, err)
		assert.Equal(t, wire.DefaultTransactions(), cfg.Ledger.Transactions)
	})

	t.Run("file renames some entry points", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "registry.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  transactions:
    create: CreateTitle
    history: TitleHistory
`), 0o600))

		cfg, err := Load([]string{"--config", path}, env(nil))
		require.NoError(t, err)
		assert.Equal(t, "CreateTitle", cfg.Ledger.Transactions.Create)
		assert.Equal(t, "TitleHistory", cfg.Ledger.Transactions.History)
		assert.Equal(t, wire.DefaultTransactions().Transfer, cfg.Ledger.Transactions.Transfer)
	})

	t.Run("two operations on one function", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "registry.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  transactions:
    update: TransferTitreFoncier
`), 0o600))

		_, err := Load([]string{"--config", path}, env(nil))
		assert.ErrorContains(t, err, "ledger transactions")
	})
}

func TestLoadErrors(t *testing.T) {
	t.Run("help", func(t *testing.T) {
		_, err := Load([]string{"--help"}, env(nil))
		assert.ErrorIs(t, err, pflag.ErrHelp)
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, env(nil))
		assert.Error(t, err)
	})

	t.Run("bad commit timeout", func(t *testing.T) {
		_, err := Load(nil, env(map[string]string{"COMMIT_TIMEOUT": "soon"}))
		assert.ErrorContains(t, err, "COMMIT_TIMEOUT")
	})

	t.Run("unknown sink", func(t *testing.T) {
		_, err := Load(nil, env(map[string]string{"AUDIT_SINK": "s3"}))
		assert.ErrorContains(t, err, "unknown audit sink")
	})

	t.Run("sink without its backend", func(t *testing.T) {
		_, err := Load(nil, env(map[string]string{"AUDIT_SINK": "postgres"}))
		assert.ErrorContains(t, err, "DATABASE_URL")

		_, err = Load(nil, env(map[string]string{"AUDIT_SINK": "redis"}))
		assert.ErrorContains(t, err, "REDIS_URL")

		_, err = Load(nil, env(map[string]string{"AUDIT_SINK": "kafka"}))
		assert.ErrorContains(t, err, "KAFKA_BROKERS")
	})

	t.Run("unknown log format", func(t *testing.T) {
		_, err := Load([]string{"--log-format", "xml"}, env(nil))
		assert.ErrorContains(t, err, "log format")
	})
}
