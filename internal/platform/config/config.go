package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"titleregistry/internal/title/wire"
	platformstrings "titleregistry/pkg/platform/strings"
)

// Audit sinks accepted by AUDIT_SINK.
const (
	AuditSinkMemory   = "memory"
	AuditSinkPostgres = "postgres"
	AuditSinkRedis    = "redis"
	AuditSinkKafka    = "kafka"
)

// Config is the full process configuration. Values are layered: defaults,
// then the YAML file named by --config or TITLE_REGISTRY_CONFIG, then
// environment variables, then explicitly set flags.
type Config struct {
	Server    Server          `yaml:"server"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Documents DocumentsConfig `yaml:"documents"`
	Audit     AuditConfig     `yaml:"audit"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LedgerConfig locates the ledger network and the credentials used to reach it.
type LedgerConfig struct {
	ProfilePath   string        `yaml:"connection_profile"`
	WalletPath    string        `yaml:"wallet_path"`
	WalletAgeKey  string        `yaml:"wallet_age_key"`
	Channel       string        `yaml:"channel"`
	Contract      string        `yaml:"contract"`
	Identity      string        `yaml:"identity"`
	CommitTimeout time.Duration `yaml:"commit_timeout"`
	AsLocalhost   bool          `yaml:"as_localhost"`

	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`

	// Transactions renames contract entry points for chaincode deployed under
	// other function names. Omitted names keep their defaults.
	Transactions wire.Transactions `yaml:"transactions"`
}

// DocumentsConfig controls where uploads land and how they are identified.
type DocumentsConfig struct {
	Dir             string `yaml:"dir"`
	MaxSize         int64  `yaml:"max_size"`
	DigestAlgorithm string `yaml:"digest_algorithm"`
}

// AuditConfig selects the operator audit sink.
type AuditConfig struct {
	Sink        string `yaml:"sink"`
	DatabaseURL string `yaml:"database_url"`
	Buffer      int    `yaml:"buffer"`
	// Consume runs the kafka audit consumer in-process, persisting events from
	// the audit topics into Postgres.
	Consume bool `yaml:"consume"`
}

// RedisConfig holds go-redis connection settings. An empty URL disables redis.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KafkaConfig lists the seed brokers for the kafka audit sink.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	GroupID     string   `yaml:"group_id"`
	Partitions  int32    `yaml:"partitions"`
	Replication int16    `yaml:"replication"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig enables bearer authentication on the title routes. An empty
// signing key leaves the routes open and every call runs as the default
// ledger identity.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	// AdminToken guards the operator audit endpoints, which stay unmounted
	// when it is empty.
	AdminToken string `yaml:"admin_token"`
}

// RateLimitConfig bounds requests per client IP and window. Zero disables a
// class. Limits are shared across instances when redis is configured.
type RateLimitConfig struct {
	Reads  int           `yaml:"reads"`
	Writes int           `yaml:"writes"`
	Window time.Duration `yaml:"window"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":3000",
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: LedgerConfig{
			ProfilePath:      "connection-profile.json",
			WalletPath:       "wallet",
			Channel:          "mychannel",
			Contract:         "basic",
			Identity:         "appUser",
			CommitTimeout:    30 * time.Second,
			AsLocalhost:      true,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			Transactions:     wire.DefaultTransactions(),
		},
		Documents: DocumentsConfig{
			Dir:             "/mnt/nfs/titres/",
			MaxSize:         10 << 20,
			DigestAlgorithm: "sha256",
		},
		Audit: AuditConfig{
			Sink:   AuditSinkMemory,
			Buffer: 256,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			GroupID:     "title-registry-audit",
			Partitions:  3,
			Replication: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Issuer:   "title-registry",
			Audience: "title-registry",
		},
		RateLimit: RateLimitConfig{
			Reads:  600,
			Writes: 60,
			Window: time.Minute,
		},
	}
}

// FromEnv builds a Config from defaults and environment variables only.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Load parses args with pflag and resolves the layered configuration. It
// returns pflag.ErrHelp when --help was requested.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()

	var configPath string
	fs := pflag.NewFlagSet("title-registry", pflag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "YAML configuration file")
	flags := bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if configPath == "" {
		configPath = getenv("TITLE_REGISTRY_CONFIG")
	}
	if configPath != "" {
		if err := LoadFile(configPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	flags.apply(fs, &cfg)

	return cfg, cfg.Validate()
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the process cannot start with.
func (c Config) Validate() error {
	switch c.Audit.Sink {
	case AuditSinkMemory, AuditSinkPostgres, AuditSinkRedis, AuditSinkKafka:
	default:
		return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
	}
	if c.Audit.Sink == AuditSinkPostgres && c.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit sink postgres requires DATABASE_URL")
	}
	if c.Audit.Sink == AuditSinkRedis && c.Redis.URL == "" {
		return fmt.Errorf("audit sink redis requires REDIS_URL")
	}
	if (c.Audit.Sink == AuditSinkKafka || c.Audit.Consume) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka audit requires KAFKA_BROKERS")
	}
	if c.Audit.Consume && c.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit consumer requires DATABASE_URL")
	}
	if err := c.Ledger.Transactions.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("ledger transactions: %w", err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.Documents.MaxSize <= 0 {
		return fmt.Errorf("document max size must be positive")
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}

	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Server.Addr = ":" + port
	}
	str("CONNECTION_PROFILE", &c.Ledger.ProfilePath)
	str("WALLET_PATH", &c.Ledger.WalletPath)
	str("WALLET_AGE_KEY", &c.Ledger.WalletAgeKey)
	str("CHANNEL_NAME", &c.Ledger.Channel)
	str("CONTRACT_NAME", &c.Ledger.Contract)
	str("IDENTITY_NAME", &c.Ledger.Identity)
	str("REPERTOIRE_PARTAGE", &c.Documents.Dir)
	str("DIGEST_ALGORITHM", &c.Documents.DigestAlgorithm)
	str("AUDIT_SINK", &c.Audit.Sink)
	str("DATABASE_URL", &c.Audit.DatabaseURL)
	str("REDIS_URL", &c.Redis.URL)
	str("JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("JWT_ISSUER", &c.Auth.Issuer)
	str("JWT_AUDIENCE", &c.Auth.Audience)
	str("ADMIN_TOKEN", &c.Auth.AdminToken)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v := strings.TrimSpace(getenv("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = platformstrings.SplitList(v, ",")
	}
	if v := strings.TrimSpace(getenv("COMMIT_TIMEOUT")); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("COMMIT_TIMEOUT: %w", err)
		}
		c.Ledger.CommitTimeout = d
	}
	if v := strings.TrimSpace(getenv("AS_LOCALHOST")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AS_LOCALHOST: %w", err)
		}
		c.Ledger.AsLocalhost = b
	}
	if v := strings.TrimSpace(getenv("AUDIT_CONSUME")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUDIT_CONSUME: %w", err)
		}
		c.Audit.Consume = b
	}
	for name, dst := range map[string]*int{
		"RATE_LIMIT_READS":  &c.RateLimit.Reads,
		"RATE_LIMIT_WRITES": &c.RateLimit.Writes,
	} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}
	if v := strings.TrimSpace(getenv("MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		c.Documents.MaxSize = n
	}
	return nil
}

// parseDuration accepts Go durations and bare integers, read as seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

type flagValues struct {
	addr      *string
	profile   *string
	wallet    *string
	identity  *string
	documents *string
	auditSink *string
	logLevel  *string
	logFormat *string
	localhost *bool
}

func bindFlags(fs *pflag.FlagSet) flagValues {
	return flagValues{
		addr:      fs.String("addr", "", "HTTP listen address"),
		profile:   fs.String("connection-profile", "", "ledger connection profile (JSON or YAML)"),
		wallet:    fs.String("wallet", "", "wallet directory holding ledger identities"),
		identity:  fs.String("identity", "", "default ledger identity label"),
		documents: fs.String("documents", "", "shared directory for uploaded documents"),
		auditSink: fs.String("audit-sink", "", "audit sink: memory, postgres, redis or kafka"),
		logLevel:  fs.String("log-level", "", "debug, info, warn or error"),
		logFormat: fs.String("log-format", "", "json or text"),
		localhost: fs.Bool("as-localhost", false, "rewrite peer hosts to localhost"),
	}
}

// apply copies flags the user set explicitly.
func (f flagValues) apply(fs *pflag.FlagSet, c *Config) {
	set := func(name string, dst *string, v *string) {
		if fs.Changed(name) {
			*dst = *v
		}
	}
	set("addr", &c.Server.Addr, f.addr)
	set("connection-profile", &c.Ledger.ProfilePath, f.profile)
	set("wallet", &c.Ledger.WalletPath, f.wallet)
	set("identity", &c.Ledger.Identity, f.identity)
	set("documents", &c.Documents.Dir, f.documents)
	set("audit-sink", &c.Audit.Sink, f.auditSink)
	set("log-level", &c.Log.Level, f.logLevel)
	set("log-format", &c.Log.Format, f.logFormat)
	if fs.Changed("as-localhost") {
		c.Ledger.AsLocalhost = *f.localhost
	}
}
