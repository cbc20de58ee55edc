package ledger

import (
	"time"

	dErrors "titleregistry/pkg/domain-errors"
)

const (
	DefaultChannel       = "mychannel"
	DefaultContract      = "basic"
	DefaultIdentity      = "appUser"
	DefaultCommitTimeout = 30 * time.Second

	defaultEvaluateTimeout = 5 * time.Second
	defaultEndorseTimeout  = 15 * time.Second
	defaultSubmitTimeout   = 5 * time.Second
	dispatchMargin         = 5 * time.Second
)

// Config holds everything a Manager needs to reach the ledger. It is passed to
// the constructor explicitly so several configurations can coexist in one
// process.
type Config struct {
	ProfilePath string
	WalletPath  string
	Channel     string
	Contract    string
	// Identity is used when a call does not name one.
	Identity string

	// CommitTimeout bounds the wait for a submitted transaction to commit.
	CommitTimeout   time.Duration
	EvaluateTimeout time.Duration
	EndorseTimeout  time.Duration
	SubmitTimeout   time.Duration
	// DispatchTimeout bounds a whole session, bind to release. Zero derives it
	// from the other timeouts.
	DispatchTimeout time.Duration

	// AsLocalhost rewrites peer hosts to localhost, for networks running in
	// local containers.
	AsLocalhost bool
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.Contract == "" {
		c.Contract = DefaultContract
	}
	if c.Identity == "" {
		c.Identity = DefaultIdentity
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = DefaultCommitTimeout
	}
	if c.EvaluateTimeout <= 0 {
		c.EvaluateTimeout = defaultEvaluateTimeout
	}
	if c.EndorseTimeout <= 0 {
		c.EndorseTimeout = defaultEndorseTimeout
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = defaultSubmitTimeout
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = c.EndorseTimeout + c.SubmitTimeout + c.CommitTimeout + dispatchMargin
	}
	return c
}

// Validate reports configuration that can never work.
func (c Config) Validate() error {
	if c.ProfilePath == "" {
		return dErrors.New(dErrors.CodeConfigMissing, "connection profile path is not configured")
	}
	if c.WalletPath == "" {
		return dErrors.New(dErrors.CodeConfigMissing, "wallet path is not configured")
	}
	return nil
}
