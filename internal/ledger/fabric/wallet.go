// Package fabric connects the ledger session manager to a Hyperledger Fabric
// network through the Fabric Gateway: a filesystem wallet, a connection
// profile loader and a gateway binder.
package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"titleregistry/internal/ledger"
	"titleregistry/pkg/platform/sentinel"
)

const (
	identityExt  = ".id"
	encryptedExt = ".id.age"
	x509Type     = "X.509"
)

// Wallet reads identities from a directory in the layout the Fabric SDKs
// write: one <label>.id JSON file per identity. With age identities
// configured, <label>.id.age files are decrypted on lookup.
type Wallet struct {
	dir        string
	identities []age.Identity
}

type WalletOption func(*Wallet)

// WithAgeIdentities enables encrypted wallet entries.
func WithAgeIdentities(ids ...age.Identity) WalletOption {
	return func(w *Wallet) {
		w.identities = append(w.identities, ids...)
	}
}

func NewWallet(dir string, opts ...WalletOption) *Wallet {
	w := &Wallet{dir: dir}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// LoadAgeIdentities parses an age identity file (AGE-SECRET-KEY-1... lines).
func LoadAgeIdentities(path string) ([]age.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wallet key %s: %w", path, err)
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parsing wallet key %s: %w", path, err)
	}
	return ids, nil
}

// walletEntry is the on-disk identity format.
type walletEntry struct {
	Credentials struct {
		Certificate string `json:"certificate"`
		PrivateKey  string `json:"privateKey"`
	} `json:"credentials"`
	MSPID   string `json:"mspId"`
	Type    string `json:"type"`
	Version int    `json:"version,omitempty"`
}

// Lookup implements ledger.CredentialStore. A missing directory is reported
// as a plain error so it reads as misconfiguration; a missing identity wraps
// sentinel.ErrNotFound.
func (w *Wallet) Lookup(_ context.Context, label string) (*ledger.Credential, error) {
	info, err := os.Stat(w.dir)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", w.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("wallet %s is not a directory", w.dir)
	}
	if label == "" || strings.ContainsAny(label, `/\`) || label == "." || label == ".." {
		return nil, fmt.Errorf("identity %q: %w", label, sentinel.ErrNotFound)
	}

	raw, err := w.read(label)
	if err != nil {
		return nil, err
	}

	var entry walletEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("identity %q: decoding wallet entry: %w", label, err)
	}
	if entry.Type != "" && entry.Type != x509Type {
		return nil, fmt.Errorf("identity %q: unsupported identity type %q", label, entry.Type)
	}
	if entry.MSPID == "" || entry.Credentials.Certificate == "" || entry.Credentials.PrivateKey == "" {
		return nil, fmt.Errorf("identity %q: incomplete wallet entry", label)
	}

	return &ledger.Credential{
		Label:          label,
		MSPID:          entry.MSPID,
		Type:           x509Type,
		CertificatePEM: []byte(entry.Credentials.Certificate),
		PrivateKeyPEM:  []byte(entry.Credentials.PrivateKey),
	}, nil
}

func (w *Wallet) read(label string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(w.dir, label+identityExt))
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("identity %q: %w", label, err)
	}

	if len(w.identities) > 0 {
		sealed, err := os.ReadFile(filepath.Join(w.dir, label+encryptedExt))
		if err == nil {
			return w.decrypt(label, sealed)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("identity %q: %w", label, err)
		}
	}
	return nil, fmt.Errorf("identity %q: %w", label, sentinel.ErrNotFound)
}

func (w *Wallet) decrypt(label string, sealed []byte) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(sealed), w.identities...)
	if err != nil {
		return nil, fmt.Errorf("identity %q: decrypting: %w", label, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("identity %q: reading decrypted entry: %w", label, err)
	}
	return plaintext, nil
}

// Labels lists the identities present in the wallet, encrypted ones included.
func (w *Wallet) Labels() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", w.dir, err)
	}
	seen := make(map[string]bool)
	var labels []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var label string
		switch {
		case strings.HasSuffix(name, encryptedExt):
			label = strings.TrimSuffix(name, encryptedExt)
		case strings.HasSuffix(name, identityExt):
			label = strings.TrimSuffix(name, identityExt)
		default:
			continue
		}
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels, nil
}
