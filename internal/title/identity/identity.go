// Package identity derives a title's content identifier from document bytes.
//
// The identifier is a fixed-size digest: byte-identical documents always map
// to the same TitleID and any change to the bytes yields a different one with
// overwhelming probability. Nothing here touches the network or the ledger.
package identity

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"titleregistry/pkg/domain"
	dErrors "titleregistry/pkg/domain-errors"
)

// Algorithm names a supported digest function. Every algorithm produces
// domain.DigestSize bytes.
type Algorithm string

const (
	SHA256  Algorithm = "sha256"
	BLAKE3  Algorithm = "blake3"
	SHA3256 Algorithm = "sha3-256"
)

// ParseAlgorithm resolves a configured algorithm name. Empty means SHA256,
// which is what deployed chaincode expects.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case "":
		return SHA256, nil
	case SHA256, BLAKE3, SHA3256:
		return a, nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported digest algorithm %q", name)
	}
}

// Hasher computes TitleIDs with one fixed algorithm. It holds no mutable state
// and is safe for concurrent use.
type Hasher struct {
	algorithm Algorithm
}

// New returns a Hasher for algorithm.
func New(algorithm Algorithm) (*Hasher, error) {
	parsed, err := ParseAlgorithm(string(algorithm))
	if err != nil {
		return nil, err
	}
	return &Hasher{algorithm: parsed}, nil
}

// Default returns the SHA-256 hasher.
func Default() *Hasher {
	return &Hasher{algorithm: SHA256}
}

func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

func (h *Hasher) newHash() hash.Hash {
	switch h.algorithm {
	case BLAKE3:
		return blake3.New()
	case SHA3256:
		return sha3.New256()
	default:
		return sha256.New()
	}
}

// Sum returns the identifier of data.
func (h *Hasher) Sum(data []byte) domain.TitleID {
	d := h.NewDigest()
	_, _ = d.Write(data)
	return d.ID()
}

// FromReader streams r through the digest. Read failures are returned wrapped;
// they are I/O problems of the caller's source, not registry failures.
func (h *Hasher) FromReader(r io.Reader) (domain.TitleID, error) {
	d := h.NewDigest()
	if _, err := io.Copy(d, r); err != nil {
		return "", fmt.Errorf("hashing document: %w", err)
	}
	return d.ID(), nil
}

// HashFile computes the identifier of the file at path without loading it
// into memory.
func (h *Hasher) HashFile(path string) (domain.TitleID, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	id, err := h.FromReader(file)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return id, nil
}

// Digest is an incremental identifier computation. Use it as the hashing leg
// of an io.MultiWriter when the bytes are being written elsewhere anyway.
type Digest struct {
	h hash.Hash
	n int64
}

// NewDigest starts an incremental computation.
func (h *Hasher) NewDigest() *Digest {
	return &Digest{h: h.newHash()}
}

func (d *Digest) Write(p []byte) (int, error) {
	n, err := d.h.Write(p)
	d.n += int64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (d *Digest) Size() int64 {
	return d.n
}

// ID returns the identifier of everything written so far.
func (d *Digest) ID() domain.TitleID {
	var digest [domain.DigestSize]byte
	copy(digest[:], d.h.Sum(nil))
	return domain.TitleIDFromDigest(digest)
}
