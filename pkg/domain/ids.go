package domain

import (
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "titleregistry/pkg/domain-errors"
)

// DigestSize is the byte length of every content digest the registry accepts.
const DigestSize = 32

// TitleID is the hex-encoded content digest of a registered document. It is the
// title's primary key and never changes once the title exists.
type TitleID string

// TitleIDFromDigest formats a raw digest as a TitleID.
func TitleIDFromDigest(digest [DigestSize]byte) TitleID {
	return TitleID(hex.EncodeToString(digest[:]))
}

// ParseTitleID validates an externally supplied identifier. Upper-case hex is
// accepted and normalized; anything that is not exactly DigestSize bytes of hex
// is rejected with CodeInvalidInput.
func ParseTitleID(s string) (TitleID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "title id is required")
	}
	if len(s) != DigestSize*2 {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "title id must be %d hex characters", DigestSize*2)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "title id must be hex encoded")
	}
	return TitleID(s), nil
}

func (id TitleID) String() string { return string(id) }

func (id TitleID) IsZero() bool { return id == "" }

// Digest decodes the identifier back to raw bytes.
func (id TitleID) Digest() ([DigestSize]byte, error) {
	var digest [DigestSize]byte
	raw, err := hex.DecodeString(string(id))
	if err != nil || len(raw) != DigestSize {
		return digest, dErrors.New(dErrors.CodeInvalidInput, "title id is not a valid digest")
	}
	copy(digest[:], raw)
	return digest, nil
}

// maxPrincipalLength bounds owner identifiers stored on the ledger.
const maxPrincipalLength = 256

// Principal identifies an owner. The registry treats it as opaque text.
type Principal string

// ParsePrincipal trims and validates an owner identifier.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "owner is required")
	}
	if len(s) > maxPrincipalLength {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "owner must be at most %d bytes", maxPrincipalLength)
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "owner must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "owner must not contain control characters")
		}
	}
	return Principal(s), nil
}

func (p Principal) String() string { return string(p) }

// DefaultPrice is recorded on transfers that do not state a price.
const DefaultPrice Price = "0"

var priceFormat = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Price is a non-negative decimal amount kept as text so that no precision is
// lost between the caller and the ledger.
type Price string

// ParsePrice validates a decimal price. An empty string yields DefaultPrice.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultPrice, nil
	}
	if !priceFormat.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "price must be a non-negative decimal number")
	}
	return Price(s), nil
}

func (p Price) String() string { return string(p) }
