package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "titleregistry/pkg/domain-errors"
)

const validTitleID = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestParseTitleID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TitleID
		wantErr bool
	}{
		{"valid lowercase", validTitleID, TitleID(validTitleID), false},
		{"uppercase is normalized", strings.ToUpper(validTitleID), TitleID(validTitleID), false},
		{"surrounding whitespace", "  " + validTitleID + "\n", TitleID(validTitleID), false},
		{"empty", "", "", true},
		{"too short", validTitleID[:63], "", true},
		{"too long", validTitleID + "0", "", true},
		{"not hex", strings.Repeat("z", 64), "", true},
		{"path traversal", "../../../etc/passwd", "", true},
		{"null byte", validTitleID[:32] + "\x00" + validTitleID[33:], "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTitleID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTitleIDDigestRoundTrip(t *testing.T) {
	var digest [DigestSize]byte
	for i := range digest {
		digest[i] = byte(i * 7)
	}

	id := TitleIDFromDigest(digest)
	back, err := id.Digest()
	require.NoError(t, err)
	assert.Equal(t, digest, back)

	_, err = TitleID("nope").Digest()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParsePrincipal(t *testing.T) {
	p, err := ParsePrincipal("  alice ")
	require.NoError(t, err)
	assert.Equal(t, Principal("alice"), p)

	for _, input := range []string{"", "   ", "bob\x07", strings.Repeat("a", 257), string([]byte{0xff, 0xfe})} {
		_, err := ParsePrincipal(input)
		require.Error(t, err, "input %q", input)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}

func TestParsePrice(t *testing.T) {
	p, err := ParsePrice("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrice, p)

	for _, valid := range []string{"0", "100", "2500.75", " 12 "} {
		_, err := ParsePrice(valid)
		assert.NoError(t, err, valid)
	}

	for _, invalid := range []string{"-1", "1e6", "abc", "1.", ".5", "1,000"} {
		_, err := ParsePrice(invalid)
		require.Error(t, err, invalid)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}
