package fabric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonProfile = `{
	// generated by the network's ccp script
	"name": "test-network-org1",
	"version": "1.0.0",
	"organizations": {
		"Org1": {
			"mspid": "Org1MSP",
			"peers": ["peer0.org1.example.com"],
		},
	},
	"peers": {
		"peer0.org1.example.com": {
			"url": "grpcs://peer0.org1.example.com:7051",
			"tlsCACerts": {"path": "tls/ca.pem"},
			"grpcOptions": {"ssl-target-name-override": "peer0.org1.example.com"},
		},
	},
}`

const yamlProfile = `
name: test-network-org2
version: 1.0.0
organizations:
  Org2:
    mspid: Org2MSP
    peers:
      - peer0.org2.example.com
peers:
  peer0.org2.example.com:
    url: grpcs://peer0.org2.example.com:9051
    tlsCACerts:
      pem: |
        -----BEGIN CERTIFICATE-----
        MIIB
        -----END CERTIFICATE-----
`

func writeProfile(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tls"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tls", "ca.pem"), []byte("ca-bytes"), 0o600))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestProfileLoaderJSONWithComments(t *testing.T) {
	profile, err := ProfileLoader{}.Load(writeProfile(t, "connection-org1.json", jsonProfile))
	require.NoError(t, err)

	assert.Equal(t, "test-network-org1", profile.Name)
	assert.Equal(t, "Org1MSP", profile.Organizations["Org1"].MSPID)

	peer, ok := profile.PeerFor("Org1MSP")
	require.True(t, ok)
	assert.Equal(t, "grpcs://peer0.org1.example.com:7051", peer.URL)
	assert.Equal(t, []byte("ca-bytes"), peer.TLSCACertPEM, "relative cert paths resolve against the profile")
	assert.Equal(t, "peer0.org1.example.com", peer.ServerNameOverride)
}

func TestProfileLoaderYAML(t *testing.T) {
	profile, err := ProfileLoader{}.Load(writeProfile(t, "connection-org2.yaml", yamlProfile))
	require.NoError(t, err)

	peer, ok := profile.PeerFor("Org2MSP")
	require.True(t, ok)
	assert.Equal(t, "peer0.org2.example.com", peer.Name)
	assert.Contains(t, string(peer.TLSCACertPEM), "BEGIN CERTIFICATE")
}

func TestProfileLoaderAsLocalhost(t *testing.T) {
	profile, err := ProfileLoader{AsLocalhost: true}.Load(writeProfile(t, "connection-org2.yml", yamlProfile))
	require.NoError(t, err)

	peer := profile.Peers["peer0.org2.example.com"]
	assert.Equal(t, "grpcs://localhost:9051", peer.URL)
	assert.Equal(t, "peer0.org2.example.com", peer.ServerNameOverride, "tls still verifies the original host name")
}

func TestProfileLoaderErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := ProfileLoader{}.Load(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := ProfileLoader{}.Load(writeProfile(t, "bad.json", `{"peers": [`))
		assert.Error(t, err)
	})
	t.Run("no peers", func(t *testing.T) {
		_, err := ProfileLoader{}.Load(writeProfile(t, "empty.json", `{"name": "empty"}`))
		assert.ErrorContains(t, err, "declares no peers")
	})
	t.Run("missing tls file", func(t *testing.T) {
		body := `{"peers": {"p0": {"url": "grpcs://p0:7051", "tlsCACerts": {"path": "nope.pem"}}}}`
		_, err := ProfileLoader{}.Load(writeProfile(t, "nocert.json", body))
		assert.Error(t, err)
	})
}
