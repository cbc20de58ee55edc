package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "titleregistry/pkg/domain-errors"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()

	assert.Equal(t, "mychannel", cfg.Channel)
	assert.Equal(t, "basic", cfg.Contract)
	assert.Equal(t, "appUser", cfg.Identity)
	assert.Equal(t, 30*time.Second, cfg.CommitTimeout)
	assert.Greater(t, cfg.DispatchTimeout, cfg.CommitTimeout)

	custom := Config{Channel: "titles", CommitTimeout: time.Second, DispatchTimeout: 2 * time.Second}.WithDefaults()
	assert.Equal(t, "titles", custom.Channel)
	assert.Equal(t, time.Second, custom.CommitTimeout)
	assert.Equal(t, 2*time.Second, custom.DispatchTimeout)
}

func TestConfigValidate(t *testing.T) {
	err := Config{WalletPath: "wallet"}.Validate()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigMissing))

	err = Config{ProfilePath: "profile.json"}.Validate()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConfigMissing))

	assert.NoError(t, Config{ProfilePath: "profile.json", WalletPath: "wallet"}.Validate())
}

func TestProfilePeerFor(t *testing.T) {
	profile := &Profile{
		Organizations: map[string]Organization{
			"Org1": {MSPID: "Org1MSP", Peers: []string{"peer0.org1"}},
			"Org2": {MSPID: "Org2MSP", Peers: []string{"peer0.org2"}},
		},
		Peers: map[string]Peer{
			"peer0.org1": {Name: "peer0.org1", URL: "grpcs://peer0.org1:7051"},
			"peer0.org2": {Name: "peer0.org2", URL: "grpcs://peer0.org2:9051"},
		},
	}

	peer, ok := profile.PeerFor("Org2MSP")
	require.True(t, ok)
	assert.Equal(t, "peer0.org2", peer.Name)

	peer, ok = profile.PeerFor("Org9MSP")
	require.True(t, ok)
	assert.Equal(t, "peer0.org1", peer.Name, "falls back to the first peer by name")

	_, ok = (&Profile{}).PeerFor("Org1MSP")
	assert.False(t, ok)
}
