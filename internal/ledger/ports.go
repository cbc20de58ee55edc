package ledger

import (
	"context"
	"sort"
)

// Profile describes how to reach the ledger network. It is produced by a
// ProfileLoader from the operator's connection profile.
type Profile struct {
	Name          string
	Version       string
	Organizations map[string]Organization
	Peers         map[string]Peer
}

// Organization groups the peers operated by one membership service provider.
type Organization struct {
	Name  string
	MSPID string
	Peers []string
}

// Peer is a gateway endpoint.
type Peer struct {
	Name string
	// URL is the peer address including scheme, e.g. grpcs://peer0.org1:7051.
	URL string
	// TLSCACertPEM is the CA certificate used to verify the peer, empty for
	// plaintext endpoints.
	TLSCACertPEM []byte
	// ServerNameOverride replaces the TLS server name when the dialled host
	// differs from the certificate subject.
	ServerNameOverride string
}

// PeerFor picks the gateway peer for an identity. Peers of the identity's own
// organization win; otherwise the first peer by name is used so the choice is
// stable across calls.
func (p *Profile) PeerFor(mspID string) (Peer, bool) {
	orgNames := make([]string, 0, len(p.Organizations))
	for name := range p.Organizations {
		orgNames = append(orgNames, name)
	}
	sort.Strings(orgNames)
	for _, name := range orgNames {
		org := p.Organizations[name]
		if org.MSPID != mspID {
			continue
		}
		for _, peerName := range org.Peers {
			if peer, ok := p.Peers[peerName]; ok {
				return peer, true
			}
		}
	}

	peerNames := make([]string, 0, len(p.Peers))
	for name := range p.Peers {
		peerNames = append(peerNames, name)
	}
	if len(peerNames) == 0 {
		return Peer{}, false
	}
	sort.Strings(peerNames)
	return p.Peers[peerNames[0]], true
}

// Credential is an enrolled identity taken from the credential store.
type Credential struct {
	Label          string
	MSPID          string
	Type           string
	CertificatePEM []byte
	PrivateKeyPEM  []byte
}

// ProfileLoader resolves the connection profile. A missing or unreadable
// profile is a deployment problem.
type ProfileLoader interface {
	Load(path string) (*Profile, error)
}

// CredentialStore looks up enrolled identities. Lookup returns an error
// wrapping sentinel.ErrNotFound when the identity is not provisioned.
type CredentialStore interface {
	Lookup(ctx context.Context, label string) (*Credential, error)
}

// Binder opens a session bound to one channel and contract. On error no
// resources may remain open.
type Binder interface {
	Bind(ctx context.Context, profile *Profile, credential *Credential, channel, contract string) (Session, error)
}

// Dispatcher sends transactions to the bound contract.
type Dispatcher interface {
	// Submit endorses, orders and commits a state-changing transaction and
	// returns the contract's reply.
	Submit(ctx context.Context, transaction string, args ...string) ([]byte, error)
	// Evaluate runs a read-only transaction without writing to the ledger.
	Evaluate(ctx context.Context, transaction string, args ...string) ([]byte, error)
}

// Session is a bound, single-use connection. Close must be idempotent and safe
// to call after any failure.
type Session interface {
	Dispatcher
	Close() error
}
