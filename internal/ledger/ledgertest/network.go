// Package ledgertest provides an in-memory ledger network for tests. It
// implements the ledger ports, counts sessions and lets tests inject a failure
// at any stage of a session.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"titleregistry/internal/ledger"
	dErrors "titleregistry/pkg/domain-errors"
	"titleregistry/pkg/platform/sentinel"
)

// Contract is the transaction logic behind the fake network.
type Contract interface {
	Invoke(submit bool, transaction string, args []string) ([]byte, error)
}

// ContractFunc adapts a function to Contract.
type ContractFunc func(submit bool, transaction string, args []string) ([]byte, error)

func (f ContractFunc) Invoke(submit bool, transaction string, args []string) ([]byte, error) {
	return f(submit, transaction, args)
}

// Call records one dispatched transaction.
type Call struct {
	Identity    string
	Submit      bool
	Transaction string
	Args        []string
}

// Network implements ledger.ProfileLoader, ledger.CredentialStore and
// ledger.Binder.
type Network struct {
	mu sync.Mutex

	contract   Contract
	identities map[string]*ledger.Credential

	profileErr  error
	walletErr   error
	bindErr     error
	dispatchErr error
	closeErr    error
	hang        bool

	binds        int
	closes       int
	doubleCloses int
	calls        []Call
}

// NewNetwork creates a network running contract with the given identities
// enrolled.
func NewNetwork(contract Contract, identities ...string) *Network {
	n := &Network{
		contract:   contract,
		identities: make(map[string]*ledger.Credential),
	}
	for _, label := range identities {
		n.Enroll(label)
	}
	return n
}

// Enroll adds an identity to the wallet.
func (n *Network) Enroll(label string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.identities[label] = &ledger.Credential{
		Label:          label,
		MSPID:          "Org1MSP",
		Type:           "X.509",
		CertificatePEM: []byte("cert:" + label),
		PrivateKeyPEM:  []byte("key:" + label),
	}
}

// FailProfile makes profile resolution fail with err.
func (n *Network) FailProfile(err error) { n.set(func() { n.profileErr = err }) }

// FailWallet makes every credential lookup fail with err.
func (n *Network) FailWallet(err error) { n.set(func() { n.walletErr = err }) }

// FailBind makes session binding fail with err.
func (n *Network) FailBind(err error) { n.set(func() { n.bindErr = err }) }

// FailDispatch makes every transaction fail with err.
func (n *Network) FailDispatch(err error) { n.set(func() { n.dispatchErr = err }) }

// FailClose makes session teardown report err.
func (n *Network) FailClose(err error) { n.set(func() { n.closeErr = err }) }

// Hang makes transactions block until their context ends.
func (n *Network) Hang() { n.set(func() { n.hang = true }) }

// Heal clears every injected fault.
func (n *Network) Heal() {
	n.set(func() {
		n.profileErr, n.walletErr, n.bindErr, n.dispatchErr, n.closeErr = nil, nil, nil, nil, nil
		n.hang = false
	})
}

func (n *Network) set(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn()
}

// Binds is the number of sessions opened.
func (n *Network) Binds() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.binds
}

// Closes is the number of sessions closed at least once.
func (n *Network) Closes() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closes
}

// DoubleCloses counts Close calls on an already closed session.
func (n *Network) DoubleCloses() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.doubleCloses
}

// OpenSessions is the number of bound sessions not yet closed.
func (n *Network) OpenSessions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.binds - n.closes
}

// Calls returns the dispatched transactions in order.
func (n *Network) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Call, len(n.calls))
	copy(out, n.calls)
	return out
}

// Transactions returns the names of the dispatched transactions in order.
func (n *Network) Transactions() []string {
	calls := n.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Transaction)
	}
	return out
}

func (n *Network) Load(path string) (*ledger.Profile, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.profileErr != nil {
		return nil, n.profileErr
	}
	return &ledger.Profile{
		Name:    "ledgertest",
		Version: "1.0.0",
		Organizations: map[string]ledger.Organization{
			"Org1": {Name: "Org1", MSPID: "Org1MSP", Peers: []string{"peer0.org1.example.com"}},
		},
		Peers: map[string]ledger.Peer{
			"peer0.org1.example.com": {Name: "peer0.org1.example.com", URL: "grpc://localhost:7051"},
		},
	}, nil
}

func (n *Network) Lookup(_ context.Context, label string) (*ledger.Credential, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.walletErr != nil {
		return nil, n.walletErr
	}
	cred, ok := n.identities[label]
	if !ok {
		return nil, fmt.Errorf("identity %q: %w", label, sentinel.ErrNotFound)
	}
	return cred, nil
}

func (n *Network) Bind(_ context.Context, _ *ledger.Profile, credential *ledger.Credential, _, _ string) (ledger.Session, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bindErr != nil {
		return nil, n.bindErr
	}
	n.binds++
	return &session{network: n, identity: credential.Label}, nil
}

type session struct {
	network  *Network
	identity string
	closed   bool
}

func (s *session) Submit(ctx context.Context, transaction string, args ...string) ([]byte, error) {
	return s.invoke(ctx, true, transaction, args)
}

func (s *session) Evaluate(ctx context.Context, transaction string, args ...string) ([]byte, error) {
	return s.invoke(ctx, false, transaction, args)
}

func (s *session) invoke(ctx context.Context, submit bool, transaction string, args []string) ([]byte, error) {
	n := s.network
	n.mu.Lock()
	n.calls = append(n.calls, Call{
		Identity:    s.identity,
		Submit:      submit,
		Transaction: transaction,
		Args:        append([]string(nil), args...),
	})
	dispatchErr, hang, contract := n.dispatchErr, n.hang, n.contract
	n.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}
	if contract == nil {
		return nil, dErrors.New(dErrors.CodeLedgerRejected, "no contract deployed")
	}
	out, err := contract.Invoke(submit, transaction, args)
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeLedgerRejected, err.Error())
	}
	return out, nil
}

func (s *session) Close() error {
	n := s.network
	n.mu.Lock()
	defer n.mu.Unlock()
	if s.closed {
		n.doubleCloses++
		return nil
	}
	s.closed = true
	n.closes++
	return n.closeErr
}
