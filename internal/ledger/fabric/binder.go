package fabric

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/hash"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"titleregistry/internal/ledger"
)

// Binder opens one gRPC connection and gateway per session. Sessions are
// short lived; nothing is pooled.
type Binder struct {
	cfg    ledger.Config
	logger *slog.Logger
}

type BinderOption func(*Binder)

func WithLogger(logger *slog.Logger) BinderOption {
	return func(b *Binder) {
		b.logger = logger
	}
}

// NewBinder uses the gateway timeouts from cfg.
func NewBinder(cfg ledger.Config, opts ...BinderOption) *Binder {
	b := &Binder{cfg: cfg.WithDefaults()}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	return b
}

// Bind implements ledger.Binder.
func (b *Binder) Bind(ctx context.Context, profile *ledger.Profile, cred *ledger.Credential, channel, contractName string) (ledger.Session, error) {
	peer, ok := profile.PeerFor(cred.MSPID)
	if !ok {
		return nil, fmt.Errorf("no peer in connection profile for %s", cred.MSPID)
	}

	id, sign, err := signer(cred)
	if err != nil {
		return nil, err
	}

	target, creds, err := dialTarget(peer)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating grpc client for %s: %w", peer.Name, err)
	}

	gw, err := client.Connect(id,
		client.WithSign(sign),
		client.WithHash(hash.SHA256),
		client.WithClientConnection(conn),
		client.WithEvaluateTimeout(b.cfg.EvaluateTimeout),
		client.WithEndorseTimeout(b.cfg.EndorseTimeout),
		client.WithSubmitTimeout(b.cfg.SubmitTimeout),
		client.WithCommitStatusTimeout(b.cfg.CommitTimeout),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connecting gateway on %s: %w", peer.Name, err)
	}

	b.logger.DebugContext(ctx, "gateway connected",
		"peer", peer.Name,
		"identity", cred.Label,
		"channel", channel,
		"contract", contractName,
	)
	return &session{
		contract: gw.GetNetwork(channel).GetContract(contractName),
		closers:  []io.Closer{gw, conn},
	}, nil
}

func signer(cred *ledger.Credential) (*identity.X509Identity, identity.Sign, error) {
	cert, err := identity.CertificateFromPEM(cred.CertificatePEM)
	if err != nil {
		return nil, nil, fmt.Errorf("identity %q: parsing certificate: %w", cred.Label, err)
	}
	id, err := identity.NewX509Identity(cred.MSPID, cert)
	if err != nil {
		return nil, nil, fmt.Errorf("identity %q: %w", cred.Label, err)
	}
	key, err := identity.PrivateKeyFromPEM(cred.PrivateKeyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("identity %q: parsing private key: %w", cred.Label, err)
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, nil, fmt.Errorf("identity %q: %w", cred.Label, err)
	}
	return id, sign, nil
}

// dialTarget turns a profile url into a grpc target. grpcs:// and a
// configured CA certificate select TLS.
func dialTarget(peer ledger.Peer) (string, credentials.TransportCredentials, error) {
	target := peer.URL
	secure := len(peer.TLSCACertPEM) > 0
	if strings.Contains(peer.URL, "://") {
		u, err := url.Parse(peer.URL)
		if err != nil || u.Host == "" {
			return "", nil, fmt.Errorf("peer %s: invalid url %q", peer.Name, peer.URL)
		}
		switch u.Scheme {
		case "grpcs":
			secure = true
		case "grpc":
			secure = false
		default:
			return "", nil, fmt.Errorf("peer %s: unsupported scheme %q", peer.Name, u.Scheme)
		}
		target = u.Host
	}

	if !secure {
		return target, insecure.NewCredentials(), nil
	}
	var pool *x509.CertPool
	if len(peer.TLSCACertPEM) > 0 {
		pool = x509.NewCertPool()
		if !pool.AppendCertsFromPEM(peer.TLSCACertPEM) {
			return "", nil, fmt.Errorf("peer %s: no certificates in tls ca", peer.Name)
		}
	}
	return target, credentials.NewClientTLSFromCert(pool, peer.ServerNameOverride), nil
}

type contract interface {
	SubmitWithContext(ctx context.Context, name string, options ...client.ProposalOption) ([]byte, error)
	EvaluateWithContext(ctx context.Context, name string, options ...client.ProposalOption) ([]byte, error)
}

type session struct {
	contract contract
	closers  []io.Closer

	once     sync.Once
	closeErr error
}

func (s *session) Submit(ctx context.Context, transaction string, args ...string) ([]byte, error) {
	out, err := s.contract.SubmitWithContext(ctx, transaction, client.WithArguments(args...))
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *session) Evaluate(ctx context.Context, transaction string, args ...string) ([]byte, error) {
	out, err := s.contract.EvaluateWithContext(ctx, transaction, client.WithArguments(args...))
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Close releases the gateway, then the connection. Later calls return the
// first result.
func (s *session) Close() error {
	s.once.Do(func() {
		var errs []error
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
