package fabric

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"titleregistry/internal/ledger"
	dErrors "titleregistry/pkg/domain-errors"
)

func testProfile(url string) *ledger.Profile {
	return &ledger.Profile{
		Organizations: map[string]ledger.Organization{
			"Org1": {Name: "Org1", MSPID: "Org1MSP", Peers: []string{"peer0"}},
		},
		Peers: map[string]ledger.Peer{
			"peer0": {Name: "peer0", URL: url},
		},
	}
}

func TestBind(t *testing.T) {
	certPEM, keyPEM := enrolment(t, "appUser")
	cred := &ledger.Credential{Label: "appUser", MSPID: "Org1MSP", CertificatePEM: certPEM, PrivateKeyPEM: keyPEM}
	binder := NewBinder(ledger.Config{})

	t.Run("binding does not dial and close is idempotent", func(t *testing.T) {
		sess, err := binder.Bind(context.Background(), testProfile("grpc://localhost:7051"), cred, "mychannel", "basic")
		require.NoError(t, err)
		first := sess.Close()
		assert.Equal(t, first, sess.Close())
	})

	t.Run("profile without peers", func(t *testing.T) {
		_, err := binder.Bind(context.Background(), &ledger.Profile{}, cred, "mychannel", "basic")
		assert.ErrorContains(t, err, "no peer")
	})

	t.Run("unparseable certificate", func(t *testing.T) {
		broken := *cred
		broken.CertificatePEM = []byte("not a certificate")
		_, err := binder.Bind(context.Background(), testProfile("grpc://localhost:7051"), &broken, "mychannel", "basic")
		assert.ErrorContains(t, err, "parsing certificate")
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := binder.Bind(context.Background(), testProfile("http://localhost:7051"), cred, "mychannel", "basic")
		assert.ErrorContains(t, err, "unsupported scheme")
	})
}

func TestDialTarget(t *testing.T) {
	target, creds, err := dialTarget(ledger.Peer{Name: "p", URL: "grpcs://peer0.org1.example.com:7051"})
	require.NoError(t, err)
	assert.Equal(t, "peer0.org1.example.com:7051", target)
	assert.Equal(t, "tls", creds.Info().SecurityProtocol)

	target, creds, err = dialTarget(ledger.Peer{Name: "p", URL: "grpc://localhost:7051"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:7051", target)
	assert.Equal(t, "insecure", creds.Info().SecurityProtocol)

	_, _, err = dialTarget(ledger.Peer{Name: "p", URL: "grpcs://localhost:7051", TLSCACertPEM: []byte("junk")})
	assert.ErrorContains(t, err, "no certificates")
}

type stubContract struct {
	out []byte
	err error

	name string
}

func (c *stubContract) SubmitWithContext(_ context.Context, name string, _ ...client.ProposalOption) ([]byte, error) {
	c.name = name
	return c.out, c.err
}

func (c *stubContract) EvaluateWithContext(_ context.Context, name string, _ ...client.ProposalOption) ([]byte, error) {
	c.name = name
	return c.out, c.err
}

type countingCloser struct {
	calls int
	err   error
}

func (c *countingCloser) Close() error {
	c.calls++
	return c.err
}

func TestSession(t *testing.T) {
	t.Run("dispatch failures are classified", func(t *testing.T) {
		stub := &stubContract{err: status.Error(codes.Unavailable, "connection refused")}
		sess := &session{contract: stub}

		_, err := sess.Submit(context.Background(), "creerFichier", "a", "b")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNetwork))
		assert.Equal(t, "creerFichier", stub.name)
	})

	t.Run("replies are returned untouched", func(t *testing.T) {
		sess := &session{contract: &stubContract{out: []byte("true")}}
		out, err := sess.Evaluate(context.Background(), "titreFoncierExists", "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("true"), out)
	})

	t.Run("close releases everything once", func(t *testing.T) {
		gw := &countingCloser{err: errors.New("gateway already closed")}
		conn := &countingCloser{}
		sess := &session{closers: []io.Closer{gw, conn}}

		err := sess.Close()
		assert.ErrorContains(t, err, "gateway already closed")
		assert.Equal(t, err, sess.Close())
		assert.Equal(t, 1, gw.calls)
		assert.Equal(t, 1, conn.calls, "a failing gateway close still releases the connection")
	})
}
