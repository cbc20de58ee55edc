package fabric

import (
	"errors"
	"testing"

	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dErrors "titleregistry/pkg/domain-errors"
)

func TestClassify(t *testing.T) {
	t.Run("contract rejection keeps the peer message", func(t *testing.T) {
		st, err := status.New(codes.Aborted, "failed to endorse transaction, see attached details for more info").WithDetails(
			&gateway.ErrorDetail{Address: "peer0.org1.example.com:7051", MspId: "Org1MSP", Message: "chaincode response 500, le titre foncier abc n'existe pas"},
			&gateway.ErrorDetail{Address: "peer0.org2.example.com:9051", MspId: "Org2MSP", Message: "chaincode response 500, le titre foncier abc n'existe pas"},
		)
		require.NoError(t, err)

		got := classify(st.Err())
		assert.True(t, dErrors.HasCode(got, dErrors.CodeLedgerRejected))
		assert.Equal(t, "le titre foncier abc n'existe pas", dErrors.MessageOf(got))
	})

	t.Run("rejection without details uses the status message", func(t *testing.T) {
		got := classify(status.Error(codes.FailedPrecondition, "chaincode basic not found"))
		assert.True(t, dErrors.HasCode(got, dErrors.CodeLedgerRejected))
		assert.Equal(t, "chaincode basic not found", dErrors.MessageOf(got))
	})

	t.Run("unreachable peer is a network error", func(t *testing.T) {
		got := classify(status.Error(codes.Unavailable, "connection refused"))
		assert.True(t, dErrors.HasCode(got, dErrors.CodeNetwork))
		assert.True(t, dErrors.IsRetryable(got))
	})

	t.Run("deadline is a timeout", func(t *testing.T) {
		got := classify(status.Error(codes.DeadlineExceeded, "context deadline exceeded"))
		assert.True(t, dErrors.HasCode(got, dErrors.CodeTimeout))
	})

	t.Run("non-grpc errors pass through", func(t *testing.T) {
		cause := errors.New("boom")
		assert.Same(t, cause, classify(cause))
	})
}
