package fabric

import (
	"errors"
	"strings"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dErrors "titleregistry/pkg/domain-errors"
	platformstrings "titleregistry/pkg/platform/strings"
)

// classify maps gateway failures onto registry error codes. Contract
// rejections keep the peers' own messages.
func classify(err error) error {
	var commitErr *client.CommitError
	if errors.As(err, &commitErr) {
		return dErrors.Wrap(err, dErrors.CodeLedgerRejected, commitErr.Error())
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var commitStatusErr *client.CommitStatusError
	waitingForCommit := errors.As(err, &commitStatusErr)

	switch st.Code() {
	case codes.DeadlineExceeded:
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger deadline exceeded")
	case codes.Unavailable, codes.ResourceExhausted, codes.Canceled:
		return dErrors.Wrap(err, dErrors.CodeNetwork, "ledger unreachable: "+st.Message())
	}
	if waitingForCommit {
		return dErrors.Wrap(err, dErrors.CodeNetwork, "commit status unavailable: "+st.Message())
	}
	return dErrors.Wrap(err, dErrors.CodeLedgerRejected, rejectionMessage(st))
}

// rejectionMessage prefers the per-peer details, which carry the contract's
// error text, over the gateway summary.
func rejectionMessage(st *status.Status) string {
	var details []string
	for _, d := range st.Details() {
		if detail, ok := d.(*gateway.ErrorDetail); ok {
			details = append(details, detail.GetMessage())
		}
	}
	messages := platformstrings.DedupeTrimPrefix(details, "chaincode response 500, ")
	if len(messages) == 0 {
		return st.Message()
	}
	return strings.Join(messages, "; ")
}
