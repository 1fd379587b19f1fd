package frontend

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

const (
	headerTransactionID               = "x-gscp-transaction-id"
	headerTransactionSecret           = "x-gscp-transaction-secret"
	headerLastExecutionTimestamp      = "x-gscp-transaction-last-execution-timestamp"
	headerTransactionOrigin           = "x-gscp-transaction-origin"
	headerClaimedIdentity             = "x-gscp-claimed-identity"
	legacyLastExecutionTimestampValue = "1234"
)

// requestContext carries the header fields every endpoint but status
// extracts and validates, per spec section 4.8.
type requestContext struct {
	transactionID     uuid.UUID
	transactionOrigin string
	claimedIdentity   string
}

// parseHeaders validates the common header set. requireTimestamp is false
// only for the begin-transaction phase, which spec 4.8 exempts from the
// last-execution-timestamp requirement.
func parseHeaders(r *http.Request, requireTimestamp bool) (requestContext, error) {
	var rc requestContext

	idRaw := strings.TrimSpace(r.Header.Get(headerTransactionID))
	if idRaw == "" {
		return rc, pbserrors.New(pbserrors.InvalidRequestHeader, "missing %s", headerTransactionID)
	}
	id, err := uuid.Parse(idRaw)
	if err != nil {
		return rc, pbserrors.New(pbserrors.InvalidRequestHeader, "%s is not a canonical UUID: %v", headerTransactionID, err)
	}
	rc.transactionID = id

	if strings.TrimSpace(r.Header.Get(headerTransactionSecret)) == "" {
		return rc, pbserrors.New(pbserrors.InvalidRequestHeader, "missing or empty %s", headerTransactionSecret)
	}

	if requireTimestamp && strings.TrimSpace(r.Header.Get(headerLastExecutionTimestamp)) == "" {
		return rc, pbserrors.New(pbserrors.InvalidRequestHeader, "missing %s", headerLastExecutionTimestamp)
	}

	rc.transactionOrigin = strings.TrimSpace(r.Header.Get(headerTransactionOrigin))
	rc.claimedIdentity = strings.TrimSpace(r.Header.Get(headerClaimedIdentity))

	return rc, nil
}

// writeBackCompatHeader inserts the literal legacy timestamp header onto
// every 2xx response, per spec 4.8/6 ("literal back-compat constant").
func writeBackCompatHeader(w http.ResponseWriter) {
	w.Header().Set(headerLastExecutionTimestamp, legacyLastExecutionTimestampValue)
}
