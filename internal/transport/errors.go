package transport

import (
	"errors"
	"net/http"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/session"
)

// statusOf maps an engine error to the HTTP status a caller should see.
func statusOf(err error) int {
	if errors.Is(err, session.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	switch model.KindOf(err) {
	case model.KindCooldownActive:
		return http.StatusTooManyRequests
	case model.KindWrongNetwork, model.KindChainNotRegistered:
		return http.StatusConflict
	case model.KindWalletUnavailable, model.KindInvalidSigner, model.KindUserRejected:
		return http.StatusForbidden
	case model.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case model.KindLedgerRevert:
		return http.StatusUnprocessableEntity
	case model.KindConfirmationTimeout:
		// the submission may still land
		return http.StatusAccepted
	case model.KindNetworkError, model.KindContractNotFound:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Seconds uint64 `json:"seconds,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func newErrorResponse(err error) errorResponse {
	resp := errorResponse{Error: err.Error(), Kind: model.KindOf(err).String()}
	var typed *model.Error
	if errors.As(err, &typed) {
		resp.Seconds = typed.Seconds
		resp.Reason = typed.Reason
	}
	return resp
}
