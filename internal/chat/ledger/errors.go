package ledger

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

// userRejectedCode is the EIP-1193 code for a signer that declined the request.
const userRejectedCode = 4001

// classify maps node and binding errors onto the chat error taxonomy.
// Errors that are already typed pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var typed *model.Error
	if errors.As(err, &typed) {
		return err
	}

	if errors.Is(err, bind.ErrNoCode) {
		return model.NewError(model.KindContractNotFound, err)
	}
	if reason, ok := revertReason(err); ok {
		return model.LedgerRevert(reason, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return model.NewError(model.KindUserRejected, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return model.NewError(model.KindUserRejected, err)
	case strings.Contains(msg, "execution reverted"):
		return model.LedgerRevert("", err)
	case strings.Contains(msg, "insufficient funds"):
		return model.NewError(model.KindInsufficientFunds, err)
	}

	if isNetworkError(err) {
		return model.NewError(model.KindNetworkError, err)
	}
	return model.NewError(model.KindUnknown, err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// revertReason decodes the revert payload carried by a JSON-RPC data error:
// either a custom error of the chat contract or a plain Error(string).
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil || len(data) < 4 {
		return "", false
	}

	var selector [4]byte
	copy(selector[:], data[:4])
	if custom, lookupErr := chatABI.ErrorByID(selector); lookupErr == nil {
		return custom.Name, true
	}
	if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return reason, true
	}
	return "", false
}
