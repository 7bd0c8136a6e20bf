package sender

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"go.uber.org/zap"
)

// preflight runs the checks that must pass before anything becomes visible.
// It returns the signer address.
func (s *Sender) preflight(ctx context.Context, content string) (string, error) {
	switch status := s.guard.Status(); status {
	case model.NetworkConnected:
	case model.NetworkWrongNetwork:
		return "", model.NewError(model.KindWrongNetwork, nil)
	default:
		return "", model.NewError(model.KindNetworkError, fmt.Errorf("network %s", status))
	}

	address, err := s.client.SignerAddress()
	if err != nil {
		return "", err
	}
	if address == "" || address == zeroAddress {
		return "", model.NewError(model.KindInvalidSigner, fmt.Errorf("signer address %q", address))
	}

	total, err := s.client.TotalCount(ctx)
	if err != nil {
		return "", err
	}
	s.store.ObserveTotal(total)

	balance, err := s.client.Balance(ctx, address)
	if err != nil {
		return "", err
	}
	if balance == nil || balance.Sign() <= 0 {
		return "", model.NewError(model.KindInsufficientFunds, nil)
	}

	switch n := utf8.RuneCountInString(content); {
	case n == 0:
		return "", model.LedgerRevert("EmptyMessage", nil)
	case n > model.MaxContentLength:
		return "", model.LedgerRevert("MessageTooLong", fmt.Errorf("%d characters", n))
	}

	remaining, err := s.client.CooldownRemaining(ctx, address)
	switch {
	case err == nil && remaining > 0:
		return "", model.CooldownActive(remaining)
	case errors.Is(err, model.ErrLedgerRevert):
		return "", err
	case err != nil:
		s.logger.Warn("cooldown check failed, allowing send", zap.String("sender", address), zap.Error(err))
	}
	return address, nil
}
