// Package ledger adapts the on-chain chat contract to the operations the sync engine needs.
package ledger

import (
	"cmp"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/clock"
	"github.com/goodnatureofminers/ledgerchat/pkg/safe"
	"go.uber.org/zap"
)

const defaultReceiptPollInterval = time.Second

// Config describes the contract and the signing identity.
type Config struct {
	Contract string
	// PrivateKey is the hex encoded signing key. Without it the client is read-only.
	PrivateKey string
	Chain      model.ChainParams
}

type connection struct {
	chain    model.ChainParams
	reader   ChainReader
	contract BoundContract
}

type dialFunc func(ctx context.Context, chain model.ChainParams, contract common.Address) (*connection, error)

func dialEthereum(ctx context.Context, chain model.ChainParams, contract common.Address) (*connection, error) {
	ec, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chain.RPCURL, err)
	}
	return &connection{
		chain:    chain,
		reader:   ec,
		contract: bind.NewBoundContract(contract, chatABI, ec, ec, ec),
	}, nil
}

// Client wraps the chat contract binding with metrics instrumentation and
// maps failures onto model errors.
type Client struct {
	logger       *zap.Logger
	metrics      Metrics
	registry     *Registry
	contract     common.Address
	key          *ecdsa.PrivateKey
	signer       common.Address
	dial         dialFunc
	sleep        func(context.Context, time.Duration) error
	pollInterval time.Duration

	mu   sync.RWMutex
	conn *connection
}

// NewClient connects to cfg.Chain and binds the chat contract.
func NewClient(ctx context.Context, cfg Config, registry *Registry, metrics Metrics, logger *zap.Logger) (*Client, error) {
	if metrics == nil {
		return nil, errors.New("ledger metrics is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.Contract)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if err := registry.Register(cfg.Chain); err != nil {
		return nil, fmt.Errorf("register chain %d: %w", cfg.Chain.ChainID, err)
	}

	c := &Client{
		logger:       logger,
		metrics:      metrics,
		registry:     registry,
		contract:     common.HexToAddress(cfg.Contract),
		dial:         dialEthereum,
		sleep:        clock.SleepWithContext,
		pollInterval: defaultReceiptPollInterval,
	}
	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.key = key
		c.signer = crypto.PubkeyToAddress(key.PublicKey)
	}

	conn, err := c.dial(ctx, cfg.Chain, c.contract)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// Close releases the node connection.
func (c *Client) Close() {
	c.current().reader.Close()
}

// ContractAddress returns the lowercase chat contract address.
func (c *Client) ContractAddress() string {
	return model.NormalizeAddress(c.contract.Hex())
}

// Chain returns the chain the client is connected to.
func (c *Client) Chain() model.ChainParams {
	return c.current().chain
}

func (c *Client) current() *connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// TotalCount returns the number of messages the ledger holds.
func (c *Client) TotalCount(ctx context.Context) (total uint64, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("total_count", err, started)
	}()

	var out []interface{}
	if err = c.current().contract.Call(&bind.CallOpts{Context: ctx}, &out, methodTotalCount); err != nil {
		return 0, classify(fmt.Errorf("call %s: %w", methodTotalCount, err))
	}
	return uintOutput(out, methodTotalCount)
}

// FetchRange returns up to count messages starting at id start, ascending by id.
func (c *Client) FetchRange(ctx context.Context, start, count uint64) (msgs []model.Message, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("fetch_range", err, started)
	}()
	if count == 0 {
		return nil, nil
	}

	var out []interface{}
	err = c.current().contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetMessages,
		new(big.Int).SetUint64(start), new(big.Int).SetUint64(count))
	if err != nil {
		return nil, classify(fmt.Errorf("fetch range %d+%d: %w", start, count, err))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("fetch range %d+%d: empty output", start, count)
	}

	raw := *abi.ConvertType(out[0], new([]ledgerMessage)).(*[]ledgerMessage)
	msgs, err = convertMessages(raw)
	if err != nil {
		return nil, fmt.Errorf("fetch range %d+%d: %w", start, count, err)
	}
	slices.SortFunc(msgs, func(a, b model.Message) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return msgs, nil
}

// CooldownRemaining returns the seconds address has to wait before posting again.
func (c *Client) CooldownRemaining(ctx context.Context, address string) (seconds uint64, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("cooldown_remaining", err, started)
	}()
	if !common.IsHexAddress(address) {
		return 0, model.NewError(model.KindInvalidSigner, fmt.Errorf("invalid address %q", address))
	}

	var out []interface{}
	err = c.current().contract.Call(&bind.CallOpts{Context: ctx}, &out, methodCooldown, common.HexToAddress(address))
	if err != nil {
		return 0, classify(fmt.Errorf("call %s: %w", methodCooldown, err))
	}
	return uintOutput(out, methodCooldown)
}

// SignerAddress returns the lowercase address of the configured signing key.
func (c *Client) SignerAddress() (string, error) {
	if c.key == nil {
		return "", model.NewError(model.KindWalletUnavailable, errors.New("no signing key configured"))
	}
	return model.NormalizeAddress(c.signer.Hex()), nil
}

// Balance returns the native balance of address at the latest block.
func (c *Client) Balance(ctx context.Context, address string) (balance *big.Int, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("balance", err, started)
	}()

	balance, err = c.current().reader.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, classify(fmt.Errorf("balance of %s: %w", address, err))
	}
	return balance, nil
}

// Submit signs and sends a postMessage transaction.
//
// The call is simulated first: the transactor reports gas estimation failures
// without the revert payload, so the contract's reason would otherwise be lost.
func (c *Client) Submit(ctx context.Context, content string) (tx model.PendingTx, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("submit", err, started)
	}()
	if c.key == nil {
		return model.PendingTx{}, model.NewError(model.KindWalletUnavailable, errors.New("no signing key configured"))
	}

	conn := c.current()
	var out []interface{}
	if err = conn.contract.Call(&bind.CallOpts{Context: ctx, From: c.signer}, &out, methodPost, content); err != nil {
		return model.PendingTx{}, classify(fmt.Errorf("simulate %s: %w", methodPost, err))
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, new(big.Int).SetUint64(conn.chain.ChainID))
	if err != nil {
		return model.PendingTx{}, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	sent, err := conn.contract.Transact(opts, methodPost, content)
	if err != nil {
		return model.PendingTx{}, classify(fmt.Errorf("send %s: %w", methodPost, err))
	}
	return model.PendingTx{
		Hash:   sent.Hash().Hex(),
		Nonce:  sent.Nonce(),
		Sender: model.NormalizeAddress(c.signer.Hex()),
	}, nil
}

// AwaitConfirmation blocks until the transaction is mined at the requested
// depth or ctx is done. A reverted transaction returns its receipt together
// with a LedgerRevert error.
func (c *Client) AwaitConfirmation(ctx context.Context, tx model.PendingTx, minConfirmations uint64) (res *model.Receipt, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("await_confirmation", err, started)
	}()

	conn := c.current()
	hash := common.HexToHash(tx.Hash)

	var receipt *types.Receipt
	for {
		receipt, err = conn.reader.TransactionReceipt(ctx, hash)
		if err == nil {
			break
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("receipt lookup failed, retrying", zap.String("tx", tx.Hash), zap.Error(err))
		}
		if err = c.sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}

	res = &model.Receipt{
		TxHash:  tx.Hash,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !res.Success {
		return res, model.LedgerRevert("reverted", fmt.Errorf("transaction %s", tx.Hash))
	}

	for minConfirmations > 1 {
		head, headErr := conn.reader.BlockNumber(ctx)
		if headErr == nil && head >= res.BlockNumber && head-res.BlockNumber+1 >= minConfirmations {
			break
		}
		if err = c.sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}

	for _, l := range receipt.Logs {
		if !isPostedLog(l, c.contract) {
			continue
		}
		msg, decodeErr := unpackPosted(*l)
		if decodeErr != nil {
			c.logger.Warn("decode receipt log failed", zap.String("tx", tx.Hash), zap.Error(decodeErr))
			continue
		}
		res.Message = &msg
		break
	}
	return res, nil
}

// OnMessagePosted delivers every MessagePosted event to fn until the returned
// subscription is unsubscribed, ctx is done, or the underlying feed fails.
// Failures are reported on the subscription's Err channel.
func (c *Client) OnMessagePosted(ctx context.Context, fn func(model.Message)) (sub event.Subscription, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("subscribe", err, started)
	}()

	logs, feed, err := c.current().contract.WatchLogs(&bind.WatchOpts{Context: ctx}, eventMessagePosted)
	if err != nil {
		return nil, classify(fmt.Errorf("watch %s: %w", eventMessagePosted, err))
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer feed.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if l.Removed {
					continue
				}
				msg, decodeErr := unpackPosted(l)
				if decodeErr != nil {
					c.logger.Warn("decode event failed", zap.Uint64("block", l.BlockNumber), zap.Error(decodeErr))
					continue
				}
				fn(msg)
			case feedErr := <-feed.Err():
				return feedErr
			case <-quit:
				return nil
			}
		}
	}), nil
}

// CurrentChainID returns the chain id served by the connected node.
func (c *Client) CurrentChainID(ctx context.Context) (id uint64, err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("chain_id", err, started)
	}()

	chainID, err := c.current().reader.ChainID(ctx)
	if err != nil {
		return 0, classify(fmt.Errorf("chain id: %w", err))
	}
	return safe.BigUint64(chainID)
}

// SwitchChain reconnects to a registered chain. An unknown chain returns a
// ChainNotRegistered error; callers register it and retry.
func (c *Client) SwitchChain(ctx context.Context, chainID uint64) (err error) {
	started := time.Now()
	defer func() {
		c.metrics.Observe("switch_chain", err, started)
	}()

	params, ok := c.registry.Lookup(chainID)
	if !ok {
		return model.NewError(model.KindChainNotRegistered, fmt.Errorf("chain %d", chainID))
	}

	conn, err := c.dial(ctx, params, c.contract)
	if err != nil {
		return classify(err)
	}
	remote, err := conn.reader.ChainID(ctx)
	if err != nil {
		conn.reader.Close()
		return classify(fmt.Errorf("chain id of %s: %w", params.RPCURL, err))
	}
	if !remote.IsUint64() || remote.Uint64() != chainID {
		conn.reader.Close()
		return model.NewError(model.KindWrongNetwork, fmt.Errorf("%s serves chain %s, want %d", params.RPCURL, remote, chainID))
	}

	c.mu.Lock()
	prev := c.conn
	c.conn = conn
	c.mu.Unlock()

	if prev != nil {
		prev.reader.Close()
	}
	c.logger.Info("switched chain", zap.Uint64("chain_id", chainID), zap.String("name", params.Name))
	return nil
}

// RegisterChain makes a chain available to SwitchChain.
func (c *Client) RegisterChain(params model.ChainParams) error {
	if err := c.registry.Register(params); err != nil {
		return fmt.Errorf("register chain %d: %w", params.ChainID, err)
	}
	return nil
}

func uintOutput(out []interface{}, method string) (uint64, error) {
	if len(out) == 0 {
		return 0, fmt.Errorf("call %s: empty output", method)
	}
	v := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	n, err := safe.BigUint64(v)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", method, err)
	}
	return n, nil
}
