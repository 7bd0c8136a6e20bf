package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Metrics records metrics for ledger calls.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}

	// ChainReader is the subset of the node client used outside contract calls.
	ChainReader interface {
		ChainID(ctx context.Context) (*big.Int, error)
		BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
		BlockNumber(ctx context.Context) (uint64, error)
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
		Close()
	}

	// BoundContract is the chat contract binding.
	BoundContract interface {
		Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
		Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
		WatchLogs(opts *bind.WatchOpts, name string, query ...[]interface{}) (chan types.Log, event.Subscription, error)
	}
)
