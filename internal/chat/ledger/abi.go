package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/pkg/safe"
)

const (
	methodTotalCount  = "getTotalMessageCount"
	methodGetMessages = "getMessages"
	methodCooldown    = "getCooldownRemaining"
	methodPost        = "postMessage"

	eventMessagePosted = "MessagePosted"
)

// chatABIJSON is the interface of the ShardeumChat contract.
const chatABIJSON = `[
	{"type":"function","name":"getTotalMessageCount","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getMessages","stateMutability":"view",
	 "inputs":[{"name":"start","type":"uint256"},{"name":"count","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple[]","internalType":"struct ShardeumChat.Message[]","components":[
		{"name":"sender","type":"address"},
		{"name":"timestamp","type":"uint256"},
		{"name":"content","type":"string"},
		{"name":"messageId","type":"uint256"}]}]},
	{"type":"function","name":"getCooldownRemaining","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getLastMessageTime","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"postMessage","stateMutability":"nonpayable",
	 "inputs":[{"name":"content","type":"string"}],"outputs":[]},
	{"type":"event","name":"MessagePosted","anonymous":false,"inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"messageId","type":"uint256","indexed":true},
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"content","type":"string","indexed":false}]},
	{"type":"error","name":"EmptyMessage","inputs":[]},
	{"type":"error","name":"MessageTooLong","inputs":[]},
	{"type":"error","name":"CooldownNotMet","inputs":[]}
]`

var chatABI = mustParseABI(chatABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse chat abi: %v", err))
	}
	return parsed
}

// ledgerMessage mirrors the contract's Message struct.
type ledgerMessage struct {
	Sender    common.Address
	Timestamp *big.Int
	Content   string
	MessageId *big.Int
}

// messagePosted mirrors the MessagePosted event.
type messagePosted struct {
	Sender    common.Address
	MessageId *big.Int
	Timestamp *big.Int
	Content   string
}

func toMessage(sender common.Address, id, timestamp *big.Int, content string) (model.Message, error) {
	msgID, err := safe.BigUint64(id)
	if err != nil {
		return model.Message{}, fmt.Errorf("message id: %w", err)
	}
	ts, err := safe.BigInt64(timestamp)
	if err != nil {
		return model.Message{}, fmt.Errorf("message %d timestamp: %w", msgID, err)
	}
	return model.Message{
		Sender:    model.NormalizeAddress(sender.Hex()),
		Content:   content,
		Timestamp: ts,
		ID:        msgID,
		State:     model.StateConfirmed,
	}, nil
}

func convertMessages(raw []ledgerMessage) ([]model.Message, error) {
	out := make([]model.Message, 0, len(raw))
	for _, m := range raw {
		msg, err := toMessage(m.Sender, m.MessageId, m.Timestamp, m.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// isPostedLog reports whether l is a MessagePosted log emitted by contract.
func isPostedLog(l *types.Log, contract common.Address) bool {
	return l != nil && l.Address == contract && len(l.Topics) > 0 &&
		l.Topics[0] == chatABI.Events[eventMessagePosted].ID
}

// unpackPosted decodes a MessagePosted log into a confirmed message.
func unpackPosted(l types.Log) (model.Message, error) {
	ev := chatABI.Events[eventMessagePosted]
	if len(l.Topics) == 0 || l.Topics[0] != ev.ID {
		return model.Message{}, fmt.Errorf("log is not %s", eventMessagePosted)
	}

	var out messagePosted
	if len(l.Data) > 0 {
		if err := chatABI.UnpackIntoInterface(&out, eventMessagePosted, l.Data); err != nil {
			return model.Message{}, fmt.Errorf("unpack %s data: %w", eventMessagePosted, err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopics(&out, indexed, l.Topics[1:]); err != nil {
		return model.Message{}, fmt.Errorf("parse %s topics: %w", eventMessagePosted, err)
	}
	return toMessage(out.Sender, out.MessageId, out.Timestamp, out.Content)
}
