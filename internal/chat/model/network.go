package model

// NetworkStatus classifies the currently selected chain.
type NetworkStatus string

var (
	NetworkChecking     NetworkStatus = "checking"
	NetworkConnected    NetworkStatus = "connected"
	NetworkWrongNetwork NetworkStatus = "wrong-network"
	NetworkDisconnected NetworkStatus = "disconnected"
)

// ActivityType names an activity record posted to the profile store.
type ActivityType string

var (
	ActivityConnect        ActivityType = "connect"
	ActivityDisconnect     ActivityType = "disconnect"
	ActivitySendMessage    ActivityType = "send_message"
	ActivitySwitchNetwork  ActivityType = "switch_network"
	ActivityUpdateUsername ActivityType = "update_username"
)

// ChainParams describes a chain the ledger client can connect to.
type ChainParams struct {
	ChainID     uint64
	Name        string
	RPCURL      string
	ExplorerURL string
	Currency    string
}

// ShardeumTestnet is the chain the chat contract is deployed on by default.
var ShardeumTestnet = ChainParams{
	ChainID:     8119,
	Name:        "Shardeum EVM Testnet",
	RPCURL:      "https://api-mezame.shardeum.org",
	ExplorerURL: "https://explorer-mezame.shardeum.org",
	Currency:    "SHM",
}

// PendingTx is the handle returned by a submission.
type PendingTx struct {
	Hash   string
	Nonce  uint64
	Sender string
}

// Receipt describes a mined submission.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Success     bool
	// Message is decoded from the MessagePosted log when the receipt carries one.
	Message *Message
}
