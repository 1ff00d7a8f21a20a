package meta

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// 交易类型
const (
	Transfer int = iota // 0: 转账交易
	Invoke              // 1: 调用合约
)

// 交易执行状态
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type Transaction struct {
	From      common.Address    `json:"from"`
	To        common.Address    `json:"to"`       // 转账接收方，调用合约时为合约地址
	Contract  string            `json:"contract"` // 合约名称，与 To 二选一
	Method    string            `json:"method"`
	Args      map[string]string `json:"args"`
	Value     *uint256.Int      `json:"value"`
	Nonce     uint64            `json:"nonce"`
	Timestamp string            `json:"timestamp"`
	Hash      common.Hash       `json:"hash"`
	Type      int               `json:"type"`
}

// 交易回执
type Receipt struct {
	TxHash        common.Hash `json:"tx_hash"`
	Height        uint64      `json:"height"` // 交易在本节点的执行序号
	Status        string      `json:"status"`
	Error         string      `json:"error,omitempty"`
	Result        interface{} `json:"result,omitempty"`
	StorageReads  int         `json:"storage_reads"`  // 合约存储读次数
	StorageWrites int         `json:"storage_writes"` // 合约存储写次数
	Events        []Event     `json:"events,omitempty"`
	Timestamp     string      `json:"timestamp"`
}
