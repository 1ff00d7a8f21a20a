package meta

import "github.com/ethereum/go-ethereum/common"

// 合约事件类型
const (
	EventFunded    = "Funded"
	EventWithdrawn = "Withdrawn"
)

// 合约执行成功后产生的事件，推送到 redis 和前端
type Event struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"type"`
	Contract  string            `json:"contract"` // 事件定义方合约
	Address   common.Address    `json:"address"`  // 合约地址
	From      common.Address    `json:"from"`     // 交易发起方
	Args      map[string]string `json:"args"`
	TxHash    common.Hash       `json:"tx_hash"`
	Timestamp string            `json:"timestamp"`
}
