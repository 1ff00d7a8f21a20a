package meta

import (
	"math/big"
	"time"
)

// PriceQuote 是喂价合约一次查询的结果，不持久化
type PriceQuote struct {
	RoundID   *big.Int  `json:"round_id"`
	Answer    *big.Int  `json:"answer"`   // 原始价格，按 Decimals 缩放
	Decimals  uint8     `json:"decimals"` // 喂价精度
	Version   uint64    `json:"version"`  // 喂价合约版本
	UpdatedAt time.Time `json:"updated_at"`
}
