package meta

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// 账户（普通账户和合约账户）
type Account struct {
	Address      common.Address `json:"address"`       // 账户地址
	Balance      *uint256.Int   `json:"balance"`       // 账户余额（wei）
	Nonce        uint64         `json:"nonce"`         // 已发起交易数，用于生成合约地址
	IsContract   bool           `json:"is_contract"`   // 是否为合约账户
	Payable      bool           `json:"payable"`       // 合约账户是否接收转账
	ContractName string         `json:"contract_name"` // 合约名称
}

// 创世分配
type GenesisAlloc struct {
	Address common.Address `json:"address"`
	Balance string         `json:"balance"` // 以 ether 为单位，如 "10.5"
}
