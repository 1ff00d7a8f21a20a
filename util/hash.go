package util

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fundme/meta"
)

//计算交易hash（Hash 字段本身不参与计算）
func CalculateTxHash(t meta.Transaction) common.Hash {
	t.Hash = common.Hash{}
	jt, err := json.Marshal(t)
	if DealJsonErr("CalculateTxHash", err) != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(jt)
}
