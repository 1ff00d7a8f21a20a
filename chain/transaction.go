package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudflare/cfssl/log"
	"github.com/ethereum/go-ethereum/common"
	commonconst "github.com/fundme/common"
	"github.com/fundme/contract"
	"github.com/fundme/levelDB"
	"github.com/fundme/meta"
	"github.com/fundme/util"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrReceiptNotFound    = errors.New("receipt not found")
)

// 交易的执行目标，普通转账时 ct 为 nil
type target struct {
	name    string
	address common.Address
	ct      contract.Contract
}

// 执行一笔交易并提交。交易失败时账户和合约状态回滚到执行前，
// 只保留 nonce 的增加，失败回执同样会被持久化。
// 返回的 error 是交易本身的执行错误或持久化错误。
func (c *Chain) Submit(ctx context.Context, tx meta.Transaction) (meta.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tx.Value == nil {
		tx.Value = new(uint256.Int)
	}
	if tx.Timestamp == "" {
		tx.Timestamp = time.Now().Format(time.RFC3339Nano)
	}
	// 合约账户没有私钥，不能作为交易发起方
	if c.state.IsContractAccount(tx.From) {
		return meta.Receipt{}, fmt.Errorf("%w: sender %s is a contract", ErrInvalidTransaction, tx.From.Hex())
	}
	before := c.state.Snapshot()
	tx.Nonce = c.state.IncNonce(tx.From)
	tx.Hash = util.CalculateTxHash(tx)

	receipt := meta.Receipt{
		TxHash:    tx.Hash,
		Height:    c.height + 1,
		Timestamp: tx.Timestamp,
	}

	snap := c.state.Snapshot()
	tgt, execErr := c.resolve(tx)
	var ctSnap []byte
	if execErr == nil && tgt.ct != nil {
		ctSnap, execErr = tgt.ct.MarshalState()
	}
	if execErr == nil {
		var call *contract.CallContext
		receipt.Result, call, execErr = c.apply(ctx, tx, tgt)
		if call != nil {
			receipt.StorageReads = call.Reads()
			receipt.StorageWrites = call.Writes()
			if execErr == nil {
				receipt.Events = call.Events()
			}
		}
	}

	if execErr != nil {
		c.state.RevertToSnapshot(snap)
		if ctSnap != nil {
			if err := tgt.ct.UnmarshalState(ctSnap); err != nil {
				log.Errorf("revert contract %s error: %s", tgt.name, err)
			}
		}
		receipt.Status = meta.StatusFailed
		receipt.Error = execErr.Error()
		receipt.Result = nil
		receipt.Events = nil
		log.Warningf("tx %s from %s failed: %s", tx.Hash.Hex(), tx.From.Hex(), execErr)
	} else {
		receipt.Status = meta.StatusSuccess
		for i := range receipt.Events {
			receipt.Events[i].TxHash = tx.Hash
		}
	}

	err := c.persist(func(b *levelDB.Batch) error {
		if err := c.state.PutIntoBatch(b); err != nil {
			return err
		}
		if execErr == nil && tgt.ct != nil {
			if err := putContractState(b, tgt.name, tgt.ct); err != nil {
				return err
			}
		}
		if err := putJSON(b, commonconst.ReceiptPrefix+tx.Hash.Hex(), receipt); err != nil {
			return err
		}
		return putJSON(b, commonconst.HeightKey, receipt.Height)
	})
	if err != nil {
		// 内存状态回到交易之前
		c.state.RevertToSnapshot(before)
		if ctSnap != nil && execErr == nil {
			if err := tgt.ct.UnmarshalState(ctSnap); err != nil {
				log.Errorf("revert contract %s error: %s", tgt.name, err)
			}
		}
		log.Errorf("commit tx %s error: %s", tx.Hash.Hex(), err)
		return meta.Receipt{}, fmt.Errorf("commit: %w", err)
	}
	c.height = receipt.Height

	if execErr == nil && c.pub != nil && len(receipt.Events) > 0 {
		c.pub.Publish(receipt.Events)
	}
	return receipt, execErr
}

// 找到交易要调用的合约，向合约地址的普通转账按 receive 处理
func (c *Chain) resolve(tx meta.Transaction) (target, error) {
	switch tx.Type {
	case meta.Transfer:
		if name, ct, ok := c.contracts.ByAddress(tx.To); ok {
			return target{name: name, address: tx.To, ct: ct}, nil
		}
		return target{}, nil
	case meta.Invoke:
		if tx.Contract != "" {
			ct, address, err := c.contracts.Get(tx.Contract)
			if err != nil {
				return target{}, err
			}
			return target{name: tx.Contract, address: address, ct: ct}, nil
		}
		if name, ct, ok := c.contracts.ByAddress(tx.To); ok {
			return target{name: name, address: tx.To, ct: ct}, nil
		}
		return target{}, fmt.Errorf("%w: %s", contract.ErrContractNotFound, tx.To.Hex())
	}
	return target{}, fmt.Errorf("%w: unknown type %d", ErrInvalidTransaction, tx.Type)
}

func (c *Chain) apply(ctx context.Context, tx meta.Transaction, tgt target) (interface{}, *contract.CallContext, error) {
	if tgt.ct == nil {
		return nil, nil, c.state.Transfer(tx.From, tx.To, tx.Value)
	}
	if tx.Type == meta.Transfer {
		tx.Method = ""
	}
	call := contract.NewCallContext(ctx, c.state, tx, tgt.name, tgt.address)
	res, err := contract.Execute(tgt.ct, call)
	return res, call, err
}

// 根据交易 hash 查询回执
func (c *Chain) Receipt(hash common.Hash) (meta.Receipt, error) {
	var receipt meta.Receipt
	data, err := c.db.DBGet(commonconst.ReceiptPrefix + hash.Hex())
	if errors.Is(err, levelDB.ErrNotFound) {
		return receipt, fmt.Errorf("%w: %s", ErrReceiptNotFound, hash.Hex())
	}
	if err != nil {
		return receipt, err
	}
	if err := json.Unmarshal(data, &receipt); err != nil {
		return receipt, util.DealJsonErr("Receipt", err)
	}
	return receipt, nil
}
