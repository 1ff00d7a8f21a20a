package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudflare/cfssl/log"
	"github.com/ethereum/go-ethereum/common"
	commonconst "github.com/fundme/common"
	"github.com/fundme/levelDB"
	"github.com/fundme/meta"
	"github.com/fundme/util"
	"github.com/holiman/uint256"
)

/* 这里封装了所有的对账户的操作
 * State 不加锁，由 chain 保证同一时刻只有一笔交易在修改状态
 * 余额只会被整体替换，不会原地修改，所以快照只需要浅拷贝
 */

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransferRejected    = errors.New("recipient does not accept transfers")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

type State struct {
	Accounts map[common.Address]meta.Account // key: 账户地址 - val: 账户信息
}

// 账户状态快照，用于交易失败时回滚
type Snapshot map[common.Address]meta.Account

func NewState() *State {
	return &State{Accounts: map[common.Address]meta.Account{}}
}

// 创建普通账户
func (s *State) CreateAccount(address common.Address, balance *uint256.Int) meta.Account {
	if balance == nil {
		balance = new(uint256.Int)
	}
	acc := s.GetAccount(address)
	acc.Balance = balance.Clone()
	s.Accounts[address] = acc
	return acc
}

// 创建智能合约账户，payable 为 false 的合约拒绝一切转入
func (s *State) CreateContract(address common.Address, name string, payable bool) meta.Account {
	acc := s.GetAccount(address)
	acc.IsContract = true
	acc.Payable = payable
	acc.ContractName = name
	s.Accounts[address] = acc
	return acc
}

// 获取账户信息，不存在时返回余额为0的空账户
func (s *State) GetAccount(address common.Address) meta.Account {
	acc, ok := s.Accounts[address]
	if !ok {
		return meta.Account{Address: address, Balance: new(uint256.Int)}
	}
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	return acc
}

// 账户地址是否存在
func (s *State) ContainsAddress(address common.Address) bool {
	_, ok := s.Accounts[address]
	return ok
}

func (s *State) GetBalance(address common.Address) *uint256.Int {
	return s.GetAccount(address).Balance.Clone()
}

// 是否为智能合约账户地址
func (s *State) IsContractAccount(address common.Address) bool {
	return s.Accounts[address].IsContract
}

// 判断交易发起方是否有足够余额
func (s *State) CanTransfer(sender common.Address, amount *uint256.Int) bool {
	return !s.GetAccount(sender).Balance.Lt(amount)
}

// 由 from 向 to 转账，amount 为 0 时直接返回
func (s *State) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	receiver := s.GetAccount(to)
	if receiver.IsContract && !receiver.Payable {
		return fmt.Errorf("%w: %s", ErrTransferRejected, to.Hex())
	}
	if !s.CanTransfer(from, amount) {
		log.Infof("[Transfer]: Insufficient balance. from=%s amount=%s", from.Hex(), amount.Dec())
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, from.Hex())
	}
	if from == to {
		return nil
	}
	added, overflow := new(uint256.Int).AddOverflow(receiver.Balance, amount)
	if overflow {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, to.Hex())
	}

	sender := s.GetAccount(from)
	sender.Balance = new(uint256.Int).Sub(sender.Balance, amount)
	s.Accounts[from] = sender
	receiver.Balance = added
	s.Accounts[to] = receiver
	return nil
}

// nonce 加一，返回加一之前的值
func (s *State) IncNonce(address common.Address) uint64 {
	acc := s.GetAccount(address)
	n := acc.Nonce
	acc.Nonce++
	s.Accounts[address] = acc
	return n
}

func (s *State) Snapshot() Snapshot {
	snap := make(Snapshot, len(s.Accounts))
	for k, v := range s.Accounts {
		snap[k] = v
	}
	return snap
}

func (s *State) RevertToSnapshot(snap Snapshot) {
	accounts := make(map[common.Address]meta.Account, len(snap))
	for k, v := range snap {
		accounts[k] = v
	}
	s.Accounts = accounts
}

// 获取所有的账户地址（按地址排序）
func (s *State) GetTotalAddress() []common.Address {
	totalAddress := make([]common.Address, 0, len(s.Accounts))
	for address := range s.Accounts {
		totalAddress = append(totalAddress, address)
	}
	sort.Slice(totalAddress, func(i, j int) bool {
		return totalAddress[i].Hex() < totalAddress[j].Hex()
	})
	return totalAddress
}

// 创世分配，只对尚不存在的账户生效
func (s *State) ApplyGenesis(allocs []meta.GenesisAlloc) error {
	for _, alloc := range allocs {
		if s.ContainsAddress(alloc.Address) {
			continue
		}
		balance, err := util.ParseEther(alloc.Balance)
		if err != nil {
			return fmt.Errorf("genesis alloc %s: %w", alloc.Address.Hex(), err)
		}
		s.CreateAccount(alloc.Address, balance)
		log.Infof("genesis alloc %s: %s ether", alloc.Address.Hex(), alloc.Balance)
	}
	return nil
}

// 持久化，写入 batch 由调用方统一提交
func (s *State) PutIntoBatch(b *levelDB.Batch) error {
	bytes, err := json.Marshal(s.Accounts)
	if err != nil {
		return util.DealJsonErr("PutIntoBatch", err)
	}
	b.Put(commonconst.AccountsKey, bytes)
	return nil
}

// 从磁盘获取已有的账户信息（在节点启动时执行）
func (s *State) GetFromDisk(db *levelDB.DB) error {
	accountBytes, err := db.DBGet(commonconst.AccountsKey)
	if errors.Is(err, levelDB.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	accounts := map[common.Address]meta.Account{}
	if err := json.Unmarshal(accountBytes, &accounts); err != nil {
		return util.DealJsonErr("GetFromDisk", err)
	}
	s.Accounts = accounts
	return nil
}
