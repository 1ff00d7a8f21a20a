package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudflare/cfssl/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fundme/account"
	commonconst "github.com/fundme/common"
	"github.com/fundme/contract"
	"github.com/fundme/levelDB"
	"github.com/fundme/meta"
	"github.com/fundme/util"
)

// Publisher 接收已提交交易产生的事件
type Publisher interface {
	Publish(events []meta.Event)
}

// 部署合约时由执行器传入部署者和合约地址
type Constructor func(deployer, address common.Address) contract.Contract

var ErrAddressCollision = errors.New("contract address already in use")

// Chain 串行执行所有交易，同一时刻只有一笔交易在修改状态
type Chain struct {
	mu        sync.Mutex
	db        *levelDB.DB
	state     *account.State
	contracts *contract.Registry
	deployed  map[string]common.Address // 合约名到合约地址，包括尚未 Attach 的合约
	height    uint64
	pub       Publisher
}

// 从磁盘恢复账户、已部署合约列表和执行序号
func New(db *levelDB.DB, pub Publisher) (*Chain, error) {
	c := &Chain{
		db:        db,
		state:     account.NewState(),
		contracts: contract.NewRegistry(),
		deployed:  map[string]common.Address{},
		pub:       pub,
	}
	if err := c.state.GetFromDisk(db); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if err := c.load(commonconst.ContractsKey, &c.deployed); err != nil {
		return nil, fmt.Errorf("load contracts: %w", err)
	}
	if err := c.load(commonconst.HeightKey, &c.height); err != nil {
		return nil, fmt.Errorf("load height: %w", err)
	}
	log.Infof("chain restored: %d accounts, %d contracts, height %d", len(c.state.Accounts), len(c.deployed), c.height)
	return c, nil
}

func (c *Chain) load(key string, v interface{}) error {
	data, err := c.db.DBGet(key)
	if errors.Is(err, levelDB.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return util.DealJsonErr("load", err)
	}
	return nil
}

func (c *Chain) ApplyGenesis(allocs []meta.GenesisAlloc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.state.Snapshot()
	if err := c.state.ApplyGenesis(allocs); err != nil {
		c.state.RevertToSnapshot(snap)
		return err
	}
	b := c.db.NewBatch()
	if err := c.state.PutIntoBatch(b); err != nil {
		c.state.RevertToSnapshot(snap)
		return err
	}
	if err := c.db.Write(b); err != nil {
		c.state.RevertToSnapshot(snap)
		return err
	}
	return nil
}

// 部署合约，合约地址由部署者地址和 nonce 计算
func (c *Chain) Deploy(deployer common.Address, name string, newContract Constructor) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.deployed[name]; ok {
		return common.Address{}, fmt.Errorf("%w: %s", contract.ErrContractExists, name)
	}

	address := crypto.CreateAddress(deployer, c.state.GetAccount(deployer).Nonce)
	// 合约余额只能来自 fund，已有余额或已是合约的地址不能部署
	if acc := c.state.GetAccount(address); acc.IsContract || !acc.Balance.IsZero() {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAddressCollision, address.Hex())
	}

	snap := c.state.Snapshot()
	c.state.IncNonce(deployer)
	ct := newContract(deployer, address)
	c.state.CreateContract(address, name, contract.AcceptsValue(ct))

	deployed := make(map[string]common.Address, len(c.deployed)+1)
	for k, v := range c.deployed {
		deployed[k] = v
	}
	deployed[name] = address

	err := c.persist(func(b *levelDB.Batch) error {
		if err := c.state.PutIntoBatch(b); err != nil {
			return err
		}
		if err := putJSON(b, commonconst.ContractsKey, deployed); err != nil {
			return err
		}
		return putContractState(b, name, ct)
	})
	if err != nil {
		c.state.RevertToSnapshot(snap)
		return common.Address{}, err
	}
	if err := c.contracts.Register(name, address, ct); err != nil {
		return common.Address{}, err
	}
	c.deployed = deployed
	log.Infof("deploy contract %s at %s, owner %s", name, address.Hex(), deployer.Hex())
	return address, nil
}

// 节点重启后把合约对象和磁盘上的合约状态关联起来
func (c *Chain) Attach(name string, ct contract.Contract) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	address, ok := c.deployed[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", contract.ErrContractNotFound, name)
	}
	data, err := c.db.DBGet(commonconst.ContractStatePrefix + name)
	if err != nil && !errors.Is(err, levelDB.ErrNotFound) {
		return common.Address{}, err
	}
	if err == nil {
		if err := ct.UnmarshalState(data); err != nil {
			return common.Address{}, fmt.Errorf("restore contract %s: %w", name, err)
		}
	}
	if err := c.contracts.Register(name, address, ct); err != nil {
		return common.Address{}, err
	}
	log.Infof("restore contract %s at %s", name, address.Hex())
	return address, nil
}

func (c *Chain) Deployed(name string) (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	address, ok := c.deployed[name]
	return address, ok
}

// 在执行锁内读取状态，fn 不能修改账户
func (c *Chain) View(fn func(st *account.State) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.state)
}

func (c *Chain) GetAccount(address common.Address) meta.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	acc := c.state.GetAccount(address)
	acc.Balance = acc.Balance.Clone()
	return acc
}

func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *Chain) persist(fill func(b *levelDB.Batch) error) error {
	b := c.db.NewBatch()
	if err := fill(b); err != nil {
		return err
	}
	return c.db.Write(b)
}

func putJSON(b *levelDB.Batch, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return util.DealJsonErr("putJSON", err)
	}
	b.Put(key, data)
	return nil
}

func putContractState(b *levelDB.Batch, name string, ct contract.Contract) error {
	data, err := ct.MarshalState()
	if err != nil {
		return fmt.Errorf("marshal contract %s: %w", name, err)
	}
	b.Put(commonconst.ContractStatePrefix+name, data)
	return nil
}
