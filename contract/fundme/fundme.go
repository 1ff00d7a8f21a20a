// Package fundme is a crowdfunding ledger. Contributions worth at least
// MinimumUSD are recorded per funder, and the owner can sweep everything
// the contract holds.
package fundme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundme/contract"
	"github.com/fundme/meta"
	"github.com/fundme/oracle"
	"github.com/holiman/uint256"
)

const Name = "fundme"

var (
	ErrBelowMinimum    = errors.New("didn't send enough ETH")
	ErrUnauthorized    = errors.New("sender is not owner")
	ErrTransferFailed  = errors.New("call failed")
	ErrIndexOutOfRange = errors.New("funder index out of range")
	ErrOverflow        = errors.New("funded amount overflow")

	ErrOracleUnavailable = oracle.ErrOracleUnavailable
)

// 5 USD，18位精度
var minimumUSD = new(uint256.Int).Mul(uint256.NewInt(5), uint256.NewInt(1e18))

// FundMe 不加锁，由执行器保证同一时刻只有一笔交易在执行
type FundMe struct {
	owner    common.Address
	feed     oracle.Feed
	amounts  map[common.Address]*uint256.Int
	funders  []common.Address
	isFunder map[common.Address]bool
}

func New(owner common.Address, feed oracle.Feed) *FundMe {
	return &FundMe{
		owner:    owner,
		feed:     feed,
		amounts:  map[common.Address]*uint256.Int{},
		isFunder: map[common.Address]bool{},
	}
}

func (f *FundMe) Methods() map[string]contract.Method {
	fund := contract.Method{Payable: true, Handler: func(c *contract.CallContext) (interface{}, error) {
		return nil, f.Fund(c)
	}}
	return map[string]contract.Method{
		"fund": fund,
		"withdraw": {Handler: func(c *contract.CallContext) (interface{}, error) {
			return nil, f.Withdraw(c)
		}},
		"cheaperWithdraw": {Handler: func(c *contract.CallContext) (interface{}, error) {
			return nil, f.CheaperWithdraw(c)
		}},
		contract.ReceiveMethod:  fund,
		contract.FallbackMethod: fund,
	}
}

// 向合约转账，c.Value 在调用前已经转入合约账户
func (f *FundMe) Fund(c *contract.CallContext) error {
	usd, err := oracle.GetConversionRate(c.Context(), c.Value, f.feed)
	if err != nil {
		return err
	}
	if usd.Lt(minimumUSD) {
		return fmt.Errorf("%w: %s wei is worth %s, minimum is %s", ErrBelowMinimum, c.Value.Dec(), usd.Dec(), minimumUSD.Dec())
	}
	total, overflow := new(uint256.Int).AddOverflow(f.loadAmount(c, c.Caller), c.Value)
	if overflow {
		return fmt.Errorf("%w: %s", ErrOverflow, c.Caller.Hex())
	}
	f.storeAmount(c, c.Caller, total)
	if !f.loadIsFunder(c, c.Caller) {
		f.pushFunder(c, c.Caller)
	}
	c.Emit(meta.EventFunded, map[string]string{
		"funder": c.Caller.Hex(),
		"amount": c.Value.Dec(),
		"total":  total.Dec(),
	})
	return nil
}

// 每轮循环都从存储中重新读取 funders 的长度和元素
func (f *FundMe) Withdraw(c *contract.CallContext) error {
	amount, err := f.sweep(c)
	if err != nil {
		return err
	}
	for i := 0; i < f.loadFundersLen(c); i++ {
		f.storeAmount(c, f.loadFunder(c, i), new(uint256.Int))
	}
	f.clearFunders(c)
	f.emitWithdrawn(c, amount)
	return nil
}

// 与 Withdraw 结果相同，funders 只从存储中读取一次
func (f *FundMe) CheaperWithdraw(c *contract.CallContext) error {
	amount, err := f.sweep(c)
	if err != nil {
		return err
	}
	n := f.loadFundersLen(c)
	funders := make([]common.Address, n)
	for i := 0; i < n; i++ {
		funders[i] = f.loadFunder(c, i)
	}
	for _, funder := range funders {
		f.storeAmount(c, funder, new(uint256.Int))
	}
	f.clearFunders(c)
	f.emitWithdrawn(c, amount)
	return nil
}

// 检查 owner 并把合约余额全部转给 owner，转账失败时不修改任何状态
func (f *FundMe) sweep(c *contract.CallContext) (*uint256.Int, error) {
	if c.Caller != f.owner {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, c.Caller.Hex())
	}
	balance := c.Balance()
	if err := c.Transfer(f.owner, balance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return balance, nil
}

func (f *FundMe) emitWithdrawn(c *contract.CallContext, amount *uint256.Int) {
	c.Emit(meta.EventWithdrawn, map[string]string{
		"owner":  f.owner.Hex(),
		"amount": amount.Dec(),
	})
}

func (f *FundMe) loadAmount(c *contract.CallContext, funder common.Address) *uint256.Int {
	c.Load()
	if v, ok := f.amounts[funder]; ok {
		return v
	}
	return new(uint256.Int)
}

// 金额为 0 时删除
func (f *FundMe) storeAmount(c *contract.CallContext, funder common.Address, v *uint256.Int) {
	c.Store()
	if v.IsZero() {
		delete(f.amounts, funder)
		return
	}
	f.amounts[funder] = v
}

func (f *FundMe) loadIsFunder(c *contract.CallContext, funder common.Address) bool {
	c.Load()
	return f.isFunder[funder]
}

func (f *FundMe) pushFunder(c *contract.CallContext, funder common.Address) {
	c.Store()
	f.funders = append(f.funders, funder)
	c.Store()
	f.isFunder[funder] = true
}

func (f *FundMe) loadFundersLen(c *contract.CallContext) int {
	c.Load()
	return len(f.funders)
}

func (f *FundMe) loadFunder(c *contract.CallContext, i int) common.Address {
	c.Load()
	return f.funders[i]
}

func (f *FundMe) clearFunders(c *contract.CallContext) {
	c.Store()
	f.funders = nil
	f.isFunder = map[common.Address]bool{}
}

/*
 * 只读接口
 */

func (f *FundMe) GetAddressToAmountFunded(funder common.Address) *uint256.Int {
	if v, ok := f.amounts[funder]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (f *FundMe) GetFunder(index int) (common.Address, error) {
	if index < 0 || index >= len(f.funders) {
		return common.Address{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(f.funders))
	}
	return f.funders[index], nil
}

func (f *FundMe) GetFunders() []common.Address {
	funders := make([]common.Address, len(f.funders))
	copy(funders, f.funders)
	return funders
}

func (f *FundMe) GetOwner() common.Address {
	return f.owner
}

func (f *FundMe) GetVersion(ctx context.Context) (uint64, error) {
	return oracle.GetVersion(ctx, f.feed)
}

func (f *FundMe) MinimumUSD() *uint256.Int {
	return minimumUSD.Clone()
}

func (f *FundMe) GetPriceFeed() oracle.Feed {
	return f.feed
}

// 所有 funder 的金额之和
func (f *FundMe) TotalFunded() *uint256.Int {
	total := new(uint256.Int)
	for _, v := range f.amounts {
		total.Add(total, v)
	}
	return total
}

/*
 * 状态持久化
 */

type ledgerState struct {
	Owner   common.Address                  `json:"owner"`
	Amounts map[common.Address]*uint256.Int `json:"amounts"`
	Funders []common.Address                `json:"funders"`
}

func (f *FundMe) MarshalState() ([]byte, error) {
	return json.Marshal(ledgerState{Owner: f.owner, Amounts: f.amounts, Funders: f.funders})
}

// isFunder 由 funders 重建
func (f *FundMe) UnmarshalState(data []byte) error {
	var s ledgerState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f.owner = s.Owner
	f.amounts = map[common.Address]*uint256.Int{}
	for k, v := range s.Amounts {
		if v != nil && !v.IsZero() {
			f.amounts[k] = v
		}
	}
	f.funders = s.Funders
	f.isFunder = make(map[common.Address]bool, len(s.Funders))
	for _, funder := range s.Funders {
		f.isFunder[funder] = true
	}
	return nil
}

