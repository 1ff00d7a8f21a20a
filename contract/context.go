package contract

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundme/event"
	"github.com/fundme/meta"
	"github.com/holiman/uint256"
)

// Runtime 由执行器提供，合约通过它读写账户余额
type Runtime interface {
	GetBalance(address common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// 合约调用上下文
type CallContext struct {
	Name    string            // 当前执行的合约的名称
	Address common.Address    // 合约地址
	Method  string            // 被调用的方法
	Args    map[string]string // 参数
	Caller  common.Address    // 调用者地址
	Origin  common.Address    // 最初调用者（外部账户）
	Value   *uint256.Int      // 调用合约时的转账金额

	ctx     context.Context
	runtime Runtime
	reads   int
	writes  int
	events  []meta.Event
}

// 外部账户调用合约时的上下文，Caller == Origin
func NewCallContext(ctx context.Context, rt Runtime, tx meta.Transaction, name string, address common.Address) *CallContext {
	value := tx.Value
	if value == nil {
		value = new(uint256.Int)
	}
	return &CallContext{
		Name:    name,
		Address: address,
		Method:  tx.Method,
		Args:    tx.Args,
		Caller:  tx.From,
		Origin:  tx.From,
		Value:   value.Clone(),
		ctx:     ctx,
		runtime: rt,
	}
}

func (c *CallContext) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// 返回当前合约拥有多少资产
func (c *CallContext) Balance() *uint256.Int {
	return c.runtime.GetBalance(c.Address)
}

// 根据地址获取对应账户的余额
func (c *CallContext) GetBalance(address common.Address) *uint256.Int {
	return c.runtime.GetBalance(address)
}

// 当前合约向 to 账户转账
func (c *CallContext) Transfer(to common.Address, amount *uint256.Int) error {
	return c.runtime.Transfer(c.Address, to, amount)
}

// 记录一次合约存储读
func (c *CallContext) Load() {
	c.reads++
}

// 记录一次合约存储写
func (c *CallContext) Store() {
	c.writes++
}

func (c *CallContext) Reads() int {
	return c.reads
}

func (c *CallContext) Writes() int {
	return c.writes
}

// 合约产生事件，交易提交后才会被推送
func (c *CallContext) Emit(typ string, args map[string]string) {
	c.events = append(c.events, event.New(typ, c.Name, c.Address, c.Origin, args))
}

func (c *CallContext) Events() []meta.Event {
	return c.events
}

func (c *CallContext) String() string {
	bs, _ := json.Marshal(struct {
		Name    string         `json:"name"`
		Address common.Address `json:"address"`
		Method  string         `json:"method"`
		Caller  common.Address `json:"caller"`
		Value   *uint256.Int   `json:"value"`
	}{c.Name, c.Address, c.Method, c.Caller, c.Value})
	return string(bs)
}
