package fundme

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fundme/account"
	"github.com/fundme/contract"
	"github.com/fundme/meta"
	"github.com/fundme/oracle"
	"github.com/fundme/util"
	"github.com/holiman/uint256"
	"gotest.tools/v3/assert"
)

var (
	owner      = common.HexToAddress("0xA000000000000000000000000000000000000000")
	ledgerAddr = common.HexToAddress("0xF000000000000000000000000000000000000000")
)

type env struct {
	t      *testing.T
	state  *account.State
	feed   *oracle.MockAggregator
	ledger *FundMe
}

func ether(t *testing.T, s string) *uint256.Int {
	v, err := util.ParseEther(s)
	assert.NilError(t, err)
	return v
}

func funder(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x100 + i)))
}

func newEnv(t *testing.T) *env {
	st := account.NewState()
	st.CreateAccount(owner, ether(t, "10"))
	for i := 0; i < 10; i++ {
		st.CreateAccount(funder(i), ether(t, "10"))
	}
	feed := oracle.NewMockAggregator(oracle.MockDecimals, oracle.MockInitialAnswer)
	ledger := New(owner, feed)
	st.CreateContract(ledgerAddr, Name, contract.AcceptsValue(ledger))
	return &env{t: t, state: st, feed: feed, ledger: ledger}
}

func (e *env) call(from common.Address, method string, value *uint256.Int) (*contract.CallContext, error) {
	tx := meta.Transaction{From: from, Method: method, Value: value}
	c := contract.NewCallContext(context.Background(), e.state, tx, Name, ledgerAddr)
	_, err := contract.Execute(e.ledger, c)
	return c, err
}

func (e *env) fund(from common.Address, amount string) {
	_, err := e.call(from, "fund", ether(e.t, amount))
	assert.NilError(e.t, err)
}

// 合约余额等于所有 funder 金额之和
func (e *env) checkHeld() {
	held := e.state.GetBalance(ledgerAddr)
	assert.Assert(e.t, held.Eq(e.ledger.TotalFunded()), "held %s funded %s\n%s",
		held.Dec(), e.ledger.TotalFunded().Dec(), spew.Sdump(e.ledger.amounts))
}

func TestFundSingleFunder(t *testing.T) {
	e := newEnv(t)
	a := funder(0)

	e.fund(a, "0.1")
	assert.Equal(t, e.ledger.GetAddressToAmountFunded(a).Dec(), ether(t, "0.1").Dec())
	assert.DeepEqual(t, e.ledger.GetFunders(), []common.Address{a})

	e.fund(a, "0.1")
	assert.Equal(t, e.ledger.GetAddressToAmountFunded(a).Dec(), ether(t, "0.2").Dec())
	assert.DeepEqual(t, e.ledger.GetFunders(), []common.Address{a})
	got, err := e.ledger.GetFunder(0)
	assert.NilError(t, err)
	assert.Equal(t, got, a)
	e.checkHeld()
}

func TestFundMinimum(t *testing.T) {
	e := newEnv(t)
	a := funder(0)

	// 2000 USD/ETH 时 0.0025 ETH 正好是 5 USD
	below := new(uint256.Int).Sub(ether(t, "0.0025"), uint256.NewInt(1))
	_, err := e.call(a, "fund", below)
	assert.Assert(t, errors.Is(err, ErrBelowMinimum))
	assert.Assert(t, e.ledger.GetAddressToAmountFunded(a).IsZero())
	assert.Equal(t, len(e.ledger.GetFunders()), 0)

	_, err = e.call(a, "fund", new(uint256.Int))
	assert.Assert(t, errors.Is(err, ErrBelowMinimum))

	e.fund(a, "0.0025")
	assert.Equal(t, e.ledger.GetAddressToAmountFunded(a).Dec(), ether(t, "0.0025").Dec())
}

func TestFundFollowsPrice(t *testing.T) {
	e := newEnv(t)
	// 价格跌到 1000 USD/ETH 后 0.0025 ETH 只值 2.5 USD
	e.feed.UpdateAnswer(big.NewInt(1000e8))
	_, err := e.call(funder(0), "fund", ether(t, "0.0025"))
	assert.Assert(t, errors.Is(err, ErrBelowMinimum))
	e.fund(funder(0), "0.005")
}

func TestFundOracleUnavailable(t *testing.T) {
	e := newEnv(t)
	e.feed.Fail(errors.New("stale round"))
	_, err := e.call(funder(0), "fund", ether(t, "1"))
	assert.Assert(t, errors.Is(err, ErrOracleUnavailable))
	assert.Equal(t, len(e.ledger.GetFunders()), 0)
}

func TestReceiveAndFallback(t *testing.T) {
	e := newEnv(t)
	_, err := e.call(funder(0), "", ether(t, "0.1"))
	assert.NilError(t, err)
	_, err = e.call(funder(1), "noSuchMethod", ether(t, "0.2"))
	assert.NilError(t, err)

	assert.DeepEqual(t, e.ledger.GetFunders(), []common.Address{funder(0), funder(1)})
	assert.Equal(t, e.ledger.GetAddressToAmountFunded(funder(1)).Dec(), ether(t, "0.2").Dec())
	e.checkHeld()
}

func TestFundEvent(t *testing.T) {
	e := newEnv(t)
	e.fund(funder(0), "0.1")
	c, err := e.call(funder(0), "fund", ether(t, "0.3"))
	assert.NilError(t, err)

	events := c.Events()
	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Type, meta.EventFunded)
	assert.Equal(t, events[0].Args["funder"], funder(0).Hex())
	assert.Equal(t, events[0].Args["amount"], ether(t, "0.3").Dec())
	assert.Equal(t, events[0].Args["total"], ether(t, "0.4").Dec())
}

func TestWithdrawSingleFunder(t *testing.T) {
	e := newEnv(t)
	e.fund(funder(0), "0.1")
	before := e.state.GetBalance(owner)

	c, err := e.call(owner, "withdraw", nil)
	assert.NilError(t, err)

	want := new(uint256.Int).Add(before, ether(t, "0.1"))
	assert.Equal(t, e.state.GetBalance(owner).Dec(), want.Dec())
	assert.Assert(t, e.state.GetBalance(ledgerAddr).IsZero())
	assert.Assert(t, e.ledger.GetAddressToAmountFunded(funder(0)).IsZero())
	_, err = e.ledger.GetFunder(0)
	assert.Assert(t, errors.Is(err, ErrIndexOutOfRange))

	assert.Equal(t, len(c.Events()), 1)
	assert.Equal(t, c.Events()[0].Type, meta.EventWithdrawn)
	assert.Equal(t, c.Events()[0].Args["amount"], ether(t, "0.1").Dec())
}

func TestWithdrawManyFunders(t *testing.T) {
	cases := []struct {
		method string
		reads  int
	}{
		// 循环条件读 n+1 次长度，再读 n 次元素
		{"withdraw", 19},
		// 读 1 次长度和 n 次元素
		{"cheaperWithdraw", 10},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			e := newEnv(t)
			for i := 0; i < 9; i++ {
				e.fund(funder(i), "0.1")
			}
			e.checkHeld()
			ownerBefore := e.state.GetBalance(owner)
			held := e.state.GetBalance(ledgerAddr)
			assert.Equal(t, held.Dec(), ether(t, "0.9").Dec())

			c, err := e.call(owner, tc.method, nil)
			assert.NilError(t, err)

			want := new(uint256.Int).Add(ownerBefore, held)
			assert.Equal(t, e.state.GetBalance(owner).Dec(), want.Dec())
			for i := 0; i < 9; i++ {
				assert.Assert(t, e.ledger.GetAddressToAmountFunded(funder(i)).IsZero())
			}
			assert.Equal(t, len(e.ledger.GetFunders()), 0)
			assert.Assert(t, e.state.GetBalance(ledgerAddr).IsZero())
			e.checkHeld()

			assert.Equal(t, c.Reads(), tc.reads)
			// 9 个金额清零，1 次清空 funders
			assert.Equal(t, c.Writes(), 10)
		})
	}
}

func TestWithdrawVariantsEquivalent(t *testing.T) {
	run := func(method string) []byte {
		e := newEnv(t)
		e.fund(funder(0), "0.1")
		e.fund(funder(1), "0.5")
		e.fund(funder(0), "0.2")
		_, err := e.call(owner, method, nil)
		assert.NilError(t, err)
		e.fund(funder(2), "0.3")
		state, err := e.ledger.MarshalState()
		assert.NilError(t, err)
		return state
	}
	assert.Equal(t, string(run("withdraw")), string(run("cheaperWithdraw")))
}

func TestWithdrawNonOwner(t *testing.T) {
	for _, method := range []string{"withdraw", "cheaperWithdraw"} {
		e := newEnv(t)

		// 余额为 0 时同样拒绝
		_, err := e.call(funder(1), method, nil)
		assert.Assert(t, errors.Is(err, ErrUnauthorized))

		e.fund(funder(0), "0.1")
		_, err = e.call(funder(0), method, nil)
		assert.Assert(t, errors.Is(err, ErrUnauthorized))
		assert.Equal(t, e.state.GetBalance(ledgerAddr).Dec(), ether(t, "0.1").Dec())
		assert.Equal(t, e.ledger.GetAddressToAmountFunded(funder(0)).Dec(), ether(t, "0.1").Dec())
		assert.Equal(t, len(e.ledger.GetFunders()), 1)
	}
}

func TestWithdrawNotPayable(t *testing.T) {
	e := newEnv(t)
	_, err := e.call(owner, "withdraw", ether(t, "1"))
	assert.Assert(t, errors.Is(err, contract.ErrNotPayable))
}

func TestWithdrawTransferFailed(t *testing.T) {
	e := newEnv(t)
	e.fund(funder(0), "0.1")
	// owner 是一个不接收转账的合约账户
	e.state.CreateContract(owner, "vault", false)

	_, err := e.call(owner, "withdraw", nil)
	assert.Assert(t, errors.Is(err, ErrTransferFailed))
	assert.Assert(t, errors.Is(err, contract.ErrTransferRejected))
	assert.Equal(t, e.state.GetBalance(ledgerAddr).Dec(), ether(t, "0.1").Dec())
	assert.Equal(t, e.ledger.GetAddressToAmountFunded(funder(0)).Dec(), ether(t, "0.1").Dec())
	assert.DeepEqual(t, e.ledger.GetFunders(), []common.Address{funder(0)})
}

func TestRefundAfterWithdraw(t *testing.T) {
	e := newEnv(t)
	e.fund(funder(0), "0.1")
	_, err := e.call(owner, "cheaperWithdraw", nil)
	assert.NilError(t, err)

	e.fund(funder(1), "0.1")
	e.fund(funder(0), "0.1")
	assert.DeepEqual(t, e.ledger.GetFunders(), []common.Address{funder(1), funder(0)})
	assert.Equal(t, e.ledger.GetAddressToAmountFunded(funder(0)).Dec(), ether(t, "0.1").Dec())
	e.checkHeld()
}

func TestStateRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.fund(funder(0), "0.1")
	e.fund(funder(1), "0.2")

	data, err := e.ledger.MarshalState()
	assert.NilError(t, err)

	restored := New(common.Address{}, e.feed)
	assert.NilError(t, restored.UnmarshalState(data))
	assert.Equal(t, restored.GetOwner(), owner)
	assert.DeepEqual(t, restored.GetFunders(), e.ledger.GetFunders())
	assert.Equal(t, restored.GetAddressToAmountFunded(funder(1)).Dec(), ether(t, "0.2").Dec())

	// 已有的 funder 不会重复登记
	e.ledger = restored
	e.fund(funder(0), "0.1")
	assert.Equal(t, len(restored.GetFunders()), 2)

	assert.Assert(t, restored.UnmarshalState([]byte("{")) != nil)
}

func TestReadOnly(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, e.ledger.GetOwner(), owner)
	assert.Equal(t, e.ledger.MinimumUSD().Dec(), "5000000000000000000")
	assert.Equal(t, e.ledger.GetPriceFeed(), oracle.Feed(e.feed))

	v, err := e.ledger.GetVersion(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, v, uint64(oracle.MockVersion))

	_, err = e.ledger.GetFunder(-1)
	assert.Assert(t, errors.Is(err, ErrIndexOutOfRange))

	// 返回的是副本
	e.fund(funder(0), "0.1")
	e.ledger.GetAddressToAmountFunded(funder(0)).Clear()
	e.ledger.GetFunders()[0] = owner
	assert.Equal(t, e.ledger.GetAddressToAmountFunded(funder(0)).Dec(), ether(t, "0.1").Dec())
	got, _ := e.ledger.GetFunder(0)
	assert.Equal(t, got, funder(0))
}
