package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cloudflare/cfssl/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fundme/account"
	"github.com/fundme/chain"
	commonconst "github.com/fundme/common"
	"github.com/fundme/contract"
	"github.com/fundme/contract/fundme"
	"github.com/fundme/meta"
	"github.com/fundme/oracle"
	"github.com/fundme/util"
	"github.com/gin-gonic/gin"
)

// 提交一笔交易：转账或调用合约
func (s *Server) postTran(ctx *gin.Context) {
	pt := meta.PostTran{}
	if err := ctx.ShouldBindJSON(&pt); err != nil {
		s.badRequest(ctx, err)
		return
	}
	tx, err := buildTransaction(pt)
	if err != nil {
		s.badRequest(ctx, err)
		return
	}
	s.submit(ctx, tx)
}

func (s *Server) fund(ctx *gin.Context) {
	s.invokeLedger(ctx, "fund", true)
}

func (s *Server) withdraw(ctx *gin.Context) {
	s.invokeLedger(ctx, "withdraw", false)
}

func (s *Server) cheaperWithdraw(ctx *gin.Context) {
	s.invokeLedger(ctx, "cheaperWithdraw", false)
}

func (s *Server) invokeLedger(ctx *gin.Context, method string, payable bool) {
	pt := meta.PostTran{}
	if err := ctx.ShouldBindJSON(&pt); err != nil {
		s.badRequest(ctx, err)
		return
	}
	if !payable && pt.Value != "" {
		s.badRequest(ctx, fmt.Errorf("%s does not accept value", method))
		return
	}
	pt.Contract = fundme.Name
	pt.Method = method
	pt.Type = meta.Invoke
	tx, err := buildTransaction(pt)
	if err != nil {
		s.badRequest(ctx, err)
		return
	}
	s.submit(ctx, tx)
}

func (s *Server) submit(ctx *gin.Context, tx meta.Transaction) {
	receipt, err := s.chain.Submit(ctx.Request.Context(), tx)
	if err != nil {
		ctx.JSON(statusOf(err), meta.HttpResponse{Error: err.Error(), Data: receipt, Code: commonconst.ResponseCode})
		return
	}
	ctx.JSON(http.StatusOK, goodResponse(receipt))
}

// 检查交易参数
func buildTransaction(pt meta.PostTran) (meta.Transaction, error) {
	from, err := util.ParseAddress(pt.From)
	if err != nil {
		return meta.Transaction{}, fmt.Errorf("from: %w", err)
	}
	value, err := util.ParseEther(pt.Value)
	if err != nil {
		return meta.Transaction{}, fmt.Errorf("value: %w", err)
	}
	tx := meta.Transaction{
		From:     from,
		Contract: pt.Contract,
		Method:   pt.Method,
		Args:     pt.Args,
		Value:    value,
		Type:     pt.Type,
	}
	switch pt.Type {
	case meta.Transfer:
		if tx.To, err = util.ParseAddress(pt.To); err != nil {
			return meta.Transaction{}, fmt.Errorf("to: %w", err)
		}
		if from == tx.To {
			return meta.Transaction{}, errors.New("发起地址和接收地址不能相同")
		}
	case meta.Invoke:
		if pt.Contract == "" {
			if tx.To, err = util.ParseAddress(pt.To); err != nil {
				return meta.Transaction{}, fmt.Errorf("contract or to is required: %w", err)
			}
		}
	default:
		return meta.Transaction{}, fmt.Errorf("%w: unknown type %d", chain.ErrInvalidTransaction, pt.Type)
	}
	return tx, nil
}

// 链上信息query服务
func (s *Server) query(ctx *gin.Context) {
	q := meta.Query{}
	if err := ctx.ShouldBindJSON(&q); err != nil {
		s.badRequest(ctx, err)
		return
	}
	log.Debugf("[client] 收到查询请求: %s %v", q.Type, q.Parameters)

	data, err := s.lookup(ctx, q)
	if err != nil {
		ctx.JSON(statusOf(err), errResponse(err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, goodResponse(data))
}

var errInvalidParam = errors.New("invalid param")

type amountView struct {
	Address common.Address `json:"address"`
	Wei     string         `json:"wei"`
	Ether   string         `json:"ether"`
}

func (s *Server) lookup(ctx *gin.Context, q meta.Query) (interface{}, error) {
	param := func(i int) (string, error) {
		if i >= len(q.Parameters) {
			return "", fmt.Errorf("%w: %s needs %d parameters", errInvalidParam, q.Type, i+1)
		}
		return q.Parameters[i], nil
	}
	address := func() (common.Address, error) {
		p, err := param(0)
		if err != nil {
			return common.Address{}, err
		}
		return util.ParseAddress(p)
	}

	switch q.Type {
	case "getBalance": // 获取账户余额
		addr, err := address()
		if err != nil {
			return nil, err
		}
		acc := s.chain.GetAccount(addr)
		return amountView{Address: addr, Wei: acc.Balance.Dec(), Ether: util.FormatEther(acc.Balance)}, nil

	case "getAccounts": // 所有账户地址
		var addrs []common.Address
		_ = s.chain.View(func(st *account.State) error {
			addrs = st.GetTotalAddress()
			return nil
		})
		return addrs, nil

	case "getAccount":
		addr, err := address()
		if err != nil {
			return nil, err
		}
		return s.chain.GetAccount(addr), nil

	case "getAddressToAmountFunded":
		addr, err := address()
		if err != nil {
			return nil, err
		}
		var view amountView
		_ = s.chain.View(func(*account.State) error {
			amount := s.ledger.GetAddressToAmountFunded(addr)
			view = amountView{Address: addr, Wei: amount.Dec(), Ether: util.FormatEther(amount)}
			return nil
		})
		return view, nil

	case "getFunder":
		p, err := param(0)
		if err != nil {
			return nil, err
		}
		index, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: index %q", errInvalidParam, p)
		}
		var funder common.Address
		err = s.chain.View(func(*account.State) error {
			funder, err = s.ledger.GetFunder(index)
			return err
		})
		return funder, err

	case "getFunders":
		var funders []common.Address
		_ = s.chain.View(func(*account.State) error {
			funders = s.ledger.GetFunders()
			return nil
		})
		return funders, nil

	case "getOwner":
		var owner common.Address
		_ = s.chain.View(func(*account.State) error {
			owner = s.ledger.GetOwner()
			return nil
		})
		return owner, nil

	case "getVersion":
		return s.ledger.GetVersion(ctx.Request.Context())

	case "getMinimumUsd":
		return s.ledger.MinimumUSD().Dec(), nil

	case "getPriceFeed":
		if addr, ok := oracle.FeedAddress(s.ledger.GetPriceFeed()); ok {
			return addr, nil
		}
		return "mock", nil

	case "getPrice":
		price, err := oracle.GetPrice(ctx.Request.Context(), s.ledger.GetPriceFeed())
		if err != nil {
			return nil, err
		}
		return price.Dec(), nil

	case "getConversionRate": // 参数为 ether 数额
		p, err := param(0)
		if err != nil {
			return nil, err
		}
		amount, err := util.ParseEther(p)
		if err != nil {
			return nil, err
		}
		usd, err := oracle.GetConversionRate(ctx.Request.Context(), amount, s.ledger.GetPriceFeed())
		if err != nil {
			return nil, err
		}
		return usd.Dec(), nil

	case "getReceipt":
		p, err := param(0)
		if err != nil {
			return nil, err
		}
		return s.chain.Receipt(common.HexToHash(p))

	case "getContract":
		addr, ok := s.chain.Deployed(fundme.Name)
		if !ok {
			return nil, contract.ErrContractNotFound
		}
		return map[string]interface{}{
			"name":    fundme.Name,
			"address": addr,
			"height":  s.chain.Height(),
		}, nil

	case "getEvent": // 最近的 n 条事件，不传时返回全部
		if s.store == nil {
			return []meta.Event{}, nil
		}
		var n int64
		if len(q.Parameters) > 0 {
			v, err := strconv.ParseInt(q.Parameters[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: n %q", errInvalidParam, q.Parameters[0])
			}
			n = v
		}
		return s.store.RecentEvents(ctx.Request.Context(), n)
	}
	return nil, fmt.Errorf("%w: unknown query type %q", errInvalidParam, q.Type)
}

// 错误类型到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, fundme.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, contract.ErrContractNotFound),
		errors.Is(err, chain.ErrReceiptNotFound):
		return http.StatusNotFound
	case errors.Is(err, oracle.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, fundme.ErrTransferFailed):
		return http.StatusConflict
	case errors.Is(err, fundme.ErrBelowMinimum),
		errors.Is(err, fundme.ErrIndexOutOfRange),
		errors.Is(err, fundme.ErrOverflow),
		errors.Is(err, oracle.ErrOverflow),
		errors.Is(err, contract.ErrMethodNotFound),
		errors.Is(err, contract.ErrNotPayable),
		errors.Is(err, contract.ErrSelfCall),
		errors.Is(err, contract.ErrInsufficientBalance),
		errors.Is(err, contract.ErrTransferRejected),
		errors.Is(err, account.ErrBalanceOverflow),
		errors.Is(err, chain.ErrInvalidTransaction),
		errors.Is(err, util.ErrInvalidAmount),
		errors.Is(err, util.ErrInvalidAddress),
		errors.Is(err, errInvalidParam):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) badRequest(ctx *gin.Context, err error) {
	log.Errorf("[client] bad request %s: %s", ctx.Request.URL.Path, err)
	ctx.JSON(http.StatusBadRequest, errResponse(err.Error()))
}

// 正常返回
func goodResponse(data interface{}) meta.HttpResponse {
	return meta.HttpResponse{
		Data: data,
		Code: commonconst.ResponseCode,
	}
}

// 出现异常，返回异常信息
func errResponse(errMsg string) meta.HttpResponse {
	return meta.HttpResponse{
		Error: errMsg,
		Data:  "",
		Code:  commonconst.ResponseCode,
	}
}
