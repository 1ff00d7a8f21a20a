package contract

import (
	"errors"
	"fmt"

	"github.com/cloudflare/cfssl/log"
	"github.com/fundme/account"
)

/*
 * 区块链提供给合约的接口
 */

// 没有指定方法时执行 receive，找不到方法时执行 fallback
const (
	ReceiveMethod  = "receive"
	FallbackMethod = "fallback"
)

var (
	ErrMethodNotFound      = errors.New("method not found")
	ErrNotPayable          = errors.New("method is not payable")
	ErrSelfCall            = errors.New("contract cannot call itself")
	ErrInsufficientBalance = account.ErrInsufficientBalance
	ErrTransferRejected    = account.ErrTransferRejected
)

type Handler func(c *CallContext) (interface{}, error)

type Method struct {
	Payable bool // 是否允许调用时转账
	Handler Handler
}

// Contract 由内置合约实现，状态需要能序列化以便持久化
type Contract interface {
	Methods() map[string]Method
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// 根据方法名找到要执行的方法
func Resolve(ct Contract, method string) (string, Method, error) {
	methods := ct.Methods()
	if method == "" {
		if m, ok := methods[ReceiveMethod]; ok {
			return ReceiveMethod, m, nil
		}
	} else if m, ok := methods[method]; ok {
		return method, m, nil
	}
	if m, ok := methods[FallbackMethod]; ok {
		log.Debugf("找不到目标方法：%v，执行fallback方法", method)
		return FallbackMethod, m, nil
	}
	return "", Method{}, fmt.Errorf("%w: %q", ErrMethodNotFound, method)
}

// 合约账户是否接收直接转账
func AcceptsValue(ct Contract) bool {
	methods := ct.Methods()
	for _, name := range []string{ReceiveMethod, FallbackMethod} {
		if m, ok := methods[name]; ok && m.Payable {
			return true
		}
	}
	return false
}

// 调用智能合约，value 在执行前转入合约账户
func Execute(ct Contract, c *CallContext) (interface{}, error) {
	if c.Caller == c.Address {
		return nil, fmt.Errorf("%w: %s", ErrSelfCall, c.Address.Hex())
	}
	name, m, err := Resolve(ct, c.Method)
	if err != nil {
		return nil, err
	}
	if !c.Value.IsZero() {
		if !m.Payable {
			return nil, fmt.Errorf("%w: %s.%s", ErrNotPayable, c.Name, name)
		}
		if err := c.runtime.Transfer(c.Caller, c.Address, c.Value); err != nil {
			return nil, err
		}
	}
	c.Method = name
	log.Debugf("当前合约调用的context: %v", c)
	return m.Handler(c)
}
