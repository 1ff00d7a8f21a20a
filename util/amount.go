package util

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// 1 ether = 10^18 wei
const EtherDecimals = 18

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidAddress = errors.New("invalid address")
)

// 把以 ether 为单位的字符串（如 "0.1"）转换为 wei，空串视为 0
func ParseEther(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	wei := d.Shift(EtherDecimals)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, EtherDecimals)
	}
	v, overflow := uint256.FromBig(wei.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %q overflows uint256", ErrInvalidAmount, s)
	}
	return v, nil
}

// 把 wei 格式化为以 ether 为单位的字符串
func FormatEther(wei *uint256.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei.ToBig(), -EtherDecimals).String()
}

// 解析 0x 开头的十六进制地址
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
