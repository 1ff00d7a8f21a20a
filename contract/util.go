package contract

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrContractExists   = errors.New("contract already registered")
)

type deployed struct {
	address  common.Address
	contract Contract
}

// Registry 记录已部署的合约，按名称和地址查找
type Registry struct {
	byName    map[string]deployed
	byAddress map[common.Address]string
}

func NewRegistry() *Registry {
	return &Registry{
		byName:    map[string]deployed{},
		byAddress: map[common.Address]string{},
	}
}

func (r *Registry) Register(name string, address common.Address, ct Contract) error {
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrContractExists, name)
	}
	if _, ok := r.byAddress[address]; ok {
		return fmt.Errorf("%w: %s", ErrContractExists, address.Hex())
	}
	r.byName[name] = deployed{address: address, contract: ct}
	r.byAddress[address] = name
	return nil
}

func (r *Registry) Get(name string) (Contract, common.Address, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, common.Address{}, fmt.Errorf("%w: %s", ErrContractNotFound, name)
	}
	return d.contract, d.address, nil
}

func (r *Registry) ByAddress(address common.Address) (string, Contract, bool) {
	name, ok := r.byAddress[address]
	if !ok {
		return "", nil, false
	}
	return name, r.byName[name].contract, true
}
