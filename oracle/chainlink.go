package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cloudflare/cfssl/log"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/fundme/meta"
)

// AggregatorV3Interface 中用到的方法
const AggregatorV3ABI = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"description","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"version","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ChainlinkFeed 通过 RPC 读取链上的 Chainlink 喂价合约
type ChainlinkFeed struct {
	address  common.Address
	contract *bind.BoundContract

	mu       sync.Mutex
	decimals *uint8 // 喂价精度不会变化，第一次读取后缓存
}

func NewChainlinkFeed(address common.Address, caller bind.ContractCaller) (*ChainlinkFeed, error) {
	parsed, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		return nil, err
	}
	return &ChainlinkFeed{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, caller, nil, nil),
	}, nil
}

// 连接 RPC 节点并绑定喂价合约
func DialChainlinkFeed(ctx context.Context, rpcURL string, address common.Address) (*ChainlinkFeed, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	feed, err := NewChainlinkFeed(address, client)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	log.Infof("chainlink price feed %s via %s", address.Hex(), rpcURL)
	return feed, client, nil
}

func (c *ChainlinkFeed) Address() common.Address {
	return c.address
}

func (c *ChainlinkFeed) LatestPrice(ctx context.Context) (meta.PriceQuote, error) {
	decimals, err := c.Decimals(ctx)
	if err != nil {
		return meta.PriceQuote{}, err
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "latestRoundData"); err != nil {
		return meta.PriceQuote{}, fmt.Errorf("%w: latestRoundData: %w", ErrOracleUnavailable, err)
	}
	version, err := c.Version(ctx)
	if err != nil {
		return meta.PriceQuote{}, err
	}
	roundID := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	answer := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	updatedAt := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)
	return meta.PriceQuote{
		RoundID:   roundID,
		Answer:    answer,
		Decimals:  decimals,
		Version:   version,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0),
	}, nil
}

func (c *ChainlinkFeed) Decimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decimals != nil {
		return *c.decimals, nil
	}
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("%w: decimals: %w", ErrOracleUnavailable, err)
	}
	d := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	c.decimals = &d
	return d, nil
}

func (c *ChainlinkFeed) Version(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "version"); err != nil {
		return 0, fmt.Errorf("%w: version: %w", ErrOracleUnavailable, err)
	}
	v := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return v.Uint64(), nil
}
