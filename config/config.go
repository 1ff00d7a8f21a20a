package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cloudflare/cfssl/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	commonconst "github.com/fundme/common"
	"github.com/fundme/meta"
	"github.com/fundme/oracle"
	"github.com/fundme/util"
	"github.com/shopspring/decimal"
	viper2 "github.com/spf13/viper"
)

// 喂价来源
const (
	OracleMock      = "mock"
	OracleChainlink = "chainlink"
)

var ErrInvalidConfig = errors.New("invalid config")

// 各网络上的 ETH/USD 喂价合约，本地网络使用模拟喂价
type Network struct {
	ChainID   uint64
	PriceFeed common.Address
}

var Networks = map[string]Network{
	"sepolia": {ChainID: 11155111, PriceFeed: common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306")},
	"mainnet": {ChainID: 1, PriceFeed: common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")},
	"local":   {ChainID: 31337},
}

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Deployer string         `mapstructure:"deployer"` // 部署 FundMe 的账户，即 owner
	Genesis  []GenesisAlloc `mapstructure:"genesis"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug | info | warning | error
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	Key      string `mapstructure:"key"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type OracleConfig struct {
	Type         string        `mapstructure:"type"`    // mock | chainlink
	Network      string        `mapstructure:"network"` // Networks 中的网络名
	Address      string        `mapstructure:"address"` // 指定后覆盖网络表中的喂价地址
	RPC          string        `mapstructure:"rpc"`
	MaxStaleness time.Duration `mapstructure:"maxStaleness"`
	MockAnswer   string        `mapstructure:"mockAnswer"` // 模拟喂价的 USD 价格，如 "2000"
}

type GenesisAlloc struct {
	Address string `mapstructure:"address"`
	Balance string `mapstructure:"balance"`
}

func setDefaults(viper *viper2.Viper) {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("db.path", commonconst.DefaultDBPath)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.addr", commonconst.DefaultRedisAddr)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.key", commonconst.EventListKey)
	viper.SetDefault("http.addr", commonconst.ClientToUserAddr)
	viper.SetDefault("oracle.type", OracleMock)
	viper.SetDefault("oracle.network", "local")
	viper.SetDefault("oracle.address", "")
	viper.SetDefault("oracle.rpc", "")
	viper.SetDefault("oracle.maxStaleness", "0s")
	viper.SetDefault("oracle.mockAnswer", "2000")
	viper.SetDefault("deployer", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
}

// 读取配置文件，path 为空时只使用默认值和环境变量。
// 环境变量以 FUNDME_ 开头，如 FUNDME_ORACLE_TYPE
func Load(path string) (*Config, error) {
	viper := viper2.New()
	setDefaults(viper)
	viper.SetEnvPrefix("FUNDME")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if _, err := util.ParseAddress(c.Deployer); err != nil {
		return fmt.Errorf("%w: deployer: %w", ErrInvalidConfig, err)
	}
	allocs, err := c.GenesisAllocs()
	if err != nil {
		return err
	}
	// 部署者的第一个合约地址就是 fundme，不能预先分配余额
	ledger := crypto.CreateAddress(c.DeployerAddress(), 0)
	for _, alloc := range allocs {
		if alloc.Address == ledger {
			return fmt.Errorf("%w: genesis %s is the fundme contract address", ErrInvalidConfig, alloc.Address.Hex())
		}
	}
	switch c.Oracle.Type {
	case OracleMock:
		if _, err := c.MockAnswer(); err != nil {
			return err
		}
	case OracleChainlink:
		if c.Oracle.RPC == "" {
			return fmt.Errorf("%w: oracle.rpc is required for chainlink", ErrInvalidConfig)
		}
		if _, err := c.FeedAddress(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown oracle.type %q", ErrInvalidConfig, c.Oracle.Type)
	}
	return nil
}

// 转换为 cfssl log 的日志级别
func (c *Config) LogLevel() (int, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warning", "warn":
		return log.LevelWarning, nil
	case "error":
		return log.LevelError, nil
	}
	return 0, fmt.Errorf("%w: unknown log.level %q", ErrInvalidConfig, c.Log.Level)
}

func (c *Config) DeployerAddress() common.Address {
	return common.HexToAddress(c.Deployer)
}

// 显式配置的地址优先，否则按网络名查表
func (c *Config) FeedAddress() (common.Address, error) {
	if c.Oracle.Address != "" {
		addr, err := util.ParseAddress(c.Oracle.Address)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: oracle.address: %w", ErrInvalidConfig, err)
		}
		return addr, nil
	}
	network, ok := Networks[c.Oracle.Network]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: unknown network %q", ErrInvalidConfig, c.Oracle.Network)
	}
	if network.PriceFeed == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: network %q has no price feed", ErrInvalidConfig, c.Oracle.Network)
	}
	return network.PriceFeed, nil
}

// 模拟喂价的初始答案，按喂价精度放大
func (c *Config) MockAnswer() (*big.Int, error) {
	d, err := decimal.NewFromString(c.Oracle.MockAnswer)
	if err != nil || !d.IsPositive() {
		return nil, fmt.Errorf("%w: oracle.mockAnswer %q", ErrInvalidConfig, c.Oracle.MockAnswer)
	}
	return d.Shift(oracle.MockDecimals).BigInt(), nil
}

func (c *Config) GenesisAllocs() ([]meta.GenesisAlloc, error) {
	allocs := make([]meta.GenesisAlloc, 0, len(c.Genesis))
	for _, g := range c.Genesis {
		addr, err := util.ParseAddress(g.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: genesis: %w", ErrInvalidConfig, err)
		}
		if _, err := util.ParseEther(g.Balance); err != nil {
			return nil, fmt.Errorf("%w: genesis %s: %w", ErrInvalidConfig, g.Address, err)
		}
		allocs = append(allocs, meta.GenesisAlloc{Address: addr, Balance: g.Balance})
	}
	return allocs, nil
}
