package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudflare/cfssl/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fundme/chain"
	"github.com/fundme/client"
	"github.com/fundme/config"
	"github.com/fundme/contract"
	"github.com/fundme/contract/fundme"
	"github.com/fundme/event"
	"github.com/fundme/levelDB"
	"github.com/fundme/oracle"
	"github.com/fundme/redis"
)

func main() {
	configPath := flag.String("c", "config/config.yaml", "config file path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Start(ctx, *configPath); err != nil {
		log.Fatal(err)
	}
}

func Start(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, _ := cfg.LogLevel()
	log.Level = level

	db, err := levelDB.InitDB(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	var sinks []event.Sink
	var store client.EventStore
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.Key)
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			log.Warningf("redis %s unavailable, events will not be persisted: %s", cfg.Redis.Addr, err)
		} else {
			sinks = append(sinks, rdb)
			store = rdb
		}
	}
	hub := event.NewHub(sinks...)

	feed, closeFeed, err := newFeed(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFeed()

	c, err := chain.New(db, hub)
	if err != nil {
		return err
	}
	allocs, _ := cfg.GenesisAllocs()
	if err := c.ApplyGenesis(allocs); err != nil {
		return err
	}

	ledger, err := loadLedger(c, cfg.DeployerAddress(), feed)
	if err != nil {
		return err
	}
	log.Infof("fundme owner %s, minimum %s USD (18 decimals)", ledger.GetOwner().Hex(), ledger.MinimumUSD().Dec())

	return client.NewServer(c, ledger, hub, store).ListenRequest(ctx, cfg.HTTP.Addr)
}

// 根据配置选择模拟喂价或 Chainlink 喂价
func newFeed(ctx context.Context, cfg *config.Config) (oracle.Feed, func(), error) {
	var feed oracle.Feed
	closeFeed := func() {}
	switch cfg.Oracle.Type {
	case config.OracleChainlink:
		address, _ := cfg.FeedAddress()
		cl, rpc, err := oracle.DialChainlinkFeed(ctx, cfg.Oracle.RPC, address)
		if err != nil {
			return nil, nil, err
		}
		feed, closeFeed = cl, rpc.Close
	default:
		answer, _ := cfg.MockAnswer()
		feed = oracle.NewMockAggregator(oracle.MockDecimals, answer)
		log.Infof("mock price feed: %s USD", cfg.Oracle.MockAnswer)
	}
	return oracle.WithMaxStaleness(feed, cfg.Oracle.MaxStaleness), closeFeed, nil
}

// 已部署过则从磁盘恢复，否则由 deployer 部署
func loadLedger(c *chain.Chain, deployer common.Address, feed oracle.Feed) (*fundme.FundMe, error) {
	if _, ok := c.Deployed(fundme.Name); ok {
		ledger := fundme.New(common.Address{}, feed)
		if _, err := c.Attach(fundme.Name, ledger); err != nil {
			return nil, err
		}
		return ledger, nil
	}
	var ledger *fundme.FundMe
	_, err := c.Deploy(deployer, fundme.Name, func(owner, _ common.Address) contract.Contract {
		ledger = fundme.New(owner, feed)
		return ledger
	})
	return ledger, err
}
