package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/fundme/meta"
)

// 本地网络使用的默认喂价：8位精度，1 ETH = 2000 USD
const (
	MockDecimals = 8
	MockVersion  = 4
)

var MockInitialAnswer = big.NewInt(2000e8)

// MockAggregator 模拟链上的 AggregatorV3 喂价合约
type MockAggregator struct {
	mu        sync.RWMutex
	decimals  uint8
	version   uint64
	roundID   *big.Int
	answer    *big.Int
	updatedAt time.Time
	err       error
}

func NewMockAggregator(decimals uint8, initialAnswer *big.Int) *MockAggregator {
	m := &MockAggregator{
		decimals: decimals,
		version:  MockVersion,
		roundID:  new(big.Int),
	}
	m.UpdateAnswer(initialAnswer)
	return m
}

// 更新价格，轮次加一
func (m *MockAggregator) UpdateAnswer(answer *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roundID = new(big.Int).Add(m.roundID, big.NewInt(1))
	m.answer = new(big.Int).Set(answer)
	m.updatedAt = time.Now()
}

func (m *MockAggregator) UpdateRoundData(roundID, answer *big.Int, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roundID = new(big.Int).Set(roundID)
	m.answer = new(big.Int).Set(answer)
	m.updatedAt = updatedAt
}

func (m *MockAggregator) SetVersion(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = v
}

// 注入故障，err 为 nil 时恢复
func (m *MockAggregator) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockAggregator) LatestPrice(ctx context.Context) (meta.PriceQuote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return meta.PriceQuote{}, m.err
	}
	return meta.PriceQuote{
		RoundID:   new(big.Int).Set(m.roundID),
		Answer:    new(big.Int).Set(m.answer),
		Decimals:  m.decimals,
		Version:   m.version,
		UpdatedAt: m.updatedAt,
	}, nil
}

func (m *MockAggregator) Version(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.version, nil
}
