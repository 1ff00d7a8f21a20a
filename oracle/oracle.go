// Package oracle reads a USD price feed and converts native amounts into
// 18-decimal USD values.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fundme/meta"
	"github.com/holiman/uint256"
)

// PrecisionDecimals is the fixed-point precision of every value returned by
// GetPrice and GetConversionRate. It matches wei per ether.
const PrecisionDecimals = 18

var (
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrOverflow          = errors.New("price conversion overflow")
)

var precision = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(PrecisionDecimals))

// Feed is a USD price source for the native currency.
type Feed interface {
	LatestPrice(ctx context.Context) (meta.PriceQuote, error)
	Version(ctx context.Context) (uint64, error)
}

// GetPrice returns the feed answer rescaled to 18 decimals.
func GetPrice(ctx context.Context, feed Feed) (*uint256.Int, error) {
	q, err := feed.LatestPrice(ctx)
	if err != nil {
		if errors.Is(err, ErrOracleUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if q.Answer == nil || q.Answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive answer %v", ErrOracleUnavailable, q.Answer)
	}
	if q.Decimals > PrecisionDecimals {
		return nil, fmt.Errorf("%w: unsupported feed decimals %d", ErrOracleUnavailable, q.Decimals)
	}
	answer, overflow := uint256.FromBig(q.Answer)
	if overflow {
		return nil, fmt.Errorf("%w: answer %v", ErrOverflow, q.Answer)
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(PrecisionDecimals-q.Decimals)))
	price, overflow := new(uint256.Int).MulOverflow(answer, scale)
	if overflow {
		return nil, fmt.Errorf("%w: answer %v", ErrOverflow, q.Answer)
	}
	return price, nil
}

// GetConversionRate returns the USD value of amount wei, 18 decimals.
// The price is scaled up before the multiplication so the single division
// at the end is the only place precision is dropped.
func GetConversionRate(ctx context.Context, amount *uint256.Int, feed Feed) (*uint256.Int, error) {
	price, err := GetPrice(ctx, feed)
	if err != nil {
		return nil, err
	}
	usd, overflow := new(uint256.Int).MulOverflow(price, amount)
	if overflow {
		return nil, fmt.Errorf("%w: amount %s", ErrOverflow, amount.Dec())
	}
	return usd.Div(usd, precision), nil
}

// GetVersion returns the feed version.
func GetVersion(ctx context.Context, feed Feed) (uint64, error) {
	v, err := feed.Version(ctx)
	if err != nil {
		if errors.Is(err, ErrOracleUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	return v, nil
}

// FeedAddress returns the on-chain aggregator address behind feed, looking
// through WithMaxStaleness. Feeds without an address report false.
func FeedAddress(feed Feed) (common.Address, bool) {
	if f, ok := feed.(*freshFeed); ok {
		feed = f.Feed
	}
	a, ok := feed.(interface{ Address() common.Address })
	if !ok {
		return common.Address{}, false
	}
	return a.Address(), true
}

type freshFeed struct {
	Feed
	maxAge time.Duration
	now    func() time.Time
}

// WithMaxStaleness rejects quotes last updated more than maxAge ago.
// A non-positive maxAge disables the check.
func WithMaxStaleness(feed Feed, maxAge time.Duration) Feed {
	if maxAge <= 0 {
		return feed
	}
	return &freshFeed{Feed: feed, maxAge: maxAge, now: time.Now}
}

func (f *freshFeed) LatestPrice(ctx context.Context) (meta.PriceQuote, error) {
	q, err := f.Feed.LatestPrice(ctx)
	if err != nil {
		return q, err
	}
	if q.UpdatedAt.IsZero() {
		return q, fmt.Errorf("%w: round %v has no update time", ErrOracleUnavailable, q.RoundID)
	}
	if age := f.now().Sub(q.UpdatedAt); age > f.maxAge {
		return q, fmt.Errorf("%w: price is %s old", ErrOracleUnavailable, age.Truncate(time.Second))
	}
	return q, nil
}
