package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	commonconst "github.com/fundme/common"
	"github.com/fundme/meta"
	"gotest.tools/v3/assert"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c := NewClient(s.Addr(), "", commonconst.EventListKey)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestSaveEvent(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()
	assert.NilError(t, c.Ping(ctx))

	for i, typ := range []string{meta.EventFunded, meta.EventFunded, meta.EventWithdrawn} {
		assert.NilError(t, c.SaveEvent(ctx, meta.Event{
			EventID: string(rune('a' + i)),
			Type:    typ,
			From:    common.HexToAddress("0x01"),
			Args:    map[string]string{"amount": "100"},
		}))
	}
	list, err := s.List(commonconst.EventListKey)
	assert.NilError(t, err)
	assert.Equal(t, len(list), 3)

	all, err := c.RecentEvents(ctx, 0)
	assert.NilError(t, err)
	assert.Equal(t, len(all), 3)
	assert.Equal(t, all[0].EventID, "a")
	assert.Equal(t, all[0].From, common.HexToAddress("0x01"))
	assert.Equal(t, all[0].Args["amount"], "100")

	last, err := c.RecentEvents(ctx, 2)
	assert.NilError(t, err)
	assert.Equal(t, len(last), 2)
	assert.Equal(t, last[1].Type, meta.EventWithdrawn)
}

func TestRecentEventsSkipsMalformed(t *testing.T) {
	c, s := newTestClient(t)
	_, err := s.Push(commonconst.EventListKey, "not json")
	assert.NilError(t, err)
	assert.NilError(t, c.SaveEvent(context.Background(), meta.Event{EventID: "ok"}))

	events, err := c.RecentEvents(context.Background(), 0)
	assert.NilError(t, err)
	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].EventID, "ok")
}

func TestRedisDown(t *testing.T) {
	s, err := miniredis.Run()
	assert.NilError(t, err)
	c := NewClient(s.Addr(), "", commonconst.EventListKey)
	defer c.Close()
	s.Close()
	assert.Assert(t, c.Ping(context.Background()) != nil)
	assert.Assert(t, c.SaveEvent(context.Background(), meta.Event{EventID: "x"}) != nil)
}
