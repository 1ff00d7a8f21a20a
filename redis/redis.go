package redis

import (
	"context"
	"encoding/json"

	"github.com/cloudflare/cfssl/log"
	"github.com/fundme/meta"
	"github.com/fundme/util"
	"github.com/go-redis/redis/v8"
)

// Client 把合约事件写入 redis 列表
type Client struct {
	rdb *redis.Client
	key string
}

func NewClient(addr, password, key string) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		key: key,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// list push
func (c *Client) SaveEvent(ctx context.Context, e meta.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return util.DealJsonErr("SaveEvent", err)
	}
	if err := c.rdb.RPush(ctx, c.key, data).Err(); err != nil {
		log.Errorf("event push to list error: %s", err)
		return err
	}
	return nil
}

// 读取最近的 n 条事件，n <= 0 时读取全部
func (c *Client) RecentEvents(ctx context.Context, n int64) ([]meta.Event, error) {
	start := int64(0)
	if n > 0 {
		start = -n
	}
	vals, err := c.rdb.LRange(ctx, c.key, start, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]meta.Event, 0, len(vals))
	for _, v := range vals {
		var e meta.Event
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			log.Errorf("skip malformed event: %s", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
