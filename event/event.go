package event

import (
	"context"
	"sync"
	"time"

	"github.com/cloudflare/cfssl/log"
	"github.com/ethereum/go-ethereum/common"
	commonconst "github.com/fundme/common"
	"github.com/fundme/meta"
	"github.com/google/uuid"
)

// 生成一条合约事件，TxHash 由执行器在提交时填写
func New(typ, contract string, address, from common.Address, args map[string]string) meta.Event {
	return meta.Event{
		EventID:   uuid.NewString(),
		Type:      typ,
		Contract:  contract,
		Address:   address,
		From:      from,
		Args:      args,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// Sink 持久化已提交的事件
type Sink interface {
	SaveEvent(ctx context.Context, e meta.Event) error
}

// Hub 把已提交的事件推送给所有订阅者和 sink
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan meta.Event
	nextID int
	sinks  []Sink
}

func NewHub(sinks ...Sink) *Hub {
	return &Hub{subs: map[int]chan meta.Event{}, sinks: sinks}
}

// 订阅事件，返回的函数用于取消订阅
func (h *Hub) Subscribe() (<-chan meta.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan meta.Event, commonconst.EventSubBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// 订阅者缓冲区满时丢弃事件，不阻塞执行器
func (h *Hub) Publish(events []meta.Event) {
	for _, e := range events {
		for _, s := range h.sinks {
			if err := s.SaveEvent(context.Background(), e); err != nil {
				log.Errorf("save event %s error: %s", e.EventID, err)
			}
		}
		h.mu.Lock()
		for id, ch := range h.subs {
			select {
			case ch <- e:
			default:
				log.Warningf("subscriber %d is slow, drop event %s", id, e.EventID)
			}
		}
		h.mu.Unlock()
	}
}

// 当前订阅者数量
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
