// Package realtime は在庫低下通知のプッシュ配信を提供する。
// ブローカーのトピック購読と、アプリ内の購読者への非同期配信を含む。
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bento/internal/model"
)

// DefaultBufferSize は購読ごとのイベントバッファの既定サイズ。
const DefaultBufferSize = 16

// Event はトピックに届いた1件のプッシュイベント。
// 本文が在庫低下通知として解釈できない場合、NotificationはゼロでBodyに生の本文が残る。
type Event struct {
	Topic        string
	ReceivedAt   time.Time
	Notification model.LowStockNotification
	Body         json.RawMessage
}

// Hub はトピック名ごとに購読者を管理し、イベントを配信する。
// 配信は購読者ごとのバッファへ非ブロッキングで行い、満杯の購読者への配信は破棄する。
// 切断中に発生したイベントの再送はしない。
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[string]*Subscription
	bufferSize int
	closed     bool
	logger     *slog.Logger
}

// NewHub はHubを生成する。bufferSizeが0以下の場合はDefaultBufferSizeを使う。
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics:     make(map[string]map[string]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscription は1つのトピックへの購読。
type Subscription struct {
	ID    string
	Topic string

	hub    *Hub
	events chan Event
	once   sync.Once
}

// Events はイベントを受け取るチャネルを返す。購読解除またはHubの停止で閉じられる。
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close は購読を解除する。複数回呼んでもよい。
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe はトピックの購読を登録する。
// 停止済みのHubに対しては閉じたチャネルを持つ購読を返す。
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Topic:  topic,
		hub:    h,
		events: make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.events) })
		return sub
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		h.topics[topic] = subs
	}
	subs[sub.ID] = sub
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[sub.Topic]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(h.topics, sub.Topic)
		}
	}
	sub.once.Do(func() { close(sub.events) })
}

// Publish はイベントをトピックの全購読者へ配信し、配信できた購読者数を返す。
func (h *Hub) Publish(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}

	delivered := 0
	for _, sub := range h.topics[ev.Topic] {
		select {
		case sub.events <- ev:
			delivered++
		default:
			h.logger.Warn("購読者のバッファが満杯のためイベントを破棄しました",
				slog.String("topic", ev.Topic),
				slog.String("subscription_id", sub.ID),
			)
		}
	}
	return delivered
}

// Subscribers はトピックの購読者数を返す。
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close はHubを停止し、すべての購読のチャネルを閉じる。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.topics {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.events) })
		}
		delete(h.topics, topic)
	}
}
