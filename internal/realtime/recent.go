package realtime

import (
	"context"
	"sync"

	"github.com/hitoshi/bento/internal/model"
)

// DefaultRecentCapacity はRecentが保持する通知数の既定値。
const DefaultRecentCapacity = 50

// Recent はプッシュで届いた在庫低下通知のうち直近のものを保持する。
// 履歴とのマージ表示に使う。プロセス再起動で消える。
type Recent struct {
	mu       sync.RWMutex
	items    []model.LowStockNotification
	capacity int
}

// NewRecent はRecentを生成する。capacityが0以下の場合はDefaultRecentCapacityを使う。
func NewRecent(capacity int) *Recent {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &Recent{capacity: capacity}
}

// Record は通知を追加する。上限を超えた分は古いものから捨てる。
func (r *Recent) Record(n model.LowStockNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if over := len(r.items) - r.capacity; over > 0 {
		r.items = append(r.items[:0:0], r.items[over:]...)
	}
}

// Snapshot は保持している通知のコピーを返す。
func (r *Recent) Snapshot() []model.LowStockNotification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.LowStockNotification(nil), r.items...)
}

// Follow は購読のイベントを記録し続ける。ctxのキャンセルか購読の終了で戻る。
// 本文を解釈できなかったイベントは記録しない。
func (r *Recent) Follow(ctx context.Context, sub *Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Notification.SubjectID() == "" {
				continue
			}
			r.Record(ev.Notification)
		}
	}
}
