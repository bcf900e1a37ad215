package realtime

import (
	"sort"
	"time"

	"github.com/hitoshi/bento/internal/model"
)

// MergeNotifications は履歴(pull)とプッシュで届いた通知を1つの表示用リストにまとめる。
// (subjectId, timestamp) が同じ通知は1件にし、新しい順に並べる。
// 同じキーの通知は先に現れたもの(履歴側)を残す。
func MergeNotifications(history, pushed []model.LowStockNotification) []model.LowStockNotification {
	seen := make(map[model.NotificationKey]struct{}, len(history)+len(pushed))
	out := make([]model.LowStockNotification, 0, len(history)+len(pushed))
	for _, list := range [][]model.LowStockNotification{history, pushed} {
		for _, n := range list {
			k := n.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, n)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i].Date, out[j].Date)
	})
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// newer はaがbより新しいかを返す。
// 解釈できない時刻は解釈できる時刻よりも後ろに並べ、その中では文字列として比較する。
func newer(a, b string) bool {
	ta, okA := parseTimestamp(a)
	tb, okB := parseTimestamp(b)
	switch {
	case okA && okB:
		return ta.After(tb)
	case okA != okB:
		return okA
	default:
		return a > b
	}
}
