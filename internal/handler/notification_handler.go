package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/bento/internal/middleware"
	"github.com/hitoshi/bento/internal/model"
	"github.com/hitoshi/bento/internal/realtime"
)

// defaultKeepAlive はイベントストリームのコメント行を送る間隔。
const defaultKeepAlive = 25 * time.Second

// NotificationService は在庫低下通知の履歴取得に必要なサービスインターフェース。
type NotificationService interface {
	List(ctx context.Context, filter model.QueryFilter) (*model.Page[model.LowStockNotification], error)
}

// NotificationHub はプッシュ通知の購読を提供する。realtime.Hubが実装する。
type NotificationHub interface {
	Subscribe(topic string) *realtime.Subscription
}

// RecentNotifications は直近のプッシュ通知を返す。realtime.Recentが実装する。
type RecentNotifications interface {
	Snapshot() []model.LowStockNotification
}

// NotificationHandlerConfig は通知ハンドラーの設定。
type NotificationHandlerConfig struct {
	Topic     string
	KeepAlive time.Duration
}

// NotificationHandler は在庫低下通知のHTTPハンドラー。
type NotificationHandler struct {
	service NotificationService
	hub     NotificationHub
	recent  RecentNotifications
	config  NotificationHandlerConfig
	logger  *slog.Logger
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service NotificationService, hub NotificationHub, recent RecentNotifications, config NotificationHandlerConfig, logger *slog.Logger) *NotificationHandler {
	if config.KeepAlive <= 0 {
		config.KeepAlive = defaultKeepAlive
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandler{
		service: service,
		hub:     hub,
		recent:  recent,
		config:  config,
		logger:  logger,
	}
}

// notificationFeedResponse は履歴とプッシュ通知をまとめた表示用リスト。
type notificationFeedResponse struct {
	Content              []model.LowStockNotification `json:"content"`
	HistoryTotalElements int64                        `json:"historyTotalElements"`
}

// List は在庫低下通知の履歴を1ページ返す。
// GET /api/notifications?page=0&size=10
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePagination(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Feed は履歴の1ページと直近のプッシュ通知を重複なく新しい順にまとめて返す。
// GET /api/notifications/feed?page=0&size=10
func (h *NotificationHandler) Feed(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePagination(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	var pushed []model.LowStockNotification
	if h.recent != nil {
		pushed = h.recent.Snapshot()
	}
	writeJSON(w, http.StatusOK, notificationFeedResponse{
		Content:              realtime.MergeNotifications(page.Content, pushed),
		HistoryTotalElements: page.TotalElements,
	})
}

// Stream はプッシュ通知をServer-Sent Eventsで中継する。
// 接続前に発生した通知は送らない。購読者のバッファが溢れた通知は欠落する。
// GET /api/notifications/stream
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// サーバーのWriteTimeoutで切断されないよう書き込み期限を外す
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.hub.Subscribe(h.config.Topic)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Error("イベントストリームをフラッシュできません", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.config.KeepAlive)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Notification.SubjectID() == "" {
				h.logger.Debug("解釈できない通知はストリームに送りません", slog.String("topic", ev.Topic))
				continue
			}
			data, err := json.Marshal(ev.Notification)
			if err != nil {
				continue
			}
			seq++
			fmt.Fprintf(w, "id: %d\nevent: low-stock\ndata: %s\n\n", seq, data)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
