package handler

import (
	"net/http"

	"github.com/hitoshi/bento/internal/session"
)

// StateReporter は現在のセッション状態を返す。
type StateReporter interface {
	State() session.State
}

// ConnectionReporter はプッシュチャネルの接続状態を返す。realtime.Subscriberが実装する。
type ConnectionReporter interface {
	Connected() bool
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status   string `json:"status"`
	Session  string `json:"session"`
	Realtime string `json:"realtime"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// プロセスが応答できれば常に200を返し、セッションとプッシュチャネルの状態は情報として含める。
// GET /health
func NewHealthHandler(sessions StateReporter, realtime ConnectionReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:   "ok",
			Session:  sessions.State().String(),
			Realtime: "disabled",
		}
		if realtime != nil {
			resp.Realtime = "disconnected"
			if realtime.Connected() {
				resp.Realtime = "connected"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
