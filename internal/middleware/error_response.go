package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bento/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteError はセッションとリソース呼び出しのエラーを統一フォーマットに変換して書き込む。
// リソースAPIの4xxはステータスを引き継ぎ、5xxと通信失敗は502 Bad Gatewayにする。
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrAuthRefreshFailed):
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
	case errors.Is(err, model.ErrUnauthenticated):
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
	case errors.Is(err, model.ErrInvalidFilter):
		WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidFilterError(err.Error()))
	case errors.Is(err, model.ErrLoginStateMismatch):
		WriteErrorResponse(w, http.StatusBadRequest, model.NewLoginStateInvalidError())
	default:
		rf, ok := model.AsRequestFailed(err)
		if !ok {
			slog.Error("リクエストの処理中にエラーが発生しました", slog.String("error", err.Error()))
			WriteInternalServerError(w)
			return
		}
		status := rf.Status
		if status == 0 || status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		WriteErrorResponse(w, status, model.NewRequestFailedAPIError(rf))
	}
}
