package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/snapsolve/internal/middleware"
	"github.com/hitoshi/snapsolve/internal/model"
)

// statusByCode はAPIErrorのコードとHTTPステータスの対応。
var statusByCode = map[string]int{
	model.ErrCodeUnauthorized:  http.StatusUnauthorized,
	model.ErrCodeLoginFailed:   http.StatusUnauthorized,
	model.ErrCodeUsernameTaken: http.StatusBadRequest,
	model.ErrCodeValidation:    http.StatusBadRequest,
	model.ErrCodeRateLimited:   http.StatusTooManyRequests,
	model.ErrCodeInternal:      http.StatusInternalServerError,
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログに残し、500として返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status, ok := statusByCode[apiErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	slog.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
