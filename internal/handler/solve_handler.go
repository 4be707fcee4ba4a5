package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/snapsolve/internal/middleware"
	"github.com/hitoshi/snapsolve/internal/model"
	"github.com/hitoshi/snapsolve/internal/solver"
)

// SolveServiceInterface は解答ハンドラーが必要とするサービスインターフェース。
type SolveServiceInterface interface {
	Solve(ctx context.Context, userID string, req solver.Request) (string, error)
	History(ctx context.Context, userID string, limit int) ([]*model.Question, error)
}

// solveResponse は POST /api/solve のレスポンス。
type solveResponse struct {
	Solution string `json:"solution"`
}

// questionResponse は履歴1件のAPIレスポンス。
type questionResponse struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	ImageURL   *string   `json:"imageUrl"`
	Subject    string    `json:"subject"`
	ClassLevel string    `json:"classLevel"`
	Solution   string    `json:"solution"`
	CreatedAt  time.Time `json:"createdAt"`
}

// questionListResponse は GET /api/questions のレスポンス。
type questionListResponse struct {
	Questions []questionResponse `json:"questions"`
}

// SolveHandler は解答生成と履歴参照のHTTPハンドラー。
type SolveHandler struct {
	service      SolveServiceInterface
	maxBodyBytes int64
}

// NewSolveHandler はSolveHandlerを生成する。
func NewSolveHandler(service SolveServiceInterface, maxBodyBytes int64) *SolveHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 8 << 20
	}
	return &SolveHandler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
	}
}

// Solve は問題の解答を生成する。
// POST /api/solve
func (h *SolveHandler) Solve(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req solveRequest
	if apiErr := decodeRequest(w, r, h.maxBodyBytes, &req, false); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	solution, err := h.service.Solve(r.Context(), userID, solver.Request{
		Content:    req.Content,
		Image:      req.Image,
		Subject:    req.Subject,
		ClassLevel: req.ClassLevel,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, solveResponse{Solution: solution})
}

// ListQuestions はログインユーザーの履歴を新しい順に返す。
// GET /api/questions?limit=N
func (h *SolveHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	questions, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := questionListResponse{Questions: make([]questionResponse, 0, len(questions))}
	for _, q := range questions {
		resp.Questions = append(resp.Questions, questionResponse{
			ID:         q.ID,
			Content:    q.Content,
			ImageURL:   q.ImageURL,
			Subject:    q.Subject,
			ClassLevel: q.ClassLevel,
			Solution:   q.Solution,
			CreatedAt:  q.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
