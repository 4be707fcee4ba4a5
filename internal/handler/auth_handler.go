// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/snapsolve/internal/middleware"
	"github.com/hitoshi/snapsolve/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, username, password string) (*model.User, *model.Session, error)
	Login(ctx context.Context, username, password string) (*model.User, *model.Session, error)
	GuestLogin(ctx context.Context) (*model.User, *model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	IsGuest   bool      `json:"isGuest"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:        u.ID,
		Username:  u.Username,
		IsGuest:   u.IsGuest,
		CreatedAt: u.CreatedAt,
	}
}

// messageResponse はメッセージのみのAPIレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// AuthHandler はユーザー登録・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookie  *middleware.SessionCookie
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookie *middleware.SessionCookie) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookie:  cookie,
	}
}

// Register はユーザーを登録し、セッションCookieを発行する。
// POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := decodeRequest(w, r, maxAuthBodyBytes, &req, false); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, session, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.respondWithSession(w, r, http.StatusCreated, user, session)
}

// Login はユーザー名とパスワードで認証し、セッションCookieを発行する。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := decodeRequest(w, r, maxAuthBodyBytes, &req, false); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.respondWithSession(w, r, http.StatusOK, user, session)
}

// GuestLogin はゲストユーザーを作成し、セッションCookieを発行する。
// POST /api/guest-login
func (h *AuthHandler) GuestLogin(w http.ResponseWriter, r *http.Request) {
	var req guestLoginRequest
	if apiErr := decodeRequest(w, r, maxAuthBodyBytes, &req, true); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, session, err := h.service.GuestLogin(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.respondWithSession(w, r, http.StatusOK, user, session)
}

// Logout はセッションを破棄し、Cookieを削除する。
// セッションが無い場合も成功として扱う。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := h.cookie.SessionID(r); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// 破棄に失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	h.cookie.Clear(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// Me は現在のログインユーザーを返す。未ログインの場合はnullを返す。
// GET /api/user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	var user *model.User
	if sessionID := h.cookie.SessionID(r); sessionID != "" {
		u, err := h.service.GetCurrentUser(r.Context(), sessionID)
		if err != nil {
			slog.Error("failed to get current user", slog.String("error", err.Error()))
		} else {
			user = u
		}
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// respondWithSession はセッションCookieを設定してユーザー情報を返す。
func (h *AuthHandler) respondWithSession(w http.ResponseWriter, r *http.Request, status int, user *model.User, session *model.Session) {
	if err := h.cookie.Set(w, session.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, status, toUserResponse(user))
}
