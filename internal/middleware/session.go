// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/hitoshi/snapsolve/internal/model"
)

// SessionCookieName はセッションCookieの名前。
const SessionCookieName = "snapsolve_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var userIDContextKey = contextKey("user_id")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionStoreの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	MaxAge int // 秒
	Secure bool
	Domain string
}

// SessionCookie はセッションIDをHMAC署名付きCookieとして読み書きする。
// 署名が一致しないCookieは無いものとして扱う。
type SessionCookie struct {
	codec  *securecookie.SecureCookie
	config CookieConfig
}

// NewSessionCookie はSessionCookieを生成する。secretは署名鍵に使う。
func NewSessionCookie(secret string, config CookieConfig) *SessionCookie {
	codec := securecookie.New([]byte(secret), nil)
	codec.MaxAge(config.MaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &SessionCookie{codec: codec, config: config}
}

// Set はセッションIDを署名してCookieに書き込む。
func (c *SessionCookie) Set(w http.ResponseWriter, sessionID string) error {
	encoded, err := c.codec.Encode(SessionCookieName, sessionID)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   c.config.MaxAge,
		Expires:  time.Now().Add(time.Duration(c.config.MaxAge) * time.Second),
		Secure:   c.config.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear はセッションCookieを削除する。
func (c *SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   c.config.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionID はリクエストのCookieからセッションIDを取り出す。
// Cookieが無い、または署名が不正な場合は空文字列を返す。
func (c *SessionCookie) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	var sessionID string
	if err := c.codec.Decode(SessionCookieName, cookie.Value, &sessionID); err != nil {
		slog.Debug("invalid session cookie", slog.String("error", err.Error()))
		return ""
	}
	return sessionID
}

// NewSessionMiddleware はセッションCookieを検証し、
// 認証済みユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401を返し、後続のハンドラーは呼ばれない。
func NewSessionMiddleware(finder SessionFinder, cookie *SessionCookie) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := cookie.SessionID(r)
			if sessionID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := finder.FindByID(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to find session", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			setRequestUserID(r.Context(), session.UserID)
			ctx := context.WithValue(r.Context(), userIDContextKey, session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
