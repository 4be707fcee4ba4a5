package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/snapsolve/internal/middleware"
	"github.com/hitoshi/snapsolve/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, username, password string) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, username, password string) (*model.User, *model.Session, error)
	guestLoginFn     func(ctx context.Context) (*model.User, *model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, password)
	}
	return nil, nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, nil, errors.New("not implemented")
}

func (m *mockAuthService) GuestLogin(ctx context.Context) (*model.User, *model.Session, error) {
	if m.guestLoginFn != nil {
		return m.guestLoginFn(ctx)
	}
	return nil, nil, errors.New("not implemented")
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

const testSecret = "test-session-secret-32bytes-long!"

func newTestCookie() *middleware.SessionCookie {
	return middleware.NewSessionCookie(testSecret, middleware.CookieConfig{MaxAge: 3600})
}

var testUser = &model.User{
	ID:           "user-1",
	Username:     "alice",
	PasswordHash: "$2a$10$secret-hash-value",
	CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
}

var testSession = &model.Session{ID: "session-abc", UserID: "user-1"}

// withSessionCookie はセッションIDを署名したCookieをリクエストに付与する。
func withSessionCookie(t *testing.T, c *middleware.SessionCookie, req *http.Request, sessionID string) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := c.Set(rec, sessionID); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}
	return req
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func assertErrorBody(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) middleware.ErrorResponseBody {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body=%s)", rec.Code, wantStatus, rec.Body.String())
	}
	var body middleware.ErrorResponseBody
	decodeBody(t, rec, &body)
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
	if body.Message == "" {
		t.Error("error body must carry a message")
	}
	return body
}

// --- Register ---

func TestAuthHandler_Register_Success(t *testing.T) {
	var gotUser, gotPass string
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
			gotUser, gotPass = username, password
			return testUser, testSession, nil
		},
	}
	cookie := newTestCookie()
	h := NewAuthHandler(svc, cookie)

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(`{"username":"alice","password":"pw123"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body=%s)", rec.Code, rec.Body.String())
	}
	if gotUser != "alice" || gotPass != "pw123" {
		t.Errorf("service got %q/%q", gotUser, gotPass)
	}

	c := findCookie(rec.Result(), middleware.SessionCookieName)
	if c == nil {
		t.Fatal("session cookie not set")
	}
	if !c.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	// 署名済みCookieからセッションIDが復元できること
	replay := httptest.NewRequest(http.MethodGet, "/", nil)
	replay.AddCookie(c)
	if id := cookie.SessionID(replay); id != testSession.ID {
		t.Errorf("cookie session id = %q, want %q", id, testSession.ID)
	}

	body := rec.Body.String()
	if strings.Contains(body, "hash") || strings.Contains(body, testUser.PasswordHash) {
		t.Errorf("response must not expose password hash: %s", body)
	}
	var resp map[string]any
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["id"] != "user-1" || resp["username"] != "alice" || resp["isGuest"] != false {
		t.Errorf("unexpected user response: %v", resp)
	}
}

func TestAuthHandler_Register_UsernameTaken_Returns400(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewUsernameTakenError()
		},
	}
	h := NewAuthHandler(svc, newTestCookie())

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(`{"username":"alice","password":"pw"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	body := assertErrorBody(t, rec, http.StatusBadRequest, model.ErrCodeUsernameTaken)
	if body.Message != "Username already exists" {
		t.Errorf("message = %q", body.Message)
	}
	if findCookie(rec.Result(), middleware.SessionCookieName) != nil {
		t.Error("no cookie should be set on failure")
	}
}

func TestAuthHandler_Register_InvalidBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"malformed json", `{"username":`},
		{"missing password", `{"username":"alice"}`},
		{"empty username", `{"username":"","password":"pw"}`},
		{"unknown field", `{"username":"alice","password":"pw","admin":true}`},
		{"wrong type", `{"username":123,"password":"pw"}`},
		{"username with space", `{"username":"al ice","password":"pw"}`},
		{"trailing data", `{"username":"alice","password":"pw"}{}`},
		{"array body", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
					called = true
					return testUser, testSession, nil
				},
			}
			h := NewAuthHandler(svc, newTestCookie())

			req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Register(rec, req)

			assertErrorBody(t, rec, http.StatusBadRequest, model.ErrCodeValidation)
			if called {
				t.Error("service must not be called for invalid input")
			}
		})
	}
}

func TestAuthHandler_Register_InternalError_Returns500(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
			return nil, nil, errors.New("pq: connection refused")
		},
	}
	h := NewAuthHandler(svc, newTestCookie())

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(`{"username":"alice","password":"pw"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assertErrorBody(t, rec, http.StatusInternalServerError, model.ErrCodeInternal)
	if strings.Contains(rec.Body.String(), "pq:") {
		t.Errorf("internal error detail leaked: %s", rec.Body.String())
	}
}

// --- Login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
			return testUser, testSession, nil
		},
	}
	h := NewAuthHandler(svc, newTestCookie())

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"alice","password":"pw123"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if findCookie(rec.Result(), middleware.SessionCookieName) == nil {
		t.Error("session cookie not set")
	}
	var resp userResponse
	decodeBody(t, rec, &resp)
	if resp.ID != "user-1" || resp.Username != "alice" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAuthHandler_Login_Failed_Returns401(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
			return nil, nil, model.NewLoginFailedError()
		},
	}
	h := NewAuthHandler(svc, newTestCookie())

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"alice","password":"wrong"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assertErrorBody(t, rec, http.StatusUnauthorized, model.ErrCodeLoginFailed)
}

// --- GuestLogin ---

func TestAuthHandler_GuestLogin_AcceptsEmptyBodyAndEmptyObject(t *testing.T) {
	for _, body := range []string{"", "{}"} {
		t.Run("body="+body, func(t *testing.T) {
			guest := &model.User{ID: "g-1", Username: "guest_1_abcd1234", IsGuest: true}
			svc := &mockAuthService{
				guestLoginFn: func(ctx context.Context) (*model.User, *model.Session, error) {
					return guest, &model.Session{ID: "s-g", UserID: "g-1"}, nil
				},
			}
			h := NewAuthHandler(svc, newTestCookie())

			req := httptest.NewRequest(http.MethodPost, "/api/guest-login", strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.GuestLogin(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
			}
			var resp userResponse
			decodeBody(t, rec, &resp)
			if !resp.IsGuest || resp.Username != "guest_1_abcd1234" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestAuthHandler_GuestLogin_UnknownField_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, newTestCookie())

	req := httptest.NewRequest(http.MethodPost, "/api/guest-login", strings.NewReader(`{"username":"x"}`))
	rec := httptest.NewRecorder()
	h.GuestLogin(rec, req)

	assertErrorBody(t, rec, http.StatusBadRequest, model.ErrCodeValidation)
}

// --- Logout ---

func TestAuthHandler_Logout_DeletesSessionAndClearsCookie(t *testing.T) {
	var deleted string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			deleted = sessionID
			return nil
		},
	}
	cookie := newTestCookie()
	h := NewAuthHandler(svc, cookie)

	req := withSessionCookie(t, cookie, httptest.NewRequest(http.MethodPost, "/api/logout", nil), "session-abc")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if deleted != "session-abc" {
		t.Errorf("deleted session = %q", deleted)
	}
	c := findCookie(rec.Result(), middleware.SessionCookieName)
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("cookie should be cleared, got %+v", c)
	}
	var resp messageResponse
	decodeBody(t, rec, &resp)
	if resp.Message != "Logged out" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestAuthHandler_Logout_WithoutSession_Succeeds(t *testing.T) {
	called := false
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			called = true
			return nil
		},
	}
	h := NewAuthHandler(svc, newTestCookie())

	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/logout", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if called {
		t.Error("service should not be called without a session")
	}
}

func TestAuthHandler_Logout_StoreError_StillSucceeds(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			return errors.New("db down")
		},
	}
	cookie := newTestCookie()
	h := NewAuthHandler(svc, cookie)

	req := withSessionCookie(t, cookie, httptest.NewRequest(http.MethodPost, "/api/logout", nil), "session-abc")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if findCookie(rec.Result(), middleware.SessionCookieName) == nil {
		t.Error("cookie should be cleared even when the store fails")
	}
}

// --- Me ---

func TestAuthHandler_Me(t *testing.T) {
	tests := []struct {
		name       string
		sessionID  string
		fn         func(ctx context.Context, sessionID string) (*model.User, error)
		wantNull   bool
		wantUserID string
	}{
		{
			name:       "logged in",
			sessionID:  "session-abc",
			fn:         func(ctx context.Context, id string) (*model.User, error) { return testUser, nil },
			wantUserID: "user-1",
		},
		{
			name:     "no cookie",
			wantNull: true,
		},
		{
			name:      "expired session",
			sessionID: "expired",
			fn:        func(ctx context.Context, id string) (*model.User, error) { return nil, nil },
			wantNull:  true,
		},
		{
			name:      "store error",
			sessionID: "session-abc",
			fn:        func(ctx context.Context, id string) (*model.User, error) { return nil, errors.New("db down") },
			wantNull:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookie := newTestCookie()
			h := NewAuthHandler(&mockAuthService{getCurrentUserFn: tt.fn}, cookie)

			req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
			if tt.sessionID != "" {
				req = withSessionCookie(t, cookie, req, tt.sessionID)
			}
			rec := httptest.NewRecorder()
			h.Me(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if tt.wantNull {
				if got := strings.TrimSpace(rec.Body.String()); got != "null" {
					t.Errorf("body = %q, want null", got)
				}
				return
			}
			var resp userResponse
			decodeBody(t, rec, &resp)
			if resp.ID != tt.wantUserID {
				t.Errorf("id = %q, want %q", resp.ID, tt.wantUserID)
			}
		})
	}
}

func TestAuthHandler_Me_TamperedCookie_ReturnsNull(t *testing.T) {
	called := false
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, id string) (*model.User, error) {
			called = true
			return testUser, nil
		},
	}
	h := NewAuthHandler(svc, newTestCookie())

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-abc"})
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if got := strings.TrimSpace(rec.Body.String()); got != "null" {
		t.Errorf("body = %q, want null", got)
	}
	if called {
		t.Error("unsigned cookie must not reach the service")
	}
}
