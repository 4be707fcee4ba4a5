// Package auth はユーザー登録・ログイン・ゲストログインとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/snapsolve/internal/model"
	"github.com/hitoshi/snapsolve/internal/repository"
)

// maxGuestAttempts はゲストユーザー名が衝突した場合の最大試行回数。
const maxGuestAttempts = 3

// Recorder は認証イベントを記録するインターフェース。
type Recorder interface {
	RecordAuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string, string) {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	sessionStore repository.SessionStore
	config       ServiceConfig
	recorder     Recorder
	now          func() time.Time
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(
	userRepo repository.UserRepository,
	sessionStore repository.SessionStore,
	config ServiceConfig,
	recorder Recorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		userRepo:     userRepo,
		sessionStore: sessionStore,
		config:       config,
		recorder:     recorder,
		now:          time.Now,
	}
}

// Register はユーザーを登録し、セッションを発行する。
// ユーザー名が既に存在する場合はUSERNAME_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	if username == "" || password == "" {
		return nil, nil, model.NewValidationError("Username and password are required")
	}
	if model.IsGuestUsername(username) {
		return nil, nil, model.NewValidationError("Username is reserved")
	}
	if len(password) > MaxPasswordBytes {
		return nil, nil, model.NewValidationError(fmt.Sprintf("Password must be at most %d bytes", MaxPasswordBytes))
	}

	hash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		s.recorder.RecordAuthEvent("register", "error")
		return nil, nil, err
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			s.recorder.RecordAuthEvent("register", "conflict")
			return nil, nil, model.NewUsernameTakenError()
		}
		s.recorder.RecordAuthEvent("register", "error")
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		s.recorder.RecordAuthEvent("register", "error")
		return nil, nil, err
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	s.recorder.RecordAuthEvent("register", "success")
	return user, session, nil
}

// Login はユーザー名とパスワードを検証し、セッションを発行する。
// ユーザー不在・パスワード不一致・ゲストアカウントはいずれもLOGIN_FAILEDとなる。
func (s *Service) Login(ctx context.Context, username, password string) (*model.User, *model.Session, error) {
	if len(password) > MaxPasswordBytes {
		// 登録時に同じ上限で拒否しているため一致するユーザーは存在しない
		s.recorder.RecordAuthEvent("login", "failure")
		return nil, nil, model.NewLoginFailedError()
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		s.recorder.RecordAuthEvent("login", "error")
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil || user.IsGuest || user.PasswordHash == "" {
		// 存在しないユーザーでも比較処理を行い応答時間を揃える
		_, _ = CheckPassword(string(dummyHash), password)
		s.recorder.RecordAuthEvent("login", "failure")
		return nil, nil, model.NewLoginFailedError()
	}

	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		s.recorder.RecordAuthEvent("login", "error")
		return nil, nil, err
	}
	if !ok {
		slog.Warn("login failed", slog.String("username", username))
		s.recorder.RecordAuthEvent("login", "failure")
		return nil, nil, model.NewLoginFailedError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		s.recorder.RecordAuthEvent("login", "error")
		return nil, nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	s.recorder.RecordAuthEvent("login", "success")
	return user, session, nil
}

// GuestLogin はゲストユーザーを作成し、セッションを発行する。
// パスワードは設定されないため、ゲストはユーザー名でログインできない。
func (s *Service) GuestLogin(ctx context.Context) (*model.User, *model.Session, error) {
	var user *model.User
	for attempt := 1; ; attempt++ {
		username, err := GenerateGuestUsername(s.now())
		if err != nil {
			s.recorder.RecordAuthEvent("guest", "error")
			return nil, nil, err
		}

		candidate := &model.User{
			ID:        uuid.New().String(),
			Username:  username,
			IsGuest:   true,
			CreatedAt: s.now(),
		}
		err = s.userRepo.Create(ctx, candidate)
		if err == nil {
			user = candidate
			break
		}
		if !errors.Is(err, repository.ErrDuplicateUsername) || attempt >= maxGuestAttempts {
			s.recorder.RecordAuthEvent("guest", "error")
			return nil, nil, fmt.Errorf("failed to create guest user: %w", err)
		}
		slog.Warn("guest username collision, retrying", slog.Int("attempt", attempt))
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		s.recorder.RecordAuthEvent("guest", "error")
		return nil, nil, err
	}

	slog.Info("guest created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	s.recorder.RecordAuthEvent("guest", "success")
	return user, session, nil
}

// Logout はセッションを破棄する。
// セッションIDが空、または既に破棄済みの場合もエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionStore.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.recorder.RecordAuthEvent("logout", "success")
	return nil
}

// GetCurrentUser はセッションに紐づくユーザーを返す。
// セッションが無い・期限切れ・ユーザー不在の場合はnil, nilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionStore.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionStore.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
