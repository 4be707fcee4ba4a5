// Package solver はAIプロバイダーを使った問題解答と履歴記録を提供する。
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/snapsolve/internal/model"
	"github.com/hitoshi/snapsolve/internal/repository"
)

// 履歴一覧の件数
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// defaultTimeout はTimeout未設定時のプロバイダー呼び出し上限。
const defaultTimeout = 60 * time.Second

// 解答結果の種別（メトリクス用）
const (
	OutcomeSuccess       = "success"
	OutcomeFallback      = "fallback"
	OutcomeProviderError = "provider_error"
	OutcomeTimeout       = "timeout"
	OutcomeHistoryError  = "history_error"
)

// Request は解答リクエスト。
// ContentとImageはどちらも空でもよい。
type Request struct {
	Content    string
	Image      string
	Subject    string
	ClassLevel string
}

// Recorder は解答結果とプロバイダー所要時間を記録する。
type Recorder interface {
	RecordSolve(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordSolve(string, time.Duration) {}

// Service は解答生成と履歴を扱うサービス。
type Service struct {
	provider  Provider
	questions repository.QuestionRepository
	timeout   time.Duration
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
// timeoutが0以下の場合は60秒、recorderがnilの場合は記録しない。
func NewService(provider Provider, questions repository.QuestionRepository, timeout time.Duration, recorder Recorder, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:  provider,
		questions: questions,
		timeout:   timeout,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Solve はプロバイダーを1回呼び出して解答を生成し、履歴を1件記録する。
// プロバイダーの失敗やタイムアウトは内部エラーとなり、履歴は記録しない。
func (s *Service) Solve(ctx context.Context, userID string, req Request) (string, error) {
	if apiErr := model.ValidateSubjectAndClass(req.Subject, req.ClassLevel); apiErr != nil {
		return "", apiErr
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	text, err := s.provider.Complete(callCtx, BuildMessages(req))
	elapsed := s.now().Sub(start)
	if err != nil {
		outcome := OutcomeProviderError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		s.recorder.RecordSolve(outcome, elapsed)
		s.logger.Error("solve provider call failed",
			slog.String("user_id", userID),
			slog.String("subject", req.Subject),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("provider call: %w", err)
	}

	outcome := OutcomeSuccess
	solution := text
	if strings.TrimSpace(solution) == "" {
		outcome = OutcomeFallback
		solution = FallbackSolution
	}

	q := historyRecord(userID, req, solution, s.now())
	if err := s.questions.Create(ctx, q); err != nil {
		s.recorder.RecordSolve(OutcomeHistoryError, elapsed)
		s.logger.Error("failed to record question history",
			slog.String("user_id", userID),
			slog.String("subject", req.Subject),
			slog.String("class_level", req.ClassLevel),
			slog.String("solution", solution),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("record history: %w", err)
	}

	s.recorder.RecordSolve(outcome, elapsed)
	s.logger.Info("solve completed",
		slog.String("user_id", userID),
		slog.String("question_id", q.ID),
		slog.String("subject", req.Subject),
		slog.String("class_level", req.ClassLevel),
		slog.Bool("has_image", req.Image != ""),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return solution, nil
}

// History はユーザーの履歴を新しい順に返す。
// limitが範囲外の場合は既定値または上限に丸める。
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*model.Question, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	questions, err := s.questions.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []*model.Question{}
	}
	return questions, nil
}

// historyRecord は保存用の履歴レコードを組み立てる。
// 画像本体は保存せず、添付の有無だけを残す。
func historyRecord(userID string, req Request, solution string, now time.Time) *model.Question {
	content := req.Content
	var imageURL *string
	if req.Image != "" {
		marker := model.ImageMarker
		imageURL = &marker
		if strings.TrimSpace(content) == "" {
			content = model.ImageOnlyContent
		}
	}

	return &model.Question{
		ID:         uuid.New().String(),
		UserID:     userID,
		Content:    content,
		ImageURL:   imageURL,
		Subject:    req.Subject,
		ClassLevel: req.ClassLevel,
		Solution:   solution,
		CreatedAt:  now,
	}
}
