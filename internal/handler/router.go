package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/snapsolve/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler             // nilの場合は/metricsを公開しない
	StatusRecorder middleware.StatusRecorder // nilの場合はステータスを記録しない
	Logger         *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	SessionCookie     *middleware.SessionCookie
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// サービス
	AuthService  AuthServiceInterface
	SolveService SolveServiceInterface
	MaxBodyBytes int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// 認証エンドポイントにはIP単位のレート制限、/api/solve と /api/questions には
// Session → RateLimit(General) を適用し、/api/solve にはさらに解答専用の制限を加える。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionCookie)
	solveHandler := NewSolveHandler(deps.SolveService, deps.MaxBodyBytes)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/guest-login", authHandler.GuestLogin)
		})
		r.Post("/logout", authHandler.Logout)
		r.Get("/user", authHandler.Me)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.SessionCookie))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.With(deps.RateLimiter.SolveMiddleware()).Post("/solve", solveHandler.Solve)
			r.Get("/questions", solveHandler.ListQuestions)
		})
	})

	return r
}
