package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/snapsolve/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。値はすべて1分あたりのリクエスト数。
type RateLimiterConfig struct {
	GeneralPerMinute int           // 認証済みAPI全般（ユーザー単位）
	SolvePerMinute   int           // 解答生成（ユーザー単位）
	AuthPerMinute    int           // ログイン・登録・ゲスト作成（クライアントIP単位）
	CleanupInterval  time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralPerMinute: 120,
		SolvePerMinute:   10,
		AuthPerMinute:    20,
		CleanupInterval:  5 * time.Minute,
	}
}

// keyedEntry はキーごとのリミッターと最終アクセス時刻を保持する。
type keyedEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// keyedLimiter はキー（ユーザーIDまたはIP）ごとにトークンバケットを管理する。
type keyedLimiter struct {
	name  string
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func newKeyedLimiter(name string, perMinute int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &keyedLimiter{
		name:    name,
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		entries: make(map[string]*keyedEntry),
	}
}

func (kl *keyedLimiter) allow(key string) bool {
	kl.mu.Lock()
	e, ok := kl.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.entries[key] = e
	}
	e.lastAccess = time.Now()
	kl.mu.Unlock()

	return e.limiter.Allow()
}

func (kl *keyedLimiter) count() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.entries)
}

// evict は最終アクセスがttlより古いエントリを削除する。
func (kl *keyedLimiter) evict(now time.Time, ttl time.Duration) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	for key, e := range kl.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(kl.entries, key)
		}
	}
}

// retryAfter は1トークンが補充されるまでの秒数を返す。
func (kl *keyedLimiter) retryAfter() int {
	sec := int(math.Ceil(1.0 / float64(kl.limit)))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// RateLimiter はAPI全般、解答生成、認証エンドポイントのレート制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *keyedLimiter
	solve   *keyedLimiter
	auth    *keyedLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		general: newKeyedLimiter("general", config.GeneralPerMinute),
		solve:   newKeyedLimiter("solve", config.SolvePerMinute),
		auth:    newKeyedLimiter("auth", config.AuthPerMinute),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware は認証済みAPI全般のユーザー単位レート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.byUser(rl.general)
}

// SolveMiddleware は解答生成のユーザー単位レート制限ミドルウェアを返す。
// API全般の制限とは独立に動作する。
func (rl *RateLimiter) SolveMiddleware() func(next http.Handler) http.Handler {
	return rl.byUser(rl.solve)
}

// AuthMiddleware は認証エンドポイントのクライアントIP単位レート制限ミドルウェアを返す。
// セッションを持たないリクエストが対象のため、IPをキーにする。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.auth.allow(ip) {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", rl.auth.name),
				)
				writeRateLimitResponse(w, rl.auth.retryAfter())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) byUser(kl *keyedLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !kl.allow(userID) {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", kl.name),
				)
				writeRateLimitResponse(w, kl.retryAfter())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCounts は種別ごとの管理中エントリ数を返す。テスト用。
func (rl *RateLimiter) LimiterCounts() (general, solve, auth int) {
	return rl.general.count(), rl.solve.count(), rl.auth.count()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evict(now, ttl)
	rl.solve.evict(now, ttl)
	rl.auth.evict(now, ttl)
}

// clientIP はRemoteAddrからIPを取り出す。
// プロキシ配下ではchiのRealIPミドルウェアで事前にRemoteAddrを書き換える。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, retryAfterSec int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
