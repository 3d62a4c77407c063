package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
)

// HealthChecker はヘルスチェックで使用するデータストアの疎通確認インターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
// NewRouterで/auth配下にマウントされる。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config)

	// OAuthフロー
	r.Get("/google/login", h.Login)
	r.Get("/google/callback", h.Callback)

	// セッション管理
	r.Post("/logout", h.Logout)
	r.Get("/me", h.Me)

	return r
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// インフラ依存
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HTTPMetrics       middleware.HTTPStatusRecorder
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記事
	PostService PostServiceInterface

	// コメント
	CommentService CommentServiceInterface

	// ニュースレター購読
	SubscriberService SubscriberServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//	→ (公開ルート) RateLimit(General) → OptionalSession
//	→ (管理ルート) AdminSession → RateLimit(General) → CSRF
//
// 認証ルート（/auth/*）とヘルスチェック・メトリクスはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}

	postHandler := NewPostHandler(deps.PostService)
	commentHandler := NewCommentHandler(deps.CommentService)
	subscriberHandler := NewSubscriberHandler(deps.SubscriberService)

	// --- 運用エンドポイント ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証ルート（OAuthフロー） ---

	r.Mount("/auth", SetupAuthRoutes(deps.AuthService, deps.AuthConfig))

	// --- 公開ルート ---
	// ミドルウェアスタック: RateLimit(General) → OptionalSession
	// セッションがあれば投稿者情報と未公開記事の閲覧可否に反映される。
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder, deps.UserFinder))

		r.Get("/api/posts", postHandler.ListPosts)
		r.Get("/api/posts/latest", postHandler.LatestPosts)
		r.Get("/api/posts/search", postHandler.SearchPosts)
		r.Get("/api/posts/{slug}", postHandler.GetPost)

		r.Get("/api/posts/{slug}/comments", commentHandler.ListComments)
		// コメント投稿には専用レート制限を追加で適用する
		r.With(deps.RateLimiter.CommentMiddleware()).
			Post("/api/posts/{slug}/comments", commentHandler.AddComment)

		r.Post("/api/newsletter/subscribe", subscriberHandler.Subscribe)
		r.Post("/api/newsletter/unsubscribe", subscriberHandler.Unsubscribe)
	})

	// --- 管理ルート ---
	// ミドルウェアスタック: AdminSession → RateLimit(General) → CSRF
	// 管理者フラグはリクエストごとにusersレコードを参照する。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAdminMiddleware(deps.SessionFinder, deps.UserFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Post("/api/posts", postHandler.CreatePost)
		r.Put("/api/posts/{slug}", postHandler.UpdatePost)
		r.Delete("/api/posts/{slug}", postHandler.DeletePost)

		r.Patch("/api/posts/{slug}/comments/{commentId}", commentHandler.SetApproval)
		r.Delete("/api/posts/{slug}/comments/{commentId}", commentHandler.DeleteComment)
		r.Get("/api/comments", commentHandler.ListAllComments)

		r.Get("/api/newsletter/subscribers", subscriberHandler.ListSubscribers)
	})

	return r
}

// NewHealthHandler はデータストアの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
