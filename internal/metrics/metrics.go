// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordPostCreated()
	RecordPostDeleted()
	RecordCommentSubmitted()
	RecordCommentModerated(approved bool)
	RecordSubscribed()
	RecordUnsubscribed()
	RecordHTTPStatus(statusCode int)
	RecordImageUploadDuration(seconds float64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	postsCreated     prometheus.Counter
	postsDeleted     prometheus.Counter
	commentsTotal    prometheus.Counter
	commentsModerate *prometheus.CounterVec
	subscribed       prometheus.Counter
	unsubscribed     prometheus.Counter
	httpStatus       *prometheus.CounterVec
	uploadDuration   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		postsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_posts_created_total",
			Help: "作成された記事の合計数",
		}),
		postsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_posts_deleted_total",
			Help: "削除された記事の合計数",
		}),
		commentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_comments_submitted_total",
			Help: "投稿されたコメントの合計数",
		}),
		commentsModerate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_comments_moderated_total",
			Help: "モデレーションされたコメントの合計数",
		}, []string{"decision"}),
		subscribed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_newsletter_subscribed_total",
			Help: "ニュースレター購読登録の合計数",
		}),
		unsubscribed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogman_newsletter_unsubscribed_total",
			Help: "ニュースレター購読解除の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blogman_image_upload_duration_seconds",
			Help:    "アイキャッチ画像アップロードの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.postsCreated,
		c.postsDeleted,
		c.commentsTotal,
		c.commentsModerate,
		c.subscribed,
		c.unsubscribed,
		c.httpStatus,
		c.uploadDuration,
	)

	return c
}

// RecordPostCreated は記事作成を記録する。
func (c *Collector) RecordPostCreated() {
	c.postsCreated.Inc()
}

// RecordPostDeleted は記事削除を記録する。
func (c *Collector) RecordPostDeleted() {
	c.postsDeleted.Inc()
}

// RecordCommentSubmitted はコメント投稿を記録する。
func (c *Collector) RecordCommentSubmitted() {
	c.commentsTotal.Inc()
}

// RecordCommentModerated はコメントのモデレーション結果を記録する。
func (c *Collector) RecordCommentModerated(approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	c.commentsModerate.WithLabelValues(decision).Inc()
}

// RecordSubscribed はニュースレター購読登録を記録する。
func (c *Collector) RecordSubscribed() {
	c.subscribed.Inc()
}

// RecordUnsubscribed はニュースレター購読解除を記録する。
func (c *Collector) RecordUnsubscribed() {
	c.unsubscribed.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordImageUploadDuration は画像アップロードの所要時間を記録する。
func (c *Collector) RecordImageUploadDuration(seconds float64) {
	c.uploadDuration.Observe(seconds)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
