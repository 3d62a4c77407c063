package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/post"
)

// maxMultipartMemory はマルチパートフォーム解析時のメモリ上限。
const maxMultipartMemory = 32 << 20 // 32MB

// PostServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	// Create は新しい記事を作成する。
	Create(ctx context.Context, input post.CreateInput) (*model.Post, error)
	// Update はスラッグで指定した記事を更新する。
	Update(ctx context.Context, slug string, input post.UpdateInput) (*model.Post, error)
	// Delete はスラッグで指定した記事を削除する。
	Delete(ctx context.Context, slug string) error
	// Get はスラッグで記事を1件取得する。
	Get(ctx context.Context, slug string, includeUnpublished bool) (*model.Post, error)
	// List は記事一覧をページネーション付きで返す。
	List(ctx context.Context, input post.ListInput) (*post.ListResult, error)
	// Latest は公開済み記事の最新N件を返す。
	Latest(ctx context.Context, category string, limit int) ([]*model.Post, error)
	// Search は公開済み記事を部分一致検索する。
	Search(ctx context.Context, input post.SearchInput) (*post.SearchResult, error)
}

// PostHandler は記事管理のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// --- レスポンス型 ---

// featuredImageResponse は注目画像のAPIレスポンス。
type featuredImageResponse struct {
	URL          string `json:"url"`
	FileID       string `json:"file_id"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// postResponse は記事のAPIレスポンス。
type postResponse struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Slug        string                 `json:"slug"`
	Content     string                 `json:"content"` // サニタイズ済みHTML
	Excerpt     string                 `json:"excerpt"`
	Category    string                 `json:"category"`
	Author      string                 `json:"author"`
	Tags        []string               `json:"tags"`
	Published   bool                   `json:"published"`
	PublishedAt *time.Time             `json:"published_at,omitempty"`
	Image       *featuredImageResponse `json:"image,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// postListResponse は記事一覧のレスポンス。
type postListResponse struct {
	Posts []postResponse `json:"posts"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int            `json:"total"`
	Pages int            `json:"pages"`
}

// postSearchResponse は記事検索のレスポンス。
type postSearchResponse struct {
	Posts   []postResponse `json:"posts"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
}

// ListPosts は公開済み記事の一覧を取得する。
// GET /api/posts?category=tech&page=1&limit=10
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.List(r.Context(), post.ListInput{
		Category: q.Get("category"),
		Page:     parseIntParam(q.Get("page"), 1),
		Limit:    parseIntParam(q.Get("limit"), 10),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(postListResponse{
		Posts: toPostResponses(result.Posts),
		Page:  result.Page,
		Limit: result.Limit,
		Total: result.Total,
		Pages: result.Pages,
	})
}

// LatestPosts は公開済み記事の最新N件を取得する。
// GET /api/posts/latest?category=tech&limit=5
func (h *PostHandler) LatestPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	posts, err := h.service.Latest(r.Context(), q.Get("category"), parseIntParam(q.Get("limit"), 5))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]postResponse{
		"posts": toPostResponses(posts),
	})
}

// SearchPosts は公開済み記事を部分一致検索する。
// GET /api/posts/search?term=go&category=tech&sort=desc&limit=10&startIndex=0
func (h *PostHandler) SearchPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.Search(r.Context(), post.SearchInput{
		Term:       q.Get("term"),
		Category:   q.Get("category"),
		Sort:       model.PostSort(q.Get("sort")),
		Limit:      parseIntParam(q.Get("limit"), 10),
		StartIndex: parseIntParam(q.Get("startIndex"), 0),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(postSearchResponse{
		Posts:   toPostResponses(result.Posts),
		Total:   result.Total,
		HasMore: result.HasMore,
	})
}

// GetPost はスラッグで記事を1件取得する。
// 管理者セッションの場合は未公開記事も取得できる。
// GET /api/posts/:slug
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	user := middleware.UserFromContext(r.Context())
	includeUnpublished := user != nil && user.IsAdmin

	p, err := h.service.Get(r.Context(), slug, includeUnpublished)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(p))
}

// CreatePost は記事を作成する。
// マルチパートフォームで受け付け、imageフィールドは任意の注目画像。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("マルチパートフォームの解析に失敗しました。"))
		return
	}

	image, err := readImageUpload(r)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("画像ファイルの読み込みに失敗しました。"))
		return
	}

	created, err := h.service.Create(r.Context(), post.CreateInput{
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		Category: r.FormValue("category"),
		Author:   r.FormValue("author"),
		Tags:     parseTags(r.Form["tags"]),
		Excerpt:  r.FormValue("excerpt"),
		Image:    image,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toPostResponse(created))
}

// UpdatePost はスラッグで指定した記事を更新する。
// PUT /api/posts/:slug
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("マルチパートフォームの解析に失敗しました。"))
		return
	}

	image, err := readImageUpload(r)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("画像ファイルの読み込みに失敗しました。"))
		return
	}

	input := post.UpdateInput{
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		Category: r.FormValue("category"),
		Author:   r.FormValue("author"),
		Tags:     parseTags(r.Form["tags"]),
		Excerpt:  r.FormValue("excerpt"),
		Image:    image,
	}

	// publishedフィールドが省略された場合は現在の公開状態を維持する
	if v := r.FormValue("published"); v != "" {
		published, err := strconv.ParseBool(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("publishedはtrueまたはfalseを指定してください。"))
			return
		}
		input.Published = &published
	}

	updated, err := h.service.Update(r.Context(), slug, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(updated))
}

// DeletePost はスラッグで指定した記事を削除する。
// DELETE /api/posts/:slug
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.service.Delete(r.Context(), slug); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// readImageUpload はマルチパートフォームのimageフィールドを読み込む。
// フィールドが存在しない場合はnilを返す。
func readImageUpload(r *http.Request) (*post.ImageUpload, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	return &post.ImageUpload{
		FileName: header.Filename,
		Data:     data,
	}, nil
}

// parseTags はフォームのtags値をタグのスライスに変換する。
// 繰り返しフィールドとカンマ区切りの両方を受け付ける。
func parseTags(values []string) []string {
	var tags []string
	for _, v := range values {
		for _, tag := range strings.Split(v, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// parseIntParam はクエリパラメータを整数に変換する。変換できない場合はデフォルト値を返す。
func parseIntParam(value string, defaultVal int) int {
	if value == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal
	}
	return n
}

// toPostResponse はmodel.PostからAPIレスポンスに変換する。
func toPostResponse(p *model.Post) postResponse {
	resp := postResponse{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Content:     p.Content,
		Excerpt:     p.Excerpt,
		Category:    string(p.Category),
		Author:      p.Author,
		Tags:        p.Tags,
		Published:   p.Published,
		PublishedAt: p.PublishedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if p.Image != nil {
		resp.Image = &featuredImageResponse{
			URL:          p.Image.URL,
			FileID:       p.Image.FileID,
			ThumbnailURL: p.Image.ThumbnailURL,
		}
	}
	return resp
}

// toPostResponses はmodel.PostのスライスをAPIレスポンスのスライスに変換する。
func toPostResponses(posts []*model.Post) []postResponse {
	results := make([]postResponse, len(posts))
	for i, p := range posts {
		results[i] = toPostResponse(p)
	}
	return results
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// newInvalidRequestError はリクエスト形式エラーを生成する。
func newInvalidRequestError(message string) *model.APIError {
	return &model.APIError{
		Kind:     model.KindValidation,
		Code:     model.ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "リクエストの形式を確認してください。",
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapErrorKindToHTTPStatus(apiErr.Kind), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapErrorKindToHTTPStatus はエラー種別からHTTPステータスコードにマッピングする。
// コードごとの文字列マッチングではなくKindで分類する。
func mapErrorKindToHTTPStatus(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
