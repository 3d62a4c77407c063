package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/post"
)

// --- モック定義 ---

type mockPostService struct {
	createFn func(ctx context.Context, input post.CreateInput) (*model.Post, error)
	updateFn func(ctx context.Context, slug string, input post.UpdateInput) (*model.Post, error)
	deleteFn func(ctx context.Context, slug string) error
	getFn    func(ctx context.Context, slug string, includeUnpublished bool) (*model.Post, error)
	listFn   func(ctx context.Context, input post.ListInput) (*post.ListResult, error)
	latestFn func(ctx context.Context, category string, limit int) ([]*model.Post, error)
	searchFn func(ctx context.Context, input post.SearchInput) (*post.SearchResult, error)
}

func (m *mockPostService) Create(ctx context.Context, input post.CreateInput) (*model.Post, error) {
	if m.createFn != nil {
		return m.createFn(ctx, input)
	}
	return nil, nil
}

func (m *mockPostService) Update(ctx context.Context, slug string, input post.UpdateInput) (*model.Post, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, slug, input)
	}
	return nil, nil
}

func (m *mockPostService) Delete(ctx context.Context, slug string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, slug)
	}
	return nil
}

func (m *mockPostService) Get(ctx context.Context, slug string, includeUnpublished bool) (*model.Post, error) {
	if m.getFn != nil {
		return m.getFn(ctx, slug, includeUnpublished)
	}
	return nil, nil
}

func (m *mockPostService) List(ctx context.Context, input post.ListInput) (*post.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, input)
	}
	return &post.ListResult{}, nil
}

func (m *mockPostService) Latest(ctx context.Context, category string, limit int) ([]*model.Post, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, category, limit)
	}
	return nil, nil
}

func (m *mockPostService) Search(ctx context.Context, input post.SearchInput) (*post.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, input)
	}
	return &post.SearchResult{}, nil
}

// --- ヘルパー ---

// postRouter はスラッグ付きルートのURLパラメータを解決するためのテスト用ルーター。
func postRouter(h *PostHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/posts", h.ListPosts)
	r.Get("/api/posts/latest", h.LatestPosts)
	r.Get("/api/posts/search", h.SearchPosts)
	r.Get("/api/posts/{slug}", h.GetPost)
	r.Post("/api/posts", h.CreatePost)
	r.Put("/api/posts/{slug}", h.UpdatePost)
	r.Delete("/api/posts/{slug}", h.DeletePost)
	return r
}

func samplePost() *model.Post {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Post{
		ID:          "post-1",
		Title:       "Go Modules Explained",
		Slug:        "go-modules-explained",
		Content:     "<p>body</p>",
		Excerpt:     "body",
		Category:    model.CategoryTech,
		Author:      "hitoshi",
		Tags:        []string{"go"},
		Published:   true,
		PublishedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// multipartBody はテスト用のマルチパートフォームボディを構築する。
func multipartBody(t *testing.T, fields map[string]string, imageName string, imageData []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s) error = %v", k, err)
		}
	}
	if imageName != "" {
		fw, err := mw.CreateFormFile("image", imageName)
		if err != nil {
			t.Fatalf("CreateFormFile error = %v", err)
		}
		if _, err := fw.Write(imageData); err != nil {
			t.Fatalf("write image error = %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close error = %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// --- テスト ---

func TestPostHandler_ListPosts_ReturnsPaginatedList(t *testing.T) {
	var gotInput post.ListInput
	svc := &mockPostService{
		listFn: func(ctx context.Context, input post.ListInput) (*post.ListResult, error) {
			gotInput = input
			return &post.ListResult{
				Posts: []*model.Post{samplePost()},
				Page:  2,
				Limit: 5,
				Total: 11,
				Pages: 3,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posts?category=tech&page=2&limit=5", nil)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotInput.Category != "tech" || gotInput.Page != 2 || gotInput.Limit != 5 {
		t.Errorf("ListInput = %+v, want category=tech page=2 limit=5", gotInput)
	}

	var resp postListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if len(resp.Posts) != 1 || resp.Total != 11 || resp.Pages != 3 {
		t.Errorf("response = %+v, want 1 post, total 11, pages 3", resp)
	}
}

func TestPostHandler_GetPost_NotFound_Returns404(t *testing.T) {
	svc := &mockPostService{
		getFn: func(ctx context.Context, slug string, includeUnpublished bool) (*model.Post, error) {
			return nil, model.NewPostNotFoundError(slug)
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posts/no-such-post", nil)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if resp.Code != model.ErrCodePostNotFound {
		t.Errorf("error code = %q, want %q", resp.Code, model.ErrCodePostNotFound)
	}
}

func TestPostHandler_GetPost_AdminSession_IncludesUnpublished(t *testing.T) {
	var gotIncludeUnpublished bool
	svc := &mockPostService{
		getFn: func(ctx context.Context, slug string, includeUnpublished bool) (*model.Post, error) {
			gotIncludeUnpublished = includeUnpublished
			return samplePost(), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posts/go-modules-explained", nil)
	admin := &model.User{ID: "admin-1", Email: "admin@example.com", IsAdmin: true}
	req = req.WithContext(middleware.ContextWithUser(req.Context(), admin))

	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !gotIncludeUnpublished {
		t.Error("includeUnpublished = false, want true for admin session")
	}
}

func TestPostHandler_GetPost_AnonymousSession_ExcludesUnpublished(t *testing.T) {
	var gotIncludeUnpublished bool
	svc := &mockPostService{
		getFn: func(ctx context.Context, slug string, includeUnpublished bool) (*model.Post, error) {
			gotIncludeUnpublished = includeUnpublished
			return samplePost(), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posts/go-modules-explained", nil)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if gotIncludeUnpublished {
		t.Error("includeUnpublished = true, want false for anonymous request")
	}
}

func TestPostHandler_CreatePost_ParsesMultipartFieldsAndImage(t *testing.T) {
	var gotInput post.CreateInput
	svc := &mockPostService{
		createFn: func(ctx context.Context, input post.CreateInput) (*model.Post, error) {
			gotInput = input
			return samplePost(), nil
		},
	}

	body, contentType := multipartBody(t, map[string]string{
		"title":    "Go Modules Explained",
		"content":  "<p>body</p>",
		"category": "tech",
		"author":   "hitoshi",
		"tags":     "go, modules",
	}, "cover.png", []byte("png-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotInput.Title != "Go Modules Explained" || gotInput.Category != "tech" {
		t.Errorf("CreateInput = %+v, want parsed form fields", gotInput)
	}
	if !reflect.DeepEqual(gotInput.Tags, []string{"go", "modules"}) {
		t.Errorf("Tags = %v, want [go modules]", gotInput.Tags)
	}
	if gotInput.Image == nil {
		t.Fatal("Image = nil, want parsed upload")
	}
	if gotInput.Image.FileName != "cover.png" || string(gotInput.Image.Data) != "png-bytes" {
		t.Errorf("Image = %+v, want cover.png with file data", gotInput.Image)
	}
}

func TestPostHandler_CreatePost_WithoutImage_PassesNil(t *testing.T) {
	var gotInput post.CreateInput
	svc := &mockPostService{
		createFn: func(ctx context.Context, input post.CreateInput) (*model.Post, error) {
			gotInput = input
			return samplePost(), nil
		},
	}

	body, contentType := multipartBody(t, map[string]string{
		"title":    "No Image",
		"content":  "<p>body</p>",
		"category": "tech",
		"author":   "hitoshi",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotInput.Image != nil {
		t.Errorf("Image = %+v, want nil", gotInput.Image)
	}
}

func TestPostHandler_CreatePost_DuplicateTitle_Returns409(t *testing.T) {
	svc := &mockPostService{
		createFn: func(ctx context.Context, input post.CreateInput) (*model.Post, error) {
			return nil, model.NewDuplicateTitleError()
		},
	}

	body, contentType := multipartBody(t, map[string]string{
		"title":    "Duplicate",
		"content":  "<p>body</p>",
		"category": "tech",
		"author":   "hitoshi",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestPostHandler_CreatePost_ImageUploadFailure_Returns500(t *testing.T) {
	svc := &mockPostService{
		createFn: func(ctx context.Context, input post.CreateInput) (*model.Post, error) {
			return nil, model.NewImageUploadFailedError()
		},
	}

	body, contentType := multipartBody(t, map[string]string{
		"title":    "Upload Failure",
		"content":  "<p>body</p>",
		"category": "tech",
		"author":   "hitoshi",
	}, "cover.png", []byte("png-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if resp.Code != model.ErrCodeImageUploadFailed {
		t.Errorf("error code = %q, want %q", resp.Code, model.ErrCodeImageUploadFailed)
	}
}

func TestPostHandler_CreatePost_MissingFields_Returns400(t *testing.T) {
	svc := &mockPostService{
		createFn: func(ctx context.Context, input post.CreateInput) (*model.Post, error) {
			return nil, model.NewMissingFieldsError("title", "content")
		},
	}

	body, contentType := multipartBody(t, map[string]string{"author": "hitoshi"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPostHandler_UpdatePost_PassesSlugAndPublishedFlag(t *testing.T) {
	var gotSlug string
	var gotInput post.UpdateInput
	svc := &mockPostService{
		updateFn: func(ctx context.Context, slug string, input post.UpdateInput) (*model.Post, error) {
			gotSlug = slug
			gotInput = input
			return samplePost(), nil
		},
	}

	body, contentType := multipartBody(t, map[string]string{
		"title":     "Updated Title",
		"published": "false",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPut, "/api/posts/go-modules-explained", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotSlug != "go-modules-explained" {
		t.Errorf("slug = %q, want go-modules-explained", gotSlug)
	}
	if gotInput.Published == nil || *gotInput.Published {
		t.Error("Published should be false for published=false form value")
	}
	if gotInput.Title != "Updated Title" {
		t.Errorf("Title = %q, want Updated Title", gotInput.Title)
	}
}

func TestPostHandler_UpdatePost_PublishedOmitted_PassesNil(t *testing.T) {
	var gotInput post.UpdateInput
	svc := &mockPostService{
		updateFn: func(ctx context.Context, slug string, input post.UpdateInput) (*model.Post, error) {
			gotInput = input
			return samplePost(), nil
		},
	}

	body, contentType := multipartBody(t, map[string]string{
		"title": "Updated Title",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPut, "/api/posts/go-modules-explained", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotInput.Published != nil {
		t.Errorf("Published = %v, omitted field must keep the stored publish state", *gotInput.Published)
	}
}

func TestPostHandler_UpdatePost_InvalidPublishedValue_Returns400(t *testing.T) {
	svc := &mockPostService{
		updateFn: func(ctx context.Context, slug string, input post.UpdateInput) (*model.Post, error) {
			t.Error("service must not be called for an invalid published value")
			return samplePost(), nil
		},
	}

	body, contentType := multipartBody(t, map[string]string{
		"published": "maybe",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPut, "/api/posts/go-modules-explained", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPostHandler_DeletePost_Returns204(t *testing.T) {
	var gotSlug string
	svc := &mockPostService{
		deleteFn: func(ctx context.Context, slug string) error {
			gotSlug = slug
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/go-modules-explained", nil)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotSlug != "go-modules-explained" {
		t.Errorf("slug = %q, want go-modules-explained", gotSlug)
	}
}

func TestPostHandler_SearchPosts_PassesQueryParams(t *testing.T) {
	var gotInput post.SearchInput
	svc := &mockPostService{
		searchFn: func(ctx context.Context, input post.SearchInput) (*post.SearchResult, error) {
			gotInput = input
			return &post.SearchResult{Total: 0, HasMore: false}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet,
		"/api/posts/search?term=modules&category=tech&sort=asc&limit=20&startIndex=40", nil)
	w := httptest.NewRecorder()
	postRouter(NewPostHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	want := post.SearchInput{
		Term:       "modules",
		Category:   "tech",
		Sort:       model.PostSortAsc,
		Limit:      20,
		StartIndex: 40,
	}
	if gotInput != want {
		t.Errorf("SearchInput = %+v, want %+v", gotInput, want)
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"nil", nil, nil},
		{"comma separated", []string{"go, modules ,tooling"}, []string{"go", "modules", "tooling"}},
		{"repeated fields", []string{"go", "modules"}, []string{"go", "modules"}},
		{"empty entries dropped", []string{"go,,  ,modules"}, []string{"go", "modules"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTags(tt.values)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseTags(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}
