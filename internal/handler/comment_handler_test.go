package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/blogman/internal/comment"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
)

// --- モック定義 ---

type mockCommentService struct {
	addFn         func(ctx context.Context, slug string, commenter comment.Commenter, content string) (*model.Comment, error)
	listFn        func(ctx context.Context, slug string, includeUnapproved bool) (*comment.ListResult, error)
	setApprovalFn func(ctx context.Context, slug, commentID string, approved bool) (*model.Comment, error)
	deleteFn      func(ctx context.Context, slug, commentID string) error
	listAllFn     func(ctx context.Context, includeUnapproved bool) (*comment.ListAllResult, error)
}

func (m *mockCommentService) Add(ctx context.Context, slug string, commenter comment.Commenter, content string) (*model.Comment, error) {
	if m.addFn != nil {
		return m.addFn(ctx, slug, commenter, content)
	}
	return nil, nil
}

func (m *mockCommentService) List(ctx context.Context, slug string, includeUnapproved bool) (*comment.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, slug, includeUnapproved)
	}
	return &comment.ListResult{}, nil
}

func (m *mockCommentService) SetApproval(ctx context.Context, slug, commentID string, approved bool) (*model.Comment, error) {
	if m.setApprovalFn != nil {
		return m.setApprovalFn(ctx, slug, commentID, approved)
	}
	return nil, nil
}

func (m *mockCommentService) Delete(ctx context.Context, slug, commentID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, slug, commentID)
	}
	return nil
}

func (m *mockCommentService) ListAll(ctx context.Context, includeUnapproved bool) (*comment.ListAllResult, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx, includeUnapproved)
	}
	return &comment.ListAllResult{}, nil
}

// --- ヘルパー ---

func commentTestRouter(h *CommentHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/posts/{slug}/comments", h.AddComment)
	r.Get("/api/posts/{slug}/comments", h.ListComments)
	r.Patch("/api/posts/{slug}/comments/{commentId}", h.SetApproval)
	r.Delete("/api/posts/{slug}/comments/{commentId}", h.DeleteComment)
	r.Get("/api/comments", h.ListAllComments)
	return r
}

func sampleComment(approved bool) *model.Comment {
	return &model.Comment{
		ID:         "comment-1",
		PostID:     "post-1",
		Author:     "taro",
		Email:      "taro@example.com",
		Content:    "great article",
		IsApproved: approved,
		CreatedAt:  time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
}

// --- テスト ---

func TestCommentHandler_AddComment_Anonymous_Returns201(t *testing.T) {
	var gotSlug string
	var gotCommenter comment.Commenter
	svc := &mockCommentService{
		addFn: func(ctx context.Context, slug string, commenter comment.Commenter, content string) (*model.Comment, error) {
			gotSlug = slug
			gotCommenter = commenter
			return sampleComment(false), nil
		},
	}

	body := `{"author":"taro","email":"taro@example.com","content":"great article"}`
	req := httptest.NewRequest(http.MethodPost, "/api/posts/go-modules-explained/comments", strings.NewReader(body))
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotSlug != "go-modules-explained" {
		t.Errorf("slug = %q, want go-modules-explained", gotSlug)
	}
	if gotCommenter.Author != "taro" || gotCommenter.User != nil {
		t.Errorf("commenter = %+v, want anonymous taro", gotCommenter)
	}

	var resp commentResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if resp.IsApproved {
		t.Error("IsApproved = true, want false for fresh comment")
	}
}

func TestCommentHandler_AddComment_SessionUser_PassedToService(t *testing.T) {
	var gotCommenter comment.Commenter
	svc := &mockCommentService{
		addFn: func(ctx context.Context, slug string, commenter comment.Commenter, content string) (*model.Comment, error) {
			gotCommenter = commenter
			return sampleComment(false), nil
		},
	}

	body := `{"author":"spoofed","email":"spoofed@example.com","content":"great article"}`
	req := httptest.NewRequest(http.MethodPost, "/api/posts/go-modules-explained/comments", strings.NewReader(body))
	user := &model.User{ID: "user-1", Email: "real@example.com", Name: "Real Name"}
	req = req.WithContext(middleware.ContextWithUser(req.Context(), user))

	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotCommenter.User == nil || gotCommenter.User.ID != "user-1" {
		t.Errorf("commenter.User = %+v, want session user user-1", gotCommenter.User)
	}
}

func TestCommentHandler_AddComment_InvalidJSON_Returns400(t *testing.T) {
	svc := &mockCommentService{}

	req := httptest.NewRequest(http.MethodPost, "/api/posts/slug/comments", strings.NewReader("{invalid"))
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCommentHandler_AddComment_TooShort_Returns400(t *testing.T) {
	svc := &mockCommentService{
		addFn: func(ctx context.Context, slug string, commenter comment.Commenter, content string) (*model.Comment, error) {
			return nil, model.NewCommentTooShortError()
		},
	}

	body := `{"author":"taro","email":"taro@example.com","content":"ok"}`
	req := httptest.NewRequest(http.MethodPost, "/api/posts/slug/comments", strings.NewReader(body))
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if resp.Code != model.ErrCodeCommentTooShort {
		t.Errorf("error code = %q, want %q", resp.Code, model.ErrCodeCommentTooShort)
	}
}

func TestCommentHandler_AddComment_UnpublishedPost_Returns404(t *testing.T) {
	svc := &mockCommentService{
		addFn: func(ctx context.Context, slug string, commenter comment.Commenter, content string) (*model.Comment, error) {
			return nil, model.NewPostNotFoundError(slug)
		},
	}

	body := `{"author":"taro","email":"taro@example.com","content":"great article"}`
	req := httptest.NewRequest(http.MethodPost, "/api/posts/draft-post/comments", strings.NewReader(body))
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCommentHandler_ListComments_Public_ExcludesEmail(t *testing.T) {
	var gotIncludeUnapproved bool
	svc := &mockCommentService{
		listFn: func(ctx context.Context, slug string, includeUnapproved bool) (*comment.ListResult, error) {
			gotIncludeUnapproved = includeUnapproved
			return &comment.ListResult{
				Comments:      []*model.Comment{sampleComment(true)},
				TotalCount:    3,
				ApprovedCount: 1,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posts/slug/comments", nil)
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotIncludeUnapproved {
		t.Error("includeUnapproved = true, want false for public listing")
	}
	if strings.Contains(w.Body.String(), "taro@example.com") {
		t.Error("public response should not contain commenter email")
	}

	var resp commentListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if resp.TotalCount != 3 || resp.ApprovedCount != 1 {
		t.Errorf("counts = %d/%d, want total 3 approved 1", resp.TotalCount, resp.ApprovedCount)
	}
}

func TestCommentHandler_ListComments_AdminView_RequiresSession(t *testing.T) {
	svc := &mockCommentService{}

	req := httptest.NewRequest(http.MethodGet, "/api/posts/slug/comments?admin=true", nil)
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestCommentHandler_ListComments_AdminView_RejectsNonAdmin(t *testing.T) {
	svc := &mockCommentService{}

	req := httptest.NewRequest(http.MethodGet, "/api/posts/slug/comments?admin=true", nil)
	user := &model.User{ID: "user-1", Email: "user@example.com", IsAdmin: false}
	req = req.WithContext(middleware.ContextWithUser(req.Context(), user))

	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestCommentHandler_ListComments_AdminView_IncludesEmailAndUnapproved(t *testing.T) {
	var gotIncludeUnapproved bool
	svc := &mockCommentService{
		listFn: func(ctx context.Context, slug string, includeUnapproved bool) (*comment.ListResult, error) {
			gotIncludeUnapproved = includeUnapproved
			return &comment.ListResult{
				Comments:      []*model.Comment{sampleComment(false)},
				TotalCount:    1,
				ApprovedCount: 0,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/posts/slug/comments?admin=true", nil)
	admin := &model.User{ID: "admin-1", Email: "admin@example.com", IsAdmin: true}
	req = req.WithContext(middleware.ContextWithUser(req.Context(), admin))

	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !gotIncludeUnapproved {
		t.Error("includeUnapproved = false, want true for admin view")
	}
	if !strings.Contains(w.Body.String(), "taro@example.com") {
		t.Error("admin response should contain commenter email")
	}
}

func TestCommentHandler_SetApproval_Returns200(t *testing.T) {
	var gotApproved bool
	var gotCommentID string
	svc := &mockCommentService{
		setApprovalFn: func(ctx context.Context, slug, commentID string, approved bool) (*model.Comment, error) {
			gotCommentID = commentID
			gotApproved = approved
			return sampleComment(approved), nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/posts/slug/comments/comment-1", strings.NewReader(`{"approved":true}`))
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotCommentID != "comment-1" || !gotApproved {
		t.Errorf("SetApproval(%q, %v), want comment-1 approved", gotCommentID, gotApproved)
	}
}

func TestCommentHandler_SetApproval_CommentNotFound_Returns404(t *testing.T) {
	svc := &mockCommentService{
		setApprovalFn: func(ctx context.Context, slug, commentID string, approved bool) (*model.Comment, error) {
			return nil, model.NewCommentNotFoundError(commentID)
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/posts/slug/comments/missing", strings.NewReader(`{"approved":true}`))
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCommentHandler_DeleteComment_Returns204(t *testing.T) {
	var gotCommentID string
	svc := &mockCommentService{
		deleteFn: func(ctx context.Context, slug, commentID string) error {
			gotCommentID = commentID
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/slug/comments/comment-1", nil)
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotCommentID != "comment-1" {
		t.Errorf("commentID = %q, want comment-1", gotCommentID)
	}
}

func TestCommentHandler_ListAllComments_IncludesPostInfoAndCounts(t *testing.T) {
	svc := &mockCommentService{
		listAllFn: func(ctx context.Context, includeUnapproved bool) (*comment.ListAllResult, error) {
			if includeUnapproved {
				t.Error("includeUnapproved = true, want false without query parameter")
			}
			return &comment.ListAllResult{
				Comments: []model.CommentWithPost{
					{
						Comment:   *sampleComment(true),
						PostTitle: "Go Modules Explained",
						PostSlug:  "go-modules-explained",
					},
				},
				TotalCount:    3,
				ApprovedCount: 1,
				PendingCount:  2,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/comments", nil)
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp moderationQueueResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if len(resp.Comments) != 1 {
		t.Fatalf("entries = %d, want 1", len(resp.Comments))
	}
	if resp.Comments[0].PostSlug != "go-modules-explained" {
		t.Errorf("PostSlug = %q, want go-modules-explained", resp.Comments[0].PostSlug)
	}
	if resp.TotalCount != 3 || resp.ApprovedCount != 1 || resp.PendingCount != 2 {
		t.Errorf("counts = %d/%d/%d, want 3/1/2", resp.TotalCount, resp.ApprovedCount, resp.PendingCount)
	}
}

func TestCommentHandler_ListAllComments_IncludeUnapprovedQueryForwarded(t *testing.T) {
	var gotInclude bool
	svc := &mockCommentService{
		listAllFn: func(ctx context.Context, includeUnapproved bool) (*comment.ListAllResult, error) {
			gotInclude = includeUnapproved
			return &comment.ListAllResult{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/comments?include_unapproved=true", nil)
	w := httptest.NewRecorder()
	commentTestRouter(NewCommentHandler(svc)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !gotInclude {
		t.Error("include_unapproved=true must be forwarded to the service")
	}
}
