package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/blogman/internal/comment"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// Add は公開済み記事にコメントを追加する。
	Add(ctx context.Context, slug string, commenter comment.Commenter, content string) (*model.Comment, error)
	// List は記事のコメントを新しい順で返す。
	List(ctx context.Context, slug string, includeUnapproved bool) (*comment.ListResult, error)
	// SetApproval はコメントの承認フラグを設定する。
	SetApproval(ctx context.Context, slug, commentID string, approved bool) (*model.Comment, error)
	// Delete は記事からコメントを削除する。
	Delete(ctx context.Context, slug, commentID string) error
	// ListAll は全記事のコメントを親記事情報付きで返す。
	ListAll(ctx context.Context, includeUnapproved bool) (*comment.ListAllResult, error)
}

// CommentHandler はコメント投稿とモデレーションのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// addCommentRequest はコメント投稿リクエストのボディ。
type addCommentRequest struct {
	Author  string `json:"author"`
	Email   string `json:"email"`
	Content string `json:"content"`
}

// setApprovalRequest は承認状態更新リクエストのボディ。
type setApprovalRequest struct {
	Approved bool `json:"approved"`
}

// commentResponse は公開向けコメントのAPIレスポンス。
// 投稿者のメールアドレスは公開レスポンスから除外する。
type commentResponse struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	IsApproved bool      `json:"is_approved"`
	CreatedAt  time.Time `json:"created_at"`
}

// adminCommentResponse はモデレーション向けコメントのAPIレスポンス。
type adminCommentResponse struct {
	commentResponse
	Email  string  `json:"email"`
	UserID *string `json:"user_id,omitempty"`
}

// commentListResponse はコメント一覧のレスポンス。
type commentListResponse struct {
	Comments      []commentResponse `json:"comments"`
	TotalCount    int               `json:"total_count"`
	ApprovedCount int               `json:"approved_count"`
}

// adminCommentListResponse はモデレーション向けコメント一覧のレスポンス。
type adminCommentListResponse struct {
	Comments      []adminCommentResponse `json:"comments"`
	TotalCount    int                    `json:"total_count"`
	ApprovedCount int                    `json:"approved_count"`
}

// moderationQueueEntry は管理者向け横断一覧の1件。
type moderationQueueEntry struct {
	adminCommentResponse
	PostTitle string `json:"post_title"`
	PostSlug  string `json:"post_slug"`
}

// moderationQueueResponse は管理者向け横断一覧のレスポンス。
type moderationQueueResponse struct {
	Comments      []moderationQueueEntry `json:"comments"`
	TotalCount    int                    `json:"total_count"`
	ApprovedCount int                    `json:"approved_count"`
	PendingCount  int                    `json:"pending_count"`
}

// AddComment は記事にコメントを投稿する。
// セッションがある場合は投稿者情報をセッションのユーザーで上書きする。
// POST /api/posts/:slug/comments
func (h *CommentHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	commenter := comment.Commenter{
		Author: req.Author,
		Email:  req.Email,
		User:   middleware.UserFromContext(r.Context()),
	}

	created, err := h.service.Add(r.Context(), slug, commenter, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCommentResponse(created))
}

// ListComments は記事のコメント一覧を取得する。
// 通常は承認済みコメントのみを返す。admin=trueは管理者セッションを要求し、
// 未承認コメントとメールアドレスを含む全件を返す。
// GET /api/posts/:slug/comments?admin=true
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	adminView := r.URL.Query().Get("admin") == "true"

	if adminView {
		user := middleware.UserFromContext(r.Context())
		if user == nil {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		if !user.IsAdmin {
			writeAPIErrorResponse(w, http.StatusForbidden, model.NewAdminRequiredError())
			return
		}
	}

	result, err := h.service.List(r.Context(), slug, adminView)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if adminView {
		comments := make([]adminCommentResponse, len(result.Comments))
		for i, c := range result.Comments {
			comments[i] = toAdminCommentResponse(c)
		}
		json.NewEncoder(w).Encode(adminCommentListResponse{
			Comments:      comments,
			TotalCount:    result.TotalCount,
			ApprovedCount: result.ApprovedCount,
		})
		return
	}

	comments := make([]commentResponse, len(result.Comments))
	for i, c := range result.Comments {
		comments[i] = toCommentResponse(c)
	}
	json.NewEncoder(w).Encode(commentListResponse{
		Comments:      comments,
		TotalCount:    result.TotalCount,
		ApprovedCount: result.ApprovedCount,
	})
}

// SetApproval はコメントの承認状態を設定する。
// PATCH /api/posts/:slug/comments/:commentId
func (h *CommentHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	commentID := chi.URLParam(r, "commentId")

	var req setApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	updated, err := h.service.SetApproval(r.Context(), slug, commentID, req.Approved)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAdminCommentResponse(updated))
}

// DeleteComment は記事からコメントを削除する。
// DELETE /api/posts/:slug/comments/:commentId
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	commentID := chi.URLParam(r, "commentId")

	if err := h.service.Delete(r.Context(), slug, commentID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAllComments は全記事のコメントを親記事情報付きで取得する。
// 通常は承認済みコメントのみを返す。include_unapproved=trueで
// 未承認を含む全件を返す。件数は常に全件を対象に報告する。
// GET /api/comments?include_unapproved=true
func (h *CommentHandler) ListAllComments(w http.ResponseWriter, r *http.Request) {
	includeUnapproved := r.URL.Query().Get("include_unapproved") == "true"

	result, err := h.service.ListAll(r.Context(), includeUnapproved)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries := make([]moderationQueueEntry, len(result.Comments))
	for i, c := range result.Comments {
		entries[i] = moderationQueueEntry{
			adminCommentResponse: toAdminCommentResponse(&c.Comment),
			PostTitle:            c.PostTitle,
			PostSlug:             c.PostSlug,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(moderationQueueResponse{
		Comments:      entries,
		TotalCount:    result.TotalCount,
		ApprovedCount: result.ApprovedCount,
		PendingCount:  result.PendingCount,
	})
}

// toCommentResponse はmodel.Commentから公開向けAPIレスポンスに変換する。
func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		Author:     c.Author,
		Content:    c.Content,
		IsApproved: c.IsApproved,
		CreatedAt:  c.CreatedAt,
	}
}

// toAdminCommentResponse はmodel.Commentからモデレーション向けAPIレスポンスに変換する。
func toAdminCommentResponse(c *model.Comment) adminCommentResponse {
	return adminCommentResponse{
		commentResponse: toCommentResponse(c),
		Email:           c.Email,
		UserID:          c.UserID,
	}
}
