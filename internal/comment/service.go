// Package comment はコメント投稿とモデレーションのドメインロジックを提供する。
package comment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// Sanitizer はコメント本文のHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// MetricsRecorder はコメント操作のメトリクス記録のインターフェース。
type MetricsRecorder interface {
	RecordCommentSubmitted()
	RecordCommentModerated(approved bool)
}

// Commenter はコメント投稿者の情報。
// Userがnilでない場合は認証済みプリンシパルとして扱い、
// 表示名・メールアドレスはフォーム入力よりセッションの値を優先する。
type Commenter struct {
	Author string
	Email  string
	User   *model.User
}

// ListResult は公開向けコメント一覧とモデレーション件数。
// 件数は承認状態を問わない総数で、管理画面のバッジ表示に使われる。
type ListResult struct {
	Comments      []*model.Comment
	TotalCount    int
	ApprovedCount int
}

// ListAllResult は管理者向け横断コメント一覧とモデレーション件数。
type ListAllResult struct {
	Comments      []model.CommentWithPost
	TotalCount    int
	ApprovedCount int
	PendingCount  int
}

// Service はコメント管理のサービス層。
// 投稿の受付、承認フラグの操作、削除、管理者向け横断一覧を提供する。
type Service struct {
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	sanitizer   Sanitizer
	metrics     MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	postRepo repository.PostRepository,
	commentRepo repository.CommentRepository,
	sanitizer Sanitizer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		postRepo:    postRepo,
		commentRepo: commentRepo,
		sanitizer:   sanitizer,
		metrics:     metrics,
	}
}

// Add は公開済み記事にコメントを追加する。
// 未公開記事へのコメントは記事未検出として拒否される。
// 本文は前後の空白を除いて5文字以上を要求し、保存前にサニタイズされる。
// 新規コメントは未承認状態で保存され、承認されるまで公開一覧には現れない。
func (s *Service) Add(ctx context.Context, slug string, commenter Commenter, content string) (*model.Comment, error) {
	post, err := s.postRepo.FindBySlug(ctx, slug, true)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(slug)
	}

	trimmed := strings.TrimSpace(content)
	if len([]rune(trimmed)) < model.MinCommentLength {
		return nil, model.NewCommentTooShortError()
	}

	author := strings.TrimSpace(commenter.Author)
	email := strings.TrimSpace(commenter.Email)
	var userID *string

	// 認証済みの投稿者はセッションの情報がフォーム入力より優先される
	if commenter.User != nil {
		author = commenter.User.Name
		email = commenter.User.Email
		id := commenter.User.ID
		userID = &id
	}

	if author == "" || email == "" {
		return nil, model.NewMissingFieldsError("author", "email")
	}
	if !model.IsValidEmail(email) {
		return nil, model.NewInvalidEmailError()
	}

	if s.sanitizer != nil {
		trimmed = s.sanitizer.Sanitize(trimmed)
	}

	comment := &model.Comment{
		ID:         uuid.NewString(),
		PostID:     post.ID,
		Author:     author,
		Email:      email,
		Content:    trimmed,
		UserID:     userID,
		IsApproved: false,
		CreatedAt:  time.Now(),
	}

	if err := s.commentRepo.Add(ctx, comment); err != nil {
		return nil, fmt.Errorf("コメントの保存に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordCommentSubmitted()
	}

	return comment, nil
}

// List は記事のコメントを新しい順で返す。
// includeUnapprovedがfalseの場合は承認済みコメントのみを返すが、
// 件数は承認状態を問わない総数も併せて報告する。
func (s *Service) List(ctx context.Context, slug string, includeUnapproved bool) (*ListResult, error) {
	post, err := s.postRepo.FindBySlug(ctx, slug, !includeUnapproved)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(slug)
	}

	all, err := s.commentRepo.ListByPostID(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}

	approved := 0
	for _, c := range all {
		if c.IsApproved {
			approved++
		}
	}

	comments := all
	if !includeUnapproved {
		comments = make([]*model.Comment, 0, approved)
		for _, c := range all {
			if c.IsApproved {
				comments = append(comments, c)
			}
		}
	}

	return &ListResult{
		Comments:      comments,
		TotalCount:    len(all),
		ApprovedCount: approved,
	}, nil
}

// SetApproval はコメントの承認フラグを設定する。
// 既に目的の状態であっても成功として扱う（冪等）。
func (s *Service) SetApproval(ctx context.Context, slug, commentID string, approved bool) (*model.Comment, error) {
	post, err := s.postRepo.FindBySlug(ctx, slug, false)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(slug)
	}

	comment, err := s.commentRepo.SetApproval(ctx, post.ID, commentID, approved)
	if err != nil {
		return nil, fmt.Errorf("承認状態の更新に失敗しました: %w", err)
	}
	if comment == nil {
		return nil, model.NewCommentNotFoundError(commentID)
	}

	if s.metrics != nil {
		s.metrics.RecordCommentModerated(approved)
	}

	return comment, nil
}

// Delete は記事からコメントを削除する。
// 対象コメントが既に存在しない場合も成功として扱う（冪等）。
func (s *Service) Delete(ctx context.Context, slug, commentID string) error {
	post, err := s.postRepo.FindBySlug(ctx, slug, false)
	if err != nil {
		return fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return model.NewPostNotFoundError(slug)
	}

	if err := s.commentRepo.Delete(ctx, post.ID, commentID); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}

	return nil
}

// ListAll は公開済み記事の全コメントを親記事情報付きで新しい順に返す。
// 管理画面のモデレーションキューで使用される。
// includeUnapprovedがfalseの場合は承認済みコメントのみを返すが、
// 件数は承認状態を問わず全件を対象に報告する。
func (s *Service) ListAll(ctx context.Context, includeUnapproved bool) (*ListAllResult, error) {
	all, err := s.commentRepo.ListAllWithPost(ctx)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}

	approved := 0
	for _, c := range all {
		if c.IsApproved {
			approved++
		}
	}

	comments := all
	if !includeUnapproved {
		comments = make([]model.CommentWithPost, 0, approved)
		for _, c := range all {
			if c.IsApproved {
				comments = append(comments, c)
			}
		}
	}

	return &ListAllResult{
		Comments:      comments,
		TotalCount:    len(all),
		ApprovedCount: approved,
		PendingCount:  len(all) - approved,
	}, nil
}
