package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// Add はコメントを追加する。
func (r *PostgresCommentRepo) Add(ctx context.Context, comment *model.Comment) error {
	var userID sql.NullString
	if comment.UserID != nil {
		userID = sql.NullString{String: *comment.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, author, email, content, user_id, is_approved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		comment.ID, comment.PostID, comment.Author, comment.Email, comment.Content,
		userID, comment.IsApproved, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("コメントの追加に失敗しました: %w", err)
	}
	return nil
}

// ListByPostID は記事のコメント一覧をcreated_at降順で返す。
func (r *PostgresCommentRepo) ListByPostID(ctx context.Context, postID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, post_id, author, email, content, user_id, is_approved, created_at
		 FROM comments WHERE post_id = $1 ORDER BY created_at DESC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("コメント行の読み取りに失敗しました: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}
	return comments, nil
}

// SetApproval は指定コメントの承認フラグを設定し、更新後のコメントを返す。
// 同じ値を繰り返し設定しても結果は変わらない（冪等なブールセット）。
// 記事内に該当コメントが存在しない場合はnilを返す。
func (r *PostgresCommentRepo) SetApproval(ctx context.Context, postID, commentID string, isApproved bool) (*model.Comment, error) {
	comment, err := scanComment(r.db.QueryRowContext(ctx,
		`UPDATE comments SET is_approved = $3
		 WHERE id = $1 AND post_id = $2
		 RETURNING id, post_id, author, email, content, user_id, is_approved, created_at`,
		commentID, postID, isApproved,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメント承認状態の更新に失敗しました: %w", err)
	}
	return comment, nil
}

// Delete は記事からコメントを削除する。
// 該当コメントが既に存在しない場合もエラーとしない（冪等）。
func (r *PostgresCommentRepo) Delete(ctx context.Context, postID, commentID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE id = $1 AND post_id = $2`,
		commentID, postID,
	)
	if err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

// ListAllWithPost は公開済み記事の全コメントを親記事のタイトル・スラッグ付きで
// created_at降順で返す。
func (r *PostgresCommentRepo) ListAllWithPost(ctx context.Context) ([]model.CommentWithPost, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.post_id, c.author, c.email, c.content, c.user_id, c.is_approved, c.created_at,
		        p.title, p.slug
		 FROM comments c
		 JOIN posts p ON c.post_id = p.id
		 WHERE p.published = TRUE
		 ORDER BY c.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("全コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var results []model.CommentWithPost
	for rows.Next() {
		var cwp model.CommentWithPost
		var userID sql.NullString
		if err := rows.Scan(
			&cwp.ID, &cwp.PostID, &cwp.Author, &cwp.Email, &cwp.Content,
			&userID, &cwp.IsApproved, &cwp.CreatedAt,
			&cwp.PostTitle, &cwp.PostSlug,
		); err != nil {
			return nil, fmt.Errorf("全コメント行の読み取りに失敗しました: %w", err)
		}
		if userID.Valid {
			id := userID.String
			cwp.UserID = &id
		}
		results = append(results, cwp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("全コメント一覧の走査に失敗しました: %w", err)
	}
	return results, nil
}

// scanComment は1行を読み取ってCommentに変換する。
func scanComment(row rowScanner) (*model.Comment, error) {
	comment := &model.Comment{}
	var userID sql.NullString

	err := row.Scan(
		&comment.ID, &comment.PostID, &comment.Author, &comment.Email, &comment.Content,
		&userID, &comment.IsApproved, &comment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.String
		comment.UserID = &id
	}
	return comment, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
