// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/blogman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// PostFilter は記事一覧・検索のフィルタ条件を表す。
type PostFilter struct {
	// PublishedOnly がtrueの場合、published=trueの記事のみを対象とする。
	PublishedOnly bool
	// Category が空でない場合、カテゴリで絞り込む。
	Category model.Category
	// SearchTerm が空でない場合、title/content/excerpt/tagsを
	// 大文字小文字を無視した部分一致で検索する。
	SearchTerm string
	// Sort はpublished_atのソート方向。ゼロ値は降順として扱う。
	Sort model.PostSort
	// Offset/Limit はページネーション。Limit 0は既定値を適用しない（呼び出し側で設定）。
	Offset int
	Limit  int
}

// PostRepository は記事データの永続化インターフェース。
type PostRepository interface {
	// Create は記事を作成する。スラッグの一意性制約違反は
	// IsUniqueViolationで判別可能なエラーとして返す。
	Create(ctx context.Context, post *model.Post) error

	// FindBySlug はスラッグで記事を検索する。見つからない場合はnilを返す。
	// publishedOnlyがtrueの場合、published=trueの記事のみを対象とする。
	FindBySlug(ctx context.Context, slug string, publishedOnly bool) (*model.Post, error)

	// Update は記事を上書き更新する。
	Update(ctx context.Context, post *model.Post) error

	// DeleteBySlug はスラッグで記事を削除する。
	DeleteBySlug(ctx context.Context, slug string) error

	// List はフィルタ条件に一致する記事一覧を返す。commentsは含まない。
	List(ctx context.Context, filter PostFilter) ([]*model.Post, error)

	// Count はフィルタ条件に一致する記事の総数を返す。
	Count(ctx context.Context, filter PostFilter) (int, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
// コメントは親記事に従属し、(post, comment.id)の組で特定される。
type CommentRepository interface {
	// Add はコメントを追加する。
	Add(ctx context.Context, comment *model.Comment) error

	// ListByPostID は記事のコメント一覧をcreated_at降順で返す。
	ListByPostID(ctx context.Context, postID string) ([]*model.Comment, error)

	// SetApproval は指定コメントの承認フラグを設定し、更新後のコメントを返す。
	// 記事内に該当コメントが存在しない場合はnilを返す。
	SetApproval(ctx context.Context, postID, commentID string, isApproved bool) (*model.Comment, error)

	// Delete は記事からコメントを削除する。該当コメントが既に存在しない場合も
	// エラーとしない（冪等）。
	Delete(ctx context.Context, postID, commentID string) error

	// ListAllWithPost は公開済み記事の全コメントを親記事のタイトル・スラッグ付きで
	// created_at降順で返す。
	ListAllWithPost(ctx context.Context) ([]model.CommentWithPost, error)
}

// SubscriberRepository はニュースレター購読者の永続化インターフェース。
type SubscriberRepository interface {
	// FindByEmail は正規化済みメールアドレスで購読者を検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Subscriber, error)

	// Create は購読者を作成する。emailの一意性制約違反は
	// IsUniqueViolationで判別可能なエラーとして返す。
	Create(ctx context.Context, sub *model.Subscriber) error

	// Update は購読者を上書き更新する。subscribed_atは変更しない。
	Update(ctx context.Context, sub *model.Subscriber) error

	// List は購読者一覧をsubscribed_at降順で返す。
	// センシティブなメタデータ（ipAddress, userAgent）は射影から除外される。
	List(ctx context.Context, activeOnly bool, offset, limit int) ([]*model.Subscriber, error)

	// Count は購読者の総数を返す。
	Count(ctx context.Context, activeOnly bool) (int, error)
}
