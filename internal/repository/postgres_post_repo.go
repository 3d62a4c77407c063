package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/hitoshi/blogman/internal/model"
)

// postColumns は記事取得時のSELECT句カラム。
const postColumns = `id, title, slug, content, excerpt, category, author, tags,
	published, published_at, image_url, image_file_id, image_thumbnail_url,
	created_at, updated_at`

// psql はPostgreSQLのプレースホルダ（$1, $2, ...）を使うステートメントビルダー。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresPostRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// Create は記事を作成する。スラッグの一意性制約違反はそのまま返し、
// 呼び出し側がIsUniqueViolationで判別する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	var imageURL, imageFileID, imageThumbnailURL sql.NullString
	if post.Image != nil {
		imageURL = sql.NullString{String: post.Image.URL, Valid: true}
		imageFileID = sql.NullString{String: post.Image.FileID, Valid: true}
		imageThumbnailURL = sql.NullString{String: post.Image.ThumbnailURL, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, title, slug, content, excerpt, category, author, tags,
		                    published, published_at, image_url, image_file_id, image_thumbnail_url,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		post.ID, post.Title, post.Slug, post.Content, post.Excerpt, post.Category, post.Author,
		pq.Array(post.Tags), post.Published, post.PublishedAt,
		imageURL, imageFileID, imageThumbnailURL,
		post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// FindBySlug はスラッグで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindBySlug(ctx context.Context, slug string, publishedOnly bool) (*model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE slug = $1`
	if publishedOnly {
		query += ` AND published = TRUE`
	}

	post, err := scanPost(r.db.QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return post, nil
}

// Update は記事を上書き更新する。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	var imageURL, imageFileID, imageThumbnailURL sql.NullString
	if post.Image != nil {
		imageURL = sql.NullString{String: post.Image.URL, Valid: true}
		imageFileID = sql.NullString{String: post.Image.FileID, Valid: true}
		imageThumbnailURL = sql.NullString{String: post.Image.ThumbnailURL, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = $2, content = $3, excerpt = $4, category = $5, author = $6,
		        tags = $7, published = $8, published_at = $9,
		        image_url = $10, image_file_id = $11, image_thumbnail_url = $12,
		        updated_at = NOW()
		 WHERE id = $1`,
		post.ID, post.Title, post.Content, post.Excerpt, post.Category, post.Author,
		pq.Array(post.Tags), post.Published, post.PublishedAt,
		imageURL, imageFileID, imageThumbnailURL,
	)
	if err != nil {
		return fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("記事が見つかりません: %s", post.ID)
	}
	return nil
}

// DeleteBySlug はスラッグで記事を削除する。関連コメントはCASCADE削除される。
func (r *PostgresPostRepo) DeleteBySlug(ctx context.Context, slug string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE slug = $1`,
		slug,
	)
	if err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("記事が見つかりません: %s", slug)
	}
	return nil
}

// List はフィルタ条件に一致する記事一覧を返す。
// カテゴリ絞り込みと自由文検索（title/content/excerpt/tags の部分一致）を
// 動的に組み合わせるため、squirrelでクエリを構築する。
func (r *PostgresPostRepo) List(ctx context.Context, filter PostFilter) ([]*model.Post, error) {
	builder := psql.Select(
		"id", "title", "slug", "content", "excerpt", "category", "author", "tags",
		"published", "published_at", "image_url", "image_file_id", "image_thumbnail_url",
		"created_at", "updated_at",
	).From("posts")

	builder = applyPostFilter(builder, filter)

	if filter.Sort == model.PostSortAsc {
		builder = builder.OrderBy("published_at ASC NULLS LAST", "created_at ASC")
	} else {
		builder = builder.OrderBy("published_at DESC NULLS LAST", "created_at DESC")
	}

	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("記事一覧クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// Count はフィルタ条件に一致する記事の総数を返す。
func (r *PostgresPostRepo) Count(ctx context.Context, filter PostFilter) (int, error) {
	builder := applyPostFilter(psql.Select("COUNT(*)").From("posts"), filter)

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("記事件数クエリの構築に失敗しました: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("記事件数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// applyPostFilter はフィルタ条件をWHERE句として適用する。
func applyPostFilter(builder sq.SelectBuilder, filter PostFilter) sq.SelectBuilder {
	if filter.PublishedOnly {
		builder = builder.Where(sq.Eq{"published": true})
	}
	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"category": string(filter.Category)})
	}
	if filter.SearchTerm != "" {
		pattern := "%" + filter.SearchTerm + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"content": pattern},
			sq.ILike{"excerpt": pattern},
			sq.Expr("array_to_string(tags, ' ') ILIKE ?", pattern),
		})
	}
	return builder
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPost は1行を読み取ってPostに変換する。
func scanPost(row rowScanner) (*model.Post, error) {
	post := &model.Post{}
	var (
		publishedAt       sql.NullTime
		imageURL          sql.NullString
		imageFileID       sql.NullString
		imageThumbnailURL sql.NullString
	)

	err := row.Scan(
		&post.ID, &post.Title, &post.Slug, &post.Content, &post.Excerpt,
		&post.Category, &post.Author, pq.Array(&post.Tags),
		&post.Published, &publishedAt,
		&imageURL, &imageFileID, &imageThumbnailURL,
		&post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}
	if imageFileID.Valid || imageURL.Valid {
		post.Image = &model.FeaturedImage{
			URL:          imageURL.String,
			FileID:       imageFileID.String,
			ThumbnailURL: imageThumbnailURL.String,
		}
	}
	return post, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
