package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

// FindByEmail は正規化済みメールアドレスで購読者を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	sub := &model.Subscriber{}
	var categories []string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, is_active, subscribed_at, pref_categories, pref_frequency,
		        meta_ip_address, meta_user_agent, meta_referrer, created_at, updated_at
		 FROM subscribers WHERE email = $1`,
		email,
	).Scan(
		&sub.ID, &sub.Email, &sub.IsActive, &sub.SubscribedAt,
		pq.Array(&categories), &sub.Preferences.Frequency,
		&sub.Metadata.IPAddress, &sub.Metadata.UserAgent, &sub.Metadata.Referrer,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}

	sub.Preferences.Categories = toCategories(categories)
	return sub, nil
}

// Create は購読者を作成する。emailの一意性制約違反はそのまま返し、
// 呼び出し側がIsUniqueViolationで判別する。
func (r *PostgresSubscriberRepo) Create(ctx context.Context, sub *model.Subscriber) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, is_active, subscribed_at, pref_categories, pref_frequency,
		                          meta_ip_address, meta_user_agent, meta_referrer, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID, sub.Email, sub.IsActive, sub.SubscribedAt,
		pq.Array(fromCategories(sub.Preferences.Categories)), sub.Preferences.Frequency,
		sub.Metadata.IPAddress, sub.Metadata.UserAgent, sub.Metadata.Referrer,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("購読者の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は購読者を上書き更新する。subscribed_atは最初の購読時から変更しない。
func (r *PostgresSubscriberRepo) Update(ctx context.Context, sub *model.Subscriber) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET is_active = $2, pref_categories = $3, pref_frequency = $4,
		        meta_ip_address = $5, meta_user_agent = $6, meta_referrer = $7,
		        updated_at = NOW()
		 WHERE id = $1`,
		sub.ID, sub.IsActive,
		pq.Array(fromCategories(sub.Preferences.Categories)), sub.Preferences.Frequency,
		sub.Metadata.IPAddress, sub.Metadata.UserAgent, sub.Metadata.Referrer,
	)
	if err != nil {
		return fmt.Errorf("購読者の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("購読者が見つかりません: %s", sub.ID)
	}
	return nil
}

// List は購読者一覧をsubscribed_at降順で返す。
// センシティブなメタデータ（ipAddress, userAgent）はSELECT句から除外し、
// レスポンスに漏れないようにする。
func (r *PostgresSubscriberRepo) List(ctx context.Context, activeOnly bool, offset, limit int) ([]*model.Subscriber, error) {
	query := `SELECT id, email, is_active, subscribed_at, pref_categories, pref_frequency,
	                 meta_referrer, created_at, updated_at
	          FROM subscribers`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY subscribed_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscriber
	for rows.Next() {
		sub := &model.Subscriber{}
		var categories []string
		if err := rows.Scan(
			&sub.ID, &sub.Email, &sub.IsActive, &sub.SubscribedAt,
			pq.Array(&categories), &sub.Preferences.Frequency,
			&sub.Metadata.Referrer, &sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("購読者行の読み取りに失敗しました: %w", err)
		}
		sub.Preferences.Categories = toCategories(categories)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読者一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// Count は購読者の総数を返す。
func (r *PostgresSubscriberRepo) Count(ctx context.Context, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM subscribers`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("購読者数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// toCategories はDBのtext[]をCategoryスライスに変換する。
func toCategories(values []string) []model.Category {
	if len(values) == 0 {
		return nil
	}
	categories := make([]model.Category, len(values))
	for i, v := range values {
		categories[i] = model.Category(v)
	}
	return categories
}

// fromCategories はCategoryスライスをDBのtext[]用に変換する。
func fromCategories(categories []model.Category) []string {
	values := make([]string, len(categories))
	for i, c := range categories {
		values[i] = string(c)
	}
	return values
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
