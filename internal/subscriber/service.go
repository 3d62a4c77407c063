// Package subscriber はニュースレター購読管理のドメインロジックを提供する。
package subscriber

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// MetricsRecorder は購読操作のメトリクス記録のインターフェース。
type MetricsRecorder interface {
	RecordSubscribed()
	RecordUnsubscribed()
}

// SubscribeInput は購読登録の入力。
type SubscribeInput struct {
	Email       string
	Preferences *model.Preferences
	Metadata    model.SubscriberMetadata
}

// SubscribeResult は購読登録の結果。
// Reactivatedは解除済み購読者の再有効化だった場合にtrueとなる。
type SubscribeResult struct {
	Subscriber  *model.Subscriber
	Reactivated bool
}

// ListResult は購読者一覧とページネーション情報。
type ListResult struct {
	Subscribers []*model.Subscriber
	Page        int
	Limit       int
	Total       int
	Pages       int
}

// Service はニュースレター購読のサービス層。
// 購読登録、再有効化、解除、管理者向け一覧を提供する。
type Service struct {
	subRepo repository.SubscriberRepository
	metrics MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(subRepo repository.SubscriberRepository, metrics MetricsRecorder) *Service {
	return &Service{
		subRepo: subRepo,
		metrics: metrics,
	}
}

// NormalizeEmail はメールアドレスを正規化形（トリム+小文字化）に変換する。
// 購読者の自然キーは常にこの形で扱う。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Subscribe はメールアドレスをニュースレター購読者として登録する。
// アクティブな購読者の再登録は競合エラーを返す。
// 解除済み購読者はsubscribedAtを保持したまま再有効化され、
// 配信設定とメタデータは指定された項目だけが既存値に上書きされる。
// 同一メールアドレスの同時登録はデータストアの一意制約で検出される。
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (*SubscribeResult, error) {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return nil, model.NewMissingFieldsError("email")
	}
	if !model.IsValidEmail(email) {
		return nil, model.NewInvalidEmailError()
	}

	if input.Preferences != nil {
		if input.Preferences.Frequency != "" && !model.ValidFrequencies[input.Preferences.Frequency] {
			return nil, model.NewInvalidFrequencyError(string(input.Preferences.Frequency))
		}
		for _, c := range input.Preferences.Categories {
			if !model.ValidCategories[c] {
				return nil, model.NewInvalidCategoryError(string(c))
			}
		}
	}

	existing, err := s.subRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}

	if existing != nil {
		if existing.IsActive {
			return nil, model.NewAlreadySubscribedError()
		}

		// 解除済み購読者の再有効化。最初の購読日時と
		// 指定されなかった設定・メタデータは保持する
		existing.IsActive = true
		existing.Preferences = mergePreferences(existing.Preferences, input.Preferences)
		existing.Metadata = mergeMetadata(existing.Metadata, input.Metadata)
		existing.UpdatedAt = time.Now()

		if err := s.subRepo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("購読者の更新に失敗しました: %w", err)
		}

		if s.metrics != nil {
			s.metrics.RecordSubscribed()
		}

		return &SubscribeResult{Subscriber: existing, Reactivated: true}, nil
	}

	now := time.Now()
	sub := &model.Subscriber{
		ID:           uuid.NewString(),
		Email:        email,
		IsActive:     true,
		SubscribedAt: now,
		Preferences:  mergePreferences(model.Preferences{Frequency: model.FrequencyWeekly}, input.Preferences),
		Metadata:     input.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewAlreadySubscribedError()
		}
		return nil, fmt.Errorf("購読者の保存に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSubscribed()
	}

	return &SubscribeResult{Subscriber: sub}, nil
}

// mergePreferences は指定された項目だけをbaseに上書きした配信設定を返す。
// inがnilの場合はbaseをそのまま返す。
func mergePreferences(base model.Preferences, in *model.Preferences) model.Preferences {
	if in == nil {
		return base
	}
	if in.Frequency != "" {
		base.Frequency = in.Frequency
	}
	if in.Categories != nil {
		base.Categories = in.Categories
	}
	return base
}

// mergeMetadata は空でない項目だけをbaseに上書きしたメタデータを返す。
func mergeMetadata(base, in model.SubscriberMetadata) model.SubscriberMetadata {
	if in.IPAddress != "" {
		base.IPAddress = in.IPAddress
	}
	if in.UserAgent != "" {
		base.UserAgent = in.UserAgent
	}
	if in.Referrer != "" {
		base.Referrer = in.Referrer
	}
	return base
}

// Unsubscribe はメールアドレスの購読を解除する。
// レコードは削除せず非アクティブ化する。
// 未登録のメールアドレスは未検出エラー、解除済みは競合エラーを返す。
func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return model.NewMissingFieldsError("email")
	}

	sub, err := s.subRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return fmt.Errorf("購読者の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return model.NewNotSubscribedError()
	}
	if !sub.IsActive {
		return model.NewAlreadyInactiveError()
	}

	sub.IsActive = false
	sub.UpdatedAt = time.Now()

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("購読者の更新に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordUnsubscribed()
	}

	return nil
}

// List は購読者一覧をページネーション付きで返す。
// センシティブなメタデータ（IPアドレス、ユーザーエージェント）は
// リポジトリの射影の時点で除外されている。
func (s *Service) List(ctx context.Context, activeOnly bool, page, limit int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	subs, err := s.subRepo.List(ctx, activeOnly, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}

	total, err := s.subRepo.Count(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("購読者件数の取得に失敗しました: %w", err)
	}

	pages := (total + limit - 1) / limit

	return &ListResult{
		Subscribers: subs,
		Page:        page,
		Limit:       limit,
		Total:       total,
		Pages:       pages,
	}, nil
}
