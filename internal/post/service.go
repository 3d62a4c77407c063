package post

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// BlobStore は注目画像の保存先となる外部ブロブストアのインターフェース。
type BlobStore interface {
	// Upload は画像データをアップロードし、格納先の情報を返す。
	Upload(ctx context.Context, data []byte, fileName string) (*model.FeaturedImage, error)
	// Delete はファイルIDで画像を削除する。削除できた場合trueを返す。
	Delete(ctx context.Context, fileID string) (bool, error)
}

// Sanitizer は記事本文のHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// MetricsRecorder は記事操作のメトリクス記録のインターフェース。
type MetricsRecorder interface {
	RecordPostCreated()
	RecordPostDeleted()
	RecordImageUploadDuration(seconds float64)
}

// ImageUpload はリクエストから受け取った画像ファイル。
type ImageUpload struct {
	FileName string
	Data     []byte
}

// CreateInput は記事作成の入力。
type CreateInput struct {
	Title    string
	Content  string
	Category string
	Author   string
	Tags     []string
	Excerpt  string
	Image    *ImageUpload
}

// UpdateInput は記事更新の入力。ゼロ値（文字列は空、Publishedはnil）の
// 項目は既存の値を保持する。
type UpdateInput struct {
	Title     string
	Content   string
	Category  string
	Author    string
	Tags      []string
	Excerpt   string
	Published *bool
	Image     *ImageUpload
}

// ListInput は記事一覧取得の入力。
type ListInput struct {
	Category           string
	Page               int
	Limit              int
	IncludeUnpublished bool
}

// SearchInput は記事検索の入力。
type SearchInput struct {
	Term       string
	Category   string
	Sort       model.PostSort
	Limit      int
	StartIndex int
}

// ListResult は記事一覧とページネーション情報。
type ListResult struct {
	Posts []*model.Post
	Page  int
	Limit int
	Total int
	Pages int
}

// SearchResult は検索結果と続きの有無。
type SearchResult struct {
	Posts   []*model.Post
	Total   int
	HasMore bool
}

// Service は記事管理のサービス層。
// スラッグ・抜粋の導出、注目画像のアップロード、記事CRUDのビジネスロジックを提供する。
type Service struct {
	postRepo  repository.PostRepository
	blobStore BlobStore
	sanitizer Sanitizer
	metrics   MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	postRepo repository.PostRepository,
	blobStore BlobStore,
	sanitizer Sanitizer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		postRepo:  postRepo,
		blobStore: blobStore,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// Create は新しい記事を作成する。
// タイトルからスラッグを、本文から抜粋を導出し、画像があればブロブストアへ
// アップロードしてから保存する。画像アップロードの失敗は作成全体を中断する。
// スラッグの重複はデータストアの一意制約で検出し、競合エラーとして返す。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Post, error) {
	missing := missingFields(map[string]string{
		"title":    input.Title,
		"content":  input.Content,
		"category": input.Category,
		"author":   input.Author,
	})
	if len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing...)
	}

	category := model.Category(input.Category)
	if !model.ValidCategories[category] {
		return nil, model.NewInvalidCategoryError(input.Category)
	}

	excerpt := input.Excerpt
	if excerpt == "" {
		excerpt = Excerpt(input.Content)
	}

	content := input.Content
	if s.sanitizer != nil {
		content = s.sanitizer.Sanitize(content)
	}

	now := time.Now()
	post := &model.Post{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Slug:        Slugify(input.Title),
		Content:     content,
		Excerpt:     excerpt,
		Category:    category,
		Author:      input.Author,
		Tags:        input.Tags,
		Published:   true,
		PublishedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if input.Image != nil {
		image, err := s.uploadImage(ctx, input.Image)
		if err != nil {
			return nil, err
		}
		post.Image = image
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		if repository.IsUniqueViolation(err) {
			// アップロード済み画像は記事に紐付かないため片付けておく
			s.cleanupImage(ctx, post.Image)
			return nil, model.NewDuplicateTitleError()
		}
		return nil, fmt.Errorf("記事の保存に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordPostCreated()
	}

	return post, nil
}

// Update はスラッグで指定した記事を更新する。
// スラッグはタイトルを変更しても再計算されない。
// 新しい画像が与えられた場合、旧画像のブロブ削除はベストエフォートで行い、
// 新画像のアップロード失敗は更新全体を中断する。
// 未公開から公開への遷移時、publishedAtが未設定であれば現在時刻を設定する。
func (s *Service) Update(ctx context.Context, slug string, input UpdateInput) (*model.Post, error) {
	post, err := s.postRepo.FindBySlug(ctx, slug, false)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(slug)
	}

	if input.Category != "" && !model.ValidCategories[model.Category(input.Category)] {
		return nil, model.NewInvalidCategoryError(input.Category)
	}

	if input.Title != "" {
		post.Title = input.Title
	}
	if input.Content != "" {
		content := input.Content
		if s.sanitizer != nil {
			content = s.sanitizer.Sanitize(content)
		}
		post.Content = content
		if input.Excerpt == "" {
			post.Excerpt = Excerpt(input.Content)
		}
	}
	if input.Excerpt != "" {
		post.Excerpt = input.Excerpt
	}
	if input.Category != "" {
		post.Category = model.Category(input.Category)
	}
	if input.Author != "" {
		post.Author = input.Author
	}
	if input.Tags != nil {
		post.Tags = input.Tags
	}

	if input.Published != nil {
		// 公開遷移の刻印。既にpublishedAtを持つ記事は元の日時を保持する
		if *input.Published && !post.Published && post.PublishedAt == nil {
			now := time.Now()
			post.PublishedAt = &now
		}
		post.Published = *input.Published
	}

	if input.Image != nil {
		// 旧画像の削除はベストエフォート
		s.cleanupImage(ctx, post.Image)

		image, err := s.uploadImage(ctx, input.Image)
		if err != nil {
			return nil, err
		}
		post.Image = image
	}

	post.UpdatedAt = time.Now()

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}

	return post, nil
}

// Delete はスラッグで指定した記事を削除する。
// 注目画像があればブロブストアからの削除をベストエフォートで試みたうえで、
// 記事本体とコメントを削除する。
func (s *Service) Delete(ctx context.Context, slug string) error {
	post, err := s.postRepo.FindBySlug(ctx, slug, false)
	if err != nil {
		return fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return model.NewPostNotFoundError(slug)
	}

	s.cleanupImage(ctx, post.Image)

	if err := s.postRepo.DeleteBySlug(ctx, slug); err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordPostDeleted()
	}

	return nil
}

// Get はスラッグで記事を1件取得する。
// includeUnpublishedがfalseの場合、未公開記事は存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, slug string, includeUnpublished bool) (*model.Post, error) {
	post, err := s.postRepo.FindBySlug(ctx, slug, !includeUnpublished)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(slug)
	}
	return post, nil
}

// List は記事の一覧をページネーション付きで返す。
// 公開日時の降順（未公開記事は作成日時で補完）で並ぶ。
func (s *Service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit < 1 || limit > 100 {
		limit = 10
	}

	filter := repository.PostFilter{
		PublishedOnly: !input.IncludeUnpublished,
		Category:      model.Category(input.Category),
		Sort:          model.PostSortDesc,
		Offset:        (page - 1) * limit,
		Limit:         limit,
	}

	posts, err := s.postRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}

	total, err := s.postRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("記事件数の取得に失敗しました: %w", err)
	}

	pages := (total + limit - 1) / limit

	return &ListResult{
		Posts: posts,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	}, nil
}

// Latest は公開済み記事の最新N件を返す。
func (s *Service) Latest(ctx context.Context, category string, limit int) ([]*model.Post, error) {
	if limit < 1 || limit > 50 {
		limit = 5
	}

	posts, err := s.postRepo.List(ctx, repository.PostFilter{
		PublishedOnly: true,
		Category:      model.Category(category),
		Sort:          model.PostSortDesc,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("最新記事の取得に失敗しました: %w", err)
	}

	return posts, nil
}

// Search は公開済み記事をタイトル・本文・抜粋・タグを横断して部分一致検索する。
// 検索語は大文字小文字を区別しない。
func (s *Service) Search(ctx context.Context, input SearchInput) (*SearchResult, error) {
	limit := input.Limit
	if limit < 1 || limit > 100 {
		limit = 10
	}
	startIndex := input.StartIndex
	if startIndex < 0 {
		startIndex = 0
	}
	sort := input.Sort
	if sort != model.PostSortAsc {
		sort = model.PostSortDesc
	}

	filter := repository.PostFilter{
		PublishedOnly: true,
		Category:      model.Category(input.Category),
		SearchTerm:    input.Term,
		Sort:          sort,
		Offset:        startIndex,
		Limit:         limit,
	}

	posts, err := s.postRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("記事の検索に失敗しました: %w", err)
	}

	total, err := s.postRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("検索結果件数の取得に失敗しました: %w", err)
	}

	return &SearchResult{
		Posts:   posts,
		Total:   total,
		HasMore: startIndex+len(posts) < total,
	}, nil
}

// uploadImage は画像をブロブストアへアップロードする。
// 失敗はアップストリームエラーとして呼び出し元の操作全体を中断させる。
func (s *Service) uploadImage(ctx context.Context, upload *ImageUpload) (*model.FeaturedImage, error) {
	if s.blobStore == nil {
		return nil, model.NewImageUploadFailedError()
	}

	start := time.Now()
	image, err := s.blobStore.Upload(ctx, upload.Data, upload.FileName)
	if err != nil {
		return nil, model.NewImageUploadFailedError()
	}

	if s.metrics != nil {
		s.metrics.RecordImageUploadDuration(time.Since(start).Seconds())
	}

	return image, nil
}

// cleanupImage はブロブストア上の画像をベストエフォートで削除する。
// ファイルIDを持たない画像や削除失敗は無視する。
func (s *Service) cleanupImage(ctx context.Context, image *model.FeaturedImage) {
	if image == nil || image.FileID == "" || s.blobStore == nil {
		return
	}
	// 失敗してもブロブが孤児になるだけで記事操作には影響しない
	_, _ = s.blobStore.Delete(ctx, image.FileID)
}

// missingFields は必須項目のうち空のものを列挙する。
func missingFields(fields map[string]string) []string {
	order := []string{"title", "content", "category", "author"}
	var missing []string
	for _, name := range order {
		if value, ok := fields[name]; ok && value == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
