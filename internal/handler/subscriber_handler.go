package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/subscriber"
)

// SubscriberServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriberServiceInterface interface {
	// Subscribe はメールアドレスをニュースレター購読者として登録する。
	Subscribe(ctx context.Context, input subscriber.SubscribeInput) (*subscriber.SubscribeResult, error)
	// Unsubscribe はメールアドレスの購読を解除する。
	Unsubscribe(ctx context.Context, email string) error
	// List は購読者一覧をページネーション付きで返す。
	List(ctx context.Context, activeOnly bool, page, limit int) (*subscriber.ListResult, error)
}

// SubscriberHandler はニュースレター購読管理のHTTPハンドラー。
type SubscriberHandler struct {
	service SubscriberServiceInterface
}

// NewSubscriberHandler はSubscriberHandlerを生成する。
func NewSubscriberHandler(service SubscriberServiceInterface) *SubscriberHandler {
	return &SubscriberHandler{service: service}
}

// subscribeRequest は購読登録リクエストのボディ。
type subscribeRequest struct {
	Email       string              `json:"email"`
	Preferences *preferencesPayload `json:"preferences,omitempty"`
}

// preferencesPayload は配信設定の入出力。
type preferencesPayload struct {
	Categories []string `json:"categories"`
	Frequency  string   `json:"frequency"`
}

// unsubscribeRequest は購読解除リクエストのボディ。
type unsubscribeRequest struct {
	Email string `json:"email"`
}

// subscriberResponse は購読者のAPIレスポンス。
// リクエストメタデータ（IPアドレス、ユーザーエージェント）は含めない。
type subscriberResponse struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	IsActive     bool               `json:"is_active"`
	SubscribedAt time.Time          `json:"subscribed_at"`
	Preferences  preferencesPayload `json:"preferences"`
}

// subscribeResponse は購読登録のレスポンス。
type subscribeResponse struct {
	Subscriber  subscriberResponse `json:"subscriber"`
	Reactivated bool               `json:"reactivated"`
}

// subscriberListResponse は購読者一覧のレスポンス。
type subscriberListResponse struct {
	Subscribers []subscriberResponse `json:"subscribers"`
	Page        int                  `json:"page"`
	Limit       int                  `json:"limit"`
	Total       int                  `json:"total"`
	Pages       int                  `json:"pages"`
}

// Subscribe はニュースレター購読を登録する。
// リクエスト元のIPアドレス・ユーザーエージェント・リファラをメタデータとして記録する。
// POST /api/newsletter/subscribe
func (h *SubscriberHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	input := subscriber.SubscribeInput{
		Email: req.Email,
		Metadata: model.SubscriberMetadata{
			IPAddress: middleware.ClientIP(r),
			UserAgent: r.UserAgent(),
			Referrer:  r.Referer(),
		},
	}
	if req.Preferences != nil {
		prefs := &model.Preferences{
			Frequency: model.Frequency(req.Preferences.Frequency),
		}
		// categories未指定とカテゴリ全解除を区別するためnilを保持する
		if req.Preferences.Categories != nil {
			prefs.Categories = make([]model.Category, len(req.Preferences.Categories))
			for i, c := range req.Preferences.Categories {
				prefs.Categories[i] = model.Category(c)
			}
		}
		input.Preferences = prefs
	}

	result, err := h.service.Subscribe(r.Context(), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Reactivated {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(subscribeResponse{
		Subscriber:  toSubscriberResponse(result.Subscriber),
		Reactivated: result.Reactivated,
	})
}

// Unsubscribe はニュースレター購読を解除する。
// POST /api/newsletter/unsubscribe
func (h *SubscriberHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	if err := h.service.Unsubscribe(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscribers は購読者一覧を取得する。
// GET /api/newsletter/subscribers?active=true&page=1&limit=50
func (h *SubscriberHandler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activeOnly := q.Get("active") != "false"

	result, err := h.service.List(r.Context(), activeOnly,
		parseIntParam(q.Get("page"), 1), parseIntParam(q.Get("limit"), 50))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	subs := make([]subscriberResponse, len(result.Subscribers))
	for i, s := range result.Subscribers {
		subs[i] = toSubscriberResponse(s)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subscriberListResponse{
		Subscribers: subs,
		Page:        result.Page,
		Limit:       result.Limit,
		Total:       result.Total,
		Pages:       result.Pages,
	})
}

// toSubscriberResponse はmodel.SubscriberからAPIレスポンスに変換する。
func toSubscriberResponse(s *model.Subscriber) subscriberResponse {
	categories := make([]string, len(s.Preferences.Categories))
	for i, c := range s.Preferences.Categories {
		categories[i] = string(c)
	}
	return subscriberResponse{
		ID:           s.ID,
		Email:        s.Email,
		IsActive:     s.IsActive,
		SubscribedAt: s.SubscribedAt,
		Preferences: preferencesPayload{
			Categories: categories,
			Frequency:  string(s.Preferences.Frequency),
		},
	}
}
