package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/okane/internal/model"
)

// DealServiceInterface はお得情報ハンドラーが必要とするサービスインターフェース。
type DealServiceInterface interface {
	Latest(ctx context.Context, limit int) ([]*model.Deal, error)
}

// DealHandler はお得情報のHTTPハンドラー。
type DealHandler struct {
	service DealServiceInterface
}

// NewDealHandler はDealHandlerを生成する。
func NewDealHandler(service DealServiceInterface) *DealHandler {
	return &DealHandler{service: service}
}

type dealResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Summary     string     `json:"summary"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// ListDeals は新しい順にお得情報を返す。
// GET /api/deals?limit=n
func (h *DealHandler) ListDeals(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	deals, err := h.service.Latest(r.Context(), queryLimit(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]dealResponse, 0, len(deals))
	for _, d := range deals {
		resp = append(resp, dealResponse{
			ID:          d.ID,
			Title:       d.Title,
			Link:        d.Link,
			Summary:     d.Summary,
			PublishedAt: d.PublishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deals": resp})
}
