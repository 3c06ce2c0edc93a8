package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/profile"
	"github.com/hitoshi/okane/internal/score"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// Load はプロフィールを返す。初期設定未完了の場合は (nil, nil, nil)。
	// 自由記述が失われている場合は raw だけが nil になる。
	Load(ctx context.Context, userID string) (*model.RawProfile, *model.StructuredProfile, error)
}

// ProfileHandler はプロフィールとお財布スコアのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

type profileResponse struct {
	Raw        *model.RawProfile        `json:"raw"`
	Structured *model.StructuredProfile `json:"structured"`
	// Restored がtrueの場合、Raw は構造化プロフィールから復元した表示用の値で、年収と純資産を含まない。
	Restored bool `json:"restored"`
}

type scoreResponse struct {
	model.ScoreBreakdown
	Rating score.Rating `json:"rating"`
	Advice string       `json:"advice,omitempty"`
	// HasProfile がfalseの場合、内訳は既定値。
	HasProfile bool `json:"hasProfile"`
}

// GetProfile は自由記述と構造化の両方のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	raw, structured, err := h.service.Load(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if raw == nil && structured == nil {
		handleServiceError(w, model.NewProfileNotFoundError())
		return
	}
	if raw == nil {
		restored := profile.ToRaw(*structured, time.Now())
		writeJSON(w, http.StatusOK, profileResponse{Raw: &restored, Structured: structured, Restored: true})
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{Raw: raw, Structured: structured})
}

// GetScore はお財布スコアの内訳、評価区分、アドバイスを返す。
// 自由記述のプロフィールが無い場合は既定値の内訳を返す。
// GET /api/score
func (h *ProfileHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	raw, _, err := h.service.Load(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	breakdown := score.Compute(raw)
	writeJSON(w, http.StatusOK, scoreResponse{
		ScoreBreakdown: breakdown,
		Rating:         score.Rate(breakdown.OverallScore),
		Advice:         score.Advice(breakdown.OverallScore),
		HasProfile:     raw != nil,
	})
}
