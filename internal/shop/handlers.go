package shop

import (
	"encoding/json"
	"net/http"

	"github.com/elitegames/backend-store/internal/common"
)

// Handler exposes admin endpoints for the shop configuration.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type settingsPayload struct {
	FirstBoardGamePrice      int64  `json:"firstBoardGamePrice"`
	AdditionalBoardGamePrice int64  `json:"additionalBoardGamePrice"`
	FreeShippingThreshold    int64  `json:"freeShippingThreshold"`
	StandardShippingCost     int64  `json:"standardShippingCost"`
	TaxRateBps               int    `json:"taxRateBps"`
	Currency                 string `json:"currency"`
}

// Get handles GET /api/v1/admin/settings.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Get(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toPayload(settings)})
}

// Update handles PUT /api/v1/admin/settings.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var payload settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	stored, err := h.service.Update(r.Context(), Settings{
		FirstBoardGamePrice:      payload.FirstBoardGamePrice,
		AdditionalBoardGamePrice: payload.AdditionalBoardGamePrice,
		FreeShippingThreshold:    payload.FreeShippingThreshold,
		StandardShippingCost:     payload.StandardShippingCost,
		TaxRateBps:               payload.TaxRateBps,
		Currency:                 payload.Currency,
	})
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toPayload(stored)})
}

func toPayload(s Settings) settingsPayload {
	return settingsPayload{
		FirstBoardGamePrice:      s.FirstBoardGamePrice,
		AdditionalBoardGamePrice: s.AdditionalBoardGamePrice,
		FreeShippingThreshold:    s.FreeShippingThreshold,
		StandardShippingCost:     s.StandardShippingCost,
		TaxRateBps:               s.TaxRateBps,
		Currency:                 s.Currency,
	}
}
