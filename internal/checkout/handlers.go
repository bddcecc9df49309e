package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/elitegames/backend-store/internal/common"
	"github.com/elitegames/backend-store/internal/obs"
)

// Handler exposes the quote and checkout endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(service *Service, validate *validator.Validate) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	return &Handler{service: service, validate: validate}
}

type checkoutRequest struct {
	Items []CartItem `json:"items" validate:"required,min=1,dive"`
}

// Quote handles POST /api/v1/checkout/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	quote, err := h.service.ComputeQuote(r.Context(), req.Items)
	if err != nil {
		countQuote("error")
		common.RespondError(w, err)
		return
	}
	countQuote("ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

// Create handles POST /api/v1/checkout.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	dto, err := h.service.CreateOrder(r.Context(), userID, req.Items)
	if err != nil {
		countCheckout("error")
		common.RespondError(w, err)
		return
	}
	countCheckout("ok")
	common.JSON(w, http.StatusCreated, map[string]any{"data": dto})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (checkoutRequest, bool) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		var details any
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := map[string]any{}
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			details = map[string]any{"fields": fields}
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid checkout payload", details)
		return req, false
	}
	return req, true
}

func countQuote(result string) {
	if obs.QuoteTotal != nil {
		obs.QuoteTotal.WithLabelValues(result).Inc()
	}
}

func countCheckout(result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result).Inc()
	}
}
