package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/elitegames/backend-store/internal/common"
)

// AdminHandler exposes product and category management endpoints.
type AdminHandler struct {
	service  *Service
	validate *validator.Validate
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(service *Service, validate *validator.Validate) *AdminHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &AdminHandler{service: service, validate: validate}
}

type productPayload struct {
	Name        string  `json:"name" validate:"required"`
	Slug        string  `json:"slug" validate:"required"`
	Description string  `json:"description"`
	ProductType string  `json:"productType" validate:"required"`
	Price       int64   `json:"price" validate:"gte=0"`
	SalePrice   *int64  `json:"salePrice" validate:"omitempty,gte=0"`
	Active      bool    `json:"active"`
	CategoryID  *string `json:"categoryId" validate:"omitempty,uuid"`
}

type categoryPayload struct {
	Name     string  `json:"name" validate:"required"`
	Slug     string  `json:"slug" validate:"required"`
	ParentID *string `json:"parentId" validate:"omitempty,uuid"`
}

// CreateProduct handles POST /api/v1/admin/products.
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	dto, err := h.service.CreateProduct(r.Context(), productInput(payload))
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": dto})
}

// UpdateProduct handles PUT /api/v1/admin/products/{id}.
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	dto, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), productInput(payload))
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": dto})
}

// DeleteProduct handles DELETE /api/v1/admin/products/{id}.
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCategory handles POST /api/v1/admin/categories.
func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeCategory(w, r)
	if !ok {
		return
	}
	dto, err := h.service.CreateCategory(r.Context(), CategoryInput{Name: payload.Name, Slug: payload.Slug, ParentID: payload.ParentID})
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": dto})
}

// UpdateCategory handles PUT /api/v1/admin/categories/{id}.
func (h *AdminHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeCategory(w, r)
	if !ok {
		return
	}
	dto, err := h.service.UpdateCategory(r.Context(), chi.URLParam(r, "id"), CategoryInput{Name: payload.Name, Slug: payload.Slug, ParentID: payload.ParentID})
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": dto})
}

// DeleteCategory handles DELETE /api/v1/admin/categories/{id}.
func (h *AdminHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		common.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (productPayload, bool) {
	var payload productPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return payload, false
	}
	if err := h.validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid product payload", validationDetails(err))
		return payload, false
	}
	return payload, true
}

func (h *AdminHandler) decodeCategory(w http.ResponseWriter, r *http.Request) (categoryPayload, bool) {
	var payload categoryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return payload, false
	}
	if err := h.validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid category payload", validationDetails(err))
		return payload, false
	}
	return payload, true
}

func productInput(p productPayload) ProductInput {
	return ProductInput{
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		ProductType: p.ProductType,
		Price:       p.Price,
		SalePrice:   p.SalePrice,
		Active:      p.Active,
		CategoryID:  p.CategoryID,
	}
}

func validationDetails(err error) map[string]any {
	fields := map[string]any{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return map[string]any{"fields": fields}
}
