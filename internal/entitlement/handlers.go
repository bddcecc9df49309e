package entitlement

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/elitegames/backend-store/internal/common"
)

// Handler exposes the premium standing of the authenticated user.
type Handler struct {
	Grantor *Grantor
}

// Premium responds with GET /users/me/premium.
func (h Handler) Premium(w http.ResponseWriter, r *http.Request) {
	rawID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	status, err := h.Grantor.Status(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "PREMIUM_STATUS_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": status})
}
