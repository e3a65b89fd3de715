// README: The caller's own profile.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tejith7/project-bolt/internal/http/middleware"
	"github.com/tejith7/project-bolt/internal/modules/identity"
	"github.com/tejith7/project-bolt/internal/types"
)

type ProfileService interface {
	Get(ctx context.Context, id types.ID) (identity.Profile, error)
	Register(ctx context.Context, p identity.Profile) (identity.Profile, error)
}

type ProfileHandler struct {
	profiles ProfileService
}

func NewProfileHandler(p ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: p}
}

func (h *ProfileHandler) Me(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type profileReq struct {
	Name           string           `json:"name"`
	Email          string           `json:"email"`
	Role           identity.Role    `json:"role"`
	ProfilePicture string           `json:"profile_picture"`
	Vehicle        identity.Vehicle `json:"vehicle"`
}

// Update registers or edits the caller's profile. The id always comes from the token.
func (h *ProfileHandler) Update(c *gin.Context) {
	var req profileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.profiles.Register(c.Request.Context(), identity.Profile{
		ID:             types.ID(middleware.CallerUID(c)),
		Name:           req.Name,
		Email:          req.Email,
		Role:           req.Role,
		ProfilePicture: req.ProfilePicture,
		Vehicle:        req.Vehicle,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}
