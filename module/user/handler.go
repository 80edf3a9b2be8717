package user

import (
	"net/http"

	midsec "PPRealtime/middleware/security"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	profiles ProfileProvider
}

func NewHandler(profiles ProfileProvider) *Handler {
	return &Handler{profiles: profiles}
}

// Me GET /api/users/me
func (h *Handler) Me(c *gin.Context) {
	principal := midsec.Principal(c)
	c.JSON(http.StatusOK, Lookup(c.Request.Context(), h.profiles, principal))
}
