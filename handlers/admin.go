package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusconnect/models"
)

// Stats handles GET /api/admin/stats.
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.DB.DashboardStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, stats)
}

// AdminEventRegistrations handles GET /api/admin/events/:id/registrations.
func (h *Handlers) AdminEventRegistrations(c *gin.Context) {
	roster, err := h.DB.EventRegistrations(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, roster)
}

// ListUsers handles GET /api/admin/users.
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.DB.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, users)
}

// UpdateUserRole handles PATCH /api/admin/users/:id/role.
func (h *Handlers) UpdateUserRole(c *gin.Context) {
	var req models.UpdateRoleRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	user, err := h.DB.UpdateRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "User role updated successfully", "user": user})
}
