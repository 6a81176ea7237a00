package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register handles POST /api/events/:id/register.
func (h *Handlers) Register(c *gin.Context) {
	reg, err := h.DB.CreateRegistration(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"message": "Registration successful", "registration": reg})
}

// MyRegistrations handles GET /api/registrations/my.
func (h *Handlers) MyRegistrations(c *gin.Context) {
	regs, err := h.DB.UserRegistrations(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, regs)
}

// GetRegistration handles GET /api/registrations/:id.
func (h *Handlers) GetRegistration(c *gin.Context) {
	reg, err := h.DB.Registration(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, reg)
}

// CancelRegistration handles DELETE /api/registrations/:id.
func (h *Handlers) CancelRegistration(c *gin.Context) {
	if err := h.DB.CancelRegistration(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Registration cancelled successfully"})
}

// VerifyRegistration handles GET /api/registrations/verify/:token. Scanning
// the same pass twice is not an error.
func (h *Handlers) VerifyRegistration(c *gin.Context) {
	reg, already, err := h.DB.VerifyAttendance(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	msg := "Check-in successful"
	if already {
		msg = "Already checked in"
	}
	respond(c, http.StatusOK, gin.H{"message": msg, "registration": reg})
}
