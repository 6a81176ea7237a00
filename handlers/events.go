package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"campusconnect/apperr"
	"campusconnect/models"
)

// ListEvents handles GET /api/events.
func (h *Handlers) ListEvents(c *gin.Context) {
	var q models.ListEventsQuery
	if err := bindQuery(c, &q); err != nil {
		h.respondError(c, err)
		return
	}
	list, err := h.DB.ListEvents(c.Request.Context(), models.EventQuery{
		ViewerID: currentUser(c).ID,
		Page:     q.Page,
		Limit:    q.Limit,
		Search:   q.Search,
		Filter:   q.Filter,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, list)
}

// GetEvent handles GET /api/events/:id.
func (h *Handlers) GetEvent(c *gin.Context) {
	view, err := h.DB.EventView(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

func parseDate(s string) (time.Time, error) {
	t, err := models.ParseEventDate(s)
	if err != nil {
		return time.Time{}, apperr.Validation("Validation failed", apperr.FieldError{Field: "date", Message: "Invalid date format"})
	}
	return t, nil
}

// CreateEvent handles POST /api/events.
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.respondError(c, err)
		return
	}

	event, err := h.DB.CreateEvent(c.Request.Context(), models.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		Date:        date,
		Time:        req.Time,
		Capacity:    int(req.Capacity),
		ImageURL:    models.OptionalString(req.ImageURL),
		Category:    models.OptionalString(req.Category),
		Organizer:   models.OptionalString(req.Organizer),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"message": "Event created successfully", "event": event})
}

// UpdateEvent handles PUT /api/events/:id. Absent fields keep their value.
func (h *Handlers) UpdateEvent(c *gin.Context) {
	var req models.UpdateEventRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	patch := models.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		Time:        req.Time,
		ImageURL:    req.ImageURL,
		Category:    req.Category,
		Organizer:   req.Organizer,
	}
	required := []struct {
		field string
		value *string
	}{
		{"title", req.Title},
		{"description", req.Description},
		{"venue", req.Venue},
		{"time", req.Time},
	}
	for _, r := range required {
		if r.value != nil && strings.TrimSpace(*r.value) == "" {
			h.respondError(c, apperr.Validation("Validation failed", apperr.FieldError{Field: r.field, Message: r.field + " cannot be empty"}))
			return
		}
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			h.respondError(c, err)
			return
		}
		patch.Date = &date
	}
	if req.Capacity != nil {
		capacity := int(*req.Capacity)
		patch.Capacity = &capacity
	}
	if req.ImageURL != nil && strings.TrimSpace(*req.ImageURL) != "" {
		if err := validateURL("imageUrl", strings.TrimSpace(*req.ImageURL)); err != nil {
			h.respondError(c, err)
			return
		}
	}

	event, err := h.DB.UpdateEvent(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Event updated successfully", "event": event})
}

// DeleteEvent handles DELETE /api/events/:id. The event's registrations go with it.
func (h *Handlers) DeleteEvent(c *gin.Context) {
	if err := h.DB.DeleteEvent(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Event deleted successfully"})
}

// EventRegistrationList handles GET /api/events/:id/registrations.
func (h *Handlers) EventRegistrationList(c *gin.Context) {
	roster, err := h.DB.EventRegistrations(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, roster.Registrations)
}
