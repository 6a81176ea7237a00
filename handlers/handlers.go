// Package handlers implements the HTTP API on gin.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"campusconnect/apperr"
	"campusconnect/auth"
	"campusconnect/db"
	"campusconnect/middleware"
	"campusconnect/models"
)

// Handlers carries the dependencies every route needs.
type Handlers struct {
	DB     *db.DB
	Tokens *auth.Issuer
	Logger *slog.Logger
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// errorResponse is the only error envelope the API sends.
type errorResponse struct {
	Error   string              `json:"error"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// respond is a helper for sending JSON responses.
func respond(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// respondError translates err once, at the boundary. Internal failures are
// logged and hidden behind a generic message.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Wrap(apperr.KindInternal, "unexpected error", err)
	}
	status := ae.Kind.HTTPStatus()
	msg := ae.Message
	switch ae.Kind {
	case apperr.KindInternal:
		h.logger().ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		msg = "Internal server error"
	case apperr.KindTimeout:
		h.logger().WarnContext(c.Request.Context(), "request timed out",
			"path", c.Request.URL.Path,
			"error", err,
		)
	}
	_ = c.Error(err)
	respond(c, status, errorResponse{Error: msg, Details: ae.Details})
}

// currentUser returns the caller set by the auth middleware.
func currentUser(c *gin.Context) *models.User {
	u, _ := middleware.CurrentUser(c)
	return u
}

var registerTagNames sync.Once

// useJSONFieldNames makes validation errors report JSON field names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	})
}

// bindJSON decodes and validates the body into dst.
func bindJSON(c *gin.Context, dst any) error {
	return bindingError(c.ShouldBindJSON(dst))
}

// bindQuery decodes and validates the query string into dst.
func bindQuery(c *gin.Context, dst any) error {
	return bindingError(c.ShouldBindQuery(dst))
}

func bindingError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]apperr.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, apperr.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return apperr.Validation("Validation failed", details...)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.Validation("Validation failed", apperr.FieldError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("Expected %s", typeErr.Type.Kind()),
		})
	}
	return apperr.Validation("Invalid request body", apperr.FieldError{Field: "body", Message: err.Error()})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Invalid email address"
	case "url":
		return "Invalid URL"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// validateURL applies the same url rule the create form uses.
func validateURL(field, value string) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.Var(value, "url"); err != nil {
		return apperr.Validation("Validation failed", apperr.FieldError{Field: field, Message: "Invalid URL"})
	}
	return nil
}

// Health reports liveness and whether the store answers.
func (h *Handlers) Health(c *gin.Context) {
	if err := h.DB.Ping(c.Request.Context()); err != nil {
		h.logger().ErrorContext(c.Request.Context(), "health check failed", "error", err)
		respond(c, http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Database unreachable"})
		return
	}
	respond(c, http.StatusOK, gin.H{"status": "ok", "message": "CampusConnect API is running"})
}

// NotFound answers unknown routes.
func NotFound(c *gin.Context) {
	respond(c, http.StatusNotFound, errorResponse{Error: "Route not found"})
}
