package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusconnect/apperr"
	"campusconnect/auth"
	"campusconnect/models"
)

type authResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
}

// Signup handles POST /api/auth/signup.
func (h *Handlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.KindInternal, "hash password", err))
		return
	}
	user, err := h.DB.CreateUser(c.Request.Context(), models.NewUser{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         models.RoleUser,
		RollNumber:   models.OptionalString(req.RollNumber),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.KindInternal, "issue token", err))
		return
	}
	respond(c, http.StatusCreated, authResponse{Message: "User registered successfully", Token: token, User: user})
}

// Login handles POST /api/auth/login. Unknown emails and wrong passwords get
// the same answer.
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	invalid := apperr.Unauthorized("Invalid credentials")
	user, err := h.DB.UserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			h.respondError(c, invalid)
			return
		}
		h.respondError(c, err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			h.respondError(c, invalid)
			return
		}
		h.respondError(c, apperr.Wrap(apperr.KindInternal, "check password", err))
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.KindInternal, "issue token", err))
		return
	}
	respond(c, http.StatusOK, authResponse{Message: "Login successful", Token: token, User: user})
}

// Profile handles GET /api/profile.
func (h *Handlers) Profile(c *gin.Context) {
	respond(c, http.StatusOK, currentUser(c))
}

// UpdateProfile handles PUT /api/profile.
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}
	user, err := h.DB.UpdateProfile(c.Request.Context(), currentUser(c).ID, req.Name, models.OptionalString(req.RollNumber))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Profile updated successfully", "user": user})
}
