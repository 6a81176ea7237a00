package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusconnect/apperr"
	"campusconnect/auth"
	"campusconnect/models"
)

const userKey = "user"

// TokenParser verifies a bearer token.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// UserLoader fetches the account behind a verified token.
type UserLoader interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
}

// Auth verifies the Authorization: Bearer <token> header and stores the
// caller's current account in the gin context. The role used for access
// checks is the stored one, not the claim, so demotions apply at once.
func Auth(tokens TokenParser, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, "Access token required")
			return
		}
		raw, ok := auth.BearerToken(header)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token expired"
			}
			abort(c, http.StatusUnauthorized, msg)
			return
		}

		user, err := users.UserByID(c.Request.Context(), claims.Subject)
		if err != nil {
			kind := apperr.KindOf(err)
			switch kind {
			case apperr.KindNotFound:
				abort(c, http.StatusUnauthorized, "User not found")
			case apperr.KindTimeout:
				abort(c, kind.HTTPStatus(), "The request timed out, please retry")
			default:
				_ = c.Error(err)
				abort(c, http.StatusInternalServerError, "Internal server error")
			}
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// RequireAdmin lets only admins through. It must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Access token required")
			return
		}
		if !user.IsAdmin() {
			abort(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the account stored by Auth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}
