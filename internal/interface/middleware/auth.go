package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swordot/portal/internal/application"
	"github.com/swordot/portal/pkg/helpers"
	"github.com/swordot/portal/pkg/response"
)

const (
	CtxAccountIDKey   = "accountID"
	CtxAccountNameKey = "accountName"
)

// SessionValidator confirms that a token still belongs to the active session.
type SessionValidator interface {
	Validate(ctx context.Context, claims *helpers.Claims) (*application.SessionUser, error)
}

// Auth validates the access token cookie and requires an active session.
// It sets accountID and accountName in the Gin context on success.
func Auth(sessions SessionValidator, jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, status, msg := authenticate(c, sessions, jwt)
		if user == nil {
			response.Abort(c, status, msg, nil)
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// OptionalAuth sets the signed-in account when there is one and never rejects the request.
func OptionalAuth(sessions SessionValidator, jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, _, _ := authenticate(c, sessions, jwt); user != nil {
			setUser(c, user)
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, sessions SessionValidator, jwt *helpers.JWTManager) (*application.SessionUser, int, string) {
	token, err := c.Cookie(helpers.AccessCookie)
	if err != nil || token == "" {
		return nil, http.StatusUnauthorized, "missing access token"
	}
	claims, err := jwt.ParseAccessToken(token)
	if err != nil {
		return nil, http.StatusUnauthorized, "invalid access token"
	}
	user, err := sessions.Validate(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, application.ErrSessionNotFound) {
			return nil, http.StatusUnauthorized, "session not found"
		}
		return nil, http.StatusInternalServerError, "internal error"
	}
	return user, 0, ""
}

func setUser(c *gin.Context, u *application.SessionUser) {
	c.Set(CtxAccountIDKey, u.ID)
	c.Set(CtxAccountNameKey, u.Name)
}

// CurrentUser returns the account set by Auth or OptionalAuth.
func CurrentUser(c *gin.Context) (*application.SessionUser, bool) {
	name := c.GetString(CtxAccountNameKey)
	if name == "" {
		return nil, false
	}
	return &application.SessionUser{ID: c.GetInt64(CtxAccountIDKey), Name: name}, true
}
