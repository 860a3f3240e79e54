package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swordot/portal/internal/application"
	"github.com/swordot/portal/internal/interface/middleware"
	"github.com/swordot/portal/pkg/helpers"
	"github.com/swordot/portal/pkg/response"
	"github.com/swordot/portal/pkg/validation"
)

type SessionHandler struct {
	Svc     *application.SessionService
	Logger  *logrus.Logger
	Cookies *helpers.Manager
}

func NewSessionHandler(svc *application.SessionService, logger *logrus.Logger, cookieDomain string, cookieSecure bool) *SessionHandler {
	return &SessionHandler{Svc: svc, Logger: logger, Cookies: helpers.NewCookie(cookieDomain, cookieSecure)}
}

type loginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, msgInvalidPayload, validation.ToDetails(err))
		return
	}

	user, pair, err := h.Svc.Login(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, application.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		internalError(c, h.Logger, "login failed", err)
		return
	}
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	response.JSON(c, http.StatusOK, gin.H{"user": user})
}

func (h *SessionHandler) Refresh(c *gin.Context) {
	refresh, err := c.Cookie(helpers.RefreshCookie)
	if err != nil || refresh == "" {
		response.Error(c, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}
	pair, user, err := h.Svc.Refresh(c.Request.Context(), refresh)
	if err != nil {
		if errors.Is(err, application.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "invalid refresh token", nil)
			return
		}
		internalError(c, h.Logger, "refresh failed", err)
		return
	}
	h.Cookies.SetPair(c, pair.AccessToken, pair.AccessTokenExpiry, pair.RefreshToken, pair.RefreshTokenExpiry)
	response.JSON(c, http.StatusOK, gin.H{"user": user})
}

// Logout requires Auth.
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.Svc.Logout(c.Request.Context(), c.GetInt64(middleware.CtxAccountIDKey)); err != nil {
		internalError(c, h.Logger, "logout failed", err)
		return
	}
	h.Cookies.Clear(c)
	response.JSON(c, http.StatusOK, gin.H{"logged_out": true})
}

// Session reports the signed-in account, or a null user. Requires OptionalAuth.
func (h *SessionHandler) Session(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.JSON(c, http.StatusOK, gin.H{"user": nil})
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"user": user})
}
