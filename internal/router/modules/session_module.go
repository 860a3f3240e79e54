package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/swordot/portal/internal/interface/http"
	"github.com/swordot/portal/internal/interface/middleware"
	"github.com/swordot/portal/pkg/helpers"
)

// SessionModule wires sign in and sign out.
// Public: POST /api/login, POST /api/refresh, GET /api/session
// Protected: POST /api/logout
type SessionModule struct {
	Handler  *handlers.SessionHandler
	Sessions middleware.SessionValidator
	JWT      *helpers.JWTManager
}

func NewSessionModule(h *handlers.SessionHandler, sessions middleware.SessionValidator, jwt *helpers.JWTManager) *SessionModule {
	return &SessionModule{Handler: h, Sessions: sessions, JWT: jwt}
}

func (m *SessionModule) Register(rg *gin.RouterGroup) {
	rg.POST("/login", m.Handler.Login)
	rg.POST("/refresh", m.Handler.Refresh)
	rg.GET("/session", middleware.OptionalAuth(m.Sessions, m.JWT), m.Handler.Session)

	auth := rg.Group("/")
	auth.Use(middleware.Auth(m.Sessions, m.JWT))
	{
		auth.POST("/logout", m.Handler.Logout)
	}
}
