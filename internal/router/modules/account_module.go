package modules

import (
	"github.com/gin-gonic/gin"

	handlers "github.com/swordot/portal/internal/interface/http"
	"github.com/swordot/portal/internal/interface/middleware"
	"github.com/swordot/portal/pkg/helpers"
)

// AccountModule wires account creation, lookup and search.
// Public: POST /api/account/create (any other method: 405), POST /api/accounts,
// GET /api/search/accounts, GET /api/accounts/:name (viewer resolved when signed in)
type AccountModule struct {
	Handler  *handlers.AccountHandler
	Sessions middleware.SessionValidator
	JWT      *helpers.JWTManager
}

func NewAccountModule(h *handlers.AccountHandler, sessions middleware.SessionValidator, jwt *helpers.JWTManager) *AccountModule {
	return &AccountModule{Handler: h, Sessions: sessions, JWT: jwt}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	rg.Any("/account/create", m.Handler.Create)
	rg.POST("/accounts", m.Handler.Create)
	rg.GET("/search/accounts", m.Handler.Search)

	viewer := rg.Group("/")
	viewer.Use(middleware.OptionalAuth(m.Sessions, m.JWT))
	{
		viewer.GET("/accounts/:name", m.Handler.GetByName)
	}
}
