package router

import (
	"github.com/swordot/portal/internal/application"
	"github.com/swordot/portal/internal/container"
	handlers "github.com/swordot/portal/internal/interface/http"
	"github.com/swordot/portal/internal/router/modules"
)

type AccountModuleDeps struct {
	Service *application.AccountService
	Handler *handlers.AccountHandler
}

type SessionModuleDeps struct {
	Service *application.SessionService
	Handler *handlers.SessionHandler
}

func buildAccountDeps(c *container.Container) AccountModuleDeps {
	cfg := c.Config
	opts := []application.AccountOption{
		application.WithMetrics(c.Recorder()),
		application.WithDetailCache(cfg.AccountCacheTTL),
	}
	if idx := c.AccountIndex(); idx != nil {
		opts = append(opts, application.WithAccountIndex(idx))
	}
	if pub := c.EmailPublisher(); pub != nil {
		opts = append(opts, application.WithWelcomeMail(pub, application.PortalLinks{
			Name:       cfg.PortalName,
			URL:        cfg.PortalURL,
			SupportURL: cfg.SupportURL,
		}))
	}

	service := application.NewAccountService(c.Accounts, c.Hasher, c.Redis, c.Logger, opts...)
	return AccountModuleDeps{
		Service: service,
		Handler: handlers.NewAccountHandler(service, c.Logger),
	}
}

func buildSessionDeps(c *container.Container) SessionModuleDeps {
	service := application.NewSessionService(c.Accounts, c.Hasher, c.JWT, c.Redis, c.Logger, c.Config.SessionTTL, c.Recorder())
	return SessionModuleDeps{
		Service: service,
		Handler: handlers.NewSessionHandler(service, c.Logger, c.Config.CookieDomain, c.Config.CookieSecure),
	}
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry, c *container.Container) {
	accountDeps := buildAccountDeps(c)
	sessionDeps := buildSessionDeps(c)

	r.Add(modules.NewAccountModule(accountDeps.Handler, sessionDeps.Service, c.JWT))
	r.Add(modules.NewSessionModule(sessionDeps.Handler, sessionDeps.Service, c.JWT))
	if c.Config.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(c.Gatherer))
	}
}
