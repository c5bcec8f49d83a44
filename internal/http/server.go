package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/prestigewebb/twilio-manager/internal/auth"
	"github.com/prestigewebb/twilio-manager/internal/config"
	"github.com/prestigewebb/twilio-manager/internal/http/middleware"
	"github.com/prestigewebb/twilio-manager/internal/manager"
	"github.com/prestigewebb/twilio-manager/internal/store"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

// NewServer wires the dashboard routes. Everything lives under the
// configured base path; the reverse proxy forwards the prefix unchanged and
// terminates TLS upstream.
func NewServer(cfg config.Config, mgr *manager.Manager, authn *auth.Authenticator, rds *redis.Client, transfers store.TransfersRepository) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())
	e.Renderer = newRenderer()

	base := strings.TrimRight(cfg.HTTP.BasePath, "/")
	g := e.Group(base)

	// health: _stcore/health keeps the pre-existing orchestration probe path
	health := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	g.GET("/_stcore/health", health)
	g.GET("/healthz", health)

	g.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// login
	loginRL := middleware.LoginRateLimit(middleware.LoginRateLimitConfig{
		Redis:       rds,
		MaxAttempts: cfg.RateLimit.LoginAttempts,
		Window:      cfg.RateLimit.Window,
	})
	g.GET("/login", loginPageHandler(base))
	g.POST("/login", loginHandler(authn, base), loginRL)
	g.POST("/logout", logoutHandler(base))

	sessionMW := middleware.SessionMiddleware(authn, base+"/login")

	// operator UI
	ui := g.Group("", sessionMW)
	ui.GET("", dashboardHandler(mgr, base))
	ui.GET("/", dashboardHandler(mgr, base))
	ui.GET("/audit", auditPageHandler(transfers, base))
	ui.POST("/transfer", transferFormHandler(mgr, base))

	// JSON API
	api := g.Group("/api/v1", sessionMW)
	api.GET("/subaccounts", listSubaccountsHandler(mgr))
	api.POST("/subaccounts/refresh", refreshSubaccountsHandler(mgr))
	api.GET("/subaccounts/:sid/numbers", listNumbersHandler(mgr))
	api.GET("/subaccounts/:sid/bundles", listBundlesHandler(mgr))
	api.GET("/subaccounts/:sid/addresses", listAddressesHandler(mgr))
	api.POST("/transfers", transferHandler(mgr))
	api.GET("/transfers", listTransfersHandler(transfers))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error { return s.e.Start(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.e }
