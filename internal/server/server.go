package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/Wikid82/sentinel/internal/api/middleware"
	"github.com/Wikid82/sentinel/internal/api/routes"
	"github.com/Wikid82/sentinel/internal/config"
	"github.com/Wikid82/sentinel/internal/logger"
	"github.com/Wikid82/sentinel/internal/sentinel"
	"github.com/Wikid82/sentinel/internal/services"
)

// Deps are the collaborators the router is built from.
type Deps struct {
	DB       *gorm.DB
	Engine   *sentinel.Engine
	Service  *services.SentinelService
	Gatherer prometheus.Gatherer
}

// Server wraps the public and admin HTTP engines for easier testing.
type Server struct {
	// Engine serves the protected site; every request is inspected.
	Engine *gin.Engine
	// Admin serves the control plane and metrics on its own listener.
	Admin *gin.Engine
	cfg   config.Config
}

// New wires up both routers. The public router answers the health check and
// hands everything else to the engine and then the protected site. The
// control plane and metrics are only mounted on the admin router, which Run
// binds to cfg.AdminAddr.
func New(cfg config.Config, deps Deps) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Recovery(cfg.Debug))
	routes.Register(router)

	site, err := siteHandler(cfg)
	if err != nil {
		return nil, err
	}
	router.NoRoute(deps.Engine.Middleware(), site)

	admin := gin.New()
	admin.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Recovery(cfg.Debug))
	if err := routes.RegisterAdmin(admin, deps.DB, cfg, deps.Service, deps.Gatherer); err != nil {
		return nil, fmt.Errorf("register admin routes: %w", err)
	}

	return &Server{Engine: router, Admin: admin, cfg: cfg}, nil
}

// siteHandler serves the protected site: a reverse proxy when an upstream is
// configured, otherwise static files from the frontend directory.
func siteHandler(cfg config.Config) (gin.HandlerFunc, error) {
	if cfg.UpstreamURL != "" {
		target, err := url.Parse(cfg.UpstreamURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid upstream url %q", cfg.UpstreamURL)
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Log().WithError(err).WithField("upstream", target.Host).Warn("upstream request failed")
			w.WriteHeader(http.StatusBadGateway)
		}
		return func(c *gin.Context) {
			proxy.ServeHTTP(c.Writer, c.Request)
		}, nil
	}

	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || !serveFrontend(c, cfg.FrontendDir) {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
		}
	}, nil
}

// serveFrontend serves the requested file or falls back to index.html for
// client-side routes. It reports false when there is nothing to serve.
func serveFrontend(c *gin.Context, frontendDir string) bool {
	if frontendDir == "" {
		return false
	}
	info, err := os.Stat(frontendDir)
	if err != nil || !info.IsDir() {
		return false
	}

	clean := path.Clean("/" + c.Request.URL.Path)
	file := filepath.Join(frontendDir, filepath.FromSlash(clean))
	if fi, err := os.Stat(file); err == nil && !fi.IsDir() {
		c.File(file)
		return true
	}

	index := filepath.Join(frontendDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return false
	}
	c.File(index)
	return true
}

// Run starts the public listener and, when an admin address is configured,
// the admin listener. Both are shut down together.
func (s *Server) Run(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if s.cfg.AdminAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              s.cfg.AdminAddr,
			Handler:           s.Admin,
			ReadHeaderTimeout: 10 * time.Second,
		})
	} else {
		logger.Log().Warn("admin listener disabled: SENTINEL_ADMIN_ADDR is empty")
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			errCh <- srv.ListenAndServe()
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("graceful shutdown: %w", err)
		}
	}
	return runErr
}
