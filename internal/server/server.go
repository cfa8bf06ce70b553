package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"employee-manager/internal/config"
	"employee-manager/internal/handler"
	"employee-manager/internal/middleware"
	"employee-manager/internal/reconcile"
	"employee-manager/internal/repository"
	"employee-manager/internal/service"
	"employee-manager/internal/token"
)

// Deps are the collaborators built in main and shared by every request.
type Deps struct {
	AuthService service.AuthService
	Tokens      *token.Manager
	Employees   repository.EmployeeRepository
	Flow        *reconcile.Flow
	// Authorizer is nil when the spreadsheet is not configured.
	Authorizer handler.SheetsAuthorizer
}

type Server struct {
	router    *gin.Engine
	cfg       *config.Config
	deps      Deps
	logger    *zap.Logger
	accessLog *logrus.Logger
}

func NewServer(cfg *config.Config, deps Deps, logger *zap.Logger, accessLog *logrus.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(accessLog))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	s := &Server{
		router:    router,
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		accessLog: accessLog,
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router, e.g. for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.deps.AuthService, s.logger)
	employeeHandler := handler.NewEmployeeHandler(s.deps.Flow, s.deps.Employees, s.cfg.Files.BaseDir, s.logger)
	sheetsHandler := handler.NewSheetsHandler(s.deps.Authorizer, s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Public routes
	api := s.router.Group("/api")
	api.POST("/register", authHandler.Register)
	api.POST("/login", authHandler.Login)
	// Google redirects the operator's browser here, so no bearer token.
	api.GET("/sheets/oauth/callback", sheetsHandler.Callback)

	// Authenticated routes
	authRequired := api.Group("")
	authRequired.Use(middleware.AuthMiddleware(s.deps.Tokens, s.logger))
	{
		authRequired.GET("/employees", employeeHandler.List)
		authRequired.GET("/employees/:employeeId", employeeHandler.Get)
		authRequired.POST("/employees", employeeHandler.Create)
		authRequired.POST("/read-excel", employeeHandler.ReadExcel)
		authRequired.POST("/write-excel", employeeHandler.WriteExcel)

		authRequired.GET("/sheets/auth-url", sheetsHandler.AuthURL)
		authRequired.POST("/sheets/oauth/refresh", sheetsHandler.Refresh)
		authRequired.GET("/sheets/status", sheetsHandler.Status)
	}

	s.router.NoRoute(s.serveSPA)
}

// serveSPA serves the front-end build. Unknown paths fall back to
// index.html so client-side routes survive a reload.
func (s *Server) serveSPA(c *gin.Context) {
	dir := s.cfg.Server.StaticDir
	if dir == "" || strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.Method != http.MethodGet {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	name := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		c.File(name)
		return
	}
	c.File(filepath.Join(dir, "index.html"))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down server...")
	return srv.Shutdown(shutdownCtx)
}
