// Package server is the HTTP surface: a declarative gin route table over
// the identity gateway, the bug graph, and the audit recorder. Each route
// is independent and stateless; all state lives in the external stores.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/easyfix/easyfix-go/internal/audit"
	"github.com/easyfix/easyfix-go/internal/config"
	"github.com/easyfix/easyfix-go/internal/identity"
	"github.com/easyfix/easyfix-go/internal/logging"
	"github.com/easyfix/easyfix-go/internal/models"
)

// Role names are plain lowercase identifiers; they end up inside identity
// provider custom claims, so reject anything that needs escaping.
var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
			return roleNamePattern.MatchString(fl.Field().String())
		})
	}
}

// GraphStore is the slice of the graph client the handlers use.
type GraphStore interface {
	Search(ctx context.Context, terms []string, limit int) ([]models.BugResult, error)
	GetBug(ctx context.Context, id string) (*models.BugDetail, error)
	ListTopics(ctx context.Context, limit, offset int) ([]models.Topic, error)
	DeveloperTopics(ctx context.Context, developerID string) (*models.DeveloperTopics, error)
	HealthCheck(ctx context.Context) error
}

// Server wires configuration and backends into a gin engine.
type Server struct {
	cfg      *config.Config
	gateway  identity.Gateway
	graph    GraphStore
	recorder audit.Recorder
	logger   *slog.Logger
	engine   *gin.Engine
	version  string
}

// New builds the server and its route table.
func New(cfg *config.Config, gateway identity.Gateway, graph GraphStore, recorder audit.Recorder, version string) *Server {
	s := &Server{
		cfg:      cfg,
		gateway:  gateway,
		graph:    graph,
		recorder: recorder,
		logger:   logging.Component("http"),
		version:  version,
	}
	registerValidations()
	s.engine = s.buildEngine()
	return s
}

func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.logger))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = s.cfg.HTTP.AllowedOrigins
	corsCfg.AllowCredentials = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	engine.Use(cors.New(corsCfg))

	engine.GET("/", s.handleHealth)

	auth := engine.Group("/auth")
	{
		auth.POST("/register", s.handleRegister)
		auth.POST("/login", loginRateLimit(s.cfg.HTTP.LoginRate, s.cfg.HTTP.LoginBurst), s.handleLogin)
		auth.POST("/verify-token", s.handleVerifyToken)
		auth.POST("/change-password", s.handleChangePassword)
		auth.POST("/send-password-reset", s.handleSendPasswordReset)

		auth.GET("/me", s.requireAuth(), s.handleMe)
		auth.PATCH("/profile", s.requireAuth(), s.handleUpdateProfile)
		auth.PUT("/roles/:uid", s.requireAuth(), requireRoles("admin"), s.handleSetRoles)
	}

	authed := engine.Group("/", s.requireAuth())
	{
		authed.POST("/search", s.handleSearch)
		authed.GET("/topics", s.handleListTopics)
		authed.GET("/bugs/:id", s.handleGetBug)
		authed.GET("/developers/:id/topics", s.handleDeveloperTopics)
	}

	return engine
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until the listener fails or the process stops.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}
	s.logger.Info("http server listening", "addr", s.cfg.HTTP.Addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "easyfix",
		"version": s.version,
	})
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status())
	}
}
