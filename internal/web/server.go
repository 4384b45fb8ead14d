// Package web serves the browser chat front end and its JSON API.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/conversation"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/longkey1/webchat/internal/limiter"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	defaultMaxBodyBytes = 1 << 20
	sweepInterval       = time.Minute
	shutdownTimeout     = 10 * time.Second
)

// Options configure a Server. Service and Sessions are required.
type Options struct {
	Service  *conversation.Service
	Sessions *session.Manager

	// Models lists the model strings offered in the picker, default first.
	Models []string
	// Catalog lists what the providers offer on /api/models. Optional.
	Catalog interface {
		ListModels(ctx context.Context) ([]chat.ModelInfo, error)
	}
	PresetDirs []string

	Limiter limiter.Limiter
	Auth    *Auth

	// CredentialErr is shown instead of the chat while set.
	CredentialErr error

	SessionTTL    time.Duration
	SecureCookies bool
	MaxBodyBytes  int64
	Logger        logrus.FieldLogger
}

// Server is the HTTP front end.
type Server struct {
	service       *conversation.Service
	sessions      *session.Manager
	models        []string
	catalog       func(ctx context.Context) ([]chat.ModelInfo, error)
	presetDirs    []string
	limiter       limiter.Limiter
	auth          *Auth
	credentialErr error
	sessionTTL    time.Duration
	secureCookies bool
	maxBodyBytes  int64
	md            *markdown
	log           logrus.FieldLogger
	engine        *gin.Engine
}

// New builds the server and its routes.
func New(opts Options) (*Server, error) {
	if opts.Service == nil || opts.Sessions == nil {
		return nil, errors.New("web: service and session manager are required")
	}

	s := &Server{
		service:       opts.Service,
		sessions:      opts.Sessions,
		models:        opts.Models,
		presetDirs:    opts.PresetDirs,
		limiter:       opts.Limiter,
		auth:          opts.Auth,
		credentialErr: opts.CredentialErr,
		sessionTTL:    opts.SessionTTL,
		secureCookies: opts.SecureCookies,
		maxBodyBytes:  opts.MaxBodyBytes,
		md:            newMarkdown(),
		log:           opts.Logger,
	}
	if opts.Catalog != nil {
		s.catalog = opts.Catalog.ListModels
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("loading static files: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.SetHTMLTemplate(tmpl)
	engine.Use(requestID(), accessLog(s.log), recovery(s.log), s.limitBody())
	s.engine = engine

	s.routes(http.FS(static))
	return s, nil
}

func (s *Server) routes(static http.FileSystem) {
	r := s.engine

	r.GET("/healthz", s.handleHealth)
	r.StaticFS("/static", static)
	r.GET("/login", s.handleLoginPage)
	r.POST("/login", s.rateLimit(false), s.handleLogin)
	r.POST("/logout", s.handleLogout)

	pages := r.Group("/", s.requireAuth(), s.requireCredential(false), s.withSession())
	pages.GET("/", s.handleIndex)
	pages.POST("/chat", s.rateLimit(false), s.handleChat)
	pages.POST("/reset", s.handleReset)
	pages.POST("/settings", s.handleSettings)
	pages.POST("/presets/apply", s.handleApplyPreset)

	api := r.Group("/api", s.requireAuthAPI(), s.requireCredential(true))
	api.GET("/models", s.handleModels)
	withSession := api.Group("", s.withSession())
	withSession.GET("/messages", s.handleListMessages)
	withSession.POST("/messages", s.rateLimit(true), s.handlePostMessage)
	withSession.POST("/messages/stream", s.rateLimit(true), s.handleStreamMessage)
	withSession.DELETE("/messages", s.handleResetMessages)
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
		}
		c.Next()
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, sweeping idle sessions and
// limiter buckets in the background.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	bgCtx, stop := context.WithCancel(ctx)
	defer stop()
	if s.sessionTTL > 0 {
		go s.sessions.Run(bgCtx, sweepInterval, s.sessionTTL, s.log)
	}
	if mem, ok := s.limiter.(*limiter.Memory); ok {
		go mem.Run(bgCtx, sweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
