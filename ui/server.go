// Package ui serves stored comparison reports over HTTP. It is read-only:
// it lists runs, serves their HTML summaries and their metric records.
package ui

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"morphocv/domain/core"
	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

//go:embed templates/*.html
var embeddedFiles embed.FS

// Server is the report browser
type Server struct {
	router    *gin.Engine
	reader    ports.ReportReader
	templates *template.Template
	logger    *internal.Logger
}

// NewServer creates the server. mode is a gin mode ("release", "debug",
// "test"); empty keeps gin's default.
func NewServer(reader ports.ReportReader, mode string, logger *internal.Logger) (*Server, error) {
	if mode != "" {
		gin.SetMode(mode)
	}
	funcMap := template.FuncMap{"join": strings.Join}
	templates, err := template.New("").Funcs(funcMap).ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse templates")
	}
	s := &Server{
		router:    gin.New(),
		reader:    reader,
		templates: templates,
		logger:    logger.WithComponent("reportd"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// setupMiddleware configures gin middleware
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	})
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.router.GET("/reports/:id", s.handleReportHTML)
	s.router.GET("/api/reports", s.handleListReports)
	s.router.GET("/api/reports/:id/metrics", s.handleReportMetrics)
}

// Handler returns the router behind the transport middleware shared by
// every route
func (s *Server) Handler() http.Handler {
	return chi.Chain(
		middleware.RealIP,
		middleware.RequestID,
		middleware.Compress(5),
	).Handler(s.router)
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("serving reports on http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleIndex(c *gin.Context) {
	reports, err := s.reader.ListReports(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.renderTemplate(c, "index.html", gin.H{"Reports": reports})
}

func (s *Server) handleListReports(c *gin.Context) {
	reports, err := s.reader.ListReports(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (s *Server) handleReportHTML(c *gin.Context) {
	id, ok := s.runID(c)
	if !ok {
		return
	}
	html, err := s.reader.ReportHTML(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) handleReportMetrics(c *gin.Context) {
	id, ok := s.runID(c)
	if !ok {
		return
	}
	records, err := s.reader.ReportMetrics(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "metrics": records})
}

func (s *Server) runID(c *gin.Context) (core.RunID, bool) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

// fail maps error codes to HTTP statuses
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.HasCode(err, errors.CodeNotFound) {
		status = http.StatusNotFound
	} else {
		s.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) renderTemplate(c *gin.Context, name string, data interface{}) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(c.Writer, name, data); err != nil {
		s.logger.Error("template %s: %v", name, err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}
