package server

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/sam2cut/config"
	"github.com/chaos-io/sam2cut/segment"
	"github.com/chaos-io/sam2cut/session"
)

//go:embed static
var staticFS embed.FS

// Server 单页应用的 HTTP 层：静态页面 + 会话 API。
// 分割本身委托给注入的 Segmenter
type Server struct {
	cfg       *config.Config
	store     *session.Store
	segmenter segment.Segmenter
	engine    *gin.Engine
}

func New(cfg *config.Config, store *session.Store, segmenter segment.Segmenter) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		segmenter: segmenter,
		engine:    gin.New(),
	}

	s.engine.Use(gin.Recovery(), requestLogger())
	s.engine.MaxMultipartMemory = cfg.MaxUploadBytes()
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	s.engine.GET("/", func(c *gin.Context) {
		c.FileFromFS("/", http.FS(static))
	})
	s.engine.StaticFS("/static", http.FS(static))

	s.engine.GET("/healthz", s.healthz)

	api := s.engine.Group("/api")
	{
		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:id", s.getSession)
		api.DELETE("/sessions/:id", s.deleteSession)
		api.GET("/sessions/:id/image", s.sessionImage)
		api.POST("/sessions/:id/points", s.addPoint)
		api.POST("/sessions/:id/reset", s.resetPoints)
		api.POST("/sessions/:id/segment", s.segment)
		api.GET("/sessions/:id/result", s.sessionResult)
	}
}

// Handler 暴露给 http.Server 用
func (s *Server) Handler() http.Handler {
	return s.engine
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"cost", time.Since(start),
			"ip", c.ClientIP())
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.store.Len(),
	})
}
