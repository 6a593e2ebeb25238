package status

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/drakeshin/EPUB-AI-Translator/internal/flow"
)

// Server is the optional run-monitoring surface: current progress as JSON
// and a WebSocket stream of run events.
type Server struct {
	logger   *logrus.Logger
	hub      *Hub
	snapshot func() flow.Progress
	router   *gin.Engine
}

func New(logger *logrus.Logger, hub *Hub, snapshot func() flow.Progress) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:   logger,
		hub:      hub,
		snapshot: snapshot,
	}

	s.setupRoutes()
	return s
}

func (s *Server) Handler() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router = gin.New()
	s.router.Use(s.loggingMiddleware())
	s.router.Use(gin.Recovery())

	s.router.GET("/status", s.handleStatus)
	s.router.GET("/ws", s.handleWebSocket)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "websocket_clients": s.hub.ClientCount()})
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.logger.WithFields(logrus.Fields{
			"status":  param.StatusCode,
			"method":  param.Method,
			"path":    param.Path,
			"ip":      param.ClientIP,
			"latency": param.Latency,
		}).Debug("HTTP Request")
		return ""
	})
}
