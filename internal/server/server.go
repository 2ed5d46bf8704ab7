package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	demohttp "github.com/webfold/partialnav/internal/http"
	"github.com/webfold/partialnav/internal/infrastructure/config"
	"github.com/webfold/partialnav/internal/infrastructure/logging"
	"github.com/webfold/partialnav/internal/infrastructure/monitoring"
	"github.com/webfold/partialnav/internal/transport"
)

// Server wraps the demo site's router and dependencies.
type Server struct {
	router *gin.Engine
	cfg    config.ServerConfig
	log    *logging.Logger
}

// New builds the demo server: routes, CORS, request logging, and a
// metrics endpoint.
func New(cfg config.ServerConfig, log *logging.Logger) *Server {
	log = logging.OrNop(log)

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewServer(reg)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log, metrics))
	router.Use(rateLimit(DefaultRateLimitConfig()))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Accept", "Origin", transport.HeaderRequest, transport.HeaderContainer},
		ExposeHeaders:    []string{transport.HeaderCanonicalURL},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	h := demohttp.NewHandlers()
	router.GET("/", h.Home)
	router.GET("/about", h.About)
	router.GET("/posts", h.Posts)
	router.GET("/posts/:id", h.Post)
	router.GET("/moved", h.Moved)
	router.GET("/slow", h.Slow)
	router.GET("/boom", h.Boom)
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return &Server{router: router, cfg: cfg, log: log}
}

// Router exposes the router for in-process serving in tests.
func (s *Server) Router() http.Handler { return s.router }

// Run starts the server on the configured address and blocks.
func (s *Server) Run() error {
	addr := s.cfg.Host + ":" + s.cfg.Port
	s.log.Info("demo server listening", zap.String("addr", addr))
	return s.router.Run(addr)
}

// requestLogger logs each request and counts it.
func requestLogger(log *logging.Logger, m *monitoring.ServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		partial := c.GetHeader(transport.HeaderRequest) != ""
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status()), boolLabel(partial)).Inc()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Bool("partial", partial),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
