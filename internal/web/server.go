package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"anomaly-watchdog/internal/history"
	"anomaly-watchdog/internal/logs"
	"anomaly-watchdog/internal/monitoring/engine"
	"anomaly-watchdog/internal/monitoring/storage"
	"anomaly-watchdog/internal/web/handlers"
	"anomaly-watchdog/internal/web/middleware"
)

// Options dependências do servidor. Somente Engine é obrigatório;
// as rotas dos demais componentes só existem quando configurados.
type Options struct {
	Port    int
	Token   string // vazio = API sem autenticação
	Debug   bool
	Version string

	Engine  *engine.Engine
	Events  *storage.EventLog
	Model   handlers.ModelService
	History *history.TrainingHistory
	Logs    *logs.LogManager
}

// Server representa o servidor HTTP
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	opts       Options
}

// NewServer cria uma nova instância do servidor web
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	// gin.New() ao invés de gin.Default() para controle manual dos middlewares
	router := gin.New()

	server := &Server{
		router: router,
		opts:   opts,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server, nil
}

// setupMiddleware configura os middlewares do servidor
func (s *Server) setupMiddleware() {
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	s.router.Use(s.loggingMiddleware())
	s.router.Use(gin.Recovery())
}

// loggingMiddleware registra cada requisição no logger global
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// Health checks e scrapes não enchem o log
		if path == "/health" || path == "/metrics" {
			return
		}

		event := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// setupRoutes configura as rotas da API
func (s *Server) setupRoutes() {
	// Health check (sem auth)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": s.opts.Version,
			"state":   s.opts.Engine.State().String(),
		})
	})

	// Métricas próprias (sem auth, para scrape)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (com auth)
	api := s.router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(s.opts.Token))

	// Engine
	monitoringHandler := handlers.NewMonitoringHandler(s.opts.Engine)
	api.GET("/status", monitoringHandler.GetStatus)
	api.GET("/baselines", monitoringHandler.GetBaselines)
	api.GET("/correlation", monitoringHandler.GetCorrelation)
	api.POST("/engine/pause", monitoringHandler.Pause)
	api.POST("/engine/resume", monitoringHandler.Resume)

	// Eventos persistidos
	if s.opts.Events != nil {
		eventsHandler := handlers.NewEventsHandler(s.opts.Events)
		api.GET("/events", eventsHandler.GetEvents)
		api.GET("/events/stats", eventsHandler.GetStats)
	}

	// Modelo multivariado
	modelHandler := handlers.NewModelHandler(s.opts.Model)
	api.GET("/model", modelHandler.GetModel)
	api.POST("/model/train", modelHandler.TrainModel)

	// Histórico de treinos
	if s.opts.History != nil {
		historyHandler := handlers.NewHistoryHandler(s.opts.History)
		api.GET("/model/history", historyHandler.GetHistory)
		api.GET("/model/history/stats", historyHandler.GetHistoryStats)
		api.GET("/model/history/:id", historyHandler.GetHistoryEntry)
	}

	// Logs
	if s.opts.Logs != nil {
		logsHandler := handlers.NewLogsHandler(s.opts.Logs)
		api.GET("/logs", logsHandler.GetLogs)
		api.DELETE("/logs", logsHandler.ClearLogs)
	}
}

// Handler expõe o router (testes)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start inicia o servidor HTTP e bloqueia até Shutdown
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Bool("auth", s.opts.Token != "").
		Msgf("🌐 API HTTP em http://localhost:%d/api/v1", s.opts.Port)

	if s.opts.Token == "" {
		log.Warn().Msg("⚠️  API sem autenticação (web.token vazio)")
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown encerra gracefully o servidor, aguardando requisições em andamento
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	log.Info().Msg("✓ API HTTP encerrada")
	return nil
}
