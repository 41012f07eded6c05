package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"market-relay/src/config"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type Server struct {
	Config    *models.MConfig
	Logger    *logger.Logger
	engine    *gin.Engine
	http      *http.Server
	relay     interfaces.ISubscriptions
	reference interfaces.IReferenceData
	metrics   *metrics.Metrics
	session   func(time.Time) models.MSession
	now       func() time.Time
	upgrader  websocket.Upgrader

	// WebSocket clients, owned by the hub goroutine
	clients    map[string]*Client
	broadcast  chan models.MNormalizedMessage
	register   chan *Client
	unregister chan *Client
	numClients atomic.Int64

	hubOnce  sync.Once
	stopOnce sync.Once
	done     chan struct{}
	hubDone  chan struct{}
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewServer(cfg *models.MConfig, log *logger.Logger, relay interfaces.ISubscriptions, reference interfaces.IReferenceData, m *metrics.Metrics, session func(time.Time) models.MSession) *Server {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Config:     cfg,
		Logger:     log,
		engine:     gin.New(),
		relay:      relay,
		reference:  reference,
		metrics:    m,
		session:    session,
		now:        time.Now,
		clients:    make(map[string]*Client),
		broadcast:  make(chan models.MNormalizedMessage, max(cfg.Relay.BroadcastBuffer, 1)),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		hubDone:    make(chan struct{}),
	}
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.corsMiddleware())

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.Config.AllowedOrigins, "*") || slices.Contains(s.Config.AllowedOrigins, origin)
}

// checkOrigin lets non-browser clients (no Origin header) through.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.originAllowed(origin)
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.POST("/subscribe", s.postSubscribe)
	api.POST("/unsubscribe", s.postUnsubscribe)
	api.GET("/tickers", s.getTickers)
	api.GET("/options/contracts", s.getOptionsContracts)

	s.engine.GET("/healthz", s.getHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the routes, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// StartHub launches the fan-out loop; calling it more than once is harmless.
func (s *Server) StartHub() {
	s.hubOnce.Do(func() {
		go s.runHub()
	})
}

// -----------------------------------------------------------------------------

// Start listens on the configured address and blocks until Stop.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.StartHub()
	s.Logger.Info("Starting server on %s", ln.Addr())

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop closes the listener, waits for in-flight requests, then disconnects
// every WebSocket client.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		err = s.http.Shutdown(ctx)
		close(s.done)
		s.hubOnce.Do(func() { close(s.hubDone) })
		select {
		case <-s.hubDone:
		case <-ctx.Done():
		}
		s.Logger.Info("Server stopped")
	})
	return err
}

// -----------------------------------------------------------------------------

func (s *Server) ClientCount() int {
	return int(s.numClients.Load())
}

// overflowPolicy returns the configured policy with the default applied.
func (s *Server) overflowPolicy() string {
	if s.Config.Relay.OverflowPolicy == "" {
		return config.OverflowDisconnect
	}
	return s.Config.Relay.OverflowPolicy
}
