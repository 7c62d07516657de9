package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/cellplan/internal/cluster"
	"github.com/gravitas-games/cellplan/internal/config"
	"github.com/gravitas-games/cellplan/internal/metrics"
	"github.com/gravitas-games/cellplan/internal/network"
	"github.com/gravitas-games/cellplan/internal/pattern"
	"github.com/gravitas-games/cellplan/internal/store"
)

// Server represents the planning server
type Server struct {
	config     *config.Config
	log        *logrus.Logger
	session    *Session
	controller *pattern.Controller
	auth       Authenticator
	metrics    *metrics.Collector
	upgrader   websocket.Upgrader
	httpSrv    *http.Server
	closers    []io.Closer

	// Background goroutines
	wg sync.WaitGroup

	// Shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// Deps are the collaborators a Server runs with
type Deps struct {
	Auth       Authenticator
	Controller *pattern.Controller
	Metrics    *metrics.Collector
	Logger     *logrus.Logger
	Closers    []io.Closer
}

// New creates a new server instance, connecting to Redis and the login
// server as configured
func New(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	logger.Info("Initializing server...")

	ctx, cancel := context.WithCancel(context.Background())

	redisStore, err := store.Dial(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, store.Options{
		BlacklistPrefix: cfg.Redis.BlacklistPrefix,
		TilingPrefix:    cfg.Redis.TilingPrefix,
		TilingTTL:       cfg.Redis.TilingTTL(),
	})
	if err != nil {
		cancel()
		return nil, err
	}
	logger.WithField("address", cfg.Redis.Address).Info("Connected to Redis")

	var auth Authenticator = AnonymousAuthenticator{}
	if cfg.JWT.PublicKeyURL != "" {
		validator, err := NewJWTValidator(ctx, cfg.JWT, redisStore, logger)
		if err != nil {
			cancel()
			redisStore.Close()
			return nil, fmt.Errorf("failed to initialize JWT validator: %w", err)
		}
		auth = validator
	} else {
		logger.Warn("No jwt.public_key_url configured, admitting anonymous planners")
	}

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		cancel()
		redisStore.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	tiler, err := cluster.New(cfg.TilerOptions())
	if err != nil {
		cancel()
		redisStore.Close()
		return nil, fmt.Errorf("failed to create tiler: %w", err)
	}
	controller := pattern.NewController(tiler, cfg.Defaults,
		pattern.WithCache(redisStore),
		pattern.WithRecorder(collector),
		pattern.WithLogger(logger),
	)

	return newServer(ctx, cancel, cfg, Deps{
		Auth:       auth,
		Controller: controller,
		Metrics:    collector,
		Logger:     logger,
		Closers:    []io.Closer{redisStore},
	}), nil
}

// NewWithDeps creates a server around ready-made collaborators
func NewWithDeps(cfg *config.Config, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return newServer(ctx, cancel, cfg, deps)
}

func newServer(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	srv := &Server{
		config:     cfg,
		log:        logger,
		controller: deps.Controller,
		auth:       deps.Auth,
		metrics:    deps.Metrics,
		closers:    deps.Closers,
		ctx:        ctx,
		cancel:     cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"access_token"},
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to the planner UI origin once it has a fixed host
				return true
			},
		},
	}
	srv.session = NewSession("main", srv.controller, logger)

	srv.wg.Add(2)
	go func() {
		defer srv.wg.Done()
		srv.controller.Run(ctx)
	}()
	go func() {
		defer srv.wg.Done()
		srv.session.Run(ctx)
	}()

	logger.Info("Server initialized successfully")
	return srv
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/plane", s.handlePlane)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start begins listening for connections
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithField("addr", addr).Info("Starting server")
	s.log.Infof("WebSocket endpoint: ws://%s/ws", addr)

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.log.Info("Shutting down server...")

	// Cancel context to signal shutdown
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.log.Info("Server shutdown complete")
	return errors.Join(errs...)
}

// handleWebSocket handles WebSocket connection requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := s.log.WithField("remote", r.RemoteAddr)

	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		if _, anonymous := s.auth.(AnonymousAuthenticator); !anonymous {
			logger.Info("Missing JWT token")
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}
	}

	planner, err := s.auth.ValidateToken(r.Context(), tokenString)
	if err != nil {
		logger.WithError(err).Info("Invalid JWT token")
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	conn := NewConnection(ws, s, planner)
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	// Blocks until the connection ends
	conn.Handle()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"session": s.session.GetStatus(),
	})
}

// handlePlane returns the current plan
func (s *Server) handlePlane(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, network.NewPlanePayload(s.controller.Snapshot()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
