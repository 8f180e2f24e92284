package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/params/pkg/protocol"
	"github.com/vango-dev/params/pkg/session"
)

// Server serves one parameterised page over HTTP and a live WebSocket
// channel.
type Server struct {
	config  Config
	manager *session.Manager

	router   chi.Router
	upgrader websocket.Upgrader

	trustedProxies *proxyMatcher

	httpServer *http.Server

	liveMu     sync.Mutex
	live       map[*liveConn]struct{}
	liveClosed bool
	liveWG     sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error

	logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	config = config.withDefaults()
	logger := config.Logger.With("component", "server")

	manager := config.Manager
	if manager == nil {
		manager = session.NewManager(nil, session.DefaultManagerConfig(), config.Logger)
	}

	s := &Server{
		config:         config,
		manager:        manager,
		trustedProxies: newProxyMatcher(config.TrustedProxies, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
		live:   make(map[*liveConn]struct{}),
		logger: logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if s.config.Tracer != nil {
		r.Use(s.config.Tracer.Handler)
	}
	if s.config.Metrics != nil {
		r.Use(s.config.Metrics.Handler)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/params", s.handleRender)
	r.Post("/params/_export_all", s.handleExportAll)
	r.Post("/params/{key}", s.handleChange)
	r.Get("/live", s.handleLive)
	if s.config.Gatherer != nil {
		r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.manager
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		// An external Shutdown ends Serve; release the other goroutine too.
		defer cancel()
		s.logger.Info("server starting", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops accepting requests, closes live connections and shuts the
// session manager down, which snapshots every session. It is safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		var errs []error
		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.logger.Error("shutdown error", "error", err)
				errs = append(errs, err)
			}
		}

		s.closeLive()
		done := make(chan struct{})
		go func() {
			s.liveWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}

		if err := s.manager.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.shutdownErr = errors.Join(errs...)
		s.logger.Info("server shutdown complete")
	})
	return s.shutdownErr
}

// closeLive tells every live client the server is going away.
func (s *Server) closeLive() {
	s.liveMu.Lock()
	s.liveClosed = true
	conns := make([]*liveConn, 0, len(s.live))
	for c := range s.live {
		conns = append(conns, c)
	}
	s.liveMu.Unlock()

	for _, c := range conns {
		c.send(protocol.NewFatalError(protocol.ErrSessionExpired, "server shutting down"))
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

// trackLive registers c for shutdown. It reports false once shutdown has
// begun.
func (s *Server) trackLive(c *liveConn) bool {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	if s.liveClosed {
		return false
	}
	s.live[c] = struct{}{}
	s.liveWG.Add(1)
	return true
}

func (s *Server) untrackLive(c *liveConn) {
	s.liveMu.Lock()
	delete(s.live, c)
	s.liveMu.Unlock()
	s.liveWG.Done()
}
