// Package mock provides a mock Alliance Portal API for local smoke runs and tests.
package mock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/config"
	"github.com/gorilla/mux"
)

const (
	// DefaultPort matches the port the real API listens on in development
	DefaultPort = 3001
	// DefaultTokenTTL is how long issued tokens stay valid
	DefaultTokenTTL = time.Hour
	// ShutdownTimeout bounds graceful shutdown in StartWithContext
	ShutdownTimeout = 5 * time.Second
)

// Server is a mock Alliance Portal server
type Server struct {
	router       *mux.Router
	store        *Store
	port         int
	delay        time.Duration
	verbose      bool
	secret       []byte
	tokenTTL     time.Duration
	allowOrigin  string
	cors         bool
	healthStatus string
	failures     map[string]int

	mu   sync.Mutex
	hits map[string]int
}

// Option is a functional option for Server
type Option func(*Server)

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithVerbose enables request logging
func WithVerbose(verbose bool) Option {
	return func(s *Server) {
		s.verbose = verbose
	}
}

// WithSecret sets the HMAC secret tokens are signed with
func WithSecret(secret string) Option {
	return func(s *Server) {
		s.secret = []byte(secret)
	}
}

// WithTokenTTL sets the lifetime of issued tokens
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = ttl
	}
}

// WithAllowOrigin sets the Access-Control-Allow-Origin value ("*" by default)
func WithAllowOrigin(origin string) Option {
	return func(s *Server) {
		s.allowOrigin = origin
	}
}

// WithoutCORS disables the CORS headers entirely; preflights still get 204.
func WithoutCORS() Option {
	return func(s *Server) {
		s.cors = false
	}
}

// WithHealthStatus sets the status string /health reports
func WithHealthStatus(status string) Option {
	return func(s *Server) {
		s.healthStatus = status
	}
}

// WithFailure makes every request to path answer with the given status code.
func WithFailure(path string, status int) Option {
	return func(s *Server) {
		s.failures[path] = status
	}
}

// WithUser seeds an account
func WithUser(name, email, password, role string) Option {
	return func(s *Server) {
		if _, err := s.store.AddUser(name, email, password, role); err != nil {
			log.Printf("mock: cannot seed user %s: %v", email, err)
		}
	}
}

// WithoutSeedUsers removes the default admin account.
func WithoutSeedUsers() Option {
	return func(s *Server) {
		s.store.Reset()
	}
}

// NewServer creates a mock server seeded with the default admin account
// and a handful of cases, ideas and survey templates.
func NewServer(opts ...Option) *Server {
	s := &Server{
		store:        NewStore(),
		port:         DefaultPort,
		secret:       []byte("alliance-portal-mock-secret"),
		tokenTTL:     DefaultTokenTTL,
		allowOrigin:  "*",
		cors:         true,
		healthStatus: "ok",
		failures:     make(map[string]int),
		hits:         make(map[string]int),
	}

	admin := config.DefaultCredentials()[0]
	if _, err := s.store.AddUser("Portal Admin", admin.Email, admin.Password, "admin"); err != nil {
		log.Printf("mock: cannot seed admin: %v", err)
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.routes()
	return s
}

// Store exposes the server's accounts and fixtures.
func (s *Server) Store() *Store {
	return s.store
}

// Hits returns how many requests reached method and path.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// TotalHits returns the number of requests served.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// Handler returns the full HTTP handler, CORS and request accounting included.
func (s *Server) Handler() http.Handler {
	return s.track(s.withCORS(s.router))
}

// Start starts the mock server
func (s *Server) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext starts the server with context for graceful shutdown
func (s *Server) StartWithContext(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("Mock Alliance Portal starting on http://localhost:%d", s.port)
	if s.verbose {
		_ = s.router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
			path, _ := route.GetPathTemplate()
			methods, _ := route.GetMethods()
			log.Printf("  %v %s", methods, path)
			return nil
		})
	}

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()

		if s.delay > 0 {
			time.Sleep(s.delay)
		}

		if status, ok := s.failures[r.URL.Path]; ok {
			writeError(w, status, http.StatusText(status))
		} else {
			next.ServeHTTP(w, r)
		}

		if s.verbose {
			log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
		}
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cors {
			w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
