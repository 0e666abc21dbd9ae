package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/metrics"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/session"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Server exposes one signing session over HTTP.

Submission endpoints (rate limited, 429 when exceeded):
  POST /sign/message     { message, encoding: utf8|hex, wait }
  POST /sign/typed-data  { domain?, schema, value, wait }
  POST /sign/mail        { message, toName?, to?, wait }

  Without wait the request is accepted with 202 and its generation. With wait
  the response carries the outcome: 200 for Accepted, 422 for Rejected, 409
  when a newer submission superseded it.

Observation:
  GET  /status       current snapshot
  POST /error/clear  drops the presented error
  GET  /ws           snapshot followed by every update, as JSON text frames
  GET  /metrics      prometheus
*/

const (
	DefaultWaitTimeout = 2 * time.Minute
	maxBodyBytes       = 1 << 20
)

type ServerConfig struct {
	Port   int
	Domain types.DomainDescriptor

	// Submissions per second across all clients
	RateLimit float64
	RateBurst int

	WaitTimeout time.Duration
}

// Server handles HTTP requests for a signing session
type Server struct {
	logger   *zap.Logger
	session  *session.Session
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	domain      types.DomainDescriptor
	waitTimeout time.Duration
	limiter     *rate.Limiter
	validate    *validator.Validate
	upgrader    websocket.Upgrader
	now         func() time.Time

	httpServer *http.Server
}

// NewServer creates a new server instance. gatherer backs /metrics and may be nil.
func NewServer(cfg *ServerConfig, sess *session.Session, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		logger:      logger,
		session:     sess,
		metrics:     m,
		gatherer:    gatherer,
		domain:      cfg.Domain,
		waitTimeout: waitTimeout,
		limiter:     rate.NewLimiter(limit, burst),
		validate:    validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		now: time.Now,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/sign/message", s.instrument("sign_message", s.rateLimited(s.handleSignMessage)))
	mux.HandleFunc("/sign/typed-data", s.instrument("sign_typed_data", s.rateLimited(s.handleSignTypedData)))
	mux.HandleFunc("/sign/mail", s.instrument("sign_mail", s.rateLimited(s.handleSignMail)))

	mux.HandleFunc("/status", s.instrument("status", s.handleStatus))
	mux.HandleFunc("/error/clear", s.instrument("error_clear", s.handleClearError))

	// not instrumented, the upgrade needs the raw ResponseWriter
	mux.HandleFunc("/ws", s.handleWebsocket)

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr, "domain", s.domain.Name, "chainId", s.domain.ChainId)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.metrics.RateLimited.Inc()
			http.Error(w, "Too many signing requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
