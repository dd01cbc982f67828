// Package api serves the vote ledger over HTTP: signed transaction intake,
// transaction status and read access to program state.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/srtaalej/capstone-proj/internal/ledger"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/storage"
)

// maxBodyBytes bounds a submitted envelope. Program fields are small; the
// largest instruction is create_poll with a 280 byte description.
const maxBodyBytes = 16 << 10

// Server exposes a ledger over HTTP.
type Server struct {
	ledger  *ledger.Ledger
	reader  *program.Reader
	stats   storage.StatsStore
	logger  *zap.Logger
	limiter *rate.Limiter
	router  *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for access and error logs.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStats enables GET /v1/stats.
func WithStats(stats storage.StatsStore) Option {
	return func(s *Server) { s.stats = stats }
}

// WithRateLimit limits transaction submissions to limit per second with the
// given burst. A non-positive limit disables limiting.
func WithRateLimit(limit float64, burst int) Option {
	return func(s *Server) {
		if limit <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// NewServer creates a Server over l.
func NewServer(l *ledger.Ledger, opts ...Option) *Server {
	s := &Server{
		ledger: l,
		reader: l.Program().Reader(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(withRequestID, withAccessLog(s.logger), withRecovery(s.logger))

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/counter", s.getCounter).Methods(http.MethodGet)
	v1.HandleFunc("/registrations", s.getRegistrations).Methods(http.MethodGet)
	v1.HandleFunc("/polls", s.listPolls).Methods(http.MethodGet)
	v1.HandleFunc("/polls/{id:[0-9]+}", s.getPoll).Methods(http.MethodGet)
	v1.HandleFunc("/polls/{id:[0-9]+}/candidates", s.listPollCandidates).Methods(http.MethodGet)
	v1.HandleFunc("/polls/{id:[0-9]+}/candidates/{cid:[0-9]+}", s.getCandidate).Methods(http.MethodGet)
	v1.HandleFunc("/polls/{id:[0-9]+}/voters/{wallet}", s.getVoter).Methods(http.MethodGet)
	v1.HandleFunc("/candidates", s.listCandidates).Methods(http.MethodGet)
	v1.HandleFunc("/identity/{wallet}", s.getIdentity).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{address}", s.getAccount).Methods(http.MethodGet)
	v1.HandleFunc("/transactions", withRateLimit(s.limiter, s.submitTransaction)).Methods(http.MethodPost)
	v1.HandleFunc("/transactions", s.listTransactions).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{signature}", s.getTransaction).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})
	return r
}
