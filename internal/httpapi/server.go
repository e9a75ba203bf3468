package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tubebrief/internal/crypto"
	"tubebrief/internal/metrics"
	"tubebrief/internal/notify"
	"tubebrief/internal/providers"
	"tubebrief/internal/quota"
	"tubebrief/internal/queue"
	"tubebrief/internal/storage"
	"tubebrief/internal/transcript"
)

// ProviderFactory builds a streaming provider for one request. apiKey is the
// server key for free-tier users or the user's own decrypted key for BYOK.
type ProviderFactory func(apiKey string) (providers.Provider, error)

type Config struct {
	Store        *storage.Store
	Gate         *quota.Gate
	Limiter      *queue.RateLimiter
	Throttle     *queue.ResetThrottle
	MailQueue    *queue.StreamQueue
	Keeper       *crypto.Keeper
	Notifier     *notify.Registry
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	Transcripts  *transcript.Fetcher
	NewProvider  ProviderFactory
	ServerAPIKey string
	DefaultModel string

	SessionSecret []byte
	SessionTTL    time.Duration
	ResetSecret   string
	PublicURL     string
	DevMode       bool
	StreamTimeout time.Duration
}

type Server struct {
	store       *storage.Store
	gate        *quota.Gate
	limiter     *queue.RateLimiter
	throttle    *queue.ResetThrottle
	mailQueue   *queue.StreamQueue
	keeper      *crypto.Keeper
	notifier    *notify.Registry
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	transcripts *transcript.Fetcher
	newProvider ProviderFactory

	serverAPIKey  string
	defaultModel  string
	sessionSecret []byte
	sessionTTL    time.Duration
	resetSecret   string
	publicURL     string
	devMode       bool
	streamTimeout time.Duration
}

func NewServer(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 60 * time.Second
	}
	return &Server{
		store:         cfg.Store,
		gate:          cfg.Gate,
		limiter:       cfg.Limiter,
		throttle:      cfg.Throttle,
		mailQueue:     cfg.MailQueue,
		keeper:        cfg.Keeper,
		notifier:      cfg.Notifier,
		metrics:       m,
		logger:        cfg.Logger,
		transcripts:   cfg.Transcripts,
		newProvider:   cfg.NewProvider,
		serverAPIKey:  cfg.ServerAPIKey,
		defaultModel:  cfg.DefaultModel,
		sessionSecret: cfg.SessionSecret,
		sessionTTL:    cfg.SessionTTL,
		resetSecret:   cfg.ResetSecret,
		publicURL:     cfg.PublicURL,
		devMode:       cfg.DevMode,
		streamTimeout: cfg.StreamTimeout,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.logger))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset/request", s.handleResetRequest).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset/confirm", s.handleResetConfirm).Methods(http.MethodPost)

	api.HandleFunc("/result", s.requireUser(s.handleResult)).Methods(http.MethodPost)
	api.HandleFunc("/chat", s.requireUser(s.handleChat)).Methods(http.MethodPost)
	api.HandleFunc("/usage", s.handleUsageReset).Methods(http.MethodGet)

	api.HandleFunc("/account", s.requireUser(s.handleAccount)).Methods(http.MethodGet)
	api.HandleFunc("/account/key", s.requireUser(s.handleSaveKey)).Methods(http.MethodPut)
	api.HandleFunc("/account/key", s.requireUser(s.handleDeleteKey)).Methods(http.MethodDelete)

	api.HandleFunc("/transcript", s.requireUser(s.handleTranscript)).Methods(http.MethodGet)

	return r
}
