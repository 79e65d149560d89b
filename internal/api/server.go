package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/auth"
	"github.com/openacoustics/audiomoth-configurator/internal/config"
	"github.com/openacoustics/audiomoth-configurator/internal/storage"
	"github.com/openacoustics/audiomoth-configurator/internal/transfer"
	"github.com/openacoustics/audiomoth-configurator/internal/validation"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

type contextKey string

const claimsKey contextKey = "claims"

// localOperator is recorded as the requester when authentication is off
const localOperator = "local"

// RESTServer represents the REST API server
type RESTServer struct {
	config     *config.Config
	store      storage.Store
	auth       *auth.JWTManager
	validator  *validation.Validator
	machine    *transfer.Machine
	poller     *transfer.Poller
	hub        *Hub
	appVersion audiomoth.Version
	router     chi.Router
	server     *http.Server
}

// NewRESTServer creates a new REST API server. The poller feeds the live
// status stream.
func NewRESTServer(cfg *config.Config, store storage.Store, machine *transfer.Machine, poller *transfer.Poller) (*RESTServer, error) {
	appVersion, err := audiomoth.ParseVersion(cfg.Server.Version)
	if err != nil {
		return nil, err
	}

	jwtManager, err := auth.NewJWTManager(&cfg.JWT, &cfg.Operator)
	if err != nil {
		return nil, err
	}

	s := &RESTServer{
		config:     cfg,
		store:      store,
		auth:       jwtManager,
		validator:  validation.NewValidator(),
		machine:    machine,
		poller:     poller,
		hub:        NewHub(cfg.API.AllowedOrigins),
		appVersion: appVersion,
		router:     chi.NewRouter(),
	}

	poller.OnStatus(s.hub.Broadcast)

	if !s.auth.Enabled() {
		log.Warn().Msg("Operator password hash not set, API authentication disabled")
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// Handler returns the root handler
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// bearerToken reads the token from the Authorization header, falling back
// to the access_token query parameter used by websocket clients.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			ctx := transfer.WithRequester(r.Context(), localOperator)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}

		// Validate token
		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Add claims to context
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = transfer.WithRequester(ctx, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the validated claims, or nil when authentication is off
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}
