package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/auth"
	"github.com/openacoustics/audiomoth-configurator/internal/models"
	"github.com/openacoustics/audiomoth-configurator/internal/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// ========== Auth handlers ==========

// LoginRequest is the operator login body
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

// HandleLogin handles operator login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		s.respondError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req LoginRequest
	if !s.decode(w, r, &req) {
		return
	}

	accessToken, refreshToken, err := s.auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		log.Warn().Str("username", req.Username).Msg("Rejected operator login")
		s.auditLogin(r, req.Username, false)
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.auditLogin(r, req.Username, true)
	s.respondTokens(w, accessToken, refreshToken)
}

// auditLogin records a login attempt in the event log
func (s *RESTServer) auditLogin(r *http.Request, username string, ok bool) {
	ev := &models.EventLog{
		Type:        models.EventTypeAPICall,
		Level:       models.EventLevelInfo,
		Code:        "login",
		Description: "Operator logged in",
		Details:     models.Variables{"username": username, "remote": r.RemoteAddr},
	}
	if !ok {
		ev.Level = models.EventLevelWarning
		ev.Code = "login_failed"
		ev.Description = "Operator login rejected"
	}
	if err := s.store.CreateEventLog(r.Context(), ev); err != nil {
		log.Error().Err(err).Msg("Failed to create event log")
	}
}

// RefreshRequest is the token refresh body
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !s.decode(w, r, &req) {
		return
	}

	accessToken, refreshToken, err := s.auth.RefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondTokens(w, accessToken, refreshToken)
}

func (s *RESTServer) respondTokens(w http.ResponseWriter, accessToken, refreshToken string) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleGetCurrentOperator returns the authenticated operator
func (s *RESTServer) HandleGetCurrentOperator(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"username":      localOperator,
			"authenticated": false,
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"username":      claims.Username,
		"authenticated": true,
		"expires_at":    claims.ExpiresAt.Time,
	})
}

// ========== Helper methods ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.poller.Last()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"time":            time.Now(),
		"deviceConnected": st.Connected,
		"transferState":   s.machine.State(),
		"streamClients":   s.hub.Count(),
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": s.config.Server.Name,
		"version": s.appVersion.String(),
		"health":  "/api/v1/health",
		"stream":  "/api/v1/device/stream",
	})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (s *RESTServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// PageQuery holds list pagination parameters
type PageQuery struct {
	Limit  int `json:"limit" validate:"min=1,max=500"`
	Offset int `json:"offset" validate:"min=0"`
}

// parsePage reads limit and offset from the query string
func (s *RESTServer) parsePage(r *http.Request) (PageQuery, error) {
	q := PageQuery{Limit: defaultPageSize}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, &validation.FieldError{Field: "limit", Rule: "int", Msg: "must be an integer"}
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, &validation.FieldError{Field: "offset", Rule: "int", Msg: "must be an integer"}
		}
		q.Offset = n
	}
	return q, s.validator.Validate(&q)
}

// parseTime reads an optional RFC 3339 query parameter
func parseTime(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, &validation.FieldError{Field: name, Rule: "time", Msg: "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

func optionalString(r *http.Request, name string) *string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	return &v
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
