package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/savefile"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// DefaultFileName is offered to clients saving a configuration
const DefaultFileName = "AudioMoth.config"

// LoadSettingsRequest holds configuration file text to parse
type LoadSettingsRequest struct {
	Text string `json:"text" validate:"required,max=65536"`
	// Policy is current, defaults or cancel. It defaults to current when
	// Current is set and to defaults otherwise.
	Policy  string              `json:"policy" validate:"max=16"`
	Current *audiomoth.Settings `json:"current"`
}

// LoadSettingsResponse is a parsed configuration file
type LoadSettingsResponse struct {
	Settings audiomoth.Settings `json:"settings"`
	Version  audiomoth.Version  `json:"version"`
	Missing  []string           `json:"missing"`
	Policy   string             `json:"policy"`
}

// HandleDefaultSettings returns the settings of a fresh installation
func (s *RESTServer) HandleDefaultSettings(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, savefile.DefaultSettings())
}

// HandleLoadSettings parses a saved configuration file
func (s *RESTServer) HandleLoadSettings(w http.ResponseWriter, r *http.Request) {
	var req LoadSettingsRequest
	if !s.decode(w, r, &req) {
		return
	}

	current := savefile.DefaultSettings()
	policy := savefile.UseDefaults
	if req.Current != nil {
		current = *req.Current
		policy = savefile.KeepCurrent
	}
	if req.Policy != "" {
		p, err := savefile.ParseMissingPolicy(req.Policy)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		policy = p
	}

	loaded, err := savefile.Load([]byte(req.Text), current, s.appVersion, policy)
	if err != nil {
		var cfe *savefile.ConfigFileError
		switch {
		case errors.Is(err, savefile.ErrLoadCancelled):
			s.respondError(w, http.StatusConflict, err.Error())
		case errors.As(err, &cfe):
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	missing := loaded.Missing
	if missing == nil {
		missing = []string{}
	}
	s.respondJSON(w, http.StatusOK, &LoadSettingsResponse{
		Settings: loaded.Settings,
		Version:  loaded.Version,
		Missing:  missing,
		Policy:   policy.String(),
	})
}

// HandleSaveSettings renders settings as a configuration file download
func (s *RESTServer) HandleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings audiomoth.Settings
	if !s.decode(w, r, &settings) {
		return
	}
	if err := settings.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := savefile.Save(&buf, &settings, s.appVersion); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+DefaultFileName+"\"")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Warn().Err(err).Msg("Failed to write configuration file")
	}
}
