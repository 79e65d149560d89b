package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/export"
	"github.com/openacoustics/audiomoth-configurator/internal/models"
	"github.com/openacoustics/audiomoth-configurator/internal/storage"
)

// exportLimit caps the rows of a single export
const exportLimit = 10000

func (s *RESTServer) configurationFilters(r *http.Request) (storage.ConfigurationLogFilters, error) {
	filters := storage.ConfigurationLogFilters{
		DeviceID: optionalString(r, "device_id"),
		State:    optionalString(r, "state"),
	}

	var err error
	if filters.StartTime, err = parseTime(r, "start"); err != nil {
		return filters, err
	}
	if filters.EndTime, err = parseTime(r, "end"); err != nil {
		return filters, err
	}
	return filters, nil
}

// HandleListConfigurations lists configuration transfers
func (s *RESTServer) HandleListConfigurations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := s.parsePage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filters, err := s.configurationFilters(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	logs, total, err := s.store.ListConfigurationLogs(ctx, filters, page.Limit, page.Offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"configurations": logs,
		"total":          total,
	})
}

// HandleGetConfiguration gets one configuration transfer
func (s *RESTServer) HandleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	entry, err := s.store.GetConfigurationLog(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "configuration not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, entry)
}

// HandleExportConfigurations exports the deployment log as xlsx, csv or json
func (s *RESTServer) HandleExportConfigurations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "xlsx"
	}

	filters, err := s.configurationFilters(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	logs, total, err := s.store.ListConfigurationLogs(ctx, filters, exportLimit, 0)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if total > exportLimit {
		log.Warn().Int64("total", total).Int("limit", exportLimit).Msg("Configuration export truncated")
	}

	name := fmt.Sprintf("audiomoth_deployments_%s", time.Now().UTC().Format("20060102"))

	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", name))
		if err := export.WriteConfigurationLog(w, logs); err != nil {
			log.Error().Err(err).Msg("Failed to write xlsx export")
		}

	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", name))

		writer := csv.NewWriter(w)
		defer writer.Flush()

		header := []string{"Sent (UTC)", "Device ID", "Firmware", "Layout", "State", "Packet", "Operator", "Error"}
		if err := writer.Write(header); err != nil {
			return
		}
		for _, entry := range logs {
			row := []string{
				entry.SentAt.UTC().Format(time.RFC3339),
				entry.DeviceID,
				entry.FirmwareVersion,
				entry.Layout,
				entry.State,
				entry.Packet,
				entry.Operator,
				entry.Error,
			}
			if err := writer.Write(row); err != nil {
				return
			}
		}

	case "json":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", name))
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"configurations": logs,
			"total":          total,
			"exported_at":    time.Now().UTC(),
		})

	default:
		s.respondError(w, http.StatusBadRequest, "unsupported format, use xlsx, csv or json")
	}
}

// HandleListEvents lists events
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := s.parsePage(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filters := storage.EventLogFilters{
		DeviceID: optionalString(r, "device_id"),
	}

	// Parse filters
	if eventType := r.URL.Query().Get("type"); eventType != "" {
		modelEventType := models.EventType(strings.ToUpper(eventType))
		filters.Type = &modelEventType
	}

	if level := r.URL.Query().Get("level"); level != "" {
		modelEventLevel := models.EventLevel(strings.ToUpper(level))
		filters.Level = &modelEventLevel
	}

	if filters.StartTime, err = parseTime(r, "start"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filters.EndTime, err = parseTime(r, "end"); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, total, err := s.store.ListEventLogs(ctx, filters, page.Limit, page.Offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}
