package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openacoustics/audiomoth-configurator/internal/models"
)

// CreateEventLog creates an event log entry
func (s *SQLStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.Type == "" || event.Level == "" {
		return fmt.Errorf("%w: event type and level are required", ErrInvalidData)
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()

	query := s.rebind(`
		INSERT INTO event_logs (
			id, created_at, device_id, type, level, code, description, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.DeviceID, string(event.Type), string(event.Level),
		event.Code, event.Description, event.Details,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

// ListEventLogs lists event logs with filters
func (s *SQLStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	// Build query with filters
	where := " WHERE 1=1"
	args := []interface{}{}

	if filters.DeviceID != nil {
		where += " AND device_id = ?"
		args = append(args, *filters.DeviceID)
	}

	if filters.Type != nil {
		where += " AND type = ?"
		args = append(args, string(*filters.Type))
	}

	if filters.Level != nil {
		where += " AND level = ?"
		args = append(args, string(*filters.Level))
	}

	if filters.StartTime != nil {
		where += " AND created_at >= ?"
		args = append(args, filters.StartTime.UTC())
	}

	if filters.EndTime != nil {
		where += " AND created_at <= ?"
		args = append(args, filters.EndTime.UTC())
	}

	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM event_logs"+where), args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	selectQuery := "SELECT id, created_at, device_id, type, level, code, description, details FROM event_logs" +
		where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, s.rebind(selectQuery), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		var eventType, level string

		err := rows.Scan(
			&event.ID, &event.CreatedAt, &event.DeviceID, &eventType, &level,
			&event.Code, &event.Description, &event.Details,
		)
		if err != nil {
			return nil, 0, err
		}
		event.Type = models.EventType(eventType)
		event.Level = models.EventLevel(level)

		events = append(events, event)
	}

	return events, count, rows.Err()
}
