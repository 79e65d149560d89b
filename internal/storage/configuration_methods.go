package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openacoustics/audiomoth-configurator/internal/models"
)

const configurationLogColumns = `id, created_at, transfer_id, device_id, firmware_version,
	firmware_description, layout, state, error, scheduled_at, sent_at, packet, settings, operator`

// CreateConfigurationLog records a finished transfer
func (s *SQLStore) CreateConfigurationLog(ctx context.Context, entry *models.ConfigurationLog) error {
	if entry.DeviceID == "" || entry.State == "" {
		return fmt.Errorf("%w: device id and state are required", ErrInvalidData)
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	query := s.rebind(`
		INSERT INTO configuration_logs (` + configurationLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.getDB().ExecContext(ctx, query,
		entry.ID, entry.CreatedAt, entry.TransferID, entry.DeviceID, entry.FirmwareVersion,
		entry.FirmwareDescription, entry.Layout, entry.State, entry.Error,
		entry.ScheduledAt.UTC(), entry.SentAt.UTC(), entry.Packet, entry.Settings, entry.Operator,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

// GetConfigurationLog gets a configuration log entry by ID
func (s *SQLStore) GetConfigurationLog(ctx context.Context, id uuid.UUID) (*models.ConfigurationLog, error) {
	query := s.rebind(`SELECT ` + configurationLogColumns + ` FROM configuration_logs WHERE id = ?`)

	entry, err := scanConfigurationLog(s.getDB().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// ListConfigurationLogs lists configuration logs with filters, newest first
func (s *SQLStore) ListConfigurationLogs(ctx context.Context, filters ConfigurationLogFilters, limit, offset int) ([]*models.ConfigurationLog, int64, error) {
	// Build query with filters
	where := " WHERE 1=1"
	args := []interface{}{}

	if filters.DeviceID != nil {
		where += " AND device_id = ?"
		args = append(args, *filters.DeviceID)
	}

	if filters.State != nil {
		where += " AND state = ?"
		args = append(args, *filters.State)
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
	err := s.getDB().QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM configuration_logs"+where), args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	selectQuery := "SELECT " + configurationLogColumns + " FROM configuration_logs" + where +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, s.rebind(selectQuery), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*models.ConfigurationLog
	for rows.Next() {
		entry, err := scanConfigurationLog(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	return entries, count, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfigurationLog(row rowScanner) (*models.ConfigurationLog, error) {
	entry := &models.ConfigurationLog{}
	err := row.Scan(
		&entry.ID, &entry.CreatedAt, &entry.TransferID, &entry.DeviceID, &entry.FirmwareVersion,
		&entry.FirmwareDescription, &entry.Layout, &entry.State, &entry.Error,
		&entry.ScheduledAt, &entry.SentAt, &entry.Packet, &entry.Settings, &entry.Operator,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

