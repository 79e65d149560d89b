package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openacoustics/audiomoth-configurator/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Migrate creates missing tables
	Migrate(ctx context.Context) error

	// Configuration log methods
	CreateConfigurationLog(ctx context.Context, entry *models.ConfigurationLog) error
	GetConfigurationLog(ctx context.Context, id uuid.UUID) (*models.ConfigurationLog, error)
	ListConfigurationLogs(ctx context.Context, filters ConfigurationLogFilters, limit, offset int) ([]*models.ConfigurationLog, int64, error)

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// Close the store
	Close() error
}

// ConfigurationLogFilters represents filters for configuration logs
type ConfigurationLogFilters struct {
	DeviceID  *string
	State     *string
	StartTime *time.Time
	EndTime   *time.Time
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	DeviceID  *string
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}
