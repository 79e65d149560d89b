package models

import (
	"time"

	"github.com/google/uuid"
)

// ConfigurationLog records one configuration transfer to a recorder. Field
// deployments keep it as the record of which settings went to which unit.
type ConfigurationLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	TransferID          uuid.UUID `json:"transferId" db:"transfer_id"`
	DeviceID            string    `json:"deviceId" db:"device_id"`
	FirmwareVersion     string    `json:"firmwareVersion" db:"firmware_version"`
	FirmwareDescription string    `json:"firmwareDescription" db:"firmware_description"`
	Layout              string    `json:"layout" db:"layout"`

	State string `json:"state" db:"state"`
	Error string `json:"error,omitempty" db:"error"`

	ScheduledAt time.Time `json:"scheduledAt" db:"scheduled_at"`
	SentAt      time.Time `json:"sentAt" db:"sent_at"`

	// Packet is the hex encoded packet sent to the recorder.
	Packet   string    `json:"packet" db:"packet"`
	Settings Variables `json:"settings" db:"settings"`
	Operator string    `json:"operator,omitempty" db:"operator"`
}

// Succeeded reports whether the recorder echoed the packet correctly.
func (c *ConfigurationLog) Succeeded() bool {
	return c.State == "confirmed"
}
