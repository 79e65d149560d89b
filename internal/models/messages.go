package models

import (
	"time"

	"github.com/google/uuid"
)

// StatusMessage is the recorder status published to integrations
type StatusMessage struct {
	DeviceID        string    `json:"deviceId,omitempty"`
	Connected       bool      `json:"connected"`
	DeviceTime      time.Time `json:"deviceTime,omitempty"`
	Battery         string    `json:"battery,omitempty"`
	FirmwareVersion string    `json:"firmwareVersion,omitempty"`
	FirmwareTier    string    `json:"firmwareTier,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
	PolledAt        time.Time `json:"polledAt"`
}

// TransferMessage is the outcome of a configuration transfer published to
// integrations
type TransferMessage struct {
	TransferID      uuid.UUID `json:"transferId"`
	DeviceID        string    `json:"deviceId,omitempty"`
	State           string    `json:"state"`
	Error           string    `json:"error,omitempty"`
	FirmwareVersion string    `json:"firmwareVersion,omitempty"`
	Layout          string    `json:"layout,omitempty"`
	Packet          string    `json:"packet,omitempty"`
	SentAt          time.Time `json:"sentAt"`
}
