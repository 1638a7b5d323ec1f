package models

import "time"

// Artifact is the archived diagnostics of a finished device session
type Artifact struct {
	ID              string    `json:"id"`
	DeviceSessionID string    `json:"deviceSessionId"`
	CreatedAt       time.Time `json:"createdAt"`
	LogLines        int       `json:"logLines"`
	Screenshots     int       `json:"screenshots"`
	DataPath        string    `json:"-"` // Path to the stored archive (internal only)
}
