package entity

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
	PresenceUnknown PresenceStatus = "unknown"
)

// PresenceRecord is ephemeral and never persisted with the conversation data.
type PresenceRecord struct {
	UserID        string         `json:"user_id"`
	ConnectionRef string         `json:"connection_ref"`
	Connections   int            `json:"connections"`
	LastSeen      time.Time      `json:"last_seen"`
	Status        PresenceStatus `json:"status"`
}
