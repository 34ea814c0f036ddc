package models

// HealthStatus is derived from detector stats, never stored.
type HealthStatus string

const (
	HealthInactive HealthStatus = "inactive"
	HealthStandby  HealthStatus = "standby"
	HealthWarning  HealthStatus = "warning"
	HealthActive   HealthStatus = "active"
)

// HealthEvent is published periodically on the health channel.
type HealthEvent struct {
	EventType string       `json:"event_type"`
	Source    string       `json:"source"`
	Timestamp float64      `json:"timestamp"`
	Status    HealthStatus `json:"status"`
	Stats     interface{}  `json:"stats,omitempty"`
}
