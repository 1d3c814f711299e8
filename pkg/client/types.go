package client

import "time"

// StatusResponse is the watcher state reported by GET {base}/status.
type StatusResponse struct {
	Device      string    `json:"device" yaml:"device"`
	App         string    `json:"app" yaml:"app"`
	Prober      string    `json:"prober" yaml:"prober"`
	Threshold   int       `json:"threshold" yaml:"threshold"`
	Failures    int       `json:"failures" yaml:"failures"`
	LastResult  string    `json:"last_result,omitempty" yaml:"last_result,omitempty"`
	LastProbeAt time.Time `json:"last_probe_at,omitzero" yaml:"last_probe_at,omitempty"`
	LastError   string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	AppRunning  bool      `json:"app_running" yaml:"app_running"`
	Probes      uint64    `json:"probes" yaml:"probes"`
	Trips       uint64    `json:"trips" yaml:"trips"`
	Starts      uint64    `json:"starts" yaml:"starts"`
	Stops       uint64    `json:"stops" yaml:"stops"`
}

// HistoryEvent is one entry returned by GET {base}/history.
type HistoryEvent struct {
	ID         string    `json:"id" yaml:"id"`
	Type       string    `json:"type" yaml:"type"`
	OccurredAt time.Time `json:"occurred_at" yaml:"occurred_at"`
	Device     string    `json:"device" yaml:"device"`
	App        string    `json:"app" yaml:"app"`
	Failures   int       `json:"failures" yaml:"failures"`
	Detail     string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
