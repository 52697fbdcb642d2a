package session

import "time"

// CreateRequest defines the payload for creating a new session.
type CreateRequest struct {
	AgentName string `json:"agent_name"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	AgentName       string    `json:"agent_name"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

// StatusResponse reports a session's liveness and recent conversation.
type StatusResponse struct {
	SessionID       string `json:"session_id"`
	Active          bool   `json:"active"`
	Speaking        bool   `json:"speaking"`
	DurationSeconds int64  `json:"duration_seconds"`
	TranscriptTail  string `json:"transcript_tail"`
}

// EndResponse returns the final transcript when a session ends.
type EndResponse struct {
	SessionID       string `json:"session_id"`
	Transcript      string `json:"transcript"`
	DurationSeconds int64  `json:"duration_seconds"`
}
