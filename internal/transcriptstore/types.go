package transcriptstore

import (
	"context"
	"time"
)

// UtteranceRecord stores one committed user or agent utterance.
type UtteranceRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves session transcripts.
type Store interface {
	SaveUtterance(ctx context.Context, record UtteranceRecord) error
	RecentBySession(ctx context.Context, sessionID string, limit int) ([]UtteranceRecord, error)
	Close() error
}
