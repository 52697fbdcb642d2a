package voice

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Utterance is one committed conversational turn half. Immutable once
// appended to a Transcript.
type Utterance struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the ordered, append-only utterance log for one session.
// Appends and reads may come from the ingest goroutine and the response
// pipeline concurrently.
type Transcript struct {
	mu      sync.RWMutex
	entries []Utterance
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(u Utterance) {
	t.mu.Lock()
	t.entries = append(t.entries, u)
	t.mu.Unlock()
}

// Tail returns a copy of the most recent n utterances in order.
func (t *Transcript) Tail(n int) []Utterance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Utterance, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}

func (t *Transcript) All() []Utterance {
	return t.Tail(0)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Render formats the transcript as one line per utterance, the shape the
// end-session endpoint returns to clients.
func (t *Transcript) Render() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var b strings.Builder
	for i, u := range t.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", u.Timestamp.UTC().Format("15:04:05"), u.Speaker, u.Text)
	}
	return b.String()
}
