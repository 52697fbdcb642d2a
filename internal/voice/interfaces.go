package voice

import (
	"context"
	"time"
)

// Fragment is one recognizer result for a processed audio window. Partial
// fragments carry the in-progress hypothesis; final fragments carry committed
// text that becomes part of the finalized utterance.
type Fragment struct {
	Text       string
	Final      bool
	ReceivedAt time.Time
}

// Recognizer turns speech-gated audio windows into text fragments. A single
// ProcessWindow call may yield zero or more fragments. Reset returns the
// recognizer to a clean state between sessions.
type Recognizer interface {
	ProcessWindow(ctx context.Context, pcm []int16) ([]Fragment, error)
	Reset()
}

// Generator produces the agent's reply text from the user's utterance and a
// bounded trailing window of prior conversation. Failures should be returned
// as *reliability.ProviderError so the pipeline can classify them.
type Generator interface {
	Generate(ctx context.Context, userText string, history []Utterance) (string, error)
}

// Synthesizer converts one sentence-sized text unit into a finite ordered
// sequence of PCM16 audio chunks at SampleRate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([][]byte, error)
	SampleRate() int
}

// AudioSink accepts outbound audio chunks in the order the pipeline produced
// them. Implementations must not reorder or drop chunks silently.
type AudioSink interface {
	WriteAudio(ctx context.Context, turnID string, seq int, pcm []byte) error
}

// EventSink receives non-audio session events: live captions, committed
// utterances, reply text and turn boundaries. Implementations must return
// quickly; the session layer puts a buffered channel behind it.
type EventSink interface {
	CaptionPartial(text string)
	UserUtterance(u Utterance)
	AgentText(turnID, text string)
	TurnEnded(turnID, reason string)
}

// FailureSink receives classified failures for external logging and metrics.
// Calls must never block the turn-taking path.
type FailureSink interface {
	ReportFailure(component, code string, err error)
}

// NopFailureSink discards all reports.
type NopFailureSink struct{}

func (NopFailureSink) ReportFailure(string, string, error) {}
