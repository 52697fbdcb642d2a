package voice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akvinayaktiwari/veezy/internal/audio"
	"github.com/akvinayaktiwari/veezy/internal/reliability"
)

// Turn end reasons reported through EventSink.TurnEnded.
const (
	TurnReasonCompleted   = "completed"
	TurnReasonInterrupted = "interrupted"
	TurnReasonFailed      = "failed"
)

const (
	// DefaultHistoryWindow bounds the trailing conversation context passed
	// to the generator.
	DefaultHistoryWindow = 10
	// DefaultGenerateAttempts bounds generation retries for transient
	// failures.
	DefaultGenerateAttempts = 3

	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffCap  = 2 * time.Second

	// synthFailureSilenceMS is the substitute emitted when one sentence
	// fails to synthesize; the reply continues with the next sentence.
	synthFailureSilenceMS = 200
)

// DefaultFallbackReply is spoken when generation fails past its retry budget
// or hits a quota-exhausted condition.
const DefaultFallbackReply = "Sorry, I'm having trouble answering right now. Could you say that again?"

// PipelineConfig tunes one session's response pipelines.
type PipelineConfig struct {
	HistoryWindow    int
	GenerateAttempts int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	FallbackReply    string
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.GenerateAttempts <= 0 {
		c.GenerateAttempts = DefaultGenerateAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if strings.TrimSpace(c.FallbackReply) == "" {
		c.FallbackReply = DefaultFallbackReply
	}
	return c
}

// ResponsePipeline drives one turn's reply: generate text, commit it to the
// transcript, then synthesize and stream it sentence by sentence. Every step
// checks the ResponseToken; an invalidated token stops the pipeline silently.
// Failures degrade the reply (fallback text, silence audio) but are contained
// to the turn.
type ResponsePipeline struct {
	cfg        PipelineConfig
	transcript *Transcript
	generator  Generator
	synth      Synthesizer
	out        AudioSink
	events     EventSink
	failures   FailureSink
}

func NewResponsePipeline(
	cfg PipelineConfig,
	transcript *Transcript,
	generator Generator,
	synth Synthesizer,
	out AudioSink,
	events EventSink,
	failures FailureSink,
) *ResponsePipeline {
	if failures == nil {
		failures = NopFailureSink{}
	}
	return &ResponsePipeline{
		cfg:        cfg.withDefaults(),
		transcript: transcript,
		generator:  generator,
		synth:      synth,
		out:        out,
		events:     events,
		failures:   failures,
	}
}

// Run executes one reply for the already-committed user utterance. It returns
// the turn end reason. onFirstAudio fires once, just before the first audio
// chunk is emitted.
func (p *ResponsePipeline) Run(token *ResponseToken, user Utterance, onFirstAudio func()) string {
	history := p.historyBefore(user)

	reply, err := p.generate(token.Context(), user.Text, history)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return TurnReasonInterrupted
		}
		reply = p.cfg.FallbackReply
	}
	reply = sanitizeSpeechText(reply)
	if reply == "" {
		reply = p.cfg.FallbackReply
	}
	if !token.Valid() {
		return TurnReasonInterrupted
	}

	agent := Utterance{
		ID:        uuid.NewString(),
		Speaker:   SpeakerAgent,
		Text:      reply,
		Timestamp: time.Now().UTC(),
	}
	p.transcript.Append(agent)
	p.events.AgentText(token.TurnID(), reply)

	return p.speak(token, reply, onFirstAudio)
}

// historyBefore returns the bounded trailing context, excluding the utterance
// the pipeline is answering (it is already in the transcript).
func (p *ResponsePipeline) historyBefore(user Utterance) []Utterance {
	tail := p.transcript.Tail(p.cfg.HistoryWindow + 1)
	if n := len(tail); n > 0 && tail[n-1].ID == user.ID {
		tail = tail[:n-1]
	}
	if len(tail) > p.cfg.HistoryWindow {
		tail = tail[len(tail)-p.cfg.HistoryWindow:]
	}
	return tail
}

func (p *ResponsePipeline) generate(ctx context.Context, userText string, history []Utterance) (string, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.GenerateAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, reliability.ExponentialBackoff(attempt-1, p.cfg.BackoffBase, p.cfg.BackoffCap)); err != nil {
				return "", err
			}
		}
		reply, err := p.generator.Generate(ctx, userText, history)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, context.Canceled) {
			return "", context.Canceled
		}
		lastErr = err
		if reliability.IsQuotaExhausted(err) {
			// Quota will not recover within the turn; stop burning attempts.
			p.failures.ReportFailure("generator", "quota_exhausted", err)
			return "", err
		}
		p.failures.ReportFailure("generator", "generate_failed", err)
	}
	return "", lastErr
}

func (p *ResponsePipeline) speak(token *ResponseToken, reply string, onFirstAudio func()) string {
	sentences := splitSentences(reply)
	if len(sentences) == 0 {
		return TurnReasonCompleted
	}

	seq := 0
	firstAudio := true
	for _, sentence := range sentences {
		if !token.Valid() {
			return TurnReasonInterrupted
		}
		chunks, err := p.synth.Synthesize(token.Context(), sentence)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return TurnReasonInterrupted
			}
			// Keep speaking: one bad sentence becomes a short pause.
			p.failures.ReportFailure("synthesizer", "synthesize_failed", err)
			chunks = [][]byte{audio.SilencePCM16(p.synth.SampleRate(), synthFailureSilenceMS)}
		}
		for _, chunk := range chunks {
			if !token.Valid() {
				return TurnReasonInterrupted
			}
			if len(chunk) == 0 {
				continue
			}
			if firstAudio {
				firstAudio = false
				if onFirstAudio != nil {
					onFirstAudio()
				}
			}
			if err := p.out.WriteAudio(token.Context(), token.TurnID(), seq, chunk); err != nil {
				if errors.Is(err, context.Canceled) {
					return TurnReasonInterrupted
				}
				p.failures.ReportFailure("transport", "write_audio_failed", err)
				return TurnReasonFailed
			}
			seq++
		}
	}
	return TurnReasonCompleted
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Canceled
	case <-timer.C:
		return nil
	}
}
