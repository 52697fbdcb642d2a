package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akvinayaktiwari/veezy/internal/observability"
	"github.com/akvinayaktiwari/veezy/internal/protocol"
	"github.com/akvinayaktiwari/veezy/internal/session"
	"github.com/akvinayaktiwari/veezy/internal/transcriptstore"
)

// RecognizerProvider builds one recognizer per session; recognizers are
// stateful and never shared across sessions.
type RecognizerProvider interface {
	NewRecognizer(ctx context.Context, sessionID string) (Recognizer, error)
}

// RuntimeConfig tunes the per-session audio front end and pipeline.
type RuntimeConfig struct {
	SampleRate    int
	WindowSamples int
	GateThreshold float64
	QuietInterval time.Duration
	Pipeline      PipelineConfig
}

func (c RuntimeConfig) withDefaults() RuntimeConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.WindowSamples <= 0 {
		c.WindowSamples = 320
	}
	if c.QuietInterval <= 0 {
		c.QuietInterval = DefaultQuietInterval
	}
	return c
}

// silenceLogEvery throttles consecutive-silence diagnostics; the counter is
// informational only and never feeds gating decisions.
const silenceLogEvery = 250

const storeSaveTimeout = 2 * time.Second

// Orchestrator drives session runtimes. One RunConnection call owns the full
// per-session chain: frame accumulation, activity gating, recognition,
// fragment accumulation with the silence watchdog, the turn controller and
// its response pipelines.
type Orchestrator struct {
	sessions    *session.Manager
	recProvider RecognizerProvider
	generator   Generator
	synth       Synthesizer
	store       transcriptstore.Store
	metrics     *observability.Metrics
	cfg         RuntimeConfig

	mu   sync.Mutex
	live map[string]*sessionRuntime
}

type sessionRuntime struct {
	transcript *Transcript
	controller *TurnController
}

func NewOrchestrator(
	sessions *session.Manager,
	recProvider RecognizerProvider,
	generator Generator,
	synth Synthesizer,
	store transcriptstore.Store,
	metrics *observability.Metrics,
	cfg RuntimeConfig,
) *Orchestrator {
	return &Orchestrator{
		sessions:    sessions,
		recProvider: recProvider,
		generator:   generator,
		synth:       synth,
		store:       store,
		metrics:     metrics,
		cfg:         cfg.withDefaults(),
		live:        make(map[string]*sessionRuntime),
	}
}

// RunConnection drives one websocket connection's session lifetime. It
// returns when the context is cancelled, the inbound channel closes, or the
// client sends a stop control.
func (o *Orchestrator) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	rec, err := o.recProvider.NewRecognizer(ctx, s.ID)
	if err != nil {
		o.sendDrop(outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: s.ID,
			Code:      "recognizer_start_failed",
			Source:    "recognizer",
			Retryable: true,
			Detail:    err.Error(),
		})
		return fmt.Errorf("start recognizer: %w", err)
	}
	defer rec.Reset()

	transcript := NewTranscript()
	sink := &connectionSink{
		sessionID: s.ID,
		outbound:  outbound,
		store:     o.store,
		metrics:   o.metrics,
		ctx:       ctx,
	}
	pipeline := NewResponsePipeline(o.cfg.Pipeline, transcript, o.generator, o.synth, sink, sink, sink)
	controller := NewTurnController(ctx, transcript, pipeline, sink)

	acc := NewFragmentAccumulator(o.cfg.QuietInterval,
		func(text string) {
			sink.markFinalized(time.Now())
			if controller.AgentSpeaking() {
				_ = o.sessions.Interrupt(s.ID)
				o.metrics.SessionEvents.WithLabelValues("barge_in").Inc()
			}
			if controller.CommitUserUtterance(text) {
				o.metrics.SessionEvents.WithLabelValues("utterance_finalized").Inc()
			}
		},
		func(text string) {
			sink.CaptionPartial(text)
		},
	)

	o.register(s.ID, &sessionRuntime{transcript: transcript, controller: controller})
	defer func() {
		o.unregister(s.ID)
		acc.Stop()
		controller.Stop()
	}()

	controller.Start()

	framer := NewFrameAccumulator(o.cfg.WindowSamples)
	gate := NewEnergyGate(o.cfg.GateThreshold)
	silenceRun := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			switch m := msg.(type) {
			case protocol.ClientAudioChunk:
				_ = o.sessions.Touch(s.ID)
				raw, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
				if err != nil {
					o.sendDrop(outbound, protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						SessionID: s.ID,
						Code:      "invalid_audio_chunk",
						Source:    "gateway",
						Retryable: false,
						Detail:    err.Error(),
					})
					continue
				}
				for _, window := range framer.Push(raw) {
					o.processWindow(ctx, s.ID, window, gate, rec, acc, &silenceRun, outbound)
				}
			case protocol.ClientControl:
				_ = o.sessions.Touch(s.ID)
				switch m.Action {
				case "interrupt":
					_ = o.sessions.Interrupt(s.ID)
					o.metrics.SessionEvents.WithLabelValues("client_interrupt").Inc()
					controller.Interrupt()
				case "stop":
					return nil
				}
			}
		}
	}
}

func (o *Orchestrator) processWindow(
	ctx context.Context,
	sessionID string,
	window []int16,
	gate ActivityGate,
	rec Recognizer,
	acc *FragmentAccumulator,
	silenceRun *int,
	outbound chan<- any,
) {
	speech, err := gate.Classify(window)
	if err != nil {
		// Fail open: never drop audio because the gate could not decide.
		o.metrics.GateFailures.Inc()
		o.sendDrop(outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "gate_classify_failed",
			Source:    "activity_gate",
			Retryable: true,
			Detail:    err.Error(),
		})
		speech = true
	}
	if !speech {
		*silenceRun++
		if *silenceRun%silenceLogEvery == 0 {
			o.metrics.SessionEvents.WithLabelValues("silence_window_run").Inc()
		}
		return
	}
	*silenceRun = 0

	frags, err := rec.ProcessWindow(ctx, window)
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues("recognizer", "process_window_failed").Inc()
		o.sendDrop(outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "recognizer_failed",
			Source:    "recognizer",
			Retryable: true,
			Detail:    err.Error(),
		})
		return
	}
	for _, frag := range frags {
		acc.Observe(frag)
	}
}

// SessionStatus reports liveness details for a running session.
func (o *Orchestrator) SessionStatus(sessionID string) (speaking bool, tail string, ok bool) {
	o.mu.Lock()
	rt := o.live[sessionID]
	o.mu.Unlock()
	if rt == nil {
		return false, "", false
	}
	var lines []string
	for _, u := range rt.transcript.Tail(3) {
		lines = append(lines, fmt.Sprintf("%s: %s", u.Speaker, u.Text))
	}
	return rt.controller.AgentSpeaking(), strings.Join(lines, " | "), true
}

// TranscriptText renders a session's transcript, preferring the live runtime
// and falling back to the store for ended sessions.
func (o *Orchestrator) TranscriptText(ctx context.Context, sessionID string) (string, error) {
	o.mu.Lock()
	rt := o.live[sessionID]
	o.mu.Unlock()
	if rt != nil {
		return rt.transcript.Render(), nil
	}

	records, err := o.store.RecentBySession(ctx, sessionID, 0)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", r.CreatedAt.UTC().Format("15:04:05"), r.Speaker, r.Text)
	}
	return b.String(), nil
}

// PreviewSynth synthesizes standalone text and returns the joined PCM with
// its sample rate. Used by the audition endpoint; bypasses the turn machine.
func (o *Orchestrator) PreviewSynth(ctx context.Context, text string) ([]byte, int, error) {
	text = sanitizeSpeechText(text)
	if text == "" {
		return nil, 0, fmt.Errorf("text is required")
	}
	var out []byte
	for _, sentence := range splitSentences(text) {
		chunks, err := o.synth.Synthesize(ctx, sentence)
		if err != nil {
			return nil, 0, err
		}
		for _, c := range chunks {
			out = append(out, c...)
		}
	}
	return out, o.synth.SampleRate(), nil
}

func (o *Orchestrator) register(sessionID string, rt *sessionRuntime) {
	o.mu.Lock()
	o.live[sessionID] = rt
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(sessionID string) {
	o.mu.Lock()
	delete(o.live, sessionID)
	o.mu.Unlock()
}

// sendDrop enqueues an informational event, dropping it when the outbound
// queue is saturated. Audio goes through connectionSink.WriteAudio, which
// never drops.
func (o *Orchestrator) sendDrop(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		o.metrics.SessionEvents.WithLabelValues("outbound_drop_full").Inc()
	}
}

// connectionSink adapts one connection's outbound channel and the transcript
// store to the core's sink contracts.
type connectionSink struct {
	sessionID string
	outbound  chan<- any
	store     transcriptstore.Store
	metrics   *observability.Metrics
	ctx       context.Context

	mu          sync.Mutex
	finalizedAt time.Time
}

func (s *connectionSink) markFinalized(t time.Time) {
	s.mu.Lock()
	s.finalizedAt = t
	s.mu.Unlock()
}

func (s *connectionSink) sendDrop(msg any) {
	select {
	case s.outbound <- msg:
	default:
		s.metrics.SessionEvents.WithLabelValues("outbound_drop_full").Inc()
	}
}

func (s *connectionSink) CaptionPartial(text string) {
	s.sendDrop(protocol.CaptionPartial{
		Type:      protocol.TypeCaptionPartial,
		SessionID: s.sessionID,
		Text:      text,
		TSMs:      time.Now().UnixMilli(),
	})
}

func (s *connectionSink) UserUtterance(u Utterance) {
	s.sendDrop(protocol.UserUtterance{
		Type:        protocol.TypeUserUtterance,
		SessionID:   s.sessionID,
		UtteranceID: u.ID,
		Text:        u.Text,
		TSMs:        u.Timestamp.UnixMilli(),
	})
	s.saveBestEffort(u)
}

func (s *connectionSink) AgentText(turnID, text string) {
	s.sendDrop(protocol.AgentText{
		Type:      protocol.TypeAgentText,
		SessionID: s.sessionID,
		TurnID:    turnID,
		Text:      text,
	})
	s.saveBestEffort(Utterance{
		Speaker:   SpeakerAgent,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (s *connectionSink) TurnEnded(turnID, reason string) {
	s.metrics.TurnEvents.WithLabelValues(reason).Inc()
	s.sendDrop(protocol.AgentTurnEnd{
		Type:      protocol.TypeAgentTurnEnd,
		SessionID: s.sessionID,
		TurnID:    turnID,
		Reason:    reason,
	})
}

func (s *connectionSink) WriteAudio(ctx context.Context, turnID string, seq int, pcm []byte) error {
	s.mu.Lock()
	if !s.finalizedAt.IsZero() {
		s.metrics.ObserveResponseLatency(time.Since(s.finalizedAt))
		s.finalizedAt = time.Time{}
	}
	s.mu.Unlock()

	msg := protocol.AgentAudioChunk{
		Type:        protocol.TypeAgentAudioChunk,
		SessionID:   s.sessionID,
		TurnID:      turnID,
		Seq:         seq,
		Format:      "pcm_s16le",
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.outbound <- msg:
		return nil
	}
}

func (s *connectionSink) ReportFailure(component, code string, err error) {
	s.metrics.ProviderErrors.WithLabelValues(component, code).Inc()
	s.sendDrop(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: s.sessionID,
		Code:      code,
		Source:    component,
		Retryable: true,
		Detail:    err.Error(),
	})
}

func (s *connectionSink) saveBestEffort(u Utterance) {
	if s.store == nil {
		return
	}
	record := transcriptstore.UtteranceRecord{
		ID:        u.ID,
		SessionID: s.sessionID,
		Speaker:   string(u.Speaker),
		Text:      u.Text,
		CreatedAt: u.Timestamp,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), storeSaveTimeout)
		defer cancel()
		if err := s.store.SaveUtterance(ctx, record); err != nil {
			s.metrics.ProviderErrors.WithLabelValues("transcript_store", "save_failed").Inc()
		}
	}()
}
