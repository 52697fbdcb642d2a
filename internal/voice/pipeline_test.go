package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/akvinayaktiwari/veezy/internal/reliability"
)

// collectSink records everything the pipeline emits, in order.
type collectSink struct {
	mu        sync.Mutex
	chunks    []audioChunk
	captions  []string
	userTexts []string
	agentText []string
	turnEnds  []string
	failures  []string
	writeErr  error
}

type audioChunk struct {
	turnID string
	seq    int
	pcm    []byte
}

func (s *collectSink) WriteAudio(ctx context.Context, turnID string, seq int, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.chunks = append(s.chunks, audioChunk{turnID: turnID, seq: seq, pcm: cp})
	return nil
}

func (s *collectSink) CaptionPartial(text string) {
	s.mu.Lock()
	s.captions = append(s.captions, text)
	s.mu.Unlock()
}

func (s *collectSink) UserUtterance(u Utterance) {
	s.mu.Lock()
	s.userTexts = append(s.userTexts, u.Text)
	s.mu.Unlock()
}

func (s *collectSink) AgentText(_ string, text string) {
	s.mu.Lock()
	s.agentText = append(s.agentText, text)
	s.mu.Unlock()
}

func (s *collectSink) TurnEnded(_ string, reason string) {
	s.mu.Lock()
	s.turnEnds = append(s.turnEnds, reason)
	s.mu.Unlock()
}

func (s *collectSink) ReportFailure(component, code string, _ error) {
	s.mu.Lock()
	s.failures = append(s.failures, component+"/"+code)
	s.mu.Unlock()
}

func (s *collectSink) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// scriptedGenerator returns the scripted errors first, then reply.
type scriptedGenerator struct {
	mu    sync.Mutex
	errs  []error
	reply string
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, _ string, _ []Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return "", err
	}
	return g.reply, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// unitSynth emits chunksPerUnit fixed chunks per sentence and can fail on a
// chosen sentence index.
type unitSynth struct {
	mu            sync.Mutex
	chunksPerUnit int
	failOnUnit    int
	units         int
	gate          chan struct{}
}

func newUnitSynth(chunksPerUnit int) *unitSynth {
	return &unitSynth{chunksPerUnit: chunksPerUnit, failOnUnit: -1}
}

func (s *unitSynth) Synthesize(ctx context.Context, text string) ([][]byte, error) {
	if s.gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.gate:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	unit := s.units
	s.units++
	s.mu.Unlock()
	if unit == s.failOnUnit {
		return nil, fmt.Errorf("voice model unavailable")
	}
	chunks := make([][]byte, s.chunksPerUnit)
	for i := range chunks {
		chunks[i] = []byte(fmt.Sprintf("%s#%d", text, i))
	}
	return chunks, nil
}

func (s *unitSynth) SampleRate() int { return 16000 }

func fastPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	}
}

func liveToken(t *testing.T) *ResponseToken {
	t.Helper()
	token := newResponseToken(context.Background(), "turn-1")
	t.Cleanup(token.Invalidate)
	return token
}

func TestPipelineStreamsSentencesInOrder(t *testing.T) {
	sink := &collectSink{}
	gen := &scriptedGenerator{reply: "One two. Three four!"}
	transcript := NewTranscript()
	p := NewResponsePipeline(fastPipelineConfig(), transcript, gen, newUnitSynth(2), sink, sink, sink)

	firstAudio := false
	reason := p.Run(liveToken(t), Utterance{ID: "u1", Speaker: SpeakerUser, Text: "hi"}, func() { firstAudio = true })
	if reason != TurnReasonCompleted {
		t.Fatalf("reason = %q, want completed", reason)
	}
	if !firstAudio {
		t.Fatalf("onFirstAudio did not fire")
	}

	if len(sink.agentText) != 1 || sink.agentText[0] != "One two. Three four!" {
		t.Fatalf("agentText = %v", sink.agentText)
	}
	want := []string{"One two.#0", "One two.#1", "Three four!#0", "Three four!#1"}
	if len(sink.chunks) != len(want) {
		t.Fatalf("chunks = %d, want %d", len(sink.chunks), len(want))
	}
	for i, c := range sink.chunks {
		if c.seq != i {
			t.Fatalf("chunk %d seq = %d, want %d", i, c.seq, i)
		}
		if string(c.pcm) != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, c.pcm, want[i])
		}
	}
	if transcript.Len() != 1 {
		t.Fatalf("transcript len = %d, want 1 agent utterance", transcript.Len())
	}
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	sink := &collectSink{}
	transient := &reliability.ProviderError{Provider: "llm", Code: "http_503", Class: reliability.ClassTransient, Err: errors.New("overloaded")}
	gen := &scriptedGenerator{errs: []error{transient, transient}, reply: "Recovered."}
	p := NewResponsePipeline(fastPipelineConfig(), NewTranscript(), gen, newUnitSynth(1), sink, sink, sink)

	reason := p.Run(liveToken(t), Utterance{ID: "u1", Speaker: SpeakerUser, Text: "hi"}, nil)
	if reason != TurnReasonCompleted {
		t.Fatalf("reason = %q, want completed", reason)
	}
	if gen.callCount() != 3 {
		t.Fatalf("generator calls = %d, want 3", gen.callCount())
	}
	if sink.agentText[0] != "Recovered." {
		t.Fatalf("agentText = %v", sink.agentText)
	}
}

func TestPipelineFallsBackAfterRetryBudget(t *testing.T) {
	sink := &collectSink{}
	transient := &reliability.ProviderError{Provider: "llm", Code: "http_503", Class: reliability.ClassTransient, Err: errors.New("overloaded")}
	gen := &scriptedGenerator{errs: []error{transient, transient, transient}}
	p := NewResponsePipeline(fastPipelineConfig(), NewTranscript(), gen, newUnitSynth(1), sink, sink, sink)

	reason := p.Run(liveToken(t), Utterance{ID: "u1", Speaker: SpeakerUser, Text: "hi"}, nil)
	if reason != TurnReasonCompleted {
		t.Fatalf("reason = %q, want completed fallback turn", reason)
	}
	if gen.callCount() != 3 {
		t.Fatalf("generator calls = %d, want 3", gen.callCount())
	}
	if len(sink.agentText) != 1 || sink.agentText[0] != DefaultFallbackReply {
		t.Fatalf("agentText = %v, want fallback reply", sink.agentText)
	}
	if sink.chunkCount() == 0 {
		t.Fatalf("fallback reply was not spoken")
	}
}

func TestPipelineQuotaExhaustedSkipsRetries(t *testing.T) {
	sink := &collectSink{}
	quota := &reliability.ProviderError{Provider: "llm", Code: "http_429", Class: reliability.ClassQuotaExhausted, Err: errors.New("quota")}
	gen := &scriptedGenerator{errs: []error{quota, quota, quota}}
	p := NewResponsePipeline(fastPipelineConfig(), NewTranscript(), gen, newUnitSynth(1), sink, sink, sink)

	reason := p.Run(liveToken(t), Utterance{ID: "u1", Speaker: SpeakerUser, Text: "hi"}, nil)
	if reason != TurnReasonCompleted {
		t.Fatalf("reason = %q, want completed fallback turn", reason)
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator calls = %d, want 1 (no retries on quota)", gen.callCount())
	}
	if sink.agentText[0] != DefaultFallbackReply {
		t.Fatalf("agentText = %v, want fallback reply", sink.agentText)
	}
	found := false
	for _, f := range sink.failures {
		if f == "generator/quota_exhausted" {
			found = true
		}
	}
	if !found {
		t.Fatalf("quota failure not reported: %v", sink.failures)
	}
}

func TestPipelineSynthFailureSubstitutesSilence(t *testing.T) {
	sink := &collectSink{}
	gen := &scriptedGenerator{reply: "First. Second."}
	synth := newUnitSynth(1)
	synth.failOnUnit = 0
	p := NewResponsePipeline(fastPipelineConfig(), NewTranscript(), gen, synth, sink, sink, sink)

	reason := p.Run(liveToken(t), Utterance{ID: "u1", Speaker: SpeakerUser, Text: "hi"}, nil)
	if reason != TurnReasonCompleted {
		t.Fatalf("reason = %q, want completed", reason)
	}
	if len(sink.chunks) != 2 {
		t.Fatalf("chunks = %d, want silence then second sentence", len(sink.chunks))
	}
	// 200ms of 16 kHz PCM16 silence.
	if len(sink.chunks[0].pcm) != 16000/5*2 {
		t.Fatalf("silence chunk size = %d", len(sink.chunks[0].pcm))
	}
	if string(sink.chunks[1].pcm) != "Second.#0" {
		t.Fatalf("second chunk = %q", sink.chunks[1].pcm)
	}
	found := false
	for _, f := range sink.failures {
		if f == "synthesizer/synthesize_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("synth failure not reported: %v", sink.failures)
	}
}

func TestPipelineInvalidatedTokenIsSilent(t *testing.T) {
	sink := &collectSink{}
	gen := &scriptedGenerator{reply: "Never spoken."}
	p := NewResponsePipeline(fastPipelineConfig(), NewTranscript(), gen, newUnitSynth(1), sink, sink, sink)

	token := newResponseToken(context.Background(), "turn-1")
	token.Invalidate()

	reason := p.Run(token, Utterance{ID: "u1", Speaker: SpeakerUser, Text: "hi"}, nil)
	if reason != TurnReasonInterrupted {
		t.Fatalf("reason = %q, want interrupted", reason)
	}
	if len(sink.agentText) != 0 || sink.chunkCount() != 0 {
		t.Fatalf("interrupted run still emitted output: text=%v chunks=%d", sink.agentText, sink.chunkCount())
	}
	// Interruption is not an error condition.
	if len(sink.failures) != 0 {
		t.Fatalf("interruption reported failures: %v", sink.failures)
	}
}

func TestPipelineWriteErrorFailsTurn(t *testing.T) {
	sink := &collectSink{writeErr: errors.New("peer gone")}
	gen := &scriptedGenerator{reply: "Hello."}
	p := NewResponsePipeline(fastPipelineConfig(), NewTranscript(), gen, newUnitSynth(1), sink, sink, sink)

	reason := p.Run(liveToken(t), Utterance{ID: "u1", Speaker: SpeakerUser, Text: "hi"}, nil)
	if reason != TurnReasonFailed {
		t.Fatalf("reason = %q, want failed", reason)
	}
}

func TestPipelineHistoryWindowBounded(t *testing.T) {
	transcript := NewTranscript()
	for i := 0; i < 30; i++ {
		transcript.Append(Utterance{ID: fmt.Sprintf("old-%d", i), Speaker: SpeakerUser, Text: "old"})
	}
	user := Utterance{ID: "current", Speaker: SpeakerUser, Text: "now"}
	transcript.Append(user)

	p := NewResponsePipeline(fastPipelineConfig(), transcript, &scriptedGenerator{reply: "ok"}, newUnitSynth(1), &collectSink{}, &collectSink{}, nil)
	history := p.historyBefore(user)
	if len(history) != DefaultHistoryWindow {
		t.Fatalf("history = %d, want %d", len(history), DefaultHistoryWindow)
	}
	for _, u := range history {
		if u.ID == "current" {
			t.Fatalf("history includes the utterance being answered")
		}
	}
}
