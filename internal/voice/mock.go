package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akvinayaktiwari/veezy/internal/audio"
)

// MockRecognizerProvider is a local fallback used when no real speech
// recognizer is configured. Each recognizer emits a rolling partial while
// speech windows arrive and commits a simulated phrase every commitEvery
// windows.
type MockRecognizerProvider struct {
	commitEvery int
}

func NewMockRecognizerProvider() *MockRecognizerProvider {
	return &MockRecognizerProvider{commitEvery: 25}
}

func (p *MockRecognizerProvider) NewRecognizer(_ context.Context, _ string) (Recognizer, error) {
	return &mockRecognizer{commitEvery: p.commitEvery}, nil
}

type mockRecognizer struct {
	mu          sync.Mutex
	commitEvery int
	windows     int
	commits     int
}

func (r *mockRecognizer) ProcessWindow(_ context.Context, window []int16) ([]Fragment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(window) == 0 {
		return nil, nil
	}
	r.windows++
	now := time.Now()
	if r.windows%r.commitEvery == 0 {
		r.commits++
		return []Fragment{{
			Text:       fmt.Sprintf("simulated voice input %d", r.commits),
			Final:      true,
			ReceivedAt: now,
		}}, nil
	}
	return []Fragment{{
		Text:       strings.Repeat(".", 1+r.windows%3),
		Final:      false,
		ReceivedAt: now,
	}}, nil
}

func (r *mockRecognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = 0
	r.commits = 0
}

// MockGenerator echoes the user's words back. Local fallback for running
// without a language model endpoint.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (g *MockGenerator) Generate(_ context.Context, userText string, _ []Utterance) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "I didn't catch that.", nil
	}
	return fmt.Sprintf("You said: %s. Anything else?", userText), nil
}

// MockSynthesizer renders every sentence as a fixed stretch of silence. The
// audio is worthless but the chunking and timing behave like a real engine.
type MockSynthesizer struct {
	sampleRate int
	unitMS     int
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{sampleRate: 16000, unitMS: 120}
}

func (s *MockSynthesizer) Synthesize(ctx context.Context, text string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	// Roughly one chunk per ten characters, so longer sentences stream in
	// more pieces.
	n := len(text)/10 + 1
	chunks := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, audio.SilencePCM16(s.sampleRate, s.unitMS))
	}
	return chunks, nil
}

func (s *MockSynthesizer) SampleRate() int { return s.sampleRate }
