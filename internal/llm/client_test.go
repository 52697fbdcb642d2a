package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akvinayaktiwari/veezy/internal/reliability"
	"github.com/akvinayaktiwari/veezy/internal/voice"
)

func TestGenerateSendsHistoryAndParsesReply(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  hello back  "}`))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL)
	reply, err := g.Generate(context.Background(), "hi", []voice.Utterance{
		{Speaker: voice.SpeakerUser, Text: "earlier"},
		{Speaker: voice.SpeakerAgent, Text: "reply"},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply != "hello back" {
		t.Fatalf("reply = %q", reply)
	}
	if got.Prompt != "hi" || len(got.History) != 2 || got.History[1].Speaker != "agent" {
		t.Fatalf("request payload = %+v", got)
	}
}

func TestGeneratePlainTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("just words"))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL)
	reply, err := g.Generate(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply != "just words" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestGenerateClassifiesQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL)
	_, err := g.Generate(context.Background(), "hi", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !reliability.IsQuotaExhausted(err) {
		t.Fatalf("429 not classified as quota exhausted: %v", err)
	}
}

func TestGenerateClassifiesServerErrorTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL)
	_, err := g.Generate(context.Background(), "hi", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if reliability.Classify(err) != reliability.ClassTransient {
		t.Fatalf("503 classified as %q, want transient", reliability.Classify(err))
	}
}

func TestGenerateClassifiesClientErrorTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL)
	_, err := g.Generate(context.Background(), "hi", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if reliability.Classify(err) != reliability.ClassTerminal {
		t.Fatalf("400 classified as %q, want terminal", reliability.Classify(err))
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"late"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewHTTPGenerator(srv.URL)
	if _, err := g.Generate(ctx, "hi", nil); err != context.Canceled {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
