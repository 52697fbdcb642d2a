// Package llm talks to an HTTP text-generation endpoint. Any service that
// accepts a JSON prompt-plus-history payload and returns a JSON object with a
// text-like field will do.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akvinayaktiwari/veezy/internal/reliability"
	"github.com/akvinayaktiwari/veezy/internal/voice"
)

type generateRequest struct {
	Prompt  string        `json:"prompt"`
	History []historyTurn `json:"history,omitempty"`
}

type historyTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// HTTPGenerator implements voice.Generator against a remote endpoint.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, userText string, history []voice.Utterance) (string, error) {
	req := generateRequest{Prompt: userText}
	for _, u := range history {
		req.History = append(req.History, historyTurn{Speaker: string(u.Speaker), Text: u.Text})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &reliability.ProviderError{
			Provider: "llm",
			Code:     "request_failed",
			Class:    reliability.ClassTransient,
			Err:      err,
		}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &reliability.ProviderError{
			Provider: "llm",
			Code:     fmt.Sprintf("http_%d", res.StatusCode),
			Class:    reliability.ClassForHTTPStatus(res.StatusCode),
			Err:      fmt.Errorf("llm http status %d: %s", res.StatusCode, string(body)),
		}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &reliability.ProviderError{
			Provider: "llm",
			Code:     "read_response",
			Class:    reliability.ClassTransient,
			Err:      err,
		}
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		// Plain-text endpoints are tolerated.
		return strings.TrimSpace(string(body)), nil
	}
	return extractText(obj), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "reply", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
