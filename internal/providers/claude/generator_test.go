package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stupidisco/internal/domain"
)

func TestNewGeneratorDefaults(t *testing.T) {
	t.Parallel()

	g := NewGenerator(Config{APIKey: "k", MaxRetries: -1})
	if g.cfg.Model != "claude-sonnet-4-5-20250929" {
		t.Fatalf("unexpected model: %q", g.cfg.Model)
	}
	if g.cfg.MaxTokens != 600 {
		t.Fatalf("unexpected max tokens: %d", g.cfg.MaxTokens)
	}
	if g.cfg.SystemPrompt != DefaultSystemPrompt {
		t.Fatalf("expected default system prompt")
	}
	if g.cfg.MaxRetries != 0 {
		t.Fatalf("expected retries clamped to zero, got %d", g.cfg.MaxRetries)
	}
}

func TestGenerateRequiresAPIKeyAndTranscript(t *testing.T) {
	t.Parallel()

	if _, err := NewGenerator(Config{}).Generate(context.Background(), "frage"); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewGenerator(Config{APIKey: "k"}).Generate(context.Background(), "  "); err == nil {
		t.Fatalf("expected empty transcript error")
	}
}

func TestGenerateStreamsAccumulatedText(t *testing.T) {
	t.Parallel()

	server := newFakeMessagesAPI(t, http.StatusOK, sseBody("Ein ", "Deadlock ", "ist eine Blockade."))
	g := NewGenerator(Config{APIKey: "test-key", BaseURL: server.URL, Model: "claude-test"})

	updates := collect(t, g, "Was ist ein Deadlock?")
	want := []string{"Ein ", "Ein Deadlock ", "Ein Deadlock ist eine Blockade."}
	if len(updates) != len(want)+1 {
		t.Fatalf("unexpected updates: %+v", updates)
	}
	for i, text := range want {
		if updates[i].Text != text || updates[i].Done || updates[i].Err != nil {
			t.Fatalf("update %d: got %+v want text %q", i, updates[i], text)
		}
	}
	last := updates[len(updates)-1]
	if !last.Done || last.Text != want[len(want)-1] {
		t.Fatalf("expected terminal done update, got %+v", last)
	}

	req := server.snapshot()
	if req.apiKey != "test-key" {
		t.Fatalf("unexpected api key header: %q", req.apiKey)
	}
	if req.body.Model != "claude-test" || req.body.MaxTokens != 600 || !req.body.Stream {
		t.Fatalf("unexpected request body: %+v", req.body)
	}
	if len(req.body.System) != 1 || req.body.System[0].Text != DefaultSystemPrompt {
		t.Fatalf("expected system prompt in request")
	}
	if len(req.body.Messages) != 1 || req.body.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", req.body.Messages)
	}
	if content := req.body.Messages[0].Content; len(content) != 1 || content[0].Text != "Was ist ein Deadlock?" {
		t.Fatalf("unexpected message content: %+v", content)
	}
}

func TestGenerateReportsAuthenticationFailure(t *testing.T) {
	t.Parallel()

	body := `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`
	server := newFakeMessagesAPI(t, http.StatusUnauthorized, body)
	g := NewGenerator(Config{APIKey: "bad", BaseURL: server.URL})

	updates := collect(t, g, "frage")
	if len(updates) != 1 {
		t.Fatalf("expected a single error update, got %+v", updates)
	}
	if updates[0].Err == nil || !strings.Contains(updates[0].Err.Error(), "authentication failed") {
		t.Fatalf("expected authentication error, got %v", updates[0].Err)
	}
}

func TestGenerateReportsOverload(t *testing.T) {
	t.Parallel()

	body := `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`
	server := newFakeMessagesAPI(t, 529, body)
	g := NewGenerator(Config{APIKey: "k", BaseURL: server.URL})

	updates := collect(t, g, "frage")
	if len(updates) != 1 || updates[0].Err == nil || !strings.Contains(updates[0].Err.Error(), "unavailable") {
		t.Fatalf("expected service unavailable error, got %+v", updates)
	}
}

func TestGenerateReportsAuthenticationFailureMidStream(t *testing.T) {
	t.Parallel()

	body := sseHeader() +
		sseDelta("Ein ") +
		sseDelta("Deadlock ") +
		"event: error\n" +
		`data: {"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}` + "\n\n"
	server := newFakeMessagesAPI(t, http.StatusOK, body)
	g := NewGenerator(Config{APIKey: "k", BaseURL: server.URL})

	updates := collect(t, g, "frage")
	if len(updates) != 3 {
		t.Fatalf("expected two deltas and an error, got %+v", updates)
	}
	if updates[0].Text != "Ein " || updates[1].Text != "Ein Deadlock " {
		t.Fatalf("unexpected partial answers: %+v", updates[:2])
	}

	last := updates[2]
	if last.Err == nil || last.Done {
		t.Fatalf("expected a terminal error, got %+v", last)
	}
	if last.Text != "Ein Deadlock " {
		t.Fatalf("expected partial answer to be kept, got %q", last.Text)
	}
	msg := last.Err.Error()
	if !strings.Contains(msg, "authentication failed") || !strings.Contains(msg, "invalid x-api-key") {
		t.Fatalf("expected classified authentication message, got %q", msg)
	}
	if strings.Contains(msg, `{"type"`) {
		t.Fatalf("expected no raw payload in message, got %q", msg)
	}
}

func TestDescribeStreamedErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"rate_limit_error":      "rate limited",
		"overloaded_error":      "unavailable",
		"api_error":             "unavailable",
		"permission_error":      "authentication failed",
		"invalid_request_error": "rejected",
	}
	for kind, want := range cases {
		raw := fmt.Errorf(`received error while streaming: {"type":"error","error":{"type":%q,"message":"details"}}`, kind)
		if got := describeError(raw).Error(); !strings.Contains(got, want) || !strings.Contains(got, "details") {
			t.Fatalf("%s: unexpected message %q", kind, got)
		}
	}

	if got := describeError(errors.New("connection reset")).Error(); !strings.Contains(got, "answer request failed") {
		t.Fatalf("unexpected network message %q", got)
	}
}

func collect(t *testing.T, g *Generator, transcript string) []domain.AnswerUpdate {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := g.Generate(ctx, transcript)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	var out []domain.AnswerUpdate
	for update := range stream.Updates() {
		out = append(out, update)
	}
	return out
}

func sseBody(chunks ...string) string {
	var b strings.Builder
	b.WriteString(sseHeader())
	for _, chunk := range chunks {
		b.WriteString(sseDelta(chunk))
	}
	b.WriteString("event: content_block_stop\n")
	b.WriteString(`data: {"type":"content_block_stop","index":0}` + "\n\n")
	b.WriteString("event: message_delta\n")
	b.WriteString(`data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":12}}` + "\n\n")
	b.WriteString("event: message_stop\n")
	b.WriteString(`data: {"type":"message_stop"}` + "\n\n")
	return b.String()
}

func sseHeader() string {
	return "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-test","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}` + "\n\n" +
		"event: content_block_start\n" +
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n"
}

func sseDelta(chunk string) string {
	text, _ := json.Marshal(chunk)
	return "event: content_block_delta\n" +
		fmt.Sprintf(`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%s}}`, text) + "\n\n"
}

type recordedRequest struct {
	apiKey string
	body   struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Stream    bool   `json:"stream"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
}

type fakeMessagesAPI struct {
	*httptest.Server

	mu  sync.Mutex
	req recordedRequest
}

func (f *fakeMessagesAPI) snapshot() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.req
}

func newFakeMessagesAPI(t *testing.T, status int, body string) *fakeMessagesAPI {
	t.Helper()

	fake := &fakeMessagesAPI{}
	fake.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		fake.mu.Lock()
		fake.req.apiKey = r.Header.Get("X-Api-Key")
		_ = json.Unmarshal(raw, &fake.req.body)
		fake.mu.Unlock()

		if status == http.StatusOK {
			w.Header().Set("Content-Type", "text/event-stream")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(fake.Server.Close)
	return fake
}
