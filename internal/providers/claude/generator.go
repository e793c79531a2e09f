package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"stupidisco/internal/domain"
	"stupidisco/internal/logging"
	"stupidisco/internal/ports"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 600
)

// DefaultSystemPrompt frames answers as a senior developer in a German-language interview.
const DefaultSystemPrompt = "Du bist ein erfahrener Senior-Entwickler (15+ Jahre) in einem " +
	"Vorstellungsgespräch. Du erhältst ein Live-Transkript einer " +
	"gesprochenen Frage. Das Transkript kann Fragmente, Wiederholungen, " +
	"Echo, Versprecher oder fehlende Wörter enthalten.\n\n" +
	"SCHRITT 1: FRAGE VERSTEHEN (intern, nicht ausgeben)\n" +
	"Lies das Transkript sehr genau. Rekonstruiere die tatsächlich " +
	"gemeinte Frage. Berücksichtige Kontext, Fachbegriffe und was in " +
	"einem Interview typischerweise gefragt wird. Bei Mehrdeutigkeit: " +
	"wähle die wahrscheinlichste Interpretation.\n\n" +
	"SCHRITT 2: ANTWORT (das ist dein Output)\n" +
	"Beantworte exakt die erkannte Frage. Nicht ein verwandtes Thema, " +
	"nicht eine allgemeine Übersicht, sondern präzise das, was gefragt wurde.\n\n" +
	"FORMAT:\n" +
	"Kernaussage in einem Satz.\n" +
	"• Detail, Trade-off oder Praxisbeispiel (max. 1 Satz)\n" +
	"• Weitere Details (max. 4-5 Stichpunkte insgesamt)\n\n" +
	"REGELN:\n" +
	"- Deutsch, fachlich korrekt, auf den Punkt\n" +
	"- Antworte IMMER, auch bei schlechtem Transkript\n" +
	"- Keine Vorrede, keine Meta-Kommentare, kein Markdown\n" +
	"- Zeige Tiefenwissen: Trade-offs, Best Practices, konkrete Erfahrung\n" +
	"- Wenn die Frage nicht technisch ist (Soft Skills, Gehalt, " +
	"Motivation), antworte trotzdem souverän und überzeugend"

// Config controls the Messages API request.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int64
	SystemPrompt string
	MaxRetries   int
}

// Generator implements ports.AnswerGenerator on the Anthropic Messages API.
type Generator struct {
	client anthropic.Client
	cfg    Config
	log    zerolog.Logger
}

func NewGenerator(cfg Config) *Generator {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Generator{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		log:    logging.For("claude"),
	}
}

// Generate starts one streaming request. Every update carries the full
// answer accumulated so far.
func (g *Generator) Generate(ctx context.Context, transcript string) (ports.AnswerStream, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not configured")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.New("transcript is empty")
	}

	stream := &answerStream{updates: make(chan domain.AnswerUpdate, 16)}
	go g.run(ctx, transcript, stream.updates)
	return stream, nil
}

func (g *Generator) run(ctx context.Context, transcript string, updates chan<- domain.AnswerUpdate) {
	defer close(updates)

	send := func(update domain.AnswerUpdate) bool {
		select {
		case updates <- update:
			return true
		case <-ctx.Done():
			return false
		}
	}

	g.log.Debug().Str("model", g.cfg.Model).Int("chars", len(transcript)).Msg("requesting answer")
	stream := g.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.cfg.Model),
		MaxTokens: g.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: g.cfg.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript)),
		},
	})
	defer stream.Close()

	var answer strings.Builder
	for stream.Next() {
		event := stream.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
		if !ok || text.Text == "" {
			continue
		}
		answer.WriteString(text.Text)
		if !send(domain.AnswerUpdate{Text: answer.String()}) {
			return
		}
	}

	if err := stream.Err(); err != nil {
		send(domain.AnswerUpdate{Text: answer.String(), Err: describeError(err)})
		return
	}
	send(domain.AnswerUpdate{Text: answer.String(), Done: true})
}

type answerStream struct {
	updates chan domain.AnswerUpdate
}

func (s *answerStream) Updates() <-chan domain.AnswerUpdate {
	return s.updates
}

// describeError turns API failures into short user-facing messages.
func describeError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("answer cancelled: %w", err)
		}
		if kind, message, ok := streamedError(err); ok {
			return describeStreamedError(kind, message)
		}
		return fmt.Errorf("answer request failed: %w", err)
	}

	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("authentication failed, check ANTHROPIC_API_KEY: %w", err)
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("rate limited, try again shortly: %w", err)
	case apiErr.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("answer service unavailable (HTTP %d): %w", apiErr.StatusCode, err)
	default:
		return fmt.Errorf("answer request rejected (HTTP %d): %w", apiErr.StatusCode, err)
	}
}

// streamedError extracts the error object of an SSE error event. Once the
// response has started the SDK reports those as plain errors carrying the
// raw event payload.
func streamedError(err error) (kind string, message string, ok bool) {
	text := err.Error()
	start := strings.Index(text, "{")
	if start < 0 {
		return "", "", false
	}

	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(text[start:]), &payload) != nil || payload.Error.Type == "" {
		return "", "", false
	}
	return payload.Error.Type, strings.TrimSpace(payload.Error.Message), true
}

func describeStreamedError(kind string, message string) error {
	if message == "" {
		message = kind
	}
	switch kind {
	case "authentication_error", "permission_error":
		return fmt.Errorf("authentication failed, check ANTHROPIC_API_KEY: %s", message)
	case "rate_limit_error":
		return fmt.Errorf("rate limited, try again shortly: %s", message)
	case "overloaded_error", "api_error":
		return fmt.Errorf("answer service unavailable: %s", message)
	default:
		return fmt.Errorf("answer request rejected: %s", message)
	}
}
