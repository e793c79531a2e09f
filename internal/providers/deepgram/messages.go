package deepgram

import (
	"encoding/json"
	"errors"
	"strings"

	"stupidisco/internal/domain"
)

const (
	messageResults = "Results"
	messageError   = "Error"
)

var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

// liveMessage covers the fields read from /listen server messages.
// Metadata, SpeechStarted and UtteranceEnd carry no transcript and are skipped.
type liveMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Description string `json:"description"`
	Message     string `json:"message"`
}

func decodeMessage(payload []byte) (liveMessage, error) {
	var msg liveMessage
	err := json.Unmarshal(payload, &msg)
	return msg, err
}

func (m liveMessage) isError() bool {
	return strings.EqualFold(m.Type, messageError)
}

func (m liveMessage) failure() error {
	for _, text := range []string{m.Description, m.Message} {
		if text = strings.TrimSpace(text); text != "" {
			return errors.New(text)
		}
	}
	return errors.New("deepgram returned an unknown error")
}

// transcript converts a Results message. ok is false when there is no text.
func (m liveMessage) transcript() (domain.TranscriptEvent, bool) {
	if m.Type != "" && m.Type != messageResults {
		return domain.TranscriptEvent{}, false
	}
	if len(m.Channel.Alternatives) == 0 {
		return domain.TranscriptEvent{}, false
	}
	text := strings.TrimSpace(m.Channel.Alternatives[0].Transcript)
	if text == "" {
		return domain.TranscriptEvent{}, false
	}

	kind := domain.TranscriptKindPartial
	if m.IsFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{Kind: kind, Text: text}, true
}
