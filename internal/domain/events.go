package domain

// EventKind is the closed set of updates the controller publishes.
type EventKind string

const (
	EventPartialTranscript EventKind = "partial_transcript"
	EventFinalTranscript   EventKind = "final_transcript"
	EventAnswerToken       EventKind = "answer_token"
	EventAnswerDone        EventKind = "answer_done"
	EventStatusChanged     EventKind = "status_changed"
	EventError             EventKind = "error"
)

// Event is a single ordered update for the display layer.
//
// Text carries the full transcript (confirmed plus partial) for transcript
// events and the full accumulated answer for answer events, never a delta.
//
// CanRegenerate is set on status events and reflects the controller at the
// moment the status was published.
type Event struct {
	Kind          EventKind          `json:"kind"`
	Text          string             `json:"text,omitempty"`
	State         SessionState       `json:"state,omitempty"`
	Reason        SessionStateReason `json:"reason,omitempty"`
	Code          ErrorCode          `json:"code,omitempty"`
	CanRegenerate bool               `json:"canRegenerate,omitempty"`
}

func PartialTranscript(text string) Event {
	return Event{Kind: EventPartialTranscript, Text: text}
}

func FinalTranscript(text string) Event {
	return Event{Kind: EventFinalTranscript, Text: text}
}

func AnswerToken(text string) Event {
	return Event{Kind: EventAnswerToken, Text: text}
}

func AnswerDone(text string) Event {
	return Event{Kind: EventAnswerDone, Text: text}
}

func StatusChanged(state SessionState, reason SessionStateReason) Event {
	return Event{Kind: EventStatusChanged, State: state, Reason: reason}
}

func ErrorNotice(code ErrorCode, detail string) Event {
	return Event{Kind: EventError, Code: code, Text: detail}
}
