package domain

// SessionState models the record/answer lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStateThinking  SessionState = "thinking"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady               SessionStateReason = "ready"
	SessionReasonRecordingStarted    SessionStateReason = "recording_started"
	SessionReasonTranscribing        SessionStateReason = "transcribing"
	SessionReasonGenerating          SessionStateReason = "generating"
	SessionReasonRegenerating        SessionStateReason = "regenerating"
	SessionReasonAnswerReady         SessionStateReason = "answer_ready"
	SessionReasonNoSpeech            SessionStateReason = "no_speech"
	SessionReasonRecordingDiscarded  SessionStateReason = "recording_discarded"
	SessionReasonCaptureFailed       SessionStateReason = "capture_failed"
	SessionReasonTranscriptionFailed SessionStateReason = "transcription_failed"
	SessionReasonGenerationFailed    SessionStateReason = "generation_failed"
)

// ErrorCode identifies the source of a non-fatal error notice.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioCapture  ErrorCode = "audio_capture"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeGeneration    ErrorCode = "generation"
	ErrorCodeClipboard     ErrorCode = "clipboard"
	ErrorCodeSessionLog    ErrorCode = "session_log"
)

// TranscriptKind identifies whether a provider event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is one result from the speech-to-text provider.
type TranscriptEvent struct {
	Kind TranscriptKind `json:"kind"`
	Text string         `json:"text"`
}

// AnswerUpdate is one step of a streaming answer. Text always holds the
// whole answer received so far.
type AnswerUpdate struct {
	Text string
	Done bool
	Err  error
}

// Status summarizes the current runtime status.
type Status struct {
	State         SessionState `json:"state"`
	Active        bool         `json:"active"`
	Message       string       `json:"message,omitempty"`
	Transcript    string       `json:"transcript"`
	Answer        string       `json:"answer"`
	AnswerFinal   bool         `json:"answerFinal"`
	CanRegenerate bool         `json:"canRegenerate"`
}

// InputDevice describes a capture-capable audio device.
type InputDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}
