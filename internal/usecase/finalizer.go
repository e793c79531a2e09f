package usecase

import (
	"github.com/rs/zerolog"

	"stupidisco/internal/ports"
)

// answerFinalizer prepares prompts and records completed answers.
type answerFinalizer struct {
	rewriter   ports.TranscriptRewriter
	sessionLog ports.SessionLog
	log        zerolog.Logger
}

func newAnswerFinalizer(rewriter ports.TranscriptRewriter, sessionLog ports.SessionLog, log zerolog.Logger) answerFinalizer {
	return answerFinalizer{rewriter: rewriter, sessionLog: sessionLog, log: log}
}

// Prompt returns the text sent to the generator. Rewrite failures fall back
// to the transcript unchanged.
func (f answerFinalizer) Prompt(question string) string {
	if f.rewriter == nil {
		return question
	}
	rewritten, err := f.rewriter.Apply(question)
	if err != nil {
		f.log.Warn().Err(err).Msg("glossary rewrite failed, using raw transcript")
		return question
	}
	return rewritten
}

// Record appends a completed question/answer pair to the session log.
func (f answerFinalizer) Record(question string, answer string) error {
	if f.sessionLog == nil || question == "" || answer == "" {
		return nil
	}
	return f.sessionLog.Append(question, answer)
}
