package usecase

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestAnswerFinalizerPromptFallsBackOnRewriteFailure(t *testing.T) {
	t.Parallel()

	f := newAnswerFinalizer(fakeRewriter{err: errors.New("bad pattern")}, nil, zerolog.Nop())
	if got := f.Prompt("raw question"); got != "raw question" {
		t.Fatalf("expected raw transcript, got %q", got)
	}
}

func TestAnswerFinalizerPromptRewrites(t *testing.T) {
	t.Parallel()

	f := newAnswerFinalizer(fakeRewriter{from: "go lang", to: "Go"}, nil, zerolog.Nop())
	if got := f.Prompt("was ist go lang"); got != "was ist Go" {
		t.Fatalf("unexpected prompt: %q", got)
	}
}

func TestAnswerFinalizerRecordSkipsEmpty(t *testing.T) {
	t.Parallel()

	sessionLog := &fakeSessionLog{}
	f := newAnswerFinalizer(nil, sessionLog, zerolog.Nop())

	if err := f.Record("", "answer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Record("question", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessionLog.snapshot()) != 0 {
		t.Fatalf("empty pairs must not be logged")
	}
}

func TestAnswerFinalizerRecordPropagatesError(t *testing.T) {
	t.Parallel()

	sessionLog := &fakeSessionLog{err: errors.New("disk full")}
	f := newAnswerFinalizer(nil, sessionLog, zerolog.Nop())

	if err := f.Record("q", "a"); err == nil {
		t.Fatalf("expected session log error")
	}
	if nilLog := newAnswerFinalizer(nil, nil, zerolog.Nop()); nilLog.Record("q", "a") != nil {
		t.Fatalf("nil session log should be a no-op")
	}
}
