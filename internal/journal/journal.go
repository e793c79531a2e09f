package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var rule = strings.Repeat("=", 60)

// Journal appends numbered question/answer blocks to one text file per
// application run.
type Journal struct {
	mu    sync.Mutex
	path  string
	count int
	now   func() time.Time
}

// Open prepares a journal in dir named after the current minute. The file
// itself is created on the first Append.
func Open(dir string) (*Journal, error) {
	return open(dir, time.Now)
}

func open(dir string, now func() time.Time) (*Journal, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("session directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory %q: %w", dir, err)
	}
	name := now().Format("2006-01-02_15-04") + ".txt"
	return &Journal{path: filepath.Join(dir, name), now: now}, nil
}

// Path returns the file this journal writes to.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) Append(question string, answer string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "#%d  %s\n", j.count+1, j.now().Format("15:04:05"))
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "FRAGE:\n%s\n\n", question)
	fmt.Fprintf(&b, "ANTWORT:\n%s\n", answer)

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open session log: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write session log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}

	j.count++
	return nil
}
