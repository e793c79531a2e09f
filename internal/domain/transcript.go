package domain

import "strings"

// Transcript accumulates confirmed speech segments plus one pending partial.
// Confirmed segments are never rewritten once finalized.
type Transcript struct {
	confirmed []string
	partial   string
}

// SetPartial replaces the pending segment.
func (t *Transcript) SetPartial(text string) {
	t.partial = strings.TrimSpace(text)
}

// Finalize appends a confirmed segment and discards the pending one.
func (t *Transcript) Finalize(text string) {
	t.partial = ""
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	t.confirmed = append(t.confirmed, text)
}

// Confirmed returns the finalized segments space-joined.
func (t *Transcript) Confirmed() string {
	return strings.TrimSpace(strings.Join(t.confirmed, " "))
}

// Display returns the confirmed text followed by the pending partial.
func (t *Transcript) Display() string {
	confirmed := t.Confirmed()
	if t.partial == "" {
		return confirmed
	}
	if confirmed == "" {
		return t.partial
	}
	return confirmed + " " + t.partial
}

// Segments returns the number of confirmed segments.
func (t *Transcript) Segments() int {
	return len(t.confirmed)
}

func (t *Transcript) Reset() {
	t.confirmed = nil
	t.partial = ""
}

// Answer accumulates streamed answer text for one generation.
type Answer struct {
	Text  string
	Final bool
}

func (a *Answer) Reset() {
	a.Text = ""
	a.Final = false
}
