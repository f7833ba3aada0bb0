package models

import (
	"fmt"
	"time"
)

// Window is an inclusive date range. Every summary is scoped to exactly
// one window; summaries for different windows are never merged.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a validated window.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window bounds must be set")
	}
	if w.Start.After(w.End) {
		return fmt.Errorf("window start %s is after end %s",
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether ts falls inside the window. Bounds are
// inclusive on both ends.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// Equal reports whether two windows cover the same instants.
func (w Window) Equal(other Window) bool {
	return w.Start.Equal(other.Start) && w.End.Equal(other.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s",
		w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// Timestamped is anything carrying a creation or authoring time.
type Timestamped interface {
	Timestamp() time.Time
}

// FilterInWindow narrows a timestamped collection to the window. Pure and
// total: it is applied both at fetch boundaries and again on cached data,
// and the two applications must agree for the same window.
func FilterInWindow[T Timestamped](w Window, items []T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if w.Contains(item.Timestamp()) {
			out = append(out, item)
		}
	}
	return out
}

// CountInWindow counts the items falling inside the window.
func CountInWindow[T Timestamped](w Window, items []T) int {
	n := 0
	for _, item := range items {
		if w.Contains(item.Timestamp()) {
			n++
		}
	}
	return n
}
