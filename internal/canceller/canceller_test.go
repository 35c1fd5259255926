package canceller

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

// fakeMutator records calls and fails on demand.
type fakeMutator struct {
	annotateErr error
	removeErr   error

	annotations []string
	removals    []string
}

func (m *fakeMutator) Annotate(_ context.Context, eventID, description string) error {
	if m.annotateErr != nil {
		return m.annotateErr
	}
	m.annotations = append(m.annotations, description)
	return nil
}

func (m *fakeMutator) Remove(_ context.Context, eventID string) error {
	m.removals = append(m.removals, eventID)
	return m.removeErr
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// ==================== AnnotateIfNeeded Tests ====================

func TestAnnotateIfNeeded(t *testing.T) {
	tests := []struct {
		name    string
		desc    string
		want    string
		changed bool
	}{
		{"empty description", "", DefaultNote, true},
		{"existing description", "Weekly sync", DefaultNote + "\n\nWeekly sync", true},
		{"already annotated", DefaultNote + "\n\nWeekly sync", DefaultNote + "\n\nWeekly sync", false},
		{"note alone", DefaultNote, DefaultNote, false},
		{"note later in text", "Weekly sync\n" + DefaultNote, DefaultNote + "\n\nWeekly sync\n" + DefaultNote, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := AnnotateIfNeeded(tc.desc, DefaultNote)
			if got != tc.want {
				t.Errorf("AnnotateIfNeeded(%q) = %q, want %q", tc.desc, got, tc.want)
			}
			if changed != tc.changed {
				t.Errorf("changed = %v, want %v", changed, tc.changed)
			}
		})
	}
}

func TestAnnotateIfNeededIsIdempotent(t *testing.T) {
	notes := []string{DefaultNote, DefaultNote + "\n", "  " + DefaultNote + " \n"}
	for _, note := range notes {
		for _, d := range []string{"", " ", "Agenda doc attached", "\n\nlines\n", DefaultNote, "Meeting canceled"} {
			once, _ := AnnotateIfNeeded(d, note)
			twice, changed := AnnotateIfNeeded(once, note)
			if twice != once {
				t.Errorf("note %q, desc %q: second annotation changed %q to %q", note, d, once, twice)
			}
			if changed {
				t.Errorf("note %q, desc %q: second annotation reported a change", note, d)
			}
		}
	}
}

func TestCancelTwiceWithPaddedNotePatchesOnce(t *testing.T) {
	m := &fakeMutator{}
	c := New(m, nil)
	note := DefaultNote + "\n"
	ev := types.Event{ID: "evt001", Summary: "Meeting"}

	if err := c.Cancel(context.Background(), ev, note); err != nil {
		t.Fatalf("first Cancel() failed: %v", err)
	}
	ev.Description = m.annotations[0]
	if err := c.Cancel(context.Background(), ev, note); err != nil {
		t.Fatalf("second Cancel() failed: %v", err)
	}
	if len(m.annotations) != 1 || m.annotations[0] != DefaultNote {
		t.Errorf("annotations = %q, want a single %q", m.annotations, DefaultNote)
	}
}

// ==================== Cancel Tests ====================

func TestCancelAnnotatesThenRemoves(t *testing.T) {
	m := &fakeMutator{}
	ev := types.Event{ID: "evt001", Summary: "Meeting", Description: "Original description"}

	if err := New(m, nil).Cancel(context.Background(), ev, DefaultNote); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if len(m.annotations) != 1 || m.annotations[0] != DefaultNote+"\n\nOriginal description" {
		t.Errorf("annotations = %q", m.annotations)
	}
	if len(m.removals) != 1 || m.removals[0] != "evt001" {
		t.Errorf("removals = %v", m.removals)
	}
}

func TestCancelSkipsAnnotationWhenNotePresent(t *testing.T) {
	m := &fakeMutator{}
	ev := types.Event{ID: "evt002", Summary: "Meeting", Description: DefaultNote + "\n\nOriginal description"}

	if err := New(m, nil).Cancel(context.Background(), ev, DefaultNote); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if len(m.annotations) != 0 {
		t.Errorf("Annotate called %d times, want 0", len(m.annotations))
	}
	if len(m.removals) != 1 {
		t.Errorf("Remove called %d times, want 1", len(m.removals))
	}
}

func TestCancelAnnotateFailureLeavesEventUntouched(t *testing.T) {
	boom := errors.New("patch failed")
	m := &fakeMutator{annotateErr: boom}
	ev := types.Event{ID: "evt003", Summary: "Meeting"}

	err := New(m, nil).Cancel(context.Background(), ev, DefaultNote)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
	if errors.Is(err, ErrIncomplete) {
		t.Error("annotation failure must not be reported as incomplete")
	}
	if len(m.removals) != 0 {
		t.Error("Remove must not be called when annotation fails")
	}
}

func TestCancelRemoveFailureIsCritical(t *testing.T) {
	boom := errors.New("googleapi: Error 500: backend error")
	m := &fakeMutator{removeErr: boom}
	ev := types.Event{ID: "evt004", Summary: "Meeting", Description: ""}

	var buf bytes.Buffer
	err := New(m, newTestLogger(&buf)).Cancel(context.Background(), ev, DefaultNote)

	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("err = %v, want ErrIncomplete", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping cause", err)
	}
	out := buf.String()
	if !strings.Contains(out, "INCOMPLETE") {
		t.Errorf("expected INCOMPLETE log, got %q", out)
	}
	if !strings.Contains(out, "level=ERROR+4") {
		t.Errorf("expected critical level record, got %q", out)
	}
}

func TestCancelRetryAfterPartialFailure(t *testing.T) {
	m := &fakeMutator{removeErr: errors.New("timeout")}
	ev := types.Event{ID: "evt005", Summary: "Meeting", Description: "Weekly"}
	c := New(m, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	if err := c.Cancel(context.Background(), ev, DefaultNote); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("first Cancel() err = %v, want ErrIncomplete", err)
	}

	// The next run sees the annotated description.
	ev.Description = m.annotations[0]
	m.removeErr = nil
	if err := c.Cancel(context.Background(), ev, DefaultNote); err != nil {
		t.Fatalf("second Cancel() failed: %v", err)
	}

	if len(m.annotations) != 1 {
		t.Errorf("Annotate called %d times, want 1", len(m.annotations))
	}
	if len(m.removals) != 2 {
		t.Errorf("Remove called %d times, want 2", len(m.removals))
	}
}
