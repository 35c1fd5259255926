// Package canceller removes a meeting occurrence after annotating why.
package canceller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

// DefaultNote is prepended to the description of every cancelled occurrence.
const DefaultNote = "Meeting canceled since there are no topics to be discussed today"

// LevelCritical sits above slog.LevelError. It is reserved for states that
// need manual intervention.
const LevelCritical = slog.Level(12)

// ErrIncomplete is returned when the description was annotated but the
// occurrence could not be removed.
var ErrIncomplete = errors.New("cancellation incomplete")

// EventMutator applies changes to calendar occurrences.
type EventMutator interface {
	// Annotate replaces the description of the event, leaving other fields untouched.
	Annotate(ctx context.Context, eventID, description string) error
	// Remove deletes the occurrence and notifies all attendees.
	Remove(ctx context.Context, eventID string) error
}

// AnnotateIfNeeded prepends note and a blank line to desc, unless desc already
// starts with note. Surrounding whitespace in note is ignored. The second
// return value reports whether anything changed.
func AnnotateIfNeeded(desc, note string) (string, bool) {
	note = strings.TrimSpace(note)
	if strings.HasPrefix(desc, note) {
		return desc, false
	}
	return strings.TrimSpace(note + "\n\n" + desc), true
}

// Canceller cancels occurrences through an EventMutator.
type Canceller struct {
	mutator EventMutator
	logger  *slog.Logger
}

// New creates a canceller.
func New(mutator EventMutator, logger *slog.Logger) *Canceller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Canceller{mutator: mutator, logger: logger}
}

// Cancel annotates the event description with note and then removes the
// occurrence. Both steps are safe to repeat: a description that already carries
// the note is not written again, so a retry after a failed removal only retries
// the removal.
func (c *Canceller) Cancel(ctx context.Context, ev types.Event, note string) error {
	summary := ev.DisplayName()

	if desc, changed := AnnotateIfNeeded(ev.Description, note); changed {
		if err := c.mutator.Annotate(ctx, ev.ID, desc); err != nil {
			return fmt.Errorf("annotate %s: %w", ev.ID, err)
		}
	} else {
		c.logger.Info("cancellation note already present, skipping annotation", "event", summary, "id", ev.ID)
	}

	if err := c.mutator.Remove(ctx, ev.ID); err != nil {
		c.logger.Log(ctx, LevelCritical,
			"INCOMPLETE cancellation: description updated but occurrence was not removed; it will be retried on the next run or must be deleted manually",
			"event", summary, "id", ev.ID, "error", err)
		return fmt.Errorf("remove %s: %w: %w", ev.ID, ErrIncomplete, err)
	}

	c.logger.Info("cancelled occurrence", "event", summary, "id", ev.ID)
	return nil
}
