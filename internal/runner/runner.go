// Package runner drives one optimizer run over today's recurring meetings.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/boblangley/meeting-optimizer/internal/canceller"
	"github.com/boblangley/meeting-optimizer/internal/db"
	"github.com/boblangley/meeting-optimizer/internal/policy"
	"github.com/boblangley/meeting-optimizer/internal/types"
)

// Event actions recorded in a Report.
const (
	ActionKept        = "kept"
	ActionCancelled   = "cancelled"
	ActionWouldCancel = "would_cancel"
	ActionFailed      = "failed"
	ActionIncomplete  = "incomplete"
)

// EventSource lists the recurring occurrences of a day.
type EventSource interface {
	EventsForDate(ctx context.Context, day time.Time) ([]types.Event, error)
}

// Ledger stores finished runs.
type Ledger interface {
	LastSuccessfulDay(ctx context.Context) (string, error)
	RecordRun(ctx context.Context, run db.RunRecord) error
}

// Options modify a single run.
type Options struct {
	// DryRun decides but never mutates the calendar.
	DryRun bool

	// Force ignores the once-per-day guard.
	Force bool
}

// EventOutcome is what happened to one event.
type EventOutcome struct {
	EventID    string        `json:"event_id"`
	Summary    string        `json:"summary"`
	Reason     policy.Reason `json:"reason,omitempty"`
	Action     string        `json:"action"`
	DocumentID string        `json:"document_id,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Failed reports whether the outcome counts toward the run's failures.
func (o EventOutcome) Failed() bool {
	return o.Action == ActionFailed || o.Action == ActionIncomplete
}

// Report summarizes a run.
type Report struct {
	RunID      string         `json:"run_id"`
	Day        string         `json:"day"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DryRun     bool           `json:"dry_run"`
	Skipped    bool           `json:"skipped,omitempty"`
	Events     []EventOutcome `json:"events"`
	Failures   int            `json:"failures"`
}

// Status is the ledger status of the run.
func (r *Report) Status() string {
	if r.Failures == 0 {
		return db.StatusSuccess
	}
	return db.StatusPartial
}

// Record converts the report into a ledger record.
func (r *Report) Record() db.RunRecord {
	rec := db.RunRecord{
		ID:         r.RunID,
		Day:        r.Day,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DryRun:     r.DryRun,
		Status:     r.Status(),
		Events:     len(r.Events),
		Failures:   r.Failures,
	}
	for _, o := range r.Events {
		rec.Decisions = append(rec.Decisions, db.DecisionRecord{
			EventID:    o.EventID,
			Summary:    o.Summary,
			Reason:     string(o.Reason),
			Action:     o.Action,
			DocumentID: o.DocumentID,
			Error:      o.Error,
		})
	}
	return rec
}

// Config wires a Runner.
type Config struct {
	Source    EventSource
	Fetcher   policy.DocumentFetcher
	Policy    *policy.Policy
	Canceller *canceller.Canceller

	// Ledger is optional. Without it every run proceeds and nothing is recorded.
	Ledger Ledger

	// Note is the cancellation note. Empty uses canceller.DefaultNote.
	Note string

	Logger *slog.Logger

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Runner processes the day's events one by one.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Note == "" {
		cfg.Note = canceller.DefaultNote
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.New(policy.Config{Logger: logger})
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run processes every event of day. Only a failure to list events is returned
// as an error; per-event failures are counted in the report.
func (r *Runner) Run(ctx context.Context, day time.Time, opts Options) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Day:       day.Format(db.DayLayout),
		StartedAt: r.cfg.Now(),
		DryRun:    opts.DryRun,
		Events:    []EventOutcome{},
	}

	if opts.DryRun {
		r.logger.Info("=== DRY RUN MODE: no meetings will be cancelled ===")
	}

	if r.cfg.Ledger != nil && !opts.Force && !opts.DryRun {
		last, err := r.cfg.Ledger.LastSuccessfulDay(ctx)
		if err != nil {
			r.logger.Warn("could not read last successful run", "error", err)
		} else if last == report.Day {
			r.logger.Info("already ran successfully today, nothing to do", "day", report.Day)
			report.Skipped = true
			report.FinishedAt = r.cfg.Now()
			return report, nil
		}
	}

	events, err := r.cfg.Source.EventsForDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		r.logger.Info("no recurring meetings today, nothing to do", "day", report.Day)
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := r.processEvent(ctx, ev, day, opts)
		if outcome.Failed() {
			report.Failures++
		}
		report.Events = append(report.Events, outcome)
	}

	report.FinishedAt = r.cfg.Now()
	r.record(ctx, report)

	r.logger.Info("run finished",
		"day", report.Day,
		"events", len(report.Events),
		"failures", report.Failures,
		"dry_run", report.DryRun)
	return report, nil
}

// processEvent decides and acts on one event. A panic is recovered and
// reported as a failed outcome.
func (r *Runner) processEvent(ctx context.Context, ev types.Event, day time.Time, opts Options) (out EventOutcome) {
	summary := ev.DisplayName()
	out = EventOutcome{EventID: ev.ID, Summary: summary}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("error processing event, skipping and continuing", "event", summary, "id", ev.ID, "panic", p)
			out.Action = ActionFailed
			out.Error = fmt.Sprint(p)
		}
	}()

	r.logger.Info("processing event", "event", summary, "id", ev.ID)

	d := r.cfg.Policy.Decide(ctx, ev, r.cfg.Fetcher, day)
	out.Reason = d.Reason
	out.DocumentID = d.DocumentID

	if !d.Reason.Cancel() {
		out.Action = ActionKept
		return out
	}

	if opts.DryRun {
		r.logger.Info("[DRY RUN] Would cancel", "event", summary, "id", ev.ID)
		out.Action = ActionWouldCancel
		return out
	}

	err := r.cfg.Canceller.Cancel(ctx, ev, r.cfg.Note)
	switch {
	case err == nil:
		out.Action = ActionCancelled
	case errors.Is(err, canceller.ErrIncomplete):
		out.Action = ActionIncomplete
		out.Error = err.Error()
	default:
		r.logger.Error("error cancelling event, skipping and continuing", "event", summary, "id", ev.ID, "error", err)
		out.Action = ActionFailed
		out.Error = err.Error()
	}
	return out
}

func (r *Runner) record(ctx context.Context, report *Report) {
	if r.cfg.Ledger == nil {
		return
	}
	if err := r.cfg.Ledger.RecordRun(ctx, report.Record()); err != nil {
		r.logger.Error("could not record run", "id", report.RunID, "error", err)
	}
}
