package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/boblangley/meeting-optimizer/internal/attachments"
	"github.com/boblangley/meeting-optimizer/internal/canceller"
	"github.com/boblangley/meeting-optimizer/internal/db"
	"github.com/boblangley/meeting-optimizer/internal/policy"
	"github.com/boblangley/meeting-optimizer/internal/types"
)

var day = time.Date(2026, time.February, 26, 8, 0, 0, 0, time.UTC)

type fakeSource struct {
	events []types.Event
	err    error
	calls  int
}

func (s *fakeSource) EventsForDate(context.Context, time.Time) ([]types.Event, error) {
	s.calls++
	return s.events, s.err
}

type fakeFetcher struct {
	docs  map[string][]types.Block
	panic bool
}

func (f *fakeFetcher) FetchDocument(_ context.Context, id string) ([]types.Block, error) {
	if f.panic {
		panic("unexpected document shape")
	}
	if blocks, ok := f.docs[id]; ok {
		return blocks, nil
	}
	return nil, errors.New("not found")
}

type fakeMutator struct {
	removeErr error
	annotated []string
	removed   []string
}

func (m *fakeMutator) Annotate(_ context.Context, id, _ string) error {
	m.annotated = append(m.annotated, id)
	return nil
}

func (m *fakeMutator) Remove(_ context.Context, id string) error {
	m.removed = append(m.removed, id)
	return m.removeErr
}

type fakeLedger struct {
	lastDay  string
	recorded []db.RunRecord
}

func (l *fakeLedger) LastSuccessfulDay(context.Context) (string, error) {
	return l.lastDay, nil
}

func (l *fakeLedger) RecordRun(_ context.Context, run db.RunRecord) error {
	l.recorded = append(l.recorded, run)
	if run.Status == db.StatusSuccess && !run.DryRun {
		l.lastDay = run.Day
	}
	return nil
}

func eventWithDoc(id, docID string) types.Event {
	return types.Event{
		ID:               id,
		Summary:          "Meeting " + id,
		RecurringEventID: "series",
		Attachments: []types.Attachment{{
			MimeType: attachments.DocumentMimeType,
			URL:      "https://docs.google.com/document/d/" + docID + "/edit",
		}},
	}
}

var (
	topicsDoc = []types.Block{
		types.NewHeading("Feb 26, 2026", types.RankHeading2),
		types.NewParagraph("Topics"),
		types.NewParagraph("Budget review"),
	}
	emptyDoc = []types.Block{
		types.NewHeading("Feb 26, 2026", types.RankHeading2),
		types.NewParagraph("Topics"),
		types.NewParagraph("Notes"),
	}
)

type fixture struct {
	source  *fakeSource
	fetcher *fakeFetcher
	mutator *fakeMutator
	ledger  *fakeLedger
	runner  *Runner
}

func newFixture(events ...types.Event) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		source: &fakeSource{events: events},
		fetcher: &fakeFetcher{docs: map[string][]types.Block{
			"doc_topics": topicsDoc,
			"doc_empty":  emptyDoc,
		}},
		mutator: &fakeMutator{},
		ledger:  &fakeLedger{},
	}
	f.runner = New(Config{
		Source:    f.source,
		Fetcher:   f.fetcher,
		Policy:    policy.New(policy.Config{Logger: logger}),
		Canceller: canceller.New(f.mutator, logger),
		Ledger:    f.ledger,
		Logger:    logger,
	})
	return f
}

// ==================== Run Tests ====================

func TestRunKeepsAndCancels(t *testing.T) {
	f := newFixture(
		eventWithDoc("keep", "doc_topics"),
		eventWithDoc("drop", "doc_empty"),
		types.Event{ID: "nodoc", Summary: "No doc"},
	)

	report, err := f.runner.Run(context.Background(), day, Options{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	want := []struct {
		action string
		reason policy.Reason
	}{
		{ActionKept, policy.KeepHasTopics},
		{ActionCancelled, policy.CancelNoTopic},
		{ActionKept, policy.KeepNoDoc},
	}
	if len(report.Events) != len(want) {
		t.Fatalf("events = %+v", report.Events)
	}
	for i, w := range want {
		if report.Events[i].Action != w.action || report.Events[i].Reason != w.reason {
			t.Errorf("event %d = %+v, want %s/%s", i, report.Events[i], w.action, w.reason)
		}
	}
	if len(f.mutator.removed) != 1 || f.mutator.removed[0] != "drop" {
		t.Errorf("removed = %v, want [drop]", f.mutator.removed)
	}
	if report.Failures != 0 || report.Status() != db.StatusSuccess {
		t.Errorf("failures = %d, status = %s", report.Failures, report.Status())
	}
	if len(f.ledger.recorded) != 1 || f.ledger.recorded[0].Day != "2026-02-26" {
		t.Errorf("recorded = %+v", f.ledger.recorded)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestRunDryRunNeverMutates(t *testing.T) {
	f := newFixture(eventWithDoc("drop", "doc_empty"))

	report, err := f.runner.Run(context.Background(), day, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Events[0].Action != ActionWouldCancel {
		t.Errorf("action = %s, want %s", report.Events[0].Action, ActionWouldCancel)
	}
	if len(f.mutator.annotated)+len(f.mutator.removed) != 0 {
		t.Error("dry run mutated the calendar")
	}
	if f.ledger.lastDay != "" {
		t.Error("dry run must not count as a successful run")
	}
	if len(f.ledger.recorded) != 1 || !f.ledger.recorded[0].DryRun {
		t.Errorf("recorded = %+v, want one dry run", f.ledger.recorded)
	}
}

func TestRunOncePerDay(t *testing.T) {
	f := newFixture(eventWithDoc("drop", "doc_empty"))
	ctx := context.Background()

	if _, err := f.runner.Run(ctx, day, Options{}); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}
	report, err := f.runner.Run(ctx, day, Options{})
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if !report.Skipped {
		t.Error("second run on the same day was not skipped")
	}
	if f.source.calls != 1 {
		t.Errorf("events listed %d times, want 1", f.source.calls)
	}

	if _, err := f.runner.Run(ctx, day, Options{Force: true}); err != nil {
		t.Fatalf("forced Run() failed: %v", err)
	}
	if f.source.calls != 2 {
		t.Errorf("forced run did not list events")
	}
}

func TestRunPartialFailureAllowsRerun(t *testing.T) {
	f := newFixture(eventWithDoc("drop", "doc_empty"), eventWithDoc("keep", "doc_topics"))
	f.mutator.removeErr = errors.New("backend error")
	ctx := context.Background()

	report, err := f.runner.Run(ctx, day, Options{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Events[0].Action != ActionIncomplete || report.Events[0].Error == "" {
		t.Errorf("event 0 = %+v, want incomplete with error", report.Events[0])
	}
	if report.Events[1].Action != ActionKept {
		t.Errorf("second event not processed: %+v", report.Events[1])
	}
	if report.Failures != 1 || report.Status() != db.StatusPartial {
		t.Errorf("failures = %d, status = %s", report.Failures, report.Status())
	}

	again, err := f.runner.Run(ctx, day, Options{})
	if err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if again.Skipped {
		t.Error("partial run must not block a rerun")
	}
}

func TestRunRecoversPanics(t *testing.T) {
	f := newFixture(eventWithDoc("boom", "doc_any"))
	f.fetcher.panic = true

	report, err := f.runner.Run(context.Background(), day, Options{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Events[0].Action != ActionFailed || report.Failures != 1 {
		t.Errorf("report = %+v, want one failed event", report)
	}
}

func TestRunListFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.source.err = errors.New("quota exceeded")

	if _, err := f.runner.Run(context.Background(), day, Options{}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.ledger.recorded) != 0 {
		t.Error("failed listing must not be recorded as a run")
	}
}

func TestDocErrorIsNotARunFailure(t *testing.T) {
	f := newFixture(eventWithDoc("locked", "doc_missing"))

	report, err := f.runner.Run(context.Background(), day, Options{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if report.Events[0].Reason != policy.KeepDocError || report.Events[0].Action != ActionKept {
		t.Errorf("event = %+v", report.Events[0])
	}
	if report.Failures != 0 {
		t.Errorf("failures = %d, want 0", report.Failures)
	}
}

func TestReportRecord(t *testing.T) {
	r := &Report{
		RunID: "id",
		Day:   "2026-02-26",
		Events: []EventOutcome{
			{EventID: "a", Reason: policy.CancelNoTopic, Action: ActionFailed, Error: "x"},
		},
		Failures: 1,
	}
	rec := r.Record()
	if rec.Status != db.StatusPartial || rec.Events != 1 || len(rec.Decisions) != 1 {
		t.Errorf("Record() = %+v", rec)
	}
	if rec.Decisions[0].Reason != "cancel:no_topics" {
		t.Errorf("reason = %q", rec.Decisions[0].Reason)
	}
}
