package db

import (
	"context"
	"fmt"
	"time"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// DayLayout is the layout of Run.Day.
const DayLayout = "2006-01-02"

// TimeLayout is the fixed-width UTC layout of Run.started_at and
// Run.finished_at, so string order is time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRecord is one optimizer run as stored in the ledger.
type RunRecord struct {
	ID         string           `json:"id"`
	Day        string           `json:"day"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	DryRun     bool             `json:"dry_run"`
	Status     string           `json:"status"`
	Events     int              `json:"events"`
	Failures   int              `json:"failures"`
	Decisions  []DecisionRecord `json:"decisions,omitempty"`
}

// DecisionRecord is the outcome recorded for one event in a run.
type DecisionRecord struct {
	EventID    string `json:"event_id"`
	Summary    string `json:"summary"`
	Reason     string `json:"reason"`
	Action     string `json:"action"`
	DocumentID string `json:"document_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RecordRun stores a run and its decisions.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	err := s.ExecuteWrite(ctx, `
		CREATE (r:Run {
			id: $id,
			day: $day,
			started_at: $started_at,
			finished_at: $finished_at,
			dry_run: $dry_run,
			status: $status,
			events: $events,
			failures: $failures
		})
	`, map[string]any{
		"id":          run.ID,
		"day":         run.Day,
		"started_at":  run.StartedAt.UTC().Format(TimeLayout),
		"finished_at": run.FinishedAt.UTC().Format(TimeLayout),
		"dry_run":     run.DryRun,
		"status":      run.Status,
		"events":      int64(run.Events),
		"failures":    int64(run.Failures),
	})
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}

	for i, d := range run.Decisions {
		decisionID := fmt.Sprintf("%s#%d", run.ID, i)
		err := s.ExecuteWrite(ctx, `
			MATCH (r:Run {id: $run_id})
			CREATE (d:Decision {
				id: $id,
				seq: $seq,
				event_id: $event_id,
				summary: $summary,
				reason: $reason,
				action: $action,
				document_id: $document_id,
				error: $error
			})
			CREATE (r)-[:RECORDED]->(d)
		`, map[string]any{
			"run_id":      run.ID,
			"id":          decisionID,
			"seq":         int64(i),
			"event_id":    d.EventID,
			"summary":     d.Summary,
			"reason":      d.Reason,
			"action":      d.Action,
			"document_id": d.DocumentID,
			"error":       d.Error,
		})
		if err != nil {
			return fmt.Errorf("create decision %s: %w", decisionID, err)
		}
	}

	s.logger.Debug("recorded run", "id", run.ID, "day", run.Day, "status", run.Status)
	return nil
}

// LastSuccessfulDay returns the day of the most recent successful real run,
// or "" when there is none. Dry runs never count.
func (s *Store) LastSuccessfulDay(ctx context.Context) (string, error) {
	records, err := s.Execute(ctx, `
		MATCH (r:Run)
		WHERE r.status = $status AND r.dry_run = false
		RETURN r.day AS day
		ORDER BY day DESC
		LIMIT 1
	`, map[string]any{"status": StatusSuccess})
	if err != nil {
		return "", fmt.Errorf("query last successful run: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[0].str("day"), nil
}

// LastRun returns the most recently started run with its decisions, or nil
// when the ledger is empty.
func (s *Store) LastRun(ctx context.Context) (*RunRecord, error) {
	records, err := s.Execute(ctx, `
		MATCH (r:Run)
		RETURN r.id AS id, r.day AS day, r.started_at AS started_at, r.finished_at AS finished_at,
		       r.dry_run AS dry_run, r.status AS status, r.events AS events, r.failures AS failures
		ORDER BY started_at DESC
		LIMIT 1
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	rec := records[0]
	run := &RunRecord{
		ID:       rec.str("id"),
		Day:      rec.str("day"),
		DryRun:   rec.bool("dry_run"),
		Status:   rec.str("status"),
		Events:   rec.int("events"),
		Failures: rec.int("failures"),
	}
	run.StartedAt, _ = time.Parse(TimeLayout, rec.str("started_at"))
	run.FinishedAt, _ = time.Parse(TimeLayout, rec.str("finished_at"))

	decisions, err := s.Execute(ctx, `
		MATCH (r:Run {id: $id})-[:RECORDED]->(d:Decision)
		RETURN d.seq AS seq, d.event_id AS event_id, d.summary AS summary, d.reason AS reason,
		       d.action AS action, d.document_id AS document_id, d.error AS error
		ORDER BY seq
	`, map[string]any{"id": run.ID})
	if err != nil {
		return nil, fmt.Errorf("query decisions for run %s: %w", run.ID, err)
	}
	for _, d := range decisions {
		run.Decisions = append(run.Decisions, DecisionRecord{
			EventID:    d.str("event_id"),
			Summary:    d.str("summary"),
			Reason:     d.str("reason"),
			Action:     d.str("action"),
			DocumentID: d.str("document_id"),
			Error:      d.str("error"),
		})
	}
	return run, nil
}
