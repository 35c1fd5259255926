// Package policy decides whether a meeting occurrence should be cancelled.
package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/boblangley/meeting-optimizer/internal/agenda"
	"github.com/boblangley/meeting-optimizer/internal/attachments"
	"github.com/boblangley/meeting-optimizer/internal/types"
)

// DocumentFetcher loads a document as a block sequence.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, documentID string) ([]types.Block, error)
}

// Reason is the reason code of a Decision.
type Reason string

const (
	KeepNoDoc     Reason = "keep:no_doc"
	KeepHasTopics Reason = "keep:has_topics"
	CancelNoTopic Reason = "cancel:no_topics"
	KeepDocError  Reason = "keep:doc_error"
)

// Cancel reports whether the reason calls for cancellation.
func (r Reason) Cancel() bool {
	return r == CancelNoTopic
}

// DocumentFailure records a document that could not be read.
type DocumentFailure struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

// DocumentResult records the verdict for a document that was read.
type DocumentResult struct {
	DocumentID string        `json:"document_id"`
	Result     agenda.Result `json:"result"`
}

// Decision is the aggregate outcome for one event.
type Decision struct {
	Reason Reason `json:"reason"`

	// DocumentID is the document that had topics, for KeepHasTopics.
	DocumentID string `json:"document_id,omitempty"`

	Documents []DocumentResult  `json:"documents,omitempty"`
	Failures  []DocumentFailure `json:"failures,omitempty"`
}

// Policy aggregates per-document verdicts into a Decision.
type Policy struct {
	resolver  *attachments.Resolver
	evaluator *agenda.Evaluator
	logger    *slog.Logger
}

// Config holds policy dependencies. Nil fields get defaults.
type Config struct {
	Resolver  *attachments.Resolver
	Evaluator *agenda.Evaluator
	Logger    *slog.Logger
}

// New creates a policy.
func New(cfg Config) *Policy {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = attachments.NewResolver(attachments.Config{Logger: logger})
	}
	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = agenda.NewEvaluator(agenda.Config{Logger: logger})
	}
	return &Policy{resolver: resolver, evaluator: evaluator, logger: logger}
}

// Decide evaluates the documents attached to ev, in order. The first document
// with topics keeps the meeting and later documents are not fetched. A meeting
// is only cancelled when at least one document was read and none had topics.
func (p *Policy) Decide(ctx context.Context, ev types.Event, fetcher DocumentFetcher, today time.Time) Decision {
	summary := ev.DisplayName()
	ids := p.resolver.Resolve(ev)
	if len(ids) == 0 {
		p.logger.Warn("no Google Doc attached, will not cancel", "event", summary)
		return Decision{Reason: KeepNoDoc}
	}

	var d Decision
	for _, id := range ids {
		blocks, err := fetcher.FetchDocument(ctx, id)
		if err != nil {
			p.logger.Error("could not read doc, skipping it", "event", summary, "doc", id, "error", err)
			d.Failures = append(d.Failures, DocumentFailure{DocumentID: id, Error: err.Error()})
			continue
		}

		res := p.evaluator.Evaluate(blocks, today)
		d.Documents = append(d.Documents, DocumentResult{DocumentID: id, Result: res})
		if res.TopicsPresent() {
			p.logger.Info("topics found, meeting is required", "event", summary, "doc", id)
			d.Reason = KeepHasTopics
			d.DocumentID = id
			return d
		}
	}

	if len(d.Documents) == 0 {
		p.logger.Warn("all docs had access errors, will not cancel", "event", summary, "docs", len(ids))
		d.Reason = KeepDocError
		return d
	}

	p.logger.Info("no topics found in any attached doc, will cancel", "event", summary, "docs", len(d.Documents))
	d.Reason = CancelNoTopic
	return d
}
