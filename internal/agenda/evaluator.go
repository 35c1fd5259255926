package agenda

import (
	"log/slog"
	"time"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

// DefaultMaxBlocks bounds how many blocks a single document may contribute.
const DefaultMaxBlocks = 10000

// Outcome is the diagnostic result of evaluating one document.
type Outcome string

const (
	TopicsFound     Outcome = "topics_found"
	DateNotFound    Outcome = "date_not_found"
	NoTopicsSection Outcome = "no_topics_section"
	EmptyTopics     Outcome = "empty_topics"
	Truncated       Outcome = "truncated"
)

// Result is the evaluator's verdict for one document.
type Result struct {
	Outcome     Outcome `json:"outcome"`
	Scanned     int     `json:"scanned"`
	DateHeading string  `json:"date_heading,omitempty"`
	Topic       string  `json:"topic,omitempty"`
}

// TopicsPresent collapses the outcome into the boolean verdict.
func (r Result) TopicsPresent() bool {
	return r.Outcome == TopicsFound
}

// Verdict returns "topics_present" or "no_topics".
func (r Result) Verdict() string {
	if r.TopicsPresent() {
		return "topics_present"
	}
	return "no_topics"
}

// Evaluator runs the section locator with a safety bound on document size.
type Evaluator struct {
	maxBlocks int
	logger    *slog.Logger
}

// Config holds evaluator configuration.
type Config struct {
	// MaxBlocks is the maximum number of blocks examined per document.
	MaxBlocks int
	Logger    *slog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg Config) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBlocks := cfg.MaxBlocks
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocks
	}
	return &Evaluator{maxBlocks: maxBlocks, logger: logger}
}

// Evaluate reports whether today's section of blocks lists any topics.
func (e *Evaluator) Evaluate(blocks []types.Block, today time.Time) Result {
	loc := NewLocator(today)
	res := Result{}

	found, done := false, false
	for i, b := range blocks {
		if i >= e.maxBlocks {
			e.logger.Warn("document exceeds block limit, stopping scan",
				"limit", e.maxBlocks, "blocks", len(blocks))
			res.Outcome = Truncated
			res.Scanned = i
			res.DateHeading = loc.DateHeading
			return res
		}
		res.Scanned = i + 1
		if done, found = loc.Step(b); done {
			break
		}
	}

	res.Outcome = loc.Outcome(found)
	res.DateHeading = loc.DateHeading
	res.Topic = loc.Topic
	e.log(res, today)
	return res
}

func (e *Evaluator) log(res Result, today time.Time) {
	prefix := DatePrefix(today)
	switch res.Outcome {
	case TopicsFound:
		topic := []rune(res.Topic)
		if len(topic) > 60 {
			topic = topic[:60]
		}
		e.logger.Debug("found topic content", "date", prefix, "topic", string(topic))
	case DateNotFound:
		e.logger.Info("today's date heading not found", "date", prefix)
	case NoTopicsSection:
		e.logger.Info("date heading found but no Topics section", "date", prefix, "heading", res.DateHeading)
	case EmptyTopics:
		e.logger.Info("Topics section has no content", "date", prefix, "heading", res.DateHeading)
	}
}
