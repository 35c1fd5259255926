// Package attachments resolves the agenda documents attached to a calendar event.
package attachments

import (
	"log/slog"
	"regexp"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

// DocumentMimeType is the Drive MIME type of a Google Doc.
const DocumentMimeType = "application/vnd.google-apps.document"

const (
	DefaultMaxAttachments = 50
	DefaultMaxURLLength   = 2048
	DefaultMaxIDLength    = 256
)

var docIDPattern = regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`)

// Resolver extracts document ids from event attachments.
type Resolver struct {
	maxAttachments int
	maxURLLength   int
	maxIDLength    int
	logger         *slog.Logger
}

// Config holds resolver limits. Zero values select the defaults.
type Config struct {
	MaxAttachments int
	MaxURLLength   int
	MaxIDLength    int
	Logger         *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		maxAttachments: orDefault(cfg.MaxAttachments, DefaultMaxAttachments),
		maxURLLength:   orDefault(cfg.MaxURLLength, DefaultMaxURLLength),
		maxIDLength:    orDefault(cfg.MaxIDLength, DefaultMaxIDLength),
		logger:         logger,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Resolve returns the ids of the Google Docs attached to ev, in attachment order.
// Attachments that cannot be resolved are skipped; they never fail the event.
func (r *Resolver) Resolve(ev types.Event) []string {
	var ids []string
	for i, att := range ev.Attachments {
		if i >= r.maxAttachments {
			r.logger.Warn("attachment limit reached, ignoring the rest",
				"event", ev.DisplayName(), "limit", r.maxAttachments, "attachments", len(ev.Attachments))
			break
		}
		if att.MimeType != DocumentMimeType {
			continue
		}
		if id, ok := r.documentID(att.URL); ok {
			ids = append(ids, id)
		} else {
			r.logger.Debug("skipping unresolvable attachment", "event", ev.DisplayName(), "title", att.Title)
		}
	}
	return ids
}

func (r *Resolver) documentID(url string) (string, bool) {
	if url == "" || len(url) > r.maxURLLength {
		return "", false
	}
	m := docIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	if len(m[1]) > r.maxIDLength {
		return "", false
	}
	return m[1], true
}
