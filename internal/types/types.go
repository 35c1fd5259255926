// Package types defines the core data structures for meeting-optimizer.
package types

import (
	"strings"
	"time"
)

// BlockKind classifies a unit of document content.
type BlockKind int

const (
	// Paragraph is ordinary body text.
	Paragraph BlockKind = iota
	// Heading is a paragraph carrying a recognised heading style.
	Heading
	// Other covers tables, section breaks and similar structure. It has no text.
	Other
)

func (k BlockKind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Paragraph:
		return "paragraph"
	default:
		return "other"
	}
}

// Rank is the hierarchy rank of a heading style. Lower is more senior.
type Rank int

const (
	RankTitle    Rank = 0
	RankHeading1 Rank = 1
	RankHeading2 Rank = 2
	RankHeading3 Rank = 3
	RankHeading4 Rank = 4
	RankHeading5 Rank = 5
	RankHeading6 Rank = 6
	RankSubtitle Rank = 7

	// RankNone marks a block that is not a heading.
	RankNone Rank = 99
)

// styleRanks maps Google Docs namedStyleType values to ranks.
var styleRanks = map[string]Rank{
	"TITLE":     RankTitle,
	"HEADING_1": RankHeading1,
	"HEADING_2": RankHeading2,
	"HEADING_3": RankHeading3,
	"HEADING_4": RankHeading4,
	"HEADING_5": RankHeading5,
	"HEADING_6": RankHeading6,
	"SUBTITLE":  RankSubtitle,
}

// RankForStyle returns the rank of a named paragraph style, or RankNone when the
// style is not a heading style.
func RankForStyle(style string) Rank {
	if r, ok := styleRanks[style]; ok {
		return r
	}
	return RankNone
}

// SeniorTo reports whether r sits strictly above other in the hierarchy.
func (r Rank) SeniorTo(other Rank) bool {
	return r < other
}

// Block is one normalized unit of document content, in document order.
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text,omitempty"`
	Rank Rank      `json:"rank"`
}

// NewHeading builds a heading block with the given rank.
func NewHeading(text string, rank Rank) Block {
	if rank >= RankNone {
		return NewParagraph(text)
	}
	return Block{Kind: Heading, Text: strings.TrimSpace(text), Rank: rank}
}

// NewParagraph builds a plain text block.
func NewParagraph(text string) Block {
	return Block{Kind: Paragraph, Text: strings.TrimSpace(text), Rank: RankNone}
}

// NewOther builds a structural block with no text.
func NewOther() Block {
	return Block{Kind: Other, Rank: RankNone}
}

// IsHeading reports whether the block is a heading.
func (b Block) IsHeading() bool {
	return b.Kind == Heading
}

// Attachment is a file reference attached to a calendar event.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Title    string `json:"title,omitempty"`
}

// Event is a single calendar occurrence as seen by the decision core.
type Event struct {
	ID               string       `json:"id"`
	Summary          string       `json:"summary"`
	Description      string       `json:"description,omitempty"`
	Start            time.Time    `json:"start"`
	End              time.Time    `json:"end"`
	AllDay           bool         `json:"all_day,omitempty"`
	RecurringEventID string       `json:"recurring_event_id,omitempty"`
	Status           string       `json:"status,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
}

// DisplayName returns the event summary, or a placeholder for untitled events.
func (e Event) DisplayName() string {
	if s := strings.TrimSpace(e.Summary); s != "" {
		return s
	}
	return "Untitled"
}

// IsRecurringInstance reports whether the event is one occurrence of a series.
func (e Event) IsRecurringInstance() bool {
	return e.RecurringEventID != ""
}
