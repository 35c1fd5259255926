// Package agenda locates today's section in an agenda document and decides
// whether it lists any topics.
package agenda

import (
	"regexp"
	"strings"
	"time"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

// DatePrefixLayout renders a day the way agenda date headings start, e.g. "Feb 25, 2026".
const DatePrefixLayout = "Jan 2, 2006"

// datePattern matches any heading that looks like a date entry.
var datePattern = regexp.MustCompile(`^[A-Z][a-z]{2} \d{1,2}, \d{4}`)

// terminators end the Topics sub-section whether or not they are styled as headings.
var terminators = map[string]struct{}{
	"notes":        {},
	"action items": {},
	"action item":  {},
	"next steps":   {},
	"next step":    {},
	"attendees":    {},
	"attendees:":   {},
	"agenda":       {},
	"resources":    {},
	"follow-up":    {},
	"follow up":    {},
}

// DatePrefix returns the heading prefix for day.
func DatePrefix(day time.Time) string {
	return day.Format(DatePrefixLayout)
}

// IsTopicsHeader reports whether text names the Topics sub-section.
func IsTopicsHeader(text string) bool {
	t := strings.TrimSuffix(strings.ToLower(text), ":")
	return t == "topics" || t == "topic"
}

// IsTerminator reports whether text names a section that ends the Topics list.
func IsTerminator(text string) bool {
	_, ok := terminators[strings.ToLower(text)]
	return ok
}

// LooksLikeDateEntry reports whether text starts like an agenda date heading.
func LooksLikeDateEntry(text string) bool {
	return datePattern.MatchString(text)
}

type state int

const (
	searchingDate state = iota
	searchingTopics
	checkingContent
)

func (s state) String() string {
	switch s {
	case searchingDate:
		return "searching_date"
	case searchingTopics:
		return "searching_topics"
	default:
		return "checking_content"
	}
}

// Locator walks a block sequence once, left to right, looking for content
// under the Topics sub-heading of today's date section.
type Locator struct {
	prefix    string
	state     state
	dateLevel types.Rank

	// DateHeading and Topic are filled in as the walk progresses.
	DateHeading string
	Topic       string
}

// NewLocator returns a locator for the given day.
func NewLocator(day time.Time) *Locator {
	return &Locator{prefix: DatePrefix(day)}
}

// Step feeds the next block. It returns done=true once the walk reached a
// terminal outcome; found tells which one.
func (l *Locator) Step(b types.Block) (done, found bool) {
	switch l.state {
	case searchingDate:
		return l.stepSearchingDate(b)
	case searchingTopics:
		return l.stepSearchingTopics(b)
	default:
		return l.stepCheckingContent(b)
	}
}

func (l *Locator) stepSearchingDate(b types.Block) (bool, bool) {
	if b.IsHeading() && strings.HasPrefix(b.Text, l.prefix) {
		l.dateLevel = b.Rank
		l.DateHeading = b.Text
		l.state = searchingTopics
	}
	return false, false
}

func (l *Locator) stepSearchingTopics(b types.Block) (bool, bool) {
	if l.leavesSection(b) {
		return true, false
	}
	if IsTopicsHeader(b.Text) {
		l.state = checkingContent
	}
	return false, false
}

func (l *Locator) stepCheckingContent(b types.Block) (bool, bool) {
	if l.leavesSection(b) {
		return true, false
	}
	if IsTerminator(b.Text) {
		return true, false
	}
	if strings.TrimSpace(b.Text) != "" {
		l.Topic = b.Text
		return true, true
	}
	return false, false
}

// leavesSection reports whether b closes today's date section: a heading more
// senior than the date heading, or a sibling heading for another date.
func (l *Locator) leavesSection(b types.Block) bool {
	if !b.IsHeading() {
		return false
	}
	if b.Rank.SeniorTo(l.dateLevel) {
		return true
	}
	return b.Rank == l.dateLevel && LooksLikeDateEntry(b.Text)
}

// Outcome classifies why the walk ended without finding topics.
func (l *Locator) Outcome(found bool) Outcome {
	if found {
		return TopicsFound
	}
	switch l.state {
	case searchingDate:
		return DateNotFound
	case searchingTopics:
		return NoTopicsSection
	default:
		return EmptyTopics
	}
}
