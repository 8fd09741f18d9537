package analyzer

import (
	"unicode/utf8"

	"github.com/BenjaminSRussell/seo_audit/internal/types"
)

// MaxHeadingLength is the longest heading text accepted without a warning
const MaxHeadingLength = 70

type hierarchyState int

const (
	beforeAnyHeading hierarchyState = iota
	afterHeading
)

// hierarchy walks the ordered heading sequence tracking the last seen level
type hierarchy struct {
	state   hierarchyState
	last    int
	h1Count int
	issues  []types.Issue
}

func (m *hierarchy) step(h types.HeadingItem) {
	switch m.state {
	case beforeAnyHeading:
		if h.Level != 1 {
			m.issues = append(m.issues, issue(CodeFirstHeadingNotH1, types.SeverityWarning,
				"First heading is H%d, expected H1", h.Level))
		}
		m.state = afterHeading
	case afterHeading:
		if h.Level > m.last+1 {
			m.issues = append(m.issues, issue(CodeHeadingSkip, types.SeverityWarning,
				"Heading jumps from H%d to H%d (missing H%d)", m.last, h.Level, m.last+1))
		}
	}

	if h.Level == 1 {
		m.h1Count++
	}

	if h.Text == "" {
		m.issues = append(m.issues, issue(CodeHeadingEmpty, types.SeverityWarning,
			"H%d at position %d has no text", h.Level, h.Position))
	} else if n := utf8.RuneCountInString(h.Text); n > MaxHeadingLength {
		m.issues = append(m.issues, issue(CodeHeadingTooLong, types.SeverityInfo,
			"H%d at position %d is %d characters (maximum %d)", h.Level, h.Position, n, MaxHeadingLength))
	}

	m.last = h.Level
}

func (m *hierarchy) finish() []types.Issue {
	if m.state == beforeAnyHeading {
		return []types.Issue{issue(CodeNoHeadings, types.SeverityWarning, "No headings found")}
	}
	if m.h1Count > 1 {
		m.issues = append(m.issues, issue(CodeHeadingMultipleH1, types.SeverityWarning,
			"Heading outline has %d H1 elements", m.h1Count))
	}
	return m.issues
}

// CheckHeadings validates an ordered heading sequence independent of DOM nesting
func CheckHeadings(headings []types.HeadingItem) []types.Issue {
	var m hierarchy
	for _, h := range headings {
		m.step(h)
	}
	return m.finish()
}

// HeadingHierarchyRule runs CheckHeadings over the page outline
func HeadingHierarchyRule(p *Page) []types.Issue {
	return CheckHeadings(p.Doc.Headings)
}
