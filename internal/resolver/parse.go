package resolver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Judgment is one resolution decision: a matched catalog ID with the judged
// title and year, or an explicit no-match. Nil fields are the null token.
type Judgment struct {
	MalID  *int64
	Title  *string
	Year   *int64
	Reason string
}

// Matched reports whether the judgment names a catalog ID.
func (j *Judgment) Matched() bool {
	return j.MalID != nil
}

// ParseError indicates a reply did not decompose into the required
// four-field shape. Callers retry the full request on it.
type ParseError struct {
	Field string
	Line  string
}

func (e *ParseError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("judgment reply missing %s field", e.Field)
	}
	return fmt.Sprintf("judgment reply has malformed %s line: %q", e.Field, e.Line)
}

var (
	malIDLine  = regexp.MustCompile(`^mal_id\s*:\s*(\d+|null)$`)
	titleLine  = regexp.MustCompile(`^title\s*:\s*([\s\S]+?)\s*$`)
	yearLine   = regexp.MustCompile(`^year\s*:\s*(\d+|null)$`)
	reasonLine = regexp.MustCompile(`^reason\s*:\s*([\s\S]*?)\s*$`)
)

// ParseReply decomposes a judgment reply into its four ordered fields.
// mal_id and year must each be a non-negative integer or the null token,
// title is free text or null, and reason collects everything after the
// reason label to the end of the reply. Blank lines are tolerated before
// the first three fields only; any other deviation is a ParseError.
func ParseReply(reply string) (*Judgment, error) {
	var (
		j          Judgment
		haveID     bool
		haveTitle  bool
		haveYear   bool
		haveReason bool
		reason     strings.Builder
	)

	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case !haveID:
			if line == "" {
				continue
			}
			m := malIDLine.FindStringSubmatch(line)
			if m == nil {
				return nil, &ParseError{Field: "mal_id", Line: line}
			}
			if m[1] != "null" {
				id, err := strconv.ParseInt(m[1], 10, 64)
				if err != nil {
					return nil, &ParseError{Field: "mal_id", Line: line}
				}
				j.MalID = &id
			}
			haveID = true
		case !haveTitle:
			if line == "" {
				continue
			}
			m := titleLine.FindStringSubmatch(line)
			if m == nil {
				return nil, &ParseError{Field: "title", Line: line}
			}
			if m[1] != "null" {
				title := m[1]
				j.Title = &title
			}
			haveTitle = true
		case !haveYear:
			if line == "" {
				continue
			}
			m := yearLine.FindStringSubmatch(line)
			if m == nil {
				return nil, &ParseError{Field: "year", Line: line}
			}
			if m[1] != "null" {
				year, err := strconv.ParseInt(m[1], 10, 64)
				if err != nil {
					return nil, &ParseError{Field: "year", Line: line}
				}
				j.Year = &year
			}
			haveYear = true
		case !haveReason:
			m := reasonLine.FindStringSubmatch(line)
			if m == nil {
				return nil, &ParseError{Field: "reason", Line: line}
			}
			reason.WriteString(m[1])
			haveReason = true
		default:
			reason.WriteString("\n")
			reason.WriteString(line)
		}
	}

	switch {
	case !haveID:
		return nil, &ParseError{Field: "mal_id"}
	case !haveTitle:
		return nil, &ParseError{Field: "title"}
	case !haveYear:
		return nil, &ParseError{Field: "year"}
	case !haveReason:
		return nil, &ParseError{Field: "reason"}
	}

	j.Reason = reason.String()
	return &j, nil
}
