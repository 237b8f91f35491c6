package journal

import (
	"fmt"
	"strings"
)

// Format serializes a single Account Entry into its on-disk block form
//, without a trailing blank line. Writers are responsible for
// the blank-line separator between consecutive entries.
func Format(e *Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s%s\n", e.Date, e.Status.Marker(), e.Description)

	if e.ID != "" {
		fmt.Fprintf(&b, "    ; id: %s\n", e.ID)
	}
	for _, ev := range e.Evidence {
		fmt.Fprintf(&b, "    ; evidence: %s\n", ev)
	}
	if e.ExtractedBy != "" {
		fmt.Fprintf(&b, "    ; extracted-by: %s\n", e.ExtractedBy)
	}
	if e.Posted != "" {
		fmt.Fprintf(&b, "    ; posted: %s\n", e.Posted)
	}
	for _, pp := range e.PostedPostings {
		fmt.Fprintf(&b, "    ; posted-posting-%d: %s\n", pp.Index, pp.Reference)
	}
	for _, t := range e.Tags {
		fmt.Fprintf(&b, "    ; %s: %s\n", t.Key, t.Value)
	}
	if e.Comment != "" {
		for _, line := range strings.Split(e.Comment, "\n") {
			fmt.Fprintf(&b, "    ; %s\n", line)
		}
	}

	for _, p := range e.Postings {
		if p.Amount != nil {
			fmt.Fprintf(&b, "    %s  %s %s\n", p.Account, p.Amount.Quantity, p.Amount.Commodity)
		} else {
			fmt.Fprintf(&b, "    %s\n", p.Account)
		}
	}

	return b.String()
}

// FormatAll serializes a sequence of entries separated by single blank
// lines, with no leading or trailing blank line.
func FormatAll(entries []*Entry) string {
	blocks := make([]string, len(entries))
	for i, e := range entries {
		blocks[i] = strings.TrimRight(Format(e), "\n")
	}
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}
