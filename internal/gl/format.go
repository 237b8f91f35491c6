package gl

import (
	"fmt"
	"strings"
)

// Format serializes a Transaction into its on-disk block form, without a
// trailing blank line.
func Format(t *Transaction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s%s\n", t.Date, t.Status.Marker(), t.Description)
	fmt.Fprintf(&b, "    ; id: %s\n", t.ID)
	if t.GeneratedBy != "" {
		fmt.Fprintf(&b, "    ; generated-by: %s\n", t.GeneratedBy)
	}
	for _, src := range t.Sources {
		fmt.Fprintf(&b, "    ; source: %s\n", src)
	}
	for _, ev := range t.Evidence {
		fmt.Fprintf(&b, "    ; evidence: %s\n", ev)
	}
	for _, p := range t.Postings {
		if p.Amount != nil {
			fmt.Fprintf(&b, "    %s  %s %s\n", p.Account, p.Amount.Quantity, p.Amount.Commodity)
		} else {
			fmt.Fprintf(&b, "    %s\n", p.Account)
		}
	}

	return b.String()
}

// FormatAll serializes transactions separated by single blank lines.
func FormatAll(txns []*Transaction) string {
	blocks := make([]string, len(txns))
	for i, t := range txns {
		blocks[i] = strings.TrimRight(Format(t), "\n")
	}
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}
