// Package journal implements the Journal Store: the on-disk format,
// parser, and atomic write/append protocol for per-account entry
// journals (and, by the same grammar, the general journal's transaction
// blocks — see the gl package, which reuses this package's tag-line
// grammar for its own serialization).
package journal

import (
	"fmt"
	"strings"
)

// Status is the tri-state lifecycle marker of an Account Entry.
type Status int

const (
	StatusUnmarked Status = iota
	StatusPending
	StatusCleared
)

// Marker returns the on-disk status marker: "" for unmarked, "! " for
// pending, "* " for cleared.
func (s Status) Marker() string {
	switch s {
	case StatusPending:
		return "! "
	case StatusCleared:
		return "* "
	default:
		return ""
	}
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCleared:
		return "cleared"
	default:
		return "unmarked"
	}
}

// Promote returns the status resulting from monotonically promoting s
// towards other: downgrading never happens, and a pending/cleared
// mismatch always resolves to cleared.
func (s Status) Promote(other Status) Status {
	if s > other {
		return s
	}
	return other
}

// ParseStatus parses a status marker token ("", "!", "*").
func ParseStatus(marker string) (Status, error) {
	switch marker {
	case "":
		return StatusUnmarked, nil
	case "!":
		return StatusPending, nil
	case "*":
		return StatusCleared, nil
	default:
		return StatusUnmarked, fmt.Errorf("journal: unknown status marker %q", marker)
	}
}

// Date is a calendar date with no time-of-day or timezone component,
// serialized as YYYY-MM-DD.
type Date struct {
	Year, Month, Day int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (Date, error) {
	var d Date
	if _, err := fmt.Sscanf(s, "%04d-%02d-%02d", &d.Year, &d.Month, &d.Day); err != nil {
		return Date{}, fmt.Errorf("journal: malformed date %q: %w", s, err)
	}
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return Date{}, fmt.Errorf("journal: malformed date %q", s)
	}
	return d, nil
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.toOrdinal() < other.toOrdinal()
}

// DaysSince returns d - other, in days (may be negative).
func (d Date) DaysSince(other Date) int {
	return d.toOrdinal() - other.toOrdinal()
}

// toOrdinal is a deterministic day-count used only for comparisons; it
// deliberately avoids time.Time so that dates with no valid timezone
// interpretation still compare correctly.
func (d Date) toOrdinal() int {
	y, m := d.Year, d.Month
	if m <= 2 {
		y--
		m += 12
	}
	era := y / 400
	if y < 0 && y%400 != 0 {
		era--
	}
	yoe := y - era*400
	doy := (153*(m-3)+2)/5 + d.Day - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe
}

// Amount is a posting's amount, kept as a string quantity to avoid binary
// float drift.
type Amount struct {
	Commodity string
	Quantity  string
}

// Float64 parses Quantity as a float64 for tolerance comparisons. It never
// mutates the stored string form.
func (a Amount) Float64() (float64, error) {
	var f float64
	_, err := fmt.Sscanf(a.Quantity, "%g", &f)
	if err != nil {
		return 0, fmt.Errorf("journal: unparseable amount %q: %w", a.Quantity, err)
	}
	return f, nil
}

// Posting is one side of an entry or transaction: an account and an
// optional amount. At most one posting in an entry/transaction may omit
// its amount (the balancing side).
type Posting struct {
	Account string
	Amount  *Amount
}

// PostedPosting records that a single posting index of a multi-posting
// entry was reconciled independently (a "partial posting").
type PostedPosting struct {
	Index     int
	Reference string
}

// Tag is a generic ordered key/value pair not recognized as a structured
// field.
type Tag struct {
	Key   string
	Value string
}

// Entry is one statement-derived Account Entry.
type Entry struct {
	ID          string
	Date        Date
	Status      Status
	Description string
	Comment     string // free-text, not a structured tag

	Evidence    []string
	Postings    []Posting
	Tags        []Tag
	ExtractedBy string

	// Posted is set iff the whole entry is reconciled to a single GL
	// transaction ("general.journal:<uuid>"). Mutually exclusive with
	// PostedPostings.
	Posted string
	// PostedPostings records partial postings reconciled independently.
	PostedPostings []PostedPosting
}

// Tag returns the value of the first generic tag with the given key, and
// whether it was present.
func (e *Entry) Tag(key string) (string, bool) {
	for _, t := range e.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// SetTag sets (or replaces) a generic tag's value.
func (e *Entry) SetTag(key, value string) {
	for i := range e.Tags {
		if e.Tags[i].Key == key {
			e.Tags[i].Value = value
			return
		}
	}
	e.Tags = append(e.Tags, Tag{Key: key, Value: value})
}

// HasEvidence reports whether ref is already present in e's evidence list.
func (e *Entry) HasEvidence(ref string) bool {
	for _, ev := range e.Evidence {
		if ev == ref {
			return true
		}
	}
	return false
}

// AddEvidence appends ref to e's evidence list if not already present.
func (e *Entry) AddEvidence(ref string) {
	if !e.HasEvidence(ref) {
		e.Evidence = append(e.Evidence, ref)
	}
}

// PrimaryAmount returns the amount of the first posting that carries one,
// which by convention (and by dedup's use of it) is the entry's own side
// of the transaction rather than the unspecified balancing side.
func (e *Entry) PrimaryAmount() (Amount, bool) {
	for _, p := range e.Postings {
		if p.Amount != nil {
			return *p.Amount, true
		}
	}
	return Amount{}, false
}

// EvidenceDocument returns the document prefix of an evidence reference of
// the form "<document>:<row>:<col>" or "<document>#<anchor>".
func EvidenceDocument(ref string) string {
	if i := strings.IndexAny(ref, ":#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

// Validate checks the Account Entry invariants.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("journal: entry id must not be empty")
	}
	if e.Posted != "" && len(e.PostedPostings) > 0 {
		return fmt.Errorf("journal: entry %s has both posted and posted_postings set", e.ID)
	}
	amountless := 0
	for _, p := range e.Postings {
		if p.Amount == nil {
			amountless++
		}
	}
	if amountless > 1 {
		return fmt.Errorf("journal: entry %s has more than one amount-less posting", e.ID)
	}
	for _, ref := range e.Evidence {
		if EvidenceDocument(ref) == "" {
			return fmt.Errorf("journal: entry %s has evidence reference with empty document prefix: %q", e.ID, ref)
		}
	}
	seen := make(map[int]bool, len(e.PostedPostings))
	for _, pp := range e.PostedPostings {
		if pp.Index < 0 || pp.Index >= len(e.Postings) {
			return fmt.Errorf("journal: entry %s posted_postings index %d out of range", e.ID, pp.Index)
		}
		if seen[pp.Index] {
			return fmt.Errorf("journal: entry %s posted_postings index %d duplicated", e.ID, pp.Index)
		}
		seen[pp.Index] = true
	}
	return nil
}
