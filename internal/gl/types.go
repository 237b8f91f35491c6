// Package gl implements the general-ledger side of the Journal Store: the
// format and parser for general.journal transaction blocks. It reuses the
// journal package's Date/Status/Posting/Amount types and tag-line grammar
// rather than duplicating them.
package gl

import (
	"fmt"
	"strings"

	"github.com/yonran/refreshmint/internal/journal"
)

// Source is a "<locator>:<entry_id>" tag identifying one account entry
// that a GL transaction reconciles.
type Source struct {
	Locator string // e.g. "logins/chase/accounts/checking/account.journal"
	EntryID string
}

func (s Source) String() string { return fmt.Sprintf("%s:%s", s.Locator, s.EntryID) }

// ParseSource parses a "<locator>:<entry_id>" string. The entry id is the
// text after the last colon; the locator is everything before it.
func ParseSource(s string) (Source, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx <= 0 || idx == len(s)-1 {
		return Source{}, fmt.Errorf("gl: malformed source locator %q", s)
	}
	return Source{Locator: s[:idx], EntryID: s[idx+1:]}, nil
}

// Transaction is a general-ledger transaction block.
type Transaction struct {
	ID          string
	Date        journal.Date
	Status      journal.Status
	Description string

	GeneratedBy string
	Sources     []Source // 1 or 2
	Evidence    []string

	Postings []journal.Posting
}

// Validate checks the invariants applicable to a GL transaction: a
// non-empty id, one or two sources, and at most one amount-less posting.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("gl: transaction id must not be empty")
	}
	if len(t.Sources) == 0 || len(t.Sources) > 2 {
		return fmt.Errorf("gl: transaction %s must have 1 or 2 sources, has %d", t.ID, len(t.Sources))
	}
	amountless := 0
	for _, p := range t.Postings {
		if p.Amount == nil {
			amountless++
		}
	}
	if amountless > 1 {
		return fmt.Errorf("gl: transaction %s has more than one amount-less posting", t.ID)
	}
	return nil
}

// Reference returns the "general.journal:<id>" locator other files use to
// point at this transaction.
func (t *Transaction) Reference() string {
	return "general.journal:" + t.ID
}
