package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yonran/refreshmint/internal/categorize"
	"github.com/yonran/refreshmint/internal/gl"
	"github.com/yonran/refreshmint/internal/journal"
	"github.com/yonran/refreshmint/internal/ledger"
	"github.com/yonran/refreshmint/internal/reconcile"
	"github.com/yonran/refreshmint/internal/rmerrors"
)

// handleSuggest prints the categorization engine's three signals for one
// account entry: a counterpart-account suggestion from the trained
// classifier, amount/status drift against its posted GL transaction, and
// a transfer-counterpart candidate from the other accounts.
func (a *app) handleSuggest(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return errors.New("usage: refreshmint suggest <ledger-dir> <login> <label> <entry-id>")
	}
	l, err := ledger.Open(args[0])
	if err != nil {
		return err
	}
	login, label, entryID := args[1], args[2], args[3]
	locator := ledger.AccountJournalLocator(login, label)

	journals, err := loadAccountJournals(l)
	if err != nil {
		return err
	}
	entry := findJournalEntry(journals[locator], entryID)
	if entry == nil {
		return rmerrors.NotFound("entry", entryID)
	}

	txns, err := gl.Read(l.GeneralJournalPath())
	if err != nil {
		return err
	}
	lookup := func(loc, id string) (*journal.Entry, bool) {
		e := findJournalEntry(journals[loc], id)
		return e, e != nil
	}

	global, account := categorize.BuildTrainingExamples(txns, lookup, locator, reconcile.GeneratedByStamp)
	alpha := a.cfg.Categorize.LaplaceAlpha
	globalModel, _ := categorize.Fit(global, alpha)
	accountModel, _ := categorize.Fit(account, alpha)

	tokens := categorize.TokenizeEntry(entry)
	if suggestion, ok := categorize.Suggest(globalModel, accountModel, len(account), tokens); ok {
		fmt.Printf("category: %s\n", suggestion)
	} else {
		fmt.Println("category: no suggestion")
	}

	if entry.Posted != "" {
		txnID := strings.TrimPrefix(entry.Posted, "general.journal:")
		if txn, found := gl.FindByID(txns, txnID); found {
			drift := categorize.DetectDrift(entry, txn)
			if drift.AmountChanged {
				fmt.Println("drift: amount changed since posting")
			}
			if drift.StatusChanged {
				fmt.Println("drift: status changed since posting")
			}
		}
	}

	if categorize.IsProbableTransfer(entry) {
		printTransferSuggestion(entry, locator, journals)
	}
	return nil
}

// loadAccountJournals reads every logins/<login>/accounts/<label>/
// account.journal under the ledger, keyed by its locator.
func loadAccountJournals(l *ledger.Ledger) (map[string][]*journal.Entry, error) {
	journals := map[string][]*journal.Entry{}
	loginsDir := filepath.Join(l.Dir, "logins")
	logins, err := os.ReadDir(loginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return journals, nil
		}
		return nil, rmerrors.IOFault("list logins", err)
	}
	for _, login := range logins {
		if !login.IsDir() {
			continue
		}
		accountsDir := filepath.Join(loginsDir, login.Name(), "accounts")
		labels, err := os.ReadDir(accountsDir)
		if err != nil {
			continue
		}
		for _, label := range labels {
			if !label.IsDir() {
				continue
			}
			locator := ledger.AccountJournalLocator(login.Name(), label.Name())
			entries, err := journal.Read(filepath.Join(l.Dir, locator))
			if err != nil {
				return nil, err
			}
			journals[locator] = entries
		}
	}
	return journals, nil
}

func findJournalEntry(entries []*journal.Entry, id string) *journal.Entry {
	for _, e := range entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// printTransferSuggestion scans the other accounts' unposted entries for
// a transfer counterpart. A unique match by commodity/amount/date is
// printed as the suggestion; otherwise the candidates are ranked with
// the general-purpose scoring function and the best three are printed,
// best first, for the user to resolve.
func printTransferSuggestion(entry *journal.Entry, locator string, journals map[string][]*journal.Entry) {
	primary, ok := entry.PrimaryAmount()
	if !ok {
		return
	}
	entryAmount, err := primary.Float64()
	if err != nil {
		return
	}

	type scored struct {
		locator string
		entry   *journal.Entry
		score   float64
	}
	var candidates []categorize.TransferCandidate
	var ranked []scored

	for loc, entries := range journals {
		if loc == locator {
			continue
		}
		for _, e := range entries {
			if e.Posted != "" || len(e.PostedPostings) > 0 {
				continue
			}
			amt, ok := e.PrimaryAmount()
			if !ok || amt.Commodity != primary.Commodity {
				continue
			}
			f, err := amt.Float64()
			if err != nil {
				continue
			}
			candidates = append(candidates, categorize.TransferCandidate{
				Locator:   loc,
				EntryID:   e.ID,
				Date:      e.Date,
				Amount:    f,
				Commodity: amt.Commodity,
			})
			ranked = append(ranked, scored{
				locator: loc,
				entry:   e,
				score: categorize.ScoreTransferCandidate(entry, e,
					entryAmount*f < 0, transferDescriptionsSimilar(entry.Description, e.Description)),
			})
		}
	}

	if match, ok := categorize.FindTransferMatch(entry, candidates); ok {
		fmt.Printf("transfer: %s %s\n", match.AccountLocator, match.EntryID)
		return
	}
	if len(ranked) == 0 {
		fmt.Println("transfer: no candidates")
		return
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })
	fmt.Println("transfer: no unique match; candidates (best first):")
	for i, c := range ranked {
		if i == 3 {
			break
		}
		fmt.Printf("  %s %s (%s %s, score %.0f)\n", c.locator, c.entry.ID, c.entry.Date, c.entry.Description, c.score)
	}
}

func transferDescriptionsSimilar(a, b string) bool {
	na := strings.ToUpper(strings.TrimSpace(a))
	nb := strings.ToUpper(strings.TrimSpace(b))
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}
