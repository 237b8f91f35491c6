package dedup

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yonran/refreshmint/internal/journal"
	"github.com/yonran/refreshmint/internal/metrics"
	"github.com/yonran/refreshmint/internal/operations"
	"github.com/yonran/refreshmint/internal/rmerrors"
	"github.com/yonran/refreshmint/internal/vcs"
)

// Ingestor merges batches of proposed transactions into one account
// journal: each proposal is classified against the journal's current
// entries, the winning classification is applied, and the journal is
// rewritten atomically with an operations-log record per created entry
// and one version-control commit for the batch.
type Ingestor struct {
	// Root is the ledger directory; Locator is the account journal's
	// path relative to it (e.g. "logins/chase/accounts/checking/account.journal").
	Root    string
	Locator string

	Ops     *operations.Log
	Repo    *vcs.Repo
	Metrics *metrics.Metrics
}

// NewIngestor binds an Ingestor to one account journal. The operations
// log is the journal's sibling operations.jsonl.
func NewIngestor(root, locator string, repo *vcs.Repo, m *metrics.Metrics) *Ingestor {
	opsPath := filepath.Join(root, filepath.Dir(locator), "operations.jsonl")
	return &Ingestor{
		Root:    root,
		Locator: locator,
		Ops:     operations.Open(opsPath),
		Repo:    repo,
		Metrics: m,
	}
}

// AmbiguousProposal is one proposal the ingest run could not place: the
// user resolves it (typically via OverrideAsNew or a manual merge).
type AmbiguousProposal struct {
	Proposal *journal.Entry
	Indices  []int
}

// Report summarizes one Ingest run.
type Report struct {
	Created   int
	Updated   int
	Ambiguous []AmbiguousProposal
}

func (ing *Ingestor) journalPath() string {
	return filepath.Join(ing.Root, ing.Locator)
}

func (ing *Ingestor) opsLocator() string {
	return filepath.Dir(ing.Locator) + "/operations.jsonl"
}

// Ingest classifies and applies each proposal in order against the
// account journal. Matched entries are consumed so a later proposal in
// the same batch cannot claim them again. Ambiguous proposals are
// reported and leave no trace in the journal.
func (ing *Ingestor) Ingest(proposals []*journal.Entry, extractedBy string) (*Report, error) {
	entries, err := journal.Read(ing.journalPath())
	if err != nil {
		return nil, err
	}

	report := &Report{}
	consumed := map[int]bool{}
	mutated := false

	for _, p := range proposals {
		result := Classify(p, entries, consumed)
		if ing.Metrics != nil {
			ing.Metrics.RecordDedupOutcome(string(result.Outcome))
		}

		switch result.Outcome {
		case OutcomeAmbiguous:
			report.Ambiguous = append(report.Ambiguous, AmbiguousProposal{
				Proposal: p,
				Indices:  SortIndicesAscending(result.Indices),
			})
			continue
		case OutcomeNew:
			// applied below
		default:
			consumed[result.Index] = true
		}

		var affected *journal.Entry
		var created bool
		entries, affected, created = Apply(p, entries, result, extractedBy)
		mutated = true
		if created {
			report.Created++
			if err := ing.Ops.Append(operations.KindEntryCreated, affected.ID, map[string]any{
				"evidence":     affected.Evidence,
				"extracted_by": extractedBy,
			}); err != nil {
				return nil, err
			}
		} else {
			report.Updated++
		}
	}

	if !mutated {
		return report, nil
	}
	if err := journal.WriteAtomic(ing.journalPath(), entries); err != nil {
		return nil, err
	}
	if err := ing.commit("ingest: " + extractedBy); err != nil {
		return nil, err
	}
	return report, nil
}

// ManualAdd appends a user-authored entry to the journal, minting an id
// if the caller left it empty, and records a ManualAdd operation.
func (ing *Ingestor) ManualAdd(e *journal.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := e.Validate(); err != nil {
		return rmerrors.Wrap(rmerrors.KindInvalidInput, "manual entry", err)
	}
	if err := journal.AppendEntry(ing.journalPath(), e); err != nil {
		return err
	}
	if err := ing.Ops.Append(operations.KindManualAdd, e.ID, nil); err != nil {
		return err
	}
	return ing.commit("ingest: manual add " + e.ID)
}

// OverrideAsNew forces a proposal the classifier matched (or flagged
// ambiguous) into the journal as a fresh entry, recording the user's
// DedupOverride decision.
func (ing *Ingestor) OverrideAsNew(p *journal.Entry, extractedBy string) (*journal.Entry, error) {
	np := *p
	np.ID = uuid.NewString()
	np.ExtractedBy = extractedBy
	if err := np.Validate(); err != nil {
		return nil, rmerrors.Wrap(rmerrors.KindInvalidInput, "override entry", err)
	}
	if err := journal.AppendEntry(ing.journalPath(), &np); err != nil {
		return nil, err
	}
	if err := ing.Ops.Append(operations.KindDedupOverride, np.ID, map[string]any{
		"evidence": np.Evidence,
	}); err != nil {
		return nil, err
	}
	if err := ing.commit("ingest: override " + np.ID); err != nil {
		return nil, err
	}
	return &np, nil
}

// RemoveScrape deletes every entry stamped with the given extracted_by
// value, the one destruction path an Account Entry has. Entries already
// posted to the general ledger are refused, since removing them would
// strand their GL transaction's source reference.
func (ing *Ingestor) RemoveScrape(extractedBy string) (removed int, err error) {
	if strings.TrimSpace(extractedBy) == "" {
		return 0, rmerrors.InvalidInput("extracted_by", "must be non-empty")
	}
	entries, err := journal.Read(ing.journalPath())
	if err != nil {
		return 0, err
	}

	kept := entries[:0]
	var removedIDs []string
	for _, e := range entries {
		if e.ExtractedBy != extractedBy {
			kept = append(kept, e)
			continue
		}
		if e.Posted != "" || len(e.PostedPostings) > 0 {
			return 0, rmerrors.Conflict("entry " + e.ID + " is posted and cannot be removed; unpost it first")
		}
		removedIDs = append(removedIDs, e.ID)
	}
	if len(removedIDs) == 0 {
		return 0, nil
	}

	if err := journal.WriteAtomic(ing.journalPath(), kept); err != nil {
		return 0, err
	}
	if err := ing.Ops.Append(operations.KindScrapeRemoval, "", map[string]any{
		"extracted_by": extractedBy,
		"entry_ids":    removedIDs,
	}); err != nil {
		return 0, err
	}
	if err := ing.commit("ingest: remove scrape " + extractedBy); err != nil {
		return 0, err
	}
	return len(removedIDs), nil
}

func (ing *Ingestor) commit(msg string) error {
	if ing.Repo == nil {
		return nil
	}
	paths := []string{ing.Locator}
	// The ops log is created lazily on first append; an ingest run that
	// only updated existing entries never touches it.
	if _, err := os.Stat(filepath.Join(ing.Root, ing.opsLocator())); err == nil {
		paths = append(paths, ing.opsLocator())
	}
	return ing.Repo.CommitFiles(msg, paths)
}
