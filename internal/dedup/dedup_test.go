package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yonran/refreshmint/internal/journal"
)

func mkEntry(id, date, desc, amount, evidence string, status journal.Status) *journal.Entry {
	d, err := journal.ParseDate(date)
	if err != nil {
		panic(err)
	}
	e := &journal.Entry{
		ID:          id,
		Date:        d,
		Status:      status,
		Description: desc,
		Postings: []journal.Posting{
			{Account: "assets:checking", Amount: &journal.Amount{Quantity: amount, Commodity: "USD"}},
			{Account: "expenses:unknown"},
		},
	}
	if evidence != "" {
		e.Evidence = []string{evidence}
	}
	return e
}

func TestSameEvidenceUpdate(t *testing.T) {
	existing := []*journal.Entry{
		mkEntry("e1", "2024-01-01", "Old", "-21.32", "doc-a.csv:1:1", journal.StatusCleared),
	}
	proposal := mkEntry("", "2024-01-01", "New", "-21.32", "doc-a.csv:1:1", journal.StatusCleared)

	result := Classify(proposal, existing, nil)
	require.Equal(t, OutcomeSameEvidence, result.Outcome)
	require.True(t, result.Updated)

	updated, affected, created := Apply(proposal, existing, result, "")
	require.False(t, created)
	require.Equal(t, "New", affected.Description)
	require.Len(t, updated, 1)
}

func TestCrossDocumentFuzzyMatch(t *testing.T) {
	existing := []*journal.Entry{
		mkEntry("e1", "2024-01-01", "SHELL OIL 12345", "-21.32", "doc-a.csv:1:1", journal.StatusCleared),
	}
	proposal := mkEntry("", "2024-01-01", "SHELL OIL 12345", "-21.32", "doc-b.csv:1:1", journal.StatusCleared)

	result := Classify(proposal, existing, nil)
	require.Equal(t, OutcomeFuzzyMatch, result.Outcome)

	_, affected, _ := Apply(proposal, existing, result, "")
	require.Len(t, affected.Evidence, 2)
}

func TestBankIDMatchAcrossDocuments(t *testing.T) {
	e := mkEntry("e1", "2024-01-01", "SHELL OIL", "-21.32", "doc-a.csv:1:1", journal.StatusCleared)
	e.SetTag("bankId", "FIT123")
	existing := []*journal.Entry{e}

	proposal := mkEntry("", "2024-01-01", "SHELL OIL", "-21.32", "doc-b.csv:1:1", journal.StatusCleared)
	proposal.SetTag("bankId", "FIT123")

	result := Classify(proposal, existing, nil)
	require.Equal(t, OutcomeBankIDMatch, result.Outcome)
}

func TestBankIDMatchFallsThroughWhenDocumentOverlaps(t *testing.T) {
	e := mkEntry("e1", "2024-01-01", "SHELL OIL", "-21.32", "doc-a.csv:1:1", journal.StatusCleared)
	e.SetTag("bankId", "FIT123")
	existing := []*journal.Entry{e}

	proposal := mkEntry("", "2024-01-01", "SHELL OIL", "-21.32", "doc-a.csv:2:1", journal.StatusCleared)
	proposal.SetTag("bankId", "FIT123")

	result := Classify(proposal, existing, nil)
	require.NotEqual(t, OutcomeBankIDMatch, result.Outcome)
}

func TestPendingToFinalized(t *testing.T) {
	existing := []*journal.Entry{
		mkEntry("e1", "2024-01-01", "Pending Charge", "-100.00", "doc-a.csv:1:1", journal.StatusPending),
	}
	proposal := mkEntry("", "2024-01-05", "Pending Charge Final", "-102.00", "doc-b.csv:1:1", journal.StatusCleared)

	result := Classify(proposal, existing, nil)
	require.Equal(t, OutcomePendingToFinalized, result.Outcome)

	_, affected, _ := Apply(proposal, existing, result, "")
	require.Equal(t, journal.StatusCleared, affected.Status)
}

func TestPendingToFinalizedOnlyAppliesWhenProposalCleared(t *testing.T) {
	existing := []*journal.Entry{
		mkEntry("e1", "2024-01-01", "Pending Charge", "-100.00", "doc-a.csv:1:1", journal.StatusPending),
	}
	proposal := mkEntry("", "2024-01-05", "Pending Charge Again", "-100.00", "doc-b.csv:1:1", journal.StatusPending)

	result := Classify(proposal, existing, nil)
	require.NotEqual(t, OutcomePendingToFinalized, result.Outcome)
}

func TestAmbiguousWithTwoFuzzyCandidates(t *testing.T) {
	existing := []*journal.Entry{
		mkEntry("e1", "2024-01-01", "COFFEE SHOP", "-5.00", "doc-a.csv:1:1", journal.StatusCleared),
		mkEntry("e2", "2024-01-01", "COFFEE SHOP", "-5.00", "doc-a.csv:2:1", journal.StatusCleared),
	}
	proposal := mkEntry("", "2024-01-01", "COFFEE SHOP", "-5.00", "doc-b.csv:1:1", journal.StatusCleared)

	result := Classify(proposal, existing, nil)
	require.Equal(t, OutcomeAmbiguous, result.Outcome)
	require.ElementsMatch(t, []int{0, 1}, result.Indices)
}

func TestNewSynthesizesIDAndStampsExtractedBy(t *testing.T) {
	proposal := mkEntry("", "2024-01-01", "Unmatched", "-5.00", "doc-a.csv:1:1", journal.StatusCleared)

	result := Classify(proposal, nil, nil)
	require.Equal(t, OutcomeNew, result.Outcome)

	updated, affected, created := Apply(proposal, nil, result, "chase-driver:1.0")
	require.True(t, created)
	require.NotEmpty(t, affected.ID)
	require.Equal(t, "chase-driver:1.0", affected.ExtractedBy)
	require.Len(t, updated, 1)
}

func TestDateBoundaryExactlyAtFuzzyTolerance(t *testing.T) {
	existing := []*journal.Entry{
		mkEntry("e1", "2024-01-01", "SHELL OIL", "-21.32", "doc-a.csv:1:1", journal.StatusCleared),
	}
	withinTolerance := mkEntry("", "2024-01-02", "SHELL OIL", "-21.32", "doc-b.csv:1:1", journal.StatusCleared)
	require.Equal(t, OutcomeFuzzyMatch, Classify(withinTolerance, existing, nil).Outcome)

	beyondTolerance := mkEntry("", "2024-01-03", "SHELL OIL", "-21.32", "doc-b.csv:1:1", journal.StatusCleared)
	require.NotEqual(t, OutcomeFuzzyMatch, Classify(beyondTolerance, existing, nil).Outcome)
}

func TestConsumedEntriesAreSkipped(t *testing.T) {
	existing := []*journal.Entry{
		mkEntry("e1", "2024-01-01", "SHELL OIL", "-21.32", "doc-a.csv:1:1", journal.StatusCleared),
	}
	proposal := mkEntry("", "2024-01-01", "SHELL OIL", "-21.32", "doc-b.csv:1:1", journal.StatusCleared)

	result := Classify(proposal, existing, map[int]bool{0: true})
	require.Equal(t, OutcomeNew, result.Outcome)
}
