package categorize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yonran/refreshmint/internal/gl"
	"github.com/yonran/refreshmint/internal/journal"
)

func makeEntry(id, desc string, tags []journal.Tag) *journal.Entry {
	return &journal.Entry{
		ID:          id,
		Date:        journal.Date{Year: 2024, Month: 1, Day: 15},
		Status:      journal.StatusCleared,
		Description: desc,
		Tags:        tags,
		Postings: []journal.Posting{
			{Account: "assets:checking", Amount: &journal.Amount{Quantity: "-21.32", Commodity: "USD"}},
		},
	}
}

func TestTokenizeTextProducesUppercaseWords(t *testing.T) {
	tokens := TokenizeText("Shell Oil 123 & Gas")
	require.Contains(t, tokens, "SHELL")
	require.Contains(t, tokens, "OIL")
	require.Contains(t, tokens, "GAS")
	for _, tok := range tokens {
		require.NotContains(t, tok, "1")
	}
}

func TestTokenizeEntryIncludesTags(t *testing.T) {
	e := makeEntry("e1", "Grocery Store", []journal.Tag{{Key: "category", Value: "Groceries"}})
	tokens := TokenizeEntry(e)
	require.Contains(t, tokens, "GROCERY")
	require.Contains(t, tokens, "category:Groceries")
}

func TestFitReturnsFalseForSingleClass(t *testing.T) {
	examples := []Example{
		{Tokens: []string{"SAFEWAY"}, Counterpart: "Expenses:Groceries"},
		{Tokens: []string{"KROGER"}, Counterpart: "Expenses:Groceries"},
	}
	_, ok := Fit(examples, 1.0)
	require.False(t, ok)
}

func TestFitSuggestsKnownTokenFromSeeds(t *testing.T) {
	model, ok := Fit(SeedExamples(), 1.0)
	require.True(t, ok)

	proba := model.PredictProba([]string{"SAFEWAY"})
	var best string
	var bestP float64
	for class, p := range proba {
		if p > bestP {
			best, bestP = class, p
		}
	}
	require.Equal(t, "Expenses:Groceries", best)
}

func TestPredictAbstainsOnUnknownToken(t *testing.T) {
	model, ok := Fit(SeedExamples(), 1.0)
	require.True(t, ok)

	proba := model.PredictProba([]string{"ZZZZUNKNOWNMERCHANT"})
	var bestP float64
	for _, p := range proba {
		if p > bestP {
			bestP = p
		}
	}
	require.Less(t, bestP, ConfidenceThreshold)
}

func TestSuggestCategoryReturnsGroceriesForSafeway(t *testing.T) {
	var examples []Example
	for i := 0; i < 20; i++ {
		examples = append(examples, Example{Tokens: []string{"SAFEWAY"}, Counterpart: "Expenses:Groceries"})
	}
	for i := 0; i < 5; i++ {
		examples = append(examples, Example{Tokens: []string{"STARBUCKS"}, Counterpart: "Expenses:Dining"})
	}
	model, ok := Fit(examples, 1.0)
	require.True(t, ok)

	entry := makeEntry("e1", "SAFEWAY #123", nil)
	suggestion, ok := Suggest(model, nil, 0, TokenizeEntry(entry))
	require.True(t, ok)
	require.Equal(t, "Expenses:Groceries", suggestion)
}

func TestSuggestAbstainsForUnknownMerchant(t *testing.T) {
	model, ok := Fit(SeedExamples(), 1.0)
	require.True(t, ok)

	entry := makeEntry("e1", "ZZMYSTERYMERCHANT", nil)
	_, ok = Suggest(model, nil, 0, TokenizeEntry(entry))
	require.False(t, ok)
}

func TestFindTransferMatchUniqueCandidate(t *testing.T) {
	entry := makeEntry("e1", "Transfer out", nil)
	candidates := []TransferCandidate{
		{Locator: "logins/boa/accounts/savings", EntryID: "txn-b", Date: journal.Date{Year: 2024, Month: 1, Day: 15}, Amount: 21.32, Commodity: "USD"},
	}
	match, ok := FindTransferMatch(entry, candidates)
	require.True(t, ok)
	require.Equal(t, "txn-b", match.EntryID)
}

func TestFindTransferMatchTwoCandidatesReturnsNone(t *testing.T) {
	entry := makeEntry("e1", "Transfer out", nil)
	candidates := []TransferCandidate{
		{Locator: "logins/boa/accounts/savings", EntryID: "txn-b", Date: journal.Date{Year: 2024, Month: 1, Day: 15}, Amount: 21.32, Commodity: "USD"},
		{Locator: "logins/boa/accounts/checking", EntryID: "txn-c", Date: journal.Date{Year: 2024, Month: 1, Day: 15}, Amount: 21.32, Commodity: "USD"},
	}
	_, ok := FindTransferMatch(entry, candidates)
	require.False(t, ok)
}

func TestFindTransferMatchDifferentCommodityReturnsNone(t *testing.T) {
	entry := makeEntry("e1", "Transfer out", nil)
	candidates := []TransferCandidate{
		{Locator: "logins/boa/accounts/savings", EntryID: "txn-b", Date: journal.Date{Year: 2024, Month: 1, Day: 15}, Amount: 21.32, Commodity: "EUR"},
	}
	_, ok := FindTransferMatch(entry, candidates)
	require.False(t, ok)
}

func TestFindTransferMatchOutsideDateWindowReturnsNone(t *testing.T) {
	entry := makeEntry("e1", "Transfer out", nil)
	candidates := []TransferCandidate{
		{Locator: "logins/boa/accounts/savings", EntryID: "txn-b", Date: journal.Date{Year: 2024, Month: 1, Day: 19}, Amount: 21.32, Commodity: "USD"},
	}
	_, ok := FindTransferMatch(entry, candidates)
	require.False(t, ok)
}

func TestIsProbableTransferMatchesPatternOrTag(t *testing.T) {
	require.True(t, IsProbableTransfer(makeEntry("e1", "Online Transfer to Savings", nil)))
	require.True(t, IsProbableTransfer(makeEntry("e2", "Misc", []journal.Tag{{Key: "isTransfer", Value: "true"}})))
	require.False(t, IsProbableTransfer(makeEntry("e3", "Coffee Shop", nil)))
}

func TestDetectDriftFlagsAmountAndStatusChange(t *testing.T) {
	entry := makeEntry("e1", "Coffee", nil)
	entry.Status = journal.StatusPending

	txn := &gl.Transaction{
		ID:     "t1",
		Status: journal.StatusCleared,
		Postings: []journal.Posting{
			{Account: "assets:checking", Amount: &journal.Amount{Quantity: "-25.00", Commodity: "USD"}},
			{Account: "expenses:dining"},
		},
	}

	result := DetectDrift(entry, txn)
	require.True(t, result.AmountChanged)
	require.True(t, result.StatusChanged)
}

func TestDetectDriftReportsNoChangeWhenInSync(t *testing.T) {
	entry := makeEntry("e1", "Coffee", nil)
	txn := &gl.Transaction{
		ID:     "t1",
		Status: journal.StatusCleared,
		Postings: []journal.Posting{
			{Account: "assets:checking", Amount: &journal.Amount{Quantity: "-21.32", Commodity: "USD"}},
			{Account: "expenses:dining"},
		},
	}

	result := DetectDrift(entry, txn)
	require.False(t, result.AmountChanged)
	require.False(t, result.StatusChanged)
}

func TestBuildTrainingExamplesFiltersBySourceAndGeneratedBy(t *testing.T) {
	entries := map[string]*journal.Entry{
		"logins/chase/accounts/checking:e1": makeEntry("e1", "SAFEWAY #1", nil),
		"logins/boa/accounts/checking:e2":   makeEntry("e2", "SHELL OIL", nil),
	}
	lookup := func(locator, entryID string) (*journal.Entry, bool) {
		e, ok := entries[locator+":"+entryID]
		return e, ok
	}

	txns := []*gl.Transaction{
		{
			ID:          "t1",
			GeneratedBy: "reconcile/post@0.1.0",
			Sources:     []gl.Source{{Locator: "logins/chase/accounts/checking", EntryID: "e1"}},
			Postings: []journal.Posting{
				{Account: "assets:checking", Amount: &journal.Amount{Quantity: "-21.32", Commodity: "USD"}},
				{Account: "expenses:groceries"},
			},
		},
		{
			ID:          "t2",
			GeneratedBy: "reconcile/post@0.1.0",
			Sources:     []gl.Source{{Locator: "logins/boa/accounts/checking", EntryID: "e2"}},
			Postings: []journal.Posting{
				{Account: "assets:checking", Amount: &journal.Amount{Quantity: "-40.00", Commodity: "USD"}},
				{Account: "expenses:gas"},
			},
		},
		{
			ID:          "t3",
			GeneratedBy: "other-tool",
			Sources:     []gl.Source{{Locator: "logins/chase/accounts/checking", EntryID: "e1"}},
			Postings: []journal.Posting{
				{Account: "assets:checking", Amount: &journal.Amount{Quantity: "-21.32", Commodity: "USD"}},
				{Account: "expenses:groceries"},
			},
		},
	}

	global, account := BuildTrainingExamples(txns, lookup, "logins/chase/accounts/checking", "reconcile/post@0.1.0")
	require.Len(t, global, len(SeedExamples())+2)
	require.Len(t, account, 1)
	require.Equal(t, "expenses:groceries", account[0].Counterpart)
}
