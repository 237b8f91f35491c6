package gl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yonran/refreshmint/internal/journal"
)

func sampleTxn(id string) *Transaction {
	return &Transaction{
		ID:          id,
		Date:        journal.Date{Year: 2026, Month: 1, Day: 15},
		Status:      journal.StatusCleared,
		Description: "Grocery Store",
		GeneratedBy: "reconcile/post@0.1.0",
		Sources: []Source{
			{Locator: "logins/chase/accounts/checking/account.journal", EntryID: id},
		},
		Evidence: []string{"logins/chase/accounts/checking/documents/2026-01-15-receipt.pdf"},
		Postings: []journal.Posting{
			{Account: "assets:checking", Amount: &journal.Amount{Quantity: "-42.17", Commodity: "USD"}},
			{Account: "expenses:groceries"},
		},
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	txn := sampleTxn("gl-001")
	formatted := Format(txn)

	parsed, err := ParseBlocks("general.journal", formatted)
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	got := parsed[0]
	require.Equal(t, txn.ID, got.ID)
	require.Equal(t, txn.GeneratedBy, got.GeneratedBy)
	require.Equal(t, txn.Sources, got.Sources)
	require.Equal(t, txn.Evidence, got.Evidence)
	require.Len(t, got.Postings, 2)
	require.Equal(t, "-42.17", got.Postings[0].Amount.Quantity)
	require.Nil(t, got.Postings[1].Amount)
}

func TestTransactionRequiresOneOrTwoSources(t *testing.T) {
	txn := sampleTxn("gl-002")
	txn.Sources = nil
	require.Error(t, txn.Validate())

	txn.Sources = []Source{
		{Locator: "a", EntryID: "1"},
		{Locator: "b", EntryID: "2"},
	}
	require.NoError(t, txn.Validate())

	txn.Sources = append(txn.Sources, Source{Locator: "c", EntryID: "3"})
	require.Error(t, txn.Validate())
}

func TestParseSourceRoundTrip(t *testing.T) {
	src, err := ParseSource("logins/chase/accounts/checking/account.journal:abc123")
	require.NoError(t, err)
	require.Equal(t, "logins/chase/accounts/checking/account.journal", src.Locator)
	require.Equal(t, "abc123", src.EntryID)
	require.Equal(t, "logins/chase/accounts/checking/account.journal:abc123", src.String())
}

func TestWriteAtomicThenRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "general.journal")

	txns := []*Transaction{sampleTxn("gl-010"), sampleTxn("gl-011")}
	require.NoError(t, WriteAtomic(path, txns))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "gl-010", got[0].ID)
	require.Equal(t, "gl-011", got[1].ID)
}

func TestReadNonexistentFileYieldsEmptySlice(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "missing.journal"))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got, 0)
}

func TestAppendTransactionDoesNotEmitLeadingBlankLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "general.journal")

	require.NoError(t, AppendTransaction(path, sampleTxn("gl-020")))
	require.NoError(t, AppendTransaction(path, sampleTxn("gl-021")))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestRemoveReplaceFindByID(t *testing.T) {
	txns := []*Transaction{sampleTxn("gl-a"), sampleTxn("gl-b"), sampleTxn("gl-c")}

	found, ok := FindByID(txns, "gl-b")
	require.True(t, ok)
	require.Equal(t, "gl-b", found.ID)

	removed, ok := RemoveByID(txns, "gl-b")
	require.True(t, ok)
	require.Len(t, removed, 2)
	_, ok = FindByID(removed, "gl-b")
	require.False(t, ok)

	replacement := sampleTxn("gl-b")
	replacement.Description = "Corrected description"
	replaced, ok := ReplaceByID(txns, "gl-b", replacement)
	require.True(t, ok)
	require.Len(t, replaced, 3)
	require.Equal(t, "Corrected description", replaced[1].Description)

	_, ok = RemoveByID(txns, "gl-nonexistent")
	require.False(t, ok)
}
