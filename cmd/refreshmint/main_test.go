package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yonran/refreshmint/internal/journal"
)

func TestRunLedgerLoginLabelLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "books.refreshmint")

	require.NoError(t, run(context.Background(), []string{"ledger", "create", dir}))
	require.NoError(t, run(context.Background(), []string{"ledger", "login", "add", dir, "chase"}))
	require.NoError(t, run(context.Background(), []string{"ledger", "label", "add", dir, "chase", "checking"}))

	_, err := os.Stat(filepath.Join(dir, "logins", "chase", "accounts", "checking", "account.journal"))
	require.NoError(t, err)
}

func TestRunPostCreatesGLTransaction(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "books.refreshmint")
	require.NoError(t, run(context.Background(), []string{"ledger", "create", dir}))
	require.NoError(t, run(context.Background(), []string{"ledger", "login", "add", dir, "chase"}))
	require.NoError(t, run(context.Background(), []string{"ledger", "label", "add", dir, "chase", "checking"}))

	locator := "logins/chase/accounts/checking/account.journal"
	entry := &journal.Entry{
		ID:          "txn-1",
		Date:        journal.Date{Year: 2026, Month: 1, Day: 5},
		Status:      journal.StatusPending,
		Description: "Coffee shop",
		Postings:    []journal.Posting{{Account: "assets:checking", Amount: &journal.Amount{Commodity: "USD", Quantity: "-4.50"}}},
	}
	require.NoError(t, journal.WriteAtomic(filepath.Join(dir, locator), []*journal.Entry{entry}))

	out := captureStdout(t, func() {
		require.NoError(t, run(context.Background(), []string{"post", dir, locator, "txn-1", "expenses:dining"}))
	})
	require.NotEmpty(t, out)
}

func TestRunSuggestFindsTransferCounterpart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "books.refreshmint")
	require.NoError(t, run(context.Background(), []string{"ledger", "create", dir}))
	require.NoError(t, run(context.Background(), []string{"ledger", "login", "add", dir, "chase"}))
	require.NoError(t, run(context.Background(), []string{"ledger", "label", "add", dir, "chase", "checking"}))
	require.NoError(t, run(context.Background(), []string{"ledger", "label", "add", dir, "chase", "savings"}))

	out := &journal.Entry{
		ID:          "out-1",
		Date:        journal.Date{Year: 2026, Month: 2, Day: 1},
		Status:      journal.StatusCleared,
		Description: "Online Transfer to Savings",
		Postings:    []journal.Posting{{Account: "assets:checking", Amount: &journal.Amount{Commodity: "USD", Quantity: "-500.00"}}},
	}
	in := &journal.Entry{
		ID:          "in-1",
		Date:        journal.Date{Year: 2026, Month: 2, Day: 2},
		Status:      journal.StatusCleared,
		Description: "Online Transfer from Checking",
		Postings:    []journal.Posting{{Account: "assets:savings", Amount: &journal.Amount{Commodity: "USD", Quantity: "500.00"}}},
	}
	require.NoError(t, journal.WriteAtomic(filepath.Join(dir, "logins/chase/accounts/checking/account.journal"), []*journal.Entry{out}))
	require.NoError(t, journal.WriteAtomic(filepath.Join(dir, "logins/chase/accounts/savings/account.journal"), []*journal.Entry{in}))

	output := captureStdout(t, func() {
		require.NoError(t, run(context.Background(), []string{"suggest", dir, "chase", "checking", "out-1"}))
	})
	require.Contains(t, output, "transfer: logins/chase/accounts/savings/account.journal in-1")
}

func TestRunUnknownCommandErrors(t *testing.T) {
	err := run(context.Background(), []string{"bogus"})
	require.Error(t, err)
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	old := os.Stdout
	os.Stdout = w
	fn()
	os.Stdout = old
	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}
