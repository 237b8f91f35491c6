package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/yonran/refreshmint/internal/dedup"
	"github.com/yonran/refreshmint/internal/journal"
	"github.com/yonran/refreshmint/internal/ledger"
)

// handleIngest merges a journal-format file of proposed transactions
// (the output of an extraction step) into one label's account journal
// through the dedup engine.
func (a *app) handleIngest(ctx context.Context, args []string) error {
	if len(args) != 5 {
		return errors.New("usage: refreshmint ingest <ledger-dir> <login> <label> <proposals-journal> <extracted-by>")
	}
	ledgerDir, login, label, proposalsPath, extractedBy := args[0], args[1], args[2], args[3], args[4]

	l, err := ledger.Open(ledgerDir)
	if err != nil {
		return err
	}
	proposals, err := journal.Read(proposalsPath)
	if err != nil {
		return err
	}

	ing := dedup.NewIngestor(l.Dir, ledger.AccountJournalLocator(login, label), l.Repo, nil)
	report, err := ing.Ingest(proposals, extractedBy)
	if err != nil {
		return err
	}

	fmt.Printf("created=%d updated=%d ambiguous=%d\n", report.Created, report.Updated, len(report.Ambiguous))
	for _, amb := range report.Ambiguous {
		fmt.Printf("ambiguous: %s %s matches existing entries %v\n",
			amb.Proposal.Date, amb.Proposal.Description, amb.Indices)
	}
	return nil
}

// handleScrape currently supports one subcommand: remove, the only
// destruction path an account entry has.
func (a *app) handleScrape(ctx context.Context, args []string) error {
	if len(args) != 5 || args[0] != "remove" {
		return errors.New("usage: refreshmint scrape remove <ledger-dir> <login> <label> <extracted-by>")
	}
	ledgerDir, login, label, extractedBy := args[1], args[2], args[3], args[4]

	l, err := ledger.Open(ledgerDir)
	if err != nil {
		return err
	}
	ing := dedup.NewIngestor(l.Dir, ledger.AccountJournalLocator(login, label), l.Repo, nil)
	removed, err := ing.RemoveScrape(extractedBy)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d entries\n", removed)
	return nil
}

func (a *app) handleRecategorize(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: refreshmint recategorize <ledger-dir> <txn-id> <counterpart-account>")
	}
	engine, err := a.openEngine(args[0])
	if err != nil {
		return err
	}
	return engine.Recategorize(args[1], args[2])
}
