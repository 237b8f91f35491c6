package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/yonran/refreshmint/internal/reconcile"
	"github.com/yonran/refreshmint/internal/vcs"
)

func (a *app) openEngine(ledgerDir string) (*reconcile.Engine, error) {
	repo, err := vcs.Open(ledgerDir)
	if err != nil {
		return nil, err
	}
	return reconcile.New(ledgerDir, repo, nil), nil
}

func (a *app) handlePost(ctx context.Context, args []string) error {
	if len(args) < 4 || len(args) > 5 {
		return errors.New("usage: refreshmint post <ledger-dir> <locator> <entry-id> <counterpart-account> [posting-index]")
	}
	engine, err := a.openEngine(args[0])
	if err != nil {
		return err
	}
	var postingIndex *int
	if len(args) == 5 {
		idx, err := strconv.Atoi(args[4])
		if err != nil {
			return fmt.Errorf("posting-index: %w", err)
		}
		postingIndex = &idx
	}
	txnID, err := engine.Post(args[1], args[2], args[3], postingIndex)
	if err != nil {
		return err
	}
	fmt.Println(txnID)
	return nil
}

func (a *app) handleUnpost(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: refreshmint unpost <ledger-dir> <txn-id>")
	}
	engine, err := a.openEngine(args[0])
	if err != nil {
		return err
	}
	return engine.Unpost(args[1])
}

func (a *app) handleTransfer(ctx context.Context, args []string) error {
	if len(args) != 5 {
		return errors.New("usage: refreshmint transfer <ledger-dir> <locator1> <entry-id1> <locator2> <entry-id2>")
	}
	engine, err := a.openEngine(args[0])
	if err != nil {
		return err
	}
	txnID, err := engine.Transfer(args[1], args[2], args[3], args[4])
	if err != nil {
		return err
	}
	fmt.Println(txnID)
	return nil
}

func (a *app) handleSync(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: refreshmint sync <ledger-dir> <locator> <entry-id>")
	}
	engine, err := a.openEngine(args[0])
	if err != nil {
		return err
	}
	return engine.Sync(args[1], args[2])
}

func (a *app) handleMerge(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: refreshmint merge <ledger-dir> <txn-id1> <txn-id2>")
	}
	engine, err := a.openEngine(args[0])
	if err != nil {
		return err
	}
	newID, err := engine.Merge(args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Println(newID)
	return nil
}
