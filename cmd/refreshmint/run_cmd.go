package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/yonran/refreshmint/internal/browser"
	"github.com/yonran/refreshmint/internal/ledger"
	"github.com/yonran/refreshmint/internal/rmerrors"
	"github.com/yonran/refreshmint/internal/sandbox"
	"github.com/yonran/refreshmint/internal/secretstore"
)

// handleRun launches a browser profile for one login, holds the login's
// advisory lock for the duration of the scrape session, and executes the
// extension's driver script against the live page. Downloaded resources
// are staged during the run and finalized into the label's documents
// directory only after the driver completes.
func (a *app) handleRun(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return errors.New("usage: refreshmint run <ledger-dir> <login> <label> <driver-script-path>")
	}
	ledgerDir, login, label, scriptPath := args[0], args[1], args[2], args[3]

	l, err := ledger.Open(ledgerDir)
	if err != nil {
		return err
	}
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return err
	}

	lock := flock.New(l.LoginLockPath(login))
	locked, err := lock.TryLock()
	if err != nil {
		return rmerrors.IOFault("acquire login lock", err)
	}
	if !locked {
		return rmerrors.Conflict("login " + login + " is locked by another process")
	}
	defer lock.Unlock()

	execPath := a.cfg.Browser.ExecutablePath
	if execPath == "" {
		execPath, err = browser.FindExecutable()
		if err != nil {
			return err
		}
	}
	userDataDir := browser.UserDataDirFor(ledgerDir, login)
	b, err := browser.Launch(ctx, execPath, userDataDir)
	if err != nil {
		return err
	}
	defer b.Close()

	store := secretstore.Open(keychainFor(login), login)

	rt := sandbox.New(browser.NewPage(b), sandbox.Options{
		Secrets:    sandbox.NewStoreResolver(store),
		OutputDir:  l.DocumentsDir(login, label),
		StagingDir: filepath.Join(l.LabelDir(login, label), ".staging"),
	})

	result := rt.RunDriver(ctx, string(source))
	if result.Outcome == sandbox.OutcomeRejected {
		return result.Error
	}
	if _, err := rt.FinalizeResources(); err != nil {
		return err
	}
	for key, value := range result.ReportedKeys {
		fmt.Printf("%s=%s\n", key, value)
	}
	return nil
}

// handleDebug launches a browser for one login and serves the attended
// debug socket: each framed exec request runs in the same sandbox
// against the same browser session, and successful execs finalize their
// staged downloads into the label's documents directory.
func (a *app) handleDebug(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: refreshmint debug <ledger-dir> <login> <label>")
	}
	ledgerDir, login, label := args[0], args[1], args[2]

	if !a.cfg.Sandbox.DebugSocketEnabled {
		return rmerrors.Unsupported("debug socket is disabled by configuration")
	}
	l, err := ledger.Open(ledgerDir)
	if err != nil {
		return err
	}

	execPath := a.cfg.Browser.ExecutablePath
	if execPath == "" {
		execPath, err = browser.FindExecutable()
		if err != nil {
			return err
		}
	}
	b, err := browser.Launch(ctx, execPath, browser.UserDataDirFor(ledgerDir, login))
	if err != nil {
		return err
	}
	defer b.Close()

	store := secretstore.Open(keychainFor(login), login)
	rt := sandbox.New(browser.NewPage(b), sandbox.Options{
		Secrets:    sandbox.NewStoreResolver(store),
		OutputDir:  l.DocumentsDir(login, label),
		StagingDir: filepath.Join(l.LabelDir(login, label), ".staging"),
	})

	socketPath := filepath.Join(l.LoginDir(login), ".debug.sock")
	srv, err := sandbox.NewDebugServer(socketPath, l.LoginLockPath(login), rt)
	if err != nil {
		return err
	}
	a.log.WithField("socket", socketPath).Info("debug session listening")
	return srv.Serve(ctx)
}
