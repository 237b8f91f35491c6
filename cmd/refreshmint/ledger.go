package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/yonran/refreshmint/internal/ledger"
)

func (a *app) handleLedger(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("ledger: expected a subcommand (create, login, label, extensions)")
	}
	switch args[0] {
	case "create":
		return ledgerCreate(args[1:])
	case "login":
		return ledgerLogin(args[1:])
	case "label":
		return ledgerLabel(args[1:])
	case "extensions":
		return ledgerExtensions(args[1:])
	default:
		return fmt.Errorf("ledger: unknown subcommand %q", args[0])
	}
}

func ledgerCreate(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: refreshmint ledger create <dir>.refreshmint")
	}
	l, err := ledger.Create(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("created ledger %s (version %s)\n", l.Dir, l.Manifest.Version)
	return nil
}

func ledgerLogin(args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errors.New("usage: refreshmint ledger login <add|remove|rename> <ledger-dir> <login> [extension|new-name]")
	}
	l, err := ledger.Open(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "add":
		extension := ""
		if len(args) == 4 {
			extension = args[3]
		}
		if err := l.CreateLogin(args[2], extension); err != nil {
			return err
		}
		fmt.Printf("created login %s\n", args[2])
		return nil
	case "remove":
		if err := l.RemoveLogin(args[2]); err != nil {
			return err
		}
		fmt.Printf("removed login %s\n", args[2])
		return nil
	case "rename":
		if len(args) != 4 {
			return errors.New("usage: refreshmint ledger login rename <ledger-dir> <from> <to>")
		}
		if err := l.RenameLogin(args[2], args[3]); err != nil {
			return err
		}
		fmt.Printf("renamed login %s to %s\n", args[2], args[3])
		return nil
	default:
		return fmt.Errorf("ledger login: unknown action %q", args[0])
	}
}

func ledgerLabel(args []string) error {
	if len(args) < 4 || len(args) > 5 {
		return errors.New("usage: refreshmint ledger label <add|remove> <ledger-dir> <login> <label> [gl-account]")
	}
	l, err := ledger.Open(args[1])
	if err != nil {
		return err
	}
	switch args[0] {
	case "add":
		glAccount := ""
		if len(args) == 5 {
			glAccount = args[4]
		}
		if err := l.CreateLabel(args[2], args[3], glAccount); err != nil {
			return err
		}
		fmt.Printf("created label %s/%s\n", args[2], args[3])
		return nil
	case "remove":
		if err := l.RemoveLabel(args[2], args[3]); err != nil {
			return err
		}
		fmt.Printf("removed label %s/%s\n", args[2], args[3])
		return nil
	default:
		return fmt.Errorf("ledger label: unknown action %q", args[0])
	}
}

func ledgerExtensions(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: refreshmint ledger extensions <ledger-dir>")
	}
	l, err := ledger.Open(args[0])
	if err != nil {
		return err
	}
	exts, err := l.ListExtensions()
	if err != nil {
		return err
	}
	for _, e := range exts {
		runnable := "no"
		if e.Runnable {
			runnable = "yes"
		}
		fmt.Printf("%s\trunnable=%s\t%s\n", e.Name, runnable, e.Dir)
	}
	return nil
}
