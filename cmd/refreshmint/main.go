// Command refreshmint is the engine's entrypoint: ledger lifecycle
// management, reconciliation operations, secret storage, and driving an
// extension's scraper inside the sandbox runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/yonran/refreshmint/internal/rtconfig"
	"github.com/yonran/refreshmint/pkg/logger"
	"github.com/yonran/refreshmint/pkg/version"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	root := flag.NewFlagSet("refreshmint", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	showVersion := root.Bool("version", false, "Print refreshmint build information and exit")
	if err := root.Parse(args); err != nil {
		return usageError(err)
	}

	remaining := root.Args()
	if *showVersion {
		fmt.Println(version.FullVersion())
		return nil
	}
	if len(remaining) == 0 {
		return usageError(errors.New("no command specified"))
	}

	cfg, err := rtconfig.Load()
	if err != nil {
		return err
	}
	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	a := &app{cfg: cfg, log: log}

	switch remaining[0] {
	case "ledger":
		return a.handleLedger(ctx, remaining[1:])
	case "post":
		return a.handlePost(ctx, remaining[1:])
	case "unpost":
		return a.handleUnpost(ctx, remaining[1:])
	case "transfer":
		return a.handleTransfer(ctx, remaining[1:])
	case "sync":
		return a.handleSync(ctx, remaining[1:])
	case "merge":
		return a.handleMerge(ctx, remaining[1:])
	case "recategorize":
		return a.handleRecategorize(ctx, remaining[1:])
	case "ingest":
		return a.handleIngest(ctx, remaining[1:])
	case "scrape":
		return a.handleScrape(ctx, remaining[1:])
	case "suggest":
		return a.handleSuggest(ctx, remaining[1:])
	case "secrets":
		return a.handleSecrets(ctx, remaining[1:])
	case "run":
		return a.handleRun(ctx, remaining[1:])
	case "debug":
		return a.handleDebug(ctx, remaining[1:])
	case "help":
		printUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", remaining[0]))
	}
}

// app bundles the dependencies every subcommand needs.
type app struct {
	cfg *rtconfig.Config
	log *logger.Logger
}

func usageError(err error) error {
	printUsage()
	return err
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: refreshmint <command> [arguments]

commands:
  ledger    create and manage a ledger directory, logins, and labels
  post      post an account entry to the general journal
  unpost    undo a post, clearing posted references on its sources
  transfer  link two account entries as one transfer
  sync      rebuild a GL transaction from its current sources
  merge     merge two GL transactions into one
  recategorize  rewrite a posted transaction's counterpart account
  ingest    merge extracted proposals into an account journal via dedup
  scrape    manage scrape sessions (remove)
  suggest   print category, drift, and transfer suggestions for an entry
  secrets   manage (domain, name) -> value secrets for a login
  run       run an extension driver script against a live browser page
  debug     serve the attended debug socket for step-through driver execs
  help      print this message`)
}
