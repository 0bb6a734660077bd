// Command debts runs the debt engine from the command line: console reports,
// CSV exports, mirroring the remote store into SQLite and minting RPC tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mmynk/cantina/internal/allowlist"
	"github.com/mmynk/cantina/internal/config"
	"github.com/mmynk/cantina/internal/metrics"
	"github.com/mmynk/cantina/internal/service"
	"github.com/mmynk/cantina/pkg/logging"
)

const usage = `usage: debts [-env FILE] [-config FILE] <command> [flags]

commands:
  report     print every guardian with debt
  export     write the detailed debt CSV
  contacts   write the contacts CSV used for invoicing
  format     print a detailed CSV written by export
  mirror     copy the remote store into the SQLite mirror
  ping       check the store connection
  token      mint a bearer token for the RPC server
`

// command is one subcommand. args excludes the command name.
type command func(ctx context.Context, app *app, args []string) error

var commands = map[string]command{
	"report":   runReport,
	"export":   runExport,
	"contacts": runContacts,
	"format":   runFormat,
	"mirror":   runMirror,
	"ping":     runPing,
	"token":    runToken,
}

// app carries what every command shares.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	// metrics stays nil: nothing scrapes a one-shot command.
	metrics *metrics.Metrics
	stdout  io.Writer
	now     func() time.Time
}

func main() {
	fs := flag.NewFlagSet("debts", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	envFile := fs.String("env", ".env", "dotenv file to load")
	configFile := fs.String("config", "", "config file (default: cantina.{toml,yaml,json} if present)")
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}
	name, args := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile, *configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.SetupWith(cfg.Log.Level, cfg.Log.Format)

	a := &app{
		cfg:    cfg,
		logger: logger,
		stdout: os.Stdout,
		now:    time.Now,
	}

	if err := cmd(context.Background(), a, args); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(int(exit))
		}
		logger.Error("Command failed", "command", name, "error", err)
		os.Exit(1)
	}
}

// exitError ends the process with a status code without logging.
type exitError int

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// openEngine validates the store settings and builds an engine over them.
func (a *app) openEngine() (*service.DebtEngine, *service.Backend, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	a.cfg.CheckAPIKey(a.logger, a.now())

	backend, err := service.OpenBackend(a.cfg, a.metrics, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return service.NewEngineFromConfig(a.cfg, backend.Store, a.metrics, a.logger), backend, nil
}

// engineFlags are the flags shared by commands that run the engine.
type engineFlags struct {
	allowList string
	all       bool
}

func (f *engineFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&f.allowList, "allow", cfg.Engine.AllowList, "allow-list CSV of authorized guardian names")
	fs.BoolVar(&f.all, "all", false, "ignore the allow-list and include every guardian")
}

// run executes the engine, filtering by the allow-list unless -all was
// given or no list is configured.
func (f *engineFlags) run(ctx context.Context, a *app) (*service.Report, error) {
	engine, backend, err := a.openEngine()
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	if f.all || f.allowList == "" {
		return engine.Run(ctx)
	}

	allow, err := allowlist.LoadFile(f.allowList)
	if err != nil {
		return nil, err
	}
	rep, err := engine.RunAuthorized(ctx, allow)
	if err != nil {
		return nil, err
	}
	for _, name := range allow.Unmatched(rep.Records) {
		a.logger.Info("Authorized guardian has no debt", "guardian", name)
	}
	return rep, nil
}
