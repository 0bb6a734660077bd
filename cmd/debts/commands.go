package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mmynk/cantina/internal/auth"
	"github.com/mmynk/cantina/internal/config"
	"github.com/mmynk/cantina/internal/fetch/postgrest"
	"github.com/mmynk/cantina/internal/report"
	"github.com/mmynk/cantina/internal/service"
	"github.com/mmynk/cantina/internal/storage"
	"github.com/mmynk/cantina/internal/storage/sqlite"
)

func runReport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	var ef engineFlags
	ef.register(fs, a.cfg)
	if err := fs.Parse(args); err != nil {
		return exitError(2)
	}

	rep, err := ef.run(ctx, a)
	if err != nil {
		return err
	}
	if err := report.WriteConsole(a.stdout, report.Summarize(rep.Records)); err != nil {
		return err
	}
	if n := len(rep.Warnings); n > 0 {
		fmt.Fprintf(a.stdout, "%d data integrity warning(s); see the log\n", n)
	}
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	return exportCSV(ctx, a, "export", "dividas_detalhadas", report.WriteDetailedCSV, args)
}

func runContacts(ctx context.Context, a *app, args []string) error {
	return exportCSV(ctx, a, "contacts", "responsaveis_pendentes", report.WriteContactsCSV, args)
}

func exportCSV(ctx context.Context, a *app, name, prefix string, write func(io.Writer, []report.GuardianSummary) error, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var ef engineFlags
	ef.register(fs, a.cfg)
	out := fs.String("o", "", "output file (default: timestamped file in the report directory)")
	if err := fs.Parse(args); err != nil {
		return exitError(2)
	}

	rep, err := ef.run(ctx, a)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = report.Filename(a.cfg.Report.OutputDir, prefix, rep.GeneratedAt)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	summaries := report.Summarize(rep.Records)
	if err := write(f, summaries); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	a.logger.Info("CSV written",
		"path", path,
		"guardians", len(summaries),
		"total_owed", report.FormatBRL(rep.TotalOwed),
		"run_id", rep.RunID,
	)
	fmt.Fprintln(a.stdout, path)
	return nil
}

func runFormat(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("format", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitError(2)
	}
	if fs.NArg() != 1 {
		return errors.New("format takes exactly one CSV file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	summaries, err := report.ReadDetailedCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	return report.WriteConsole(a.stdout, summaries)
}

func runMirror(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("mirror", flag.ContinueOnError)
	dbPath := fs.String("db", a.cfg.Store.MirrorPath, "SQLite file to write")
	if err := fs.Parse(args); err != nil {
		return exitError(2)
	}

	// The source is always the remote store, whatever backend reports use.
	src := *a.cfg
	src.Store.Backend = config.BackendPostgREST
	if err := src.Validate(); err != nil {
		return err
	}
	backend, err := service.OpenBackend(&src, a.metrics, a.logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		return err
	}
	mirror, err := sqlite.New(*dbPath)
	if err != nil {
		return err
	}
	defer mirror.Close()

	runs, err := storage.MirrorAll(ctx, backend.Source, mirror, a.logger)
	for _, run := range runs {
		fmt.Fprintf(a.stdout, "%-20s %6d records  %s\n", run.Collection, run.Records, run.MirroredAt.Format("2006-01-02 15:04:05"))
	}
	return err
}

func runPing(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitError(2)
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.cfg.CheckAPIKey(a.logger, a.now())

	if a.cfg.Store.Backend == config.BackendSQLite {
		mirror, err := sqlite.New(a.cfg.Store.MirrorPath)
		if err != nil {
			return err
		}
		defer mirror.Close()

		runs, err := mirror.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("mirror %s is empty; run debts mirror first", a.cfg.Store.MirrorPath)
		}
		for _, run := range runs {
			fmt.Fprintf(a.stdout, "%-20s %6d records  mirrored %s\n", run.Collection, run.Records, run.MirroredAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	client := postgrest.New(a.cfg.Store.URL, a.cfg.Store.Key,
		postgrest.WithTimeout(a.cfg.Store.Timeout),
		postgrest.WithLogger(a.logger),
	)
	if err := client.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "ok %s\n", a.cfg.Store.URL)
	return nil
}

func runToken(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	client := fs.String("client", "", "name of the client the token is for")
	if err := fs.Parse(args); err != nil {
		return exitError(2)
	}
	if err := a.cfg.ValidateServer(); err != nil {
		return err
	}

	token, err := auth.NewJWTManager(a.cfg.Server.JWTSecret, a.cfg.Server.TokenTTL).Generate(*client)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, token)
	return nil
}
