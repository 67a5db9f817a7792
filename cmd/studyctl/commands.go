package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/okian/shopstudy/internal/adapters/repository"
	app "github.com/okian/shopstudy/internal/app"
	"github.com/okian/shopstudy/internal/config"
	"github.com/okian/shopstudy/internal/export"
	"github.com/okian/shopstudy/pkg/logger"
)

var errNotConfirmed = errors.New("refusing to delete without --yes")

// storeFlags locate a store. Empty flags fall back to the service
// configuration.
type storeFlags struct {
	dataDir     string
	databaseURL string
}

func (f *storeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "directory of the file store (default from config)")
	cmd.Flags().StringVar(&f.databaseURL, "database-url", "", "relational store DSN (default from config)")
}

func (f *storeFlags) open(ctx context.Context) (repository.Store, error) {
	rc := repository.Config{DataDir: f.dataDir, DatabaseURL: f.databaseURL}
	if rc.DataDir == "" && rc.DatabaseURL == "" {
		cfg, err := config.Load(ctx)
		if err != nil {
			return nil, err
		}
		rc = repository.Config{DataDir: cfg.DataDir, DatabaseURL: cfg.DatabaseURL}
	}
	return repository.Open(ctx, rc, repository.WithLogger(logger.NewNop()))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studyctl",
		Short:         "Offline utility for the shopping-assistant study data",
		SilenceUsage:  true,
	}
	root.AddCommand(newExportCmd(), newResetCmd(), newDumpCmd())
	return root
}

func newExportCmd() *cobra.Command {
	var (
		src storeFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a store into the two-file JSON-lines layout",
		Long: `Reads every session and event from the source store (normally the
relational one given by --database-url) and writes them to --out as
sessions.jsonl and events.jsonl, ready for the file-backed server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			return runExport(cmd.Context(), cmd.OutOrStdout(), &src, out)
		},
	}
	src.bind(cmd)
	cmd.Flags().StringVar(&out, "out", "", "destination directory")
	return cmd
}

func runExport(ctx context.Context, w io.Writer, src *storeFlags, out string) (err error) {
	store, err := src.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}
	// Listing is newest first; the file layout keeps creation order.
	slices.Reverse(sessions)
	events, err := store.AllEvents(ctx)
	if err != nil {
		return err
	}
	if err := repository.WriteSnapshot(out, sessions, events); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "exported %d sessions and %d events from %s to %s\n",
		len(sessions), len(events), store.Backend(), out)
	return nil
}

func newResetCmd() *cobra.Command {
	var (
		dataDir string
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the session and event files of a data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dataDir == "" {
				return errors.New("--data-dir is required")
			}
			if !yes {
				return errNotConfirmed
			}
			if err := repository.RemoveSnapshot(dataDir); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed study data in %s\n", dataDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory of the file store")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newDumpCmd() *cobra.Command {
	var (
		src    storeFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the analysis export to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var write func(io.Writer, []export.Bundle) error
			switch format {
			case "jsonl":
				write = export.WriteJSONL
			case "csv":
				write = export.WriteCSV
			default:
				return fmt.Errorf("unknown format %q: want jsonl or csv", format)
			}
			return runDump(cmd.Context(), cmd.OutOrStdout(), &src, write)
		},
	}
	src.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "jsonl", "jsonl or csv")
	return cmd
}

func runDump(ctx context.Context, w io.Writer, src *storeFlags, write func(io.Writer, []export.Bundle) error) error {
	store, err := src.open(ctx)
	if err != nil {
		return err
	}
	svc := app.New(app.WithStore(store), app.WithLogger(logger.NewNop()))
	if err := svc.Start(ctx); err != nil {
		_ = store.Close(ctx)
		return err
	}
	defer func() { _ = svc.Stop(ctx) }()

	bundles, err := svc.ExportBundles(ctx)
	if err != nil {
		return err
	}
	return write(w, bundles)
}
