package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/internal/dedup"
	"github.com/qabase/qabase/backend/go-services/internal/importer"
)

// ErrDeletionCancelled is returned when the operator declines a dedup run.
var ErrDeletionCancelled = errors.New("deletion cancelled by user")

type pipelineFlags struct {
	schema       string
	logDir       string
	postConflict string
	concurrency  int
	dryRun       bool
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.schema, "schema", "", "input schema: "+strings.Join(importer.SchemaNames(), "|")+" (default IMPORT_SCHEMA)")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "directory for skipped/failed entry logs (default IMPORT_LOG_DIR)")
	cmd.Flags().StringVar(&f.postConflict, "post-conflict", "", "original-post title conflicts: last-write-wins|first-write-wins|reject")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "parallel reference upserts (default IMPORT_CONCURRENCY)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "validate and report without writing")
}

func (f *pipelineFlags) pipeline(e *env) (*importer.Pipeline, error) {
	pick := func(flag, def string) string {
		if flag != "" {
			return flag
		}
		return def
	}
	schema, err := importer.SchemaByName(pick(f.schema, e.cfg.Import.Schema))
	if err != nil {
		return nil, err
	}
	policy, err := importer.ParseConflictPolicy(pick(f.postConflict, e.cfg.Import.PostConflict))
	if err != nil {
		return nil, err
	}
	concurrency := f.concurrency
	if concurrency <= 0 {
		concurrency = e.cfg.Import.Concurrency
	}
	return importer.New(e.store, importer.Options{
		Schema:       schema,
		LogDir:       pick(f.logDir, e.cfg.Import.LogDir),
		Concurrency:  concurrency,
		PostConflict: policy,
		DryRun:       f.dryRun,
		Sink:         e.sink,
	}), nil
}

func newImportCmd(e *env) *cobra.Command {
	var file string
	flags := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Normalize a JSON file and upsert it with its reference values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := flags.pipeline(e)
			if err != nil {
				return err
			}
			return e.withLock(cmd, func(ctx context.Context) error {
				rep, err := p.RunFile(ctx, file)
				if rep != nil {
					rep.Render(e.out)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of entries to import")
	_ = cmd.MarkFlagRequired("file")
	flags.register(cmd)
	return cmd
}

func newResyncCmd(e *env) *cobra.Command {
	flags := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rebuild reference collections and tag sections from stored content",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := flags.pipeline(e)
			if err != nil {
				return err
			}
			return e.withLock(cmd, func(ctx context.Context) error {
				rep, err := p.Resync(ctx)
				if rep != nil {
					rep.Render(e.out)
				}
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newDedupCmd(e *env) *cobra.Command {
	var (
		collection string
		dryRun     bool
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Delete all but the newest record of every duplicated title",
		Long: `Groups a content collection by title and keeps only the most recently
created record of each group. Deleted records cannot be recovered.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withLock(cmd, func(ctx context.Context) error {
				res := dedup.NewResolver(e.store, collection)
				plan, err := res.Plan(ctx)
				if err != nil {
					return err
				}
				plan.Render(e.out)
				if dryRun || plan.TotalDeleted == 0 {
					return nil
				}
				if err := confirm(e.in, e.out, force, plan.TotalDeleted); err != nil {
					return err
				}
				done, err := res.Resolve(ctx)
				if done != nil {
					done.Render(e.out)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&collection, "collection", repository.Contents, "content collection to clean")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list duplicate groups without deleting")
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}

// confirm asks before a destructive run. Without a terminal there is no one
// to ask, so --force is required.
func confirm(in io.Reader, out io.Writer, force bool, n int64) error {
	if force {
		return nil
	}
	f, ok := in.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return fmt.Errorf("%w: stdin is not a terminal, pass --force to delete %d records", ErrDeletionCancelled, n)
	}
	fmt.Fprintf(out, "Delete %d records? (y/N): ", n)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read user input: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(line), "y") {
		return ErrDeletionCancelled
	}
	return nil
}

func newCountsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Print document counts per collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return renderCounts(cmd.Context(), e.store, e.out)
		},
	}
}

func renderCounts(ctx context.Context, store repository.RecordStore, w io.Writer) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Collection", "Documents"})
	for _, c := range repository.AllCollections {
		n, err := store.Count(ctx, c)
		if err != nil {
			return fmt.Errorf("count %s: %w", c, err)
		}
		t.AppendRow(table.Row{c, n})
	}
	t.Render()
	return nil
}
