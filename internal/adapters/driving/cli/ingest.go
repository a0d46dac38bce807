package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/jam/internal/connectors/filesystem"
	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/services"
	"github.com/custodia-labs/jam/internal/logger"
)

type ingestFlags struct {
	write        writeFlags
	watch        bool
	splitLength  int
	splitOverlap int
	embed        bool
	hashScheme   string
}

func newIngestCmd(rt *runtime) *cobra.Command {
	var flags ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest [path...]",
		Short: "Ingest files and directories",
		Long: `Reads plain text, Markdown, HTML and JSON Lines files and writes their
content as documents. Directories are walked recursively; hidden files are
skipped. Each document carries the file name, uri and mime_type in meta.

With --watch, jam keeps running and re-ingests files as they change.
Documents of a changed or removed file are deleted first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.core()
			if err != nil {
				return err
			}
			settings, err := rt.appSettings()
			if err != nil {
				return err
			}
			opts, err := flags.options(cmd, settings)
			if err != nil {
				return err
			}

			ing := &ingester{cmd: cmd, svc: svc, opts: opts}
			var total domain.IngestResult
			for _, path := range args {
				result, err := ing.ingestTree(cmd.Context(), path)
				if err != nil {
					return err
				}
				total.Submitted += result.Submitted
				total.Written += result.Written
			}
			printIngestResult(cmd, total)

			if !flags.watch {
				return nil
			}
			return ing.watch(cmd.Context(), args)
		},
	}

	flags.write.register(cmd)
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "keep running and re-ingest changed files")
	cmd.Flags().IntVar(&flags.splitLength, "split-length", 0, "split text into passages of this many characters (default from ingest.split_length)")
	cmd.Flags().IntVar(&flags.splitOverlap, "split-overlap", 0, "characters shared by adjacent passages (default from ingest.split_overlap)")
	cmd.Flags().BoolVar(&flags.embed, "embed", false, "compute embeddings with the configured provider")
	cmd.Flags().StringVar(&flags.hashScheme, "hash-scheme", "", "ID hash scheme: murmur3, uuid3 or uuid5 (default from ingest.hash_scheme)")
	return cmd
}

// options merges the flags over the configured ingest defaults.
func (f *ingestFlags) options(cmd *cobra.Command, settings *domain.AppSettings) (domain.IngestOptions, error) {
	writeOpts, err := f.write.options()
	if err != nil {
		return domain.IngestOptions{}, err
	}

	opts := domain.IngestOptions{
		Write:        writeOpts,
		HashScheme:   settings.Ingest.HashScheme,
		SplitLength:  settings.Ingest.SplitLength,
		SplitOverlap: settings.Ingest.SplitOverlap,
		Embed:        f.embed,
	}
	if cmd.Flags().Changed("split-length") {
		opts.SplitLength = f.splitLength
	}
	if cmd.Flags().Changed("split-overlap") {
		opts.SplitOverlap = f.splitOverlap
	}
	if f.hashScheme != "" {
		if opts.HashScheme, err = domain.ParseHashScheme(f.hashScheme); err != nil {
			return opts, err
		}
	}
	if opts.SplitLength < 0 || opts.SplitOverlap < 0 {
		return opts, fmt.Errorf("%w: split length and overlap must not be negative", domain.ErrInvalidInput)
	}
	if opts.SplitLength > 0 && opts.SplitOverlap >= opts.SplitLength {
		return opts, fmt.Errorf("%w: split overlap must be smaller than split length", domain.ErrInvalidInput)
	}
	return opts, nil
}

// ingester feeds files from filesystem connectors into the ingest service.
type ingester struct {
	cmd  *cobra.Command
	svc  *Services
	opts domain.IngestOptions
}

// ingestTree ingests every visible file under path.
func (i *ingester) ingestTree(ctx context.Context, path string) (domain.IngestResult, error) {
	files, err := filesystem.New(path).Files(ctx)
	if err != nil {
		return domain.IngestResult{}, err
	}

	var total domain.IngestResult
	for _, file := range files {
		result, err := i.svc.Ingest.IngestFile(ctx, file, i.opts)
		if errors.Is(err, domain.ErrUnsupportedType) {
			logger.Warn("skipping %s: %v", file, err)
			continue
		}
		if err != nil {
			return total, reportWriteError(i.cmd, err)
		}
		total.Submitted += result.Submitted
		total.Written += result.Written
	}
	return total, nil
}

// watch re-ingests files under roots until ctx is done.
func (i *ingester) watch(ctx context.Context, roots []string) error {
	g, ctx := errgroup.WithContext(ctx)
	conns := make([]*filesystem.Connector, 0, len(roots))
	for _, root := range roots {
		conn := filesystem.New(root)
		changes, err := conn.Watch(ctx)
		if err != nil {
			for _, c := range conns {
				_ = c.Close()
			}
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		conns = append(conns, conn)
		g.Go(func() error {
			defer conn.Close()
			for change := range changes {
				if err := i.apply(ctx, change); err != nil {
					logger.Warn("%s %s: %v", change.Type, change.Path, err)
				}
			}
			return nil
		})
	}

	i.cmd.PrintErrf("Watching %d paths for changes. Press Ctrl+C to stop.\n", len(roots))
	return g.Wait()
}

// apply replaces the documents of one changed file.
func (i *ingester) apply(ctx context.Context, change filesystem.Change) error {
	uri, err := filepath.Abs(change.Path)
	if err != nil {
		uri = change.Path
	}
	err = i.svc.Documents.DeleteDocuments(ctx, domain.QueryOptions{
		Index:   i.opts.Write.Index,
		Filters: domain.Filters{services.MetaURI: {uri}},
	})
	if err != nil {
		return fmt.Errorf("delete previous documents: %w", err)
	}
	if change.Type == filesystem.ChangeDeleted {
		i.cmd.Printf("Removed %s\n", change.Path)
		return nil
	}

	result, err := i.svc.Ingest.IngestFile(ctx, change.Path, i.opts)
	if err != nil {
		return err
	}
	i.cmd.Printf("Ingested %s (%d written)\n", change.Path, result.Written)
	return nil
}
