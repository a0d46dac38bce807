package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/services"
)

// writeFlags holds the flags shared by write and ingest.
type writeFlags struct {
	index     string
	policy    string
	batchSize int
}

func (f *writeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.index, "index", "", "target index (default from store.index)")
	cmd.Flags().StringVar(&f.policy, "policy", "", "duplicate policy: skip, overwrite or fail (default from store.duplicate_policy)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "documents per backend request (default from store.batch_size)")
}

func (f *writeFlags) options() (domain.WriteOptions, error) {
	opts := domain.WriteOptions{Index: f.index, BatchSize: f.batchSize}
	if f.policy != "" {
		policy, err := domain.ParseDuplicatePolicy(f.policy)
		if err != nil {
			return opts, err
		}
		opts.DuplicatePolicy = policy
	}
	if f.batchSize < 0 {
		return opts, fmt.Errorf("%w: batch size must not be negative", domain.ErrInvalidInput)
	}
	return opts, nil
}

func newWriteCmd(rt *runtime) *cobra.Command {
	var (
		flags      writeFlags
		fieldMap   map[string]string
		hashScheme string
		idHashKeys []string
	)

	cmd := &cobra.Command{
		Use:   "write [file.jsonl]",
		Short: "Write JSON Lines records as documents",
		Long: `Reads one JSON object per line and writes each as a document.

Keys that are not document fields are kept in meta. --field-map renames
record keys to document fields, e.g. --field-map body=text. Use "-" to
read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			writeOpts, err := flags.options()
			if err != nil {
				return err
			}
			var scheme domain.HashScheme
			if hashScheme != "" {
				if scheme, err = domain.ParseHashScheme(hashScheme); err != nil {
					return err
				}
			}

			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}
			records, err := services.ParseJSONLines(in)
			if err != nil {
				return fmt.Errorf("failed to read records: %w", err)
			}

			svc, err := rt.core()
			if err != nil {
				return err
			}
			if scheme == "" {
				settings, err := rt.appSettings()
				if err != nil {
					return err
				}
				scheme = settings.Ingest.HashScheme
			}
			result, err := svc.Ingest.IngestRecords(cmd.Context(), records, domain.IngestOptions{
				Write:      writeOpts,
				FieldMap:   fieldMap,
				HashScheme: scheme,
				IDHashKeys: idHashKeys,
			})
			if err != nil {
				return reportWriteError(cmd, err)
			}

			printIngestResult(cmd, result)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringToStringVar(&fieldMap, "field-map", nil, "rename record keys to document fields (key=field)")
	cmd.Flags().StringVar(&hashScheme, "hash-scheme", "", "ID hash scheme: murmur3, uuid3 or uuid5")
	cmd.Flags().StringSliceVar(&idHashKeys, "id-hash-keys", nil, "fields hashed into derived IDs (text, question, meta, meta.<key>, embedding)")
	return cmd
}

// reportWriteError prints the colliding IDs of a rejected write.
func reportWriteError(cmd *cobra.Command, err error) error {
	var dup *domain.DuplicateDocumentError
	if errors.As(err, &dup) {
		cmd.PrintErrf("%d documents already exist in %q:\n", len(dup.IDs), dup.Index)
		for _, id := range dup.IDs {
			cmd.PrintErrf("  %s\n", id)
		}
	}
	return err
}

func printIngestResult(cmd *cobra.Command, result domain.IngestResult) {
	cmd.Printf("Submitted: %d\n", result.Submitted)
	cmd.Printf("Written: %d\n", result.Written)
	if skipped := result.Submitted - result.Written; skipped > 0 {
		cmd.Printf("Skipped: %d duplicates\n", skipped)
	}
}

func newGetCmd(rt *runtime) *cobra.Command {
	var (
		index         string
		withEmbedding bool
	)

	cmd := &cobra.Command{
		Use:   "get [id...]",
		Short: "Print documents by ID",
		Long:  `Prints the documents that exist among the given IDs, one JSON object per line. Missing IDs are skipped.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.core()
			if err != nil {
				return err
			}
			docs, err := svc.Documents.GetDocumentsByID(cmd.Context(), args, domain.LookupOptions{Index: index})
			if err != nil {
				return fmt.Errorf("failed to get documents: %w", err)
			}
			if len(docs) < len(args) {
				cmd.PrintErrf("%d of %d documents not found\n", len(args)-len(docs), len(args))
			}
			return printDocuments(cmd, docs, withEmbedding)
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "index to read (default from store.index)")
	cmd.Flags().BoolVar(&withEmbedding, "with-embedding", false, "include embeddings in the output")
	return cmd
}

// queryFlags holds the flags shared by list, count and delete.
type queryFlags struct {
	index   string
	filters []string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.index, "index", "", "index to use (default from store.index)")
	cmd.Flags().StringArrayVarP(&f.filters, "filter", "f", nil, "field=value filter; repeat a field to accept several values")
}

func (f *queryFlags) options() (domain.QueryOptions, error) {
	filters, err := domain.ParseFilters(f.filters)
	if err != nil {
		return domain.QueryOptions{}, err
	}
	return domain.QueryOptions{Index: f.index, Filters: filters}, nil
}

func newListCmd(rt *runtime) *cobra.Command {
	var (
		flags         queryFlags
		withEmbedding bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every document matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			opts.ReturnEmbedding = withEmbedding

			svc, err := rt.core()
			if err != nil {
				return err
			}
			docs, err := svc.Documents.GetAllDocuments(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}
			return printDocuments(cmd, docs, withEmbedding)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&withEmbedding, "with-embedding", false, "include embeddings in the output")
	return cmd
}

func newCountCmd(rt *runtime) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count documents matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			svc, err := rt.core()
			if err != nil {
				return err
			}
			n, err := svc.Documents.GetDocumentCount(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to count documents: %w", err)
			}
			cmd.Println(n)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd(rt *runtime) *cobra.Command {
	var (
		flags queryFlags
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete documents matching the filters",
		Long:  `Deletes every document matching the filters. Deleting a whole index requires --all.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			if opts.Filters.IsEmpty() && !all {
				return errors.New("refusing to delete every document without --all")
			}
			if !opts.Filters.IsEmpty() && all {
				return errors.New("--all cannot be combined with --filter")
			}

			svc, err := rt.core()
			if err != nil {
				return err
			}
			before, err := svc.Documents.GetDocumentCount(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to count documents: %w", err)
			}
			if err := svc.Documents.DeleteDocuments(cmd.Context(), opts); err != nil {
				return fmt.Errorf("failed to delete documents: %w", err)
			}
			cmd.Printf("Deleted %d documents\n", before)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "delete every document in the index")
	return cmd
}

// printDocuments writes one JSON object per document.
func printDocuments(cmd *cobra.Command, docs []domain.Document, withEmbedding bool) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	for i := range docs {
		doc := docs[i]
		if !withEmbedding {
			doc = doc.WithoutEmbedding()
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
		}
	}
	return nil
}
