package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driving"
)

// snippetLength is the number of characters of text shown per result.
const snippetLength = 120

// queryResult is the JSON shape of one query's results.
type queryResult struct {
	Query     string            `json:"query"`
	Documents []domain.Document `json:"documents"`
}

func newQueryCmd(rt *runtime) *cobra.Command {
	var (
		index   string
		topK    int
		mode    string
		filters []string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "query [text...]",
		Short: "Retrieve the top-k documents for each query",
		Long: `Runs every argument as a separate query and prints its best matches.

Modes:
  keyword   - rank by how often the query terms occur in the text
  embedding - rank by cosine similarity to the embedded query

Without --mode, embedding is used when an embedding provider is configured.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseFilters(filters)
			if err != nil {
				return err
			}
			svc, err := rt.core()
			if err != nil {
				return err
			}
			retriever, err := selectRetriever(svc, mode)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("top-k") {
				settings, err := rt.appSettings()
				if err != nil {
					return err
				}
				topK = settings.Retrieval.TopK
			}

			queries := make([]domain.Query, len(args))
			for i, text := range args {
				queries[i] = domain.Query{Text: text, Filters: parsed}
			}

			results, err := retriever.RetrieveTopK(cmd.Context(), queries, domain.RetrieveOptions{
				Index: index,
				TopK:  topK,
			})
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			if jsonOut {
				return outputQueryJSON(cmd, args, results)
			}
			outputQueryTable(cmd, retriever.Name(), args, results)
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "index to query (default from store.index)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", domain.DefaultRetrieveTopK, "maximum results per query (default from retrieval.top_k)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "retrieval mode: keyword or embedding")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "field=value filter applied to every query")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output results as JSON")
	return cmd
}

// selectRetriever picks the retriever for mode, preferring embedding
// retrieval when no mode is given and one is available.
func selectRetriever(svc *Services, mode string) (driving.Retriever, error) {
	if mode == "" {
		if r, ok := svc.Retrievers[ModeEmbedding]; ok {
			return r, nil
		}
		mode = ModeKeyword
	}
	mode = strings.ToLower(mode)

	r, ok := svc.Retrievers[mode]
	if ok {
		return r, nil
	}
	if mode == ModeEmbedding {
		return nil, fmt.Errorf("%w: run 'jam config set embedding.provider ollama' to enable embedding queries",
			domain.ErrEmbeddingUnavailable)
	}
	return nil, fmt.Errorf("%w: retrieval mode %q, choose keyword or embedding", domain.ErrInvalidArgument, mode)
}

func outputQueryJSON(cmd *cobra.Command, queries []string, results [][]domain.Document) error {
	out := make([]queryResult, len(queries))
	for i, q := range queries {
		docs := make([]domain.Document, len(results[i]))
		for j := range results[i] {
			docs[j] = results[i][j].WithoutEmbedding()
		}
		out[i] = queryResult{Query: q, Documents: docs}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputQueryTable(cmd *cobra.Command, mode string, queries []string, results [][]domain.Document) {
	for i, q := range queries {
		cmd.Printf("Query: %s (%s)\n", q, mode)
		if len(results[i]) == 0 {
			cmd.Println("  No results found.")
			cmd.Println()
			continue
		}
		for j := range results[i] {
			doc := results[i][j]
			// Format: [N] ID (score, probability)
			cmd.Printf("  [%d] %s", j+1, doc.ID)
			if doc.Score != nil && doc.Probability != nil {
				cmd.Printf(" (%.3f, p=%.2f)", *doc.Score, *doc.Probability)
			}
			cmd.Println()
			if name, ok := doc.Meta["name"].(string); ok && name != "" {
				cmd.Printf("      Source: %s\n", name)
			}
			cmd.Printf("      %s\n", snippet(doc.Text))
		}
		cmd.Println()
	}
}

// snippet flattens whitespace and truncates text to snippetLength runes.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetLength]) + "..."
}
