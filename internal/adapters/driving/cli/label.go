package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jam/internal/core/domain"
)

func newLabelCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Manage relevance labels",
		Long:  `Record and inspect judgments of whether a document answers a question.`,
	}
	cmd.AddCommand(newLabelAddCmd(rt), newLabelListCmd(rt), newLabelCountCmd(rt))
	return cmd
}

func newLabelAddCmd(rt *runtime) *cobra.Command {
	var (
		index    string
		label    domain.Label
		offset   int
		modelID  int
		noAnswer bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a label",
		Long: `Records one label. A label equal to a stored one in every field but
its ID and timestamps is not stored twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if label.Question == "" {
				return fmt.Errorf("%w: --question is required", domain.ErrInvalidInput)
			}
			if cmd.Flags().Changed("offset") {
				label.OffsetStartInDoc = &offset
			}
			if cmd.Flags().Changed("model-id") {
				label.ModelID = &modelID
			}
			if cmd.Flags().Changed("no-answer") {
				label.NoAnswer = &noAnswer
			}

			svc, err := rt.core()
			if err != nil {
				return err
			}
			existing, err := svc.Documents.GetAllLabels(cmd.Context(), index, domain.Filters{
				domain.LabelFieldQuestion: {label.Question},
			})
			if err != nil {
				return fmt.Errorf("failed to read labels: %w", err)
			}
			for i := range existing {
				if existing[i].Equal(label) {
					cmd.Printf("Label already recorded as %s\n", existing[i].ID)
					return nil
				}
			}

			l := domain.NewLabel(label)
			if _, err := svc.Documents.WriteLabels(cmd.Context(), []domain.Label{l}, index); err != nil {
				return fmt.Errorf("failed to write label: %w", err)
			}
			cmd.Printf("Recorded label %s\n", l.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "label index (default from store.label_index)")
	cmd.Flags().StringVar(&label.ID, "id", "", "label ID (default: generated)")
	cmd.Flags().StringVarP(&label.Question, "question", "q", "", "question being judged")
	cmd.Flags().StringVarP(&label.Answer, "answer", "a", "", "answer text")
	cmd.Flags().StringVar(&label.DocumentID, "document-id", "", "ID of the judged document")
	cmd.Flags().StringVar(&label.Origin, "origin", "user-feedback", "where the judgment came from")
	cmd.Flags().BoolVar(&label.IsCorrectAnswer, "correct-answer", false, "the answer is correct")
	cmd.Flags().BoolVar(&label.IsCorrectDocument, "correct-document", false, "the document is relevant")
	cmd.Flags().IntVar(&offset, "offset", 0, "answer offset in the document text")
	cmd.Flags().IntVar(&modelID, "model-id", 0, "ID of the model that produced the answer")
	cmd.Flags().BoolVar(&noAnswer, "no-answer", false, "the document holds no answer")
	return cmd
}

func newLabelListCmd(rt *runtime) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print labels matching the filters",
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
			labels, err := svc.Documents.GetAllLabels(cmd.Context(), opts.Index, opts.Filters)
			if err != nil {
				return fmt.Errorf("failed to list labels: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for i := range labels {
				if err := enc.Encode(labels[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().Lookup("index").Usage = "label index (default from store.label_index)"
	return cmd
}

func newLabelCountCmd(rt *runtime) *cobra.Command {
	var index string

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.core()
			if err != nil {
				return err
			}
			n, err := svc.Documents.GetLabelCount(cmd.Context(), index)
			if err != nil {
				return fmt.Errorf("failed to count labels: %w", err)
			}
			cmd.Println(n)
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "label index (default from store.label_index)")
	return cmd
}
