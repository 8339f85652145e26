package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pdf-rag/internal/domain"
	"pdf-rag/internal/usecase"
)

type ragService interface {
	Invoke(ctx context.Context, question, modelName string) (*domain.RAGAnswer, error)
	Rebuild(ctx context.Context) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, job *domain.IngestJob) error
}

// services is the slice of the container the commands need.
type services struct {
	Data  usecase.DataPipeline
	RAG   ragService
	Queue enqueuer
	Close func()
}

type openFunc func(ctx context.Context, verbose bool) (*services, error)

type cli struct {
	open    openFunc
	verbose bool
	svc     *services
}

func newRootCmd(open openFunc) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Manage the RAG document store and ask questions",
		Long: `ragctl works directly against the configured chunk store and job queue.

Example usage:
  ragctl add data/markdown/report.md     # Segment, embed and store a document
  ragctl remove report.md                # Drop a document's chunks
  ragctl list                            # Show stored documents
  ragctl query --model gemini "What happened to revenue?"
  ragctl enqueue report.pdf              # Queue a converted PDF for the worker`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context(), c.verbose)
			if err != nil {
				return err
			}
			c.svc = svc
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.svc != nil && c.svc.Close != nil {
				c.svc.Close()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "verbose logging on stderr")

	root.AddCommand(
		c.addCmd(),
		c.removeCmd(),
		c.listCmd(),
		c.queryCmd(),
		c.enqueueCmd(),
	)
	return root
}

func (c *cli) addCmd() *cobra.Command {
	var noRebuild bool
	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Add markdown documents to the chunk store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for _, path := range args {
				chunks, err := c.svc.Data.AddDocument(ctx, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%d chunks)\n", path, len(chunks))
			}
			if noRebuild {
				return nil
			}
			return c.svc.RAG.Rebuild(ctx)
		},
	}
	cmd.Flags().BoolVar(&noRebuild, "no-rebuild", false, "skip the retriever rebuild")
	return cmd
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <path>...",
		Aliases: []string{"rm"},
		Short:   "Remove documents from the chunk store",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for _, path := range args {
				if err := c.svc.Data.RemoveDocument(ctx, path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
			}
			return c.svc.RAG.Rebuild(ctx)
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := c.svc.Data.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

type queryOutput struct {
	Answer           string `json:"answer"`
	KeywordContext   string `json:"keyword_context"`
	KeywordMetadata  string `json:"keyword_metadata"`
	SemanticContext  string `json:"semantic_context"`
	SemanticMetadata string `json:"semantic_metadata"`
}

func (c *cli) queryCmd() *cobra.Command {
	var (
		model      string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "query --model <name> <question>",
		Short: "Answer a question from the stored documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := c.svc.RAG.Invoke(cmd.Context(), strings.Join(args, " "), model)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(queryOutput{
					Answer:           answer.Answer,
					KeywordContext:   answer.KeywordContext,
					KeywordMetadata:  answer.KeywordMetadata,
					SemanticContext:  answer.SemanticContext,
					SemanticMetadata: answer.SemanticMetadata,
				})
			}
			fmt.Fprintln(out, answer.Answer)
			fmt.Fprintf(out, "\nkeyword:  %s\nsemantic: %s\n", answer.KeywordMetadata, answer.SemanticMetadata)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", domain.ProviderGemini, "chat model name from the catalogue")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func (c *cli) enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <name>",
		Short: "Queue a converted document for the ingest worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := domain.NewIngestJob(args[0])
			if err := c.svc.Queue.Enqueue(cmd.Context(), job); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			return nil
		},
	}
}
