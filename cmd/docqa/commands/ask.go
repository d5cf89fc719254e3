package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/model"
	"docqa/internal/ner"
	"docqa/internal/qa"
	"docqa/internal/rag"
)

const cliCorpus = "cli"

// NewAskCmd constructs `docqa ask`, which indexes the given files in memory
// and answers one question against them.
func NewAskCmd() *cobra.Command {
	var (
		files     []string
		asJSON    bool
		highlight string
		contextN  int
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from local documents",
		Long: `Answer a question from one or more local documents.

With a single file the whole text is scanned in overlapping windows. With
several files the question is answered from the chunks retrieved across all
of them, falling back to scanning each file.

Examples:
  docqa ask -f contract.pdf "What is the contract amount?"
  docqa ask -f a.txt -f b.md --highlight markdown "When does the lease start?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return errors.New("at least one --file is required")
			}
			ctx := cmd.Context()
			question := args[0]

			docs, err := loadDocuments(ctx, files, time.Duration(cfg.Upload.ExtractionTimeoutSeconds)*time.Second)
			if err != nil {
				return err
			}

			engine, err := rag.NewEngine(rag.NewHashEmbedder(cfg.RAG.EmbeddingDim), nil, rag.Options{
				ChunkSize:      cfg.RAG.ChunkSize,
				ChunkOverlap:   cfg.RAG.ChunkOverlap,
				MinChunkLength: cfg.RAG.MinChunkLength,
				CandidatePool:  cfg.RAG.CandidatePool,
			}, nil, logger)
			if err != nil {
				return err
			}
			answerer, err := qa.NewAnswerer(qa.NewLexicalExtractor(), engine, qa.Options{
				WindowSize:    cfg.QA.WindowSize,
				WindowOverlap: cfg.QA.WindowOverlap,
			}, logger)
			if err != nil {
				return err
			}

			var ans model.Answer
			if len(docs) == 1 {
				ans = answerer.Answer(ctx, question, docs[0].Text)
				ans.Source = docs[0].ID
			} else {
				engine.Build(ctx, cliCorpus, docs)
				ans, _ = answerer.AnswerFromDocuments(ctx, question, docs, cliCorpus, contextN)
			}

			res, err := ner.NewPatternRecognizer().HighlightEntities(ctx, ans.Text)
			if err != nil {
				return err
			}
			ans.Entities = res.Entities

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ans)
			}

			text := ans.Text
			if highlight != "" {
				text, err = ner.Render(ans.Text, ans.Entities, highlight)
				if err != nil {
					return err
				}
			}
			fmt.Fprintln(out, text)
			fmt.Fprintf(out, "confidence: %.4f\n", ans.Confidence)
			if ans.Source != "" {
				fmt.Fprintf(out, "source: %s\n", ans.Source)
			}
			for label, texts := range ner.Group(ans.Entities) {
				fmt.Fprintf(out, "%s: %v\n", label, texts)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Document to search (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	cmd.Flags().StringVar(&highlight, "highlight", "", "Mark entities in the answer (html or markdown)")
	cmd.Flags().IntVar(&contextN, "max-context", rag.DefaultMaxContextLength, "Maximum retrieved context length in characters")

	return cmd
}
