package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/rag"
)

// NewChunkCmd constructs `docqa chunk`, which prints the chunk spans the
// index would hold for a file.
func NewChunkCmd() *cobra.Command {
	var size, overlap, minLen int

	cmd := &cobra.Command{
		Use:   "chunk [file]",
		Short: "Print the chunk spans of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("size") {
				size = cfg.RAG.ChunkSize
			}
			if !cmd.Flags().Changed("overlap") {
				overlap = cfg.RAG.ChunkOverlap
			}
			if !cmd.Flags().Changed("min") {
				minLen = cfg.RAG.MinChunkLength
			}

			docs, err := loadDocuments(cmd.Context(), args, time.Duration(cfg.Upload.ExtractionTimeoutSeconds)*time.Second)
			if err != nil {
				return err
			}
			spans, err := rag.Split(docs[0].Text, size, overlap, minLen)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, s := range spans {
				preview := strings.Join(strings.Fields(s.Text), " ")
				if r := []rune(preview); len(r) > 60 {
					preview = string(r[:60]) + "..."
				}
				fmt.Fprintf(out, "%4d  [%d, %d)  %s\n", i, s.Start, s.End, preview)
			}
			fmt.Fprintf(out, "%d chunks, size=%d overlap=%d min=%d\n", len(spans), size, overlap, minLen)
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", rag.DefaultChunkSize, "Chunk size in characters")
	cmd.Flags().IntVar(&overlap, "overlap", rag.DefaultChunkOverlap, "Overlap between chunks in characters")
	cmd.Flags().IntVar(&minLen, "min", rag.DefaultMinChunkLength, "Drop chunks whose trimmed length is not above this")

	return cmd
}
