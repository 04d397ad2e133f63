package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/query-reformulator/internal/bootstrap"
)

func newIndexCmd(global *globalOptions) *cobra.Command {
	var corpus, collection string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load a passage corpus into the Qdrant collection",
		Long: `Load a JSONL or TSV corpus, split it into chunks (CHUNK_SIZE, CHUNK_OVERLAP)
and upsert it into Qdrant. Dense indexing (QDRANT_DENSE=true) embeds passages
with the Ollama embedding model; otherwise BM25-style sparse vectors are used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := global.loadConfig()
			if corpus != "" {
				cfg.SearchCorpusPath = corpus
			}
			if collection != "" {
				cfg.QdrantCollection = collection
			}
			n, err := bootstrap.IndexQdrant(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d passages into %s\n", n, cfg.QdrantCollection)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpus, "corpus", "", "corpus file (default SEARCH_CORPUS_PATH)")
	cmd.Flags().StringVar(&collection, "collection", "", "Qdrant collection (default QDRANT_COLLECTION)")
	return cmd
}
