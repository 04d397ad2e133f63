package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/query-reformulator/internal/infrastructure/loader"
)

func newDataToTSVCmd(global *globalOptions) *cobra.Command {
	var in, format, out string

	cmd := &cobra.Command{
		Use:   "data-to-tsv",
		Short: "Convert a JSONL or XLSX query file to qid<TAB>query TSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files := loader.New(newLogger(global.loadConfig()))
			if format == "" {
				format = loader.DetectFormat(in)
			}
			queries, err := files.LoadQueries(in, format)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			if err := loader.WriteQueries(f, queries); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d queries to %s\n", len(queries), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "path", "", "input query file")
	cmd.Flags().StringVar(&format, "format", "", "input format override: tsv, jsonl or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "output TSV path")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
