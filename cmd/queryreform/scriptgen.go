package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type scriptOptions struct {
	index  string
	topics string
	run    string
	qrels  string
	bm25   bool
	extra  string
}

// retrievalScript renders a bash script that runs Pyserini search over the
// reformulated topics and, with qrels, scores the run with trec_eval.
func retrievalScript(o scriptOptions) string {
	lines := []string{
		"#!/usr/bin/env bash",
		"set -euo pipefail",
		"",
		"# Pyserini search",
		"python -m pyserini.search.lucene \\",
		"  --index " + o.index + " \\",
		"  --topics " + o.topics + " \\",
		"  --output " + o.run + " \\",
	}
	if o.bm25 {
		lines = append(lines, "  --bm25")
	} else {
		lines = append(lines, "  --qld")
	}
	if o.extra != "" {
		lines = append(lines, "  "+o.extra)
	}
	lines = append(lines, "")
	if o.qrels != "" {
		lines = append(lines,
			"# trec_eval",
			fmt.Sprintf("trec_eval -m map -m P.10 -m ndcg_cut.10 %s %s | tee %s.eval.txt", o.qrels, o.run, o.run),
		)
	}
	return strings.Join(lines, "\n")
}

func newScriptGenCmd() *cobra.Command {
	opts := scriptOptions{}
	var output string

	cmd := &cobra.Command{
		Use:   "script-gen",
		Short: "Generate a Pyserini retrieval and evaluation script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.WriteFile(output, []byte(retrievalScript(opts)), 0o755); err != nil {
				return fmt.Errorf("write script: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s\n", output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.index, "index-path", "", "Lucene index path or prebuilt index name")
	f.StringVar(&opts.topics, "topics", "", "reformulated topics TSV")
	f.StringVar(&opts.run, "run", "", "output run file")
	f.StringVar(&opts.qrels, "qrels", "", "qrels file; adds a trec_eval step")
	f.BoolVar(&opts.bm25, "bm25", true, "rank with BM25 (false uses QLD)")
	f.StringVar(&opts.extra, "extra", "", "extra Pyserini flags appended verbatim")
	f.StringVar(&output, "output-bash", "run_retrieval.sh", "script path")
	_ = cmd.MarkFlagRequired("index-path")
	_ = cmd.MarkFlagRequired("topics")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
