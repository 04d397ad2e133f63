package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/query-reformulator/internal/bootstrap"
	"github.com/kirillkom/query-reformulator/internal/config"
	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/loader"
)

const outputBoth = "both"

type runOptions struct {
	method       string
	queriesPath  string
	format       string
	outputPath   string
	outputFormat string
	cfgPath      string
	ctxPath      string
	parallel     bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reformulate a query file with one method",
		Long: `Reformulate every query of a TSV, JSONL or XLSX file and write TSV output.

Output formats:
  concat  qid<TAB>reformulated query
  plain   generated content only, with method-specific columns
  both    <output>_concat<ext> and <output>_plain<ext>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReformulate(ctx, cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.method, "method", "", "reformulation method, see the methods command")
	f.StringVar(&opts.queriesPath, "queries", "", "query file (.tsv, .jsonl or .xlsx)")
	f.StringVar(&opts.format, "format", "", "query file format override: tsv, jsonl or xlsx")
	f.StringVar(&opts.outputPath, "output", "", "output TSV path")
	f.StringVar(&opts.outputFormat, "output-format", outputBoth, "concat, plain or both")
	f.StringVar(&opts.cfgPath, "cfg-path", "", "method config YAML (params, llm, seed, retries)")
	f.StringVar(&opts.ctxPath, "ctx-jsonl", "", "precomputed contexts JSONL ({qid, contexts})")
	f.BoolVar(&opts.parallel, "parallel", false, "force parallel generation for methods that support it")
	_ = cmd.MarkFlagRequired("method")
	_ = cmd.MarkFlagRequired("queries")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runReformulate(ctx context.Context, cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	targets, err := outputTargets(opts.outputPath, opts.outputFormat)
	if err != nil {
		return err
	}

	methodCfg, err := config.LoadMethodConfig(opts.cfgPath, opts.method)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("parallel") {
		if methodCfg.Params == nil {
			methodCfg.Params = map[string]any{}
		}
		methodCfg.Params["parallel"] = opts.parallel
	}

	cfg := global.loadConfig()
	logger := newLogger(cfg)

	app, err := bootstrap.New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	format := opts.format
	if format == "" {
		format = loader.DetectFormat(opts.queriesPath)
	}
	queries, err := app.Loader.LoadQueries(opts.queriesPath, format)
	if err != nil {
		return err
	}

	var contexts map[string][]string
	if opts.ctxPath != "" {
		if contexts, err = app.Loader.LoadContexts(opts.ctxPath); err != nil {
			return err
		}
	}

	run, err := app.Service.Run(ctx, domain.RunRequest{
		Config:   methodCfg,
		Queries:  queries,
		Contexts: contexts,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processed %d queries with %s (%d fallbacks)\n", len(run.Results), run.Method, run.Fallbacks)
	for _, t := range targets {
		if err := writeOutput(t, run); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s (%s)\n", t.path, t.format)
	}
	return nil
}

type outputTarget struct {
	path   string
	format string
}

// outputTargets resolves the files a run writes. "both" splits the output
// path into <stem>_concat<ext> and <stem>_plain<ext> next to it.
func outputTargets(path, format string) ([]outputTarget, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--output is required")
	}
	switch format {
	case loader.OutputConcat, loader.OutputPlain:
		return []outputTarget{{path: path, format: format}}, nil
	case outputBoth:
		ext := filepath.Ext(path)
		stem := strings.TrimSuffix(path, ext)
		return []outputTarget{
			{path: stem + "_concat" + ext, format: loader.OutputConcat},
			{path: stem + "_plain" + ext, format: loader.OutputPlain},
		}, nil
	default:
		return nil, fmt.Errorf("invalid --output-format %q: must be concat, plain or both", format)
	}
}

func writeOutput(t outputTarget, run *domain.ReformulationRun) error {
	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(t.path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := encodeOutput(f, t.format, run); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", t.path, err)
	}
	return f.Close()
}

func encodeOutput(w io.Writer, format string, run *domain.ReformulationRun) error {
	if format == loader.OutputPlain {
		return loader.WritePlain(w, run.Method, run.Results)
	}
	return loader.WriteConcat(w, run.Results)
}
