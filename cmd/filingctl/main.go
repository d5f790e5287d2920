// Command filingctl ingests annual filings, validates the artifact tree and
// looks up filings for individual tickers.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"filing_ingest/pkg/core/config"
	"filing_ingest/pkg/core/figures"
	"filing_ingest/pkg/core/ingest"
	"filing_ingest/pkg/core/logging"
	"filing_ingest/pkg/core/pipeline"
	"filing_ingest/pkg/core/store"
	"filing_ingest/pkg/core/validate"
)

type rootOptions struct {
	configPath string
	logLevel   string
	outputDir  string
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "filingctl",
		Short:        "Ingest and validate SEC annual filings",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .toml, .hjson, .json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&opts.outputDir, "output", "o", "", "override artifact output directory")

	root.AddCommand(newIngestCmd(opts), newValidateCmd(opts), newLocateCmd(opts))
	return root
}

// load resolves config and logger with flag overrides applied.
func (o *rootOptions) load() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}
	return cfg, logging.New(cfg.LogLevel, nil), nil
}

func newFetcher(cfg *config.Config, logger *log.Logger) *ingest.Fetcher {
	return ingest.NewFetcher(cfg.UserAgent,
		ingest.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		ingest.WithLimiter(ingest.NewSpacingLimiter(cfg.RequestSpacing)),
		ingest.WithRetry(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax),
		ingest.WithMinDocumentBytes(cfg.MinDocumentBytes),
		ingest.WithFetchLogger(logger),
	)
}

func newLocator(cfg *config.Config, fetcher *ingest.Fetcher, logger *log.Logger) *ingest.EDGARLocator {
	return ingest.NewEDGARLocator(fetcher,
		ingest.WithLookback(cfg.Lookback),
		ingest.WithLocatorLogger(logger),
	)
}

// =============================================================================
// ingest
// =============================================================================

func newIngestCmd(root *rootOptions) *cobra.Command {
	var (
		tickersFile string
		force       bool
		concurrency int
		reportDir   string
	)
	cmd := &cobra.Command{
		Use:   "ingest [TICKER...]",
		Short: "Locate, fetch, segment and persist filings for a batch of tickers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.Concurrency = concurrency
			}
			tickers, err := collectTickers(args, tickersFile)
			if err != nil {
				return err
			}
			if len(tickers) == 0 {
				return fmt.Errorf("no tickers given")
			}

			vocab, err := figures.VocabularyFromConfig(cfg.Vocabulary)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			artifacts := store.NewArtifactStore(cfg.OutputDir, logger)
			fetcher := newFetcher(cfg, logger)
			validator := validate.NewValidator(artifacts, cfg.ExpectedSections, vocab, logger)

			opts := []pipeline.Option{
				pipeline.WithSegmenter(ingest.NewTenKParser(cfg.TOCThreshold)),
				pipeline.WithExtractor(figures.NewExtractor(vocab, cfg.WindowLines)),
				pipeline.WithValidator(validator),
				pipeline.WithExpectedSections(cfg.ExpectedSections),
				pipeline.WithWordsPerPage(cfg.WordsPerPage),
				pipeline.WithConcurrency(cfg.Concurrency),
				pipeline.WithForce(force || cfg.Force),
				pipeline.WithLogger(logger),
			}
			if cfg.DatabaseURL != "" {
				if err := store.InitDB(ctx, cfg.DatabaseURL); err != nil {
					return err
				}
				defer store.Close()
				repo := store.NewFilingRepo(store.GetPool())
				if err := repo.EnsureSchema(ctx); err != nil {
					return err
				}
				opts = append(opts, pipeline.WithSink(repo))
			}

			p := pipeline.NewPipeline(newLocator(cfg, fetcher, logger), fetcher, artifacts, opts...)
			res, err := p.RunBatch(ctx, tickers)
			if err != nil {
				return err
			}
			printCounts(res)

			report := validator.ValidateBatch(tickers)
			if reportDir == "" {
				reportDir = cfg.OutputDir
			}
			paths, err := validate.WriteReport(reportDir, report)
			if err != nil {
				return err
			}
			logger.Info().Str("report", paths[0]).Int("refetch", len(report.Summary.RefetchTickers)).Msg("validation report written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&tickersFile, "file", "f", "", "file with one ticker per line")
	cmd.Flags().BoolVar(&force, "force", false, "re-process tickers whose artifacts are already complete")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker count (default from config)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "where to write the validation report (default: output dir)")
	return cmd
}

func printCounts(res *pipeline.BatchResult) {
	statuses := make([]string, 0, len(res.Counts))
	for s := range res.Counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	fmt.Printf("run %s: %d tickers\n", res.RunID, len(res.Outcomes))
	for _, s := range statuses {
		fmt.Printf("  %-20s %d\n", s, res.Counts[pipeline.OutcomeStatus(s)])
	}
}

// =============================================================================
// validate
// =============================================================================

func newValidateCmd(root *rootOptions) *cobra.Command {
	var (
		tickersFile string
		reportDir   string
	)
	cmd := &cobra.Command{
		Use:   "validate [TICKER...]",
		Short: "Check persisted artifacts for completeness and write a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			tickers, err := collectTickers(args, tickersFile)
			if err != nil {
				return err
			}
			if len(tickers) == 0 {
				// Default to every ticker directory in the artifact tree.
				if tickers, err = listTickerDirs(cfg.OutputDir); err != nil {
					return err
				}
			}
			vocab, err := figures.VocabularyFromConfig(cfg.Vocabulary)
			if err != nil {
				return err
			}
			artifacts := store.NewArtifactStore(cfg.OutputDir, logger)
			report := validate.NewValidator(artifacts, cfg.ExpectedSections, vocab, logger).ValidateBatch(tickers)

			if reportDir == "" {
				reportDir = cfg.OutputDir
			}
			paths, err := validate.WriteReport(reportDir, report)
			if err != nil {
				return err
			}
			s := report.Summary
			fmt.Printf("%d tickers: %d complete, %d incomplete, %d not parsed, %d MD&A flagged\n",
				s.TotalTickers, s.Complete, s.Incomplete, s.NotParsed, s.MDAAttention)
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&tickersFile, "file", "f", "", "file with one ticker per line")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "where to write the report (default: output dir)")
	return cmd
}

// =============================================================================
// locate
// =============================================================================

func newLocateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "locate TICKER",
		Short: "Print the filing the pipeline would ingest for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			fetcher := newFetcher(cfg, logger)
			meta, err := newLocator(cfg, fetcher, logger).Locate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(meta)
		},
	}
}

// =============================================================================
// helpers
// =============================================================================

// collectTickers merges positional tickers with a ticker file. Blank lines
// and lines starting with # are ignored.
func collectTickers(args []string, path string) ([]string, error) {
	tickers := append([]string{}, args...)
	if path == "" {
		return tickers, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ticker file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tickers = append(tickers, strings.Fields(line)[0])
	}
	return tickers, sc.Err()
}

func listTickerDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	var tickers []string
	for _, e := range entries {
		if e.IsDir() {
			tickers = append(tickers, e.Name())
		}
	}
	return tickers, nil
}
