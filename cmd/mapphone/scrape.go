package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/scraper"
	"github.com/IshaanNene/MapPhone/internal/storage"
	"github.com/IshaanNene/MapPhone/internal/types"
)

type scrapeFlags struct {
	headless   bool
	engine     string
	maxRecords int
	timeout    time.Duration
	output     string
	format     string
}

var scrapeOpts scrapeFlags

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [search term]",
		Short: "Run one search and extract its business listings",
		Long: `Run one search and extract name, website and phone number for each listing.

Without arguments the search term is read from standard input. Ctrl+C stops
the run early; records collected so far are still saved and printed.`,
		Example: `  mapphone scrape "dental clinics in Lahore"
  mapphone scrape --max-records 50 --format csv,json coffee shops in Austin`,
		RunE: runScrape,
	}

	cmd.Flags().BoolVar(&scrapeOpts.headless, "headless", true, "run the browser without a window")
	cmd.Flags().StringVar(&scrapeOpts.engine, "engine", "", "browser engine: rod, chromedp")
	cmd.Flags().IntVarP(&scrapeOpts.maxRecords, "max-records", "m", 0, "stop after this many records (0 = config default)")
	cmd.Flags().DurationVarP(&scrapeOpts.timeout, "timeout", "t", 0, "overall run time budget (0 = config default)")
	cmd.Flags().StringVarP(&scrapeOpts.output, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&scrapeOpts.format, "format", "f", "", "comma-separated sinks: csv, json, sqlite, excel, mongo")

	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := loadConfig(func(cfg *config.Config) {
		applyScrapeOverrides(cfg, scrapeOpts, cmd.Flags().Changed("headless"))
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	term := strings.Join(args, " ")
	if strings.TrimSpace(term) == "" {
		term, err = promptTerm(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
	}

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		srv := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
		defer srv.Close()
	}

	manager, err := browser.NewManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("create browser manager: %w", err)
	}

	sc := scraper.New(cfg.Scrape, manager, logger,
		scraper.WithStorage(store),
		scraper.WithMetrics(metrics),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := sc.Run(ctx, term)
	if errors.Is(err, types.ErrEmptySearchTerm) {
		return errors.New("a search term is required")
	}
	if err != nil {
		return err
	}

	printResult(cmd.OutOrStdout(), res, cfg.Storage)
	if res.Err != nil {
		return res.Err
	}
	return nil
}

func applyScrapeOverrides(cfg *config.Config, f scrapeFlags, headlessSet bool) {
	if headlessSet {
		cfg.Browser.Headless = f.headless
	}
	if f.engine != "" {
		cfg.Browser.Engine = strings.ToLower(f.engine)
	}
	if f.maxRecords > 0 {
		cfg.Scrape.MaxRecords = f.maxRecords
	}
	if f.timeout > 0 {
		cfg.Scrape.RunTimeout = f.timeout
		if cfg.Scrape.PaginationTimeout > f.timeout {
			cfg.Scrape.PaginationTimeout = f.timeout
		}
	}
	if f.output != "" {
		cfg.Storage.OutputDir = f.output
	}
	if f.format != "" {
		cfg.Storage.Types = splitList(f.format)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func promptTerm(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter search term (e.g. dental clinics in Lahore): ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read search term: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func printResult(w io.Writer, res *scraper.Result, st config.StorageConfig) {
	fmt.Fprintln(w)
	for i, r := range res.Records {
		fmt.Fprintf(w, "%3d. %s\n", i+1, orNA(r.Name))
		fmt.Fprintf(w, "     Website: %s\n", orNA(r.Website))
		fmt.Fprintf(w, "     Phone:   %s\n", orNA(r.Phone))
	}

	fmt.Fprintf(w, "\n%s\n", res.Message())
	fmt.Fprintf(w, "   Records:  %d (%d links harvested, %d visited)\n", len(res.Records), res.LinksHarvested, res.LinksVisited)
	fmt.Fprintf(w, "   Paging:   %s, %d pages\n", res.Pagination.Status, res.Pagination.Pages)
	fmt.Fprintf(w, "   Elapsed:  %s\n", res.Elapsed.Round(time.Millisecond))
	if len(res.Records) > 0 && writesCSV(st) {
		fmt.Fprintf(w, "   Output:   %s, %s\n",
			filepath.Join(st.OutputDir, st.PhonesFile), filepath.Join(st.OutputDir, st.WebsitesFile))
	}
}

// writesCSV mirrors storage.New, which falls back to csv when no type is set.
func writesCSV(st config.StorageConfig) bool {
	return len(st.Types) == 0 || slices.Contains(st.Types, "csv")
}

func orNA(s string) string {
	if s == "" {
		return storage.Placeholder
	}
	return s
}
