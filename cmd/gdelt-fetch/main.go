// gdelt-fetch downloads GDELT bulk files for a date range and streams
// the parsed records as newline-delimited JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RBozydar/go-gdelt/internal/config"
	"github.com/RBozydar/go-gdelt/pkg/cache"
	"github.com/RBozydar/go-gdelt/pkg/dedup"
	"github.com/RBozydar/go-gdelt/pkg/downloader"
	"github.com/RBozydar/go-gdelt/pkg/logging"
	"github.com/RBozydar/go-gdelt/pkg/source"
)

const dateLayout = "2006-01-02T15:04"

var (
	configPath   string
	startArg     string
	endArg       string
	fileTypeArg  string
	policyArg    string
	dedupArg     string
	recordIDArg  string
	columnsArg   []string
	translation  bool
	serveMetrics bool
	beforeArg    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gdelt-fetch",
		Short:        "Fetch GDELT bulk files with caching and bounded concurrency",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(newFetchCmd())
	root.AddCommand(newURLsCmd())
	root.AddCommand(newCacheCmd())
	return root
}

// loadConfig reads the config file or falls back to pure defaults.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadAndValidate(configPath)
	}
	return config.Default(), nil
}

func setupRuntime(cfg *config.Config) context.Context {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down")
		cancel()
	}()

	if serveMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	return ctx
}

func buildOrchestrator(cfg *config.Config) (*source.Orchestrator, error) {
	fileCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.DefaultTTL)
	if err != nil {
		return nil, err
	}

	bulk, err := downloader.New(fileCache, downloader.Config{
		MaxRetries:     cfg.Downloader.MaxRetries,
		RequestTimeout: cfg.Downloader.RequestTimeout,
		MaxConcurrent:  cfg.Downloader.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	return source.New(bulk, parseExport,
		source.WithFallback(cfg.Fallback.Enabled),
		source.WithMaxConcurrent(cfg.Downloader.MaxConcurrent),
	)
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Stream records for a date range as NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := setupRuntime(cfg)

			q, err := buildQuery()
			if err != nil {
				return err
			}
			policy, err := parsePolicy(policyArg)
			if err != nil {
				return err
			}

			o, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}

			out, err := o.Fetch(ctx, q, policy)
			if err != nil {
				return err
			}

			records, streamErr := toRecordStream(ctx, out)
			if dedupArg != "" {
				strategy, err := parseStrategy(dedupArg)
				if err != nil {
					return err
				}
				records = dedup.Deduplicate(ctx, records, strategy)
			}

			enc := json.NewEncoder(os.Stdout)
			count := 0
			for r := range records {
				if err := enc.Encode(r); err != nil {
					return err
				}
				count++
			}
			if err := streamErr(); err != nil {
				return err
			}
			log.Info().Int("records", count).Msg("Fetch complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&startArg, "start", "", "range start, UTC (2006-01-02T15:04)")
	cmd.Flags().StringVar(&endArg, "end", "", "range end, UTC (2006-01-02T15:04)")
	cmd.Flags().StringVar(&fileTypeArg, "type", "export", "file type: export, mentions, gkg")
	cmd.Flags().StringVar(&policyArg, "policy", "warn", "error policy: raise, warn, skip")
	cmd.Flags().StringVar(&dedupArg, "dedup", "", "dedup strategy: url_only, url_date, url_date_location, url_date_location_actors, aggressive")
	cmd.Flags().StringVar(&recordIDArg, "event-id", "", "fetch a single event by global id (requires a query-engine source)")
	cmd.Flags().StringSliceVar(&columnsArg, "columns", nil, "restrict output to these columns")
	cmd.Flags().BoolVar(&translation, "translation", false, "use the translation feed")
	cmd.Flags().BoolVar(&serveMetrics, "metrics", false, "expose Prometheus metrics while running")
	return cmd
}

// toRecordStream strips the error envelope off the fetch stream. The
// returned func reports the error that ended the stream, valid once the
// record channel has closed.
func toRecordStream(ctx context.Context, in <-chan source.RecordResult) (<-chan dedup.Record, func() error) {
	out := make(chan dedup.Record)
	var streamErr error
	go func() {
		defer close(out)
		for r := range in {
			if r.Err != nil {
				streamErr = r.Err
				return
			}
			select {
			case out <- r.Record:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() error { return streamErr }
}

func buildQuery() (source.RecordQuery, error) {
	var q source.RecordQuery

	recordID, err := parseEventID(recordIDArg)
	if err != nil {
		return q, fmt.Errorf("invalid --event-id: %w", err)
	}
	q.RecordID = recordID
	q.Columns = columnsArg

	ft, err := parseFileType(fileTypeArg)
	if err != nil {
		return q, err
	}
	q.FileType = ft

	if startArg == "" || endArg == "" {
		return q, fmt.Errorf("--start and --end are required")
	}
	q.Start, err = time.Parse(dateLayout, startArg)
	if err != nil {
		return q, fmt.Errorf("invalid --start: %w", err)
	}
	q.End, err = time.Parse(dateLayout, endArg)
	if err != nil {
		return q, fmt.Errorf("invalid --end: %w", err)
	}
	return q, nil
}

func parseFileType(s string) (downloader.FileType, error) {
	switch s {
	case "export":
		return downloader.FileTypeEvents, nil
	case "mentions":
		return downloader.FileTypeMentions, nil
	case "gkg":
		return downloader.FileTypeGKG, nil
	default:
		return "", fmt.Errorf("unknown file type %q", s)
	}
}

func parsePolicy(s string) (source.ErrorPolicy, error) {
	switch s {
	case "raise":
		return source.PolicyRaise, nil
	case "warn":
		return source.PolicyWarn, nil
	case "skip":
		return source.PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown error policy %q", s)
	}
}

func parseStrategy(s string) (dedup.Strategy, error) {
	switch s {
	case "url_only":
		return dedup.URLOnly, nil
	case "url_date":
		return dedup.URLDate, nil
	case "url_date_location":
		return dedup.URLDateLocation, nil
	case "url_date_location_actors":
		return dedup.URLDateLocationActors, nil
	case "aggressive":
		return dedup.Aggressive, nil
	default:
		return 0, fmt.Errorf("unknown dedup strategy %q", s)
	}
}

func newURLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "urls",
		Short: "Print the bulk file URLs for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery()
			if err != nil {
				return err
			}
			var opts []downloader.URLOption
			if translation {
				opts = append(opts, downloader.WithTranslation())
			}
			urls, err := downloader.FilesForDateRange(q.Start, q.End, q.FileType, opts...)
			if err != nil {
				return err
			}
			for _, u := range urls {
				fmt.Println(u)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&startArg, "start", "", "range start, UTC (2006-01-02T15:04)")
	cmd.Flags().StringVar(&endArg, "end", "", "range end, UTC (2006-01-02T15:04)")
	cmd.Flags().StringVar(&fileTypeArg, "type", "export", "file type: export, mentions, gkg")
	cmd.Flags().BoolVar(&translation, "translation", false, "use the translation feed")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the on-disk cache",
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fileCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.DefaultTTL)
			if err != nil {
				return err
			}

			var before *time.Time
			if beforeArg != "" {
				t, err := time.Parse(dateLayout, beforeArg)
				if err != nil {
					return fmt.Errorf("invalid --before: %w", err)
				}
				before = &t
			}

			removed, err := fileCache.Clear(before)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d entries\n", removed)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&beforeArg, "before", "", "only remove entries created before this time (2006-01-02T15:04)")

	sizeCmd := &cobra.Command{
		Use:   "size",
		Short: "Print total payload bytes in the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fileCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.DefaultTTL)
			if err != nil {
				return err
			}
			size, err := fileCache.Size()
			if err != nil {
				return err
			}
			fmt.Printf("%d bytes\n", size)
			return nil
		},
	}

	cacheCmd.AddCommand(clearCmd)
	cacheCmd.AddCommand(sizeCmd)
	return cacheCmd
}
