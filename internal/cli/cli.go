package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/pfrederiksen/status-history/internal/config"
	"github.com/pfrederiksen/status-history/internal/logger"
	"github.com/pfrederiksen/status-history/internal/scraper"
	"github.com/pfrederiksen/status-history/internal/storage"
	"github.com/pfrederiksen/status-history/internal/surface"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	flagConfig   string
	flagDataDir  string
	flagFormat   string
	flagHeadless bool
	flagVerbose  bool
	flagLogFile  string
	flagOutput   string
	flagSort     string
	flagService  string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status-history",
		Short: "Archive the incident and uptime history of a status page",
		Long: `A CLI tool that drives a status page in a browser and archives its history.
The incidents command walks the incident history month by month, the uptime
command walks the uptime calendar of one service. Results are written as CSV
or XLSX files partitioned by month, date and service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Define flags
	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "status-history.json5", "Config file (json5); <name>.local.<ext> is merged over it")
	pf.StringVar(&flagDataDir, "data-dir", "", "Root directory of the archive (default from config)")
	pf.StringVar(&flagFormat, "format", "", "Archive format: csv or xlsx (default from config)")
	pf.BoolVar(&flagHeadless, "headless", true, "Run the browser without a window")
	pf.BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")
	pf.StringVar(&flagLogFile, "log-file", "", "Also write JSON logs to this file")
	pf.StringVar(&flagOutput, "output", "text", "Summary format: text or json")
	pf.StringVar(&flagSort, "sort", "", "Sort archived files by: path or records")

	cmd.AddCommand(newIncidentsCmd(), newUptimeCmd())

	return cmd
}

func newIncidentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "incidents",
		Short: "Collect the incident history",
		Long: `Walks the incident history backwards page by page, opening every incident
to capture its updates and affected service, until a page lists no incidents.`,
		Args: cobra.NoArgs,
		RunE: runIncidents,
	}
}

func newUptimeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uptime",
		Short: "Collect the uptime calendar of one service",
		Long: `Walks the uptime calendar backwards page by page, reading the tooltip of
every active day, until a day reports no data.`,
		Args: cobra.NoArgs,
		RunE: runUptime,
	}
	cmd.Flags().StringVarP(&flagService, "service", "S", "", "Service to collect (default from config)")
	return cmd
}

// session holds what both commands set up before driving the browser.
type session struct {
	cfg     config.Config
	log     *logger.Logger
	archive *storage.Archive
	runID   string
	started time.Time
	format  OutputFormat
	sort    SortOrder
}

// newSession loads the configuration, applies flag overrides and sets up
// logging and the archive.
func newSession(cmd *cobra.Command) (*session, error) {
	format := OutputFormat(strings.ToLower(flagOutput))
	if format != FormatText && format != FormatJSON {
		return nil, fmt.Errorf("invalid output: %s (must be 'text' or 'json')", flagOutput)
	}
	order := SortOrder(strings.ToLower(flagSort))
	if order != "" && order != SortByPath && order != SortByRecords {
		return nil, fmt.Errorf("invalid sort: %s (must be 'path' or 'records')", flagSort)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if flagVerbose {
		level = logger.LevelDebug
	}
	log, err := logger.Setup(logger.Options{Level: level, Console: os.Stderr, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	runID := uuid.NewString()
	log = log.With(logger.Fields{"run_id": runID, "source": cfg.Source})
	logger.SetDefault(log)

	archiveFormat, err := storage.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	archive, err := storage.New(cfg.DataDir, cfg.Source, archiveFormat)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	log.Debug("Configuration loaded", logger.Fields{
		"config":   flagConfig,
		"data_dir": archive.Dir(),
		"format":   string(archiveFormat),
		"headless": cfg.IsHeadless(),
	})

	return &session{
		cfg:     cfg,
		log:     log,
		archive: archive,
		runID:   runID,
		started: time.Now().UTC(),
		format:  format,
		sort:    order,
	}, nil
}

// applyFlags overrides configuration fields with flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	overlay := config.Config{
		DataDir: flagDataDir,
		Format:  flagFormat,
		LogFile: flagLogFile,
	}
	if cmd.Flags().Changed("headless") {
		headless := flagHeadless
		overlay.Headless = &headless
	}
	return cfg.Override(overlay)
}

// openBrowser starts the browser and loads url.
func (s *session) openBrowser(ctx context.Context, url string) (*surface.Chrome, error) {
	s.log.Info("Starting browser", logger.Fields{"url": url, "headless": s.cfg.IsHeadless()})

	chrome, err := surface.NewChrome(ctx, surface.ChromeOptions{
		Headless:  s.cfg.IsHeadless(),
		ExecPath:  s.cfg.ChromePath,
		OpTimeout: s.cfg.Timeouts.Operation.Std(),
	})
	if err != nil {
		return nil, err
	}
	if err := chrome.Navigate(ctx, url); err != nil {
		chrome.Close()
		return nil, err
	}
	return chrome, nil
}

// finish prints the summary of a run. The run error, if any, is returned
// after the summary so partial results are still reported.
func (s *session) finish(summary *scraper.Summary, runErr error) error {
	logger.RecordTiming("run", time.Since(s.started))
	if summary != nil {
		result := newOutputResult(s.runID, s.started, summary, logger.GetMetricsSnapshot(), s.sort)
		if err := WriteOutput(os.Stdout, result, s.format, flagVerbose); err != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("writing output: %w", err))
		}
	}
	if runErr != nil {
		s.log.Error("Run failed", logger.Fields{"elapsed": time.Since(s.started).String()}, runErr)
	}
	_ = s.log.Sync()
	return runErr
}

// runIncidents is the incidents command logic
func runIncidents(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	chrome, err := s.openBrowser(ctx, s.cfg.HistoryURL)
	if err != nil {
		return s.finish(nil, err)
	}
	defer chrome.Close()

	extractor := scraper.NewIncidentExtractor(chrome, s.cfg, s.archive, s.log, logger.DefaultMetrics())
	summary, err := extractor.CollectThroughPagination(ctx)
	return s.finish(summary, err)
}

// runUptime is the uptime command logic
func runUptime(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	service := strings.ToLower(strings.TrimSpace(flagService))
	if service == "" {
		service = s.cfg.DefaultService
	}
	if !s.cfg.HasService(service) {
		return fmt.Errorf("invalid service: %s (must be one of %s)", service, strings.Join(s.cfg.Services, ", "))
	}
	s.log.Info("Collecting uptime data", logger.Fields{"service": service})

	ctx := cmd.Context()
	chrome, err := s.openBrowser(ctx, s.cfg.UptimeURL)
	if err != nil {
		return s.finish(nil, err)
	}
	defer chrome.Close()

	extractor := scraper.NewUptimeExtractor(chrome, s.cfg, service, s.archive, s.log, logger.DefaultMetrics())
	summary, err := extractor.CollectThroughPagination(ctx)
	return s.finish(summary, err)
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}
