package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/RivalWatch/internal/compare"
	"github.com/TobiSchelling/RivalWatch/internal/config"
	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/digest"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
	"github.com/TobiSchelling/RivalWatch/internal/pipeline"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "rivalwatch",
	Short:   "Competitor monitoring and alerts",
	Long:    "RivalWatch scrapes competitor sites, classifies what changed, raises alerts and writes digests and comparisons.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = logging.New("info")
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger = logging.New(level)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(competitorsCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(reclassifyCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(runCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("rivalwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/rivalwatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the LLM provider, email and schedules, then add competitors with 'rivalwatch competitors add'.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Competitors:")
		fmt.Printf("  Total: %d (%d active)\n", stats.Competitors, stats.ActiveCompetitors)
		fmt.Printf("  Scrape targets: %d\n", stats.Targets)
		fmt.Println("\nUpdates:")
		fmt.Printf("  Total: %d\n", stats.Updates)
		fmt.Printf("  Awaiting classification: %d\n", stats.UnprocessedUpdates)
		fmt.Println("\nAlerts:")
		fmt.Printf("  Total: %d (%d unread)\n", stats.Alerts, stats.UnreadAlerts)
		fmt.Println("\nOutput:")
		fmt.Printf("  Digests: %d\n", stats.Digests)
		fmt.Printf("  Comparisons: %d\n", stats.Comparisons)

		email := "not configured"
		if cfg.Email.IsConfigured() {
			email = strings.Join(cfg.Email.To, ", ")
		}
		fmt.Println("\nDelivery:")
		fmt.Printf("  Email: %s\n", email)

		if v, err := db.SchemaVersion(); err == nil {
			fmt.Printf("\nSchema version: %d\n", v)
		}
		return nil
	},
}

// --- competitors command ---

var competitorsCmd = &cobra.Command{
	Use:   "competitors",
	Short: "Manage monitored competitors",
}

var competitorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all competitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := db.ListCompetitors(false)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No competitors defined. Add one with: rivalwatch competitors add")
			return nil
		}

		fmt.Println("Competitors:")
		fmt.Println()
		for _, c := range items {
			icon := " "
			if c.Active {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s (%s)\n", c.ID, icon, c.Name, c.BaseURL)
			last := "never"
			if c.LastScrapedAt != nil {
				last = c.LastScrapedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("        %d targets, last scraped %s\n", len(c.Targets), last)
		}
		return nil
	},
}

var (
	addIndustry string
	addNotes    string
	addTargets  []string
)

var competitorsAddCmd = &cobra.Command{
	Use:   "add [name] [base-url]",
	Short: "Add a competitor",
	Long:  "Add a competitor. Targets are given as type=url, e.g. --target pricing=/pricing --target news=/news.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := parseTargets(addTargets)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c := &database.Competitor{
			Name:     args[0],
			BaseURL:  strings.TrimRight(args[1], "/"),
			Industry: addIndustry,
			Notes:    addNotes,
			Active:   true,
			Targets:  targets,
		}
		id, err := db.InsertCompetitor(c)
		if err != nil {
			return err
		}
		fmt.Printf("Added competitor [%d]: %s with %d targets\n", id, c.Name, len(targets))
		return nil
	},
}

// parseTargets turns type=url flags into scrape targets.
func parseTargets(specs []string) ([]database.ScrapeTarget, error) {
	var targets []database.ScrapeTarget
	for _, spec := range specs {
		pageType, url, ok := strings.Cut(spec, "=")
		if !ok || url == "" {
			return nil, fmt.Errorf("invalid target %q, expected type=url", spec)
		}
		t, err := newTarget(pageType, url, "")
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func newTarget(pageType, url, selector string) (database.ScrapeTarget, error) {
	pageType = strings.ToLower(strings.TrimSpace(pageType))
	if !database.IsPageType(pageType) {
		return database.ScrapeTarget{}, fmt.Errorf("unknown page type %q (valid: %s)", pageType, strings.Join(database.PageTypes, ", "))
	}
	return database.ScrapeTarget{
		Name:     strings.ToUpper(pageType[:1]) + pageType[1:],
		URL:      strings.TrimSpace(url),
		Type:     pageType,
		Selector: selector,
	}, nil
}

var competitorsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a competitor and everything recorded for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := lookupCompetitor(db, args[0])
		if err != nil {
			return err
		}
		if err := db.DeleteCompetitor(c.ID); err != nil {
			return err
		}
		fmt.Printf("Removed competitor [%d]: %s\n", c.ID, c.Name)
		return nil
	},
}

var competitorsToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle whether a competitor is scraped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := lookupCompetitor(db, args[0])
		if err != nil {
			return err
		}
		if err := db.SetCompetitorActive(c.ID, !c.Active); err != nil {
			return err
		}
		newState := "disabled"
		if !c.Active {
			newState = "enabled"
		}
		fmt.Printf("Competitor [%d] %s: %s\n", c.ID, c.Name, newState)
		return nil
	},
}

var competitorsTargetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage a competitor's scrape targets",
}

var targetsListCmd = &cobra.Command{
	Use:   "list [competitor-id]",
	Short: "List a competitor's scrape targets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := lookupCompetitor(db, args[0])
		if err != nil {
			return err
		}
		if len(c.Targets) == 0 {
			fmt.Printf("%s has no targets. Add one with: rivalwatch competitors targets add %d pricing /pricing\n", c.Name, c.ID)
			return nil
		}
		fmt.Printf("Targets for %s:\n\n", c.Name)
		for _, t := range c.Targets {
			fmt.Printf("  [%d] %-8s %s\n", t.ID, t.Type, t.URL)
			if t.Selector != "" {
				fmt.Printf("        selector: %s\n", t.Selector)
			}
		}
		return nil
	},
}

var targetSelector string

var targetsAddCmd = &cobra.Command{
	Use:   "add [competitor-id] [type] [url]",
	Short: "Add a scrape target",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newTarget(args[1], args[2], targetSelector)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		c, err := lookupCompetitor(db, args[0])
		if err != nil {
			return err
		}
		id, err := db.AddScrapeTarget(c.ID, t)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s target [%d] to %s: %s\n", t.Type, id, c.Name, t.URL)
		return nil
	},
}

var targetsRemoveCmd = &cobra.Command{
	Use:   "remove [target-id]",
	Short: "Remove a scrape target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "target")
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.RemoveScrapeTarget(id); err != nil {
			return err
		}
		fmt.Printf("Removed target [%d]\n", id)
		return nil
	},
}

func init() {
	competitorsAddCmd.Flags().StringVar(&addIndustry, "industry", "", "Industry label")
	competitorsAddCmd.Flags().StringVar(&addNotes, "notes", "", "Free-form notes")
	competitorsAddCmd.Flags().StringArrayVarP(&addTargets, "target", "t", nil, "Scrape target as type=url (repeatable)")
	targetsAddCmd.Flags().StringVar(&targetSelector, "selector", "", "CSS selector for item containers")

	competitorsTargetsCmd.AddCommand(targetsListCmd)
	competitorsTargetsCmd.AddCommand(targetsAddCmd)
	competitorsTargetsCmd.AddCommand(targetsRemoveCmd)

	competitorsCmd.AddCommand(competitorsListCmd)
	competitorsCmd.AddCommand(competitorsAddCmd)
	competitorsCmd.AddCommand(competitorsRemoveCmd)
	competitorsCmd.AddCommand(competitorsToggleCmd)
	competitorsCmd.AddCommand(competitorsTargetsCmd)
}

// --- manual triggers ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape [competitor-id]",
	Short: "Scrape all active competitors, or one competitor",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline, db *database.DB) pipeline.StepResult {
			if len(args) == 0 {
				return pipe.Scrape(ctx)
			}
			c, err := lookupCompetitor(db, args[0])
			if err != nil {
				return pipeline.StepResult{Name: "Scrape", Err: err}
			}
			return pipe.ScrapeCompetitor(ctx, c.ID)
		})
	},
}

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify",
	Short: "Re-run classification over recent unprocessed updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline, _ *database.DB) pipeline.StepResult {
			return pipe.Reclassify(ctx)
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Mark updates past the retention age processed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline, _ *database.DB) pipeline.StepResult {
			return pipe.Cleanup(ctx)
		})
	},
}

// --- digest command ---

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Generate or show digests",
}

var digestDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Generate the daily digest now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline, _ *database.DB) pipeline.StepResult {
			return pipe.DailyDigest(ctx)
		})
	},
}

var digestWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Generate the weekly digest now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline, _ *database.DB) pipeline.StepResult {
			return pipe.WeeklyDigest(ctx)
		})
	},
}

var (
	digestShowType string
	digestShowList bool
)

var digestShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db, logger)
		if err != nil {
			return err
		}
		loc, _ := cfg.Digest.Location()

		if digestShowList {
			history, err := pipe.Digests().History("", 0)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Println("No digests yet.")
				return nil
			}
			for _, d := range history {
				emailed := ""
				if d.EmailSent {
					emailed = " (emailed)"
				}
				fmt.Printf("  [%d] %-6s %s to %s, %d updates%s\n", d.ID, d.Type,
					d.PeriodStart.In(loc).Format("2006-01-02"), d.PeriodEnd.In(loc).Format("2006-01-02"),
					len(d.UpdateIDs), emailed)
			}
			return nil
		}

		d, err := pipe.Digests().Latest(digestShowType)
		if err != nil {
			return err
		}
		if d == nil {
			fmt.Printf("No %s digest yet. Generate one with: rivalwatch digest %s\n", digestShowType, digestShowType)
			return nil
		}
		out, err := digest.Markdown(d, loc)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	digestShowCmd.Flags().StringVar(&digestShowType, "type", database.DigestDaily, "Digest type (daily or weekly)")
	digestShowCmd.Flags().BoolVar(&digestShowList, "list", false, "List stored digests instead")

	digestCmd.AddCommand(digestDailyCmd)
	digestCmd.AddCommand(digestWeeklyCmd)
	digestCmd.AddCommand(digestShowCmd)
}

// --- compare command ---

var compareShow bool

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Generate the competitor comparison matrix",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !compareShow {
			return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline, _ *database.DB) pipeline.StepResult {
				return pipe.Compare(ctx)
			})
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db, logger)
		if err != nil {
			return err
		}
		c, err := pipe.Comparisons().Latest()
		if err != nil {
			return err
		}
		if c == nil {
			fmt.Println("No comparison yet. Generate one with: rivalwatch compare")
			return nil
		}
		out, err := compare.Markdown(c)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	compareCmd.Flags().BoolVar(&compareShow, "show", false, "Show the latest stored comparison instead of generating one")
}

// --- alerts command ---

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List and acknowledge alerts",
}

var (
	alertsAll      bool
	alertsLimit    int
	alertsSeverity string
)

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unread alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		alerts, err := db.ListAlerts(database.AlertFilter{
			Severity:   alertsSeverity,
			UnreadOnly: !alertsAll,
			Limit:      uint64(max(alertsLimit, 0)),
		})
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("No alerts.")
			return nil
		}

		for _, a := range alerts {
			icon := "*"
			if a.Read {
				icon = " "
			}
			fmt.Printf("  [%d] %s %-8s %s\n", a.ID, icon, strings.ToUpper(a.Severity), a.Title)
			fmt.Printf("        %s (%s, %s)\n", a.Message, a.Rule, a.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var alertsReadAll bool

var alertsReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark an alert, or all alerts, read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !alertsReadAll {
			return errors.New("give an alert ID or --all")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if alertsReadAll {
			n, err := db.MarkAllAlertsRead(time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Marked %d alerts read\n", n)
			return nil
		}

		id, err := parseID(args[0], "alert")
		if err != nil {
			return err
		}
		pipe, err := pipeline.New(cfg, db, logger)
		if err != nil {
			return err
		}
		ok, err := pipe.Alerts().MarkRead(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("alert %d not found", id)
		}
		fmt.Printf("Alert [%d] marked read\n", id)
		return nil
	},
}

func init() {
	alertsListCmd.Flags().BoolVar(&alertsAll, "all", false, "Include read alerts")
	alertsListCmd.Flags().IntVarP(&alertsLimit, "limit", "n", 50, "Maximum alerts to show")
	alertsListCmd.Flags().StringVar(&alertsSeverity, "severity", "", "Only show this severity")
	alertsReadCmd.Flags().BoolVar(&alertsReadAll, "all", false, "Mark every alert read")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsReadCmd)
}

// --- run command ---

var runNow bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db, logger)
		if err != nil {
			return err
		}
		sched, err := pipe.Scheduler()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Scheduler running with %d jobs (LLM: %s). Press Ctrl+C to stop.\n", len(sched.Jobs()), pipe.ProviderName())

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return sched.Run(ctx) })
		if runNow {
			g.Go(func() error {
				if err := sched.Trigger(ctx, pipeline.JobScrape); err != nil {
					logger.Error("initial scrape failed", "error", err)
				}
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNow, "now", false, "Scrape once immediately on start")
}

// withPipeline opens the database, builds the pipeline, runs one step and
// prints its outcome.
func withPipeline(ctx context.Context, step func(context.Context, *pipeline.Pipeline, *database.DB) pipeline.StepResult) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	pipe, err := pipeline.New(cfg, db, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := step(ctx, pipe, db)
	if r.Err != nil {
		return fmt.Errorf("%s: %w", r.Name, r.Err)
	}
	fmt.Printf("%s: %s\n", r.Name, r.Summary)
	return nil
}

// lookupCompetitor resolves a competitor by numeric ID or exact name.
func lookupCompetitor(db *database.DB, ref string) (*database.Competitor, error) {
	var c *database.Competitor
	var err error
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		c, err = db.GetCompetitor(id)
	} else {
		c, err = db.GetCompetitorByName(ref)
	}
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("competitor %s not found", ref)
	}
	return c, nil
}

func parseID(s, kind string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, s)
	}
	return id, nil
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "rivalwatch.db")
	return database.Open(dbPath)
}
