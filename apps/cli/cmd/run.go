package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/config"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/env"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
	"github.com/abdul-hamid-achik/portalsmoke/packages/export/metrics"
	"github.com/abdul-hamid-achik/portalsmoke/packages/history"
	"github.com/abdul-hamid-achik/portalsmoke/packages/notify"
	"github.com/abdul-hamid-achik/portalsmoke/packages/output"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the smoke checks against an Alliance Portal API",
	Long: `Run the eight Alliance Portal smoke checks in order: health, CORS preflight,
registration, login, cases, ideas, survey templates and dashboard analytics.

Failed checks are reported but do not change the exit code unless --strict
is set. The command exits 1 when the run itself is aborted.

Examples:
  portalsmoke run
  portalsmoke run --base-url https://portal.example.com
  portalsmoke run -o junit --output-file smoke.xml --strict
  portalsmoke run -o xlsx --output-file smoke.xlsx
  portalsmoke run --metrics prometheus --metrics-file /var/lib/node_exporter/portal.prom
  portalsmoke run --notify slack --slack-webhook $SLACK_WEBHOOK --notify-on recovery --history
  portalsmoke run --history=sqlite://./runs.db
  portalsmoke run --watch
  portalsmoke run --schedule "@every 5m" --history --notify teams --teams-webhook $TEAMS_WEBHOOK`,
	Args: cobra.NoArgs,
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	baseURLFlag    string
	configFlag     string
	envFileFlag    string
	timeoutFlag    string
	outputFlag     string
	outputFileFlag string
	noColorFlag    bool
	verboseFlag    bool
	strictFlag     bool
	rateFlag       float64
	schemaFlag     bool
	uniqueFlag     bool
	insecureFlag   bool
	proxyFlag      string
	historyFlag    string
	watchFlag      bool
	scheduleFlag   string

	// Metrics flags
	metricsFlag     string
	metricsFileFlag string

	// Notification flags
	notifyFlag       string
	notifyOnFlag     string
	slackWebhookFlag string
	slackChannelFlag string
	teamsWebhookFlag string
)

// flagEnv maps run flags to the environment variables backing them.
var flagEnv = map[string]string{
	"base-url":      env.Prefix + "BASE_URL",
	"config":        env.Prefix + "CONFIG",
	"timeout":       env.Prefix + "TIMEOUT",
	"output":        env.Prefix + "OUTPUT",
	"output-file":   env.Prefix + "OUTPUT_FILE",
	"no-color":      env.Prefix + "NO_COLOR",
	"verbose":       env.Prefix + "VERBOSE",
	"strict":        env.Prefix + "STRICT",
	"rate":          env.Prefix + "RATE",
	"schema":        env.Prefix + "SCHEMA",
	"unique":        env.Prefix + "UNIQUE",
	"insecure":      env.Prefix + "INSECURE",
	"proxy":         env.Prefix + "PROXY",
	"history":       env.Prefix + "HISTORY",
	"schedule":      env.Prefix + "SCHEDULE",
	"metrics":       env.Prefix + "METRICS",
	"metrics-file":  env.Prefix + "METRICS_FILE",
	"notify":        env.Prefix + "NOTIFY",
	"notify-on":     env.Prefix + "NOTIFY_ON",
	"slack-webhook": env.Prefix + "SLACK_WEBHOOK",
	"slack-channel": env.Prefix + "SLACK_CHANNEL",
	"teams-webhook": env.Prefix + "TEAMS_WEBHOOK",
}

func init() {
	f := runCmd.Flags()

	// Target flags
	f.StringVar(&baseURLFlag, "base-url", env.String(flagEnv["base-url"], ""), "Alliance Portal API base URL (default http://localhost:3001) (env: PORTALSMOKE_BASE_URL)")
	f.StringVar(&configFlag, "config", env.String(flagEnv["config"], ""), "Path to config file (env: PORTALSMOKE_CONFIG)")
	f.StringVar(&envFileFlag, "env-file", env.String(env.Prefix+"ENV_FILE", ""), "Path to .env file (default .env when present) (env: PORTALSMOKE_ENV_FILE)")
	f.StringVar(&timeoutFlag, "timeout", env.String(flagEnv["timeout"], ""), "Request timeout, e.g. 30s (env: PORTALSMOKE_TIMEOUT)")

	// Output flags
	f.StringVarP(&outputFlag, "output", "o", env.String(flagEnv["output"], "console"), "Output format: console, json, junit, tap, xlsx (env: PORTALSMOKE_OUTPUT)")
	f.StringVar(&outputFileFlag, "output-file", env.String(flagEnv["output-file"], ""), "Write output to file (default: stdout) (env: PORTALSMOKE_OUTPUT_FILE)")
	f.BoolVar(&noColorFlag, "no-color", env.Bool(flagEnv["no-color"], false), "Disable colored output (env: PORTALSMOKE_NO_COLOR)")
	f.BoolVarP(&verboseFlag, "verbose", "v", env.Bool(flagEnv["verbose"], false), "Show captured data for every check (env: PORTALSMOKE_VERBOSE)")

	// Execution flags
	f.BoolVar(&strictFlag, "strict", env.Bool(flagEnv["strict"], false), "Exit 1 when any check fails (env: PORTALSMOKE_STRICT)")
	f.Float64Var(&rateFlag, "rate", env.Float(flagEnv["rate"], 0), "Maximum checks per second, 0 for unlimited (env: PORTALSMOKE_RATE)")
	f.BoolVar(&schemaFlag, "schema", env.Bool(flagEnv["schema"], false), "Validate response envelopes against JSON schemas (env: PORTALSMOKE_SCHEMA)")
	f.BoolVar(&uniqueFlag, "unique", env.Bool(flagEnv["unique"], false), "Register a unique email on every run (env: PORTALSMOKE_UNIQUE)")
	f.StringVar(&historyFlag, "history", env.String(flagEnv["history"], ""), "Record runs in a SQLite history file (env: PORTALSMOKE_HISTORY)")
	f.Lookup("history").NoOptDefVal = history.DefaultPath
	f.BoolVarP(&watchFlag, "watch", "w", false, "Re-run when the config or .env file changes")
	f.StringVar(&scheduleFlag, "schedule", env.String(flagEnv["schedule"], ""), "Keep running on a cron schedule, e.g. \"*/5 * * * *\" or \"@every 10m\" (env: PORTALSMOKE_SCHEDULE)")

	// Network flags
	f.StringVar(&proxyFlag, "proxy", env.String(flagEnv["proxy"], ""), "Proxy URL for HTTP requests (env: PORTALSMOKE_PROXY)")
	f.BoolVarP(&insecureFlag, "insecure", "k", env.Bool(flagEnv["insecure"], false), "Disable SSL certificate validation (env: PORTALSMOKE_INSECURE)")

	// Metrics flags
	f.StringVar(&metricsFlag, "metrics", env.String(flagEnv["metrics"], ""), "Metrics export formats: prometheus, json (env: PORTALSMOKE_METRICS)")
	f.StringVar(&metricsFileFlag, "metrics-file", env.String(flagEnv["metrics-file"], ""), "Output file for metrics (env: PORTALSMOKE_METRICS_FILE)")

	// Notification flags
	f.StringVar(&notifyFlag, "notify", env.String(flagEnv["notify"], ""), "Notification services: slack, teams (env: PORTALSMOKE_NOTIFY)")
	f.StringVar(&notifyOnFlag, "notify-on", env.String(flagEnv["notify-on"], "failure"), "When to notify: always, failure, success, recovery (env: PORTALSMOKE_NOTIFY_ON)")
	f.StringVar(&slackWebhookFlag, "slack-webhook", env.String(flagEnv["slack-webhook"], ""), "Slack webhook URL (env: PORTALSMOKE_SLACK_WEBHOOK)")
	f.StringVar(&slackChannelFlag, "slack-channel", env.String(flagEnv["slack-channel"], ""), "Slack channel override (env: PORTALSMOKE_SLACK_CHANNEL)")
	f.StringVar(&teamsWebhookFlag, "teams-webhook", env.String(flagEnv["teams-webhook"], ""), "Microsoft Teams webhook URL (env: PORTALSMOKE_TEAMS_WEBHOOK)")
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatHeader(version, baseURL string)
	FormatResult(result *runner.TestResult)
	FormatSummary(summary *runner.Summary)
	FormatError(err error)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// runSession holds what survives between re-runs.
type runSession struct {
	cmd      *cobra.Command
	dotenv   *env.Session
	userSet  map[string]bool
	notifier *notify.Manager
}

func runCommand(cmd *cobra.Command, args []string) error {
	s := &runSession{
		cmd:     cmd,
		dotenv:  env.NewSession(envFileFlag),
		userSet: make(map[string]bool),
	}
	for name := range flagEnv {
		s.userSet[name] = cmd.Flags().Changed(name)
	}

	if _, err := s.dotenv.Load(); err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("loading env file: %w", err))
	}
	if err := s.applyEnv(); err != nil {
		return withExitCode(ExitUsageError, err)
	}

	notifier, err := buildNotifier()
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	s.notifier = notifier

	if scheduleFlag != "" {
		if watchFlag {
			return withExitCode(ExitUsageError, fmt.Errorf("--schedule and --watch cannot be combined"))
		}
		if _, err := cron.ParseStandard(scheduleFlag); err != nil {
			return withExitCode(ExitUsageError, fmt.Errorf("invalid schedule %q: %w", scheduleFlag, err))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := s.execute(ctx)
	if err == nil {
		switch {
		case watchFlag:
			return s.watch(ctx)
		case scheduleFlag != "":
			return s.schedule(ctx, scheduleFlag)
		}
	}
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return err
		}
		return withExitCode(ExitFailure, err)
	}
	if strictFlag && !summary.AllPassed() {
		return withExitCode(ExitFailure, nil)
	}
	return nil
}

// applyEnv copies PORTALSMOKE_* values into flags the user did not set on
// the command line, so the environment outranks the config file. Flags set
// from a variable that has since disappeared go back to their defaults.
func (s *runSession) applyEnv() error {
	for name, key := range flagEnv {
		if s.userSet[name] {
			continue
		}
		f := s.cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if val := os.Getenv(key); val != "" {
			if f.Value.Type() == "bool" {
				val = strconv.FormatBool(env.Bool(key, false))
			}
			if err := f.Value.Set(val); err != nil {
				return fmt.Errorf("invalid value %q for %s: %w", val, key, err)
			}
			f.Changed = true
		} else if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	return nil
}

// flagOverrides collects the flags that were set, by the user or the
// environment, as a config layer.
func (s *runSession) flagOverrides() *config.Config {
	f := s.cmd.Flags()
	o := &config.Config{}

	if f.Changed("base-url") {
		o.BaseURL = baseURLFlag
	}
	if f.Changed("timeout") {
		o.Timeout = timeoutFlag
	}
	if f.Changed("output") {
		o.Output = outputFlag
	}
	if f.Changed("proxy") {
		o.Proxy = proxyFlag
	}
	if f.Changed("rate") {
		o.RateLimit = config.FloatPtr(rateFlag)
	}
	if f.Changed("history") {
		o.HistoryPath = historyFlag
	}
	if f.Changed("no-color") {
		o.NoColor = config.BoolPtr(noColorFlag)
	}
	if f.Changed("verbose") {
		o.Verbose = config.BoolPtr(verboseFlag)
	}
	if f.Changed("strict") {
		o.Strict = config.BoolPtr(strictFlag)
	}
	if f.Changed("schema") {
		o.SchemaValidation = config.BoolPtr(schemaFlag)
	}
	if f.Changed("unique") {
		o.UniqueRegistration = config.BoolPtr(uniqueFlag)
	}
	if f.Changed("insecure") {
		o.ValidateSSL = config.BoolPtr(!insecureFlag)
	}
	return o
}

func (s *runSession) loadConfig() (*config.Config, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	cfg := fileConfig.Merge(s.flagOverrides())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	strictFlag = cfg.GetStrict()
	return cfg, nil
}

// execute performs one complete run: the checks, then output, metrics,
// history and notifications.
func (s *runSession) execute(ctx context.Context) (*runner.Summary, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}

	var out io.Writer = s.cmd.OutOrStdout()
	if outputFileFlag != "" {
		file, err := os.Create(outputFileFlag)
		if err != nil {
			return nil, withExitCode(ExitConfigError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer file.Close()
		out = file
	}

	collector, err := buildCollector(cfg)
	if err != nil {
		return nil, withExitCode(ExitUsageError, err)
	}
	if collector != nil {
		defer func() {
			if err := collector.Close(); err != nil {
				warn("failed to close metrics exporters: %v", err)
			}
		}()
	}

	var formatter Formatter
	observer := func(result *runner.TestResult) {
		formatter.FormatResult(result)
		if collector != nil {
			collector.Observe(result)
		}
	}
	runCfg := runner.ConfigFromFile(cfg, env.Expand)
	runCfg.UserAgent = "portalsmoke/" + version
	r := runner.NewRunner(runCfg, runner.WithObserver(observer), runner.WithWarnFunc(warn))

	formatter, err = newFormatter(cfg, out, r.Credentials())
	if err != nil {
		return nil, withExitCode(ExitUsageError, err)
	}
	formatter.FormatHeader(version, r.BaseURL())

	summary, err := r.RunAll(ctx)
	if err != nil {
		formatter.FormatError(err)
		if flushable, ok := formatter.(Flushable); ok {
			_ = flushable.Flush(0)
		}
		return nil, err
	}

	formatter.FormatSummary(summary)
	if flushable, ok := formatter.(Flushable); ok {
		if err := flushable.Flush(summary.Duration); err != nil {
			return nil, fmt.Errorf("error writing output: %w", err)
		}
	}

	if collector != nil {
		if err := collector.Flush(); err != nil {
			warn("failed to export metrics: %v", err)
		}
	}

	s.record(ctx, cfg, r, summary)

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, notify.FromSummary(summary, r.BaseURL())); err != nil {
			warn("failed to send notification: %v", err)
		}
	}

	return summary, nil
}

// record saves the run to history and seeds the notifier with the outcome
// of the previous run against the same base URL.
func (s *runSession) record(ctx context.Context, cfg *config.Config, r *runner.Runner, summary *runner.Summary) {
	if cfg.HistoryPath == "" {
		return
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		warn("history disabled: %v", err)
		return
	}
	defer store.Close()

	if s.notifier != nil {
		last, err := store.LastRun(ctx, r.BaseURL())
		switch {
		case err == nil:
			s.notifier.SetLastState(last.AllPassed())
		case !errors.Is(err, history.ErrNoRuns):
			warn("failed to read history: %v", err)
		}
	}

	if _, err := store.SaveRun(ctx, r.BaseURL(), summary, r.Results()); err != nil {
		warn("failed to save run history: %v", err)
	}
}

func newFormatter(cfg *config.Config, out io.Writer, creds []config.Credential) (Formatter, error) {
	switch strings.ToLower(cfg.Output) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(out)), nil
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(out)), nil
	case "tap":
		return output.NewTAPFormatter(output.TAPWithWriter(out)), nil
	case "xlsx":
		if outputFileFlag == "" {
			return nil, fmt.Errorf("xlsx output requires --output-file")
		}
		return output.NewXLSXFormatter(output.XLSXWithWriter(out)), nil
	case "", "console":
		return output.NewConsoleFormatter(
			output.WithWriter(out),
			output.WithVerbose(cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor()),
			output.WithCredentials(creds),
		), nil
	}
	return nil, fmt.Errorf("unknown output format %q (use console, json, junit, tap or xlsx)", cfg.Output)
}

func buildCollector(cfg *config.Config) (*metrics.Collector, error) {
	if metricsFlag == "" {
		return nil, nil
	}

	formats := splitList(metricsFlag)
	var exporters []metrics.Exporter
	for _, format := range formats {
		switch format {
		case "prometheus":
			path := metricsPath(format, len(formats) > 1)
			exporters = append(exporters, metrics.NewPrometheusExporter(metrics.WithPrometheusFile(path)))
		case "json":
			opts := []metrics.JSONOption{
				metrics.WithJSONMetadata(version, cfg.BaseURL),
			}
			if path := metricsPath(format, len(formats) > 1); path != "" {
				opts = append(opts, metrics.WithJSONFile(path))
			} else {
				opts = append(opts, metrics.WithJSONWriter(os.Stderr))
			}
			exporters = append(exporters, metrics.NewJSONExporter(opts...))
		default:
			return nil, fmt.Errorf("unknown metrics format %q (use prometheus or json)", format)
		}
	}
	return metrics.NewCollector(exporters...), nil
}

// metricsPath picks the output file for one metrics format. With several
// formats the prometheus textfile takes the metrics file name with a .prom
// extension.
func metricsPath(format string, multiple bool) string {
	switch format {
	case "prometheus":
		if metricsFileFlag == "" {
			return "portalsmoke.prom"
		}
		if multiple {
			return strings.TrimSuffix(metricsFileFlag, filepath.Ext(metricsFileFlag)) + ".prom"
		}
	}
	return metricsFileFlag
}

func buildNotifier() (*notify.Manager, error) {
	if notifyFlag == "" {
		return nil, nil
	}

	notifyOn, err := notify.ParseNotifyOn(notifyOnFlag)
	if err != nil {
		return nil, err
	}

	manager := notify.NewManager(notifyOn)
	for _, service := range splitList(notifyFlag) {
		switch service {
		case "slack":
			if slackWebhookFlag == "" {
				return nil, fmt.Errorf("--slack-webhook is required when using --notify slack")
			}
			var slackOpts []notify.SlackOption
			if slackChannelFlag != "" {
				slackOpts = append(slackOpts, notify.WithSlackChannel(slackChannelFlag))
			}
			manager.AddNotifier(notify.NewSlackNotifier(slackWebhookFlag, slackOpts...))
		case "teams":
			if teamsWebhookFlag == "" {
				return nil, fmt.Errorf("--teams-webhook is required when using --notify teams")
			}
			manager.AddNotifier(notify.NewTeamsNotifier(teamsWebhookFlag))
		default:
			return nil, fmt.Errorf("unknown notification service %q (use slack or teams)", service)
		}
	}
	return manager, nil
}

// watch re-runs the suite whenever the config file or the .env file changes,
// until ctx is cancelled.
func (s *runSession) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	targets := s.watchTargets()
	watchedDirs := make(map[string]bool)
	for target := range targets {
		dir := filepath.Dir(target)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			warn("failed to watch %s: %v", dir, err)
		}
		watchedDirs[dir] = true
	}

	out := s.cmd.OutOrStdout()
	fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounce *time.Timer
	var fire <-chan time.Time
	var changed string

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path, err := filepath.Abs(event.Name)
			if err != nil || !targets[path] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			changed = event.Name
			if debounce == nil {
				debounce = time.NewTimer(WatchDebounceDelay)
			} else {
				debounce.Reset(WatchDebounceDelay)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			fmt.Fprintf(out, "\n\nFile changed: %s\nRe-running checks...\n\n", changed)
			s.rerun(ctx)
			fmt.Fprintf(out, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			warn("watcher error: %v", err)
		}
	}
}

// rerun reloads the env file and runs the suite again. Errors are printed,
// not returned, so the loop driving it keeps going.
func (s *runSession) rerun(ctx context.Context) {
	if _, err := s.dotenv.Load(); err != nil {
		warn("failed to reload env file: %v", err)
	}
	if err := s.applyEnv(); err != nil {
		warn("%v", err)
	}
	if _, err := s.execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

// schedule re-runs the suite on a cron schedule until ctx is cancelled. A
// run still in progress when the next one is due causes that one to be
// skipped.
func (s *runSession) schedule(ctx context.Context, spec string) error {
	out := s.cmd.OutOrStdout()
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	var id cron.EntryID
	id, err := c.AddFunc(spec, func() {
		fmt.Fprintf(out, "\n\nScheduled run at %s\n\n", time.Now().Format(time.RFC3339))
		s.rerun(ctx)
		fmt.Fprintf(out, "\nNext run at %s (press Ctrl+C to stop)\n", c.Entry(id).Next.Format(time.RFC3339))
	})
	if err != nil {
		return withExitCode(ExitUsageError, fmt.Errorf("invalid schedule %q: %w", spec, err))
	}

	c.Start()
	fmt.Fprintf(out, "\nNext run at %s (press Ctrl+C to stop)\n", c.Entry(id).Next.Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// watchTargets returns the absolute paths whose changes trigger a re-run.
func (s *runSession) watchTargets() map[string]bool {
	var paths []string
	if configFlag != "" {
		paths = append(paths, configFlag)
	} else {
		paths = append(paths, config.ConfigFilenames...)
	}
	paths = append(paths, s.dotenv.Path())

	targets := make(map[string]bool, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			targets[abs] = true
		}
	}
	return targets
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
