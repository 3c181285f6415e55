package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/abdul-hamid-achik/portalsmoke/packages/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyPathFlag    string
	historyLimitFlag   int
	historyBaseURLFlag string
	historyChecksFlag  string
	historyPruneFlag   int
	historyJSONFlag    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded smoke runs",
	Long: `List the runs recorded by 'portalsmoke run --history', newest first.

Examples:
  portalsmoke history
  portalsmoke history --limit 5 --base-url https://portal.example.com
  portalsmoke history --checks 3f0c7d2e-...
  portalsmoke history --prune 100`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyPathFlag, "file", history.DefaultPath, "History database file")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of runs to show, 0 for all")
	historyCmd.Flags().StringVar(&historyBaseURLFlag, "base-url", "", "Only show runs against this base URL")
	historyCmd.Flags().StringVar(&historyChecksFlag, "checks", "", "Show the checks of one run")
	historyCmd.Flags().IntVar(&historyPruneFlag, "prune", 0, "Delete all but the newest N runs")
	historyCmd.Flags().BoolVar(&historyJSONFlag, "json", false, "Print JSON instead of a table")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(history.ParsePath(historyPathFlag)); errors.Is(err, os.ErrNotExist) {
		return withExitCode(ExitConfigError, fmt.Errorf("no history at %s (record runs with 'portalsmoke run --history')", historyPathFlag))
	}

	store, err := history.Open(historyPathFlag)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if historyPruneFlag > 0 {
		removed, err := store.Prune(ctx, historyPruneFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d runs\n", removed)
		return nil
	}

	if historyChecksFlag != "" {
		checks, err := store.Checks(ctx, historyChecksFlag)
		if err != nil {
			return err
		}
		if len(checks) == 0 {
			return fmt.Errorf("no checks recorded for run %s", historyChecksFlag)
		}
		if historyJSONFlag {
			return writeJSON(out, checks)
		}
		for _, c := range checks {
			code := "-"
			if c.StatusCode != nil {
				code = fmt.Sprintf("%d", *c.StatusCode)
			}
			fmt.Fprintf(out, "%s %-7s %-26s %-4s %s\n", statusMark(c.Status == "PASS"), c.Method, c.Endpoint, code, c.Message)
		}
		return nil
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		return err
	}

	var shown []*history.Run
	for _, run := range runs {
		if historyBaseURLFlag != "" && run.BaseURL != historyBaseURLFlag {
			continue
		}
		shown = append(shown, run)
		if historyLimitFlag > 0 && len(shown) == historyLimitFlag {
			break
		}
	}

	if historyJSONFlag {
		return writeJSON(out, shown)
	}
	if len(shown) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	for _, run := range shown {
		fmt.Fprintf(out, "%s %s  %s  %d/%d passed (%.1f%%)  %s  %s\n",
			statusMark(run.AllPassed()),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.ID,
			run.Passed, run.Total, run.Percent,
			run.Duration.Round(1e6),
			run.BaseURL,
		)
	}
	return nil
}

func statusMark(passed bool) string {
	if passed {
		return color.GreenString("✓")
	}
	return color.RedString("✗")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
