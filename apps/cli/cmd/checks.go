package cmd

import (
	"fmt"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/runner"
	"github.com/spf13/cobra"
)

var checkEndpoints = map[string]string{
	"health":              "GET " + runner.PathHealth,
	"cors":                "OPTIONS <corsPath>",
	"register":            "POST " + runner.PathRegister,
	"login":               "POST " + runner.PathLogin,
	"cases":               "GET " + runner.PathCases,
	"ideas":               "GET " + runner.PathIdeas,
	"survey-templates":    "GET " + runner.PathSurveyTemplates,
	"dashboard-analytics": "GET " + runner.PathDashboardAnalytics,
}

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List the smoke checks in execution order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, name := range runner.CheckNames() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %-20s %s\n", i+1, name, checkEndpoints[name])
		}
		return nil
	},
}
