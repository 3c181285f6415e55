package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/config"
	"github.com/abdul-hamid-achik/portalsmoke/packages/core/env"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a portalsmoke config file",
	Long: `Load a config file and report problems without contacting the API.
Without an argument the config file in the current directory is used.
Active PORTALSMOKE_* variables are listed since they override the file
on "portalsmoke run".

Examples:
  portalsmoke validate
  portalsmoke validate staging.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	if err := cfg.Validate(); err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("invalid configuration: %w", err))
	}

	source := cfg.Path()
	if source == "" {
		source = "defaults (no config file found)"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Valid: %s\n", source)
	fmt.Fprintf(out, "  base URL:    %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  timeout:     %s\n", cfg.TimeoutDuration())
	fmt.Fprintf(out, "  credentials: %d\n", len(cfg.Credentials))
	if overrides := slices.Sorted(maps.Keys(env.LoadSystemEnv(env.Prefix))); len(overrides) > 0 {
		fmt.Fprintf(out, "  env:         %s%s\n", env.Prefix, strings.Join(overrides, ", "+env.Prefix))
	}
	return nil
}
