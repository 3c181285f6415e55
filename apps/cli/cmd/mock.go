package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/portalsmoke/packages/core/env"
	"github.com/abdul-hamid-achik/portalsmoke/packages/mock"
	"github.com/spf13/cobra"
)

var (
	mockPortFlag         int
	mockDelayFlag        time.Duration
	mockVerboseFlag      bool
	mockHealthStatusFlag string
	mockOriginFlag       string
	mockSecretFlag       string
	mockNoCORSFlag       bool
	mockFailFlag         []string
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Start a mock Alliance Portal API",
	Long: `Start an in-memory Alliance Portal API that answers every endpoint the
smoke checks use. It is seeded with the default admin account and a few
cases, ideas and survey templates.

Examples:
  portalsmoke mock
  portalsmoke mock --port 4000 --delay 100ms
  portalsmoke mock --fail /api/ideas=500 --fail /health=503
  portalsmoke mock --health-status degraded --verbose`,
	Args: cobra.NoArgs,
	RunE: mockCommand,
}

func init() {
	mockCmd.Flags().IntVarP(&mockPortFlag, "port", "p", env.Int(env.Prefix+"MOCK_PORT", mock.DefaultPort), "Port to run the mock server on")
	mockCmd.Flags().DurationVarP(&mockDelayFlag, "delay", "d", env.Duration(env.Prefix+"MOCK_DELAY", 0), "Delay to add to all responses (e.g., 100ms, 1s)")
	mockCmd.Flags().BoolVarP(&mockVerboseFlag, "verbose", "v", false, "Enable verbose logging")
	mockCmd.Flags().StringVar(&mockHealthStatusFlag, "health-status", "ok", "Status reported by /health")
	mockCmd.Flags().StringVar(&mockOriginFlag, "allow-origin", "*", "Access-Control-Allow-Origin value")
	mockCmd.Flags().StringVar(&mockSecretFlag, "secret", "", "JWT signing secret (or PORTALSMOKE_MOCK_SECRET)")
	mockCmd.Flags().BoolVar(&mockNoCORSFlag, "no-cors", false, "Do not send CORS headers")
	mockCmd.Flags().StringArrayVar(&mockFailFlag, "fail", nil, "Answer path with a status code, as path=status (repeatable)")
}

func mockCommand(cmd *cobra.Command, args []string) error {
	if mockDelayFlag < 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("invalid delay %s: must not be negative", mockDelayFlag))
	}

	opts := []mock.Option{
		mock.WithPort(mockPortFlag),
		mock.WithDelay(mockDelayFlag),
		mock.WithVerbose(mockVerboseFlag),
		mock.WithHealthStatus(mockHealthStatusFlag),
		mock.WithAllowOrigin(mockOriginFlag),
	}
	secret := mockSecretFlag
	if secret == "" {
		// PORTALSMOKE_MOCK_SECRET may come from .env
		if _, err := env.Load(""); err != nil {
			warn("could not load %s: %v", env.DefaultDotEnvFile, err)
		}
		secret = env.String(env.Prefix+"MOCK_SECRET", "")
	}
	if secret != "" {
		opts = append(opts, mock.WithSecret(secret))
	}
	if mockNoCORSFlag {
		opts = append(opts, mock.WithoutCORS())
	}
	for _, spec := range mockFailFlag {
		path, status, err := parseFailure(spec)
		if err != nil {
			return withExitCode(ExitUsageError, err)
		}
		opts = append(opts, mock.WithFailure(path, status))
	}

	server := mock.NewServer(opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down mock server...")
	}()

	return server.StartWithContext(ctx)
}

// parseFailure splits a path=status failure spec.
func parseFailure(spec string) (string, int, error) {
	path, code, ok := strings.Cut(spec, "=")
	if !ok || !strings.HasPrefix(path, "/") {
		return "", 0, fmt.Errorf("invalid --fail value %q (use /path=status)", spec)
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 || status > 599 {
		return "", 0, fmt.Errorf("invalid status in --fail value %q", spec)
	}
	return path, status, nil
}
