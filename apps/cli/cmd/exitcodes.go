package cmd

// Exit codes for the portalsmoke CLI
const (
	// ExitSuccess indicates the run completed (check failures included, unless --strict)
	ExitSuccess = 0

	// ExitFailure indicates an aborted run, or failed checks under --strict
	ExitFailure = 1

	// ExitConfigError indicates an unreadable or invalid configuration
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
