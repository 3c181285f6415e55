// Package cmd implements the portalsmoke CLI commands using Cobra.
//
// Available commands:
//   - run: Execute the smoke checks against an Alliance Portal API
//   - mock: Serve a local mock Alliance Portal
//   - history: List recorded runs
//   - checks: List the checks a run executes
//   - validate: Check a config file without running anything
//   - init: Write a starter config file
//   - version: Show version information
//
// Every run flag can also be set through a PORTALSMOKE_* environment
// variable or a .env file; flags win over the environment, which wins over
// the config file.
package cmd
