// Package env handles environment files and variables for portalsmoke.
//
// It provides functionality for:
//   - Loading .env files (via godotenv) and exporting them to the process
//   - Reading PORTALSMOKE_* variables used as flag defaults
//   - Expanding ${VAR} references in configuration values
package env
