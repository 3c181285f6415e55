// Package capture extracts values from Alliance Portal responses.
//
// It supports capturing values from:
//   - Response body (gjson paths such as data.token or data.user.email)
//   - Response headers
//   - Error envelopes ({"error": ...} or {"message": ...})
//
// Captured values feed the runner's session state (the bearer token) and
// the diagnostic data attached to each check result.
package capture
