// Package runner executes the Alliance Portal smoke suite.
//
// A Runner holds the session state of one smoke run: an optional bearer
// token and the ordered list of check results. It provides:
//   - One method per endpoint check (health, CORS preflight, registration,
//     login and the authenticated list/analytics endpoints)
//   - Login with an ordered list of fallback credentials
//   - RunAll, which executes the fixed sequence strictly one check at a time
//   - Summary computation (counts, percentage, failures, verdict)
//
// Checks never return Go errors: transport failures, non-2xx responses and
// missing tokens all become FAIL results. Only an aborted run (cancelled
// context or panic) makes RunAll return an error.
package runner
