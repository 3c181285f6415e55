// Package http is the transport the smoke runner talks to the portal with.
//
// A Client carries the per-run settings (base URL, timeout, redirects,
// default headers, proxy and TLS verification). Do returns an error only
// when no response arrived; any status code, 2xx or not, comes back as a
// Response for the caller to classify.
package http
