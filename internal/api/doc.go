// Package api implements the HTTP surface of the session service.
//
// This package provides:
//   - Session endpoints: login, refresh, logout, bootstrap, me and sessions
//   - The admin audit trail query
//   - Health and runtime metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body size limit)
//   - TLS support for production deployments
//
// # Lifecycle
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Security
//
// Callers authenticate with a bearer access token or the accessToken cookie.
// Protected routes are wrapped with guard, which resolves the identity once
// per request and applies an auth.Requirement. Routes wrapped with optional
// treat a bad credential as anonymous; every other route rejects it.
//
// Login and refresh set httpOnly accessToken and refreshToken cookies in
// addition to returning the tokens in the body. Logout clears them.
//
// All request and response bodies use camelCase JSON.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
