// Package auth provides authentication and session lifecycle management for
// servicedesk-core.
//
// It implements a two-tier role model (staff → admin) with:
//   - bcrypt password hashing with a configurable cost (Argon2id PHC hashes
//     from earlier releases still verify)
//   - short-lived HS256 JWT access tokens validated by signature only
//   - opaque refresh tokens stored as SHA-256 hashes and rotated on every use
//   - an atomic conditional revoke so one raw refresh token can be rotated
//     at most once, even under concurrent refresh requests
//   - one-time bootstrap of the first admin account
//   - pure authorisation guards over a per-request Identity
//
// Refresh tokens are the trust boundary for session persistence: the raw
// value is returned to the client exactly once and never stored or logged.
package auth
