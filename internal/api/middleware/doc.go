// Package middleware holds gin middleware for the control API: CORS and
// per-client rate limiting.
package middleware
