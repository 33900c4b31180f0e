// Package utils holds input validation shared by the API and the domain:
// logical worker ids, channel ids and payload nesting limits.
package utils
