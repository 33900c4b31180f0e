/*
Package windowstate persists window geometry across restarts.

Bounds are kept in memory keyed by logical window id and written to a
TOML file:

	[main]
	x = 100
	y = 200
	width = 800
	height = 600
	maximized = false

The file is read once by Open. Observe records a change and schedules a
debounced write; Flush writes immediately. Writes go to a temporary file
that is synced and renamed into place, so a crash never leaves a
truncated file behind.
*/
package windowstate
