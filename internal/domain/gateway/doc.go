// Package gateway declares and enforces which channels each execution
// context may use.
//
// Every channel is registered once, during configuration, with a
// direction, an optional payload schema and an allow-list of worker
// context patterns. Anything not explicitly allowed is denied. The
// Supervisor freezes the gateway when it creates its first worker; after
// that the table is read-only.
//
// Allow-list patterns are exact logical ids or doublestar globs:
//
//	allow: ["main", "settings-*"]
//
// The host context is privileged and needs no allow entry, but channel
// direction still applies to it: the host cannot send on a worker->host
// channel.
//
// Example Usage:
//
//	gw := gateway.New(logger)
//	err := gw.Register(gateway.Channel{
//	    ID:        "file.open",
//	    Direction: types.Invoke,
//	    Allow:     []string{"main"},
//	}, gateway.WithHandler(openFile))
//	ok := gw.Authorize("main", "file.open", gateway.OpSend)
package gateway
