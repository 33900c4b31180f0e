// Package types provides shared data structures for the host shell.
//
// These types cross package boundaries: the message bus, the capability
// gateway, worker handles and the runtimes all speak in terms of them.
//
// Core Types:
//   - ContextID: Identity of an execution context (the host or a worker)
//   - Payload: Message body, a JSON-shaped map
//   - Direction: Which side of a channel may send
//   - Message: One unit of bus delivery
//   - Bounds: Window geometry
//
// Request Types:
//   - CreateWorkerRequest, BoundsRequest, SendRequest: HTTP control API bodies
//
// Example Usage:
//
//	msg := &types.Message{
//	    Kind:    types.KindSend,
//	    From:    types.HostContext,
//	    Channel: "theme.changed",
//	    Payload: types.Payload{"dark": true},
//	}
package types
