// Package bus carries messages between the host and its workers.
//
// Every operation is checked against the capability gateway before any
// delivery is attempted. Each recipient owns a FIFO mailbox drained by
// one goroutine, so messages from one sender on one channel reach a
// given recipient in send order. Send never blocks; Request returns a
// Call that resolves exactly once with a response, ErrTimeout,
// ErrWorkerGone or ErrCancelled.
//
// Request directions:
//   - worker -> host: runs the channel's gateway Handler on the host
//   - host -> worker: delivered as a KindRequest message; the worker
//     answers with Respond
//
// Example Usage:
//
//	b := bus.New(gw, logger)
//	b.Attach(endpoint)
//	b.On("log.write", func(from types.ContextID, p types.Payload) { ... })
//	out, err := b.Invoke(ctx, types.HostContext, "doc.save", payload, bus.WithTarget("main"))
package bus
