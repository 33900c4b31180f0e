/*
Package worker implements the per-incarnation worker handle.

A Handle owns one Runtime and walks it through

	Created -> Loading -> Ready -> (Active <-> Suspended) -> Closing -> Closed

with Crashed reachable from any non-terminal state. The handle is the
worker's bus endpoint: deliveries are forwarded to the runtime, and the
runtime talks back through a Link that applies gateway checks on the
worker's behalf.

Transitions are reported to a single Observer in the order they happen.
The observer must not call back into the same handle synchronously.
*/
package worker
