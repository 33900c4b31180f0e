/*
Package supervisor owns every worker in the host.

CreateWorker freezes the capability gateway, restores window bounds from
the window state store and starts a worker handle through the runtime
factory. The returned *Worker is stable across restarts: essential
workers that crash are restarted with exponential backoff until the
restart policy gives up, at which point the Worker finishes with
ErrWorkerUnrecoverable.

Lifecycle events are delivered to subscribers synchronously, in
subscription order, on the goroutine that caused the transition.
*/
package supervisor
