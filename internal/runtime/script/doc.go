/*
Package script runs worker content in an embedded JavaScript VM.

Each worker gets its own goja runtime owned by a single event-loop
goroutine; bus deliveries, timers and invoke results are queued onto that
loop, so worker code never runs concurrently with itself.

Content may be plain JavaScript or an HTML document, in which case the
inline <script> elements run in document order and <title> names the
window.

Inside the VM the worker sees a global bridge object:

	bridge.id, bridge.title, bridge.channels
	bridge.send(channel, payload)
	bridge.invoke(channel, payload) -> Promise
	bridge.on(channel, fn)        // host->worker sends
	bridge.handle(channel, fn)    // host requests; fn may return a Promise
	bridge.ready()
	bridge.close()
	bridge.window.bounds() / setBounds(b) / show() / hide() / minimize()
	bridge.window.on("bounds" | "visibility" | "close", fn)

Only channels on the worker's declared surface can be subscribed to.
*/
package script
