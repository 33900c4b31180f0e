/*
Package tracing provides lightweight request tracing for the control API.

Each HTTP request gets a span; handlers open child spans around bus
requests so a slow worker reply can be tied back to the API call that
caused it. Finished spans are logged through zap by a buffered
background collector.

# Usage

	tracer := tracing.New("shell", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "bus.request")
	span.SetTag("channel", channel)
	out, err := b.Invoke(ctx, types.HostContext, channel, payload)
	tracer.Finish(span, err)

# Propagation

X-Trace-ID and X-Span-ID request headers continue an existing trace; the
response carries the ids of the server span.
*/
package tracing
