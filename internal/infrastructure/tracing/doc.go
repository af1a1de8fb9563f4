/*
Package tracing provides lightweight request tracing for the host API.

Each API request gets a span; spans carry a trace id that callers can
propagate with the X-Trace-ID and X-Span-ID headers. Finished spans are
buffered and written to the structured log. A /bridge span lasts as long as
the websocket stays open.

# Usage

	tracer := tracing.New(logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "preload")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
	span.SetTag("script", name)
*/
package tracing
