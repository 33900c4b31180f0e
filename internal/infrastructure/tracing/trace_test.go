package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTracer(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	tracer := New("shell", zap.New(core))
	t.Cleanup(tracer.Close)
	return tracer, logs
}

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer, _ := newTracer(t)

	root, ctx := tracer.StartSpan(context.Background(), "root")
	assert.NotEmpty(t, root.TraceID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, root.TraceID, TraceIDFrom(ctx))

	child, childCtx := tracer.StartSpan(ctx, "child")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, SpanIDFrom(childCtx))
	assert.Len(t, Fields(childCtx), 1)
	assert.Nil(t, Fields(context.Background()))
}

func TestFinishLogsSpans(t *testing.T) {
	tracer, logs := newTracer(t)

	ok, _ := tracer.StartSpan(context.Background(), "fine")
	ok.SetTag("channel", "doc.render")
	tracer.Finish(ok, nil)

	bad, _ := tracer.StartSpan(context.Background(), "broken")
	tracer.Finish(bad, errors.New("boom"))

	require.Eventually(t, func() bool { return logs.Len() == 2 }, time.Second, 5*time.Millisecond)
	entries := logs.All()
	assert.Equal(t, "doc.render", entries[0].ContextMap()["channel"])
	assert.Equal(t, "span completed with error", entries[1].Message)

	tracer.Close()
	late, _ := tracer.StartSpan(context.Background(), "late")
	tracer.Finish(late, nil)
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newTracer(t)

	var seen TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/workers/:id", func(c *gin.Context) {
		seen = TraceIDFrom(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/workers/main", nil)
	req.Header.Set(HeaderTraceID, "trc_incoming")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, TraceID("trc_incoming"), seen)
	assert.Equal(t, "trc_incoming", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 5*time.Millisecond)
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "GET /workers/:id", fields["operation"])
	assert.Equal(t, "204", fields["http.status"])
}
