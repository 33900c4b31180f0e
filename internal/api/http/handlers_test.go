package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/bus"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/supervisor"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/windowstate"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/factory"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

const mainScript = `
bridge.handle("doc.render", function (p) { return { echo: p.text }; });
bridge.ready();
`

type fixture struct {
	router *gin.Engine
	sup    *supervisor.Supervisor
	store  *windowstate.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	gw := gateway.New(logger)
	store, err := windowstate.Open(filepath.Join(t.TempDir(), "windows.toml"))
	require.NoError(t, err)
	require.NoError(t, gw.Register(windowstate.Channel(), gateway.WithHandler(store.Handler())))
	require.NoError(t, gw.Register(gateway.Channel{ID: "doc.render", Direction: types.Invoke, Allow: []string{"main"}}))
	require.NoError(t, gw.Register(gateway.Channel{ID: "theme.changed", Direction: types.HostToWorker, Allow: []string{"*"}}))

	metrics := monitoring.NewMetrics()
	b := bus.New(gw, logger, bus.WithMetrics(metrics))
	f := factory.New(factory.Options{})
	sup := supervisor.New(supervisor.Options{
		Gateway: gw,
		Bus:     b,
		Store:   store,
		Factory: f.Build,
		Logger:  logger,
		Metrics: metrics,
	})
	t.Cleanup(func() {
		_ = sup.CloseAll(context.Background())
		b.Close()
	})

	router := gin.New()
	NewHandlers(Deps{
		Supervisor: sup,
		Bus:        b,
		Gateway:    gw,
		Store:      store,
		Preparer:   f,
		Metrics:    metrics,
		Logger:     logger,
	}).Register(router)

	return &fixture{router: router, sup: sup, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (f *fixture) waitState(t *testing.T, id string, state worker.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		w, ok := f.sup.Get(types.ContextID(id))
		return ok && w.State() == state
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorkerLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/workers", gin.H{"id": "main", "inline": mainScript})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "main", body["id"])
	assert.Equal(t, "script", body["kind"])

	f.waitState(t, "main", worker.StateReady)

	code, body = f.do(t, http.MethodPost, "/workers/main/show", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "active", body["state"])

	code, body = f.do(t, http.MethodPost, "/workers/main/request", gin.H{
		"channel": "doc.render",
		"payload": gin.H{"text": "hello"},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, map[string]interface{}{"echo": "hello"}, body["payload"])

	code, body = f.do(t, http.MethodPost, "/workers/main/bounds", gin.H{"x": 100, "y": 200, "width": 800, "height": 600})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, map[string]interface{}{
		"x": float64(100), "y": float64(200), "width": float64(800), "height": float64(600), "maximized": false,
	}, body["bounds"])

	code, body = f.do(t, http.MethodGet, "/workers", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["workers"], 1)

	code, _ = f.do(t, http.MethodDelete, "/workers/main", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodGet, "/workers/main", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodGet, "/windows", nil)
	require.Equal(t, http.StatusOK, code)
	windows := body["windows"].(map[string]interface{})
	assert.Contains(t, windows, "main")
}

func TestCreateWorkerErrors(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/workers", gin.H{"id": "main", "inline": mainScript})
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{name: "duplicate id", body: gin.H{"id": "main", "inline": mainScript}, want: http.StatusConflict},
		{name: "empty id", body: gin.H{"inline": mainScript}, want: http.StatusBadRequest},
		{name: "host id", body: gin.H{"id": "host", "inline": mainScript}, want: http.StatusBadRequest},
		{name: "unknown kind", body: gin.H{"id": "x", "kind": "wasm"}, want: http.StatusBadRequest},
		{name: "no content", body: gin.H{"id": "x"}, want: http.StatusBadRequest},
		{name: "unknown parent", body: gin.H{"id": "x", "inline": mainScript, "parent_id": "ghost"}, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/workers", tt.body)
			assert.Equal(t, tt.want, code, body)
			assert.NotEmpty(t, body["error"])
		})
	}

	for _, raw := range []string{"{not json", ""} {
		req := httptest.NewRequest(http.MethodPost, "/workers", bytes.NewBufferString(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
	}
}

func TestWorkerRoutesUnknownWorker(t *testing.T) {
	f := newFixture(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/workers/ghost"},
		{http.MethodDelete, "/workers/ghost"},
		{http.MethodPost, "/workers/ghost/show"},
		{http.MethodPost, "/workers/ghost/hide"},
		{http.MethodPost, "/workers/ghost/request"},
	} {
		code, _ := f.do(t, route.method, route.path, gin.H{"channel": "doc.render"})
		assert.Equal(t, http.StatusNotFound, code, route.path)
	}
}

func TestRequestDeniedChannel(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodPost, "/workers", gin.H{"id": "side", "inline": "bridge.ready()"})
	require.Equal(t, http.StatusCreated, code)
	f.waitState(t, "side", worker.StateReady)

	code, _ = f.do(t, http.MethodPost, "/workers/side/request", gin.H{"channel": "doc.render"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodPost, "/workers/side/request", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/workers/side/request", gin.H{"channel": "doc.render", "timeout_ms": -1})
	assert.Equal(t, http.StatusBadRequest, code)

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "zero width", body: gin.H{"width": 0, "height": 10}},
		{name: "missing height", body: gin.H{"x": 5, "width": 10}},
		{name: "negative height", body: gin.H{"width": 10, "height": -1}},
		{name: "empty body", body: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/workers/side/bounds", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestChannelsAndSend(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/channels", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["channels"], 3)
	assert.Equal(t, false, body["frozen"])

	code, _ = f.do(t, http.MethodPost, "/channels/theme.changed/send", gin.H{"payload": gin.H{"dark": true}})
	assert.Equal(t, http.StatusAccepted, code)

	code, _ = f.do(t, http.MethodPost, "/channels/not.registered/send", gin.H{})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodPost, "/channels/theme.changed/send", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Empty(t, body["unrecoverable"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", gateway.ErrChannelDenied), http.StatusForbidden},
		{gateway.ErrSchemaViolation, http.StatusUnprocessableEntity},
		{supervisor.ErrUnknownWorker, http.StatusNotFound},
		{supervisor.ErrDuplicateLogicalID, http.StatusConflict},
		{worker.ErrInvalidState, http.StatusConflict},
		{bus.ErrTimeout, http.StatusGatewayTimeout},
		{bus.ErrWorkerGone, http.StatusGone},
		{bus.ErrRateLimited, http.StatusTooManyRequests},
		{supervisor.ErrClosed, http.StatusServiceUnavailable},
		{&bus.RemoteError{Message: "boom"}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
