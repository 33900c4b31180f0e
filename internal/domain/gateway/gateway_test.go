package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

func newTestGateway(t *testing.T, opts ...Option) *Gateway {
	t.Helper()
	g := New(nil, opts...)

	require.NoError(t, g.Register(Channel{ID: "theme.changed", Direction: types.HostToWorker, Allow: []string{"*"}}))
	require.NoError(t, g.Register(Channel{ID: "log.write", Direction: types.WorkerToHost, Allow: []string{"main"}}))
	require.NoError(t, g.Register(Channel{ID: "file.open", Direction: types.Invoke, Allow: []string{"main", "editor-*"}}))
	return g
}

func TestAuthorize(t *testing.T) {
	g := newTestGateway(t)

	tests := []struct {
		name    string
		ctx     types.ContextID
		channel string
		op      Op
		want    bool
	}{
		{"host sends host->worker", types.HostContext, "theme.changed", OpSend, true},
		{"host cannot send worker->host", types.HostContext, "log.write", OpSend, false},
		{"host receives worker->host", types.HostContext, "log.write", OpReceive, true},
		{"wildcard worker receives broadcast", "anything", "theme.changed", OpReceive, true},
		{"worker cannot send host->worker", "main", "theme.changed", OpSend, false},
		{"listed worker sends", "main", "log.write", OpSend, true},
		{"unlisted worker denied", "settings", "log.write", OpSend, false},
		{"glob match invokes", "editor-2", "file.open", OpSend, true},
		{"glob match receives invoke", "editor-2", "file.open", OpReceive, true},
		{"glob does not overmatch", "editor", "file.open", OpSend, false},
		{"unknown channel denied", "main", "nope", OpSend, false},
		{"unknown channel denied for host", types.HostContext, "nope", OpSend, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Authorize(tt.ctx, tt.channel, tt.op))
		})
	}
}

func TestCheckWrapsDenied(t *testing.T) {
	g := newTestGateway(t)

	err := g.Check("settings", "log.write", OpSend)
	assert.ErrorIs(t, err, ErrChannelDenied)
	assert.NoError(t, g.Check("main", "log.write", OpSend))
}

func TestRegisterDuplicate(t *testing.T) {
	g := newTestGateway(t)

	err := g.Register(Channel{ID: "file.open", Direction: types.Invoke})
	assert.ErrorIs(t, err, ErrDuplicateChannel)
}

func TestRegisterAfterFreeze(t *testing.T) {
	g := newTestGateway(t)
	g.Freeze()
	g.Freeze()

	assert.True(t, g.Frozen())
	err := g.Register(Channel{ID: "late", Direction: types.Invoke})
	assert.ErrorIs(t, err, ErrGatewayFrozen)

	// Existing channels still authorize after freezing
	assert.True(t, g.Authorize("main", "file.open", OpSend))
}

func TestRegisterInvalid(t *testing.T) {
	g := New(nil)

	tests := []struct {
		name string
		ch   Channel
	}{
		{"empty id", Channel{Direction: types.Invoke}},
		{"bad direction", Channel{ID: "x", Direction: "sideways"}},
		{"bad pattern", Channel{ID: "x", Direction: types.Invoke, Allow: []string{"[a-"}}},
		{"empty pattern", Channel{ID: "x", Direction: types.Invoke, Allow: []string{""}}},
		{"bad field kind", Channel{ID: "x", Direction: types.Invoke, Schema: &Schema{Fields: map[string]Field{"a": {Kind: "date"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, g.Register(tt.ch), ErrInvalidChannel)
		})
	}
}

func TestRegisterCopiesAllowList(t *testing.T) {
	g := New(nil)
	allow := []string{"main"}
	require.NoError(t, g.Register(Channel{ID: "c", Direction: types.WorkerToHost, Allow: allow}))

	allow[0] = "other"
	assert.True(t, g.Authorize("main", "c", OpSend))
	assert.False(t, g.Authorize("other", "c", OpSend))
}

func TestValidateAdvisoryAndStrict(t *testing.T) {
	schema := &Schema{Fields: map[string]Field{
		"path": {Kind: KindString, Required: true},
	}}

	advisory := New(nil)
	require.NoError(t, advisory.Register(Channel{ID: "file.open", Direction: types.Invoke, Schema: schema}))
	assert.NoError(t, advisory.Validate("file.open", types.Payload{"path": 3}))

	strict := New(nil, WithStrict(true))
	require.NoError(t, strict.Register(Channel{ID: "file.open", Direction: types.Invoke, Schema: schema}))
	assert.ErrorIs(t, strict.Validate("file.open", types.Payload{"path": 3}), ErrSchemaViolation)
	assert.NoError(t, strict.Validate("file.open", types.Payload{"path": "/tmp/a"}))

	perChannel := New(nil)
	require.NoError(t, perChannel.Register(Channel{ID: "file.open", Direction: types.Invoke, Schema: schema, Strict: true}))
	assert.ErrorIs(t, perChannel.Validate("file.open", types.Payload{}), ErrSchemaViolation)

	assert.ErrorIs(t, perChannel.Validate("missing", nil), ErrChannelDenied)
}

func TestSurface(t *testing.T) {
	g := newTestGateway(t)

	ids := func(chs []Channel) []string {
		var out []string
		for _, ch := range chs {
			out = append(out, ch.ID)
		}
		return out
	}

	assert.Equal(t, []string{"file.open", "log.write", "theme.changed"}, ids(g.Surface("main")))
	assert.Equal(t, []string{"file.open", "theme.changed"}, ids(g.Surface("editor-1")))
	assert.Equal(t, []string{"theme.changed"}, ids(g.Surface("settings")))
	assert.Len(t, g.Channels(), 3)
}

func TestLookupHandler(t *testing.T) {
	g := New(nil)
	handler := func(ctx context.Context, caller types.ContextID, p types.Payload) (types.Payload, error) {
		return types.Payload{"caller": string(caller)}, nil
	}
	require.NoError(t, g.Register(Channel{ID: "whoami", Direction: types.Invoke, Allow: []string{"*"}}, WithHandler(handler)))

	entry, ok := g.Lookup("whoami")
	require.True(t, ok)
	require.NotNil(t, entry.Handler)

	out, err := entry.Handler(context.Background(), "main", nil)
	require.NoError(t, err)
	assert.Equal(t, "main", out["caller"])

	_, ok = g.Lookup("nope")
	assert.False(t, ok)
}

func TestRegisterRejectsMalformedID(t *testing.T) {
	g := New(nil)
	for _, id := range []string{"has space", ".leading", "trailing.", "slash/path"} {
		err := g.Register(Channel{ID: id, Direction: types.Invoke})
		assert.ErrorIs(t, err, ErrInvalidChannel, id)
	}
}

func TestValidateRejectsDeepPayload(t *testing.T) {
	g := New(nil)
	require.NoError(t, g.Register(Channel{ID: "doc.render", Direction: types.Invoke, Allow: []string{"*"}}))

	var deep interface{} = "leaf"
	for i := 0; i < 40; i++ {
		deep = map[string]interface{}{"n": deep}
	}
	assert.ErrorIs(t, g.Validate("doc.render", types.Payload{"body": deep}), ErrSchemaViolation)
	assert.NoError(t, g.Validate("doc.render", types.Payload{"body": map[string]interface{}{"n": 1}}))
}
