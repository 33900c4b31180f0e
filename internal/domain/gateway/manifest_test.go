package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

const testManifest = `
strict: false
channels:
  - id: file.open
    direction: invoke
    allow: ["main"]
    schema:
      fields:
        path:
          kind: string
          required: true
  - id: theme.changed
    direction: host->worker
    allow: ["*"]
  - id: telemetry
    direction: worker->host
    strict: true
    allow: ["main", "settings-*"]
    schema:
      allow_extra: true
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	require.Len(t, m.Channels, 3)
	assert.Equal(t, "file.open", m.Channels[0].ID)
	assert.Equal(t, types.Invoke, m.Channels[0].Direction)
	require.NotNil(t, m.Channels[0].Schema)
	assert.Equal(t, Field{Kind: KindString, Required: true}, m.Channels[0].Schema.Fields["path"])
	assert.Equal(t, types.HostToWorker, m.Channels[1].Direction)
	assert.True(t, m.Channels[2].Strict)
	assert.True(t, m.Channels[2].Schema.AllowExtra)
}

func TestParseManifestInvalid(t *testing.T) {
	_, err := ParseManifest([]byte("channels: [oops"))
	assert.Error(t, err)
}

func TestLoadAndApplyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)

	called := false
	g := New(nil)
	err = g.Apply(m, map[string]Handler{
		"file.open": func(ctx context.Context, caller types.ContextID, p types.Payload) (types.Payload, error) {
			called = true
			return nil, nil
		},
	})
	require.NoError(t, err)

	entry, ok := g.Lookup("file.open")
	require.True(t, ok)
	_, _ = entry.Handler(context.Background(), "main", nil)
	assert.True(t, called)

	assert.True(t, g.Authorize("settings-1", "telemetry", OpSend))
	assert.ErrorIs(t, g.Apply(m, nil), ErrDuplicateChannel)
}

func TestApplyStrictManifest(t *testing.T) {
	m := &Manifest{Strict: true, Channels: []Channel{{
		ID:        "c",
		Direction: types.Invoke,
		Schema:    &Schema{Fields: map[string]Field{"a": {Kind: KindNumber, Required: true}}},
	}}}
	g := New(nil)
	require.NoError(t, g.Apply(m, nil))

	assert.ErrorIs(t, g.Validate("c", types.Payload{}), ErrSchemaViolation)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
