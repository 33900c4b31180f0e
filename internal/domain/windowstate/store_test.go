package windowstate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/shell/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

func newFakeClock() *clock.Fake {
	return clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "windows.toml"))
	require.NoError(t, err)
	assert.Empty(t, s.All())
}

func TestOpenReadsTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windows.toml")
	content := `
[main]
x = 100
y = 200
width = 800
height = 600
maximized = false

[settings]
x = 0
y = 0
width = 400
height = 300
maximized = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Open(path)
	require.NoError(t, err)

	b, ok := s.Get("main")
	require.True(t, ok)
	assert.Equal(t, types.Bounds{X: 100, Y: 200, Width: 800, Height: 600}, b)

	b, ok = s.Get("settings")
	require.True(t, ok)
	assert.True(t, b.Maximized)
	assert.Equal(t, []string{"main", "settings"}, s.IDs())
}

func TestOpenIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windows.toml")
	require.NoError(t, os.WriteFile(path, []byte("[main\nx = "), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, s.All())
}

func TestObserveDebounces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windows.toml")
	fake := newFakeClock()
	s, err := Open(path, WithClock(fake), WithDebounce(500*time.Millisecond))
	require.NoError(t, err)

	s.Observe("main", types.Bounds{X: 1, Width: 10, Height: 10})
	fake.Advance(300 * time.Millisecond)
	s.Observe("main", types.Bounds{X: 2, Width: 10, Height: 10})
	fake.Advance(300 * time.Millisecond)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "write should wait for the quiet period")

	fake.Advance(200 * time.Millisecond)
	reopened, err := Open(path)
	require.NoError(t, err)
	b, ok := reopened.Get("main")
	require.True(t, ok)
	assert.Equal(t, 2, b.X)
}

func TestFlushWritesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "windows.toml")
	fake := newFakeClock()
	s, err := Open(path, WithClock(fake))
	require.NoError(t, err)

	s.Observe("main", types.Bounds{X: 100, Y: 200, Width: 800, Height: 600})
	require.NoError(t, s.Flush())
	assert.Equal(t, 0, fake.Pending())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[main]")
	assert.Contains(t, string(data), "width = 800")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFlushWithoutChangesIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windows.toml")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Flush())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRoundTripAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windows.toml")
	want := types.Bounds{X: 100, Y: 200, Width: 800, Height: 600}

	first, err := Open(path)
	require.NoError(t, err)
	first.Put("main", want)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	got, ok := second.Get("main")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestHandler(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	s.Put("main", types.Bounds{X: 5, Y: 6, Width: 7, Height: 8})
	h := s.Handler()

	tests := []struct {
		name    string
		caller  types.ContextID
		payload types.Payload
		found   bool
		wantID  string
		wantErr bool
	}{
		{"worker reads own entry", "main", nil, true, "main", false},
		{"worker cannot name another", "settings", types.Payload{"id": "main"}, false, "settings", false},
		{"host names any window", types.HostContext, types.Payload{"id": "main"}, true, "main", false},
		{"host must name a window", types.HostContext, nil, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h(context.Background(), tt.caller, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.found, out["found"])
			assert.Equal(t, tt.wantID, out["id"])
			if tt.found {
				assert.Equal(t, 7, out["width"])
			}
		})
	}
}

func TestChannelRegistration(t *testing.T) {
	ch := Channel()
	assert.Equal(t, BoundsChannel, ch.ID)
	assert.Equal(t, types.Invoke, ch.Direction)
	assert.Equal(t, []string{"*"}, ch.Allow)
}
