package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "production", cfg: DefaultConfig()},
		{name: "development", cfg: DevelopmentConfig()},
		{name: "no outputs", cfg: Config{Level: "warn"}},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l.Logger)
		})
	}
}

func TestWorkerScope(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{Logger: zap.New(core)}

	l.Worker("main").Info("Worker ready")
	l.Component("bus").Info("Attached")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "main", entries[0].ContextMap()["logical_id"])
	assert.Equal(t, "bus", entries[1].LoggerName)
}

func TestFallbacks(t *testing.T) {
	assert.NotNil(t, NewDefault())
	assert.NotNil(t, NewDevelopment())
	assert.NotNil(t, Nop().Logger)
}
