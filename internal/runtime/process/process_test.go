package process

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/linktest"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/wire"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

const helperEnv = "SHELL_WORKER_HELPER"

// TestMain turns the test binary into a worker when re-executed
func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(helperWorker(mode))
	}
	os.Exit(m.Run())
}

// helperWorker speaks the frame protocol on stdio
func helperWorker(mode string) int {
	reader := wire.NewReader(os.Stdin, wire.CBOR)
	writer := wire.NewWriter(os.Stdout, wire.CBOR)

	for {
		f, err := reader.ReadFrame()
		if err != nil {
			if mode == "stubborn" {
				time.Sleep(time.Hour)
			}
			return 0
		}
		switch f.Kind {
		case wire.KindInit:
			os.Stderr.WriteString("booting " + f.Payload["title"].(string) + "\n")
			switch mode {
			case "crash":
				return 3
			case "hang":
				continue
			}
			_ = writer.WriteFrame(wire.Frame{Kind: wire.KindReady})
			_ = writer.WriteFrame(wire.Frame{Kind: wire.KindSend, Channel: "log.write", Payload: types.Payload{"line": "hello"}})
			_ = writer.WriteFrame(wire.Frame{Kind: wire.KindRequest, ID: "q1", Channel: "doc.render", Payload: types.Payload{"n": 1}})
		case wire.KindSend:
			_ = writer.WriteFrame(wire.Frame{Kind: wire.KindSend, Channel: "echo", Payload: f.Payload})
		case wire.KindRequest:
			_ = writer.WriteFrame(wire.Frame{Kind: wire.KindResponse, ID: f.ID, Payload: types.Payload{"echo": f.Channel}})
		case wire.KindResponse:
			_ = writer.WriteFrame(wire.Frame{Kind: wire.KindSend, Channel: "got", Payload: types.Payload{"id": f.ID}})
		case wire.KindBounds:
			_ = writer.WriteFrame(wire.Frame{Kind: wire.KindBounds, Payload: f.Payload})
		case wire.KindClose:
			if mode == "stubborn" {
				continue
			}
			return 0
		}
	}
}

func newLink() *linktest.Link {
	link := linktest.New("main")
	link.WindowName = "Main"
	link.Channels = []gateway.Channel{{ID: "log.write", Direction: types.WorkerToHost}}
	return link
}

func start(t *testing.T, mode string, link *linktest.Link) *Runtime {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	rt := New(Options{Command: exe, Args: []string{"-test.run=^$"}, Env: []string{helperEnv + "=" + mode}})
	require.NoError(t, rt.Start(t.Context(), link))
	t.Cleanup(func() { _ = rt.Kill() })
	return rt
}

func TestProcessLifecycle(t *testing.T) {
	link := newLink()
	rt := start(t, "ok", link)

	require.True(t, link.WaitReady(5*time.Second))
	require.True(t, link.Eventually(5*time.Second, func() bool {
		return len(link.SentMessages()) >= 1
	}))
	assert.Equal(t, "log.write", link.SentMessages()[0].Channel)

	// Worker request answered by the link echo
	require.True(t, link.Eventually(5*time.Second, func() bool {
		for _, s := range link.SentMessages() {
			if s.Channel == "got" {
				return true
			}
		}
		return false
	}))

	require.NoError(t, rt.Deliver(&types.Message{Kind: types.KindRequest, Channel: "doc.render", CorrelationID: "c1"}))
	require.True(t, link.Eventually(5*time.Second, func() bool {
		return len(link.Responses()) == 1
	}))
	resp := link.Responses()[0]
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, "doc.render", resp.Payload["echo"])

	b := types.Bounds{X: 1, Y: 2, Width: 300, Height: 200}
	require.NoError(t, rt.Control(worker.Control{Kind: worker.ControlBounds, Bounds: b}))
	require.True(t, link.Eventually(5*time.Second, func() bool {
		return len(link.BoundsUpdates()) == 1
	}))
	assert.Equal(t, b, link.BoundsUpdates()[0])

	require.NoError(t, rt.Control(worker.Control{Kind: worker.ControlClose}))
	err, ok := link.WaitExit(5 * time.Second)
	require.True(t, ok)
	assert.NoError(t, err)

	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatal("runtime not done")
	}
}

func TestProcessCrashReportsExit(t *testing.T) {
	link := newLink()
	start(t, "crash", link)

	err, ok := link.WaitExit(5 * time.Second)
	require.True(t, ok)
	assert.Error(t, err)
	assert.False(t, link.WaitReady(10*time.Millisecond))
}

func TestProcessKill(t *testing.T) {
	link := newLink()
	rt := start(t, "stubborn", link)
	require.True(t, link.WaitReady(5*time.Second))

	require.NoError(t, rt.Control(worker.Control{Kind: worker.ControlClose}))
	_, exited := link.WaitExit(100 * time.Millisecond)
	require.False(t, exited)

	require.NoError(t, rt.Kill())
	err, ok := link.WaitExit(5 * time.Second)
	require.True(t, ok)
	assert.Error(t, err)
}

func TestProcessStartErrors(t *testing.T) {
	link := newLink()
	assert.Error(t, New(Options{}).Start(t.Context(), link))
	assert.Error(t, New(Options{Command: "/nonexistent/worker-binary"}).Start(t.Context(), link))
	assert.ErrorIs(t, New(Options{}).Kill(), ErrNotStarted)
	assert.ErrorIs(t, New(Options{}).Deliver(&types.Message{}), ErrNotStarted)
}
