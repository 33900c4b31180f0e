package wire

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/gateway"
	"github.com/GriffinCanCode/AgentOS/shell/internal/domain/worker"
	"github.com/GriffinCanCode/AgentOS/shell/internal/runtime/linktest"
	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

func TestCodecs(t *testing.T) {
	for _, codec := range []Codec{JSON, CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			in := Frame{
				Kind:    KindBounds,
				ID:      "42",
				Channel: "window",
				Payload: types.Payload{"x": 100, "nested": map[string]interface{}{"ok": true}},
			}
			data, err := codec.Marshal(&in)
			require.NoError(t, err)

			var out Frame
			require.NoError(t, codec.Unmarshal(data, &out))
			assert.Equal(t, in.Kind, out.Kind)
			assert.Equal(t, in.ID, out.ID)

			x, ok := types.BoundsFromPayload(types.Payload{"x": out.Payload["x"], "y": 0, "width": 0, "height": 0})
			require.True(t, ok)
			assert.Equal(t, 100, x.X)

			nested, ok := out.Payload["nested"].(map[string]interface{})
			require.True(t, ok, "nested maps decode with string keys")
			assert.Equal(t, true, nested["ok"])
		})
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, CBOR)
	require.NoError(t, w.WriteFrame(Frame{Kind: KindReady}))
	require.NoError(t, w.WriteFrame(Frame{Kind: KindSend, Channel: "log.write", Payload: types.Payload{"line": "hi"}}))

	r := NewReader(&buf, CBOR)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, KindReady, f.Kind)

	f, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "log.write", f.Channel)
	assert.Equal(t, "hi", f.Payload["line"])

	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamRejectsOversizedFrames(t *testing.T) {
	header := []byte{0xff, 0xff, 0xff, 0xff}
	_, err := NewReader(bytes.NewReader(header), CBOR).ReadFrame()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestStreamTruncatedBody(t *testing.T) {
	data := []byte{0, 0, 0, 10, 1, 2}
	_, err := NewReader(bytes.NewReader(data), CBOR).ReadFrame()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFromMessage(t *testing.T) {
	send := FromMessage(&types.Message{Kind: types.KindSend, Channel: "theme", Payload: types.Payload{"dark": true}})
	assert.Equal(t, Frame{Kind: KindSend, Channel: "theme", Payload: types.Payload{"dark": true}}, send)

	req := FromMessage(&types.Message{Kind: types.KindRequest, Channel: "render", CorrelationID: "abc"})
	assert.Equal(t, KindRequest, req.Kind)
	assert.Equal(t, "abc", req.ID)
}

func TestFromControl(t *testing.T) {
	tests := []struct {
		name    string
		control worker.Control
		want    Kind
	}{
		{"close", worker.Control{Kind: worker.ControlClose}, KindClose},
		{"visibility", worker.Control{Kind: worker.ControlVisibility, Visible: true}, KindVisibility},
		{"bounds", worker.Control{Kind: worker.ControlBounds, Bounds: types.Bounds{Width: 5}}, KindBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromControl(tt.control).Kind)
		})
	}
	assert.Equal(t, true, FromControl(worker.Control{Kind: worker.ControlVisibility, Visible: true}).Payload["visible"])
}

func TestInitFrame(t *testing.T) {
	link := linktest.New("main")
	link.WindowName = "Main"
	link.Channels = []gateway.Channel{{ID: "log.write", Direction: types.WorkerToHost}}

	f := Init(link)
	assert.Equal(t, KindInit, f.Kind)
	assert.Equal(t, "main", f.ID)
	assert.Equal(t, "Main", f.Payload["title"])
	require.Len(t, f.Payload["channels"], 1)
}

func TestDispatcher(t *testing.T) {
	link := linktest.New("main")
	replies := make(chan Frame, 8)
	d := NewDispatcher(link, func(f Frame) error {
		replies <- f
		return nil
	})
	defer d.Close()

	require.NoError(t, d.Handle(Frame{Kind: KindReady}))
	assert.True(t, link.WaitReady(time.Second))

	require.NoError(t, d.Handle(Frame{Kind: KindSend, Channel: "log.write", Payload: types.Payload{"line": "a"}}))
	require.Len(t, link.SentMessages(), 1)

	require.NoError(t, d.Handle(Frame{Kind: KindResponse, ID: "corr", Payload: types.Payload{"ok": true}}))
	require.Len(t, link.Responses(), 1)
	assert.Equal(t, "corr", link.Responses()[0].ID)

	require.NoError(t, d.Handle(Frame{Kind: KindBounds, Payload: types.Payload{"x": 1.0, "y": 2.0, "width": 3.0, "height": 4.0}}))
	assert.Equal(t, []types.Bounds{{X: 1, Y: 2, Width: 3, Height: 4}}, link.BoundsUpdates())

	require.NoError(t, d.Handle(Frame{Kind: KindVisibility, Payload: types.Payload{"visible": false}}))
	require.NoError(t, d.Handle(Frame{Kind: KindVisibility, Payload: types.Payload{"minimized": true}}))
	assert.Equal(t, []bool{false}, link.Visibility())
	assert.Equal(t, 1, link.Minimizes())

	require.NoError(t, d.Handle(Frame{Kind: KindClose}))
	assert.Equal(t, 1, link.Closes())

	require.NoError(t, d.Handle(Frame{Kind: KindLog, Payload: types.Payload{"level": "warn", "message": "hi"}}))

	assert.ErrorIs(t, d.Handle(Frame{Kind: "bogus"}), ErrUnknownFrame)
	assert.Error(t, d.Handle(Frame{Kind: KindBounds, Payload: types.Payload{"x": "left"}}))
}

func TestDispatcherInvoke(t *testing.T) {
	link := linktest.New("main")
	link.InvokeFunc = func(ctx context.Context, channel string, p types.Payload) (types.Payload, error) {
		if channel == "fail" {
			return nil, errors.New("denied")
		}
		return types.Payload{"echo": p["v"]}, nil
	}
	replies := make(chan Frame, 8)
	d := NewDispatcher(link, func(f Frame) error {
		replies <- f
		return nil
	})
	defer d.Close()

	require.NoError(t, d.Handle(Frame{Kind: KindRequest, ID: "1", Channel: "ok", Payload: types.Payload{"v": 7}}))
	reply := <-replies
	assert.Equal(t, KindResponse, reply.Kind)
	assert.Equal(t, "1", reply.ID)
	assert.Equal(t, 7, reply.Payload["echo"])

	require.NoError(t, d.Handle(Frame{Kind: KindRequest, ID: "2", Channel: "fail"}))
	reply = <-replies
	assert.Equal(t, "denied", reply.Error)

	assert.Error(t, d.Handle(Frame{Kind: KindRequest, Channel: "ok"}))
}

func TestDispatcherSendFailureReply(t *testing.T) {
	link := linktest.New("main")
	link.SendErr = types.ErrDenied
	replies := make(chan Frame, 1)
	d := NewDispatcher(link, func(f Frame) error {
		replies <- f
		return nil
	})
	defer d.Close()

	require.NoError(t, d.Handle(Frame{Kind: KindSend, Channel: "secret"}))
	require.NoError(t, d.Handle(Frame{Kind: KindSend, ID: "9", Channel: "secret"}))

	reply := <-replies
	assert.Equal(t, "9", reply.ID)
	assert.Equal(t, "denied", reply.Error)
}

func TestDispatcherCloseCancelsInvokes(t *testing.T) {
	link := linktest.New("main")
	started := make(chan struct{})
	link.InvokeFunc = func(ctx context.Context, channel string, p types.Payload) (types.Payload, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d := NewDispatcher(link, func(f Frame) error { return nil })

	require.NoError(t, d.Handle(Frame{Kind: KindRequest, ID: "1", Channel: "slow"}))
	<-started
	d.Close()
}
