package renderer

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jota2rz/graphics-core/internal/models"
)

type recordingHandler struct {
	frames chan [2]string // layerID, rgba bytes as a string
	errs   chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{frames: make(chan [2]string, 8), errs: make(chan string, 8)}
}

func (h *recordingHandler) OnFrame(layerID string, rgba []byte) {
	h.frames <- [2]string{layerID, string(rgba)}
}

func (h *recordingHandler) OnError(message string) {
	h.errs <- message
}

// fakeRenderer accepts one connection, performs the hello handshake, and
// echoes back a single test frame after seeing a render_layer command.
func fakeRenderer(t *testing.T, ln net.Listener, accept bool) {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	hello, _, err := ReadFrame(reader)
	require.NoError(t, err)
	require.Equal(t, TypeHello, hello.Type)

	require.NoError(t, WriteFrame(conn, Header{Type: TypeHello, Accepted: accept}, nil))
	if !accept {
		return
	}

	for {
		h, _, err := ReadFrame(reader)
		if err != nil {
			return
		}
		if h.Type == TypeRenderLayer {
			_ = WriteFrame(conn, Header{Type: TypeFrame, LayerID: h.LayerID}, []byte{9, 9, 9, 255})
			return
		}
	}
}

func TestClientHandshakeSuccessDeliversFrames(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go fakeRenderer(t, ln, true)

	handler := newRecordingHandler()
	client := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), ln.Addr().String(), "tok", handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.Start(ctx)
	require.True(t, client.Available())

	require.NoError(t, client.RenderLayer("layer-1", "<div></div>", "", nil,
		models.TemplateBindings{}, models.Layout{}, models.BackgroundTransparent, 100, 100, 30, 0))

	select {
	case f := <-handler.frames:
		require.Equal(t, "layer-1", f[0])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestClientHandshakeRejectedFallsBackToStub(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go fakeRenderer(t, ln, false)

	handler := newRecordingHandler()
	client := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), ln.Addr().String(), "tok", handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	require.True(t, client.Available())
}

func TestClientUnreachableAddressFallsBackToStub(t *testing.T) {
	handler := newRecordingHandler()
	client := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), "127.0.0.1:1", "tok", handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client.Start(ctx)
	require.True(t, client.Available())
}
