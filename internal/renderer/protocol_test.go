package renderer

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	header := Header{Type: TypeFrame, LayerID: "layer-1"}
	payload := []byte{1, 2, 3, 4}

	require.NoError(t, WriteFrame(&buf, header, payload))

	got, gotPayload, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, TypeFrame, got.Type)
	require.Equal(t, "layer-1", got.LayerID)
	require.Equal(t, payload, gotPayload)
	require.Equal(t, len(payload), got.BufferLength)
}

func TestWriteReadFrameNoPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Header{Type: TypeHello, Token: "secret"}, nil))

	got, payload, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, "secret", got.Token)
	require.Empty(t, payload)
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(lenBuf)

	_, _, err := ReadFrame(bufio.NewReader(&buf))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestResyncSkipsToValidPrefix(t *testing.T) {
	var buf bytes.Buffer
	// Garbage bytes that look like an oversized length, then a valid frame.
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	var valid bytes.Buffer
	require.NoError(t, WriteFrame(&valid, Header{Type: TypeHello}, nil))
	buf.Write(valid.Bytes())

	r := bufio.NewReader(&buf)
	require.NoError(t, Resync(r))

	got, _, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, TypeHello, got.Type)
}
