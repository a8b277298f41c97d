package renderer

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jota2rz/graphics-core/internal/models"
)

const (
	// MaxHeaderSize is the largest JSON header frame accepted or sent.
	MaxHeaderSize = 64 * 1024
	// MaxPayloadSize is the largest binary payload accepted or sent.
	MaxPayloadSize = 64 * 1024 * 1024
)

// ErrFrameTooLarge is returned when a header or declared payload exceeds the
// wire limits.
var ErrFrameTooLarge = errors.New("renderer: frame exceeds size limit")

// Header is the JSON envelope preceding every frame on the wire.
type Header struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`

	Accepted bool   `json:"accepted,omitempty"`
	Message  string `json:"message,omitempty"`

	LayerID string `json:"layerId,omitempty"`

	Assets   map[string]models.AssetRef `json:"assets,omitempty"`
	FrameBus models.FrameBusConfig       `json:"frameBus,omitempty"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	FPS    int `json:"fps,omitempty"`

	HTML           string                  `json:"html,omitempty"`
	CSS            string                  `json:"css,omitempty"`
	Values         map[string]any          `json:"values,omitempty"`
	Bindings       models.TemplateBindings `json:"bindings,omitempty"`
	Layout         models.Layout           `json:"layout,omitempty"`
	BackgroundMode models.BackgroundMode   `json:"backgroundMode,omitempty"`
	ZIndex         int32                   `json:"zIndex,omitempty"`

	BufferLength int `json:"bufferLength,omitempty"`
}

// Frame command/event type names.
const (
	TypeHello             = "hello"
	TypeSetAssets         = "set_assets"
	TypeConfigureSession  = "configure_session"
	TypeRenderLayer       = "render_layer"
	TypeUpdateValues      = "update_values"
	TypeUpdateLayout      = "update_layout"
	TypeRemoveLayer       = "remove_layer"
	TypeFrame             = "frame"
	TypeError             = "error"
)

// WriteFrame marshals header, sets BufferLength to len(payload), and writes
// the length-prefixed header followed by the raw payload bytes.
func WriteFrame(w io.Writer, header Header, payload []byte) error {
	header.BufferLength = len(payload)

	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("renderer: marshal header: %w", err)
	}
	if len(data) > MaxHeaderSize {
		return ErrFrameTooLarge
	}
	if len(payload) > MaxPayloadSize {
		return ErrFrameTooLarge
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("renderer: write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("renderer: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("renderer: write payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one length-prefixed header followed by its declared
// binary payload, if any. Callers that see ErrFrameTooLarge should
// resynchronize by discarding bytes until a valid length prefix is found
// (see Resync).
func ReadFrame(r *bufio.Reader) (Header, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxHeaderSize {
		return Header{}, nil, ErrFrameTooLarge
	}

	headerBytes := make([]byte, n)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return Header{}, nil, fmt.Errorf("renderer: read header: %w", err)
	}

	var h Header
	if err := json.Unmarshal(headerBytes, &h); err != nil {
		return Header{}, nil, fmt.Errorf("renderer: decode header: %w", err)
	}
	if h.BufferLength < 0 || h.BufferLength > MaxPayloadSize {
		return Header{}, nil, ErrFrameTooLarge
	}

	var payload []byte
	if h.BufferLength > 0 {
		payload = make([]byte, h.BufferLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return Header{}, nil, fmt.Errorf("renderer: read payload: %w", err)
		}
	}
	return h, payload, nil
}

// Resync discards bytes from r one at a time until the next 4 bytes parse
// as a plausible header length, or the reader is exhausted. It is used to
// recover the stream after an oversized frame is rejected.
func Resync(r *bufio.Reader) error {
	for {
		b, err := r.Peek(4)
		if err != nil {
			return err
		}
		n := binary.BigEndian.Uint32(b)
		if n <= MaxHeaderSize {
			return nil
		}
		if _, err := r.Discard(1); err != nil {
			return err
		}
	}
}
