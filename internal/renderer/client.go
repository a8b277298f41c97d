// Package renderer manages the connection to the external renderer
// subprocess: a length-prefixed JSON+binary protocol over loopback TCP,
// with a handshake token, exponential-backoff reconnect, and an in-process
// stub fallback for a failed initial bring-up.
package renderer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jota2rz/graphics-core/internal/models"
)

// ErrRendererUnavailable is returned by command methods when no renderer
// channel (primary or stub) is currently able to accept commands.
var ErrRendererUnavailable = errors.New("renderer: unavailable")

// EventHandler receives asynchronous events from the renderer channel.
type EventHandler interface {
	OnFrame(layerID string, rgba []byte)
	OnError(message string)
}

// backoffSchedule is the reconnect delay sequence; the last entry repeats.
var backoffSchedule = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// Client is the RendererClient.
type Client struct {
	log     *slog.Logger
	addr    string
	token   string
	handler EventHandler

	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	connected bool
	usingStub bool
	stub      *stubRenderer
	attempts  int

	sessionID string
}

// NewClient constructs a renderer Client. addr is the loopback TCP address
// the renderer subprocess listens on; token is the out-of-band handshake
// secret.
func NewClient(log *slog.Logger, addr, token string, handler EventHandler) *Client {
	return &Client{
		log:       log,
		addr:      addr,
		token:     token,
		handler:   handler,
		sessionID: uuid.NewString(),
	}
}

// Start performs the initial connection attempt. If it fails, the client
// falls back once to the in-process stub renderer rather than failing
// bring-up; subsequent disconnects instead trigger the reconnect loop.
func (c *Client) Start(ctx context.Context) {
	if err := c.connect(); err != nil {
		c.log.Warn("renderer bring-up failed, falling back to stub renderer", "error", err)
		c.mu.Lock()
		c.usingStub = true
		c.stub = newStubRenderer(c.handler)
		c.mu.Unlock()
		go c.stub.run(ctx)
		return
	}
	go c.readLoop(ctx)
}

// connect dials the renderer and performs the hello handshake. Caller must
// not hold c.mu.
func (c *Client) connect() error {
	conn, err := net.DialTimeout("tcp", c.addr, 2*time.Second)
	if err != nil {
		return fmt.Errorf("dial renderer: %w", err)
	}

	reader := bufio.NewReader(conn)
	if err := WriteFrame(conn, Header{Type: TypeHello, Token: c.token}, nil); err != nil {
		conn.Close()
		return fmt.Errorf("send hello: %w", err)
	}
	ack, _, err := ReadFrame(reader)
	if err != nil {
		conn.Close()
		return fmt.Errorf("read hello ack: %w", err)
	}
	if !ack.Accepted {
		conn.Close()
		return fmt.Errorf("renderer rejected handshake token")
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = reader
	c.connected = true
	c.usingStub = false
	c.attempts = 0
	c.mu.Unlock()
	return nil
}

// readLoop consumes events from the active connection until it fails, then
// hands off to the reconnect loop.
func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		reader := c.reader
		c.mu.Unlock()
		if reader == nil {
			return
		}

		header, payload, err := ReadFrame(reader)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				c.log.Warn("renderer sent oversized frame, resynchronizing")
				if rerr := Resync(reader); rerr != nil {
					c.handleDisconnect(ctx, rerr)
					return
				}
				continue
			}
			c.handleDisconnect(ctx, err)
			return
		}

		switch header.Type {
		case TypeFrame:
			if c.handler != nil {
				c.handler.OnFrame(header.LayerID, payload)
			}
		case TypeError:
			if c.handler != nil {
				c.handler.OnError(header.Message)
			}
		default:
			c.log.Warn("renderer sent unrecognized event type", "type", header.Type)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleDisconnect marks the channel down, reports it, and starts
// reconnecting with exponential backoff. Runtime disconnects reject
// subsequent render calls until a new connection succeeds.
func (c *Client) handleDisconnect(ctx context.Context, cause error) {
	c.mu.Lock()
	c.connected = false
	c.conn = nil
	c.reader = nil
	c.mu.Unlock()

	c.log.Warn("renderer channel disconnected, reconnecting", "error", cause)
	if c.handler != nil {
		c.handler.OnError(fmt.Sprintf("renderer disconnected: %v", cause))
	}
	go c.reconnectLoop(ctx)
}

func (c *Client) reconnectLoop(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		delay := backoffSchedule[len(backoffSchedule)-1]
		if attempt < len(backoffSchedule) {
			delay = backoffSchedule[attempt]
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := c.connect(); err != nil {
			attempt++
			continue
		}
		c.log.Info("renderer reconnected")
		go c.readLoop(ctx)
		return
	}
}

// available reports whether a command channel (primary connection or stub)
// can currently accept commands.
func (c *Client) available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected || c.usingStub
}

func (c *Client) send(header Header, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrRendererUnavailable
	}
	if err := WriteFrame(conn, header, payload); err != nil {
		return fmt.Errorf("renderer: send %s: %w", header.Type, err)
	}
	return nil
}

// SetAssets pushes the resolved asset map to the renderer.
func (c *Client) SetAssets(assets map[string]models.AssetRef) error {
	c.mu.Lock()
	stub := c.usingStub
	s := c.stub
	c.mu.Unlock()
	if stub {
		s.setAssets(assets)
		return nil
	}
	return c.send(Header{Type: TypeSetAssets, Assets: assets}, nil)
}

// ConfigureSession tells the renderer the active output geometry and
// cadence, and the FrameBus descriptor it should publish frames through.
func (c *Client) ConfigureSession(width, height, fps int, bus models.FrameBusConfig) error {
	c.mu.Lock()
	stub := c.usingStub
	s := c.stub
	c.mu.Unlock()
	if stub {
		s.configureSession(width, height)
		return nil
	}
	return c.send(Header{
		Type: TypeConfigureSession, Width: width, Height: height, FPS: fps, FrameBus: bus,
	}, nil)
}

// RenderLayer asks the renderer to begin producing frames for a layer.
func (c *Client) RenderLayer(layerID, html, css string, values map[string]any, bindings models.TemplateBindings,
	layout models.Layout, bg models.BackgroundMode, width, height, fps int, zIndex int32) error {

	c.mu.Lock()
	stub := c.usingStub
	s := c.stub
	c.mu.Unlock()
	if stub {
		s.renderLayer(renderLayerRequest{
			layerID: layerID, html: html, css: css, values: values, bindings: bindings,
			layout: layout, backgroundMode: bg, width: width, height: height, fps: fps, zIndex: zIndex,
		})
		return nil
	}
	return c.send(Header{
		Type: TypeRenderLayer, LayerID: layerID, HTML: html, CSS: css, Values: values,
		Bindings: bindings, Layout: layout, BackgroundMode: bg, Width: width, Height: height,
		FPS: fps, ZIndex: zIndex,
	}, nil)
}

// UpdateValues pushes new values/bindings for an already-rendering layer.
func (c *Client) UpdateValues(layerID string, values map[string]any, bindings models.TemplateBindings) error {
	c.mu.Lock()
	stub := c.usingStub
	s := c.stub
	c.mu.Unlock()
	if stub {
		s.updateValues(layerID, values, bindings)
		return nil
	}
	return c.send(Header{Type: TypeUpdateValues, LayerID: layerID, Values: values, Bindings: bindings}, nil)
}

// UpdateLayout repositions/rescales an already-rendering layer.
func (c *Client) UpdateLayout(layerID string, layout models.Layout) error {
	c.mu.Lock()
	stub := c.usingStub
	s := c.stub
	c.mu.Unlock()
	if stub {
		s.updateLayout(layerID, layout)
		return nil
	}
	return c.send(Header{Type: TypeUpdateLayout, LayerID: layerID, Layout: layout}, nil)
}

// RemoveLayer tells the renderer to stop producing frames for a layer.
func (c *Client) RemoveLayer(layerID string) error {
	c.mu.Lock()
	stub := c.usingStub
	s := c.stub
	c.mu.Unlock()
	if stub {
		s.removeLayer(layerID)
		return nil
	}
	return c.send(Header{Type: TypeRemoveLayer, LayerID: layerID}, nil)
}

// Available reports whether the client can currently accept commands
// (connected to the primary renderer or running the stub fallback).
func (c *Client) Available() bool { return c.available() }

// Close tears down the active connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.connected = false
		return err
	}
	return nil
}
