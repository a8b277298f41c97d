package renderer

import (
	"context"
	"fmt"
	"sync"

	"github.com/jota2rz/graphics-core/internal/models"
)

// stubRenderer is the in-process fallback used when the primary renderer
// fails to come up on initial bring-up. It emits solid test frames for any
// layer it is asked to render so the public facade stays responsive even
// with no external process running.
type stubRenderer struct {
	handler EventHandler

	mu     sync.Mutex
	layers map[string]renderLayerRequest
	width  int
	height int
}

func newStubRenderer(handler EventHandler) *stubRenderer {
	return &stubRenderer{
		handler: handler,
		layers:  make(map[string]renderLayerRequest),
	}
}

func (s *stubRenderer) configureSession(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = width
	s.height = height
}

func (s *stubRenderer) setAssets(map[string]models.AssetRef) {}

func (s *stubRenderer) renderLayer(req renderLayerRequest) {
	s.mu.Lock()
	s.layers[req.layerID] = req
	w, h := s.width, s.height
	s.mu.Unlock()
	s.emitTestFrame(req.layerID, w, h)
}

func (s *stubRenderer) updateValues(layerID string, values map[string]any, bindings models.TemplateBindings) {
	s.mu.Lock()
	req, ok := s.layers[layerID]
	if ok {
		req.values = values
		req.bindings = bindings
		s.layers[layerID] = req
	}
	w, h := s.width, s.height
	s.mu.Unlock()
	if ok {
		s.emitTestFrame(layerID, w, h)
	}
}

func (s *stubRenderer) updateLayout(layerID string, layout models.Layout) {
	s.mu.Lock()
	req, ok := s.layers[layerID]
	if ok {
		req.layout = layout
		s.layers[layerID] = req
	}
	s.mu.Unlock()
}

func (s *stubRenderer) removeLayer(layerID string) {
	s.mu.Lock()
	delete(s.layers, layerID)
	s.mu.Unlock()
}

// emitTestFrame produces an opaque mid-gray premultiplied RGBA buffer so the
// tick loop always has something to composite while the stub is active.
func (s *stubRenderer) emitTestFrame(layerID string, w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	buf := make([]byte, w*h*4)
	for i := 0; i+3 < len(buf); i += 4 {
		buf[i] = 128
		buf[i+1] = 128
		buf[i+2] = 128
		buf[i+3] = 255
	}
	if s.handler != nil {
		s.handler.OnFrame(layerID, buf)
	}
}

func (s *stubRenderer) run(ctx context.Context) {
	<-ctx.Done()
}

// renderLayerRequest mirrors the render_layer command fields the stub
// tracks to keep its test-frame generation state consistent across
// update_values/update_layout.
type renderLayerRequest struct {
	layerID        string
	html           string
	css            string
	values         map[string]any
	bindings       models.TemplateBindings
	layout         models.Layout
	backgroundMode models.BackgroundMode
	width          int
	height         int
	fps            int
	zIndex         int32
}

func (r renderLayerRequest) String() string {
	return fmt.Sprintf("layer(%s)", r.layerID)
}
