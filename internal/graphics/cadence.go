package graphics

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jota2rz/graphics-core/internal/adapter"
	"github.com/jota2rz/graphics-core/internal/compositor"
	"github.com/jota2rz/graphics-core/internal/models"
	"github.com/jota2rz/graphics-core/internal/statusbus"
)

// startCadence (re)starts the per-frame ticker at fps. Safe to call
// repeatedly; any running ticker is stopped first.
func (m *Manager) startCadence(fps int) {
	if fps <= 0 {
		fps = 30
	}
	m.stopCadence()

	m.mu.Lock()
	m.ticker = time.NewTicker(time.Second / time.Duration(fps))
	m.tickerDone = make(chan struct{})
	m.ticking = true
	ticker := m.ticker
	done := m.tickerDone
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				m.tick()
			case <-done:
				return
			}
		}
	}()
}

// stopCadence halts the ticker goroutine, if one is running.
func (m *Manager) stopCadence() {
	m.mu.Lock()
	if !m.ticking {
		m.mu.Unlock()
		return
	}
	m.ticking = false
	m.ticker.Stop()
	close(m.tickerDone)
	m.mu.Unlock()
}

// tick composites every layer's most recent frame into one output frame and
// hands it to the active output adapter. A tickInFlight guard drops a tick
// rather than queue it if the previous one is still running.
func (m *Manager) tick() {
	if !atomic.CompareAndSwapInt32(&m.tickInFlight, 0, 1) {
		m.metrics.TicksDropped.Inc()
		return
	}
	defer atomic.StoreInt32(&m.tickInFlight, 0)
	m.metrics.TicksRun.Inc()

	format, outputKey, configured := m.activeFormat()
	if !configured {
		return
	}

	m.mu.Lock()
	ordered := make([]*models.Layer, 0, len(m.layers))
	for _, l := range m.layers {
		ordered = append(ordered, l)
	}
	m.mu.Unlock()

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ZIndex != ordered[j].ZIndex {
			return ordered[i].ZIndex < ordered[j].ZIndex
		}
		return ordered[i].InsertSeq() < ordered[j].InsertSeq()
	})

	// Only layers that have actually delivered a frame contribute to this
	// tick's composite and count as "ticked" for preset arming purposes
	// (spec §4.8/§4.10: a preset only arms once a ticked frame exists for
	// one of its layers).
	compLayers := make([]compositor.Layer, 0, len(ordered))
	tickedIDs := make(map[string]struct{}, len(ordered))
	var bottomBackground models.BackgroundMode
	haveBottom := false
	for _, l := range ordered {
		if l.LastFrame == nil {
			continue
		}
		compLayers = append(compLayers, compositor.Layer{
			Buffer: l.LastFrame.Buffer, Width: format.Width, Height: format.Height,
		})
		tickedIDs[l.LayerID] = struct{}{}
		if !haveBottom {
			bottomBackground = l.BackgroundMode
			haveBottom = true
		}
	}

	if len(compLayers) == 0 {
		return
	}

	out := compositor.CompositeLayers(compLayers, format.Width, format.Height)
	if !outputKey.AlphaCapable() {
		r, g, b := backgroundRGB(bottomBackground)
		out = compositor.ApplyBackground(out, r, g, b)
	}
	m.metrics.FramesComposited.Inc()

	runtime, ok := m.transitions.Current()
	if !ok || runtime.OutputAdapter == nil {
		return
	}
	frame := adapter.Frame{Width: format.Width, Height: format.Height, RGBA: out}
	if err := runtime.OutputAdapter.SendFrame(frame, runtime.OutputConfig); err != nil {
		m.throttledLog("adapter_send", slog.LevelError, "output adapter send frame failed", "error", err)
		m.publishError("output_helper", err)
	}

	m.presets.ArmIfTicked(tickedIDs)
}

// backgroundRGB maps a BackgroundMode to the RGB fill used on non-alpha-
// capable outputs, per spec.md §4.10.
func backgroundRGB(mode models.BackgroundMode) (byte, byte, byte) {
	switch mode {
	case models.BackgroundGreen:
		return 0, 255, 0
	case models.BackgroundWhite:
		return 255, 255, 255
	default: // transparent, black, and any unset mode fill with black
		return 0, 0, 0
	}
}

// OnFrame implements renderer.EventHandler: it records the latest rendered
// frame for a layer, discarding frames for layers that have since been
// removed.
func (m *Manager) OnFrame(layerID string, rgba []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[layerID]
	if !ok {
		return
	}
	l.LastFrame = &models.RgbaFrame{LayerID: layerID, Buffer: rgba}
}

// OnError implements renderer.EventHandler: renderer-side errors are
// throttle-logged and republished on the status bus.
func (m *Manager) OnError(message string) {
	m.metrics.RendererReconnects.Inc()
	m.throttledLog("renderer", slog.LevelError, "renderer reported an error", "message", message)
	if m.status == nil {
		return
	}
	m.status.PublishError(statusbus.ErrorEvent{Code: "renderer", Message: message})
}
