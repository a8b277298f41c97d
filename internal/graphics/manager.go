// Package graphics implements GraphicsManager: the public facade owning
// the layer map, category index, cadence ticker, and command routing for
// the broadcast graphics engine core.
package graphics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jota2rz/graphics-core/internal/asset"
	"github.com/jota2rz/graphics-core/internal/models"
	"github.com/jota2rz/graphics-core/internal/outputconfig"
	"github.com/jota2rz/graphics-core/internal/preset"
	"github.com/jota2rz/graphics-core/internal/renderer"
	"github.com/jota2rz/graphics-core/internal/statusbus"
	"github.com/jota2rz/graphics-core/internal/transition"
)

// logThrottleInterval bounds operational log lines to at most one per class
// every 5 seconds, per spec.md §4.10.
const logThrottleInterval = 5 * time.Second

// FrameBusName is the name every FrameBusConfig this manager derives uses.
const FrameBusName = "graphics-frame-bus"

// Manager is the GraphicsManager facade. Construct with New, then wire the
// renderer client and transition service with SetRenderer/SetTransitions
// before calling Initialize — the renderer client needs the manager as its
// EventHandler, so the two are built in two passes to break the cycle.
type Manager struct {
	log     *slog.Logger
	assets  *asset.Registry
	store   *outputconfig.Store
	status  *statusbus.Bus
	metrics *Metrics
	presets *preset.Service

	renderer    *renderer.Client
	transitions *transition.Service

	mu            sync.Mutex
	layers        map[string]*models.Layer
	categoryIndex map[models.Category]string
	nextSeq       uint64

	outputConfig models.OutputConfig
	configured   bool

	ticker       *time.Ticker
	tickerDone   chan struct{}
	ticking      bool
	tickInFlight int32

	lastLogTime map[string]time.Time
}

// New constructs a Manager. assets and store must already be Initialize-d.
func New(log *slog.Logger, assets *asset.Registry, store *outputconfig.Store, status *statusbus.Bus, metrics *Metrics) *Manager {
	m := &Manager{
		log:           log,
		assets:        assets,
		store:         store,
		status:        status,
		metrics:       metrics,
		layers:        make(map[string]*models.Layer),
		categoryIndex: make(map[models.Category]string),
		lastLogTime:   make(map[string]time.Time),
	}
	m.presets = preset.New(log, m.onPresetExpire)
	return m
}

// SetRenderer wires the renderer client. Must be called once, before
// Initialize.
func (m *Manager) SetRenderer(rc *renderer.Client) { m.renderer = rc }

// SetTransitions wires the output transition service. Must be called once,
// before Initialize.
func (m *Manager) SetTransitions(ts *transition.Service) { m.transitions = ts }

// Initialize brings the manager up. If the transition service's store
// already holds a persisted config, the manager restarts in the Configured
// state and starts the cadence ticker at that config's format.
func (m *Manager) Initialize(ctx context.Context) error {
	cfg, ok := m.store.GetConfig()
	if !ok {
		return nil
	}
	m.mu.Lock()
	m.outputConfig = cfg
	m.configured = true
	m.mu.Unlock()
	m.startCadence(cfg.Format.FPS)
	m.log.Info("graphics manager initialized with persisted output config", "outputKey", cfg.OutputKey)
	return nil
}

// ConfigureOutputs validates and applies a new output configuration via the
// transition service, (re)starting the cadence ticker on success.
func (m *Manager) ConfigureOutputs(ctx context.Context, p ConfigureOutputsPayload) error {
	if err := validateConfigureOutputs(p); err != nil {
		return err
	}

	cfg := models.OutputConfig{
		Version:    p.Version,
		OutputKey:  p.OutputKey,
		Targets:    p.Targets,
		Format:     p.Format,
		Range:      p.Range,
		Colorspace: p.Colorspace,
	}
	if cfg.Range == "" {
		cfg.Range = models.RangeLegal
	}
	if cfg.Colorspace == "" {
		cfg.Colorspace = models.ColorspaceAuto
	}

	if err := m.transitions.Apply(ctx, cfg, FrameBusName); err != nil {
		m.metrics.TransitionFailures.Inc()
		m.publishError("transition", err)
		return err
	}

	m.mu.Lock()
	m.outputConfig = cfg
	m.configured = true
	m.mu.Unlock()

	m.startCadence(cfg.Format.FPS)
	m.publishStatus("configure_outputs")
	return nil
}

func validateConfigureOutputs(p ConfigureOutputsPayload) error {
	switch p.OutputKey {
	case models.OutputKeyFillSDI, models.OutputKeyFillSplitSDI:
		if p.Targets.Output1ID == "" || p.Targets.Output2ID == "" || p.Targets.Output1ID == p.Targets.Output2ID {
			return fmt.Errorf("%w: %s requires two distinct targets", ErrInvalidPayload, p.OutputKey)
		}
	case models.OutputVideoSDI, models.OutputVideoHDMI:
		if p.Targets.Output1ID == "" {
			return fmt.Errorf("%w: %s requires output1Id", ErrInvalidPayload, p.OutputKey)
		}
	case models.OutputKeyFillNDI:
		if p.Targets.NDIStreamName == "" {
			return fmt.Errorf("%w: key_fill_ndi requires ndiStreamName", ErrInvalidPayload)
		}
	case models.OutputStub:
		// no target requirements
	default:
		return fmt.Errorf("%w: unknown outputKey %q", ErrInvalidPayload, p.OutputKey)
	}
	if p.Format.Width <= 0 || p.Format.Height <= 0 || p.Format.FPS <= 0 {
		return fmt.Errorf("%w: format width/height/fps must be positive", ErrInvalidPayload)
	}
	return nil
}

// activeFormat returns the currently configured output format and whether
// the manager is configured at all.
func (m *Manager) activeFormat() (models.Format, models.OutputKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputConfig.Format, m.outputConfig.OutputKey, m.configured
}

func (m *Manager) publishStatus(reason string) {
	if m.status == nil {
		return
	}
	snap, hasPreset := m.presets.Current()
	var active *ActivePresetView
	var all []ActivePresetView
	if hasPreset {
		v := ActivePresetView{PresetID: snap.PresetID, DurationMs: snap.DurationMs, LayerIDs: snap.LayerIDs}
		active = &v
		all = []ActivePresetView{v}
	}
	m.status.PublishStatus(statusbus.StatusEvent{Reason: reason, ActivePreset: active, ActivePresets: all})
}

func (m *Manager) publishError(code string, err error) {
	if m.status == nil {
		return
	}
	m.status.PublishError(statusbus.ErrorEvent{Code: code, Message: err.Error()})
}

// throttledLog logs msg at most once per logThrottleInterval per class.
func (m *Manager) throttledLog(class string, level slog.Level, msg string, args ...any) {
	m.mu.Lock()
	last, ok := m.lastLogTime[class]
	now := time.Now()
	if ok && now.Sub(last) < logThrottleInterval {
		m.mu.Unlock()
		return
	}
	m.lastLogTime[class] = now
	m.mu.Unlock()
	m.log.Log(context.Background(), level, msg, args...)
}
