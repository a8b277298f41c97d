package graphics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jota2rz/graphics-core/internal/adapter"
	"github.com/jota2rz/graphics-core/internal/asset"
	"github.com/jota2rz/graphics-core/internal/models"
	"github.com/jota2rz/graphics-core/internal/outputconfig"
	"github.com/jota2rz/graphics-core/internal/renderer"
	"github.com/jota2rz/graphics-core/internal/statusbus"
	"github.com/jota2rz/graphics-core/internal/transition"
)

type fakeEnv struct{}

func (fakeEnv) Apply(models.FrameBusConfig) error { return nil }
func (fakeEnv) Clear() error                      { return nil }

type fakeResolver struct{}

func (fakeResolver) ResolvePort(portID string) (adapter.PortInfo, error) {
	return adapter.PortInfo{DeviceType: adapter.DeviceHDMI, DeviceID: portID, Role: adapter.PortRoleNone}, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newTestManager wires a fully in-process Manager: the renderer client is
// pointed at an address nothing listens on so it falls back to its
// in-process stub immediately, same as TestClientUnreachableAddressFallsBackToStub.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log := testLogger()

	assets := asset.New(log, t.TempDir())
	require.NoError(t, assets.Initialize())

	store := outputconfig.New(log, t.TempDir())
	require.NoError(t, store.Initialize())

	bus := statusbus.New(log)
	go bus.Run()
	t.Cleanup(bus.Close)

	metrics := NewMetrics(prometheus.NewRegistry())

	m := New(log, assets, store, bus, metrics)

	rc := renderer.NewClient(log, "127.0.0.1:1", "test-token", m)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rc.Start(ctx)

	ts := transition.New(log, rc, fakeResolver{}, store, fakeEnv{})

	m.SetRenderer(rc)
	m.SetTransitions(ts)
	require.NoError(t, m.Initialize(ctx))
	return m
}

func configurePayload() ConfigureOutputsPayload {
	return ConfigureOutputsPayload{
		Version:   1,
		OutputKey: models.OutputStub,
		Format:    models.Format{Width: 64, Height: 36, FPS: 30},
	}
}

func TestConfigureOutputsThenSendLayerListsLayer(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.ConfigureOutputs(ctx, configurePayload()))

	err := m.SendLayer(SendLayerPayload{
		LayerID:  "layer-1",
		Category: models.CategoryLowerThirds,
		Bundle:   models.TemplateBundle{HTML: `<div class="name"></div>`},
	})
	require.NoError(t, err)

	status := m.GetStatus()
	require.Len(t, status.Layers, 1)
	require.Equal(t, "layer-1", status.Layers[0].LayerID)
}

func TestSendLayerBeforeConfigureFails(t *testing.T) {
	m := newTestManager(t)
	err := m.SendLayer(SendLayerPayload{
		LayerID:  "layer-1",
		Category: models.CategoryOverlays,
		Bundle:   models.TemplateBundle{HTML: "<div></div>"},
	})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendLayerRejectsThirdCategoryCollision(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ConfigureOutputs(ctx, configurePayload()))

	require.NoError(t, m.SendLayer(SendLayerPayload{
		LayerID: "a", Category: models.CategoryLowerThirds,
		Bundle: models.TemplateBundle{HTML: "<div></div>"},
	}))
	err := m.SendLayer(SendLayerPayload{
		LayerID: "b", Category: models.CategoryLowerThirds,
		Bundle: models.TemplateBundle{HTML: "<div></div>"},
	})
	require.ErrorIs(t, err, ErrLayerLimit)
}

func TestSendLayerRejectsDurationWithoutPreset(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ConfigureOutputs(ctx, configurePayload()))

	err := m.SendLayer(SendLayerPayload{
		LayerID: "a", Category: models.CategoryOverlays, DurationMs: 5000,
		Bundle: models.TemplateBundle{HTML: "<div></div>"},
	})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestRemoveLayerClearsStatus(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ConfigureOutputs(ctx, configurePayload()))
	require.NoError(t, m.SendLayer(SendLayerPayload{
		LayerID: "a", Category: models.CategorySlides,
		Bundle: models.TemplateBundle{HTML: "<div></div>"},
	}))

	require.NoError(t, m.RemoveLayer(RemoveLayerPayload{LayerID: "a"}))
	require.Empty(t, m.GetStatus().Layers)

	err := m.RemoveLayer(RemoveLayerPayload{LayerID: "missing"})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPresetExpiryRemovesLayers(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ConfigureOutputs(ctx, configurePayload()))

	require.NoError(t, m.SendLayer(SendLayerPayload{
		LayerID: "a", Category: models.CategoryLowerThirds,
		PresetID: "lower-third-1", DurationMs: 20,
		Bundle: models.TemplateBundle{HTML: "<div></div>"},
	}))
	require.Len(t, m.GetStatus().Layers, 1)

	// Simulate the cadence tick arming the pending preset by ticking with
	// the layer present, then wait past the duration for expiry to fire.
	m.presets.ArmIfTicked(map[string]struct{}{"a": struct{}{}})

	require.Eventually(t, func() bool {
		return len(m.GetStatus().Layers) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTickCompositesWithoutPanicking(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.ConfigureOutputs(ctx, configurePayload()))
	require.NoError(t, m.SendLayer(SendLayerPayload{
		LayerID: "a", Category: models.CategoryOverlays,
		Bundle: models.TemplateBundle{HTML: "<div></div>"},
	}))

	require.Eventually(t, func() bool {
		m.mu.Lock()
		l := m.layers["a"]
		m.mu.Unlock()
		return l != nil && l.LastFrame != nil
	}, time.Second, 5*time.Millisecond)

	m.tick()
}
