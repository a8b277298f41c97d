package transition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jota2rz/graphics-core/internal/adapter"
	"github.com/jota2rz/graphics-core/internal/models"
	"github.com/jota2rz/graphics-core/internal/outputconfig"
)

type fakeRenderer struct {
	failConfigureSession bool
	calls                int
}

func (f *fakeRenderer) ConfigureSession(width, height, fps int, bus models.FrameBusConfig) error {
	f.calls++
	if f.failConfigureSession {
		return errors.New("renderer refused session")
	}
	return nil
}

type fakeResolver struct{}

func (fakeResolver) ResolvePort(portID string) (adapter.PortInfo, error) {
	return adapter.PortInfo{DeviceType: adapter.DeviceHDMI, DeviceID: portID, Role: adapter.PortRoleNone}, nil
}

type fakeEnv struct {
	applyErr error
	cleared  bool
	applied  models.FrameBusConfig
}

func (f *fakeEnv) Apply(cfg models.FrameBusConfig) error {
	f.applied = cfg
	return f.applyErr
}

func (f *fakeEnv) Clear() error {
	f.cleared = true
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() models.OutputConfig {
	return models.OutputConfig{
		OutputKey: models.OutputStub,
		Format:    models.Format{Width: 1280, Height: 720, FPS: 30},
	}
}

func TestApplySucceedsAndSwapsRuntime(t *testing.T) {
	store := outputconfig.New(testLogger(), t.TempDir())
	require.NoError(t, store.Initialize())

	svc := New(testLogger(), &fakeRenderer{}, fakeResolver{}, store, &fakeEnv{})
	require.NoError(t, svc.Apply(context.Background(), testConfig(), "bus1"))

	rt, ok := svc.Current()
	require.True(t, ok)
	require.Equal(t, models.OutputStub, rt.OutputConfig.OutputKey)

	persisted, ok := store.GetConfig()
	require.True(t, ok)
	require.Equal(t, models.OutputStub, persisted.OutputKey)
}

func TestApplyFailureRollsBackToPreviousRuntime(t *testing.T) {
	store := outputconfig.New(testLogger(), t.TempDir())
	require.NoError(t, store.Initialize())

	renderer := &fakeRenderer{}
	svc := New(testLogger(), renderer, fakeResolver{}, store, &fakeEnv{})
	require.NoError(t, svc.Apply(context.Background(), testConfig(), "bus1"))

	before, _ := svc.Current()

	renderer.failConfigureSession = true
	cfg2 := testConfig()
	cfg2.Format.Width = 1920
	err := svc.Apply(context.Background(), cfg2, "bus1")
	require.Error(t, err)

	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.Equal(t, StageRendererConfigure, terr.Stage)

	after, ok := svc.Current()
	require.True(t, ok)
	require.Equal(t, before.OutputConfig, after.OutputConfig)
}

func TestApplyWithNoPreviousRuntimeClearsEnvOnFailure(t *testing.T) {
	store := outputconfig.New(testLogger(), t.TempDir())
	require.NoError(t, store.Initialize())

	env := &fakeEnv{}
	renderer := &fakeRenderer{failConfigureSession: true}
	svc := New(testLogger(), renderer, fakeResolver{}, store, env)

	err := svc.Apply(context.Background(), testConfig(), "bus1")
	require.Error(t, err)
	_, ok := svc.Current()
	require.False(t, ok)
	require.True(t, env.cleared)
}
