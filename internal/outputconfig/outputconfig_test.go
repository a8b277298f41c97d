package outputconfig

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jota2rz/graphics-core/internal/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(log, dir)
	require.NoError(t, s.Initialize())
	return s, dir
}

func sampleConfig() models.OutputConfig {
	return models.OutputConfig{
		OutputKey: models.OutputKeyFillSDI,
		Targets:   models.Targets{Output1ID: "sdi1", Output2ID: "sdi2"},
		Format:    models.Format{Width: 1920, Height: 1080, FPS: 30},
		Range:     models.RangeLegal,
	}
}

func TestInitializeFreshDirectoryIsUnconfigured(t *testing.T) {
	s, _ := newTestStore(t)
	_, ok := s.GetConfig()
	require.False(t, ok)
}

func TestSetConfigThenGetConfigRoundTrips(t *testing.T) {
	s, _ := newTestStore(t)
	cfg := sampleConfig()
	require.NoError(t, s.SetConfig(cfg))

	got, ok := s.GetConfig()
	require.True(t, ok)
	cfg.Version = CurrentVersion
	require.Equal(t, cfg, got)
}

func TestSetConfigPersistsAcrossReinitialize(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, s.SetConfig(sampleConfig()))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reloaded := New(log, dir)
	require.NoError(t, reloaded.Initialize())

	got, ok := reloaded.GetConfig()
	require.True(t, ok)
	require.Equal(t, models.OutputKeyFillSDI, got.OutputKey)
}

func TestClearRemovesPersistedFile(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, s.SetConfig(sampleConfig()))
	require.NoError(t, s.Clear())

	_, ok := s.GetConfig()
	require.False(t, ok)
	_, err := os.Stat(filepath.Join(dir, configFile))
	require.True(t, os.IsNotExist(err))
}

func TestClearOnAlreadyAbsentFileIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
}

func TestInitializeTreatsVersionTooNewAsAbsent(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := sampleConfig()
	cfg.Version = CurrentVersion + 99

	s := New(log, dir)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.SetConfig(cfg)) // normalizes version, writes fine
	require.NoError(t, s.Clear())

	// Manually write a too-new versioned file and reload.
	writeRaw(t, dir, `{"version":99,"outputKey":"stub","targets":{},"format":{"width":1,"height":1,"fps":1},"range":"legal","colorspace":"auto"}`)
	reloaded := New(log, dir)
	require.NoError(t, reloaded.Initialize())
	_, ok := reloaded.GetConfig()
	require.False(t, ok)
}

func TestInitializeLegacyCoercionStripsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	writeRaw(t, dir, `{"version":1,"outputKey":"stub","targets":{},"format":{"width":640,"height":480,"fps":25},"range":"legal","colorspace":"auto","legacyField":"drop-me"}`)

	s := New(log, dir)
	require.NoError(t, s.Initialize())
	got, ok := s.GetConfig()
	require.True(t, ok)
	require.Equal(t, models.OutputStub, got.OutputKey)
	require.Equal(t, 640, got.Format.Width)
}

func TestInitializeCorruptFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	writeRaw(t, dir, `{not json`)

	s := New(log, dir)
	require.NoError(t, s.Initialize())
	_, ok := s.GetConfig()
	require.False(t, ok)
}

func writeRaw(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFile), []byte(content), 0o644))
}
