package hostconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg := Parse(nil)
	require.Equal(t, ":8099", cfg.ListenAddr)
	require.Equal(t, "127.0.0.1:8100", cfg.RendererAddr)
	require.Equal(t, "graphics-data/graphics", cfg.OutputConfigDir())
	require.Equal(t, "graphics-data/graphics-assets", cfg.AssetsDir())
}

func TestParseOverrides(t *testing.T) {
	cfg := Parse([]string{"-addr", ":9000", "-data-dir", "/tmp/x"})
	require.Equal(t, ":9000", cfg.ListenAddr)
	require.Equal(t, "/tmp/x/graphics", cfg.OutputConfigDir())
}
