package compositor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompositeLayersEmptyReturnsZeroBuffer(t *testing.T) {
	buf := CompositeLayers(nil, 4, 4)
	require.Len(t, buf, 4*4*4)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}

func TestCompositeLayersSingleOpaqueLayerIsIdentity(t *testing.T) {
	w, h := 2, 2
	buf := make([]byte, w*h*4)
	for i := range buf {
		buf[i] = byte(i%251 + 1)
	}
	// Force full alpha for every pixel.
	for i := 3; i < len(buf); i += 4 {
		buf[i] = 255
	}

	out := CompositeLayers([]Layer{{Buffer: buf, Width: w, Height: h}}, w, h)
	require.Equal(t, buf, out)
}

func TestCompositeLayersSkipsMismatchedSize(t *testing.T) {
	w, h := 2, 2
	mismatched := Layer{Buffer: make([]byte, 3), Width: w, Height: h}
	out := CompositeLayers([]Layer{mismatched}, w, h)
	require.Len(t, out, w*h*4)
	for _, b := range out {
		require.Equal(t, byte(0), b)
	}
}

func TestCompositeLayersSkipsZeroAlphaPixels(t *testing.T) {
	w, h := 1, 1
	base := []byte{10, 20, 30, 255}
	transparent := []byte{200, 200, 200, 0}

	out := CompositeLayers([]Layer{
		{Buffer: base, Width: w, Height: h},
		{Buffer: transparent, Width: w, Height: h},
	}, w, h)
	require.Equal(t, base, out)
}

func TestApplyBackgroundFillsTransparentPixel(t *testing.T) {
	buf := []byte{0, 0, 0, 0}
	out := ApplyBackground(buf, 10, 20, 30)
	require.Equal(t, []byte{10, 20, 30, 255}, out)
}

func TestApplyBackgroundIdempotentOnOpaque(t *testing.T) {
	buf := []byte{50, 60, 70, 255}
	out := ApplyBackground(buf, 1, 2, 3)
	require.Equal(t, buf, out)
}

func TestApplyBackgroundBlendsPartialAlpha(t *testing.T) {
	// 50% premultiplied source over black background.
	buf := []byte{127, 127, 127, 127}
	out := ApplyBackground(buf, 0, 0, 0)
	require.Equal(t, byte(255), out[3])
	require.Equal(t, buf[0], out[0]) // black background contributes 0
}

func TestDivRoundHalfAwayFromZero(t *testing.T) {
	require.Equal(t, 1, divRound(128))
	require.Equal(t, 0, divRound(126))
}
