package asset

import (
	"encoding/base64"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jota2rz/graphics-core/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(log, dir)
	require.NoError(t, r.Initialize())
	return r
}

func TestInitializeFreshDirectory(t *testing.T) {
	r := newTestRegistry(t)
	require.Empty(t, r.GetAssetMap())
}

func TestStoreAndGetAsset(t *testing.T) {
	r := newTestRegistry(t)
	payload := models.AssetPayload{
		AssetID: "logo1",
		Name:    "logo.png",
		Mime:    "image/png",
		Data:    base64.StdEncoding.EncodeToString([]byte("pngbytes")),
	}

	rec, err := r.StoreAsset(payload)
	require.NoError(t, err)
	require.Equal(t, int64(len("pngbytes")), rec.Size)
	require.True(t, strings.HasSuffix(rec.FilePath, "logo1.png"))

	got, ok := r.GetAsset("logo1")
	require.True(t, ok)
	require.Equal(t, rec.FilePath, got.FilePath)
}

func TestStoreAssetTolerateDataURLPreamble(t *testing.T) {
	r := newTestRegistry(t)
	raw := base64.StdEncoding.EncodeToString([]byte("abc123"))
	payload := models.AssetPayload{
		AssetID: "a1",
		Mime:    "image/jpeg",
		Data:    "data:image/jpeg;base64," + raw,
	}
	rec, err := r.StoreAsset(payload)
	require.NoError(t, err)
	require.Equal(t, int64(len("abc123")), rec.Size)
}

func TestStoreAssetNoPayloadNoExistingFails(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.StoreAsset(models.AssetPayload{AssetID: "missing"})
	require.ErrorIs(t, err, ErrAssetNotFound)
}

func TestStoreAssetNoPayloadReturnsExisting(t *testing.T) {
	r := newTestRegistry(t)
	payload := models.AssetPayload{
		AssetID: "a1",
		Mime:    "image/png",
		Data:    base64.StdEncoding.EncodeToString([]byte("data")),
	}
	_, err := r.StoreAsset(payload)
	require.NoError(t, err)

	rec, err := r.StoreAsset(models.AssetPayload{AssetID: "a1"})
	require.NoError(t, err)
	require.Equal(t, int64(len("data")), rec.Size)
}

func TestStoreAssetTooLarge(t *testing.T) {
	r := newTestRegistry(t)
	big := make([]byte, MaxAssetSize+1)
	payload := models.AssetPayload{
		AssetID: "huge",
		Mime:    "application/octet-stream",
		Data:    base64.StdEncoding.EncodeToString(big),
	}
	_, err := r.StoreAsset(payload)
	require.ErrorIs(t, err, ErrAssetTooLarge)
}

func TestStoreAssetRegistryFull(t *testing.T) {
	r := newTestRegistry(t)
	r.total = MaxRegistrySize

	payload := models.AssetPayload{
		AssetID: "one-more",
		Mime:    "image/png",
		Data:    base64.StdEncoding.EncodeToString([]byte("x")),
	}
	_, err := r.StoreAsset(payload)
	require.ErrorIs(t, err, ErrRegistryFull)
}

func TestStoreAssetRejectsPathTraversalID(t *testing.T) {
	r := newTestRegistry(t)
	payload := models.AssetPayload{
		AssetID: "../../etc/passwd",
		Mime:    "image/png",
		Data:    base64.StdEncoding.EncodeToString([]byte("x")),
	}
	_, err := r.StoreAsset(payload)
	require.ErrorIs(t, err, ErrInvalidAssetID)
}

func TestStoreAssetRejectsAbsolutePathID(t *testing.T) {
	r := newTestRegistry(t)
	payload := models.AssetPayload{
		AssetID: "/etc/passwd",
		Mime:    "image/png",
		Data:    base64.StdEncoding.EncodeToString([]byte("x")),
	}
	_, err := r.StoreAsset(payload)
	require.ErrorIs(t, err, ErrInvalidAssetID)
}

func TestExtensionFallback(t *testing.T) {
	require.Equal(t, ".png", extFor("image/png"))
	require.Equal(t, ".bin", extFor("application/x-unknown"))
}

func TestInitializeCorruptManifestResetsEmpty(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Write a corrupt manifest directly before Initialize runs.
	corruptPath := filepath.Join(dir, manifestFile)
	require.NoError(t, os.WriteFile(corruptPath, []byte("{not json"), 0o644))

	r := New(log, dir)
	require.NoError(t, r.Initialize())
	require.Empty(t, r.GetAssetMap())
}
