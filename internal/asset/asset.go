// Package asset implements AssetRegistry: a content-addressed store of
// media referenced by templates, backed by a JSON manifest and a directory
// of binaries, atomically rewritten after every mutation.
package asset

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio/v2"

	"github.com/jota2rz/graphics-core/internal/models"
)

const (
	// MaxAssetSize is the per-asset cap enforced by storeAsset.
	MaxAssetSize int64 = 10 * 1024 * 1024
	// MaxRegistrySize is the total cap across all stored assets.
	MaxRegistrySize int64 = 100 * 1024 * 1024

	manifestFile = "assets.json"
)

var (
	// ErrAssetNotFound is returned by storeAsset when called with no payload
	// and no existing record for the id.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrAssetTooLarge is returned when a decoded payload exceeds MaxAssetSize.
	ErrAssetTooLarge = errors.New("asset too large")
	// ErrRegistryFull is returned when storing a payload would push the
	// registry total above MaxRegistrySize.
	ErrRegistryFull = errors.New("asset registry full")
	// ErrInvalidAssetID is returned when an asset id doesn't match
	// assetIDPattern, most importantly rejecting path-traversal segments
	// before the id is used to build a filesystem path.
	ErrInvalidAssetID = errors.New("invalid asset id")
)

// assetIDPattern is the asset id grammar from spec.md §3: letters, digits,
// underscore, and hyphen only. Anchored so partial matches don't pass.
var assetIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// mimeExtensions maps known MIME types to a deterministic file extension;
// anything else falls back to ".bin".
var mimeExtensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"font/woff2":      ".woff2",
	"font/woff":       ".woff",
	"font/ttf":        ".ttf",
	"application/font-woff2": ".woff2",
	"video/mp4":        ".mp4",
	"audio/mpeg":       ".mp3",
}

func extFor(mime string) string {
	if ext, ok := mimeExtensions[strings.ToLower(mime)]; ok {
		return ext
	}
	return ".bin"
}

// manifestEntry is the on-disk representation of one asset record.
type manifestEntry struct {
	Name      string    `json:"name"`
	Mime      string    `json:"mime"`
	Size      int64     `json:"size"`
	FilePath  string    `json:"filePath"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry is the AssetRegistry. It is safe for concurrent reads; callers
// (the graphics manager) are responsible for serializing storeAsset calls
// for the same id, as the registry assumes single-writer semantics.
type Registry struct {
	log *slog.Logger
	dir string

	mu      sync.RWMutex
	entries map[string]manifestEntry
	total   int64
}

// New constructs a Registry rooted at dir. Call Initialize before use.
func New(log *slog.Logger, dir string) *Registry {
	return &Registry{
		log:     log,
		dir:     dir,
		entries: make(map[string]manifestEntry),
	}
}

func (r *Registry) manifestPath() string {
	return filepath.Join(r.dir, manifestFile)
}

// Initialize creates the asset directory and loads the manifest. A missing
// or corrupt manifest resets in-memory state to empty without propagating
// the error — the registry starts fresh rather than refusing to boot.
func (r *Registry) Initialize() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("asset: create directory: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.manifestPath())
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("asset manifest unreadable, starting empty", "error", err)
		}
		r.entries = make(map[string]manifestEntry)
		r.total = 0
		return nil
	}

	var entries map[string]manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.log.Warn("asset manifest corrupt, starting empty", "error", err)
		r.entries = make(map[string]manifestEntry)
		r.total = 0
		return nil
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	r.entries = entries
	r.total = total
	return nil
}

// GetAsset returns the stored record for id, if any.
func (r *Registry) GetAsset(id string) (models.Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return models.Asset{}, false
	}
	return models.Asset{
		AssetID:   id,
		Name:      e.Name,
		Mime:      e.Mime,
		Size:      e.Size,
		FilePath:  e.FilePath,
		CreatedAt: e.CreatedAt,
	}, true
}

// GetAssetMap returns the slimmed {filePath, mime} view for every stored
// asset, as pushed to the renderer.
func (r *Registry) GetAssetMap() map[string]models.AssetRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.AssetRef, len(r.entries))
	for id, e := range r.entries {
		out[id] = models.AssetRef{FilePath: e.FilePath, Mime: e.Mime}
	}
	return out
}

// StoreAsset decodes and persists payload's data, enforcing the per-asset
// and registry-total caps, then rewrites the manifest atomically. A payload
// with an empty Data field and no existing record for the id fails with
// ErrAssetNotFound.
func (r *Registry) StoreAsset(payload models.AssetPayload) (models.Asset, error) {
	if !assetIDPattern.MatchString(payload.AssetID) {
		return models.Asset{}, fmt.Errorf("asset %q: %w", payload.AssetID, ErrInvalidAssetID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, hadExisting := r.entries[payload.AssetID]

	if payload.Data == "" {
		if !hadExisting {
			return models.Asset{}, fmt.Errorf("asset %q: %w", payload.AssetID, ErrAssetNotFound)
		}
		return models.Asset{
			AssetID:   payload.AssetID,
			Name:      existing.Name,
			Mime:      existing.Mime,
			Size:      existing.Size,
			FilePath:  existing.FilePath,
			CreatedAt: existing.CreatedAt,
		}, nil
	}

	raw, err := decodeBase64(payload.Data)
	if err != nil {
		return models.Asset{}, fmt.Errorf("asset %q: decode payload: %w", payload.AssetID, err)
	}

	size := int64(len(raw))
	if size > MaxAssetSize {
		return models.Asset{}, fmt.Errorf("asset %q: %d bytes exceeds %s: %w",
			payload.AssetID, size, humanize.Bytes(uint64(MaxAssetSize)), ErrAssetTooLarge)
	}

	newTotal := r.total - existing.Size + size
	if newTotal > MaxRegistrySize {
		return models.Asset{}, fmt.Errorf("asset %q: registry total would reach %s, cap %s: %w",
			payload.AssetID, humanize.Bytes(uint64(newTotal)), humanize.Bytes(uint64(MaxRegistrySize)), ErrRegistryFull)
	}

	ext := extFor(payload.Mime)
	filePath := filepath.Join(r.dir, payload.AssetID+ext)
	if err := os.WriteFile(filePath, raw, 0o644); err != nil {
		return models.Asset{}, fmt.Errorf("asset %q: write file: %w", payload.AssetID, err)
	}

	entry := manifestEntry{
		Name:      payload.Name,
		Mime:      payload.Mime,
		Size:      size,
		FilePath:  filePath,
		CreatedAt: time.Now(),
	}
	r.entries[payload.AssetID] = entry
	r.total = newTotal

	if err := r.persistManifest(); err != nil {
		return models.Asset{}, fmt.Errorf("asset %q: persist manifest: %w", payload.AssetID, err)
	}

	r.log.Info("asset stored", "assetId", payload.AssetID, "size", humanize.Bytes(uint64(size)),
		"registryTotal", humanize.Bytes(uint64(r.total)))

	return models.Asset{
		AssetID:   payload.AssetID,
		Name:      entry.Name,
		Mime:      entry.Mime,
		Size:      entry.Size,
		FilePath:  entry.FilePath,
		CreatedAt: entry.CreatedAt,
	}, nil
}

// persistManifest rewrites the manifest atomically: write to a temp file in
// the same directory, fsync, then rename over the target. Caller must hold
// r.mu.
func (r *Registry) persistManifest() error {
	data, err := json.Marshal(r.entries)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	pending, err := renameio.NewPendingFile(r.manifestPath())
	if err != nil {
		return fmt.Errorf("open pending manifest: %w", err)
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write pending manifest: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}

// decodeBase64 tolerates a data-URL style "...base64," preamble before the
// payload.
func decodeBase64(data string) ([]byte, error) {
	if idx := strings.Index(data, "base64,"); idx >= 0 {
		data = data[idx+len("base64,"):]
	}
	return base64.StdEncoding.DecodeString(data)
}
