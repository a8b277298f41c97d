// Package models holds the data types shared across the graphics engine
// core: layers, presets, templates, assets, and output configuration.
package models

import "time"

// Category is one of the three mutually-exclusive layer slots.
type Category string

const (
	CategoryLowerThirds Category = "lower-thirds"
	CategoryOverlays    Category = "overlays"
	CategorySlides      Category = "slides"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryLowerThirds, CategoryOverlays, CategorySlides:
		return true
	}
	return false
}

// BackgroundMode selects the solid fill used behind a layer on
// non-alpha-capable outputs.
type BackgroundMode string

const (
	BackgroundTransparent BackgroundMode = "transparent"
	BackgroundGreen       BackgroundMode = "green"
	BackgroundBlack       BackgroundMode = "black"
	BackgroundWhite       BackgroundMode = "white"
)

// ValidBackgroundMode reports whether m is a known background mode.
func ValidBackgroundMode(m BackgroundMode) bool {
	switch m {
	case BackgroundTransparent, BackgroundGreen, BackgroundBlack, BackgroundWhite:
		return true
	}
	return false
}

// Layout positions and scales a layer within the output frame.
type Layout struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}

// RgbaFrame is one premultiplied RGBA frame rendered for a layer.
type RgbaFrame struct {
	LayerID string
	Buffer  []byte
}

// TemplateBindings are derived from a schema and a value set; see
// package sanitize's DeriveBindings.
type TemplateBindings struct {
	CSSVariables   map[string]string `json:"cssVariables"`
	TextContent    map[string]string `json:"textContent"`
	TextTypes      map[string]string `json:"textTypes"`
	AnimationClass string            `json:"animationClass"`
}

// SchemaEntry describes one field of a template's value schema.
type SchemaEntry struct {
	Type        string `json:"type"` // "string" | "number" | other
	ContentType string `json:"contentType,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

// RenderHint carries the optional width/height/fps a template bundle
// demands of the active output format.
type RenderHint struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	FPS    int `json:"fps,omitempty"`
}

// Manifest describes a template bundle's top-level metadata.
type Manifest struct {
	Render RenderHint `json:"render"`
}

// TemplateBundle is the payload of a graphics.send command.
type TemplateBundle struct {
	Manifest Manifest               `json:"manifest"`
	HTML     string                 `json:"html"`
	CSS      string                 `json:"css"`
	Schema   map[string]SchemaEntry `json:"schema"`
	Defaults map[string]any         `json:"defaults"`
	Assets   []AssetPayload         `json:"assets"`
}

// AssetPayload is an inbound asset carried alongside a send command.
type AssetPayload struct {
	AssetID string `json:"assetId"`
	Name    string `json:"name"`
	Mime    string `json:"mime"`
	Data    string `json:"data"` // base64, optionally with a "base64,"/data-url preamble
}

// Asset is a stored, content-addressed media record.
type Asset struct {
	AssetID   string    `json:"assetId"`
	Name      string    `json:"name"`
	Mime      string    `json:"mime"`
	Size      int64     `json:"size"`
	FilePath  string    `json:"filePath"`
	CreatedAt time.Time `json:"createdAt"`
}

// AssetRef is the slimmed-down view pushed to the renderer.
type AssetRef struct {
	FilePath string `json:"filePath"`
	Mime     string `json:"mime"`
}

// Layer is one on-air graphic element.
type Layer struct {
	LayerID        string
	Category       Category
	Layout         Layout
	ZIndex         int32
	BackgroundMode BackgroundMode
	Values         map[string]any
	Bindings       TemplateBindings
	Schema         map[string]SchemaEntry
	Defaults       map[string]any
	Bundle         TemplateBundle
	PresetID       string // empty when not part of a preset
	LastFrame      *RgbaFrame

	insertSeq uint64 // internal: insertion order for stable Z-sort ties
}

// InsertSeq returns the internal insertion sequence used to break zIndex
// ties deterministically (ascending zIndex, then insertion order).
func (l *Layer) InsertSeq() uint64 { return l.insertSeq }

// SetInsertSeq assigns the insertion sequence; only the layer map owner
// (GraphicsManager) should call this, once, on first commit.
func (l *Layer) SetInsertSeq(seq uint64) { l.insertSeq = seq }

// OutputKey names the intended downstream pipeline.
type OutputKey string

const (
	OutputStub            OutputKey = "stub"
	OutputKeyFillSDI      OutputKey = "key_fill_sdi"
	OutputKeyFillSplitSDI OutputKey = "key_fill_split_sdi"
	OutputKeyFillNDI      OutputKey = "key_fill_ndi"
	OutputVideoSDI        OutputKey = "video_sdi"
	OutputVideoHDMI       OutputKey = "video_hdmi"
)

// AlphaCapable reports whether the output key preserves alpha end to end.
func (k OutputKey) AlphaCapable() bool {
	switch k {
	case OutputKeyFillSDI, OutputKeyFillSplitSDI, OutputKeyFillNDI:
		return true
	}
	return false
}

// Range is the video signal range.
type Range string

const (
	RangeLegal Range = "legal"
	RangeFull  Range = "full"
)

// Colorspace selects the color matrix.
type Colorspace string

const (
	ColorspaceAuto Colorspace = "auto"
	Colorspace601  Colorspace = "rec601"
	Colorspace709  Colorspace = "rec709"
	Colorspace2020 Colorspace = "rec2020"
)

// Targets names the physical/virtual outputs an OutputConfig binds to.
type Targets struct {
	Output1ID     string `json:"output1Id,omitempty"`
	Output2ID     string `json:"output2Id,omitempty"`
	NDIStreamName string `json:"ndiStreamName,omitempty"`
}

// Format is the pixel geometry and cadence of the active output.
type Format struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

// OutputConfig is the persisted, versioned output configuration.
type OutputConfig struct {
	Version    int        `json:"version"`
	OutputKey  OutputKey  `json:"outputKey"`
	Targets    Targets    `json:"targets"`
	Format     Format     `json:"format"`
	Range      Range      `json:"range"`
	Colorspace Colorspace `json:"colorspace"`
}

// FrameBusConfig describes the shared-memory transport negotiated between
// the renderer and the output helper. The core always enforces RGBA8.
type FrameBusConfig struct {
	Name        string `json:"name"`
	SlotCount   int    `json:"slotCount"`
	PixelFormat string `json:"pixelFormat"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
	Size        int64  `json:"size"`
}

// DeriveFrameBusConfig builds the deterministic FrameBus descriptor for a
// given output config. slotCount is fixed at 3 (triple buffering), matching
// the cadence loop's single-flight/last-writer-wins frame delivery model.
func DeriveFrameBusConfig(name string, cfg OutputConfig) FrameBusConfig {
	const slotCount = 3
	size := int64(cfg.Format.Width) * int64(cfg.Format.Height) * 4 * int64(slotCount)
	return FrameBusConfig{
		Name:        name,
		SlotCount:   slotCount,
		PixelFormat: "RGBA8",
		Width:       cfg.Format.Width,
		Height:      cfg.Format.Height,
		FPS:         cfg.Format.FPS,
		Size:        size,
	}
}

// DeckState, VideoFile, ConfigEntry, TransitionEffect and OverlayElement
// were teacher-specific VDJ/overlay types with no counterpart in this
// domain; they are not carried forward (see DESIGN.md).
