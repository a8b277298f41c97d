package graphics

import "github.com/jota2rz/graphics-core/internal/models"

// ConfigureOutputsPayload is the graphics.configureOutputs command.
type ConfigureOutputsPayload struct {
	Version    int
	OutputKey  models.OutputKey
	Targets    models.Targets
	Format     models.Format
	Range      models.Range
	Colorspace models.Colorspace
}

// SendLayerPayload is the graphics.send command: the full bundle plus the
// layer placement fields from §3.
type SendLayerPayload struct {
	LayerID        string
	Category       models.Category
	Layout         models.Layout
	ZIndex         int32
	BackgroundMode models.BackgroundMode
	Values         map[string]any
	PresetID       string
	DurationMs     uint32
	Bundle         models.TemplateBundle
}

// UpdateValuesPayload is the graphics.updateValues command.
type UpdateValuesPayload struct {
	LayerID string
	Values  map[string]any
}

// UpdateLayoutPayload is the graphics.updateLayout command.
type UpdateLayoutPayload struct {
	LayerID string
	Layout  models.Layout
	ZIndex  *int32
}

// RemoveLayerPayload is the graphics.remove command.
type RemoveLayerPayload struct {
	LayerID string
}

// RemovePresetPayload is the graphics.removePreset command.
type RemovePresetPayload struct {
	PresetID   string
	ClearQueue bool
}

// LayerView is the read-only projection of a layer returned by GetStatus.
type LayerView struct {
	LayerID        string
	Category       models.Category
	Layout         models.Layout
	ZIndex         int32
	BackgroundMode models.BackgroundMode
	PresetID       string
}

// ActivePresetView is the read-only projection of the active preset slot.
type ActivePresetView struct {
	PresetID   string
	DurationMs uint32
	LayerIDs   []string
}

// Status is the graphics.getStatus / graphics.list response.
type Status struct {
	OutputConfig  *models.OutputConfig
	Layers        []LayerView
	ActivePreset  *ActivePresetView
	ActivePresets []ActivePresetView
}
