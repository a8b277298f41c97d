package graphics

import (
	"fmt"

	"github.com/jota2rz/graphics-core/internal/models"
	"github.com/jota2rz/graphics-core/internal/sanitize"
)

const maxActiveLayers = 3

// SendLayer runs the twelve-step send pipeline from spec.md §4.10.
func (m *Manager) SendLayer(p SendLayerPayload) error {
	format, outputKey, configured := m.activeFormat()

	// 1. Reject if outputs are not configured.
	if !configured {
		return ErrNotConfigured
	}
	// 2. Reject if durationMs is supplied without presetId.
	if p.DurationMs > 0 && p.PresetID == "" {
		return fmt.Errorf("%w: durationMs requires presetId", ErrInvalidPayload)
	}
	if !models.ValidCategory(p.Category) {
		return fmt.Errorf("%w: invalid category %q", ErrInvalidPayload, p.Category)
	}
	if p.LayerID == "" {
		return fmt.Errorf("%w: layerId is required", ErrInvalidPayload)
	}

	// 3. Bundle format hints must strictly match the active format.
	hint := p.Bundle.Manifest.Render
	if hint.Width != 0 && hint.Width != format.Width ||
		hint.Height != 0 && hint.Height != format.Height ||
		hint.FPS != 0 && hint.FPS != format.FPS {
		return ErrFormatMismatch
	}

	// 4. Sanitize CSS; validate HTML+sanitized CSS; extract asset IDs.
	sanitizedCSS := sanitize.SanitizeCSS(p.Bundle.CSS)
	assetIDs, err := sanitize.ValidateTemplate(p.Bundle.HTML, sanitizedCSS)
	if err != nil {
		return err
	}
	p.Bundle.CSS = sanitizedCSS

	// 5. Store every asset in the payload; fail if any referenced id is
	// unresolvable afterwards.
	for _, payload := range p.Bundle.Assets {
		rec, err := m.assets.StoreAsset(payload)
		if err != nil {
			return err
		}
		if payload.Data != "" {
			m.metrics.AssetBytesStored.Add(float64(rec.Size))
		}
	}
	for id := range assetIDs {
		if _, ok := m.assets.GetAsset(id); !ok {
			return fmt.Errorf("%w: referenced asset %q not resolvable", ErrInvalidPayload, id)
		}
	}

	// 6. Push the resolved asset map to the renderer.
	if err := m.renderer.SetAssets(m.assets.GetAssetMap()); err != nil {
		return err
	}

	// 7. Enforce background-mode rule.
	bgMode := p.BackgroundMode
	if !models.ValidBackgroundMode(bgMode) {
		bgMode = models.BackgroundTransparent
	}
	if outputKey.AlphaCapable() {
		bgMode = models.BackgroundTransparent
	}

	// 8. Compute initial values and derive bindings.
	bindings := sanitize.DeriveBindings(p.Bundle.Schema, p.Bundle.Defaults, p.Values)

	// 9. Ask PresetService to handle preset compatibility.
	accept := m.presets.Accept(p.PresetID, p.DurationMs, p.LayerID)
	m.evictLayers(accept.RemovedLayerIDs)

	// 10. Validate layer limits.
	m.mu.Lock()
	existing, hadExisting := m.layers[p.LayerID]
	occupant, categoryTaken := m.categoryIndex[p.Category]
	if categoryTaken && occupant != p.LayerID {
		m.mu.Unlock()
		return fmt.Errorf("%w: category %q already occupied by %q", ErrLayerLimit, p.Category, occupant)
	}
	if !hadExisting && len(m.layers) >= maxActiveLayers {
		m.mu.Unlock()
		return fmt.Errorf("%w: at most %d active layers", ErrLayerLimit, maxActiveLayers)
	}
	m.mu.Unlock()

	// 11. Commit the new/updated layer, preserving any prior lastFrame, then
	// ask the renderer to render it; on renderer failure, revert the commit.
	m.mu.Lock()
	layer := &models.Layer{
		LayerID:        p.LayerID,
		Category:       p.Category,
		Layout:         p.Layout,
		ZIndex:         p.ZIndex,
		BackgroundMode: bgMode,
		Values:         p.Values,
		Bindings:       bindings,
		Schema:         p.Bundle.Schema,
		Defaults:       p.Bundle.Defaults,
		Bundle:         p.Bundle,
		PresetID:       p.PresetID,
	}
	if existing != nil {
		layer.LastFrame = existing.LastFrame
		layer.SetInsertSeq(existing.InsertSeq())
	} else {
		m.nextSeq++
		layer.SetInsertSeq(m.nextSeq)
	}
	m.layers[p.LayerID] = layer
	m.categoryIndex[p.Category] = p.LayerID
	m.mu.Unlock()

	if err := m.renderer.RenderLayer(p.LayerID, p.Bundle.HTML, p.Bundle.CSS, p.Values, bindings,
		p.Layout, bgMode, format.Width, format.Height, format.FPS, p.ZIndex); err != nil {
		m.mu.Lock()
		delete(m.layers, p.LayerID)
		if hadExisting {
			m.layers[p.LayerID] = existing
		}
		if !categoryTaken {
			delete(m.categoryIndex, p.Category)
		}
		m.mu.Unlock()
		return err
	}

	// 12. Sync post-render preset state happens lazily on the next tick via
	// ArmIfTicked; nothing further to do here for an Unarmed/merged preset.
	m.publishStatus("send_layer")
	return nil
}

// evictLayers removes layers (e.g. from a replaced preset) from the layer
// map and category index, and tells the renderer to stop producing frames
// for them.
func (m *Manager) evictLayers(layerIDs []string) {
	if len(layerIDs) == 0 {
		return
	}
	m.mu.Lock()
	for _, id := range layerIDs {
		if l, ok := m.layers[id]; ok {
			if m.categoryIndex[l.Category] == id {
				delete(m.categoryIndex, l.Category)
			}
			delete(m.layers, id)
		}
	}
	m.mu.Unlock()
	for _, id := range layerIDs {
		_ = m.renderer.RemoveLayer(id)
	}
}

// UpdateValues implements graphics.updateValues.
func (m *Manager) UpdateValues(p UpdateValuesPayload) error {
	m.mu.Lock()
	layer, ok := m.layers[p.LayerID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown layerId %q", ErrInvalidPayload, p.LayerID)
	}

	bindings := sanitize.DeriveBindings(layer.Schema, layer.Defaults, p.Values)
	if err := m.renderer.UpdateValues(p.LayerID, p.Values, bindings); err != nil {
		return err
	}

	m.mu.Lock()
	layer.Values = p.Values
	layer.Bindings = bindings
	m.mu.Unlock()
	return nil
}

// UpdateLayout implements graphics.updateLayout.
func (m *Manager) UpdateLayout(p UpdateLayoutPayload) error {
	m.mu.Lock()
	layer, ok := m.layers[p.LayerID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown layerId %q", ErrInvalidPayload, p.LayerID)
	}

	if err := m.renderer.UpdateLayout(p.LayerID, p.Layout); err != nil {
		return err
	}

	m.mu.Lock()
	layer.Layout = p.Layout
	if p.ZIndex != nil {
		layer.ZIndex = *p.ZIndex
	}
	m.mu.Unlock()
	return nil
}

// RemoveLayer implements graphics.remove.
func (m *Manager) RemoveLayer(p RemoveLayerPayload) error {
	m.mu.Lock()
	layer, ok := m.layers[p.LayerID]
	if ok {
		if m.categoryIndex[layer.Category] == p.LayerID {
			delete(m.categoryIndex, layer.Category)
		}
		delete(m.layers, p.LayerID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown layerId %q", ErrInvalidPayload, p.LayerID)
	}

	m.presets.RemoveLayer(p.LayerID)
	_ = m.renderer.RemoveLayer(p.LayerID)
	m.publishStatus("remove_layer")
	return nil
}

// RemovePreset implements graphics.removePreset.
func (m *Manager) RemovePreset(p RemovePresetPayload) error {
	ids := m.presets.Remove(p.PresetID)
	m.evictLayers(ids)
	m.publishStatus("remove_preset")
	return nil
}

// ClearAll removes every layer, clears the preset slot, and publishes the
// clear_all_layers status event.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.layers))
	for id := range m.layers {
		ids = append(ids, id)
	}
	m.layers = make(map[string]*models.Layer)
	m.categoryIndex = make(map[models.Category]string)
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.renderer.RemoveLayer(id)
	}
	m.presets.ClearAll()
	m.publishStatus("clear_all_layers")
}

// onPresetExpire is invoked by preset.Service when an armed preset's timer
// fires.
func (m *Manager) onPresetExpire(presetID string) {
	m.mu.Lock()
	var ids []string
	for id, l := range m.layers {
		if l.PresetID == presetID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if l, ok := m.layers[id]; ok {
			if m.categoryIndex[l.Category] == id {
				delete(m.categoryIndex, l.Category)
			}
			delete(m.layers, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.renderer.RemoveLayer(id)
	}
	m.publishStatus("preset_removed")
}

// GetStatus implements graphics.list/getStatus.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	var cfg *models.OutputConfig
	if m.configured {
		c := m.outputConfig
		cfg = &c
	}
	layers := make([]LayerView, 0, len(m.layers))
	for _, l := range m.layers {
		layers = append(layers, LayerView{
			LayerID: l.LayerID, Category: l.Category, Layout: l.Layout,
			ZIndex: l.ZIndex, BackgroundMode: l.BackgroundMode, PresetID: l.PresetID,
		})
	}
	m.mu.Unlock()

	status := Status{OutputConfig: cfg, Layers: layers}
	if snap, ok := m.presets.Current(); ok {
		v := ActivePresetView{PresetID: snap.PresetID, DurationMs: snap.DurationMs, LayerIDs: snap.LayerIDs}
		status.ActivePreset = &v
		status.ActivePresets = []ActivePresetView{v}
	}
	return status
}
