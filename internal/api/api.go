// Package api wires the GraphicsManager command surface onto a local
// net/http.ServeMux: the thin HTTP router the core package itself never
// imports.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jota2rz/graphics-core/internal/asset"
	"github.com/jota2rz/graphics-core/internal/graphics"
	"github.com/jota2rz/graphics-core/internal/renderer"
	"github.com/jota2rz/graphics-core/internal/sanitize"
	"github.com/jota2rz/graphics-core/internal/statusbus"
	"github.com/jota2rz/graphics-core/internal/transition"
)

const maxBodySize = 16 * 1024 * 1024

// Handlers holds the dependencies behind every command route.
type Handlers struct {
	log     *slog.Logger
	manager *graphics.Manager
	bus     *statusbus.Bus
}

// New constructs the handler set.
func New(log *slog.Logger, manager *graphics.Manager, bus *statusbus.Bus) *Handlers {
	return &Handlers{log: log, manager: manager, bus: bus}
}

// Register mounts every command route onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /graphics/configure-outputs", h.handleConfigureOutputs)
	mux.HandleFunc("POST /graphics/send", h.handleSend)
	mux.HandleFunc("POST /graphics/update-values", h.handleUpdateValues)
	mux.HandleFunc("POST /graphics/update-layout", h.handleUpdateLayout)
	mux.HandleFunc("POST /graphics/remove", h.handleRemove)
	mux.HandleFunc("POST /graphics/remove-preset", h.handleRemovePreset)
	mux.HandleFunc("POST /graphics/clear-all", h.handleClearAll)
	mux.HandleFunc("GET /graphics/status", h.handleStatus)
	mux.HandleFunc("GET /graphics/events", h.handleEvents)
}

func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, graphics.ErrNotConfigured):
		status = http.StatusConflict
	case errors.Is(err, graphics.ErrInvalidPayload),
		errors.Is(err, graphics.ErrFormatMismatch),
		errors.Is(err, sanitize.ErrTemplateRejected),
		errors.Is(err, asset.ErrInvalidAssetID):
		status = http.StatusBadRequest
	case errors.Is(err, graphics.ErrLayerLimit),
		errors.Is(err, asset.ErrRegistryFull):
		status = http.StatusConflict
	case errors.Is(err, asset.ErrAssetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, asset.ErrAssetTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, renderer.ErrRendererUnavailable):
		status = http.StatusServiceUnavailable
	}
	var terr *transition.Error
	if errors.As(err, &terr) {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (h *Handlers) handleConfigureOutputs(w http.ResponseWriter, r *http.Request) {
	var p graphics.ConfigureOutputsPayload
	if err := decodeStrict(r, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.manager.ConfigureOutputs(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleSend(w http.ResponseWriter, r *http.Request) {
	var p graphics.SendLayerPayload
	if err := decodeStrict(r, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.manager.SendLayer(p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleUpdateValues(w http.ResponseWriter, r *http.Request) {
	var p graphics.UpdateValuesPayload
	if err := decodeStrict(r, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.manager.UpdateValues(p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleUpdateLayout(w http.ResponseWriter, r *http.Request) {
	var p graphics.UpdateLayoutPayload
	if err := decodeStrict(r, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.manager.UpdateLayout(p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleRemove(w http.ResponseWriter, r *http.Request) {
	var p graphics.RemoveLayerPayload
	if err := decodeStrict(r, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.manager.RemoveLayer(p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleRemovePreset(w http.ResponseWriter, r *http.Request) {
	var p graphics.RemovePresetPayload
	if err := decodeStrict(r, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.manager.RemovePreset(p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleClearAll(w http.ResponseWriter, r *http.Request) {
	h.manager.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.manager.GetStatus())
}

// handleEvents streams graphics_status/graphics_error events as
// server-sent events, mirroring the teacher's HandleSSE replay-then-stream
// loop (minus the per-deck replay cache, since statusbus has no history).
func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	obs := &statusbus.Observer{ID: fmt.Sprintf("%d", time.Now().UnixNano()), Events: make(chan statusbus.Event, 64)}
	h.bus.Register(obs)
	defer h.bus.Unregister(obs)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-obs.Events:
			if !ok {
				return
			}
			if ev.Status != nil {
				data, _ := json.Marshal(ev.Status)
				fmt.Fprintf(w, "event: graphics_status\ndata: %s\n\n", data)
			}
			if ev.Err != nil {
				data, _ := json.Marshal(ev.Err)
				fmt.Fprintf(w, "event: graphics_error\ndata: %s\n\n", data)
			}
			flusher.Flush()
		}
	}
}
