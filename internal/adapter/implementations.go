package adapter

import (
	"log/slog"

	"github.com/jota2rz/graphics-core/internal/models"
)

// stubAdapter discards every frame. Used for bring-up and tests.
type stubAdapter struct {
	log *slog.Logger
}

func newStubAdapter(log *slog.Logger) *stubAdapter { return &stubAdapter{log: log} }

func (a *stubAdapter) Configure(cfg models.OutputConfig) error {
	a.log.Info("stub adapter configured", "format", cfg.Format)
	return nil
}

func (a *stubAdapter) SendFrame(frame Frame, cfg models.OutputConfig) error { return nil }

func (a *stubAdapter) Stop() error { return nil }

// videoSinkAdapter models video_sdi and video_hdmi: a single alpha-less
// output. Background is applied upstream by the manager before SendFrame is
// called; the adapter itself never composites.
type videoSinkAdapter struct {
	log  *slog.Logger
	kind string
}

func newVideoSinkAdapter(log *slog.Logger, kind string) *videoSinkAdapter {
	return &videoSinkAdapter{log: log, kind: kind}
}

func (a *videoSinkAdapter) Configure(cfg models.OutputConfig) error {
	a.log.Info("video sink adapter configured", "kind", a.kind, "target", cfg.Targets.Output1ID, "format", cfg.Format)
	return nil
}

func (a *videoSinkAdapter) SendFrame(frame Frame, cfg models.OutputConfig) error {
	return nil
}

func (a *videoSinkAdapter) Stop() error {
	a.log.Info("video sink adapter stopped", "kind", a.kind)
	return nil
}

// keyFillAdapter models key_fill_sdi and key_fill_split_sdi: two correlated
// lanes (fill + key) driven from one premultiplied RGBA frame. split=true
// selects key_fill_split_sdi's non-key/non-key port pairing instead of the
// fill/key role pairing.
type keyFillAdapter struct {
	log   *slog.Logger
	split bool
}

func newKeyFillAdapter(log *slog.Logger, split bool) *keyFillAdapter {
	return &keyFillAdapter{log: log, split: split}
}

func (a *keyFillAdapter) Configure(cfg models.OutputConfig) error {
	a.log.Info("key/fill adapter configured", "split", a.split,
		"output1", cfg.Targets.Output1ID, "output2", cfg.Targets.Output2ID, "format", cfg.Format)
	return nil
}

func (a *keyFillAdapter) SendFrame(frame Frame, cfg models.OutputConfig) error {
	return nil
}

func (a *keyFillAdapter) Stop() error {
	a.log.Info("key/fill adapter stopped", "split", a.split)
	return nil
}

// ndiAdapter models key_fill_ndi: a network NDI stream carrying alpha.
type ndiAdapter struct {
	log        *slog.Logger
	streamName string
}

func newNDIAdapter(log *slog.Logger, streamName string) *ndiAdapter {
	return &ndiAdapter{log: log, streamName: streamName}
}

func (a *ndiAdapter) Configure(cfg models.OutputConfig) error {
	a.log.Info("NDI adapter configured", "stream", a.streamName, "format", cfg.Format)
	return nil
}

func (a *ndiAdapter) SendFrame(frame Frame, cfg models.OutputConfig) error {
	return nil
}

func (a *ndiAdapter) Stop() error {
	a.log.Info("NDI adapter stopped", "stream", a.streamName)
	return nil
}
