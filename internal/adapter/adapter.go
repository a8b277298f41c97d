// Package adapter implements OutputAdapter: the pluggable sink the
// cadence loop delivers composited frames to. Each output key selects its
// own implementation; adapters never block the tick loop beyond the
// current tick.
package adapter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jota2rz/graphics-core/internal/models"
)

// Frame is one composited frame handed to an adapter's SendFrame.
type Frame struct {
	Width     int
	Height    int
	RGBA      []byte
	Timestamp time.Time
}

// Adapter is the OutputAdapter contract.
type Adapter interface {
	Configure(cfg models.OutputConfig) error
	SendFrame(frame Frame, cfg models.OutputConfig) error
	Stop() error
}

// DeviceType describes the transport a resolved output port reports, used
// to decide video_hdmi routing once at selection time.
type DeviceType string

const (
	DeviceSDI         DeviceType = "sdi"
	DeviceHDMI        DeviceType = "hdmi"
	DeviceDisplayPort DeviceType = "displayport"
	DeviceThunderbolt DeviceType = "thunderbolt"
)

// PortRole names the signal a resolved port carries, relevant only to the
// SDI key/fill outputs.
type PortRole string

const (
	PortRoleNone PortRole = "none"
	PortRoleFill PortRole = "fill"
	PortRoleKey  PortRole = "key"
)

// PortInfo is everything Select needs to know about a resolved port: its
// transport, the physical device it belongs to, and (for SDI) its role.
type PortInfo struct {
	DeviceType DeviceType
	DeviceID   string
	Role       PortRole
}

// PortResolver resolves a port id to its reported device and role. The host
// process supplies the concrete implementation (device enumeration is out
// of core scope); core only consumes the answer.
type PortResolver interface {
	ResolvePort(portID string) (PortInfo, error)
}

// Select constructs the Adapter implementation for cfg.OutputKey, enforcing
// the per-outputKey port contract from spec.md §6: video_sdi/key_fill_sdi/
// key_fill_split_sdi all require their targets to resolve to SDI ports, the
// key_fill pair must share a physical device, and key_fill_sdi additionally
// requires fill/key port roles respectively (key_fill_split_sdi requires
// both non-key). video_hdmi reuses the SDI-oriented adapter only when the
// resolved port genuinely reports SDI-compatible transport; otherwise it
// uses a dedicated display sink. These decisions are made once, here, not
// re-evaluated per frame.
func Select(log *slog.Logger, cfg models.OutputConfig, resolver PortResolver) (Adapter, error) {
	switch cfg.OutputKey {
	case models.OutputStub:
		return newStubAdapter(log), nil
	case models.OutputVideoSDI:
		info, err := resolver.ResolvePort(cfg.Targets.Output1ID)
		if err != nil {
			return nil, fmt.Errorf("adapter: resolve port %q: %w", cfg.Targets.Output1ID, err)
		}
		if info.DeviceType != DeviceSDI {
			return nil, fmt.Errorf("adapter: video_sdi requires an SDI port, %q reports %q", cfg.Targets.Output1ID, info.DeviceType)
		}
		if info.Role == PortRoleKey {
			return nil, fmt.Errorf("adapter: video_sdi port %q must not be a key port", cfg.Targets.Output1ID)
		}
		return newVideoSinkAdapter(log, "video-sdi"), nil
	case models.OutputVideoHDMI:
		info, err := resolver.ResolvePort(cfg.Targets.Output1ID)
		if err != nil {
			return nil, fmt.Errorf("adapter: resolve port %q: %w", cfg.Targets.Output1ID, err)
		}
		if info.DeviceType == DeviceSDI {
			if info.Role == PortRoleKey {
				return nil, fmt.Errorf("adapter: video_hdmi port %q must not be a key port", cfg.Targets.Output1ID)
			}
			return newVideoSinkAdapter(log, "video-hdmi-over-sdi"), nil
		}
		return newVideoSinkAdapter(log, "video-hdmi-display"), nil
	case models.OutputKeyFillSDI:
		if err := validateKeyFillPair(resolver, cfg.Targets.Output1ID, cfg.Targets.Output2ID, false); err != nil {
			return nil, err
		}
		return newKeyFillAdapter(log, false), nil
	case models.OutputKeyFillSplitSDI:
		if err := validateKeyFillPair(resolver, cfg.Targets.Output1ID, cfg.Targets.Output2ID, true); err != nil {
			return nil, err
		}
		return newKeyFillAdapter(log, true), nil
	case models.OutputKeyFillNDI:
		return newNDIAdapter(log, cfg.Targets.NDIStreamName), nil
	default:
		return nil, fmt.Errorf("adapter: unsupported output key %q", cfg.OutputKey)
	}
}

// validateKeyFillPair enforces spec.md §6's key_fill_sdi/key_fill_split_sdi
// port contract: both ports SDI, on the same physical device, with fill/key
// roles for key_fill_sdi or two non-key roles for the split variant.
func validateKeyFillPair(resolver PortResolver, fillID, keyID string, split bool) error {
	fill, err := resolver.ResolvePort(fillID)
	if err != nil {
		return fmt.Errorf("adapter: resolve port %q: %w", fillID, err)
	}
	key, err := resolver.ResolvePort(keyID)
	if err != nil {
		return fmt.Errorf("adapter: resolve port %q: %w", keyID, err)
	}
	if fill.DeviceType != DeviceSDI || key.DeviceType != DeviceSDI {
		return fmt.Errorf("adapter: key_fill_sdi requires SDI ports, got %q and %q", fill.DeviceType, key.DeviceType)
	}
	if fill.DeviceID != key.DeviceID {
		return fmt.Errorf("adapter: key_fill_sdi ports %q and %q must resolve to the same device", fillID, keyID)
	}
	if split {
		if fill.Role == PortRoleKey || key.Role == PortRoleKey {
			return fmt.Errorf("adapter: key_fill_split_sdi requires two non-key ports")
		}
		return nil
	}
	if fill.Role != PortRoleFill || key.Role != PortRoleKey {
		return fmt.Errorf("adapter: key_fill_sdi requires fill and key port roles respectively, got %q and %q", fill.Role, key.Role)
	}
	return nil
}
