// Package preset implements PresetService: the lifecycle of the single
// active preset slot, its timed expiry, and the replace/remove policy
// applied when new layers arrive.
package preset

import (
	"log/slog"
	"sync"
	"time"
)

// State is the ActivePreset lifecycle state.
type State string

const (
	StateNone    State = "none"
	StateUnarmed State = "unarmed"
	StatePending State = "pending"
	StateArmed   State = "armed"
)

// Snapshot is an immutable, point-in-time view of the active preset,
// suitable for publishing to status observers.
type Snapshot struct {
	PresetID     string
	State        State
	DurationMs   uint32
	LayerIDs     []string
	PendingStart bool
	StartedAt    time.Time
	ExpiresAt    time.Time
}

// active is the service's internal mutable record.
type active struct {
	presetID     string
	durationMs   uint32
	layerIDs     map[string]struct{}
	state        State
	pendingStart bool
	startedAt    time.Time
	expiresAt    time.Time
	timer        *time.Timer
}

// ExpireFunc is called when a timed preset's timer fires; the caller
// (GraphicsManager) removes the preset's layers and re-renders.
type ExpireFunc func(presetID string)

// Service is the PresetService.
type Service struct {
	log    *slog.Logger
	onExpire ExpireFunc

	mu  sync.Mutex
	cur *active
}

// New constructs a Service. onExpire is invoked, without holding the
// service's lock, whenever an armed preset's timer fires.
func New(log *slog.Logger, onExpire ExpireFunc) *Service {
	return &Service{log: log, onExpire: onExpire}
}

// Current returns a snapshot of the active preset slot, or ok=false if it
// is empty.
func (s *Service) Current() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() (Snapshot, bool) {
	if s.cur == nil {
		return Snapshot{}, false
	}
	ids := make([]string, 0, len(s.cur.layerIDs))
	for id := range s.cur.layerIDs {
		ids = append(ids, id)
	}
	return Snapshot{
		PresetID:     s.cur.presetID,
		State:        s.cur.state,
		DurationMs:   s.cur.durationMs,
		LayerIDs:     ids,
		PendingStart: s.cur.pendingStart,
		StartedAt:    s.cur.startedAt,
		ExpiresAt:    s.cur.expiresAt,
	}, true
}

// AcceptResult tells the caller what, if anything, it must do to the layer
// map before committing a new layer.
type AcceptResult struct {
	// RemovedPresetID is set when a prior preset's layers must be evicted
	// (replace policy) before the new layer is committed.
	RemovedPresetID string
	RemovedLayerIDs []string
}

// Accept applies the send-arrival policy from spec §4.8 for an incoming
// layer belonging (or not) to presetID. durationMs is the requested preset
// duration; zero means "no duration" (untimed or non-preset).
func (s *Service) Accept(presetID string, durationMs uint32, layerID string) AcceptResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if presetID == "" {
		// Non-preset layer: if a current preset exists, remove it first.
		return s.replaceLocked("")
	}

	if s.cur != nil && s.cur.presetID == presetID {
		if durationMs == s.cur.durationMs {
			// Merge: same preset, same duration, just add the layer.
			s.cur.layerIDs[layerID] = struct{}{}
			return AcceptResult{}
		}
		// Duration changed to a positive value: cancel timer, re-enter Pending.
		s.cancelTimerLocked()
		s.cur.durationMs = durationMs
		s.cur.layerIDs[layerID] = struct{}{}
		if durationMs > 0 {
			s.cur.state = StatePending
			s.cur.pendingStart = true
		} else {
			s.cur.state = StateUnarmed
			s.cur.pendingStart = false
		}
		return AcceptResult{}
	}

	// Different (or no) current preset: replace policy evicts it first.
	result := s.replaceLocked(presetID)

	s.cur = &active{
		presetID:   presetID,
		durationMs: durationMs,
		layerIDs:   map[string]struct{}{layerID: {}},
	}
	if durationMs > 0 {
		s.cur.state = StatePending
		s.cur.pendingStart = true
	} else {
		s.cur.state = StateUnarmed
	}
	return result
}

// replaceLocked evicts the current preset, if any, recording it as removed.
// newPresetID is the incoming preset id (empty for a non-preset layer) and
// is only used to decide whether eviction applies to a *different* preset.
func (s *Service) replaceLocked(newPresetID string) AcceptResult {
	if s.cur == nil || s.cur.presetID == newPresetID {
		return AcceptResult{}
	}
	s.cancelTimerLocked()
	removed := AcceptResult{RemovedPresetID: s.cur.presetID, RemovedLayerIDs: idsOf(s.cur.layerIDs)}
	s.cur = nil
	return removed
}

func idsOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

// ArmIfTicked is called by the cadence loop with the set of layer ids that
// contributed a frame to the current tick. If the active preset is Pending
// and any of its layers are in that set, it transitions to Armed and starts
// the expiry timer.
func (s *Service) ArmIfTicked(tickedLayerIDs map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || s.cur.state != StatePending {
		return
	}
	contributed := false
	for id := range s.cur.layerIDs {
		if _, ok := tickedLayerIDs[id]; ok {
			contributed = true
			break
		}
	}
	if !contributed {
		return
	}

	s.cur.pendingStart = false
	s.cur.state = StateArmed
	s.cur.startedAt = time.Now()
	s.cur.expiresAt = s.cur.startedAt.Add(time.Duration(s.cur.durationMs) * time.Millisecond)

	presetID := s.cur.presetID
	s.cur.timer = time.AfterFunc(time.Duration(s.cur.durationMs)*time.Millisecond, func() {
		s.expire(presetID)
	})
}

// expire fires when an armed preset's timer elapses.
func (s *Service) expire(presetID string) {
	s.mu.Lock()
	isCurrent := s.cur != nil && s.cur.presetID == presetID
	if isCurrent {
		s.cur = nil
	}
	s.mu.Unlock()

	if isCurrent && s.onExpire != nil {
		s.onExpire(presetID)
	}
}

// Remove explicitly clears the active preset if it matches presetID,
// returning the layer ids that must be evicted.
func (s *Service) Remove(presetID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.presetID != presetID {
		return nil
	}
	s.cancelTimerLocked()
	ids := idsOf(s.cur.layerIDs)
	s.cur = nil
	return ids
}

// RemoveLayer drops layerID from the active preset, if present, clearing
// the slot entirely once its last layer is gone.
func (s *Service) RemoveLayer(layerID string) (clearedPresetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return ""
	}
	if _, ok := s.cur.layerIDs[layerID]; !ok {
		return ""
	}
	delete(s.cur.layerIDs, layerID)
	if len(s.cur.layerIDs) == 0 {
		presetID := s.cur.presetID
		s.cancelTimerLocked()
		s.cur = nil
		return presetID
	}
	return ""
}

// ClearAll clears the preset slot unconditionally (used by the manager's
// clearAll operation).
func (s *Service) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.cur = nil
}

func (s *Service) cancelTimerLocked() {
	if s.cur != nil && s.cur.timer != nil {
		s.cur.timer.Stop()
		s.cur.timer = nil
	}
}
