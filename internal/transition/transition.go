// Package transition implements OutputTransitionService: serialized,
// staged output reconfiguration with rollback on failure.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jota2rz/graphics-core/internal/adapter"
	"github.com/jota2rz/graphics-core/internal/models"
	"github.com/jota2rz/graphics-core/internal/outputconfig"
)

// Stage names a transition step, used in diagnostics and in Error.Stage.
type Stage string

const (
	StageNextAdapterSelect  Stage = "next_adapter_select"
	StageRendererConfigure  Stage = "renderer_configure"
	StagePreviousAdapterStop Stage = "previous_adapter_stop"
	StageFrameBusEnv        Stage = "frame_bus_env"
	StageNextAdapterConfigure Stage = "next_adapter_configure"
	StagePersist            Stage = "persist"
)

// Error is GraphicsOutputTransitionError: the stage that failed, the
// triggering message, and any rollback diagnostics gathered while
// unwinding.
type Error struct {
	Stage        Stage
	Message      string
	RollbackDiag []string
}

func (e *Error) Error() string {
	if len(e.RollbackDiag) == 0 {
		return fmt.Sprintf("output transition failed at stage %s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("output transition failed at stage %s: %s (rollback: %v)", e.Stage, e.Message, e.RollbackDiag)
}

// RendererSession is the subset of RendererClient the transition service
// needs to reconfigure an in-flight session.
type RendererSession interface {
	ConfigureSession(width, height, fps int, bus models.FrameBusConfig) error
}

// Runtime is the observable output runtime the service swaps atomically on
// success.
type Runtime struct {
	OutputConfig   models.OutputConfig
	FrameBusConfig models.FrameBusConfig
	OutputAdapter  adapter.Adapter
}

// FrameBusEnv applies or clears the environment variables (or other
// host-level mechanism) a downstream output helper reads the FrameBus
// descriptor from. The host supplies the concrete implementation.
type FrameBusEnv interface {
	Apply(cfg models.FrameBusConfig) error
	Clear() error
}

// Service is the OutputTransitionService.
type Service struct {
	log      *slog.Logger
	renderer RendererSession
	resolver adapter.PortResolver
	store    *outputconfig.Store
	env      FrameBusEnv

	gate *semaphore.Weighted

	mu      sync.Mutex
	current *Runtime
}

// New constructs a Service. store persists the accepted config; env applies
// the FrameBus descriptor for the downstream output helper.
func New(log *slog.Logger, renderer RendererSession, resolver adapter.PortResolver, store *outputconfig.Store, env FrameBusEnv) *Service {
	return &Service{
		log:      log,
		renderer: renderer,
		resolver: resolver,
		store:    store,
		env:      env,
		gate:     semaphore.NewWeighted(1),
	}
}

// Current returns the active runtime, if any.
func (s *Service) Current() (Runtime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Runtime{}, false
	}
	return *s.current, true
}

// Apply runs the staged transition to cfg. Only one transition runs
// globally at any time; concurrent callers block on the gate until the
// prior transition completes.
func (s *Service) Apply(ctx context.Context, cfg models.OutputConfig, busName string) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("transition: acquire serialization gate: %w", err)
	}
	defer s.gate.Release(1)

	s.mu.Lock()
	previous := s.current
	s.mu.Unlock()

	bus := models.DeriveFrameBusConfig(busName, cfg)

	nextAdapter, err := adapter.Select(s.log, cfg, s.resolver)
	if err != nil {
		return s.fail(StageNextAdapterSelect, err)
	}

	if err := s.renderer.ConfigureSession(cfg.Format.Width, cfg.Format.Height, cfg.Format.FPS, bus); err != nil {
		return s.failWithRollback(StageRendererConfigure, err, previous, nil)
	}

	if previous != nil && previous.OutputAdapter != nil {
		if err := previous.OutputAdapter.Stop(); err != nil {
			return s.failWithRollback(StagePreviousAdapterStop, err, previous, nil)
		}
	}

	if s.env != nil {
		if err := s.env.Apply(bus); err != nil {
			return s.failWithRollback(StageFrameBusEnv, err, previous, nil)
		}
	}

	if err := nextAdapter.Configure(cfg); err != nil {
		return s.failWithRollback(StageNextAdapterConfigure, err, previous, nextAdapter)
	}

	if err := s.store.SetConfig(cfg); err != nil {
		return s.failWithRollback(StagePersist, err, previous, nextAdapter)
	}

	s.mu.Lock()
	s.current = &Runtime{OutputConfig: cfg, FrameBusConfig: bus, OutputAdapter: nextAdapter}
	s.mu.Unlock()
	return nil
}

// fail is used for failures before anything has been mutated — no rollback
// is needed.
func (s *Service) fail(stage Stage, cause error) error {
	s.log.Error("output transition failed, nothing to roll back", "stage", stage, "error", cause)
	return &Error{Stage: stage, Message: cause.Error()}
}

// failWithRollback runs the staged rollback described in spec §4.9 and
// reports the outcome. startedAdapter, if non-nil, is the new adapter that
// was already constructed (and possibly configured) before this stage
// failed, and is stopped as the first rollback action.
func (s *Service) failWithRollback(stage Stage, cause error, previous *Runtime, startedAdapter adapter.Adapter) error {
	s.log.Error("output transition failed, rolling back", "stage", stage, "error", cause)

	var diag []string
	rollbackFailed := false

	if startedAdapter != nil {
		if err := startedAdapter.Stop(); err != nil {
			diag = append(diag, fmt.Sprintf("stop new adapter: %v", err))
			rollbackFailed = true
		}
	}

	if previous != nil {
		if s.env != nil {
			if err := s.env.Apply(previous.FrameBusConfig); err != nil {
				diag = append(diag, fmt.Sprintf("restore frame bus env: %v", err))
				rollbackFailed = true
			}
		}
		if err := s.renderer.ConfigureSession(previous.OutputConfig.Format.Width, previous.OutputConfig.Format.Height,
			previous.OutputConfig.Format.FPS, previous.FrameBusConfig); err != nil {
			diag = append(diag, fmt.Sprintf("restore renderer session: %v", err))
			rollbackFailed = true
		}
		if previous.OutputAdapter != nil {
			if err := previous.OutputAdapter.Configure(previous.OutputConfig); err != nil {
				diag = append(diag, fmt.Sprintf("restore previous adapter: %v", err))
				rollbackFailed = true
			}
		}
	} else {
		if s.env != nil {
			if err := s.env.Clear(); err != nil {
				diag = append(diag, fmt.Sprintf("clear frame bus env: %v", err))
				rollbackFailed = true
			}
		}
	}

	if rollbackFailed {
		if s.env != nil {
			_ = s.env.Clear()
		}
		if err := s.store.Clear(); err != nil && !errors.Is(err, os.ErrNotExist) {
			diag = append(diag, fmt.Sprintf("clear persisted config: %v", err))
		}
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}

	return &Error{Stage: stage, Message: cause.Error(), RollbackDiag: diag}
}
