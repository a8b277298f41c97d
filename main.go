package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jota2rz/graphics-core/internal/adapter"
	"github.com/jota2rz/graphics-core/internal/api"
	"github.com/jota2rz/graphics-core/internal/asset"
	"github.com/jota2rz/graphics-core/internal/graphics"
	"github.com/jota2rz/graphics-core/internal/hostconfig"
	"github.com/jota2rz/graphics-core/internal/models"
	"github.com/jota2rz/graphics-core/internal/outputconfig"
	"github.com/jota2rz/graphics-core/internal/renderer"
	"github.com/jota2rz/graphics-core/internal/statusbus"
	"github.com/jota2rz/graphics-core/internal/transition"
)

// envFrameBus applies the FrameBus descriptor as environment variables for
// a locally-spawned renderer/output-helper process to read on next launch.
// A host with a richer IPC mechanism (shared memory, a control socket) would
// replace this with a different FrameBusEnv implementation; core has no
// opinion beyond the interface.
type envFrameBus struct{ log *slog.Logger }

func (e envFrameBus) Apply(cfg models.FrameBusConfig) error {
	os.Setenv("GRAPHICSD_FRAME_BUS_NAME", cfg.Name)
	os.Setenv("GRAPHICSD_FRAME_BUS_WIDTH", strconv.Itoa(cfg.Width))
	os.Setenv("GRAPHICSD_FRAME_BUS_HEIGHT", strconv.Itoa(cfg.Height))
	os.Setenv("GRAPHICSD_FRAME_BUS_FPS", strconv.Itoa(cfg.FPS))
	os.Setenv("GRAPHICSD_FRAME_BUS_SLOT_COUNT", strconv.Itoa(cfg.SlotCount))
	os.Setenv("GRAPHICSD_FRAME_BUS_SIZE", strconv.FormatInt(cfg.Size, 10))
	e.log.Info("frame bus environment applied", "name", cfg.Name, "width", cfg.Width, "height", cfg.Height)
	return nil
}

func (e envFrameBus) Clear() error {
	for _, key := range []string{
		"GRAPHICSD_FRAME_BUS_NAME", "GRAPHICSD_FRAME_BUS_WIDTH", "GRAPHICSD_FRAME_BUS_HEIGHT",
		"GRAPHICSD_FRAME_BUS_FPS", "GRAPHICSD_FRAME_BUS_SLOT_COUNT", "GRAPHICSD_FRAME_BUS_SIZE",
	} {
		os.Unsetenv(key)
	}
	return nil
}

// hdmiPortResolver is a placeholder PortResolver: device enumeration itself
// is out of scope for core, so every port resolves to a non-SDI, roleless
// display device until a host wires real enumeration. That placeholder
// correctly rejects SDI-only outputs (video_sdi, key_fill_sdi,
// key_fill_split_sdi) rather than silently accepting them.
type hdmiPortResolver struct{}

func (hdmiPortResolver) ResolvePort(portID string) (adapter.PortInfo, error) {
	return adapter.PortInfo{DeviceType: adapter.DeviceHDMI, DeviceID: portID, Role: adapter.PortRoleNone}, nil
}

// rateLimitMiddleware throttles the mutating command surface (everything but
// GETs — /graphics/status, /graphics/events, and /metrics stay unthrottled)
// at the configured sustained rate and burst, returning 429 once exhausted.
func rateLimitMiddleware(log *slog.Logger, limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		log.Warn("command rate limit exceeded", "path", r.URL.Path, "remote", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"graphics: rate limited"}`))
	})
}

func main() {
	cfg := hostconfig.Parse(os.Args[1:])

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	assets := asset.New(logger, cfg.AssetsDir())
	if err := assets.Initialize(); err != nil {
		logger.Error("failed to initialize asset registry", "error", err)
		os.Exit(1)
	}

	store := outputconfig.New(logger, cfg.OutputConfigDir())
	if err := store.Initialize(); err != nil {
		logger.Error("failed to initialize output config store", "error", err)
		os.Exit(1)
	}

	bus := statusbus.New(logger)
	go bus.Run()

	metrics := graphics.NewMetrics(prometheus.DefaultRegisterer)

	manager := graphics.New(logger, assets, store, bus, metrics)

	rc := renderer.NewClient(logger, cfg.RendererAddr, cfg.RendererToken, manager)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	rc.Start(rootCtx)

	transitions := transition.New(logger, rc, hdmiPortResolver{}, store, envFrameBus{log: logger})

	manager.SetRenderer(rc)
	manager.SetTransitions(transitions)
	if err := manager.Initialize(rootCtx); err != nil {
		logger.Error("failed to initialize graphics manager", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	handlers := api.New(logger, manager, bus)
	handlers.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	limiter := rate.NewLimiter(rate.Limit(cfg.CommandRateHz), cfg.CommandBurst)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      rateLimitMiddleware(logger, limiter, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE needs unlimited write time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus.Close()
	_ = rc.Close()
	_ = srv.Shutdown(ctx)
}
