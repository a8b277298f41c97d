// Package hostconfig holds the daemon-level settings for main.go:
// listen address, renderer connection details, and on-disk data
// directories. Unlike the teacher's internal/config (a SQLite-backed,
// mutable key/value cache), this is a small, immutable struct populated
// once from flags and environment at startup — the graphics engine itself
// has no runtime-mutable configuration surface.
package hostconfig

import (
	"flag"
	"os"
	"path/filepath"
)

// Config is the daemon's resolved configuration.
type Config struct {
	ListenAddr    string
	RendererAddr  string
	RendererToken string
	UserDataDir   string
	Debug         bool
	CommandRateHz float64
	CommandBurst  int
}

// OutputConfigDir is "<userDataDir>/graphics", holding graphics-output.json.
func (c Config) OutputConfigDir() string { return filepath.Join(c.UserDataDir, "graphics") }

// AssetsDir is "<userDataDir>/graphics-assets", holding assets.json and the
// stored asset binaries.
func (c Config) AssetsDir() string { return filepath.Join(c.UserDataDir, "graphics-assets") }

// defaultUserDataDir mirrors the teacher's "./videos"-style relative
// default — a directory relative to the working directory rather than an XDG path,
// matching this module's single-host deployment model.
const defaultUserDataDir = "./graphics-data"

// Parse builds a Config from command-line flags, falling back to
// environment variables for values that are awkward to pass as flags in a
// supervised deployment (notably the renderer handshake token).
func Parse(args []string) Config {
	fs := flag.NewFlagSet("graphicsd", flag.ExitOnError)

	listenAddr := fs.String("addr", ":8099", "local HTTP command surface listen address")
	rendererAddr := fs.String("renderer-addr", "127.0.0.1:8100", "renderer subprocess loopback address")
	userDataDir := fs.String("data-dir", defaultUserDataDir, "user-data directory for persisted output config and assets")
	debug := fs.Bool("debug", false, "enable debug logging")
	commandRateHz := fs.Float64("command-rate", 50, "sustained commands/sec allowed on the HTTP command surface")
	commandBurst := fs.Int("command-burst", 100, "burst size allowed above the sustained command rate")

	_ = fs.Parse(args)

	return Config{
		ListenAddr:    *listenAddr,
		RendererAddr:  *rendererAddr,
		RendererToken: os.Getenv("GRAPHICSD_RENDERER_TOKEN"),
		UserDataDir:   *userDataDir,
		Debug:         *debug,
		CommandRateHz: *commandRateHz,
		CommandBurst:  *commandBurst,
	}
}
