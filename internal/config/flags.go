package config

import (
	"flag"
	"fmt"

	"github.com/Faultbox/flexsync/internal/solver"
)

// Flags are the command-line overrides shared by every subcommand.
type Flags struct {
	config  *string
	debug   *bool
	scene   *string
	params  *string
	logFile *string
	mode    *string
	cycles  *int
	lock    *bool
}

// RegisterFlags defines the shared flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		config:  fs.String("config", "", "Path to config file"),
		debug:   fs.Bool("debug", false, "Enable debug logging"),
		scene:   fs.String("scene", "", "Scene document (.yaml or .toml)"),
		params:  fs.String("params", "", "Solver parameter file (.yaml, .toml or .ini)"),
		logFile: fs.String("log", "", "Log file path"),
		mode:    fs.String("mode", "", "Scene mode: update, append or lock"),
		cycles:  fs.Int("cycles", -1, "Number of go cycles (0 = until interrupted)"),
		lock:    fs.Bool("lock", false, "Freeze inputs after the first reset"),
	}
}

// ConfigPath returns the explicit config path if provided via -config.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return *f.config
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) error {
	if f == nil {
		return nil
	}
	if *f.debug {
		cfg.Logging.Level = "debug"
	}
	if *f.scene != "" {
		cfg.Files.Scene = *f.scene
	}
	if *f.params != "" {
		cfg.Files.Params = *f.params
	}
	if *f.logFile != "" {
		cfg.Logging.LogFile = *f.logFile
	}
	if *f.mode != "" {
		mode, err := solver.ParseSceneMode(*f.mode)
		if err != nil {
			return fmt.Errorf("-mode: %w", err)
		}
		cfg.Solver.SceneMode = mode
	}
	if *f.cycles >= 0 {
		cfg.Session.Cycles = *f.cycles
	}
	if *f.lock {
		cfg.Session.Lock = true
	}
	return nil
}
