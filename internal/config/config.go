// Package config handles flexsync configuration loading and management.
package config

import (
	"time"

	"github.com/Faultbox/flexsync/internal/solver"
)

// Config holds all settings of a headless session.
type Config struct {
	Solver  solver.SolverOptions `yaml:"solver"`
	Session SessionConfig        `yaml:"session"`
	Files   FilesConfig          `yaml:"files"`
	Logging LoggingConfig        `yaml:"logging"`
}

// SessionConfig holds the per-run controller settings.
type SessionConfig struct {
	Lock        bool          `yaml:"lock"`         // freeze inputs after the first reset
	Cycles      int           `yaml:"cycles"`       // go cycles to run, 0 runs until interrupted
	StepTimeout time.Duration `yaml:"step_timeout"` // 0 disables the timeout
	StepDelay   time.Duration `yaml:"step_delay"`   // artificial cost of the memory backend
	Interval    time.Duration `yaml:"interval"`     // pause between cycles
}

// FilesConfig holds input file paths. A leading ~ is expanded.
type FilesConfig struct {
	Scene  string `yaml:"scene"`
	Params string `yaml:"params"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Solver: solver.DefaultSolverOptions(),
		Session: SessionConfig{
			Cycles:      120,
			StepTimeout: 5 * time.Second,
		},
		Files: FilesConfig{
			Scene: "scene.yaml",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
