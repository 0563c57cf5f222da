package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/flexsync/internal/config"
	"github.com/Faultbox/flexsync/internal/engine"
	"github.com/Faultbox/flexsync/internal/logger"
	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/solver"
	"github.com/Faultbox/flexsync/internal/solver/memory"
	"github.com/Faultbox/flexsync/pkg/scenefile"
)

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// setup parses the common flags, loads the config and initialises logging.
func setup(name string, args []string, extra func(fs *flag.FlagSet)) *config.Config {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fatal("config: %v", err)
	}

	fileCfg := logger.FileConfig{}
	if cfg.Logging.LogFile != "" {
		fileCfg = logger.DefaultFileConfig(cfg.Logging.LogFile)
		fileCfg.JSON = cfg.Logging.JSON
	}
	if err := logger.InitWithFileConfig(cfg.Logging.Level, fileCfg, true); err != nil {
		fatal("logger: %v", err)
	}
	return cfg
}

// loadInput reads the scene document and the optional params file. A params
// file replaces the params section of the document.
func loadInput(cfg *config.Config) (engine.Input, error) {
	doc, err := scenefile.Load(cfg.Files.Scene)
	if err != nil {
		return engine.Input{}, err
	}
	in, err := doc.Input(cfg.Solver)
	if err != nil {
		return engine.Input{}, fmt.Errorf("%s: %w", cfg.Files.Scene, err)
	}
	if cfg.Files.Params != "" {
		p, err := solver.LoadParams(cfg.Files.Params)
		if err != nil {
			return engine.Input{}, err
		}
		in.Params = &p
	}
	in.Lock = cfg.Session.Lock
	return in, nil
}

func newController(cfg *config.Config) *engine.Controller {
	backend := memory.New()
	backend.StepDelay = cfg.Session.StepDelay
	return engine.New(backend, engine.WithStepTimeout(cfg.Session.StepTimeout))
}

func logDiagnostics(rep engine.Report) {
	for _, err := range multierr.Errors(rep.Diagnostics) {
		logger.Warn("diagnostic", zap.Int("cycle", rep.Cycle), zap.Error(err))
	}
}

func cmdInfo(args []string) {
	cfg := setup("info", args, nil)
	defer logger.Sync()

	in, err := loadInput(cfg)
	if err != nil {
		fatal("%v", err)
	}
	ctrl := newController(cfg)
	defer ctrl.Close()

	in.Reset = true
	rep, err := ctrl.Cycle(context.Background(), in)
	if err != nil {
		fatal("%v", err)
	}
	logDiagnostics(rep)

	regs, err := ctrl.Registrations()
	if err != nil {
		fatal("%v", err)
	}
	set, err := ctrl.Constraints()
	if err != nil {
		fatal("%v", err)
	}

	fmt.Printf("Scene:      %s\n", cfg.Files.Scene)
	fmt.Printf("Mode:       %s\n", in.Options.SceneMode)
	fmt.Printf("Particles:  %d\n", ctrl.Len())
	fmt.Printf("Springs:    %d\n", len(set.Springs))
	fmt.Printf("Shapes:     %d\n", len(set.Shapes))
	fmt.Printf("Triangles:  %d\n", len(set.Triangles))
	fmt.Printf("Pressures:  %d\n", len(set.Pressures))
	fmt.Printf("Anchors:    %d\n", len(set.Anchors))
	fmt.Printf("Diagnostics: %d\n", len(multierr.Errors(rep.Diagnostics)))
	fmt.Println()
	fmt.Println("Objects:")
	for i, r := range regs {
		fmt.Printf("  %2d  %-14s offset %-6d count %-6d springs %d\n",
			i, r.Kind, r.Offset, r.Count, r.Springs.Len)
	}
}

// session runs go cycles and tracks the input fed to them.
type session struct {
	cfg  *config.Config
	ctrl *engine.Controller
	in   engine.Input
}

func (s *session) reset(ctx context.Context) error {
	in := s.in
	in.Reset = true
	rep, err := s.ctrl.Cycle(ctx, in)
	logDiagnostics(rep)
	return err
}

func (s *session) step(ctx context.Context) error {
	in := s.in
	in.Go = true
	rep, err := s.ctrl.Cycle(ctx, in)
	logDiagnostics(rep)
	if err != nil {
		return err
	}
	if rep.Pushes.Total() > 0 {
		logger.Debug("pushed",
			zap.Int("cycle", rep.Cycle),
			zap.Int("registers", rep.Pushes.Registers),
			zap.Int("alters", rep.Pushes.Alters),
			zap.Int("overlays", rep.Pushes.Overlays))
	}
	return nil
}

// loop runs cycles until the configured count is reached or ctx is done.
// tick, when set, runs before every cycle.
func (s *session) loop(ctx context.Context, tick func()) error {
	for n := 0; s.cfg.Session.Cycles == 0 || n < s.cfg.Session.Cycles; n++ {
		if tick != nil {
			tick()
		}
		if err := s.step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if s.cfg.Session.Interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.Session.Interval):
			}
		}
	}
	return nil
}

func (s *session) summary() {
	st := s.ctrl.Stats()
	fmt.Printf("Cycles:      %d\n", st.Cycles)
	fmt.Printf("Steps:       %d\n", st.Steps)
	fmt.Printf("Total:       %v\n", st.Total)
	fmt.Printf("Average:     %v\n", st.Average())
	fmt.Printf("Last:        %v\n", st.Last)
	fmt.Printf("In step:     %v (%.1f%%)\n", st.StepTotal, st.StepShare())
	fmt.Printf("Bookkeeping: %v\n", st.Bookkeeping())
	fmt.Printf("Particles:   %d\n", s.ctrl.Len())

	if idx, err := s.ctrl.Indices(scene.KindRigidBody); err == nil && len(idx) > 0 {
		if t, _, err := s.ctrl.RigidTransforms(); err == nil {
			fmt.Printf("Rigid shapes: %d\n", len(t)/3)
		}
	}
}

func start(args []string, name string) (*session, context.Context, context.CancelFunc) {
	cfg := setup(name, args, nil)
	in, err := loadInput(cfg)
	if err != nil {
		fatal("%v", err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &session{cfg: cfg, ctrl: newController(cfg), in: in}
	if err := s.reset(ctx); err != nil {
		cancel()
		fatal("reset: %v", err)
	}
	logger.Info("session started",
		zap.String("scene", cfg.Files.Scene),
		zap.Int("particles", s.ctrl.Len()),
		zap.Stringer("mode", in.Options.SceneMode))
	return s, ctx, cancel
}

func cmdRun(args []string) {
	s, ctx, cancel := start(args, "run")
	defer cancel()
	defer logger.Sync()
	defer s.ctrl.Close()

	if err := s.loop(ctx, nil); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
	s.summary()
}

func cmdWatch(args []string) {
	s, ctx, cancel := start(args, "watch")
	defer cancel()
	defer logger.Sync()
	defer s.ctrl.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fatal("watch: %v", err)
	}
	defer watcher.Close()

	// watch directories so editors that replace files are still seen
	watched := map[string]bool{}
	for _, path := range []string{s.cfg.Files.Scene, s.cfg.Files.Params} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			fatal("watch: %v", err)
		}
		watched[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			fatal("watch: %v", err)
		}
	}

	tick := func() {
		changed := false
	drain:
		for {
			select {
			case ev := <-watcher.Events:
				abs, _ := filepath.Abs(ev.Name)
				if watched[abs] && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					changed = true
				}
			case err := <-watcher.Errors:
				logger.Warn("watcher error", zap.Error(err))
			default:
				break drain
			}
		}
		if !changed {
			return
		}
		in, err := loadInput(s.cfg)
		if err != nil {
			logger.Warn("reload failed, keeping previous input", zap.Error(err))
			return
		}
		s.in = in
		logger.Info("inputs reloaded", zap.Int("objects", len(in.Objects)))
	}

	if s.cfg.Session.Interval == 0 {
		s.cfg.Session.Interval = 100 * time.Millisecond
	}
	if err := s.loop(ctx, tick); err != nil {
		logger.Error("watch failed", zap.Error(err))
		os.Exit(1)
	}
	s.summary()
}

func cmdParams(args []string) {
	var out *string
	cfg := setup("params", args, func(fs *flag.FlagSet) {
		out = fs.String("o", "", "Write the parameters to this .yaml or .toml file")
	})
	defer logger.Sync()

	p := solver.DefaultParams()
	if cfg.Files.Params != "" {
		loaded, err := solver.LoadParams(cfg.Files.Params)
		if err != nil {
			fatal("%v", err)
		}
		p = loaded
	}

	if *out != "" {
		if err := solver.SaveParams(*out, p); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Saved %s\n", *out)
		return
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Print(string(data))
}

func cmdConfig(args []string) {
	var (
		out  *string
		save *bool
	)
	cfg := setup("config", args, func(fs *flag.FlagSet) {
		out = fs.String("o", "", "Write the effective config to this file")
		save = fs.Bool("save", false, "Write the effective config to the user config dir")
	})
	defer logger.Sync()

	switch {
	case *out != "":
		if err := cfg.SaveTo(*out); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Saved %s\n", *out)
	case *save:
		if err := cfg.Save(); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Saved %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	default:
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Print(string(data))
	}
}
