package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"clip-quickview/internal/app"
	"clip-quickview/internal/config"
	"clip-quickview/internal/display"
	"clip-quickview/internal/framecache"
	"clip-quickview/internal/gui"
	"clip-quickview/internal/httpapi"
	"clip-quickview/internal/logger"
	"clip-quickview/internal/opencv/clip"
	"clip-quickview/internal/placeholder"
	"clip-quickview/internal/scheduler"
	"clip-quickview/internal/shutdown"
	"clip-quickview/internal/sources"
)

const AppVersion = "0.3.0"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stdout, "usage: clip-quickview [flags] [clip ...]\n\n%s", config.Usage())
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "clip-quickview: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "clip-quickview: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.JSONLogs {
		return logger.NewZerolog(os.Stderr, level), nil
	}
	return logger.NewConsoleLogger(level), nil
}

func run(cfg config.Config) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	// fyne reads its scale factor from the environment when the app starts.
	if cfg.Scale > 0 {
		os.Setenv("FYNE_SCALE", strconv.FormatFloat(cfg.Scale, 'f', -1, 64))
	}

	log.Info("Main", "clip-quickview starting", map[string]interface{}{
		"version":         AppVersion,
		"go_version":      runtime.Version(),
		"display_workers": cfg.DisplayWorkers,
		"config":          cfg.ConfigPath,
		"clips":           len(cfg.Clips),
	})

	bars := placeholder.Default()
	sched := scheduler.New(sources.NewTable(), clip.NewDecoder(log), display.NewSink(log), scheduler.Options{
		DisplayWorkers: cfg.DisplayWorkers,
		Cache: framecache.Options{
			MinimumSize:       cfg.CacheMinimumSize,
			CleaningFrequency: cfg.CacheCleaningFrequency,
		},
		Placeholder: bars,
		OnDecodeError: func(err *scheduler.DecodeError) {
			log.Warning("Main", "frame shown as placeholder", map[string]interface{}{
				"index": err.Index,
				"frame": err.Frame,
			})
		},
		Logger: log,
	})
	viewer := app.NewViewer(sched, log)

	manager := shutdown.NewManager(log, shutdown.DefaultTimeout)
	manager.Register("viewer", viewer)

	opener := func(path, kind string) (*sources.Source, error) {
		k, err := clip.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		return clip.Open(path, k, clip.Options{
			Captures:  cfg.CapturesPerClip,
			Force8Bit: cfg.Force8Bit,
			Logger:    log,
		})
	}

	if err := registerClips(manager.Context(), cfg, viewer, opener); err != nil {
		manager.Shutdown()
		return err
	}

	if cfg.APIEnabled {
		api := httpapi.NewServer(cfg.APIAddr, viewer, opener, log)
		if err := api.Start(); err != nil {
			manager.Shutdown()
			return fmt.Errorf("start control API: %w", err)
		}
		manager.Register("control API", api)
	}

	window := gui.New(viewer, bars, gui.Options{
		Width:   cfg.WindowWidth,
		Height:  cfg.WindowHeight,
		OnClose: manager.Shutdown,
		Logger:  log,
	})
	manager.Register("window", window)
	manager.Listen()

	window.Run()

	// The event loop can also end on its own, for example when the
	// platform quits the app.
	manager.Shutdown()
	<-manager.Done()
	log.Info("Main", "clip-quickview stopped", nil)
	return nil
}

// registerClips opens the positional clips in parallel and registers them
// into slots 0 and up in argument order.
func registerClips(ctx context.Context, cfg config.Config, viewer *app.Viewer, open httpapi.Opener) error {
	opened := make([]*sources.Source, len(cfg.Clips))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range cfg.Clips {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := open(path, cfg.Kind)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			opened[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, src := range opened {
			if src != nil {
				src.Close()
			}
		}
		return err
	}

	for i, src := range opened {
		if _, err := viewer.RegisterSource(i, src, cfg.ClipName(i)); err != nil {
			for _, rest := range opened[i:] {
				rest.Close()
			}
			return fmt.Errorf("register %s: %w", cfg.Clips[i], err)
		}
	}
	return nil
}
