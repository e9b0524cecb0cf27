package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"world-builder/internal/assets"
	"world-builder/internal/commands"
	"world-builder/internal/engine"
	"world-builder/internal/engineconfig"
	"world-builder/internal/env"
	"world-builder/internal/logger"
	"world-builder/internal/render"
	"world-builder/internal/terminal"
	"world-builder/internal/terrain"
	"world-builder/internal/world"
)

// worldReloadDelay collapses the burst of writes an editor makes when saving the world file.
const worldReloadDelay = 150 * time.Millisecond

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	envErr := env.Load(".env")
	cfg, cfgErr := engineconfig.Load(engineconfig.EngineConfigPath)
	overrideErr := cfg.ApplyEnv(os.LookupEnv)
	log := logger.New(cfg.LogFile)
	for _, err := range []error{envErr, cfgErr, overrideErr} {
		if err != nil {
			log.Logf("config: %v", err)
		}
	}

	snap, err := world.LoadSnapshot(cfg.WorldFile)
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}
	field := terrain.Generate(cfg.Terrain)
	factory := assets.NewFactory(assets.Options{
		Latency: time.Duration(cfg.Build.LatencyMS) * time.Millisecond,
	})

	reg := commands.NewRegistry()
	term := terminal.New(log, reg)
	backend, err := render.Open(render.Options{
		Window:     cfg.Window,
		Overlays:   cfg.Overlays,
		Terrain:    field,
		GridExtent: int(cfg.Picking.HalfExtent),
		Console:    term,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	s := &session{snap: snap, path: cfg.WorldFile, log: log}
	eng := engine.New(backend, factory, field, engine.Options{
		Capacity:     cfg.Instancing.Capacity,
		MinBatch:     cfg.Instancing.MinBatch,
		BuildTimeout: cfg.BuildTimeout(),
		Picking:      cfg.PickingOptions(),
		Edit:         cfg.EditOptions(),
		Logger:       log,
	}, engine.Listener{
		OnInstanceEdit: s.edit,
		OnAssetError: func(name string, err error) {
			log.Logf("asset %s failed: %v", name, err)
		},
		OnGroundClick: s.groundClick,
		OnStateChange: func(st engine.State) {
			log.Logf("engine: %s", st)
		},
		OnCommand: term.Submit,
	})
	defer eng.Dispose()
	s.setWorld = eng.SetWorld

	console := &commands.Console{
		Target:     eng,
		LoseDevice: backend.LoseDevice,
		SetGrid: func(show bool) {
			backend.SetGridVisible(show)
			cfg.Overlays.GridVisible = show
		},
		SetFPS: func(show bool) {
			backend.Debug().SetShowFPS(show)
			cfg.Overlays.ShowFPS = show
		},
		Save: func() error {
			if err := s.save(); err != nil {
				return err
			}
			return engineconfig.Save(engineconfig.EngineConfigPath, cfg)
		},
		Print: log.Log,
	}
	console.Register(reg)
	registerWorldCommands(reg, s, log)

	if err := eng.SetWorld(s.snap); err != nil {
		return err
	}
	log.Logf("world %s: %d assets, %d instances", cfg.WorldFile, len(snap.Library), len(snap.Instances))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cfg.WatchWorld {
		go func() {
			err := world.Watch(ctx, cfg.WorldFile, worldReloadDelay, func(snap world.Snapshot, err error) {
				eng.Post(func() { s.reload(snap, err) })
			})
			if err != nil {
				log.Logf("world: %v", err)
			}
		}()
	}
	for {
		err := eng.Run(ctx)
		if !errors.Is(err, engine.ErrDeviceLost) {
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
		if rerr := eng.Recover(); rerr != nil {
			return fmt.Errorf("recover: %w", rerr)
		}
	}
}

// registerWorldCommands adds the commands that edit the world model rather than the engine.
func registerWorldCommands(reg *commands.Registry, s *session, log *logger.Logger) {
	bfs := commands.NewFlagSet("brush")
	none := bfs.Bool("none", false, "stop placing on ground clicks")
	reg.Register("brush", "brush <library-id> | brush --none", bfs, func() error {
		lib := ""
		if !*none {
			if bfs.NArg() != 1 {
				return fmt.Errorf("brush: expected a library id or --none")
			}
			lib = bfs.Arg(0)
		}
		if err := s.setBrush(lib); err != nil {
			return err
		}
		log.Logf("brush: %q", lib)
		return nil
	})

	dfs := commands.NewFlagSet("delete")
	reg.Register("delete", "delete <id>", dfs, func() error {
		if dfs.NArg() != 1 {
			return fmt.Errorf("delete: expected an instance id")
		}
		return s.remove(dfs.Arg(0))
	})
}
