package commands

import (
	"errors"
	"fmt"

	"world-builder/internal/engine"
	"world-builder/internal/transformedit"
)

// Target is the engine surface the console drives. *engine.Engine implements it.
type Target interface {
	SetGizmoMode(m transformedit.Mode)
	SetSnapping(on bool)
	SetGroundConstraint(on bool)
	SetPlaying(on bool)
	Rebuild(id string) bool
	RebuildAsset(libraryID string) int
	Select(id string) bool
	Stats() engine.Stats
}

// Console wires Target plus the host's overlay and persistence hooks into a Registry.
// Nil hooks make the matching command report that it is unavailable.
type Console struct {
	Target     Target
	LoseDevice func()
	SetGrid    func(show bool)
	SetFPS     func(show bool)
	Save       func() error
	// Print receives command output.
	Print func(line string)
}

var errUnavailable = errors.New("not available")

// Register adds every console command to r.
func (c *Console) Register(r *Registry) {
	fs := NewFlagSet("mode")
	r.Register("mode", "mode translate|rotate|scale", fs, func() error {
		if fs.NArg() != 1 {
			return fmt.Errorf("mode: expected one of translate, rotate, scale")
		}
		m, ok := transformedit.ParseMode(fs.Arg(0))
		if !ok {
			return fmt.Errorf("mode: unknown mode %q", fs.Arg(0))
		}
		c.Target.SetGizmoMode(m)
		c.printf("gizmo mode: %s", m)
		return nil
	})

	c.toggle(r, "snap", "on", "off", func(on bool) error {
		c.Target.SetSnapping(on)
		return nil
	})
	c.toggle(r, "ground", "on", "off", func(on bool) error {
		c.Target.SetGroundConstraint(on)
		return nil
	})
	c.toggle(r, "play", "on", "off", func(on bool) error {
		c.Target.SetPlaying(on)
		return nil
	})
	c.toggle(r, "grid", "show", "hide", func(on bool) error {
		if c.SetGrid == nil {
			return errUnavailable
		}
		c.SetGrid(on)
		return nil
	})
	c.toggle(r, "fps", "show", "hide", func(on bool) error {
		if c.SetFPS == nil {
			return errUnavailable
		}
		c.SetFPS(on)
		return nil
	})

	rfs := NewFlagSet("rebuild")
	asset := rfs.String("asset", "", "rebuild every instance of this library asset")
	r.Register("rebuild", "rebuild <id> | rebuild --asset <library-id>", rfs, func() error {
		if *asset != "" {
			n := c.Target.RebuildAsset(*asset)
			c.printf("rebuilt %d instance(s) of %s", n, *asset)
			return nil
		}
		if rfs.NArg() != 1 {
			return fmt.Errorf("rebuild: expected an instance id or --asset")
		}
		id := rfs.Arg(0)
		if !c.Target.Rebuild(id) {
			return fmt.Errorf("rebuild: unknown instance %q", id)
		}
		c.printf("rebuilt %s", id)
		return nil
	})

	sfs := NewFlagSet("select")
	none := sfs.Bool("none", false, "clear the selection")
	r.Register("select", "select <id> | select --none", sfs, func() error {
		if *none {
			c.Target.Select("")
			return nil
		}
		if sfs.NArg() != 1 {
			return fmt.Errorf("select: expected an instance id")
		}
		if !c.Target.Select(sfs.Arg(0)) {
			return fmt.Errorf("select: no instance %q", sfs.Arg(0))
		}
		return nil
	})

	gfs := NewFlagSet("gpu")
	lose := gfs.Bool("lose", false, "simulate a GPU device loss")
	r.Register("gpu", "gpu --lose", gfs, func() error {
		if !*lose {
			return fmt.Errorf("gpu: expected --lose")
		}
		if c.LoseDevice == nil {
			return fmt.Errorf("gpu: %w", errUnavailable)
		}
		c.LoseDevice()
		return nil
	})

	r.Register("stats", "stats", NewFlagSet("stats"), func() error {
		s := c.Target.Stats()
		c.printf("state=%s frames=%d instances=%d pending=%d groups=%d batched=%d animated=%d",
			s.State, s.Frames, s.Instances, s.Pending, s.Groups, s.Batched, s.Animated)
		return nil
	})

	r.Register("save", "save", NewFlagSet("save"), func() error {
		if c.Save == nil {
			return fmt.Errorf("save: %w", errUnavailable)
		}
		if err := c.Save(); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		c.printf("saved")
		return nil
	})

	r.Register("help", "help", NewFlagSet("help"), func() error {
		for _, n := range r.Names() {
			c.printf("cmd %s", r.Usage(n))
		}
		return nil
	})
}

// toggle registers a command taking exactly one of two boolean flags.
func (c *Console) toggle(r *Registry, name, onFlag, offFlag string, apply func(on bool) error) {
	fs := NewFlagSet(name)
	on := fs.Bool(onFlag, false, "")
	off := fs.Bool(offFlag, false, "")
	usage := fmt.Sprintf("%s --%s | --%s", name, onFlag, offFlag)
	r.Register(name, usage, fs, func() error {
		if *on == *off {
			return fmt.Errorf("%s: expected --%s or --%s", name, onFlag, offFlag)
		}
		if err := apply(*on); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		state := offFlag
		if *on {
			state = onFlag
		}
		c.printf("%s %s", name, state)
		return nil
	})
}

func (c *Console) printf(format string, args ...any) {
	if c.Print != nil {
		c.Print(fmt.Sprintf(format, args...))
	}
}

