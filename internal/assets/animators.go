package assets

import (
	"errors"

	"github.com/chewxy/math32"

	"world-builder/internal/scenegraph"
)

var errDetached = errors.New("animated pivot is gone")

// Spin turns its target around the Y axis.
type Spin struct {
	Target *scenegraph.Node
	Speed  float32 // radians per second
}

// Animate advances the rotation by dt seconds.
func (s *Spin) Animate(dt float32) error {
	if s.Target == nil {
		return errDetached
	}
	s.Target.SetYaw(s.Target.Yaw() + s.Speed*dt)
	return nil
}

// Bob moves its target up and down.
type Bob struct {
	Target    *scenegraph.Node
	Amplitude float32
	Speed     float32
	t         float32
}

// Animate advances the phase by dt seconds.
func (b *Bob) Animate(dt float32) error {
	if b.Target == nil {
		return errDetached
	}
	b.t += dt
	b.Target.Position.Y = b.Amplitude * math32.Sin(b.t*b.Speed)
	return nil
}

// Walk is the idle walk cycle of a character: a short hop with a side-to-side sway.
type Walk struct {
	Target *scenegraph.Node
	Stride float32
	Speed  float32
	t      float32
}

// Animate advances the cycle by dt seconds.
func (w *Walk) Animate(dt float32) error {
	if w.Target == nil {
		return errDetached
	}
	w.t += dt
	phase := w.t * w.Speed
	w.Target.Position.Y = w.Stride * math32.Abs(math32.Sin(phase))
	w.Target.SetYaw(0.1 * math32.Sin(phase*0.5))
	return nil
}
