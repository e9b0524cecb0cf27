package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"world-builder/internal/scenegraph"
	"world-builder/internal/world"
)

// ErrUnknownKind is returned for library assets whose kind the factory cannot build.
var ErrUnknownKind = errors.New("assets: unknown asset kind")

// Material keys understood by the renderer.
const (
	MaterialLit         = "lit"
	MaterialPlaceholder = "placeholder"
	MaterialError       = "error"
)

var (
	defaultColor     = rl.NewColor(128, 128, 128, 255)
	placeholderColor = rl.NewColor(90, 160, 255, 120)
	errorColor       = rl.NewColor(230, 40, 40, 255)
)

// Options configures a Factory.
type Options struct {
	// Latency delays asynchronous builds, standing in for slow generation.
	Latency time.Duration
	// OnRelease is called for every disposed subtree, from whichever goroutine disposed it.
	OnRelease func(node *scenegraph.Node)
}

// Factory builds scene subtrees for library assets: single primitives, composites made of
// named parts, and walking characters. Resolved part lists are cached per definition and the
// cache is dropped by Reset. Safe for concurrent use.
type Factory struct {
	opts Options

	mu       sync.Mutex
	specs    map[string][]partSpec
	built    int
	disposed int
}

// NewFactory returns a factory with an empty cache.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts, specs: make(map[string][]partSpec)}
}

// partSpec is a resolved part: geometry, color, and placement relative to the asset origin.
type partSpec struct {
	name       string
	geometry   string
	color      rl.Color
	offset     rl.Vector3
	size       rl.Vector3
	selectable bool
}

// BuildSubtree builds a subtree for def with per-instance part overrides applied.
func (f *Factory) BuildSubtree(def world.LibraryAsset, overrides map[string]world.PartOverride) (*scenegraph.Node, error) {
	specs, err := f.resolve(def)
	if err != nil {
		return nil, err
	}

	root := scenegraph.New(def.ID)
	root.Data.LibraryID = def.ID
	pivot := root
	if def.Animation != "" {
		pivot = scenegraph.New("pivot")
		root.Add(pivot)
	}
	for _, s := range specs {
		o := overrides[s.name]
		if o.Hidden {
			continue
		}
		color := s.color
		if o.Color != "" {
			if c, ok := parseColor(o.Color); ok {
				color = c
			}
		}
		size := s.size
		if o.Scale > 0 {
			size = rl.Vector3Scale(size, o.Scale)
		}
		part := scenegraph.NewMesh(s.name, &scenegraph.Mesh{
			Geometry: s.geometry,
			Material: MaterialLit,
			Color:    color,
			Bounds:   unitBounds(s.geometry),
		})
		part.Position = s.offset
		part.Scale = size
		if s.selectable {
			part.Data.Selectable = s.name
		}
		part.Data.LibraryID = def.ID
		pivot.Add(part)
	}

	if def.Character || def.Kind == "character" {
		root.Data.NPC = true
	}
	switch def.Animation {
	case "":
	case "spin":
		root.Data.Animator = &Spin{Target: pivot, Speed: 1.5}
	case "bob":
		root.Data.Animator = &Bob{Target: pivot, Amplitude: 0.15, Speed: 2}
	case "walk":
		root.Data.Animator = &Walk{Target: pivot, Stride: 0.08, Speed: 6}
	default:
		return nil, fmt.Errorf("%s: unknown animation %q", def.DisplayName(), def.Animation)
	}

	f.mu.Lock()
	f.built++
	f.mu.Unlock()
	return root, nil
}

// BuildSubtreeContext is the asynchronous variant: it waits out the configured latency,
// honoring ctx, then builds.
func (f *Factory) BuildSubtreeContext(ctx context.Context, def world.LibraryAsset, overrides map[string]world.PartOverride) (*scenegraph.Node, error) {
	if f.opts.Latency > 0 {
		timer := time.NewTimer(f.opts.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.BuildSubtree(def, overrides)
}

// Placeholder returns a translucent box roughly the size of the asset.
func (f *Factory) Placeholder(def world.LibraryAsset) *scenegraph.Node {
	n := f.stub(def, MaterialPlaceholder, placeholderColor)
	n.Data.Placeholder = true
	return n
}

// ErrorPlaceholder returns a red box marking an asset that failed to build.
func (f *Factory) ErrorPlaceholder(def world.LibraryAsset, err error) *scenegraph.Node {
	n := f.stub(def, MaterialError, errorColor)
	n.Name = def.ID + " (error)"
	n.Data.Failed = true
	return n
}

func (f *Factory) stub(def world.LibraryAsset, material string, color rl.Color) *scenegraph.Node {
	root := scenegraph.New(def.ID)
	root.Data.LibraryID = def.ID
	body := scenegraph.NewMesh("stub", &scenegraph.Mesh{
		Geometry: "cube",
		Material: material,
		Color:    color,
		Bounds:   unitBounds("cube"),
	})
	body.Scale = sizeOf(def.Size)
	root.Add(body)
	return root
}

// DisposeSubtree releases every mesh of node. The caller removes node from the scene first.
func (f *Factory) DisposeSubtree(node *scenegraph.Node) {
	if node == nil {
		return
	}
	node.ReleaseMeshes()
	f.mu.Lock()
	f.disposed++
	f.mu.Unlock()
	if f.opts.OnRelease != nil {
		f.opts.OnRelease(node)
	}
}

// Reset drops the resolved-definition cache, e.g. after the GPU device was lost.
func (f *Factory) Reset() {
	f.mu.Lock()
	clear(f.specs)
	f.mu.Unlock()
}

// Counts returns how many subtrees were built and disposed.
func (f *Factory) Counts() (built, disposed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built, f.disposed
}

func (f *Factory) resolve(def world.LibraryAsset) ([]partSpec, error) {
	key := fmt.Sprintf("%+v", def)
	f.mu.Lock()
	specs, ok := f.specs[key]
	f.mu.Unlock()
	if ok {
		return specs, nil
	}

	color := colorOr(def.Color, defaultColor)
	switch def.Kind {
	case "cube", "sphere", "cylinder", "plane":
		specs = []partSpec{{name: "body", geometry: def.Kind, color: color, size: sizeOf(def.Size)}}
	case "composite":
		if len(def.Parts) == 0 {
			return nil, fmt.Errorf("%s: composite without parts", def.DisplayName())
		}
		for _, p := range def.Parts {
			if !isPrimitive(p.Kind) {
				return nil, fmt.Errorf("%s: part %s: %w %q", def.DisplayName(), p.Name, ErrUnknownKind, p.Kind)
			}
			specs = append(specs, partSpec{
				name:       p.Name,
				geometry:   p.Kind,
				color:      colorOr(p.Color, color),
				offset:     rl.NewVector3(p.Offset[0], p.Offset[1], p.Offset[2]),
				size:       sizeOf(p.Size),
				selectable: p.Name != "",
			})
		}
	case "character":
		h := sizeOf(def.Size)
		specs = []partSpec{
			{name: "body", geometry: "cylinder", color: color, offset: rl.NewVector3(0, h.Y*0.35, 0), size: rl.NewVector3(h.X*0.6, h.Y*0.7, h.Z*0.6), selectable: true},
			{name: "head", geometry: "sphere", color: colorOr("#f0c8a0", color), offset: rl.NewVector3(0, h.Y*0.85, 0), size: rl.NewVector3(h.X*0.35, h.Y*0.3, h.Z*0.35), selectable: true},
		}
	default:
		return nil, fmt.Errorf("%s: %w %q", def.DisplayName(), ErrUnknownKind, def.Kind)
	}

	f.mu.Lock()
	f.specs[key] = specs
	f.mu.Unlock()
	return specs, nil
}

func isPrimitive(kind string) bool {
	switch kind {
	case "cube", "sphere", "cylinder", "plane":
		return true
	}
	return false
}

// unitBounds returns the local bounds of a unit primitive, centered on the origin.
func unitBounds(geometry string) rl.BoundingBox {
	if geometry == "plane" {
		return scenegraph.BoxBounds(rl.NewVector3(1, 0.01, 1))
	}
	return scenegraph.BoxBounds(rl.NewVector3(1, 1, 1))
}

// sizeOf treats zero components as 1.
func sizeOf(s [3]float32) rl.Vector3 {
	v := rl.NewVector3(s[0], s[1], s[2])
	if v.X <= 0 {
		v.X = 1
	}
	if v.Y <= 0 {
		v.Y = 1
	}
	if v.Z <= 0 {
		v.Z = 1
	}
	return v
}
