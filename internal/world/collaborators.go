package world

import (
	"context"

	"world-builder/internal/scenegraph"
)

// TerrainSampler answers ground elevation queries.
type TerrainSampler interface {
	Height(x, z float32) float32
}

// FlatTerrain is a TerrainSampler at a constant height.
type FlatTerrain float32

// Height returns the constant elevation.
func (f FlatTerrain) Height(x, z float32) float32 {
	return float32(f)
}

// AssetFactory builds renderable subtrees from library definitions and releases them.
// BuildSubtreeContext runs on a construction goroutine; DisposeSubtree may be called from
// any goroutine.
type AssetFactory interface {
	BuildSubtree(def LibraryAsset, overrides map[string]PartOverride) (*scenegraph.Node, error)
	BuildSubtreeContext(ctx context.Context, def LibraryAsset, overrides map[string]PartOverride) (*scenegraph.Node, error)
	// Placeholder is the lightweight stand-in shown while construction runs.
	Placeholder(def LibraryAsset) *scenegraph.Node
	// ErrorPlaceholder is the visible stand-in for an asset that failed to build.
	ErrorPlaceholder(def LibraryAsset, err error) *scenegraph.Node
	DisposeSubtree(node *scenegraph.Node)
}
