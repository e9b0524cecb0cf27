package main

import (
	"fmt"

	"world-builder/internal/logger"
	"world-builder/internal/picking"
	"world-builder/internal/world"
)

// session owns the world model on the host side. The engine reports edits and clicks; the
// session writes them into the snapshot and hands the result back through setWorld.
type session struct {
	snap     world.Snapshot
	path     string
	brush    string
	log      *logger.Logger
	setWorld func(world.Snapshot) error
}

func (s *session) publish() {
	if s.setWorld == nil {
		return
	}
	if err := s.setWorld(s.snap); err != nil {
		s.log.Logf("world: %v", err)
	}
}

// edit records a committed gizmo edit.
func (s *session) edit(id string, t world.EditedTransform) {
	if !s.snap.ApplyEdit(id, t) {
		s.log.Logf("world: edit for unknown instance %s", id)
		return
	}
	s.publish()
}

// groundClick places the brush asset at the clicked tile. Without a brush it only reports the tile.
func (s *session) groundClick(hit picking.Hit) {
	if s.brush == "" {
		s.log.Logf("%s tile %d,%d", hit.Kind, hit.Tile[0], hit.Tile[1])
		return
	}
	rec, err := s.snap.Place(s.brush, [3]float32{hit.Point.X, 0, hit.Point.Z})
	if err != nil {
		s.log.Logf("world: %v", err)
		return
	}
	s.log.Logf("placed %s at %.1f,%.1f", rec.InstanceID, hit.Point.X, hit.Point.Z)
	s.publish()
}

// setBrush selects the asset placed by ground clicks; "" turns placement off.
func (s *session) setBrush(libraryID string) error {
	if libraryID != "" {
		if _, ok := s.snap.Asset(libraryID); !ok {
			return fmt.Errorf("brush: %w %q", world.ErrUnknownAsset, libraryID)
		}
	}
	s.brush = libraryID
	return nil
}

func (s *session) remove(id string) error {
	if !s.snap.Remove(id) {
		return fmt.Errorf("delete: no instance %q", id)
	}
	s.publish()
	return nil
}

// reload replaces the model with a snapshot read from disk after an external change. A brush
// whose asset no longer exists is cleared.
func (s *session) reload(snap world.Snapshot, err error) {
	if err != nil {
		s.log.Logf("world: reload %s: %v", s.path, err)
		return
	}
	s.snap = snap
	if s.brush != "" {
		if _, ok := s.snap.Asset(s.brush); !ok {
			s.log.Logf("brush: %s removed from library", s.brush)
			s.brush = ""
		}
	}
	s.log.Logf("world %s reloaded: %d instances", s.path, len(snap.Instances))
	s.publish()
}

func (s *session) save() error {
	return world.SaveSnapshot(s.path, s.snap)
}
