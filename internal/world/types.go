package world

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/jinzhu/copier"
)

// ErrUnknownAsset is reported when an instance refers to a library id that is not defined.
var ErrUnknownAsset = errors.New("world: unknown library asset")

// InstanceRecord is one placed copy of a library asset. Records are owned by the world
// model outside the engine; the engine reads them and reports edits back.
type InstanceRecord struct {
	InstanceID    string                  `yaml:"id"`
	LibraryID     string                  `yaml:"asset"`
	Position      [3]float32              `yaml:"position"`
	Rotation      float32                 `yaml:"rotation,omitempty"` // yaw in radians
	Scale         float32                 `yaml:"scale,omitempty"`
	PartOverrides map[string]PartOverride `yaml:"parts,omitempty"`
}

// UniformScale returns Scale, treating zero or negative as 1.
func (r InstanceRecord) UniformScale() float32 {
	if r.Scale <= 0 {
		return 1
	}
	return r.Scale
}

// PartOverride tweaks one named part of an instance.
type PartOverride struct {
	Color  string  `yaml:"color,omitempty"`
	Scale  float32 `yaml:"scale,omitempty"`
	Hidden bool    `yaml:"hidden,omitempty"`
}

// PartDef is one mesh of a composite asset, positioned relative to the asset origin.
type PartDef struct {
	Name   string     `yaml:"name"`
	Kind   string     `yaml:"kind"`
	Offset [3]float32 `yaml:"offset,omitempty"`
	Size   [3]float32 `yaml:"size,omitempty"`
	Color  string     `yaml:"color,omitempty"`
}

// LibraryAsset describes something that can be placed. Kind is a primitive type
// (cube, sphere, cylinder, plane), "composite" (built from Parts), or "character".
type LibraryAsset struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name,omitempty"`
	Kind      string     `yaml:"kind"`
	Size      [3]float32 `yaml:"size,omitempty"`
	Color     string     `yaml:"color,omitempty"`
	Parts     []PartDef  `yaml:"parts,omitempty"`
	Animation string     `yaml:"animation,omitempty"` // "", spin, bob, walk
	Character bool       `yaml:"character,omitempty"`
}

// DisplayName returns Name, or ID when Name is empty.
func (a LibraryAsset) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// Equal reports whether a and b describe the same asset.
func (a LibraryAsset) Equal(b LibraryAsset) bool {
	pa, pb := a.Parts, b.Parts
	a.Parts, b.Parts = nil, nil
	return a == b && slices.Equal(pa, pb)
}

// OverridesEqual reports whether two part override sets are the same. Nil and empty are equal.
func OverridesEqual(a, b map[string]PartOverride) bool {
	return maps.Equal(a, b)
}

// Snapshot is the world state handed to the engine on every sync.
type Snapshot struct {
	Library   []LibraryAsset   `yaml:"library"`
	Instances []InstanceRecord `yaml:"instances"`
}

// Clone returns a deep copy so the engine never aliases the caller's slices and maps.
func (s Snapshot) Clone() (Snapshot, error) {
	var out Snapshot
	if err := copier.CopyWithOption(&out, &s, copier.Option{DeepCopy: true}); err != nil {
		return Snapshot{}, fmt.Errorf("clone snapshot: %w", err)
	}
	return out, nil
}

// Asset returns the library entry with the given id.
func (s Snapshot) Asset(id string) (LibraryAsset, bool) {
	for _, a := range s.Library {
		if a.ID == id {
			return a, true
		}
	}
	return LibraryAsset{}, false
}

// Instance returns the placed instance with the given id.
func (s Snapshot) Instance(id string) (InstanceRecord, bool) {
	for _, r := range s.Instances {
		if r.InstanceID == id {
			return r, true
		}
	}
	return InstanceRecord{}, false
}

// ApplyEdit writes an edited transform back into the record with the given id.
// Returns false if the id is not present.
func (s *Snapshot) ApplyEdit(id string, t EditedTransform) bool {
	for i := range s.Instances {
		if s.Instances[i].InstanceID == id {
			s.Instances[i].Position = t.Position
			s.Instances[i].Rotation = t.RotationYaw
			s.Instances[i].Scale = t.Scale
			return true
		}
	}
	return false
}

// Remove deletes the instance with the given id. Returns false if it was not present.
func (s *Snapshot) Remove(id string) bool {
	for i := range s.Instances {
		if s.Instances[i].InstanceID == id {
			s.Instances = append(s.Instances[:i], s.Instances[i+1:]...)
			return true
		}
	}
	return false
}

// Place appends a new instance of libraryID at position with a generated id
// "<libraryID>-<n>", using the lowest n not already taken.
func (s *Snapshot) Place(libraryID string, position [3]float32) (InstanceRecord, error) {
	if _, ok := s.Asset(libraryID); !ok {
		return InstanceRecord{}, fmt.Errorf("place %q: %w", libraryID, ErrUnknownAsset)
	}
	taken := make(map[string]bool, len(s.Instances))
	for _, r := range s.Instances {
		taken[r.InstanceID] = true
	}
	var id string
	for n := 1; ; n++ {
		id = fmt.Sprintf("%s-%d", libraryID, n)
		if !taken[id] {
			break
		}
	}
	rec := InstanceRecord{InstanceID: id, LibraryID: libraryID, Position: position, Scale: 1}
	s.Instances = append(s.Instances, rec)
	return rec, nil
}

// EditedTransform is a committed transform edit in world-model units: position relative to
// the terrain surface, yaw in radians, uniform scale.
type EditedTransform struct {
	Position    [3]float32
	RotationYaw float32
	Scale       float32
}
