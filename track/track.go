// Package track models the static racing surface: dimensions, the toroidal
// wrap flag, and the ordered list of typed elements (road, walls,
// checkpoints, finish, spawns, hazards). Tracks are immutable during a race;
// rooms hold a pointer and never write through it.
package track

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"slipstream/geom"
)

type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyExtreme Difficulty = "extreme"
)

type ElementType string

const (
	Road       ElementType = "road"
	RoadCurve  ElementType = "road_curve"
	Wall       ElementType = "wall"
	Checkpoint ElementType = "checkpoint"
	Finish     ElementType = "finish"
	Boost      ElementType = "boost"
	Oil        ElementType = "oil"
	Spawn      ElementType = "spawn"
	Ramp       ElementType = "ramp"
	RampUp     ElementType = "ramp_up"
	RampDown   ElementType = "ramp_down"
	Bridge     ElementType = "bridge"
	Barrier    ElementType = "barrier"
	TireStack  ElementType = "tire_stack"
	PitStop    ElementType = "pit_stop"
)

// typeAliases maps legacy wire names onto canonical element types. Applied
// once when a track is decoded.
var typeAliases = map[ElementType]ElementType{
	"boost_pad": Boost,
	"oil_slick": Oil,
}

// editorOnly element types never persist; the editor carries them for its
// own bookkeeping and they are stripped at ingress.
var editorOnly = map[ElementType]bool{
	"select": true,
	"car":    true,
}

// Element is one placed track piece. X,Y is the element center in track
// coordinates; Width and Height span the axis-aligned bounding rectangle.
type Element struct {
	ID       string      `json:"id"`
	Type     ElementType `json:"type"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Position *geom.Vec2  `json:"position,omitempty"`
	Width    float64     `json:"width"`
	Height   float64     `json:"height"`
	// Rotation is radians.
	Rotation        float64        `json:"rotation"`
	Layer           *int           `json:"layer,omitempty"`
	CheckpointIndex *int           `json:"checkpointIndex,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
}

// Center returns the element center point.
func (e *Element) Center() geom.Vec2 {
	return geom.Vec2{X: e.X, Y: e.Y}
}

// Radius is the circumscribed-circle radius used for proximity arbitration
// (checkpoints, finish line).
func (e *Element) Radius() float64 {
	return math.Max(e.Width, e.Height) / 2
}

// Contains reports whether p falls within the element's circumscribed circle.
func (e *Element) Contains(p geom.Vec2) bool {
	return p.Dist(e.Center()) <= e.Radius()
}

// Track is a complete course description as stored and as shipped to clients
// at race start.
type Track struct {
	ID              string     `json:"id"`
	Version         int        `json:"version"`
	Name            string     `json:"name"`
	Author          string     `json:"author"`
	CreatedAt       int64      `json:"createdAt"`
	UpdatedAt       int64      `json:"updatedAt"`
	Difficulty      Difficulty `json:"difficulty"`
	DefaultLapCount int        `json:"defaultLapCount"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	WrapAround      bool       `json:"wrapAround,omitempty"`
	Elements        []Element  `json:"elements"`
	Scenery         []Element  `json:"scenery"`
}

// minSpawnSpacing is the closest two spawn points may sit; anything tighter
// stacks cars inside each other at race start.
const minSpawnSpacing = 40.0

var (
	ErrNoFinish          = errors.New("track has no finish element")
	ErrNoSpawn           = errors.New("track has no spawn element")
	ErrBadCheckpoints    = errors.New("checkpoint indices are not a contiguous 0..n-1 sequence")
	ErrSpawnsTooClose    = errors.New("spawn elements are closer than the minimum spacing")
	ErrBadDimensions     = errors.New("track dimensions must be positive")
	ErrBadVersion        = errors.New("track version must be at least 1")
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	ErrUnknownElement    = errors.New("unknown element type")
)

// Normalize rewrites a freshly decoded track into canonical form: legacy
// type aliases are renamed, editor-only elements dropped, and the redundant
// position field reconciled with x/y (position wins when present).
func (t *Track) Normalize() {
	t.Elements = normalizeElements(t.Elements)
	t.Scenery = normalizeElements(t.Scenery)
}

func normalizeElements(elements []Element) []Element {
	out := elements[:0]
	for _, e := range elements {
		if editorOnly[e.Type] {
			continue
		}
		if canonical, ok := typeAliases[e.Type]; ok {
			e.Type = canonical
		}
		if e.Position != nil {
			e.X, e.Y = e.Position.X, e.Position.Y
		} else {
			e.Position = &geom.Vec2{X: e.X, Y: e.Y}
		}
		out = append(out, e)
	}
	return out
}

// Validate enforces the structural invariants a race depends on. Call after
// Normalize.
func (t *Track) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return ErrBadDimensions
	}
	if t.Version < 1 {
		return ErrBadVersion
	}
	switch t.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExtreme:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDifficulty, t.Difficulty)
	}

	known := map[ElementType]bool{
		Road: true, RoadCurve: true, Wall: true, Checkpoint: true,
		Finish: true, Boost: true, Oil: true, Spawn: true, Ramp: true,
		RampUp: true, RampDown: true, Bridge: true, Barrier: true,
		TireStack: true, PitStop: true,
	}
	for _, e := range t.Elements {
		if !known[e.Type] {
			return fmt.Errorf("%w: %q (element %s)", ErrUnknownElement, e.Type, e.ID)
		}
		if e.Layer != nil && (*e.Layer < -1 || *e.Layer > 2) {
			return fmt.Errorf("element %s: layer %d out of range", e.ID, *e.Layer)
		}
		if math.IsNaN(e.Rotation) || math.IsInf(e.Rotation, 0) {
			return fmt.Errorf("element %s: rotation is not finite", e.ID)
		}
	}

	if t.FinishLine() == nil {
		return ErrNoFinish
	}

	spawns := t.Spawns()
	if len(spawns) == 0 {
		return ErrNoSpawn
	}
	for i := range spawns {
		for j := i + 1; j < len(spawns); j++ {
			if spawns[i].Center().Dist(spawns[j].Center()) < minSpawnSpacing {
				return ErrSpawnsTooClose
			}
		}
	}

	checkpoints := t.Checkpoints()
	for i, cp := range checkpoints {
		if cp.CheckpointIndex == nil || *cp.CheckpointIndex != i {
			return ErrBadCheckpoints
		}
	}

	return nil
}

// Checkpoints returns checkpoint elements sorted by checkpointIndex.
// Elements missing an index sort last and fail Validate.
func (t *Track) Checkpoints() []*Element {
	var cps []*Element
	for i := range t.Elements {
		if t.Elements[i].Type == Checkpoint {
			cps = append(cps, &t.Elements[i])
		}
	}
	sort.SliceStable(cps, func(i, j int) bool {
		a, b := cps[i].CheckpointIndex, cps[j].CheckpointIndex
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
	return cps
}

// FinishLine returns the finish element, or nil.
func (t *Track) FinishLine() *Element {
	for i := range t.Elements {
		if t.Elements[i].Type == Finish {
			return &t.Elements[i]
		}
	}
	return nil
}

// Spawns returns spawn elements in declaration order.
func (t *Track) Spawns() []*Element {
	var spawns []*Element
	for i := range t.Elements {
		if t.Elements[i].Type == Spawn {
			spawns = append(spawns, &t.Elements[i])
		}
	}
	return spawns
}

// SpawnAt picks a spawn round-robin by index, so successive race starts
// rotate players over the grid.
func (t *Track) SpawnAt(i int) *Element {
	spawns := t.Spawns()
	if len(spawns) == 0 {
		return nil
	}
	return spawns[i%len(spawns)]
}

// SurfaceAt reports the boost and oil elements under p on the given layer.
// Unlayered elements apply on every layer.
func (t *Track) SurfaceAt(p geom.Vec2, layer int) (boost, oil bool) {
	for i := range t.Elements {
		e := &t.Elements[i]
		if e.Type != Boost && e.Type != Oil {
			continue
		}
		if e.Layer != nil && *e.Layer != layer {
			continue
		}
		if !e.Contains(p) {
			continue
		}
		if e.Type == Boost {
			boost = true
		} else {
			oil = true
		}
	}
	return boost, oil
}
