package track

import "slipstream/geom"

// DefaultTrackID is the built-in course every server ships with. It cannot
// be deleted through the HTTP API and is the fallback whenever a room
// requests a track that does not exist.
const DefaultTrackID = "default-oval"

func intp(v int) *int { return &v }

func element(id string, typ ElementType, x, y, w, h, rot float64) Element {
	return Element{
		ID: id, Type: typ,
		X: x, Y: y,
		Position: &geom.Vec2{X: x, Y: y},
		Width:    w, Height: h,
		Rotation: rot,
	}
}

func checkpoint(id string, index int, x, y, w, h, rot float64) Element {
	e := element(id, Checkpoint, x, y, w, h, rot)
	e.CheckpointIndex = intp(index)
	return e
}

// DefaultTracks returns the built-in courses, freshly allocated so callers
// may register them in mutable stores.
func DefaultTracks() []*Track {
	return []*Track{defaultOval(), wrapSprint()}
}

// defaultOval is a plain counter-clockwise oval: finish on the bottom
// straight, three checkpoints around the loop, four grid slots.
func defaultOval() *Track {
	return &Track{
		ID:              DefaultTrackID,
		Version:         1,
		Name:            "Groundhog Oval",
		Author:          "slipstream",
		Difficulty:      DifficultyEasy,
		DefaultLapCount: 3,
		Width:           1600,
		Height:          1000,
		Elements: []Element{
			element("road-bottom", Road, 800, 850, 1200, 120, 0),
			element("road-top", Road, 800, 150, 1200, 120, 0),
			element("road-left", Road, 200, 500, 120, 600, 0),
			element("road-right", Road, 1400, 500, 120, 600, 0),
			element("curve-bl", RoadCurve, 200, 850, 120, 120, 0),
			element("curve-br", RoadCurve, 1400, 850, 120, 120, 0),
			element("curve-tl", RoadCurve, 200, 150, 120, 120, 0),
			element("curve-tr", RoadCurve, 1400, 150, 120, 120, 0),
			element("wall-infield", Wall, 800, 500, 900, 400, 0),
			element("finish", Finish, 700, 850, 120, 24, 0),
			checkpoint("cp-0", 0, 1400, 500, 140, 24, 0),
			checkpoint("cp-1", 1, 800, 150, 120, 24, 0),
			checkpoint("cp-2", 2, 200, 500, 140, 24, 0),
			element("spawn-0", Spawn, 760, 830, 30, 20, -1.5707963267948966),
			element("spawn-1", Spawn, 820, 830, 30, 20, -1.5707963267948966),
			element("spawn-2", Spawn, 760, 880, 30, 20, -1.5707963267948966),
			element("spawn-3", Spawn, 820, 880, 30, 20, -1.5707963267948966),
			element("boost-back", Boost, 800, 150, 80, 40, 0),
			element("oil-exit", Oil, 1350, 780, 60, 60, 0),
		},
		Scenery: []Element{
			element("tires-1", TireStack, 520, 500, 40, 40, 0),
			element("pit", PitStop, 980, 760, 160, 60, 0),
		},
	}
}

// wrapSprint is a toroidal drag strip exercising the wrap-around path: drive
// off the right edge and reappear on the left.
func wrapSprint() *Track {
	return &Track{
		ID:              "wrap-sprint",
		Version:         1,
		Name:            "Moebius Sprint",
		Author:          "slipstream",
		Difficulty:      DifficultyMedium,
		DefaultLapCount: 5,
		Width:           800,
		Height:          600,
		WrapAround:      true,
		Elements: []Element{
			element("road-strip", Road, 400, 300, 800, 160, 0),
			element("finish", Finish, 100, 300, 24, 160, 0),
			checkpoint("cp-0", 0, 400, 300, 24, 160, 0),
			checkpoint("cp-1", 1, 700, 300, 24, 160, 0),
			element("spawn-0", Spawn, 140, 270, 30, 20, 1.5707963267948966),
			element("spawn-1", Spawn, 140, 330, 30, 20, 1.5707963267948966),
			element("boost-mid", Boost, 550, 300, 60, 60, 0),
		},
		Scenery: nil,
	}
}
