package track

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"slipstream/geom"
)

func validTrackJSON() []byte {
	return []byte(`{
		"id": "t1",
		"version": 1,
		"name": "Test Loop",
		"author": "tester",
		"difficulty": "medium",
		"defaultLapCount": 2,
		"width": 800,
		"height": 600,
		"elements": [
			{"id": "f", "type": "finish", "x": 180, "y": 420, "width": 120, "height": 20, "rotation": 0},
			{"id": "c0", "type": "checkpoint", "x": 180, "y": 300, "width": 100, "height": 20, "rotation": 0, "checkpointIndex": 0},
			{"id": "c1", "type": "checkpoint", "x": 180, "y": 200, "width": 100, "height": 20, "rotation": 0, "checkpointIndex": 1},
			{"id": "s0", "type": "spawn", "x": 180, "y": 470, "width": 30, "height": 20, "rotation": 0},
			{"id": "b0", "type": "boost_pad", "x": 300, "y": 300, "width": 40, "height": 40, "rotation": 0},
			{"id": "o0", "type": "oil_slick", "x": 400, "y": 300, "width": 40, "height": 40, "rotation": 0},
			{"id": "e0", "type": "select", "x": 0, "y": 0, "width": 10, "height": 10, "rotation": 0},
			{"id": "e1", "type": "car", "x": 0, "y": 0, "width": 10, "height": 10, "rotation": 0}
		],
		"scenery": []
	}`)
}

func TestDecode(t *testing.T) {
	Convey("When a track file is decoded", t, func() {
		tr, err := Decode(validTrackJSON())
		So(err, ShouldBeNil)

		Convey("Legacy aliases normalize to canonical types", func() {
			types := map[ElementType]int{}
			for _, e := range tr.Elements {
				types[e.Type]++
			}
			So(types[Boost], ShouldEqual, 1)
			So(types[Oil], ShouldEqual, 1)
			So(types["boost_pad"], ShouldEqual, 0)
			So(types["oil_slick"], ShouldEqual, 0)
		})

		Convey("Editor-only elements are stripped", func() {
			for _, e := range tr.Elements {
				So(e.Type, ShouldNotEqual, ElementType("select"))
				So(e.Type, ShouldNotEqual, ElementType("car"))
			}
		})

		Convey("The position field is populated from x/y", func() {
			for _, e := range tr.Elements {
				So(e.Position, ShouldNotBeNil)
				So(e.Position.X, ShouldAlmostEqual, e.X)
				So(e.Position.Y, ShouldAlmostEqual, e.Y)
			}
		})

		Convey("An explicit position overrides x/y", func() {
			moved, err := Decode([]byte(`{
				"id": "t2", "version": 1, "name": "n", "author": "a",
				"difficulty": "easy", "defaultLapCount": 1,
				"width": 100, "height": 100,
				"elements": [
					{"id": "f", "type": "finish", "x": 1, "y": 1, "position": {"x": 50, "y": 60}, "width": 20, "height": 20, "rotation": 0},
					{"id": "s", "type": "spawn", "x": 10, "y": 10, "width": 10, "height": 10, "rotation": 0}
				],
				"scenery": []
			}`))
			So(err, ShouldBeNil)
			So(moved.Elements[0].X, ShouldAlmostEqual, 50)
			So(moved.Elements[0].Y, ShouldAlmostEqual, 60)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("When tracks are validated", t, func() {
		base := func() *Track {
			tr, err := Decode(validTrackJSON())
			So(err, ShouldBeNil)
			return tr
		}

		Convey("A well-formed track passes", func() {
			So(base().Validate(), ShouldBeNil)
		})

		Convey("A missing finish is rejected", func() {
			tr := base()
			var kept []Element
			for _, e := range tr.Elements {
				if e.Type != Finish {
					kept = append(kept, e)
				}
			}
			tr.Elements = kept
			So(tr.Validate(), ShouldEqual, ErrNoFinish)
		})

		Convey("A missing spawn is rejected", func() {
			tr := base()
			var kept []Element
			for _, e := range tr.Elements {
				if e.Type != Spawn {
					kept = append(kept, e)
				}
			}
			tr.Elements = kept
			So(tr.Validate(), ShouldEqual, ErrNoSpawn)
		})

		Convey("A checkpoint gap is rejected", func() {
			tr := base()
			for i := range tr.Elements {
				if tr.Elements[i].ID == "c1" {
					tr.Elements[i].CheckpointIndex = intp(3)
				}
			}
			So(tr.Validate(), ShouldEqual, ErrBadCheckpoints)
		})

		Convey("Spawns stacked on top of each other are rejected", func() {
			tr := base()
			dup := element("s1", Spawn, 185, 470, 30, 20, 0)
			tr.Elements = append(tr.Elements, dup)
			So(tr.Validate(), ShouldEqual, ErrSpawnsTooClose)
		})

		Convey("Nonpositive dimensions are rejected", func() {
			tr := base()
			tr.Width = 0
			So(tr.Validate(), ShouldEqual, ErrBadDimensions)
		})

		Convey("Version zero is rejected", func() {
			tr := base()
			tr.Version = 0
			So(tr.Validate(), ShouldEqual, ErrBadVersion)
		})

		Convey("The built-in tracks pass their own validation", func() {
			for _, tr := range DefaultTracks() {
				tr.Normalize()
				So(tr.Validate(), ShouldBeNil)
			}
		})
	})
}

func TestProgressHelpers(t *testing.T) {
	Convey("When track query helpers are used", t, func() {
		tr, err := Decode(validTrackJSON())
		So(err, ShouldBeNil)

		Convey("Checkpoints come back ordered by index", func() {
			cps := tr.Checkpoints()
			So(len(cps), ShouldEqual, 2)
			So(*cps[0].CheckpointIndex, ShouldEqual, 0)
			So(*cps[1].CheckpointIndex, ShouldEqual, 1)
		})

		Convey("SpawnAt wraps round-robin", func() {
			So(tr.SpawnAt(0).ID, ShouldEqual, "s0")
			So(tr.SpawnAt(1).ID, ShouldEqual, "s0")
		})

		Convey("Containment uses the circumscribed circle", func() {
			f := tr.FinishLine()
			So(f.Contains(tr.SpawnAt(0).Center()), ShouldBeTrue) // within 60px
			So(f.Radius(), ShouldAlmostEqual, 60)
		})
	})
}

func TestSurfaceAt(t *testing.T) {
	Convey("Given a track with a boost pad and an oil slick", t, func() {
		tr, err := Decode(validTrackJSON())
		So(err, ShouldBeNil)

		Convey("Each element reports under its own footprint only", func() {
			boost, oil := tr.SurfaceAt(geom.Vec2{X: 300, Y: 300}, 0)
			So(boost, ShouldBeTrue)
			So(oil, ShouldBeFalse)

			boost, oil = tr.SurfaceAt(geom.Vec2{X: 400, Y: 300}, 0)
			So(boost, ShouldBeFalse)
			So(oil, ShouldBeTrue)

			boost, oil = tr.SurfaceAt(geom.Vec2{X: 600, Y: 100}, 0)
			So(boost, ShouldBeFalse)
			So(oil, ShouldBeFalse)
		})

		Convey("Layered elements apply on their own layer only", func() {
			layer := 1
			tr.Elements = append(tr.Elements, Element{
				ID: "b1", Type: Boost, X: 500, Y: 300, Width: 40, Height: 40, Layer: &layer,
			})
			boost, _ := tr.SurfaceAt(geom.Vec2{X: 500, Y: 300}, 0)
			So(boost, ShouldBeFalse)
			boost, _ = tr.SurfaceAt(geom.Vec2{X: 500, Y: 300}, 1)
			So(boost, ShouldBeTrue)
		})
	})
}
