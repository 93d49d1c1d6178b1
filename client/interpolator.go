package client

import (
	"slipstream/geom"
	"slipstream/physics"
	"slipstream/protocol"
)

// RemoteCar is the display state of another player's car, eased toward the
// latest snapshot each frame.
type RemoteCar struct {
	Position geom.Vec2
	Rotation float64
	Velocity geom.Vec2
	Speed    float64

	Lap        int
	Checkpoint int
	Rank       int
	Finished   bool
	Layer      int

	target protocol.CarStateSnapshot
	seeded bool
}

// Interpolator smooths remote cars between 20 Hz snapshots. Unlike the
// predictor it never simulates physics; it only eases display state toward
// the last authoritative values, snapping across teleports.
type Interpolator struct {
	cars   map[string]*RemoteCar
	trackW float64
	trackH float64
	wrap   bool
}

// NewInterpolator builds an interpolator for the given track bounds. On
// wrap-around tracks server positions are unwrapped into the display's frame
// before the teleport check, so a seam crossing eases instead of snapping.
func NewInterpolator(trackW, trackH float64, wrap bool) *Interpolator {
	return &Interpolator{
		cars:   make(map[string]*RemoteCar),
		trackW: trackW,
		trackH: trackH,
		wrap:   wrap,
	}
}

// Observe ingests one car record from a snapshot. Non-finite records are
// dropped. A jump past the teleport threshold (respawn, true teleport) snaps
// the display instead of easing across the map.
func (it *Interpolator) Observe(snap protocol.CarStateSnapshot) {
	if !validSnapshot(snap) {
		return
	}

	car, ok := it.cars[snap.ID]
	if !ok {
		car = &RemoteCar{}
		it.cars[snap.ID] = car
	}

	pos := geom.Vec2{X: snap.X, Y: snap.Y}
	if it.wrap && car.seeded {
		pos = geom.NearestWrapped(car.Position, pos, it.trackW, it.trackH)
	}
	car.target = snap
	car.target.X, car.target.Y = pos.X, pos.Y

	if !car.seeded || car.Position.Dist(pos) > physics.TeleportThreshold {
		car.Position = pos
		car.Rotation = snap.Rotation
		car.Velocity = geom.Vec2{X: snap.VX, Y: snap.VY}
		car.seeded = true
	}

	car.Lap = snap.Lap
	car.Checkpoint = snap.Checkpoint
	car.Rank = snap.PositionRank
	car.Finished = snap.Finished
	car.Layer = snap.Layer
}

// Advance eases every remote car toward its target. deltaMs is the frame
// time; blend factors are tuned per 60 Hz frame and scaled accordingly,
// capped so long frames cannot overshoot.
func (it *Interpolator) Advance(deltaMs float64) {
	scale := deltaMs / physics.DTMillis
	if scale > 1 {
		scale = 1
	}
	posFactor := 0.3 * scale
	rotFactor := 0.4 * scale

	for _, car := range it.cars {
		target := geom.Vec2{X: car.target.X, Y: car.target.Y}
		car.Position = geom.LerpVec(car.Position, target, posFactor)
		car.Rotation = geom.LerpAngle(car.Rotation, car.target.Rotation, rotFactor)
		car.Velocity = geom.LerpVec(car.Velocity,
			geom.Vec2{X: car.target.VX, Y: car.target.VY}, posFactor)
		car.Speed = geom.Lerp(car.Speed, car.target.Speed, posFactor)

		if it.wrap {
			it.rebase(car)
		}
	}
}

// rebase pulls a display that drifted past the seam back into the track
// frame, shifting its target by the same amount so the remaining ease is
// unchanged.
func (it *Interpolator) rebase(car *RemoteCar) {
	wrapped := geom.WrapPoint(car.Position, it.trackW, it.trackH)
	if wrapped == car.Position {
		return
	}
	car.target.X += wrapped.X - car.Position.X
	car.target.Y += wrapped.Y - car.Position.Y
	car.Position = wrapped
}

// Car returns the display state for an ID.
func (it *Interpolator) Car(id string) (*RemoteCar, bool) {
	car, ok := it.cars[id]
	return car, ok
}

// Forget drops a departed car.
func (it *Interpolator) Forget(id string) {
	delete(it.cars, id)
}
