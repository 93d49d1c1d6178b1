// Package client holds the pieces a game client runs locally: the input
// predictor that keeps the local car responsive between snapshots, and the
// interpolator that smooths remote cars. The predictor owns all of its
// state; nothing here is shared with the server beyond the physics package.
package client

import (
	"math"

	"slipstream/geom"
	"slipstream/physics"
	"slipstream/protocol"
)

// pendingInput is one unacknowledged input plus the state predicted after
// applying it. Reconciliation compares the server's result for a sequence
// against what was predicted at that same sequence, so latency does not
// masquerade as misprediction.
type pendingInput struct {
	in  physics.Input
	pos geom.Vec2
	rot float64
	vel geom.Vec2
}

// Predictor simulates the local car ahead of the server. Its coordinates
// are unbounded: on wrap-around tracks the server rebases positions into
// [0,W)x[0,H) while the predictor keeps counting, so the local display never
// jumps at the seam.
type Predictor struct {
	car     physics.Car
	pending []pendingInput

	trackW, trackH float64
	wrap           bool

	accumulator float64
	lastInput   physics.Input

	lastCorrectionDist float64
}

// NewPredictor seeds a predictor from the authoritative spawn snapshot.
func NewPredictor(snap protocol.CarStateSnapshot, trackW, trackH float64, wrap bool) *Predictor {
	p := &Predictor{
		trackW: trackW,
		trackH: trackH,
		wrap:   wrap,
	}
	p.adopt(snap)
	return p
}

func (p *Predictor) adopt(snap protocol.CarStateSnapshot) {
	p.car.ID = snap.ID
	p.car.PlayerID = snap.PlayerID
	p.car.Position = geom.Vec2{X: snap.X, Y: snap.Y}
	p.car.Rotation = snap.Rotation
	p.car.Velocity = geom.Vec2{X: snap.VX, Y: snap.VY}
	p.car.AngularVelocity = snap.AngularVelocity
	p.car.Speed = snap.Speed
	p.car.Nitro = float64(snap.Nitro)
	p.car.Lap = snap.Lap
	p.car.Checkpoint = snap.Checkpoint
	p.car.Finished = snap.Finished
	p.car.Layer = snap.Layer
}

// ApplyInput steps the local simulation immediately with the new input and
// records the outcome for later reconciliation. The unacknowledged window is
// bounded; when the server falls too far behind, the oldest predictions are
// abandoned rather than growing the queue.
func (p *Predictor) ApplyInput(in physics.Input) {
	p.lastInput = in
	physics.Step(&p.car, in)
	p.car.LastInputSequence = in.Sequence

	p.pending = append(p.pending, pendingInput{
		in:  in,
		pos: p.car.Position,
		rot: p.car.Rotation,
		vel: p.car.Velocity,
	})
	if len(p.pending) > physics.MaxPendingInputs {
		p.pending = p.pending[len(p.pending)-physics.MaxPendingInputs:]
	}
	p.accumulator = 0
}

// Advance runs fixed steps with the held input for frames where no fresh
// input was produced, keeping the display moving between key events.
func (p *Predictor) Advance(deltaMs float64) {
	p.accumulator += deltaMs
	for p.accumulator >= physics.DTMillis {
		p.accumulator -= physics.DTMillis
		physics.Step(&p.car, p.lastInput)
	}
}

// Reconcile folds one authoritative snapshot of the local car into the
// prediction. The server position is first unwrapped into the predictor's
// unbounded frame, then compared against the state predicted at the
// acknowledged sequence. Small errors are blended, a dead zone leaves
// sub-pixel noise alone, and anything past the snap threshold (respawns,
// teleports) replaces the prediction outright.
func (p *Predictor) Reconcile(snap protocol.CarStateSnapshot) {
	if !validSnapshot(snap) {
		return
	}

	ref := p.car.Position
	if n := p.ackIndex(snap.LastInputSequence); n >= 0 {
		ref = p.pending[n].pos
	}
	p.dropAcked(snap.LastInputSequence)

	server := geom.Vec2{X: snap.X, Y: snap.Y}
	if p.wrap {
		server = geom.NearestWrapped(ref, server, p.trackW, p.trackH)
	}

	err := server.Sub(ref)
	dist := err.Len()
	p.lastCorrectionDist = dist

	switch {
	case dist > physics.SnapThreshold:
		p.car.Position = server
		p.car.Rotation = snap.Rotation
		p.car.Velocity = geom.Vec2{X: snap.VX, Y: snap.VY}
		p.car.AngularVelocity = snap.AngularVelocity
		p.pending = nil
	case dist > physics.PositionDeadZone:
		p.car.Position = p.car.Position.Add(err.Scale(physics.PositionBlendFactor))
		fallthrough
	default:
		p.car.Velocity = geom.LerpVec(p.car.Velocity,
			geom.Vec2{X: snap.VX, Y: snap.VY}, physics.VelocityBlendFactor)
		p.car.AngularVelocity = geom.Lerp(p.car.AngularVelocity,
			snap.AngularVelocity, physics.AngularBlendFactor)
		p.car.Rotation = geom.LerpAngle(p.car.Rotation,
			snap.Rotation, physics.RotationBlendFactor)
	}

	// Progress and resources are the server's alone.
	p.car.Nitro = float64(snap.Nitro)
	p.car.Lap = snap.Lap
	p.car.Checkpoint = snap.Checkpoint
	p.car.Rank = snap.PositionRank
	p.car.Finished = snap.Finished
	p.car.Layer = snap.Layer
}

// OnRespawn handles the server's respawn event: adopt the authoritative
// state, zero all motion, and discard every unacknowledged input, which
// predates the teleport and must not be replayed or blended.
func (p *Predictor) OnRespawn(snap protocol.CarStateSnapshot) {
	p.adopt(snap)
	p.car.Velocity = geom.Vec2{}
	p.car.AngularVelocity = 0
	p.car.Speed = 0
	p.pending = nil
	p.lastInput = physics.Input{}
	p.lastCorrectionDist = 0
}

func (p *Predictor) ackIndex(seq uint32) int {
	for i := len(p.pending) - 1; i >= 0; i-- {
		if p.pending[i].in.Sequence == seq {
			return i
		}
	}
	return -1
}

func (p *Predictor) dropAcked(seq uint32) {
	keep := p.pending[:0]
	for _, entry := range p.pending {
		if entry.in.Sequence > seq {
			keep = append(keep, entry)
		}
	}
	p.pending = keep
}

// State returns a copy of the predicted car.
func (p *Predictor) State() physics.Car { return p.car }

// DisplayPosition returns the render position. Unbounded like the internal
// state; callers doing torus rendering apply modulo at draw time.
func (p *Predictor) DisplayPosition() geom.Vec2 { return p.car.Position }

// LastCorrectionDist reports the most recent reconciliation error, a
// debugging signal for netcode health.
func (p *Predictor) LastCorrectionDist() float64 { return p.lastCorrectionDist }

// PendingCount returns the number of unacknowledged inputs.
func (p *Predictor) PendingCount() int { return len(p.pending) }

// validSnapshot rejects non-finite authoritative values before they can
// poison the simulation.
func validSnapshot(snap protocol.CarStateSnapshot) bool {
	for _, v := range []float64{snap.X, snap.Y, snap.Rotation, snap.VX, snap.VY, snap.AngularVelocity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
