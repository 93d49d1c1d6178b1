package physics

import (
	"time"

	"slipstream/geom"
)

// Input is one player input record. Sequence numbers are monotonic per
// player; the server keeps only the most recent record, the client keeps a
// bounded FIFO of unconfirmed ones for reconciliation.
//
// The legacy aliases (turnLeft/turnRight/boost) are not part of this record:
// normalization happens once at the wire boundary and conflicting aliased
// fields are rejected there.
type Input struct {
	Sequence   uint32  `json:"sequence"`
	Timestamp  int64   `json:"timestamp"`
	Accelerate bool    `json:"accelerate"`
	Brake      bool    `json:"brake"`
	SteerLeft  bool    `json:"steerLeft"`
	SteerRight bool    `json:"steerRight"`
	SteerValue float64 `json:"steerValue,omitempty"`
	Nitro      bool    `json:"nitro"`
	Handbrake  bool    `json:"handbrake"`
	Respawn    bool    `json:"respawn"`
}

// Steer resolves the scalar steering input in [-1,1]: the analog value wins
// when nonzero, otherwise the boolean keys.
func (in Input) Steer() float64 {
	if in.SteerValue != 0 {
		v := in.SteerValue
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		return v
	}
	var v float64
	if in.SteerLeft {
		v -= 1
	}
	if in.SteerRight {
		v += 1
	}
	return v
}

// Car is the per-player runtime state. It is created at race start from a
// spawn element, mutated only by the integrator and the race arbiter on the
// owning room's tick, and discarded at room reset.
type Car struct {
	ID       string
	PlayerID string

	Position        geom.Vec2
	Rotation        float64
	Velocity        geom.Vec2
	AngularVelocity float64
	// Speed caches Velocity.Len() as of the last step.
	Speed float64

	Nitro float64
	Layer int

	// Race progress, owned by the arbiter.
	Checkpoint       int
	Lap              int
	LapTimes         []time.Duration
	Finished         bool
	FinishTime       time.Duration
	Rank             int
	PassedFinishLine bool

	LastInputSequence uint32

	// Stuck detection baselines. LastPosition tracks the last notable
	// movement; StuckSince is zero while the car is making progress.
	LastPosition   geom.Vec2
	LastPositionAt time.Time
	StuckSince     time.Time
}

// Forward is the unit heading for a rotation: (sin θ, −cos θ). Rotation zero
// points up the screen.
func Forward(rotation float64) geom.Vec2 {
	s, c := sinCos(rotation)
	return geom.Vec2{X: s, Y: -c}
}

// ForwardSpeed is the signed speed along the car's heading; negative while
// reversing.
func (c *Car) ForwardSpeed() float64 {
	return c.Velocity.Dot(Forward(c.Rotation))
}
