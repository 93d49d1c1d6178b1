package protocol

import (
	"slipstream/physics"
)

// CarStateSnapshot is the compact per-car record inside each broadcast.
// Floats are quantized (see quantize.go); integer fields are exact.
type CarStateSnapshot struct {
	ID       string `json:"id"`
	PlayerID string `json:"playerId"`

	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`

	VX              float64 `json:"vx"`
	VY              float64 `json:"vy"`
	AngularVelocity float64 `json:"angularVelocity"`
	SteeringAngle   float64 `json:"steeringAngle"`
	Speed           float64 `json:"speed"`

	Nitro  int `json:"nitro"`
	Damage int `json:"damage"`

	Lap          int  `json:"lap"`
	Checkpoint   int  `json:"checkpoint"`
	PositionRank int  `json:"positionRank"`
	Finished     bool `json:"finished"`
	Layer        int  `json:"layer"`

	LastInputSequence uint32 `json:"lastInputSequence"`
}

// SnapshotCar converts authoritative car state into its wire record.
// steeringAngle mirrors the steering input currently acted on.
func SnapshotCar(car *physics.Car, steeringAngle float64) CarStateSnapshot {
	return CarStateSnapshot{
		ID:       car.ID,
		PlayerID: car.PlayerID,

		X:        Quantize(car.Position.X, PositionStep),
		Y:        Quantize(car.Position.Y, PositionStep),
		Rotation: Quantize(car.Rotation, AngleStep),

		VX:              Quantize(car.Velocity.X, VelocityStep),
		VY:              Quantize(car.Velocity.Y, VelocityStep),
		AngularVelocity: Quantize(car.AngularVelocity, AngleStep),
		SteeringAngle:   Quantize(steeringAngle, AngleStep),
		Speed:           Quantize(car.Speed, SpeedStep),

		Nitro: int(car.Nitro),

		Lap:          car.Lap,
		Checkpoint:   car.Checkpoint,
		PositionRank: car.Rank,
		Finished:     car.Finished,
		Layer:        car.Layer,

		LastInputSequence: car.LastInputSequence,
	}
}

// GameStateSnapshot is one 20 Hz broadcast: every car plus the events fired
// since the previous snapshot, in emit order. Sequence starts at 1 and
// increases by exactly one per broadcast per room.
type GameStateSnapshot struct {
	Sequence  uint64             `json:"sequence"`
	Timestamp int64              `json:"timestamp"`
	GameState string             `json:"gameState"`
	ElapsedMs int64              `json:"elapsedMs"`
	Cars      []CarStateSnapshot `json:"cars"`
	Events    []Event            `json:"events"`
}

// Event is a race occurrence bundled into the next snapshot. Type selects
// which optional fields are meaningful.
type Event struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId,omitempty"`
	// TimeMs is milliseconds since race start.
	TimeMs int64 `json:"time,omitempty"`

	Checkpoint *int   `json:"checkpoint,omitempty"`
	Lap        *int   `json:"lap,omitempty"`
	LapTimeMs  *int64 `json:"lapTime,omitempty"`
	Position   *int   `json:"position,omitempty"`
	TotalMs    *int64 `json:"totalTime,omitempty"`

	// OtherID names the second participant for collision events.
	OtherID string `json:"otherId,omitempty"`
}

// Event type tags. Race events share the message kind names so clients can
// route them through one handler table.
const (
	EventCheckpoint = KindCheckpointPassed
	EventLap        = KindLapCompleted
	EventFinish     = KindPlayerFinished
	EventRespawn    = "respawn"
	EventCollision  = KindCollision
)
