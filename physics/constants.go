// Package physics implements the fixed-timestep car integrator shared by the
// authoritative room simulation and the client-side predictor. Both sides run
// the exact same Step with the exact same constants; reconciliation stays
// cheap only while that holds, so treat everything in this file as part of
// the wire contract.
package physics

import "time"

// Simulation rates.
const (
	// PhysicsTickRate is the fixed simulation rate, server and client alike.
	PhysicsTickRate = 60
	// StateBroadcastRate is the snapshot publish rate.
	StateBroadcastRate = 20

	// DTMillis is the integration step in milliseconds. The integrator's
	// force terms are tuned against DT squared (verlet style), so forces are
	// per-millisecond-squared quantities.
	DTMillis = 1000.0 / 60.0

	TickInterval      = time.Second / PhysicsTickRate
	BroadcastInterval = time.Second / StateBroadcastRate
)

// Car tuning. Velocities are px per tick, rotations are radians.
const (
	EngineForce       = 4.0
	ReverseForce      = 2.0
	DragCoefficient   = 0.0015
	RollingResistance = 0.015

	MaxSpeed        = 18.0
	MaxReverseSpeed = 6.0

	NitroBoostMultiplier = 1.3
	NitroMax             = 100.0
	NitroBurnPerTick     = 0.8

	MaxSteeringAngle   = 0.6
	MaxAngularVelocity = 0.15

	// Rigid body parameters matching the reference backend: a 30x20 box at
	// density 0.002.
	CarBodyWidth  = 30.0
	CarBodyHeight = 20.0
	Mass          = 0.002 * CarBodyWidth * CarBodyHeight
	FrictionAir   = 0.01

	CollisionRestitution = 0.5
)

// Track surface tuning. Boost pads shove the car forward past the engine
// speed cap; oil slicks bleed steering authority.
const (
	BoostPadAccel    = 2.5
	BoostPadMaxSpeed = MaxSpeed * NitroBoostMultiplier
	OilControlFactor = 0.4
)

// Client reconciliation tuning.
const (
	// MaxPendingInputs bounds the unconfirmed-input FIFO on the client.
	MaxPendingInputs = 120

	// SnapThreshold is the predicted-to-authoritative distance beyond which
	// the client hard-snaps instead of blending (respawns, teleports).
	SnapThreshold = 150.0
	// TeleportThreshold is the remote-car equivalent for interpolation.
	TeleportThreshold = 200.0

	VelocityBlendFactor = 0.15
	AngularBlendFactor  = 0.15
	RotationBlendFactor = 0.3
	PositionBlendFactor = 0.1
	// PositionDeadZone is the correction distance below which the predictor
	// leaves its position untouched.
	PositionDeadZone = 0.5
)

// Race orchestration timing.
const (
	CountdownSeconds  = 3
	MinPlayersToStart = 1

	// GoDelay is the pause between "GO!" and the racing state, long enough
	// for the countdown zero to render but short enough to feel immediate.
	GoDelay = 500 * time.Millisecond

	FinishGracePeriod       = 30 * time.Second
	RoomIdleTimeout         = 5 * time.Minute
	PlayerDisconnectTimeout = 10 * time.Second
	StuckThreshold          = 5 * time.Second
)
