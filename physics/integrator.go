package physics

import (
	"math"

	"slipstream/geom"
)

func sinCos(a float64) (float64, float64) {
	return math.Sin(a), math.Cos(a)
}

// Step advances one car by one fixed tick under the given input. It is
// deterministic: the server runs it authoritatively and the client runs it
// for prediction, and identical state plus identical inputs must yield
// identical results on both sides.
//
// Step never fails; a zero Input makes the car coast under drag. Positions
// are left unbounded here; wrap-around is a server-side post-step concern
// (see WrapToBounds), and the client predictor never wraps.
func Step(car *Car, in Input) {
	speed := car.Velocity.Len()
	forward := Forward(car.Rotation)
	forwardSpeed := car.Velocity.Dot(forward)

	// Accumulate engine forces; these integrate at the end of the tick.
	var force geom.Vec2
	if in.Accelerate && speed < MaxSpeed {
		force = force.Add(forward.Scale(EngineForce * 0.001))
	}
	nitroActive := in.Nitro && car.Nitro > 0
	if nitroActive {
		force = force.Add(forward.Scale(EngineForce * 0.0015))
		car.Nitro -= NitroBurnPerTick
		if car.Nitro < 0 {
			car.Nitro = 0
		}
	}

	// Braking acts on velocity directly: scrub speed while rolling forward,
	// push backward once slow enough, up to the reverse cap.
	if in.Brake {
		if forwardSpeed > 1 {
			car.Velocity = car.Velocity.Scale(0.95)
		} else if forwardSpeed > -MaxReverseSpeed {
			force = force.Sub(forward.Scale(ReverseForce * 0.001))
		}
	}

	steer := in.Steer()
	if speed > 0.5 && steer != 0 {
		// Three-tier steering response: ramp in at crawl speeds, full
		// authority through the mid band, fading grip above it.
		var speedFactor float64
		switch {
		case speed < 3:
			speedFactor = speed / 3
		case speed <= 15:
			speedFactor = 1.0
		default:
			speedFactor = math.Max(0.5, 15/speed)
		}
		angular := steer * MaxSteeringAngle * 0.18 * speedFactor
		if forwardSpeed < 0 {
			angular = -angular
		}
		car.AngularVelocity = angular
	} else {
		// Wheel centering.
		car.AngularVelocity *= 0.85
	}
	if car.AngularVelocity > MaxAngularVelocity {
		car.AngularVelocity = MaxAngularVelocity
	} else if car.AngularVelocity < -MaxAngularVelocity {
		car.AngularVelocity = -MaxAngularVelocity
	}

	// Drag and rolling resistance, computed against the pre-drag speed.
	preDragSpeed := car.Velocity.Len()
	damping := 1 - DragCoefficient*preDragSpeed - RollingResistance
	if damping < 0 {
		damping = 0
	}
	car.Velocity = car.Velocity.Scale(damping)

	speedCap := MaxSpeed
	if nitroActive {
		speedCap = NitroBoostMultiplier * MaxSpeed
	}
	car.Velocity = car.Velocity.ClampLen(speedCap)

	// Verlet-style integration matching the reference backend: air friction
	// first, then force over mass scaled by DT squared (forces are per-ms²).
	// Rotational inertia is infinite, so angular velocity sees friction only.
	car.Velocity = car.Velocity.Scale(1 - FrictionAir).
		Add(force.Scale(DTMillis * DTMillis / Mass))
	car.AngularVelocity *= 1 - FrictionAir
	car.Rotation += car.AngularVelocity

	car.Position = car.Position.Add(car.Velocity)
	car.Speed = car.Velocity.Len()
}

// WrapToBounds maps the car position onto a toroidal track of the given
// dimensions and rebases the stuck-detection anchor so a seam crossing does
// not register as a teleport. Server-only; the predictor keeps positions
// unbounded.
func WrapToBounds(car *Car, width, height float64) {
	wrapped := geom.WrapPoint(car.Position, width, height)
	if wrapped != car.Position {
		car.LastPosition = car.LastPosition.Add(wrapped.Sub(car.Position))
		car.Position = wrapped
	}
}

// Surface is the set of track elements under a car this tick.
type Surface struct {
	Boost bool
	Oil   bool
}

// ApplySurface applies surface effects after the regular Step. Server-only:
// the predictor does not know the track elements, so surface pushes arrive at
// the client as ordinary reconciliation corrections.
func ApplySurface(car *Car, s Surface) {
	if s.Boost {
		car.Velocity = car.Velocity.
			Add(Forward(car.Rotation).Scale(BoostPadAccel)).
			ClampLen(BoostPadMaxSpeed)
	}
	if s.Oil {
		car.AngularVelocity *= OilControlFactor
	}
	car.Speed = car.Velocity.Len()
}

// Collide applies an elastic-with-damping impulse between two overlapping
// cars. The reference leaves car-car response unspecified; this bounded
// bounce is the documented interim behavior and may change.
func Collide(a, b *Car) bool {
	const radius = CarBodyWidth / 2
	delta := b.Position.Sub(a.Position)
	dist := delta.Len()
	if dist == 0 || dist >= radius*2 {
		return false
	}
	normal := delta.Scale(1 / dist)

	relative := b.Velocity.Sub(a.Velocity)
	closing := relative.Dot(normal)
	if closing >= 0 {
		return false
	}

	// Equal masses: each car takes half the restitution impulse.
	impulse := normal.Scale(-(1 + CollisionRestitution) * closing / 2)
	a.Velocity = a.Velocity.Sub(impulse)
	b.Velocity = b.Velocity.Add(impulse)

	// Separate the bodies so they do not re-collide next tick.
	overlap := radius*2 - dist
	a.Position = a.Position.Sub(normal.Scale(overlap / 2))
	b.Position = b.Position.Add(normal.Scale(overlap / 2))
	return true
}
