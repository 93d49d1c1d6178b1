package physics

import (
	"math"
	"math/rand"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"slipstream/geom"
)

func coastTicks(car *Car, n int) {
	for i := 0; i < n; i++ {
		Step(car, Input{})
	}
}

func driveTicks(car *Car, in Input, n int) {
	for i := 0; i < n; i++ {
		Step(car, in)
	}
}

func TestStepLongitudinal(t *testing.T) {
	Convey("When a car accelerates from rest", t, func() {
		car := &Car{Rotation: 0, Nitro: NitroMax}
		driveTicks(car, Input{Accelerate: true}, 60)

		Convey("It gains speed along its heading", func() {
			So(car.Speed, ShouldBeGreaterThan, 1)
			So(car.ForwardSpeed(), ShouldBeGreaterThan, 1)
			// Rotation zero points up: -y motion, no lateral drift.
			So(car.Position.Y, ShouldBeLessThan, 0)
			So(math.Abs(car.Position.X), ShouldBeLessThan, 1e-9)
		})

		Convey("Sustained throttle approaches but never exceeds the cap", func() {
			driveTicks(car, Input{Accelerate: true}, 600)
			So(car.Speed, ShouldBeGreaterThan, 15)
			So(car.Speed, ShouldBeLessThanOrEqualTo, MaxSpeed+0.01)
		})
	})

	Convey("When nitro is held with a full tank", t, func() {
		car := &Car{Rotation: 0, Nitro: NitroMax}
		driveTicks(car, Input{Accelerate: true, Nitro: true}, 100)

		Convey("The car exceeds the plain speed cap but not the boosted one", func() {
			So(car.Speed, ShouldBeGreaterThan, MaxSpeed)
			So(car.Speed, ShouldBeLessThanOrEqualTo, NitroBoostMultiplier*MaxSpeed+0.01)
		})

		Convey("The tank drains while burning", func() {
			So(car.Nitro, ShouldBeLessThan, NitroMax)
		})

		Convey("An empty tank gives no boost", func() {
			car.Nitro = 0
			driveTicks(car, Input{Accelerate: true, Nitro: true}, 300)
			So(car.Speed, ShouldBeLessThanOrEqualTo, MaxSpeed+0.01)
		})
	})

	Convey("When the car coasts with no input", t, func() {
		car := &Car{Velocity: geom.Vec2{X: 10, Y: 0}}

		Convey("Drag decays speed below 0.1 in bounded time", func() {
			ticks := 0
			for car.Speed == 0 || car.Velocity.Len() >= 0.1 {
				Step(car, Input{})
				ticks++
				So(ticks, ShouldBeLessThan, 600)
			}
			So(car.Velocity.Len(), ShouldBeLessThan, 0.1)
		})
	})

	Convey("When braking", t, func() {
		Convey("Forward motion scrubs off faster than coasting", func() {
			braking := &Car{Velocity: geom.Vec2{X: 0, Y: -10}}
			coasting := &Car{Velocity: geom.Vec2{X: 0, Y: -10}}
			driveTicks(braking, Input{Brake: true}, 20)
			coastTicks(coasting, 20)
			So(braking.Speed, ShouldBeLessThan, coasting.Speed)
		})

		Convey("From rest the car reverses, bounded by the reverse cap", func() {
			car := &Car{Rotation: 0}
			driveTicks(car, Input{Brake: true}, 600)
			So(car.ForwardSpeed(), ShouldBeLessThan, -0.5)
			So(-car.ForwardSpeed(), ShouldBeLessThanOrEqualTo, MaxReverseSpeed+0.5)
		})
	})
}

func TestStepSteering(t *testing.T) {
	spinUp := func() *Car {
		car := &Car{Rotation: 0}
		driveTicks(car, Input{Accelerate: true}, 120)
		return car
	}

	Convey("When steering at speed", t, func() {
		Convey("Right input rotates the car and stays within the angular cap", func() {
			car := spinUp()
			before := car.Rotation
			driveTicks(car, Input{Accelerate: true, SteerRight: true}, 30)
			So(car.Rotation, ShouldBeGreaterThan, before)
			So(math.Abs(car.AngularVelocity), ShouldBeLessThanOrEqualTo, MaxAngularVelocity)
		})

		Convey("Analog input overrides the boolean keys", func() {
			a := spinUp()
			b := spinUp()
			Step(a, Input{SteerRight: true, SteerValue: -0.5})
			Step(b, Input{SteerValue: -0.5})
			So(a.AngularVelocity, ShouldAlmostEqual, b.AngularVelocity)
			So(a.AngularVelocity, ShouldBeLessThan, 0)
		})

		Convey("Steering flips sign while reversing", func() {
			fwd := spinUp()
			Step(fwd, Input{SteerRight: true})
			rev := &Car{Rotation: 0}
			driveTicks(rev, Input{Brake: true}, 300)
			Step(rev, Input{SteerRight: true})
			So(fwd.AngularVelocity*rev.AngularVelocity, ShouldBeLessThan, 0)
		})
	})

	Convey("When nearly stationary or hands-off", t, func() {
		Convey("Below the speed floor steering has no effect", func() {
			car := &Car{Velocity: geom.Vec2{X: 0.1, Y: 0}}
			Step(car, Input{SteerLeft: true})
			So(car.AngularVelocity, ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Released steering recenters the wheel", func() {
			car := spinUp()
			driveTicks(car, Input{Accelerate: true, SteerLeft: true}, 10)
			turning := math.Abs(car.AngularVelocity)
			driveTicks(car, Input{Accelerate: true}, 30)
			So(math.Abs(car.AngularVelocity), ShouldBeLessThan, turning/10)
		})
	})
}

func TestStepDeterminism(t *testing.T) {
	Convey("When two cars replay the identical input stream", t, func() {
		// This is the server/client parity law: prediction and authority
		// share one Step, so equal state plus equal inputs must match bit
		// for bit.
		rng := rand.New(rand.NewSource(42))
		inputs := make([]Input, 600)
		for i := range inputs {
			inputs[i] = Input{
				Accelerate: rng.Intn(4) != 0,
				Brake:      rng.Intn(8) == 0,
				SteerLeft:  rng.Intn(3) == 0,
				SteerRight: rng.Intn(3) == 0,
				Nitro:      rng.Intn(10) == 0,
				SteerValue: float64(rng.Intn(3)-1) * rng.Float64(),
			}
		}

		a := &Car{Rotation: 1.0, Nitro: NitroMax}
		b := &Car{Rotation: 1.0, Nitro: NitroMax}
		for _, in := range inputs {
			Step(a, in)
			Step(b, in)
		}

		Convey("Their states agree exactly", func() {
			So(a.Position, ShouldResemble, b.Position)
			So(a.Velocity, ShouldResemble, b.Velocity)
			So(a.Rotation, ShouldEqual, b.Rotation)
			So(a.AngularVelocity, ShouldEqual, b.AngularVelocity)
			So(a.Nitro, ShouldEqual, b.Nitro)
		})

		Convey("And every component stays finite", func() {
			So(a.Position.IsFinite(), ShouldBeTrue)
			So(a.Velocity.IsFinite(), ShouldBeTrue)
			So(math.IsNaN(a.Rotation), ShouldBeFalse)
		})
	})
}

func TestWrapToBounds(t *testing.T) {
	Convey("When a car crosses the edge of a toroidal track", t, func() {
		car := &Car{
			Position:     geom.Vec2{X: 805, Y: -3},
			LastPosition: geom.Vec2{X: 790, Y: 2},
		}
		WrapToBounds(car, 800, 600)

		Convey("The position wraps into bounds", func() {
			So(car.Position.X, ShouldAlmostEqual, 5)
			So(car.Position.Y, ShouldAlmostEqual, 597)
		})

		Convey("The stuck anchor shifts by the same offset", func() {
			So(car.LastPosition.X, ShouldAlmostEqual, -10)
			So(car.LastPosition.Y, ShouldAlmostEqual, 602)
		})
	})
}

func TestCollide(t *testing.T) {
	Convey("When two cars overlap head on", t, func() {
		a := &Car{Position: geom.Vec2{X: 0, Y: 0}, Velocity: geom.Vec2{X: 5, Y: 0}}
		b := &Car{Position: geom.Vec2{X: 20, Y: 0}, Velocity: geom.Vec2{X: -5, Y: 0}}

		So(Collide(a, b), ShouldBeTrue)

		Convey("The bounce is damped and symmetric", func() {
			So(a.Velocity.X, ShouldBeLessThan, 5)
			So(b.Velocity.X, ShouldBeGreaterThan, -5)
			So(a.Velocity.X, ShouldAlmostEqual, -b.Velocity.X)
		})

		Convey("The bodies separate past the contact radius", func() {
			So(b.Position.X-a.Position.X, ShouldBeGreaterThanOrEqualTo, CarBodyWidth-1e-9)
		})
	})

	Convey("When cars are apart or separating", t, func() {
		Convey("Distant cars do not collide", func() {
			a := &Car{Position: geom.Vec2{X: 0, Y: 0}}
			b := &Car{Position: geom.Vec2{X: 100, Y: 0}}
			So(Collide(a, b), ShouldBeFalse)
		})

		Convey("Overlapping but separating cars are left alone", func() {
			a := &Car{Position: geom.Vec2{X: 0, Y: 0}, Velocity: geom.Vec2{X: -5, Y: 0}}
			b := &Car{Position: geom.Vec2{X: 10, Y: 0}, Velocity: geom.Vec2{X: 5, Y: 0}}
			So(Collide(a, b), ShouldBeFalse)
		})
	})
}

func TestApplySurface(t *testing.T) {
	Convey("When a car crosses a boost pad at top speed", t, func() {
		car := &Car{Velocity: geom.Vec2{Y: -MaxSpeed}, Speed: MaxSpeed}
		ApplySurface(car, Surface{Boost: true})

		Convey("The pad pushes past the engine cap, up to the boost cap", func() {
			So(car.Speed, ShouldBeGreaterThan, MaxSpeed)
			So(car.Speed, ShouldBeLessThanOrEqualTo, BoostPadMaxSpeed)
		})

		Convey("Chained pads saturate at the boost cap", func() {
			for i := 0; i < 20; i++ {
				ApplySurface(car, Surface{Boost: true})
			}
			So(car.Speed, ShouldAlmostEqual, BoostPadMaxSpeed)
		})
	})

	Convey("When a car hits oil mid-turn", t, func() {
		car := &Car{AngularVelocity: 0.1}
		ApplySurface(car, Surface{Oil: true})
		So(car.AngularVelocity, ShouldAlmostEqual, 0.1*OilControlFactor)
	})

	Convey("A clean surface changes nothing", t, func() {
		car := &Car{Velocity: geom.Vec2{X: 3}, AngularVelocity: 0.05}
		ApplySurface(car, Surface{})
		So(car.Velocity.X, ShouldEqual, 3)
		So(car.AngularVelocity, ShouldEqual, 0.05)
	})
}
