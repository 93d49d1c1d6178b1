// Package race arbitrates progress over a track: checkpoint ordering, lap
// completion, finish detection, respawn targets, and the per-tick ranking.
// The arbiter produces values only; it never blocks and never errors inside
// the room tick.
package race

import (
	"sort"
	"time"

	"slipstream/physics"
	"slipstream/protocol"
	"slipstream/track"
)

// Arbiter owns the race-progress rules for one room's race. It is created at
// race start and discarded at reset, like the cars it judges.
type Arbiter struct {
	track       *track.Track
	lapCount    int
	checkpoints []*track.Element
	finish      *track.Element

	// spawnByCar remembers each car's grid slot for checkpoint-less respawns.
	spawnByCar map[string]*track.Element

	finishedCount int
	firstFinishAt time.Duration
	hasFinisher   bool
}

// NewArbiter builds an arbiter for the given course and lap target.
func NewArbiter(tr *track.Track, lapCount int) *Arbiter {
	return &Arbiter{
		track:       tr,
		lapCount:    lapCount,
		checkpoints: tr.Checkpoints(),
		finish:      tr.FinishLine(),
		spawnByCar:  make(map[string]*track.Element),
	}
}

// Register records the spawn assigned to a car at race start.
func (a *Arbiter) Register(carID string, spawn *track.Element) {
	a.spawnByCar[carID] = spawn
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

// Tick evaluates one car's progress after a physics step. elapsed is the
// race clock. Returned events preserve emit order within the tick.
func (a *Arbiter) Tick(car *physics.Car, elapsed time.Duration) []protocol.Event {
	if car.Finished {
		return nil
	}

	var events []protocol.Event

	// Advance the next expected checkpoint on proximity. At most one per
	// tick: consecutive gates cannot be crossed in a single step at legal
	// speeds.
	if car.Checkpoint < len(a.checkpoints) {
		next := a.checkpoints[car.Checkpoint]
		if next.Contains(car.Position) {
			passed := car.Checkpoint
			car.Checkpoint++
			events = append(events, protocol.Event{
				Type:       protocol.EventCheckpoint,
				PlayerID:   car.PlayerID,
				TimeMs:     elapsed.Milliseconds(),
				Checkpoint: intp(passed),
			})
		}
	}

	// Lap completion requires every checkpoint plus a rising edge on the
	// finish circle. The latch arms when a lap is counted and clears only
	// after the car leaves the circle, so loitering on the line cannot
	// double-count; driving through mid-lap leaves it unarmed.
	onFinish := a.finish != nil && a.finish.Contains(car.Position)
	if !onFinish {
		car.PassedFinishLine = false
	}
	if onFinish && !car.PassedFinishLine && car.Checkpoint == len(a.checkpoints) {
		lapTime := elapsed - totalLapTime(car)
		car.LapTimes = append(car.LapTimes, lapTime)
		car.Lap++
		car.Checkpoint = 0
		events = append(events, protocol.Event{
			Type:      protocol.EventLap,
			PlayerID:  car.PlayerID,
			TimeMs:    elapsed.Milliseconds(),
			Lap:       intp(car.Lap),
			LapTimeMs: int64p(lapTime.Milliseconds()),
		})

		if car.Lap >= a.lapCount {
			car.Finished = true
			car.FinishTime = elapsed
			a.finishedCount++
			if !a.hasFinisher {
				a.hasFinisher = true
				a.firstFinishAt = elapsed
			}
			events = append(events, protocol.Event{
				Type:     protocol.EventFinish,
				PlayerID: car.PlayerID,
				TimeMs:   elapsed.Milliseconds(),
				Position: intp(a.finishedCount),
				TotalMs:  int64p(elapsed.Milliseconds()),
			})
		}
		car.PassedFinishLine = true
	}

	return events
}

func totalLapTime(car *physics.Car) time.Duration {
	var sum time.Duration
	for _, lt := range car.LapTimes {
		sum += lt
	}
	return sum
}

// Respawn teleports a car back to its last fully-passed checkpoint, or its
// spawn slot when none has been passed this lap, zeroing its motion.
func (a *Arbiter) Respawn(car *physics.Car, elapsed time.Duration) protocol.Event {
	var target *track.Element
	if car.Checkpoint > 0 && car.Checkpoint-1 < len(a.checkpoints) {
		target = a.checkpoints[car.Checkpoint-1]
	} else if spawn, ok := a.spawnByCar[car.ID]; ok {
		target = spawn
	}
	if target != nil {
		car.Position = target.Center()
		car.Rotation = target.Rotation
	}
	car.Velocity = car.Velocity.Scale(0)
	car.AngularVelocity = 0
	car.Speed = 0
	car.LastPosition = car.Position
	car.StuckSince = time.Time{}

	return protocol.Event{
		Type:     protocol.EventRespawn,
		PlayerID: car.PlayerID,
		TimeMs:   elapsed.Milliseconds(),
	}
}

// Rank recomputes the total order over all cars and writes it back onto
// them: finished cars first by ascending finish time, then unfinished by
// descending lap, then descending checkpoint progress, then proximity to the
// next gate as the final tiebreak.
func (a *Arbiter) Rank(cars []*physics.Car) {
	ordered := make([]*physics.Car, len(cars))
	copy(ordered, cars)

	sort.SliceStable(ordered, func(i, j int) bool {
		ci, cj := ordered[i], ordered[j]
		if ci.Finished != cj.Finished {
			return ci.Finished
		}
		if ci.Finished {
			return ci.FinishTime < cj.FinishTime
		}
		if ci.Lap != cj.Lap {
			return ci.Lap > cj.Lap
		}
		if ci.Checkpoint != cj.Checkpoint {
			return ci.Checkpoint > cj.Checkpoint
		}
		return a.distToNextGate(ci) < a.distToNextGate(cj)
	})

	for i, car := range ordered {
		car.Rank = i + 1
	}
}

func (a *Arbiter) distToNextGate(car *physics.Car) float64 {
	var target *track.Element
	if car.Checkpoint < len(a.checkpoints) {
		target = a.checkpoints[car.Checkpoint]
	} else {
		target = a.finish
	}
	if target == nil {
		return 0
	}
	return car.Position.Dist(target.Center())
}

// RaceComplete reports whether the room should transition to results:
// everyone finished, or the grace period since the first finisher elapsed.
func (a *Arbiter) RaceComplete(cars []*physics.Car, elapsed time.Duration) bool {
	if len(cars) == 0 {
		return false
	}
	if a.finishedCount >= len(cars) {
		return true
	}
	return a.hasFinisher && elapsed-a.firstFinishAt >= physics.FinishGracePeriod
}

// Results assembles the final standings. Unfinished cars are appended after
// the finishers, in their current rank order, flagged unfinished.
func (a *Arbiter) Results(cars []*physics.Car, nickname func(playerID string) string) []protocol.RaceResult {
	a.Rank(cars)

	ordered := make([]*physics.Car, len(cars))
	copy(ordered, cars)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})

	results := make([]protocol.RaceResult, 0, len(ordered))
	for _, car := range ordered {
		laps := make([]int64, len(car.LapTimes))
		var best int64
		for i, lt := range car.LapTimes {
			ms := lt.Milliseconds()
			laps[i] = ms
			if best == 0 || ms < best {
				best = ms
			}
		}
		results = append(results, protocol.RaceResult{
			PlayerID:   car.PlayerID,
			Nickname:   nickname(car.PlayerID),
			Position:   car.Rank,
			Finished:   car.Finished,
			TotalMs:    car.FinishTime.Milliseconds(),
			LapTimesMs: laps,
			BestLapMs:  best,
		})
	}
	return results
}
