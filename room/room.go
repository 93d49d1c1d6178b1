// Package room hosts the server-side race rooms. Each room runs its own
// loop: physics at 60 Hz, state broadcast at 20 Hz, both multiplexed over a
// single goroutine so all mutation happens on the room's own ticks. Public
// methods take the room lock and are safe from gateway goroutines.
package room

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/rs/zerolog"

	"slipstream/physics"
	"slipstream/protocol"
	"slipstream/race"
	"slipstream/track"
)

// Room lifecycle states, as they appear on the wire.
const (
	StateWaiting   = "waiting"
	StateCountdown = "countdown"
	StateRacing    = "racing"
	StateResults   = "results"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrRaceInProgress = errors.New("race already in progress")
	ErrRoomClosed     = errors.New("room is closed")
	ErrNotHost        = errors.New("only the host may start the race")
	ErrCannotStart    = errors.New("race cannot start yet")
	ErrChatDisabled   = errors.New("chat is disabled in this room")
	ErrNotInRoom      = errors.New("player is not in this room")
)

const (
	// chatCooldown rate-limits chat per player; emotes get a slightly
	// longer window since they render over the car.
	chatCooldown  = time.Second
	emoteCooldown = 1500 * time.Millisecond

	// resultsHold is how long the results screen stays up before the room
	// returns to the lobby.
	resultsHold = 10 * time.Second

	// stuckDistance is how far a car must move to count as making progress.
	stuckDistance = 5.0

	// collisionMute suppresses repeat collision events for a car pair.
	collisionMute = 500 * time.Millisecond
)

// Room is one multiplayer race session. Created by the Manager, driven by
// its own loop goroutine between Start and Stop.
type Room struct {
	mu  sync.Mutex
	log zerolog.Logger

	ID       string
	Code     string
	hostID   string
	settings protocol.RoomSettings
	track    *track.Track

	state     string
	players   map[string]*Player
	seatOrder []string

	arbiter        *race.Arbiter
	raceTicks      int
	sequence       uint64
	pendingEvents  []protocol.Event
	countdownCount int
	phaseTicks     int

	stuckTicks map[string]int
	// collisionMuteUntil maps "a|b" pair keys to the race tick when the pair
	// may emit a collision event again.
	collisionMuteUntil map[string]int

	emptySince time.Time
	// lastActivity is the most recent player-driven action, the idle sweep's
	// yardstick for abandoned lobbies.
	lastActivity time.Time

	stopChan chan struct{}
	stopOnce sync.Once

	// onLapRecord is invoked once per finisher with their best lap, for
	// leaderboard persistence. May be nil.
	onLapRecord func(trackID, nickname string, lapMs int64)

	// onRaceResults receives the final standings of every completed race,
	// for the race archive. May be nil.
	onRaceResults func(roomID, trackID string, results []protocol.RaceResult)
}

// NewRoom builds an idle room around a validated track. Call Start to begin
// the loop.
func NewRoom(log zerolog.Logger, id, code string, settings protocol.RoomSettings, tr *track.Track) *Room {
	normalizeSettings(&settings, tr)
	return &Room{
		log:                log.With().Str("room", id).Logger(),
		ID:                 id,
		Code:               code,
		settings:           settings,
		track:              tr,
		state:              StateWaiting,
		players:            make(map[string]*Player),
		stuckTicks:         make(map[string]int),
		collisionMuteUntil: make(map[string]int),
		emptySince:         time.Now(),
		lastActivity:       time.Now(),
		stopChan:           make(chan struct{}),
	}
}

func normalizeSettings(s *protocol.RoomSettings, tr *track.Track) {
	if s.MaxPlayers < 1 || s.MaxPlayers > 8 {
		s.MaxPlayers = 4
	}
	if s.LapCount < 1 {
		s.LapCount = tr.DefaultLapCount
	}
	if s.LapCount < 1 {
		s.LapCount = 3
	}
	s.TrackID = tr.ID
}

// SetLapRecorder installs the leaderboard hook. Must be called before Start.
func (r *Room) SetLapRecorder(fn func(trackID, nickname string, lapMs int64)) {
	r.onLapRecord = fn
}

// SetResultsRecorder installs the race-archive hook. Must be called before
// Start.
func (r *Room) SetResultsRecorder(fn func(roomID, trackID string, results []protocol.RaceResult)) {
	r.onRaceResults = fn
}

// Start launches the room loop. Safe to call once.
func (r *Room) Start() {
	go r.loop()
}

// Stop halts the loop. Safe to call repeatedly.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *Room) loop() {
	physicsTicks := channerics.NewTicker(r.stopChan, physics.TickInterval)
	broadcastTicks := channerics.NewTicker(r.stopChan, physics.BroadcastInterval)

	for {
		select {
		case <-r.stopChan:
			return
		case <-physicsTicks:
			r.Tick()
		case <-broadcastTicks:
			r.Broadcast()
		}
	}
}

// Info returns the wire header for the room.
func (r *Room) Info() protocol.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked()
}

func (r *Room) infoLocked() protocol.RoomInfo {
	return protocol.RoomInfo{
		ID:       r.ID,
		Code:     r.Code,
		HostID:   r.hostID,
		State:    r.state,
		Settings: r.settings,
	}
}

// Summary returns the room-list row.
func (r *Room) Summary() protocol.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return protocol.RoomSummary{
		ID:         r.ID,
		Code:       r.Code,
		State:      r.state,
		Players:    len(r.players),
		MaxPlayers: r.settings.MaxPlayers,
		TrackID:    r.settings.TrackID,
	}
}

// IsPrivate reports whether the room is hidden from the public list.
func (r *Room) IsPrivate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.IsPrivate
}

// EmptySince returns when the room last became empty, or the zero time while
// it is occupied.
func (r *Room) EmptySince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.players) > 0 {
		return time.Time{}
	}
	return r.emptySince
}

// IdleSince returns the time of the last player-driven action.
func (r *Room) IdleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

func (r *Room) touchLocked() {
	r.lastActivity = time.Now()
}

// Join seats a player. The first player becomes host. Everyone already
// seated learns about the newcomer; the newcomer receives the full roster.
func (r *Room) Join(p *Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= r.settings.MaxPlayers {
		return ErrRoomFull
	}
	if r.state != StateWaiting && !r.settings.AllowMidRaceJoin {
		return ErrRaceInProgress
	}

	if len(r.players) == 0 {
		p.IsHost = true
		r.hostID = p.ID
	}
	p.Connected = true
	r.players[p.ID] = p
	r.seatOrder = append(r.seatOrder, p.ID)
	r.touchLocked()

	if r.state == StateRacing || r.state == StateCountdown {
		r.spawnCarLocked(p, len(r.seatOrder)-1)
	}

	profile := p.Profile()
	r.broadcastExceptLocked(p.ID, &protocol.ServerMessage{
		Type:   protocol.KindPlayerJoined,
		Player: &profile,
	})
	r.sendLocked(p, r.joinedMessageLocked())

	r.log.Info().Str("player", p.ID).Str("nickname", p.Nickname).Msg("player joined")
	return nil
}

func (r *Room) joinedMessageLocked() *protocol.ServerMessage {
	info := r.infoLocked()
	msg := &protocol.ServerMessage{
		Type:    protocol.KindRoomJoined,
		Room:    &info,
		Players: r.profilesLocked(),
	}
	if r.state == StateRacing || r.state == StateCountdown {
		msg.Track = r.track
		msg.Cars = r.snapshotCarsLocked()
	}
	return msg
}

func (r *Room) profilesLocked() []protocol.PlayerProfile {
	profiles := make([]protocol.PlayerProfile, 0, len(r.seatOrder))
	for _, id := range r.seatOrder {
		if p, ok := r.players[id]; ok {
			profiles = append(profiles, p.Profile())
		}
	}
	return profiles
}

// Leave removes a player outright. Disconnections that may resume go
// through MarkDisconnected instead.
func (r *Room) Leave(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(playerID, "left")
}

func (r *Room) removeLocked(playerID, reason string) {
	p, ok := r.players[playerID]
	if !ok {
		return
	}
	delete(r.players, playerID)
	delete(r.stuckTicks, playerID)
	for i, id := range r.seatOrder {
		if id == playerID {
			r.seatOrder = append(r.seatOrder[:i], r.seatOrder[i+1:]...)
			break
		}
	}

	r.broadcastLocked(&protocol.ServerMessage{
		Type:     protocol.KindPlayerLeft,
		PlayerID: playerID,
		Reason:   reason,
	})
	r.log.Info().Str("player", playerID).Str("reason", reason).Msg("player removed")

	if p.IsHost {
		r.migrateHostLocked()
	}
	if len(r.players) == 0 {
		r.emptySince = time.Now()
		if r.state != StateWaiting {
			r.resetToLobbyLocked()
		}
	}
}

func (r *Room) migrateHostLocked() {
	r.hostID = ""
	if len(r.seatOrder) == 0 {
		return
	}
	next := r.players[r.seatOrder[0]]
	next.IsHost = true
	r.hostID = next.ID
	profile := next.Profile()
	r.broadcastLocked(&protocol.ServerMessage{
		Type:   protocol.KindPlayerJoined,
		Player: &profile,
	})
}

// MarkDisconnected flags a player as gone but keeps the seat for the
// reconnect grace window. The tick sweep evicts them when it expires.
func (r *Room) MarkDisconnected(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[playerID]; ok {
		p.Connected = false
		p.DisconnectedAt = time.Now()
	}
}

// Resume reattaches a returning player to their seat.
func (r *Room) Resume(playerID string, conn Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok {
		return ErrNotInRoom
	}
	p.Conn = conn
	p.Connected = true
	p.DisconnectedAt = time.Time{}
	r.touchLocked()
	r.sendLocked(p, r.joinedMessageLocked())
	return nil
}

// SetReady toggles the player's ready flag and announces it.
func (r *Room) SetReady(playerID string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok {
		return ErrNotInRoom
	}
	p.Ready = ready
	r.touchLocked()
	profile := p.Profile()
	r.broadcastLocked(&protocol.ServerMessage{
		Type:   protocol.KindPlayerReady,
		Player: &profile,
		Ready:  &ready,
	})
	return nil
}

// StartRace begins the countdown. Only the host may call it, only from the
// lobby, and only once enough players are seated and everyone is ready.
func (r *Room) StartRace(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if playerID != r.hostID {
		return ErrNotHost
	}
	if r.state != StateWaiting {
		return fmt.Errorf("%w: race state is %s", ErrCannotStart, r.state)
	}
	if len(r.players) < physics.MinPlayersToStart {
		return fmt.Errorf("%w: need at least %d players", ErrCannotStart, physics.MinPlayersToStart)
	}
	for _, p := range r.players {
		if !p.Ready && !p.IsHost {
			return fmt.Errorf("%w: %s is not ready", ErrCannotStart, p.Nickname)
		}
	}

	r.beginCountdownLocked()
	return nil
}

func (r *Room) beginCountdownLocked() {
	r.arbiter = race.NewArbiter(r.track, r.settings.LapCount)
	r.raceTicks = 0
	r.sequence = 0
	r.pendingEvents = nil
	r.stuckTicks = make(map[string]int)
	r.collisionMuteUntil = make(map[string]int)

	for seat, id := range r.seatOrder {
		if p, ok := r.players[id]; ok {
			r.spawnCarLocked(p, seat)
		}
	}

	r.state = StateCountdown
	r.countdownCount = physics.CountdownSeconds
	r.phaseTicks = 0

	starting := r.countdownCount
	r.broadcastLocked(&protocol.ServerMessage{
		Type:      protocol.KindGameStarting,
		Countdown: &starting,
		Track:     r.track,
		Cars:      r.snapshotCarsLocked(),
	})
	count := r.countdownCount
	r.broadcastLocked(&protocol.ServerMessage{
		Type:  protocol.KindCountdown,
		Count: &count,
	})
	r.log.Info().Int("players", len(r.players)).Str("track", r.track.ID).Msg("countdown started")
}

func (r *Room) spawnCarLocked(p *Player, seat int) {
	spawn := r.track.SpawnAt(seat)
	car := &physics.Car{
		ID:       "car-" + p.ID,
		PlayerID: p.ID,
		Position: spawn.Center(),
		Rotation: spawn.Rotation,
		Nitro:    physics.NitroMax,
	}
	car.LastPosition = car.Position
	p.Car = car
	p.input = physics.Input{}
	p.hasInput = false
	r.arbiter.Register(car.ID, spawn)
}

// HandleInput accepts a control record. Inputs are valid during countdown
// (staged for the green light) and racing; in other states they are
// silently dropped.
func (r *Room) HandleInput(playerID string, in physics.Input) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCountdown && r.state != StateRacing {
		return
	}
	if p, ok := r.players[playerID]; ok && p.Car != nil {
		p.offerInput(in)
		r.touchLocked()
	}
}

// Chat relays a chat line to the room, subject to the per-player cooldown.
func (r *Room) Chat(playerID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.settings.EnableChat {
		return ErrChatDisabled
	}
	p, ok := r.players[playerID]
	if !ok {
		return ErrNotInRoom
	}
	now := time.Now()
	if now.Sub(p.lastChat) < chatCooldown {
		return nil
	}
	p.lastChat = now
	r.touchLocked()
	r.broadcastLocked(&protocol.ServerMessage{
		Type:     protocol.KindChat,
		PlayerID: p.ID,
		Nickname: p.Nickname,
		Message:  message,
	})
	return nil
}

// Emote relays an emote, subject to its own cooldown.
func (r *Room) Emote(playerID, emote string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok {
		return ErrNotInRoom
	}
	now := time.Now()
	if now.Sub(p.lastEmote) < emoteCooldown {
		return nil
	}
	p.lastEmote = now
	r.touchLocked()
	r.broadcastLocked(&protocol.ServerMessage{
		Type:     protocol.KindEmote,
		PlayerID: p.ID,
		Nickname: p.Nickname,
		Emote:    emote,
	})
	return nil
}

// Tick advances the room one physics step. Normally driven by the loop;
// exported so tests can run the room deterministically.
func (r *Room) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepDisconnectedLocked()

	switch r.state {
	case StateCountdown:
		r.tickCountdownLocked()
	case StateRacing:
		r.tickRacingLocked()
	case StateResults:
		r.phaseTicks++
		if r.phaseTicks >= int(resultsHold/physics.TickInterval) {
			r.resetToLobbyLocked()
		}
	}
}

func (r *Room) sweepDisconnectedLocked() {
	now := time.Now()
	for id, p := range r.players {
		if !p.Connected && now.Sub(p.DisconnectedAt) > physics.PlayerDisconnectTimeout {
			r.removeLocked(id, "disconnected")
		}
	}
}

func (r *Room) tickCountdownLocked() {
	r.phaseTicks++
	if r.countdownCount > 0 && r.phaseTicks%physics.PhysicsTickRate == 0 {
		r.countdownCount--
		count := r.countdownCount
		r.broadcastLocked(&protocol.ServerMessage{
			Type:  protocol.KindCountdown,
			Count: &count,
		})
		if r.countdownCount == 0 {
			// The green light lands GoDelay after the final count.
			r.phaseTicks = 0
		}
		return
	}
	if r.countdownCount == 0 && r.phaseTicks >= int(physics.GoDelay/physics.TickInterval) {
		r.state = StateRacing
		r.raceTicks = 0
		r.broadcastLocked(&protocol.ServerMessage{
			Type:      protocol.KindGameStarted,
			StartTime: time.Now().UnixMilli(),
		})
		r.log.Info().Msg("race started")
	}
}

func (r *Room) elapsedLocked() time.Duration {
	return time.Duration(r.raceTicks) * physics.TickInterval
}

func (r *Room) tickRacingLocked() {
	r.raceTicks++
	elapsed := r.elapsedLocked()

	cars := make([]*physics.Car, 0, len(r.players))
	for _, id := range r.seatOrder {
		p, ok := r.players[id]
		if !ok || p.Car == nil {
			continue
		}
		car := p.Car
		cars = append(cars, car)
		if car.Finished {
			continue
		}

		in := p.takeInput()
		if in.Respawn {
			r.respawnLocked(p, elapsed)
			continue
		}

		physics.Step(car, in)
		car.LastInputSequence = in.Sequence

		if r.track.WrapAround {
			physics.WrapToBounds(car, float64(r.track.Width), float64(r.track.Height))
		}
		boost, oil := r.track.SurfaceAt(car.Position, car.Layer)
		physics.ApplySurface(car, physics.Surface{Boost: boost, Oil: oil})
		if !car.Position.IsFinite() || !car.Velocity.IsFinite() ||
			math.IsNaN(car.Rotation) || math.IsInf(car.Rotation, 0) {
			r.log.Warn().Str("player", p.ID).Msg("non-finite car state, forcing respawn")
			r.respawnLocked(p, elapsed)
			continue
		}

		r.trackStuckLocked(p, elapsed)
	}

	r.collidePairsLocked(cars, elapsed)

	for _, car := range cars {
		r.pendingEvents = append(r.pendingEvents, r.arbiter.Tick(car, elapsed)...)
	}
	r.arbiter.Rank(cars)

	if r.arbiter.RaceComplete(cars, elapsed) {
		r.finishRaceLocked(cars)
	}
}

func (r *Room) respawnLocked(p *Player, elapsed time.Duration) {
	ev := r.arbiter.Respawn(p.Car, elapsed)
	r.pendingEvents = append(r.pendingEvents, ev)
	r.stuckTicks[p.ID] = 0
}

func (r *Room) trackStuckLocked(p *Player, elapsed time.Duration) {
	if !r.settings.AutoRespawn {
		return
	}
	car := p.Car
	if car.Position.Dist(car.LastPosition) > stuckDistance {
		car.LastPosition = car.Position
		r.stuckTicks[p.ID] = 0
		return
	}
	r.stuckTicks[p.ID]++
	if r.stuckTicks[p.ID] >= int(physics.StuckThreshold/physics.TickInterval) {
		r.respawnLocked(p, elapsed)
	}
}

func (r *Room) collidePairsLocked(cars []*physics.Car, elapsed time.Duration) {
	for i := 0; i < len(cars); i++ {
		for j := i + 1; j < len(cars); j++ {
			a, b := cars[i], cars[j]
			if a.Finished || b.Finished || a.Layer != b.Layer {
				continue
			}
			if !physics.Collide(a, b) {
				continue
			}
			key := a.ID + "|" + b.ID
			if r.raceTicks < r.collisionMuteUntil[key] {
				continue
			}
			r.collisionMuteUntil[key] = r.raceTicks + int(collisionMute/physics.TickInterval)
			r.pendingEvents = append(r.pendingEvents, protocol.Event{
				Type:     protocol.EventCollision,
				PlayerID: a.PlayerID,
				OtherID:  b.PlayerID,
				TimeMs:   elapsed.Milliseconds(),
			})
		}
	}
}

func (r *Room) finishRaceLocked(cars []*physics.Car) {
	results := r.arbiter.Results(cars, func(playerID string) string {
		if p, ok := r.players[playerID]; ok {
			return p.Nickname
		}
		return playerID
	})

	r.state = StateResults
	r.phaseTicks = 0
	r.broadcastLocked(&protocol.ServerMessage{
		Type:    protocol.KindRaceFinished,
		Results: results,
	})
	r.log.Info().Int("finishers", countFinished(results)).Msg("race finished")

	// Persistence runs off the tick goroutine; disk latency must never
	// stall the simulation.
	if r.onLapRecord != nil || r.onRaceResults != nil {
		lapHook, resultsHook := r.onLapRecord, r.onRaceResults
		roomID, trackID := r.ID, r.track.ID
		recorded := make([]protocol.RaceResult, len(results))
		copy(recorded, results)
		go func() {
			if lapHook != nil {
				for _, res := range recorded {
					if res.BestLapMs > 0 {
						lapHook(trackID, res.Nickname, res.BestLapMs)
					}
				}
			}
			if resultsHook != nil {
				resultsHook(roomID, trackID, recorded)
			}
		}()
	}
}

func countFinished(results []protocol.RaceResult) (n int) {
	for _, res := range results {
		if res.Finished {
			n++
		}
	}
	return
}

func (r *Room) resetToLobbyLocked() {
	r.state = StateWaiting
	r.arbiter = nil
	r.pendingEvents = nil
	for _, p := range r.players {
		p.Car = nil
		p.Ready = false
		p.hasInput = false
		p.input = physics.Input{}
	}
}

// Broadcast emits one state snapshot to every connected player. Driven by
// the 20 Hz loop; exported for deterministic tests.
func (r *Room) Broadcast() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateCountdown && r.state != StateRacing && r.state != StateResults {
		return
	}

	r.sequence++
	snapshot := &protocol.GameStateSnapshot{
		Sequence:  r.sequence,
		Timestamp: time.Now().UnixMilli(),
		GameState: r.state,
		ElapsedMs: r.elapsedLocked().Milliseconds(),
		Cars:      r.snapshotCarsLocked(),
		Events:    r.pendingEvents,
	}
	r.pendingEvents = nil

	r.broadcastLocked(&protocol.ServerMessage{
		Type:     protocol.KindGameState,
		Snapshot: snapshot,
	})
}

func (r *Room) snapshotCarsLocked() []protocol.CarStateSnapshot {
	snaps := make([]protocol.CarStateSnapshot, 0, len(r.seatOrder))
	for _, id := range r.seatOrder {
		p, ok := r.players[id]
		if !ok || p.Car == nil {
			continue
		}
		steering := p.input.Steer() * physics.MaxSteeringAngle
		snaps = append(snaps, protocol.SnapshotCar(p.Car, steering))
	}
	return snaps
}

func (r *Room) broadcastLocked(msg *protocol.ServerMessage) {
	for _, p := range r.players {
		r.sendLocked(p, msg)
	}
}

func (r *Room) broadcastExceptLocked(exceptID string, msg *protocol.ServerMessage) {
	for id, p := range r.players {
		if id == exceptID {
			continue
		}
		r.sendLocked(p, msg)
	}
}

func (r *Room) sendLocked(p *Player, msg *protocol.ServerMessage) {
	if !p.Connected || p.Conn == nil {
		return
	}
	if err := p.Conn.Send(msg); err != nil {
		r.log.Debug().Err(err).Str("player", p.ID).Msg("send failed")
	}
}
