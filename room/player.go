package room

import (
	"time"

	"slipstream/physics"
	"slipstream/protocol"
)

// Sender is the outbound half of a player's connection. The gateway session
// implements it; tests substitute a recording fake. Send must not block the
// room tick: implementations buffer or drop.
type Sender interface {
	Send(msg *protocol.ServerMessage) error
}

// Player is one seat in a room: lobby identity plus, during a race, the car
// it drives and the freshest input it has sent.
type Player struct {
	ID       string
	Nickname string
	Color    string
	Ready    bool
	IsHost   bool

	Connected      bool
	DisconnectedAt time.Time

	Conn Sender

	// Car is nil outside countdown/racing.
	Car *physics.Car

	// input is the latest-wins control record applied on the next physics
	// tick. Older sequences are discarded on arrival, never queued.
	input    physics.Input
	hasInput bool

	lastChat  time.Time
	lastEmote time.Time
}

// Profile returns the lobby-facing view of the player.
func (p *Player) Profile() protocol.PlayerProfile {
	return protocol.PlayerProfile{
		ID:        p.ID,
		Nickname:  p.Nickname,
		Color:     p.Color,
		Ready:     p.Ready,
		IsHost:    p.IsHost,
		Connected: p.Connected,
	}
}

// offerInput keeps in only if it is newer than the held record. The respawn
// flag is sticky: once seen it survives until the tick that services it, so
// a respawn cannot be lost to a later keyframe.
func (p *Player) offerInput(in physics.Input) {
	if p.hasInput && in.Sequence < p.input.Sequence {
		return
	}
	respawn := p.input.Respawn || in.Respawn
	p.input = in
	p.input.Respawn = respawn
	p.hasInput = true
}

// takeInput returns the held input for one physics tick and clears the
// respawn latch.
func (p *Player) takeInput() physics.Input {
	in := p.input
	p.input.Respawn = false
	return in
}
