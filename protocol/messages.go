// Package protocol defines the wire records exchanged between server and
// client. The transport carries discriminated JSON records: a string "type"
// tag plus whichever optional fields that kind uses. The flat shape is
// load-bearing for interop with existing clients, so new fields may be
// added but the tag-plus-optionals layout must stay.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"slipstream/physics"
	"slipstream/track"
)

// Client -> server message kinds.
const (
	KindCreateRoom       = "create_room"
	KindJoinRoom         = "join_room"
	KindLeaveRoom        = "leave_room"
	KindSetReady         = "set_ready"
	KindStartGame        = "start_game"
	KindInput            = "input"
	KindChat             = "chat"
	KindEmote            = "emote"
	KindRequestRoomList  = "request_room_list"
	KindRequestTrackList = "request_track_list"
	KindPing             = "ping"
)

// Server -> client message kinds.
const (
	KindWelcome          = "welcome"
	KindRoomJoined       = "room_joined"
	KindRoomLeft         = "room_left"
	KindPlayerJoined     = "player_joined"
	KindPlayerLeft       = "player_left"
	KindPlayerReady      = "player_ready"
	KindGameStarting     = "game_starting"
	KindCountdown        = "countdown"
	KindGameStarted      = "game_started"
	KindGameState        = "game_state"
	KindCheckpointPassed = "checkpoint_passed"
	KindLapCompleted     = "lap_completed"
	KindPlayerFinished   = "player_finished"
	KindRaceFinished     = "race_finished"
	KindCollision        = "collision"
	KindRoomList         = "room_list"
	KindTrackList        = "track_list"
	KindError            = "error"
	KindPong             = "pong"
)

// Error codes carried by error messages.
const (
	CodeInvalidNickname = "INVALID_NICKNAME"
	CodeNoRoom          = "NO_ROOM"
	CodeJoinFailed      = "JOIN_FAILED"
	CodeNotHost         = "NOT_HOST"
	CodeCannotStart     = "CANNOT_START"
	CodeCreateFailed    = "CREATE_FAILED"
	CodeBadMessage      = "BAD_MESSAGE"
)

// RoomSettings configure a room at creation.
type RoomSettings struct {
	MaxPlayers       int    `json:"maxPlayers"`
	LapCount         int    `json:"lapCount"`
	IsPrivate        bool   `json:"isPrivate"`
	AllowMidRaceJoin bool   `json:"allowMidRaceJoin"`
	EnableChat       bool   `json:"enableChat"`
	TrackID          string `json:"trackId"`
	// AutoRespawn enables time-based respawn for stuck cars. Off by default.
	AutoRespawn bool `json:"autoRespawn,omitempty"`
}

// PlayerProfile is the lobby-facing view of a player.
type PlayerProfile struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Color     string `json:"color"`
	Ready     bool   `json:"ready"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
}

// RoomInfo is the room header sent on join.
type RoomInfo struct {
	ID       string       `json:"id"`
	Code     string       `json:"code"`
	HostID   string       `json:"hostId"`
	State    string       `json:"state"`
	Settings RoomSettings `json:"settings"`
}

// RoomSummary is one row of the public room list.
type RoomSummary struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	State      string `json:"state"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
	TrackID    string `json:"trackId"`
}

// TrackSummary is one row of the track list.
type TrackSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Author          string `json:"author"`
	Difficulty      string `json:"difficulty"`
	DefaultLapCount int    `json:"defaultLapCount"`
}

// RaceResult is one row of the final standings.
type RaceResult struct {
	PlayerID   string  `json:"playerId"`
	Nickname   string  `json:"nickname"`
	Position   int     `json:"position"`
	Finished   bool    `json:"finished"`
	TotalMs    int64   `json:"totalTime"`
	LapTimesMs []int64 `json:"lapTimes"`
	BestLapMs  int64   `json:"bestLap,omitempty"`
}

// ClientMessage is any client-to-server record. Only the fields for the
// tagged kind are populated.
type ClientMessage struct {
	Type string `json:"type"`

	// create_room / join_room
	Settings       *RoomSettings `json:"settings,omitempty"`
	Nickname       string        `json:"nickname,omitempty"`
	PreferredColor string        `json:"preferredColor,omitempty"`
	RoomID         string        `json:"roomId,omitempty"`
	Code           string        `json:"code,omitempty"`

	// set_ready
	Ready *bool `json:"ready,omitempty"`

	// input
	PlayerID   string  `json:"playerId,omitempty"`
	Sequence   uint32  `json:"sequence,omitempty"`
	Timestamp  int64   `json:"timestamp,omitempty"`
	Accelerate bool    `json:"accelerate,omitempty"`
	Brake      bool    `json:"brake,omitempty"`
	SteerLeft  bool    `json:"steerLeft,omitempty"`
	SteerRight bool    `json:"steerRight,omitempty"`
	SteerValue float64 `json:"steerValue,omitempty"`
	Nitro      bool    `json:"nitro,omitempty"`
	Handbrake  bool    `json:"handbrake,omitempty"`
	Respawn    bool    `json:"respawn,omitempty"`

	// chat / emote
	Message string `json:"message,omitempty"`
	Emote   string `json:"emote,omitempty"`
}

// Input extracts the physics input record from an input message.
func (m *ClientMessage) Input() physics.Input {
	return physics.Input{
		Sequence:   m.Sequence,
		Timestamp:  m.Timestamp,
		Accelerate: m.Accelerate,
		Brake:      m.Brake,
		SteerLeft:  m.SteerLeft,
		SteerRight: m.SteerRight,
		SteerValue: m.SteerValue,
		Nitro:      m.Nitro,
		Handbrake:  m.Handbrake,
		Respawn:    m.Respawn,
	}
}

// ErrAliasedInput rejects the retired input field aliases. Earlier clients
// sent turnLeft/turnRight/boost alongside (or instead of) the canonical
// names; accepting both invites silently conflicting values, so the wire now
// refuses them outright.
var ErrAliasedInput = errors.New("aliased input fields are not accepted; use steerLeft/steerRight/nitro")

type aliasProbe struct {
	TurnLeft  *bool `json:"turnLeft"`
	TurnRight *bool `json:"turnRight"`
	Boost     *bool `json:"boost"`
}

// DecodeClientMessage parses and validates one inbound record.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var probe aliasProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if probe.TurnLeft != nil || probe.TurnRight != nil || probe.Boost != nil {
		return nil, ErrAliasedInput
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("message has no type tag")
	}
	return &msg, nil
}

// ServerMessage is any server-to-client record, same flat tagged layout.
type ServerMessage struct {
	Type string `json:"type"`

	// welcome / pong
	PlayerID        string `json:"playerId,omitempty"`
	ServerTime      int64  `json:"serverTime,omitempty"`
	ClientTimestamp int64  `json:"clientTimestamp,omitempty"`
	ServerTimestamp int64  `json:"serverTimestamp,omitempty"`

	// room lifecycle
	Room    *RoomInfo       `json:"room,omitempty"`
	Players []PlayerProfile `json:"players,omitempty"`
	Player  *PlayerProfile  `json:"player,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Ready   *bool           `json:"ready,omitempty"`

	// race lifecycle
	Countdown *int               `json:"countdown,omitempty"`
	Count     *int               `json:"count,omitempty"`
	Track     *track.Track       `json:"track,omitempty"`
	Cars      []CarStateSnapshot `json:"cars,omitempty"`
	StartTime int64              `json:"startTime,omitempty"`

	// game state + race events
	Snapshot   *GameStateSnapshot `json:"snapshot,omitempty"`
	Checkpoint *int               `json:"checkpoint,omitempty"`
	TimeMs     int64              `json:"time,omitempty"`
	Lap        *int               `json:"lap,omitempty"`
	LapTimeMs  *int64             `json:"lapTime,omitempty"`
	Position   *int               `json:"position,omitempty"`
	TotalMs    *int64             `json:"totalTime,omitempty"`
	Results    []RaceResult       `json:"results,omitempty"`
	OtherID    string             `json:"otherId,omitempty"`

	// chat / emote
	Nickname string `json:"nickname,omitempty"`
	Message  string `json:"message,omitempty"`
	Emote    string `json:"emote,omitempty"`

	// listings
	Rooms  []RoomSummary  `json:"rooms,omitempty"`
	Tracks []TrackSummary `json:"tracks,omitempty"`

	// error
	Code string `json:"code,omitempty"`
}

// ErrorMessage builds a single-recipient error record.
func ErrorMessage(code, message string) *ServerMessage {
	return &ServerMessage{Type: KindError, Code: code, Message: message}
}

// DecodeServerMessage parses one server record; used by the client side and
// by tests.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return nil, errors.New("message has no type tag")
	}
	return &msg, nil
}
