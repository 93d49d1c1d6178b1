package room

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/rs/zerolog"

	"slipstream/physics"
	"slipstream/protocol"
	"slipstream/track"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrTrackNotFound = errors.New("track not found")
	ErrPrivateRoom   = errors.New("room is private, join by code")
)

// TrackSource resolves track IDs for room creation and serves the track
// list. The storage layer implements it.
type TrackSource interface {
	Track(id string) (*track.Track, error)
	List() ([]protocol.TrackSummary, error)
}

// gcInterval is how often the manager sweeps for abandoned rooms.
const gcInterval = time.Minute

// codeAlphabet excludes the confusable characters (0/O, 1/I/L) so codes
// survive being read aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

// Manager owns the live room set: creation, code lookup, and the idle
// sweep that retires empty rooms.
type Manager struct {
	mu     sync.Mutex
	log    zerolog.Logger
	rooms  map[string]*Room
	byCode map[string]*Room

	tracks        TrackSource
	onLapRecord   func(trackID, nickname string, lapMs int64)
	onRaceResults func(roomID, trackID string, results []protocol.RaceResult)

	rng *rand.Rand

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager builds a manager over the given track source.
func NewManager(log zerolog.Logger, tracks TrackSource) *Manager {
	return &Manager{
		log:      log.With().Str("component", "rooms").Logger(),
		rooms:    make(map[string]*Room),
		byCode:   make(map[string]*Room),
		tracks:   tracks,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan: make(chan struct{}),
	}
}

// SetLapRecorder installs the leaderboard hook passed on to every room.
func (m *Manager) SetLapRecorder(fn func(trackID, nickname string, lapMs int64)) {
	m.onLapRecord = fn
}

// SetResultsRecorder installs the race-archive hook passed on to every room.
func (m *Manager) SetResultsRecorder(fn func(roomID, trackID string, results []protocol.RaceResult)) {
	m.onRaceResults = fn
}

// Start launches the idle sweep. Stop halts it and every room.
func (m *Manager) Start() {
	go func() {
		for range channerics.NewTicker(m.stopChan, gcInterval) {
			m.sweepIdle()
		}
	}()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		r.Stop()
	}
}

// CreateRoom builds, registers, and starts a room, then seats the creator
// as host.
func (m *Manager) CreateRoom(settings protocol.RoomSettings, host *Player) (*Room, error) {
	trackID := settings.TrackID
	if trackID == "" {
		trackID = track.DefaultTrackID
	}
	tr, err := m.tracks.Track(trackID)
	if err != nil && trackID != track.DefaultTrackID {
		// A stale or deleted track id falls back to the default course
		// rather than failing room creation.
		m.log.Warn().Str("track", trackID).Msg("requested track missing, using default")
		tr, err = m.tracks.Track(track.DefaultTrackID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrTrackNotFound, trackID)
	}

	m.mu.Lock()
	id := uuid.NewString()
	code := m.uniqueCodeLocked()
	r := NewRoom(m.log, id, code, settings, tr)
	if m.onLapRecord != nil {
		r.SetLapRecorder(m.onLapRecord)
	}
	if m.onRaceResults != nil {
		r.SetResultsRecorder(m.onRaceResults)
	}
	m.rooms[id] = r
	m.byCode[code] = r
	m.mu.Unlock()

	if err := r.Join(host); err != nil {
		m.remove(r)
		return nil, err
	}
	r.Start()
	m.log.Info().Str("room", id).Str("code", code).Str("track", tr.ID).Msg("room created")
	return r, nil
}

func (m *Manager) uniqueCodeLocked() string {
	for {
		var sb strings.Builder
		for i := 0; i < codeLength; i++ {
			sb.WriteByte(codeAlphabet[m.rng.Intn(len(codeAlphabet))])
		}
		code := sb.String()
		if _, taken := m.byCode[code]; !taken {
			return code
		}
	}
}

// JoinByCode seats a player in the room matching the (case-insensitive)
// join code.
func (m *Manager) JoinByCode(code string, p *Player) (*Room, error) {
	m.mu.Lock()
	r, ok := m.byCode[strings.ToUpper(strings.TrimSpace(code))]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	if err := r.Join(p); err != nil {
		return nil, err
	}
	return r, nil
}

// JoinByID seats a player in the room with the given ID. Private rooms are
// joinable by code only.
func (m *Manager) JoinByID(id string, p *Player) (*Room, error) {
	m.mu.Lock()
	r, ok := m.rooms[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	if r.IsPrivate() {
		return nil, ErrPrivateRoom
	}
	if err := r.Join(p); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a room by ID.
func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	return r, ok
}

// List returns the public room list. Private rooms are joinable by code
// only and never listed.
func (m *Manager) List() []protocol.RoomSummary {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	summaries := make([]protocol.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		if r.IsPrivate() {
			continue
		}
		summaries = append(summaries, r.Summary())
	}
	return summaries
}

// sweepIdle retires rooms that have been empty past the idle timeout, and
// lobbies whose occupants have gone quiet for just as long.
func (m *Manager) sweepIdle() {
	m.mu.Lock()
	candidates := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		candidates = append(candidates, r)
	}
	m.mu.Unlock()

	now := time.Now()
	for _, r := range candidates {
		empty := r.EmptySince()
		abandoned := !empty.IsZero() && now.Sub(empty) >= physics.RoomIdleTimeout
		stale := r.Info().State == StateWaiting &&
			now.Sub(r.IdleSince()) >= physics.RoomIdleTimeout
		if abandoned || stale {
			m.remove(r)
			m.log.Info().Str("room", r.ID).Msg("idle room removed")
		}
	}
}

func (m *Manager) remove(r *Room) {
	r.Stop()
	m.mu.Lock()
	delete(m.rooms, r.ID)
	delete(m.byCode, r.Code)
	m.mu.Unlock()
}
