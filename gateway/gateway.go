// Package gateway terminates websocket connections and bridges them to the
// room layer: one session per socket, a read pump dispatching the tagged
// JSON records, and a write pump draining a bounded outbound queue so a slow
// client can never stall a room tick.
package gateway

import (
	"errors"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"slipstream/protocol"
	"slipstream/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 65536
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// outboundBuffer is the per-session send queue. At 20 Hz snapshots this
	// is several seconds of slack before messages are dropped.
	outboundBuffer = 256
)

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{2,16}$`)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// defaultColors is the palette cycled through when players do not pick one.
var defaultColors = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
}

// Gateway owns the live sessions and the player-to-room index used for
// reconnects.
type Gateway struct {
	log     zerolog.Logger
	manager *room.Manager
	tracks  room.TrackSource

	upgrader websocket.Upgrader

	mu sync.Mutex
	// roomByPlayer survives a session's socket so a reconnecting player can
	// resume their seat within the disconnect grace window.
	roomByPlayer map[string]*room.Room
	colorCursor  int
}

// New builds a gateway over the room manager and track source.
func New(log zerolog.Logger, manager *room.Manager, tracks room.TrackSource) *Gateway {
	return &Gateway{
		log:     log.With().Str("component", "gateway").Logger(),
		manager: manager,
		tracks:  tracks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The game client is served from arbitrary origins during
			// development; room codes are the access control.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		roomByPlayer: make(map[string]*room.Room),
	}
}

// ServeHTTP upgrades one websocket connection and runs its session to
// completion.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := newSession(g, conn, r.URL.Query().Get("playerId"))
	s.run(r.Context())
}

func (g *Gateway) rememberRoom(playerID string, rm *room.Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roomByPlayer[playerID] = rm
}

func (g *Gateway) forgetRoom(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.roomByPlayer, playerID)
}

func (g *Gateway) roomFor(playerID string) (*room.Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rm, ok := g.roomByPlayer[playerID]
	return rm, ok
}

func (g *Gateway) nextColor() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := defaultColors[g.colorCursor%len(defaultColors)]
	g.colorCursor++
	return c
}

// pickColor honors a well-formed preference and falls back to the palette.
func (g *Gateway) pickColor(preferred string) string {
	if colorPattern.MatchString(preferred) {
		return preferred
	}
	return g.nextColor()
}

// ValidNickname reports whether a nickname is acceptable: 2-16 characters
// drawn from letters, digits, underscore, and hyphen.
func ValidNickname(nick string) bool {
	return nicknamePattern.MatchString(nick)
}

// joinErrorCode maps room-layer join failures onto wire error codes.
func joinErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, room.ErrRoomFull),
		errors.Is(err, room.ErrRaceInProgress),
		errors.Is(err, room.ErrPrivateRoom),
		errors.Is(err, room.ErrRoomClosed):
		return protocol.CodeJoinFailed
	case errors.Is(err, room.ErrTrackNotFound):
		return protocol.CodeCreateFailed
	default:
		return protocol.CodeBadMessage
	}
}
