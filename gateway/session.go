package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"slipstream/protocol"
	"slipstream/room"
)

const (
	maxChatLength  = 200
	maxEmoteLength = 32
)

var errSlowConsumer = errors.New("outbound queue full, message dropped")

// session is one connected player: the socket, the bounded outbound queue,
// and the room seat if any. The read and write pumps run under an errgroup;
// the first pump to fail tears the session down.
type session struct {
	g    *Gateway
	log  zerolog.Logger
	conn *websocket.Conn

	playerID string
	player   *room.Player
	room     *room.Room

	out  chan *protocol.ServerMessage
	done chan struct{}

	// lastPingNano and rttMicros are touched from both pumps, hence atomic.
	lastPingNano int64
	rttMicros    int64
}

func newSession(g *Gateway, conn *websocket.Conn, resumeID string) *session {
	playerID := resumeID
	if playerID == "" {
		playerID = uuid.NewString()
	}
	return &session{
		g:        g,
		log:      g.log.With().Str("player", playerID).Logger(),
		conn:     conn,
		playerID: playerID,
		out:      make(chan *protocol.ServerMessage, outboundBuffer),
		done:     make(chan struct{}),
	}
}

// Send queues one message for the write pump. Never blocks: a full queue
// means the client is too slow and the message is dropped.
func (s *session) Send(msg *protocol.ServerMessage) error {
	select {
	case s.out <- msg:
		return nil
	case <-s.done:
		return errors.New("session closed")
	default:
		return errSlowConsumer
	}
}

func (s *session) run(ctx context.Context) {
	defer s.conn.Close()

	s.welcome()
	s.tryResume()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return s.readPump(ctx) })
	grp.Go(func() error { return s.writePump(ctx) })

	if err := grp.Wait(); err != nil &&
		!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.log.Debug().Err(err).Dur("rtt", s.RTT()).Msg("session ended")
	}
	close(s.done)

	// Keep the seat for the reconnect window; the room sweep evicts it if
	// the player never returns.
	if s.room != nil {
		s.room.MarkDisconnected(s.playerID)
	}
}

func (s *session) welcome() {
	_ = s.Send(&protocol.ServerMessage{
		Type:       protocol.KindWelcome,
		PlayerID:   s.playerID,
		ServerTime: time.Now().UnixMilli(),
	})
}

// tryResume reattaches a returning socket to a surviving seat.
func (s *session) tryResume() {
	rm, ok := s.g.roomFor(s.playerID)
	if !ok {
		return
	}
	if err := rm.Resume(s.playerID, s); err != nil {
		s.g.forgetRoom(s.playerID)
		return
	}
	s.room = rm
	s.log.Info().Str("room", rm.ID).Msg("session resumed")
}

func (s *session) readPump(ctx context.Context) error {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.observeRTT()
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			_ = s.Send(protocol.ErrorMessage(protocol.CodeBadMessage, err.Error()))
			continue
		}
		s.dispatch(msg)
	}
}

func (s *session) writePump(ctx context.Context) error {
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-pings.C:
			atomic.StoreInt64(&s.lastPingNano, time.Now().UnixNano())
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (s *session) dispatch(msg *protocol.ClientMessage) {
	switch msg.Type {
	case protocol.KindCreateRoom:
		s.handleCreateRoom(msg)
	case protocol.KindJoinRoom:
		s.handleJoinRoom(msg)
	case protocol.KindLeaveRoom:
		s.handleLeaveRoom()
	case protocol.KindSetReady:
		s.handleSetReady(msg)
	case protocol.KindStartGame:
		s.handleStartGame()
	case protocol.KindInput:
		s.handleInput(msg)
	case protocol.KindChat:
		s.handleChat(msg)
	case protocol.KindEmote:
		s.handleEmote(msg)
	case protocol.KindRequestRoomList:
		s.handleRoomList()
	case protocol.KindRequestTrackList:
		s.handleTrackList()
	case protocol.KindPing:
		s.handlePing(msg)
	default:
		_ = s.Send(protocol.ErrorMessage(protocol.CodeBadMessage,
			fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

func (s *session) seatPlayer(msg *protocol.ClientMessage) (*room.Player, bool) {
	if !ValidNickname(msg.Nickname) {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeInvalidNickname,
			"nickname must be 2-16 letters, digits, underscore, or hyphen"))
		return nil, false
	}
	return &room.Player{
		ID:       s.playerID,
		Nickname: msg.Nickname,
		Color:    s.g.pickColor(msg.PreferredColor),
		Conn:     s,
	}, true
}

func (s *session) handleCreateRoom(msg *protocol.ClientMessage) {
	if s.room != nil {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeCreateFailed, "already in a room"))
		return
	}
	p, ok := s.seatPlayer(msg)
	if !ok {
		return
	}
	settings := protocol.RoomSettings{}
	if msg.Settings != nil {
		settings = *msg.Settings
	}

	rm, err := s.g.manager.CreateRoom(settings, p)
	if err != nil {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeCreateFailed, err.Error()))
		return
	}
	s.player = p
	s.room = rm
	s.g.rememberRoom(s.playerID, rm)
}

func (s *session) handleJoinRoom(msg *protocol.ClientMessage) {
	// Joining while seated moves the player: the old seat is released first
	// so its room sees a normal departure.
	if s.room != nil {
		s.room.Leave(s.playerID)
		s.g.forgetRoom(s.playerID)
		s.room = nil
		s.player = nil
	}
	p, ok := s.seatPlayer(msg)
	if !ok {
		return
	}

	var rm *room.Room
	var err error
	switch {
	case msg.Code != "":
		rm, err = s.g.manager.JoinByCode(msg.Code, p)
	case msg.RoomID != "":
		rm, err = s.g.manager.JoinByID(msg.RoomID, p)
	default:
		_ = s.Send(protocol.ErrorMessage(protocol.CodeJoinFailed, "room code or id required"))
		return
	}
	if err != nil {
		_ = s.Send(protocol.ErrorMessage(joinErrorCode(err), err.Error()))
		return
	}
	s.player = p
	s.room = rm
	s.g.rememberRoom(s.playerID, rm)
}

func (s *session) handleLeaveRoom() {
	if s.room == nil {
		return
	}
	s.room.Leave(s.playerID)
	s.g.forgetRoom(s.playerID)
	s.room = nil
	s.player = nil
	_ = s.Send(&protocol.ServerMessage{Type: protocol.KindRoomLeft})
}

func (s *session) handleSetReady(msg *protocol.ClientMessage) {
	if s.room == nil {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeNoRoom, "not in a room"))
		return
	}
	ready := msg.Ready != nil && *msg.Ready
	if err := s.room.SetReady(s.playerID, ready); err != nil {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeBadMessage, err.Error()))
	}
}

func (s *session) handleStartGame() {
	if s.room == nil {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeNoRoom, "not in a room"))
		return
	}
	switch err := s.room.StartRace(s.playerID); {
	case err == nil:
	case errors.Is(err, room.ErrNotHost):
		_ = s.Send(protocol.ErrorMessage(protocol.CodeNotHost, err.Error()))
	default:
		_ = s.Send(protocol.ErrorMessage(protocol.CodeCannotStart, err.Error()))
	}
}

func (s *session) handleInput(msg *protocol.ClientMessage) {
	if s.room == nil {
		return
	}
	in := msg.Input()
	if in.Timestamp == 0 {
		in.Timestamp = time.Now().UnixMilli()
	}
	s.room.HandleInput(s.playerID, in)
}

func (s *session) handleChat(msg *protocol.ClientMessage) {
	if s.room == nil {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeNoRoom, "not in a room"))
		return
	}
	text := msg.Message
	if text == "" || len(text) > maxChatLength {
		return
	}
	if err := s.room.Chat(s.playerID, text); err != nil {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeBadMessage, err.Error()))
	}
}

func (s *session) handleEmote(msg *protocol.ClientMessage) {
	if s.room == nil {
		return
	}
	if msg.Emote == "" || len(msg.Emote) > maxEmoteLength {
		return
	}
	_ = s.room.Emote(s.playerID, msg.Emote)
}

func (s *session) handleRoomList() {
	_ = s.Send(&protocol.ServerMessage{
		Type:  protocol.KindRoomList,
		Rooms: s.g.manager.List(),
	})
}

func (s *session) handleTrackList() {
	tracks, err := s.g.tracks.List()
	if err != nil {
		_ = s.Send(protocol.ErrorMessage(protocol.CodeBadMessage, "track list unavailable"))
		return
	}
	_ = s.Send(&protocol.ServerMessage{
		Type:   protocol.KindTrackList,
		Tracks: tracks,
	})
}

// observeRTT folds one transport ping round trip into a smoothed estimate.
func (s *session) observeRTT() {
	sent := atomic.LoadInt64(&s.lastPingNano)
	if sent == 0 {
		return
	}
	sample := time.Since(time.Unix(0, sent)).Microseconds()
	prev := atomic.LoadInt64(&s.rttMicros)
	if prev == 0 {
		atomic.StoreInt64(&s.rttMicros, sample)
		return
	}
	// Exponential moving average, seven parts history to one part sample.
	atomic.StoreInt64(&s.rttMicros, (prev*7+sample)/8)
}

// RTT reports the smoothed transport round-trip estimate, zero until the
// first pong arrives.
func (s *session) RTT() time.Duration {
	return time.Duration(atomic.LoadInt64(&s.rttMicros)) * time.Microsecond
}

// handlePing answers the application-level clock probe. The client derives
// round-trip time and clock offset from the echoed timestamps; transport
// liveness uses websocket ping frames separately.
func (s *session) handlePing(msg *protocol.ClientMessage) {
	_ = s.Send(&protocol.ServerMessage{
		Type:            protocol.KindPong,
		ClientTimestamp: msg.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	})
}

var _ room.Sender = (*session)(nil)
