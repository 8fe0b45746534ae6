// Package session is the game session state machine. It owns identity, room,
// round and roster state, reacts to inbound messages and lifecycle events and
// exposes the user intents.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/scribble-client/client/model"
	"github.com/adwski/scribble-client/client/storage/memory"
	"github.com/adwski/scribble-client/client/timer"
	"github.com/rs/zerolog"
)

const (
	defaultUsername  = "Player"
	defaultStatusTTL = 3 * time.Second

	maxChatLength = 256
)

var (
	ErrNotConnected    = errors.New("not connected to server")
	ErrInvalidRoomCode = errors.New("room code must be 6 characters")
	ErrAlreadyInRoom   = errors.New("already in a room")
	ErrNotInRoom       = errors.New("not in a room")
	ErrEmptyMessage    = errors.New("empty chat message")
	ErrMessageTooLong  = errors.New("chat message is too long")
	ErrNotDrawer       = errors.New("only the drawer can do that")
	ErrGameInProgress  = errors.New("game is still in progress")
	ErrStillConnected  = errors.New("connection is still active")
	ErrLeft            = errors.New("left the game")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRegistered
	StateWaitingInRoom
	StateCountdown
	StateDrawing
	StateGuessing
	StateRoundEnd
	StateGameEnd
	StateReconnecting
	StateFailed
)

var stateNames = map[State]string{
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateRegistered:    "registered",
	StateWaitingInRoom: "waiting",
	StateCountdown:     "countdown",
	StateDrawing:       "drawing",
	StateGuessing:      "guessing",
	StateRoundEnd:      "round_end",
	StateGameEnd:       "game_end",
	StateReconnecting:  "reconnecting",
	StateFailed:        "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

type (
	// Conn is the connection lifecycle as seen by the session.
	Conn interface {
		Connect(ctx context.Context, url string) error
		Reconnect(ctx context.Context) error
		Close()
		Send(t model.MessageType, data any) bool
	}

	// Board is the drawing surface.
	Board interface {
		// Clear erases the canvas locally.
		Clear()
		// ClearLocal erases the canvas and broadcasts the clear.
		ClearLocal() bool
		// Reset restarts per-connection stroke numbering.
		Reset()
	}

	// UI is the set of sinks the presentation layer supplies. Calls are made
	// outside of session locks, so implementations may read the session back.
	UI interface {
		ShowStatus(text string)
		ClearStatus()
		ShowNotice(text string)
		ShowRoom(code string)
		RenderPlayers(players []model.Player, self uint32)
		AppendChat(entry ChatEntry)
		ShowTimer(seconds int)
		// ShowCountdown hides the countdown when seconds is 0.
		ShowCountdown(seconds int)
		ShowWord(word string)
		ShowRound(round, total int)
		ShowRanking(ranks []Rank)
		SetDrawingEnabled(enabled bool)
		ShowReconnectDialog(visible bool)
		// ShowCanvasMessage hides the overlay when text is empty.
		ShowCanvasMessage(text string)
	}

	ChatEntry struct {
		Sender string
		Text   string
		System bool
	}

	Config struct {
		Logger    *zerolog.Logger
		Conn      Conn
		UI        UI
		Roster    *memory.Roster
		Scheduler timer.Scheduler
		Username  string
		StatusTTL time.Duration
	}

	Session struct {
		mx        *sync.Mutex
		conn      Conn
		ui        UI
		board     Board
		roster    *memory.Roster
		scheduler timer.Scheduler
		statusTTL time.Duration

		state       State
		lifecycle   uint64
		left        bool
		username    string
		playerID    uint32
		registered  bool
		registering bool
		token       string

		inRoom        bool
		roomID        uint32
		roomCode      string
		round         int
		totalRounds   int
		timeRemaining int
		wordMask      string
		word          string
		drawing       bool

		status    timer.Task
		statusSeq uint64

		logger zerolog.Logger
	}

	// Snapshot is a read-only copy of the session state.
	Snapshot struct {
		State         string         `json:"state"`
		Username      string         `json:"username"`
		PlayerID      *uint32        `json:"player_id,omitempty"`
		HasToken      bool           `json:"has_session_token"`
		RoomID        uint32         `json:"room_id,omitempty"`
		RoomCode      string         `json:"room_code,omitempty"`
		Round         int            `json:"round,omitempty"`
		TotalRounds   int            `json:"total_rounds,omitempty"`
		TimeRemaining int            `json:"time_remaining,omitempty"`
		WordMask      string         `json:"word_mask,omitempty"`
		Drawing       bool           `json:"drawing"`
		Players       []model.Player `json:"players"`
	}

	// effects are UI and board calls collected under the lock and run after it is released.
	effects []func()
)

func New(cfg Config) *Session {
	s := &Session{
		mx:        &sync.Mutex{},
		conn:      cfg.Conn,
		ui:        cfg.UI,
		roster:    cfg.Roster,
		scheduler: cfg.Scheduler,
		statusTTL: cfg.StatusTTL,
		username:  cfg.Username,
		logger:    cfg.Logger.With().Str("component", "session").Logger(),
	}
	if s.roster == nil {
		s.roster = memory.NewRoster()
	}
	if s.scheduler == nil {
		s.scheduler = timer.Real{}
	}
	if s.statusTTL == 0 {
		s.statusTTL = defaultStatusTTL
	}
	if s.username == "" {
		s.username = defaultUsername
	}
	return s
}

// BindBoard attaches the drawing surface. It must be called before Connect.
func (s *Session) BindBoard(b Board) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.board = b
}

func (s *Session) State() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

// PlayerID returns the server assigned id once registration completed.
func (s *Session) PlayerID() (uint32, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.playerID, s.registered
}

// IsDrawing reports whether the local player is the current drawer.
func (s *Session) IsDrawing() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.drawing
}

func (s *Session) SessionToken() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.token
}

func (s *Session) Snapshot() Snapshot {
	s.mx.Lock()
	defer s.mx.Unlock()
	snap := Snapshot{
		State:         s.state.String(),
		Username:      s.username,
		HasToken:      s.token != "",
		RoomID:        s.roomID,
		RoomCode:      s.roomCode,
		Round:         s.round,
		TotalRounds:   s.totalRounds,
		TimeRemaining: s.timeRemaining,
		WordMask:      s.wordMask,
		Drawing:       s.drawing,
		Players:       s.roster.Players(),
	}
	if s.registered {
		id := s.playerID
		snap.PlayerID = &id
	}
	return snap
}

// update runs fn under the session lock and then the effects it collected.
func (s *Session) update(fn func(fx *effects)) {
	var fx effects
	s.mx.Lock()
	fn(&fx)
	s.mx.Unlock()
	fx.run()
}

func (fx *effects) add(f func()) {
	*fx = append(*fx, f)
}

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}

func (s *Session) setStateLocked(st State) {
	if s.state != st {
		s.logger.Debug().Stringer("from", s.state).Stringer("to", st).Msg("session state change")
	}
	s.state = st
}

// statusLocked shows a transient status; it is cleared after StatusTTL
// unless a newer status replaced it.
func (s *Session) statusLocked(fx *effects, text string) {
	if s.status != nil {
		s.status.Stop()
	}
	s.statusSeq++
	seq := s.statusSeq
	s.status = s.scheduler.AfterFunc(s.statusTTL, func() {
		s.update(func(fx *effects) {
			if seq != s.statusSeq {
				return
			}
			s.status = nil
			fx.add(s.ui.ClearStatus)
		})
	})
	fx.add(func() { s.ui.ShowStatus(text) })
}

func (s *Session) noticeLocked(fx *effects, text string) {
	fx.add(func() { s.ui.ShowNotice(text) })
}

func (s *Session) systemLocked(fx *effects, text string) {
	fx.add(func() { s.ui.AppendChat(ChatEntry{Sender: "System", Text: text, System: true}) })
}

func (s *Session) renderPlayersLocked(fx *effects) {
	players := s.roster.Players()
	self := s.playerID
	fx.add(func() { s.ui.RenderPlayers(players, self) })
}

func (s *Session) setDrawingLocked(fx *effects, drawing bool) {
	s.drawing = drawing
	fx.add(func() { s.ui.SetDrawingEnabled(drawing) })
}

// selfDrawingLocked scans the roster for the local player's drawer flag.
func (s *Session) selfDrawingLocked() bool {
	if !s.registered {
		return false
	}
	p, ok := s.roster.Get(s.playerID)
	return ok && p.IsDrawing
}

func (s *Session) boardLocked(fx *effects, fn func(b Board)) {
	if b := s.board; b != nil {
		fx.add(func() { fn(b) })
	}
}

// resetRoomLocked drops room and round data, keeping identity.
func (s *Session) resetRoomLocked(fx *effects) {
	s.inRoom = false
	s.roomID = 0
	s.roomCode = ""
	s.round = 0
	s.totalRounds = 0
	s.timeRemaining = 0
	s.wordMask = ""
	s.word = ""
	s.roster.Reset()
	s.setDrawingLocked(fx, false)
	s.boardLocked(fx, Board.Clear)
	fx.add(func() {
		s.ui.ShowCountdown(0)
		s.ui.ShowCanvasMessage("")
		s.ui.RenderPlayers(nil, 0)
	})
}

// forgetIdentityLocked drops the registration bound to a previous connection.
func (s *Session) forgetIdentityLocked() {
	s.registered = false
	s.registering = false
	s.playerID = 0
}

// landingStateLocked is where a player without a room rests.
func (s *Session) landingStateLocked() State {
	if s.registered {
		return StateRegistered
	}
	return StateConnected
}
