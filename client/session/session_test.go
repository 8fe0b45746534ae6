package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adwski/scribble-client/client/model"
	"github.com/adwski/scribble-client/client/protocol"
	"github.com/adwski/scribble-client/client/timer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	t    model.MessageType
	data any
}

type fakeConn struct {
	mx           sync.Mutex
	connected    bool
	sent         []sentMessage
	closed       int
	reconnects   int
	connectErr   error
	reconnectErr error
	onReconnect  func()
}

func (f *fakeConn) Connect(context.Context, string) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeConn) Reconnect(context.Context) error {
	f.mx.Lock()
	f.reconnects++
	err, cb := f.reconnectErr, f.onReconnect
	f.mx.Unlock()
	if cb != nil {
		cb()
	}
	return err
}

func (f *fakeConn) Close() {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.connected = false
	f.closed++
}

func (f *fakeConn) Send(t model.MessageType, data any) bool {
	f.mx.Lock()
	defer f.mx.Unlock()
	if !f.connected {
		return false
	}
	f.sent = append(f.sent, sentMessage{t: t, data: data})
	return true
}

func (f *fakeConn) types() []model.MessageType {
	f.mx.Lock()
	defer f.mx.Unlock()
	out := make([]model.MessageType, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.t)
	}
	return out
}

func (f *fakeConn) last() sentMessage {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeBoard struct {
	clears      int
	localClears int
	resets      int
}

func (b *fakeBoard) Clear() { b.clears++ }
func (b *fakeBoard) ClearLocal() bool {
	b.localClears++
	return true
}
func (b *fakeBoard) Reset() { b.resets++ }

type recorder struct {
	mx         sync.Mutex
	statuses   []string
	cleared    int
	notices    []string
	rooms      []string
	players    []model.Player
	chat       []ChatEntry
	timers     []int
	countdowns []int
	words      []string
	rounds     [][2]int
	ranks      []Rank
	drawing    []bool
	dialog     []bool
	overlay    []string
}

func (r *recorder) ShowStatus(text string) { r.do(func() { r.statuses = append(r.statuses, text) }) }
func (r *recorder) ClearStatus()           { r.do(func() { r.cleared++ }) }
func (r *recorder) ShowNotice(text string) { r.do(func() { r.notices = append(r.notices, text) }) }
func (r *recorder) ShowRoom(code string)   { r.do(func() { r.rooms = append(r.rooms, code) }) }
func (r *recorder) RenderPlayers(players []model.Player, _ uint32) {
	r.mx.Lock()
	r.players = players
	r.mx.Unlock()
}
func (r *recorder) AppendChat(e ChatEntry) { r.do(func() { r.chat = append(r.chat, e) }) }
func (r *recorder) ShowTimer(s int)        { r.do(func() { r.timers = append(r.timers, s) }) }
func (r *recorder) ShowCountdown(s int)    { r.do(func() { r.countdowns = append(r.countdowns, s) }) }
func (r *recorder) ShowWord(w string)      { r.do(func() { r.words = append(r.words, w) }) }
func (r *recorder) ShowRound(round, total int) {
	r.mx.Lock()
	r.rounds = append(r.rounds, [2]int{round, total})
	r.mx.Unlock()
}
func (r *recorder) ShowRanking(ranks []Rank)   { r.do(func() { r.ranks = ranks }) }
func (r *recorder) SetDrawingEnabled(on bool)  { r.do(func() { r.drawing = append(r.drawing, on) }) }
func (r *recorder) ShowReconnectDialog(v bool) { r.do(func() { r.dialog = append(r.dialog, v) }) }
func (r *recorder) ShowCanvasMessage(t string) { r.do(func() { r.overlay = append(r.overlay, t) }) }

func (r *recorder) do(f func()) {
	r.mx.Lock()
	defer r.mx.Unlock()
	f()
}

func (r *recorder) systemLines(text string) int {
	r.mx.Lock()
	defer r.mx.Unlock()
	n := 0
	for _, e := range r.chat {
		if e.System && e.Text == text {
			n++
		}
	}
	return n
}

func (r *recorder) lastDrawing(t *testing.T) bool {
	t.Helper()
	r.mx.Lock()
	defer r.mx.Unlock()
	require.NotEmpty(t, r.drawing)
	return r.drawing[len(r.drawing)-1]
}

func (r *recorder) lastWord(t *testing.T) string {
	t.Helper()
	r.mx.Lock()
	defer r.mx.Unlock()
	require.NotEmpty(t, r.words)
	return r.words[len(r.words)-1]
}

type fixture struct {
	s      *Session
	conn   *fakeConn
	ui     *recorder
	board  *fakeBoard
	timers *timer.Manual
	router *protocol.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &fixture{
		conn:   &fakeConn{connected: true},
		ui:     &recorder{},
		board:  &fakeBoard{},
		timers: timer.NewManual(),
	}
	f.s = New(Config{
		Logger:    &logger,
		Conn:      f.conn,
		UI:        f.ui,
		Scheduler: f.timers,
	})
	f.s.BindBoard(f.board)

	b := protocol.NewBuilder()
	f.s.RegisterRoutes(b)
	f.router = b.Build(protocol.Config{Logger: &logger})
	return f
}

func (f *fixture) recv(t *testing.T, typ model.MessageType, data string) {
	t.Helper()
	require.True(t, f.router.Dispatch([]byte(fmt.Sprintf(`{"type":%d,"data":%s}`, int(typ), data))))
}

// joined brings the fixture to a registered player 1 waiting in room ABCDEF.
func (f *fixture) joined(t *testing.T) {
	t.Helper()
	f.recv(t, model.TypeRegisterAck, `{"player_id":1,"session_token":"tok-1"}`)
	f.recv(t, model.TypeRoomJoined, `{"room_id":9,"room_code":"ABCDEF","state":0,"players":[
		{"player_id":1,"username":"me","score":0},
		{"player_id":2,"username":"bob","score":5},
		{"player_id":3,"username":"eve","score":10}]}`)
}

func TestSession_RegisterThenCreateRoom(t *testing.T) {
	f := newFixture(t)
	f.s.OnConnected(false)
	assert.Equal(t, StateConnected, f.s.State())

	require.NoError(t, f.s.CreateRoom())
	assert.Equal(t, []model.MessageType{model.TypeRegister, model.TypeCreateRoom}, f.conn.types())
	assert.Equal(t, model.RegisterRequest{Username: "Player"}, f.conn.sent[0].data)

	f.recv(t, model.TypeRegisterAck, `{"player_id":7,"session_token":"secret"}`)
	assert.Equal(t, StateRegistered, f.s.State())
	id, ok := f.s.PlayerID()
	assert.True(t, ok)
	assert.Equal(t, uint32(7), id)
	assert.Equal(t, "secret", f.s.SessionToken())

	f.recv(t, model.TypeRoomCreated, `{"room_id":3,"room_code":"QWERTY"}`)
	assert.Equal(t, StateWaitingInRoom, f.s.State())
	assert.Equal(t, []string{"QWERTY"}, f.ui.rooms)
	assert.Contains(t, f.ui.statuses, "Room created! Code: QWERTY")

	// Registered players go straight to the room request.
	assert.ErrorIs(t, f.s.CreateRoom(), ErrAlreadyInRoom)
	assert.Len(t, f.conn.types(), 2)
}

func TestSession_RegisterUsesGivenName(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Register("  alice "))
	assert.Equal(t, model.RegisterRequest{Username: "alice"}, f.conn.last().data)

	f.recv(t, model.TypeRegisterAck, `{"player_id":2,"session_token":"x"}`)
	require.NoError(t, f.s.PlayNow())
	assert.Equal(t, []model.MessageType{model.TypeRegister, model.TypeJoinRoom}, f.conn.types())
	assert.Equal(t, model.JoinRoomRequest{}, f.conn.last().data)
}

func TestSession_JoinRoomValidation(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
		err  error
	}{
		{name: "empty", code: "", err: ErrInvalidRoomCode},
		{name: "blank", code: "      ", err: ErrInvalidRoomCode},
		{name: "short", code: "ABC12", err: ErrInvalidRoomCode},
		{name: "long", code: "ABC1234", err: ErrInvalidRoomCode},
		{name: "canonical", code: "ABC123", want: "ABC123"},
		{name: "lower case and padded", code: " abc123 ", want: "ABC123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.s.JoinRoom(tt.code)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Empty(t, f.conn.types())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.JoinRoomRequest{RoomCode: tt.want}, f.conn.last().data)
		})
	}
}

func TestSession_IntentsWhileDisconnected(t *testing.T) {
	f := newFixture(t)
	f.conn.connected = false

	assert.ErrorIs(t, f.s.PlayNow(), ErrNotConnected)
	assert.ErrorIs(t, f.s.Register("x"), ErrNotConnected)
	assert.Empty(t, f.conn.sent)
	assert.NotEmpty(t, f.ui.notices)
}

func TestSession_FirstJoinAnnouncedOnce(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	assert.Equal(t, 1, f.ui.systemLines("You joined the room"))
	assert.Equal(t, StateWaitingInRoom, f.s.State())

	// Mid-game refresh.
	f.recv(t, model.TypeRoomJoined, `{"room_id":9,"state":0,"players":[{"player_id":1,"username":"me"}]}`)
	assert.Equal(t, 1, f.ui.systemLines("You joined the room"))

	// Same payload shape delivered as a resumption.
	f.recv(t, model.TypeReconnectSuccess, `{"room_id":9,"room_code":"ABCDEF","state":0,"players":[{"player_id":1,"username":"me"}]}`)
	assert.Equal(t, 1, f.ui.systemLines("You joined the room"))
	assert.Contains(t, f.ui.statuses, "Reconnected successfully!")
	assert.Equal(t, "ABCDEF", f.s.Snapshot().RoomCode)
}

func TestSession_ReconnectSuccessNeverAnnounces(t *testing.T) {
	f := newFixture(t)
	f.recv(t, model.TypeReconnectSuccess, `{"room_id":4,"room_code":"ZZZZZZ","state":0,"players":[]}`)
	assert.Zero(t, f.ui.systemLines("You joined the room"))
	assert.Equal(t, StateWaitingInRoom, f.s.State())
}

func TestSession_ResumptionCycle(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	f.s.OnDisconnected(false)
	assert.Equal(t, StateReconnecting, f.s.State())
	assert.False(t, f.ui.lastDrawing(t))

	f.s.OnReconnecting(1, 2*time.Second)
	assert.Equal(t, StateReconnecting, f.s.State())

	f.s.OnConnected(true)
	assert.Equal(t, 1, f.board.resets)
	msg := f.conn.last()
	assert.Equal(t, model.TypeReconnectRequest, msg.t)
	assert.Equal(t, model.ReconnectRequest{SessionToken: "tok-1"}, msg.data)

	// Identity survives until the server answers.
	id, ok := f.s.PlayerID()
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)

	f.recv(t, model.TypeReconnectSuccess, `{"room_id":9,"state":1,"word_mask":"_ _ _","players":[
		{"player_id":1,"username":"me","is_drawing":false},
		{"player_id":2,"username":"bob","is_drawing":true}]}`)
	assert.Equal(t, StateGuessing, f.s.State())
	assert.Equal(t, 1, f.ui.systemLines("You joined the room"))
	assert.Equal(t, "tok-1", f.s.SessionToken())
}

func TestSession_ReconnectFailClearsToken(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.s.OnDisconnected(false)
	f.s.OnConnected(true)

	f.recv(t, model.TypeReconnectFail, `{"error":"Invalid session token"}`)
	assert.Equal(t, StateConnected, f.s.State())
	assert.Empty(t, f.s.SessionToken())
	_, ok := f.s.PlayerID()
	assert.False(t, ok)
	assert.Empty(t, f.s.Snapshot().Players)
	assert.Contains(t, f.ui.notices, "Reconnect failed: Invalid session token")
}

func TestSession_MaxAttemptsAndManualRetry(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.s.OnDisconnected(false)
	f.s.OnMaxAttempts()
	assert.Equal(t, StateFailed, f.s.State())
	assert.True(t, f.ui.dialog[len(f.ui.dialog)-1])

	require.NoError(t, f.s.Reconnect(context.Background()))
	assert.Equal(t, 1, f.conn.reconnects)
	assert.Equal(t, StateReconnecting, f.s.State())

	f.s.OnMaxAttempts()
	f.conn.reconnectErr = errors.New("refused")
	assert.Error(t, f.s.Reconnect(context.Background()))
	assert.Equal(t, StateFailed, f.s.State())
	assert.True(t, f.ui.dialog[len(f.ui.dialog)-1], "the retry dialog comes back")
}

func TestSession_ReconnectRefusedWhileConnected(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.recv(t, model.TypeRoundStart, `{"room_id":9,"state":1,"word_mask":"_ _ _","players":[
		{"player_id":1,"username":"me","is_drawing":true}]}`)
	require.Equal(t, StateDrawing, f.s.State())
	dialogs := len(f.ui.dialog)

	err := f.s.Reconnect(context.Background())
	assert.ErrorIs(t, err, ErrStillConnected)
	assert.Equal(t, StateDrawing, f.s.State())
	assert.True(t, f.s.IsDrawing())
	assert.Zero(t, f.conn.reconnects)
	assert.Len(t, f.ui.dialog, dialogs)
}

func TestSession_ReconnectRestoresStateWhenConnRefuses(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.s.OnDisconnected(true)
	require.Equal(t, StateDisconnected, f.s.State())

	busy := errors.New("connection already active")
	f.conn.reconnectErr = busy
	assert.ErrorIs(t, f.s.Reconnect(context.Background()), busy)
	assert.Equal(t, 1, f.conn.reconnects)
	assert.Equal(t, StateDisconnected, f.s.State())
}

func TestSession_ReconnectFailureAfterLifecycleEventKeepsIt(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.s.OnDisconnected(false)
	f.s.OnMaxAttempts()

	f.conn.onReconnect = func() { f.s.OnReconnecting(1, 2*time.Second) }
	f.conn.reconnectErr = errors.New("refused")
	assert.Error(t, f.s.Reconnect(context.Background()))
	assert.Equal(t, StateReconnecting, f.s.State(), "backoff owns the state once it started")
}

func TestSession_ReconnectAfterLeave(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.s.Leave()
	sent := len(f.conn.types())

	assert.ErrorIs(t, f.s.Reconnect(context.Background()), ErrLeft)
	assert.Zero(t, f.conn.reconnects)
	assert.Len(t, f.conn.types(), sent)
	assert.Equal(t, StateDisconnected, f.s.State())

	// A fresh connect lifts the restriction.
	require.NoError(t, f.s.Connect(context.Background(), "ws://game:8081"))
	f.s.OnDisconnected(false)
	assert.NoError(t, f.s.Reconnect(context.Background()))
	assert.Equal(t, 1, f.conn.reconnects)
}

func TestSession_CleanServerClose(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.s.OnDisconnected(true)
	assert.Equal(t, StateDisconnected, f.s.State())
	assert.Empty(t, f.s.Snapshot().Players)
}

func TestSession_RoundStartTurnDetection(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		drawer  bool
		word    string
		state   State
	}{
		{
			name: "someone else draws",
			payload: `{"room_id":9,"state":1,"round":1,"total_rounds":3,"time_remaining":80,
				"word_mask":"_ _ _ _ _","word":"apple","players":[
				{"player_id":1,"username":"me","is_drawing":false},
				{"player_id":2,"username":"bob","is_drawing":true}]}`,
			drawer: false,
			word:   "_ _ _ _ _",
			state:  StateGuessing,
		},
		{
			name: "we draw",
			payload: `{"room_id":9,"state":1,"round":1,"total_rounds":3,"time_remaining":80,
				"word_mask":"_ _ _ _ _","word":"apple","players":[
				{"player_id":1,"username":"me","is_drawing":true},
				{"player_id":2,"username":"bob","is_drawing":false}]}`,
			drawer: true,
			word:   "apple",
			state:  StateDrawing,
		},
		{
			name: "we draw, word not yet known",
			payload: `{"room_id":9,"state":1,"word_mask":"_ _ _","players":[
				{"player_id":1,"username":"me","is_drawing":true}]}`,
			drawer: true,
			word:   "_ _ _",
			state:  StateDrawing,
		},
	}
	for _, tt := range tests {
		for _, typ := range []model.MessageType{model.TypeGameStart, model.TypeRoundStart} {
			t.Run(tt.name+"/"+typ.String(), func(t *testing.T) {
				f := newFixture(t)
				f.joined(t)
				clears := f.board.clears

				f.recv(t, typ, tt.payload)
				assert.Equal(t, tt.drawer, f.ui.lastDrawing(t))
				assert.Equal(t, tt.drawer, f.s.IsDrawing())
				assert.Equal(t, tt.word, f.ui.lastWord(t))
				assert.Equal(t, tt.state, f.s.State())
				assert.Equal(t, clears+1, f.board.clears)
			})
		}
	}
}

func TestSession_WordToDrawOverridesMask(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.recv(t, model.TypeRoundStart, `{"room_id":9,"state":1,"word_mask":"_ _ _","players":[
		{"player_id":1,"username":"me","is_drawing":true}]}`)
	assert.Equal(t, "_ _ _", f.ui.lastWord(t))

	f.recv(t, model.TypeWordToDraw, `{"word":"cat"}`)
	assert.Equal(t, "cat", f.ui.lastWord(t))
	assert.True(t, f.s.IsDrawing())
	assert.Equal(t, 1, f.ui.systemLines("Your word is: cat"))
}

func TestSession_YourTurnMarksSelfAsOnlyDrawer(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.recv(t, model.TypeRoundStart, `{"room_id":9,"state":1,"word_mask":"_ _","players":[
		{"player_id":1,"username":"me","is_drawing":false},
		{"player_id":2,"username":"bob","is_drawing":true}]}`)
	require.False(t, f.s.IsDrawing())

	f.recv(t, model.TypeYourTurn, `{}`)
	assert.True(t, f.s.IsDrawing())
	assert.True(t, f.ui.lastDrawing(t))
	assert.Equal(t, StateDrawing, f.s.State())

	drawers := 0
	for _, p := range f.s.Snapshot().Players {
		if p.IsDrawing {
			drawers++
			assert.Equal(t, uint32(1), p.ID)
		}
	}
	assert.Equal(t, 1, drawers)
}

func TestSession_RoundEnd(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.recv(t, model.TypeRoundStart, `{"room_id":9,"state":1,"word_mask":"_ _ _","players":[
		{"player_id":1,"username":"me","is_drawing":true}]}`)
	require.True(t, f.s.IsDrawing())

	f.recv(t, model.TypeRoundEnd, `{"word":"cat","players":[
		{"player_id":1,"username":"me","score":10,"is_drawing":true},
		{"player_id":2,"username":"bob","score":20}]}`)
	assert.Equal(t, StateRoundEnd, f.s.State())
	assert.False(t, f.s.IsDrawing())
	assert.False(t, f.ui.lastDrawing(t))
	assert.Equal(t, 1, f.ui.systemLines("Round ended! The word was: cat"))

	snap := f.s.Snapshot()
	assert.Equal(t, uint32(9), snap.RoomID)
	require.Len(t, snap.Players, 2)
	assert.Equal(t, 20, snap.Players[1].Score)
	for _, p := range snap.Players {
		assert.False(t, p.IsDrawing)
	}
}

func TestSession_ScoreUpdateDeltaIdempotent(t *testing.T) {
	once := newFixture(t)
	once.joined(t)
	once.recv(t, model.TypeScoreUpdate, `{"player_id":2,"score":42}`)

	twice := newFixture(t)
	twice.joined(t)
	twice.recv(t, model.TypeScoreUpdate, `{"player_id":2,"score":42}`)
	twice.recv(t, model.TypeScoreUpdate, `{"player_id":2,"score":42}`)

	assert.Equal(t, once.s.Snapshot().Players, twice.s.Snapshot().Players)
	bob := twice.s.Snapshot().Players[1]
	assert.Equal(t, model.Player{ID: 2, Username: "bob", Score: 42, Online: true}, bob)
	assert.Equal(t, twice.s.Snapshot().Players, twice.ui.players)
}

func TestSession_ScoreUpdateFullList(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.recv(t, model.TypeScoreUpdate, `{"players":[{"player_id":3,"username":"eve","score":1}]}`)
	assert.Equal(t, []model.Player{{ID: 3, Username: "eve", Score: 1, Online: true}}, f.s.Snapshot().Players)

	// Unknown player delta is ignored.
	f.recv(t, model.TypeScoreUpdate, `{"player_id":99,"score":1}`)
	assert.Len(t, f.s.Snapshot().Players, 1)
}

func TestSession_GuessCorrect(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.recv(t, model.TypeGuessCorrect, `{"player_id":1,"username":"me","score":15}`)
	assert.Contains(t, f.ui.statuses, "Correct!")
	assert.Equal(t, 1, f.ui.systemLines("me guessed correctly!"))
	assert.Equal(t, 15, f.s.Snapshot().Players[0].Score)

	f.recv(t, model.TypeGuessCorrect, `{"player_id":2,"username":"bob","score":9}`)
	assert.Equal(t, 9, f.s.Snapshot().Players[1].Score)
	assert.Equal(t, 1, f.ui.systemLines("bob guessed correctly!"))

	// Wrong guesses change nothing.
	before := f.s.Snapshot()
	f.recv(t, model.TypeGuessWrong, `{}`)
	assert.Equal(t, before, f.s.Snapshot())
}

func TestSession_PlayerJoinAndLeave(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	f.recv(t, model.TypePlayerJoin, `{"username":"zed","player":{"player_id":4,"username":"zed"}}`)
	assert.Equal(t, 1, f.ui.systemLines("zed joined"))
	require.Len(t, f.s.Snapshot().Players, 4)

	f.recv(t, model.TypePlayerLeave, `{"player_id":2,"username":"bob"}`)
	assert.Equal(t, 1, f.ui.systemLines("bob left"))
	players := f.s.Snapshot().Players
	require.Len(t, players, 4)
	assert.Equal(t, uint32(2), players[1].ID)
	assert.False(t, players[1].Online)
	assert.True(t, players[0].Online)
}

func TestSession_TimerAndCountdownAreDisplayOnly(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	f.recv(t, model.TypeCountdownUpdate, `{"countdown":3}`)
	assert.Equal(t, StateCountdown, f.s.State())
	assert.Equal(t, []int{3}, f.ui.countdowns[len(f.ui.countdowns)-1:])
	assert.Contains(t, f.ui.overlay, "Game starting in 3...")

	f.recv(t, model.TypeCountdownUpdate, `{"countdown":0}`)
	assert.Equal(t, 0, f.ui.countdowns[len(f.ui.countdowns)-1])

	f.recv(t, model.TypeTimerUpdate, `{"time_remaining":42}`)
	f.recv(t, model.TypeTimerUpdate, `{}`)
	assert.Equal(t, []int{42}, f.ui.timers)
	assert.Equal(t, 42, f.s.Snapshot().TimeRemaining)
	assert.Len(t, f.timers.Pending(), 1)
}

func TestSession_GameEndRanking(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	assert.ErrorIs(t, f.s.ReturnHome(), ErrGameInProgress)

	f.recv(t, model.TypeGameEnd, `{"room_id":9,"state":2,"players":[
		{"player_id":1,"username":"A","score":30},
		{"player_id":2,"username":"B","score":50},
		{"player_id":3,"username":"C","score":50},
		{"player_id":4,"username":"D","score":10}]}`)
	assert.Equal(t, StateGameEnd, f.s.State())

	names := make([]string, 0, len(f.ui.ranks))
	for _, r := range f.ui.ranks {
		names = append(names, r.Player.Username)
	}
	assert.Equal(t, []string{"B", "C", "A", "D"}, names)
	assert.True(t, f.ui.ranks[0].Winner)
	assert.False(t, f.ui.ranks[1].Winner)

	require.NoError(t, f.s.ReturnHome())
	assert.Equal(t, StateRegistered, f.s.State())
	assert.Empty(t, f.s.Snapshot().Players)
	assert.Equal(t, "tok-1", f.s.SessionToken())

	// A new room is announced again.
	f.joined(t)
	assert.Equal(t, 2, f.ui.systemLines("You joined the room"))
}

func TestSession_ErrorKeepsState(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	before := f.s.Snapshot()

	f.recv(t, model.TypeError, `{"message":"Not your turn"}`)
	f.recv(t, model.TypeError, `{}`)
	assert.Equal(t, []string{"Error: Not your turn", "Error: Unknown error"}, f.ui.notices)
	assert.Equal(t, before, f.s.Snapshot())
	assert.Zero(t, f.conn.closed)
}

func TestSession_RoomRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.JoinRoom("ABCDEF"))
	f.recv(t, model.TypeRegisterAck, `{"player_id":5,"session_token":"t"}`)

	f.recv(t, model.TypeRoomNotFound, `{}`)
	assert.Equal(t, StateRegistered, f.s.State())
	assert.Equal(t, []string{"Room not found"}, f.ui.notices)

	f.recv(t, model.TypeRoomFull, `{}`)
	assert.Equal(t, []string{"Room not found", "Room is full"}, f.ui.notices)
}

func TestSession_Chat(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.s.SendChat("hello"), ErrNotInRoom)

	f.joined(t)
	assert.ErrorIs(t, f.s.SendChat("   "), ErrEmptyMessage)
	long := make([]rune, maxChatLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, f.s.SendChat(string(long)), ErrMessageTooLong)
	assert.Empty(t, f.conn.types())

	require.NoError(t, f.s.SendChat("  is it a cat? "))
	assert.Equal(t, model.ChatRequest{Message: "is it a cat?"}, f.conn.last().data)

	f.recv(t, model.TypeChatBroadcast, `{"username":"bob","message":"hi"}`)
	assert.Equal(t, ChatEntry{Sender: "bob", Text: "hi"}, f.ui.chat[len(f.ui.chat)-1])
}

func TestSession_ClearCanvas(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	assert.ErrorIs(t, f.s.ClearCanvas(), ErrNotDrawer)
	assert.Zero(t, f.board.localClears)

	f.recv(t, model.TypeYourTurn, `{}`)
	require.NoError(t, f.s.ClearCanvas())
	assert.Equal(t, 1, f.board.localClears)
}

func TestSession_Leave(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.s.Leave()

	assert.Equal(t, model.TypeDisconnect, f.conn.sent[len(f.conn.sent)-1].t)
	assert.Equal(t, 1, f.conn.closed)
	assert.Equal(t, StateDisconnected, f.s.State())

	snap := f.s.Snapshot()
	assert.Empty(t, snap.Players)
	assert.Zero(t, snap.RoomID)
	assert.True(t, snap.HasToken)
}

func TestSession_StatusAutoClear(t *testing.T) {
	f := newFixture(t)
	f.s.OnConnected(false)
	assert.Equal(t, []time.Duration{defaultStatusTTL}, f.timers.Pending())

	// A newer status replaces the pending clear.
	f.recv(t, model.TypeRegisterAck, `{"player_id":1,"session_token":"t"}`)
	f.recv(t, model.TypeRoomCreated, `{"room_id":1,"room_code":"AAAAAA"}`)
	assert.Len(t, f.timers.Pending(), 1)

	require.True(t, f.timers.Fire())
	assert.Equal(t, 1, f.ui.cleared)
	assert.False(t, f.timers.Fire())
}

func TestSession_ConnectFailure(t *testing.T) {
	f := newFixture(t)
	f.conn.connectErr = errors.New("timeout")
	assert.Error(t, f.s.Connect(context.Background(), "ws://localhost:1"))
	assert.Equal(t, StateDisconnected, f.s.State())
	assert.NotEmpty(t, f.ui.notices)

	f.conn.connectErr = nil
	require.NoError(t, f.s.Connect(context.Background(), "ws://localhost:1"))
	assert.Equal(t, StateConnecting, f.s.State())
	f.s.OnConnected(false)
	assert.Equal(t, StateConnected, f.s.State())
}

func TestRanking(t *testing.T) {
	players := []model.Player{
		{ID: 1, Username: "A", Score: 30},
		{ID: 2, Username: "B", Score: 50},
		{ID: 3, Username: "C", Score: 50},
		{ID: 4, Username: "D", Score: 10},
	}
	ranks := Ranking(players)
	require.Len(t, ranks, 4)

	want := []string{"B", "C", "A", "D"}
	for i, r := range ranks {
		assert.Equal(t, want[i], r.Player.Username)
		assert.Equal(t, i+1, r.Position)
		assert.Equal(t, i == 0, r.Winner)
	}
	// Input is left untouched.
	assert.Equal(t, "A", players[0].Username)
	assert.Empty(t, Ranking(nil))
}
