package session

import (
	"fmt"

	"github.com/adwski/scribble-client/client/model"
	"github.com/adwski/scribble-client/client/protocol"
)

// RegisterRoutes binds the session to every game message it interprets.
func (s *Session) RegisterRoutes(b *protocol.Builder) {
	protocol.On(b, model.TypeRegisterAck, s.onRegisterAck)
	protocol.On(b, model.TypeRoomCreated, s.onRoomCreated)
	protocol.On(b, model.TypeRoomJoined, s.onRoomJoined)
	protocol.OnSignal(b, model.TypeRoomFull, func() { s.onRoomRejected("Room is full") })
	protocol.OnSignal(b, model.TypeRoomNotFound, func() { s.onRoomRejected("Room not found") })
	protocol.On(b, model.TypeGameStart, func(rs model.RoomState) { s.onRoundStart(rs, true) })
	protocol.On(b, model.TypeRoundStart, func(rs model.RoomState) { s.onRoundStart(rs, false) })
	protocol.On(b, model.TypeYourTurn, func(w model.WordToDraw) { s.onDrawerAssigned(w, false) })
	protocol.On(b, model.TypeWordToDraw, func(w model.WordToDraw) { s.onDrawerAssigned(w, true) })
	protocol.On(b, model.TypeRoundEnd, s.onRoundEnd)
	protocol.On(b, model.TypeGameEnd, s.onGameEnd)
	protocol.On(b, model.TypeChatBroadcast, s.onChat)
	protocol.On(b, model.TypeGuessCorrect, s.onGuessCorrect)
	protocol.OnSignal(b, model.TypeGuessWrong, func() {})
	protocol.On(b, model.TypeTimerUpdate, s.onTimer)
	protocol.On(b, model.TypeCountdownUpdate, s.onCountdown)
	protocol.On(b, model.TypePlayerJoin, s.onPlayerJoin)
	protocol.On(b, model.TypePlayerLeave, s.onPlayerLeave)
	protocol.On(b, model.TypeScoreUpdate, s.onScoreUpdate)
	protocol.On(b, model.TypeReconnectSuccess, s.onReconnectSuccess)
	protocol.On(b, model.TypeReconnectFail, s.onReconnectFail)
	protocol.On(b, model.TypeError, s.onError)
	protocol.OnSignal(b, model.TypeDisconnect, s.onServerDisconnect)
}

func (s *Session) onRegisterAck(ack model.RegisterAck) {
	s.update(func(fx *effects) {
		s.playerID = ack.PlayerID
		s.token = ack.SessionToken
		s.registered = true
		s.registering = false
		if ack.Username != "" {
			s.username = ack.Username
		}
		if !s.inRoom {
			s.setStateLocked(StateRegistered)
		}
	})
	s.logger.Info().Uint32("player", ack.PlayerID).Msg("registered")
}

func (s *Session) onRoomCreated(rc model.RoomCreated) {
	s.update(func(fx *effects) {
		s.inRoom = true
		s.roomID = rc.RoomID
		s.roomCode = rc.RoomCode
		s.setStateLocked(StateWaitingInRoom)
		code := rc.RoomCode
		fx.add(func() {
			s.ui.ShowRoom(code)
			s.ui.ShowCanvasMessage("Waiting for players...")
		})
		s.statusLocked(fx, "Room created! Code: "+code)
		s.systemLocked(fx, "Waiting for players... Share code: "+code)
	})
}

func (s *Session) onRoomJoined(rs model.RoomState) {
	s.update(func(fx *effects) {
		s.joinRoomLocked(fx, rs, !s.inRoom)
	})
}

func (s *Session) onReconnectSuccess(rs model.RoomState) {
	s.update(func(fx *effects) {
		fx.add(func() { s.ui.ShowReconnectDialog(false) })
		s.joinRoomLocked(fx, rs, false)
		s.statusLocked(fx, "Reconnected successfully!")
	})
	s.logger.Info().Uint32("room", rs.RoomID).Msg("session resumed")
}

// joinRoomLocked applies a room projection. Only the first join of a room
// is announced; later deliveries refresh state silently.
func (s *Session) joinRoomLocked(fx *effects, rs model.RoomState, announce bool) {
	s.inRoom = true
	s.roomID = rs.RoomID
	if rs.RoomCode != "" {
		s.roomCode = rs.RoomCode
	}
	s.roster.Replace(rs.Players)
	s.applyRoundLocked(fx, rs)

	code := s.roomCode
	fx.add(func() { s.ui.ShowRoom(code) })
	if announce {
		s.statusLocked(fx, "Joined room! Waiting for more players...")
		s.systemLocked(fx, "You joined the room")
	}

	switch rs.State {
	case model.RoomPlaying:
		fx.add(func() { s.ui.ShowCanvasMessage("") })
		s.enterRoundLocked(fx, rs.Word)
	case model.RoomEnded:
		s.setDrawingLocked(fx, false)
		s.setStateLocked(StateGameEnd)
	default:
		s.setDrawingLocked(fx, false)
		s.setStateLocked(StateWaitingInRoom)
		fx.add(func() { s.ui.ShowCanvasMessage("Waiting for players...") })
	}
	s.renderPlayersLocked(fx)
}

func (s *Session) onRoomRejected(reason string) {
	s.update(func(fx *effects) {
		if !s.inRoom {
			s.setStateLocked(s.landingStateLocked())
		}
		s.noticeLocked(fx, reason)
	})
}

// onRoundStart handles both GAME_START and ROUND_START: the canvas is reset
// and the local role is derived from the roster.
func (s *Session) onRoundStart(rs model.RoomState, gameStart bool) {
	s.update(func(fx *effects) {
		if len(rs.Players) > 0 {
			s.roster.Replace(rs.Players)
		}
		s.applyRoundLocked(fx, rs)
		s.boardLocked(fx, Board.Clear)
		fx.add(func() {
			s.ui.ShowCountdown(0)
			s.ui.ShowCanvasMessage("")
		})

		drawer := s.enterRoundLocked(fx, rs.Word)
		switch {
		case drawer:
			s.statusLocked(fx, "Your turn to draw!")
		case gameStart:
			s.statusLocked(fx, "Game started! Guess the word!")
		default:
			s.statusLocked(fx, "Guess the word!")
		}
		if gameStart {
			s.systemLocked(fx, "Game started! Good luck!")
		} else {
			s.systemLocked(fx, "New round started!")
		}
		s.renderPlayersLocked(fx)
	})
}

// applyRoundLocked copies the round fields present in rs.
func (s *Session) applyRoundLocked(fx *effects, rs model.RoomState) {
	if rs.WordMask != "" {
		s.wordMask = rs.WordMask
	}
	if rs.Round != nil {
		s.round = *rs.Round
	}
	if rs.TotalRounds != nil {
		s.totalRounds = *rs.TotalRounds
	}
	if rs.TimeRemaining != nil {
		s.timeRemaining = *rs.TimeRemaining
		left := s.timeRemaining
		fx.add(func() { s.ui.ShowTimer(left) })
	}
	round, total := s.round, s.totalRounds
	fx.add(func() { s.ui.ShowRound(round, total) })
}

// enterRoundLocked gates drawing input on the roster scan and shows the word
// accordingly: the plaintext only to the drawer, the mask to everyone else.
func (s *Session) enterRoundLocked(fx *effects, word string) bool {
	if d := s.roster.Drawers(); len(d) > 1 {
		s.logger.Warn().Interface("drawers", d).Msg("more than one drawer in roster")
	}
	drawer := s.selfDrawingLocked()
	s.setDrawingLocked(fx, drawer)

	shown := s.wordMask
	if drawer {
		s.setStateLocked(StateDrawing)
		if word != "" {
			s.word = word
		}
		if s.word != "" {
			shown = s.word
		}
	} else {
		s.setStateLocked(StateGuessing)
		s.word = ""
	}
	fx.add(func() { s.ui.ShowWord(shown) })
	return drawer
}

// onDrawerAssigned handles the drawer-only YOUR_TURN and WORD_TO_DRAW. The
// word they carry overrides any mask already on screen.
func (s *Session) onDrawerAssigned(w model.WordToDraw, announceWord bool) {
	s.update(func(fx *effects) {
		if !s.registered || !s.inRoom {
			s.logger.Warn().Msg("drawer assignment outside of a room")
			return
		}
		if err := s.roster.SetDrawer(s.playerID); err != nil {
			s.roster.Upsert(model.Player{ID: s.playerID, Username: s.username, Online: true})
			_ = s.roster.SetDrawer(s.playerID)
		}
		fx.add(func() { s.ui.ShowCanvasMessage("") })
		s.enterRoundLocked(fx, w.Word)
		s.statusLocked(fx, "Your turn to draw!")
		if announceWord && w.Word != "" {
			s.systemLocked(fx, "Your word is: "+w.Word)
		}
		s.renderPlayersLocked(fx)
	})
}

func (s *Session) onRoundEnd(re model.RoundEnd) {
	s.update(func(fx *effects) {
		if len(re.Players) > 0 {
			s.roster.Replace(re.Players)
		}
		s.roster.ClearDrawer()
		s.setDrawingLocked(fx, false)
		s.word = ""
		s.setStateLocked(StateRoundEnd)
		if re.Word != "" {
			s.systemLocked(fx, fmt.Sprintf("Round ended! The word was: %s", re.Word))
		} else {
			s.systemLocked(fx, "Round ended!")
		}
		s.renderPlayersLocked(fx)
	})
}

func (s *Session) onGameEnd(rs model.RoomState) {
	s.update(func(fx *effects) {
		players := rs.Players
		if len(players) > 0 {
			s.roster.Replace(players)
		} else {
			players = s.roster.Players()
		}
		s.roster.ClearDrawer()
		s.setDrawingLocked(fx, false)
		s.word = ""
		s.setStateLocked(StateGameEnd)

		ranks := Ranking(players)
		fx.add(func() { s.ui.ShowRanking(ranks) })
		s.systemLocked(fx, "Game over!")
		s.renderPlayersLocked(fx)
	})
}

func (s *Session) onChat(c model.ChatLine) {
	s.ui.AppendChat(ChatEntry{Sender: c.Username, Text: c.Message})
}

func (s *Session) onGuessCorrect(g model.GuessCorrect) {
	s.update(func(fx *effects) {
		s.systemLocked(fx, g.Username+" guessed correctly!")
		if s.registered && g.PlayerID == s.playerID {
			s.statusLocked(fx, "Correct!")
		}
		if g.Score != nil {
			if err := s.roster.SetScore(g.PlayerID, *g.Score); err != nil {
				s.logger.Debug().Err(err).Uint32("player", g.PlayerID).Msg("score for unknown player")
				return
			}
			s.renderPlayersLocked(fx)
		}
	})
}

// onTimer only mirrors the server clock; nothing counts down locally.
func (s *Session) onTimer(t model.TimerUpdate) {
	if t.TimeRemaining == nil {
		return
	}
	left := *t.TimeRemaining
	s.mx.Lock()
	s.timeRemaining = left
	s.mx.Unlock()
	s.ui.ShowTimer(left)
}

func (s *Session) onCountdown(c model.CountdownUpdate) {
	s.update(func(fx *effects) {
		n := c.Countdown
		if n <= 0 {
			fx.add(func() {
				s.ui.ShowCountdown(0)
				s.ui.ShowCanvasMessage("")
			})
			return
		}
		if s.inRoom {
			s.setStateLocked(StateCountdown)
		}
		fx.add(func() {
			s.ui.ShowCountdown(n)
			s.ui.ShowCanvasMessage(fmt.Sprintf("Game starting in %d...", n))
		})
	})
}

func (s *Session) onPlayerJoin(pj model.PlayerJoin) {
	s.update(func(fx *effects) {
		name := pj.Username
		if pj.Player != nil {
			s.roster.Upsert(*pj.Player)
			if name == "" {
				name = pj.Player.Username
			}
			s.renderPlayersLocked(fx)
		}
		s.systemLocked(fx, name+" joined")
	})
}

// onPlayerLeave keeps the player listed, marked offline.
func (s *Session) onPlayerLeave(pl model.PlayerLeave) {
	s.update(func(fx *effects) {
		s.systemLocked(fx, pl.Username+" left")
		if err := s.roster.MarkOffline(pl.PlayerID); err != nil {
			s.logger.Debug().Err(err).Uint32("player", pl.PlayerID).Msg("leave for unknown player")
			return
		}
		s.renderPlayersLocked(fx)
	})
}

// onScoreUpdate takes either a full roster or a single player's score.
func (s *Session) onScoreUpdate(su model.ScoreUpdate) {
	s.update(func(fx *effects) {
		switch {
		case len(su.Players) > 0:
			s.roster.Replace(su.Players)
		case su.PlayerID != nil && su.Score != nil:
			if err := s.roster.SetScore(*su.PlayerID, *su.Score); err != nil {
				s.logger.Debug().Err(err).Uint32("player", *su.PlayerID).Msg("score for unknown player")
				return
			}
		default:
			return
		}
		s.renderPlayersLocked(fx)
	})
}

// onReconnectFail forgets the stale session; the player starts over from
// the landing state on the live connection.
func (s *Session) onReconnectFail(e model.ErrorNotice) {
	s.update(func(fx *effects) {
		s.token = ""
		s.forgetIdentityLocked()
		s.resetRoomLocked(fx)
		s.setStateLocked(StateConnected)
		fx.add(func() { s.ui.ShowReconnectDialog(false) })
		s.noticeLocked(fx, "Reconnect failed: "+e.Text())
	})
	s.logger.Warn().Str("reason", e.Text()).Msg("session resumption rejected")
}

// onError surfaces a server error without touching state.
func (s *Session) onError(e model.ErrorNotice) {
	s.logger.Warn().Str("error", e.Text()).Msg("server error")
	s.ui.ShowNotice("Error: " + e.Text())
}

func (s *Session) onServerDisconnect() {
	s.update(func(fx *effects) {
		s.statusLocked(fx, "Disconnected by server")
	})
}
