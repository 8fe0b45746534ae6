package session

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/adwski/scribble-client/client/model"
)

// Connect dials the game server. A new connection starts a fresh identity.
func (s *Session) Connect(ctx context.Context, url string) error {
	s.update(func(fx *effects) {
		s.left = false
		s.setStateLocked(StateConnecting)
		s.statusLocked(fx, "Connecting to server...")
	})
	if err := s.conn.Connect(ctx, url); err != nil {
		s.logger.Error().Err(err).Str("url", url).Msg("unable to connect")
		s.update(func(fx *effects) {
			if s.state == StateConnecting {
				s.setStateLocked(StateDisconnected)
			}
			s.noticeLocked(fx, "Connection failed: "+err.Error())
		})
		return err
	}
	return nil
}

// Register announces the player under username, or the default name when empty.
func (s *Session) Register(username string) error {
	var err error
	s.update(func(fx *effects) {
		if u := strings.TrimSpace(username); u != "" {
			s.username = u
		}
		err = s.registerLocked(fx)
	})
	return err
}

// PlayNow registers when needed and asks the server for any open room.
func (s *Session) PlayNow() error {
	return s.enterRoom(model.TypeJoinRoom, model.JoinRoomRequest{})
}

func (s *Session) CreateRoom() error {
	return s.enterRoom(model.TypeCreateRoom, model.Empty{})
}

// JoinRoom joins a room by its code. Codes are validated locally and never
// sent when malformed.
func (s *Session) JoinRoom(code string) error {
	code = model.CanonicalRoomCode(code)
	if utf8.RuneCountInString(code) != model.RoomCodeLength {
		return ErrInvalidRoomCode
	}
	return s.enterRoom(model.TypeJoinRoom, model.JoinRoomRequest{RoomCode: code})
}

func (s *Session) enterRoom(t model.MessageType, req any) error {
	var err error
	s.update(func(fx *effects) {
		if s.inRoom {
			err = ErrAlreadyInRoom
			return
		}
		if !s.registered && !s.registering {
			if err = s.registerLocked(fx); err != nil {
				return
			}
		}
		// The websocket keeps order, so the request is queued right after REGISTER.
		if !s.conn.Send(t, req) {
			err = ErrNotConnected
		}
	})
	return err
}

func (s *Session) registerLocked(fx *effects) error {
	if !s.conn.Send(model.TypeRegister, model.RegisterRequest{Username: s.username}) {
		s.noticeLocked(fx, "Not connected to server. Please wait...")
		return ErrNotConnected
	}
	s.registering = true
	return nil
}

// SendChat sends a chat line; during a round the server treats it as a guess.
func (s *Session) SendChat(message string) error {
	message = strings.TrimSpace(message)
	switch {
	case message == "":
		return ErrEmptyMessage
	case utf8.RuneCountInString(message) > maxChatLength:
		return ErrMessageTooLong
	}
	s.mx.Lock()
	inRoom := s.inRoom
	s.mx.Unlock()
	if !inRoom {
		return ErrNotInRoom
	}
	if !s.conn.Send(model.TypeChat, model.ChatRequest{Message: message}) {
		return ErrNotConnected
	}
	return nil
}

// ClearCanvas erases the drawing for everyone. Only the drawer may clear.
func (s *Session) ClearCanvas() error {
	s.mx.Lock()
	drawing, board := s.drawing, s.board
	s.mx.Unlock()
	if !drawing || board == nil {
		return ErrNotDrawer
	}
	if !board.ClearLocal() {
		return ErrNotConnected
	}
	return nil
}

// Leave notifies the server, closes the connection for good and drops room
// state. The session token is kept.
func (s *Session) Leave() {
	s.conn.Send(model.TypeDisconnect, model.Empty{})
	s.conn.Close()
	s.update(func(fx *effects) {
		s.resetRoomLocked(fx)
		s.forgetIdentityLocked()
		s.left = true
		s.setStateLocked(StateDisconnected)
		fx.add(func() { s.ui.ShowReconnectDialog(false) })
		s.statusLocked(fx, "Disconnected")
	})
	s.logger.Info().Msg("left the game")
}

// Reconnect is the manual retry offered after automatic reconnection gave up.
// Once the transport is back the session is resumed with the stored token.
// It is refused while the connection is alive and after Leave. When the
// connection refuses before any lifecycle event the previous state is restored.
func (s *Session) Reconnect(ctx context.Context) error {
	var (
		err  error
		prev State
		seq  uint64
	)
	s.update(func(fx *effects) {
		switch {
		case s.left:
			err = ErrLeft
			return
		case s.state != StateDisconnected && s.state != StateReconnecting && s.state != StateFailed:
			err = ErrStillConnected
			return
		}
		prev, seq = s.state, s.lifecycle
		s.setStateLocked(StateReconnecting)
		fx.add(func() { s.ui.ShowReconnectDialog(false) })
		s.statusLocked(fx, "Reconnecting...")
	})
	if err != nil {
		return err
	}
	if err = s.conn.Reconnect(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("manual reconnect failed")
		s.update(func(fx *effects) {
			if s.lifecycle != seq {
				return
			}
			s.setStateLocked(prev)
			if prev == StateFailed {
				fx.add(func() { s.ui.ShowReconnectDialog(true) })
			}
			s.statusLocked(fx, "Reconnect failed")
		})
		return err
	}
	return nil
}

// ReturnHome leaves a finished game and goes back to the landing state,
// keeping identity and connection.
func (s *Session) ReturnHome() error {
	var err error
	s.update(func(fx *effects) {
		if s.state != StateGameEnd {
			err = ErrGameInProgress
			return
		}
		s.resetRoomLocked(fx)
		fx.add(func() {
			s.ui.ShowRanking(nil)
			s.ui.ShowWord("")
			s.ui.ShowRound(0, 0)
		})
		s.setStateLocked(s.landingStateLocked())
		s.statusLocked(fx, "Ready to play again!")
	})
	return err
}
