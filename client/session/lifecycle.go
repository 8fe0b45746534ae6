package session

import (
	"fmt"
	"time"

	"github.com/adwski/scribble-client/client/model"
)

// OnConnected restarts stroke numbering for the new connection. A resumed
// connection carrying a session token asks the server to restore the session;
// the player keeps its id until the server refuses.
func (s *Session) OnConnected(resumed bool) {
	s.update(func(fx *effects) {
		s.lifecycle++
		s.boardLocked(fx, Board.Reset)
		fx.add(func() { s.ui.ShowReconnectDialog(false) })

		if resumed && s.token != "" {
			s.setStateLocked(StateReconnecting)
			req := model.ReconnectRequest{SessionToken: s.token}
			fx.add(func() {
				if !s.conn.Send(model.TypeReconnectRequest, req) {
					s.logger.Warn().Msg("unable to request session resumption")
				}
			})
			s.statusLocked(fx, "Connection restored, resuming session...")
			return
		}
		// Without a resumable session the registration died with the old connection.
		s.forgetIdentityLocked()
		if !resumed {
			s.token = ""
		}
		s.resetRoomLocked(fx)
		s.setStateLocked(StateConnected)
		s.statusLocked(fx, "Connected to server")
	})
}

// OnDisconnected keeps room state across unclean closes so resumption can
// refresh it without a new join announcement.
func (s *Session) OnDisconnected(clean bool) {
	s.update(func(fx *effects) {
		s.lifecycle++
		s.setDrawingLocked(fx, false)
		if clean {
			s.resetRoomLocked(fx)
			s.forgetIdentityLocked()
			s.setStateLocked(StateDisconnected)
			s.statusLocked(fx, "Disconnected from server")
			return
		}
		s.setStateLocked(StateReconnecting)
		s.statusLocked(fx, "Connection lost")
	})
}

func (s *Session) OnReconnecting(attempt int, delay time.Duration) {
	s.update(func(fx *effects) {
		s.lifecycle++
		s.setStateLocked(StateReconnecting)
		s.statusLocked(fx, fmt.Sprintf("Reconnecting in %s (attempt %d)...", delay, attempt))
	})
}

// OnMaxAttempts leaves the decision to the player: retry or leave.
func (s *Session) OnMaxAttempts() {
	s.update(func(fx *effects) {
		s.lifecycle++
		s.setStateLocked(StateFailed)
		fx.add(func() { s.ui.ShowReconnectDialog(true) })
		s.noticeLocked(fx, "Unable to reconnect to server")
	})
}
