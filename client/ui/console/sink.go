// Package console is a terminal front end for the session: it prints what
// the session shows and turns typed commands into intents.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/adwski/scribble-client/client/model"
	"github.com/adwski/scribble-client/client/session"
)

// Sink renders session output and the canvas as plain text lines.
type Sink struct {
	mx      *sync.Mutex
	out     io.Writer
	status  string
	drawing bool
	strokes int
}

func NewSink(out io.Writer) *Sink {
	return &Sink{mx: &sync.Mutex{}, out: out}
}

func (s *Sink) printf(format string, args ...any) {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *Sink) ShowStatus(text string) {
	s.mx.Lock()
	s.status = text
	s.mx.Unlock()
	s.printf("* %s", text)
}

func (s *Sink) ClearStatus() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.status = ""
}

// Status returns the status currently on display.
func (s *Sink) Status() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.status
}

func (s *Sink) ShowNotice(text string) {
	s.printf("! %s", text)
}

func (s *Sink) ShowRoom(code string) {
	if code != "" {
		s.printf("room %s", code)
	}
}

func (s *Sink) RenderPlayers(players []model.Player, self uint32) {
	if len(players) == 0 {
		return
	}
	parts := make([]string, 0, len(players))
	for _, p := range players {
		var b strings.Builder
		b.WriteString(p.Username)
		if p.ID == self {
			b.WriteString(" (you)")
		}
		fmt.Fprintf(&b, " %d pts", p.Score)
		if p.IsDrawing {
			b.WriteString(" [drawing]")
		}
		if !p.Online {
			b.WriteString(" [offline]")
		}
		parts = append(parts, b.String())
	}
	s.printf("players: %s", strings.Join(parts, ", "))
}

func (s *Sink) AppendChat(e session.ChatEntry) {
	if e.System {
		s.printf("-- %s", e.Text)
		return
	}
	s.printf("<%s> %s", e.Sender, e.Text)
}

func (s *Sink) ShowTimer(seconds int) {
	s.printf("time left: %ds", seconds)
}

func (s *Sink) ShowCountdown(seconds int) {
	if seconds > 0 {
		s.printf("starting in %d...", seconds)
	}
}

func (s *Sink) ShowWord(word string) {
	if word != "" {
		s.printf("word: %s", word)
	}
}

func (s *Sink) ShowRound(round, total int) {
	if total > 0 {
		s.printf("round %d/%d", round, total)
	}
}

func (s *Sink) ShowRanking(ranks []session.Rank) {
	if len(ranks) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString("final ranking:")
	for _, r := range ranks {
		fmt.Fprintf(&b, "\n  #%d %s %d pts", r.Position, r.Player.Username, r.Player.Score)
		if r.Winner {
			b.WriteString(" (winner)")
		}
	}
	b.WriteString("\n/home to return, /quit to exit")
	s.printf("%s", b.String())
}

func (s *Sink) SetDrawingEnabled(enabled bool) {
	s.mx.Lock()
	changed := s.drawing != enabled
	s.drawing = enabled
	s.mx.Unlock()
	if changed && enabled {
		s.printf("you are drawing: /line x1 y1 x2 y2, /color N, /width N, /clear")
	}
}

func (s *Sink) ShowReconnectDialog(visible bool) {
	if visible {
		s.printf("connection lost: /reconnect to retry, /leave to give up")
	}
}

func (s *Sink) ShowCanvasMessage(text string) {
	if text != "" {
		s.printf("[canvas] %s", text)
	}
}

// DrawStroke prints one replicated or local line segment.
func (s *Sink) DrawStroke(st model.Stroke) {
	s.mx.Lock()
	s.strokes++
	s.mx.Unlock()

	origin := "?"
	if st.PlayerID != nil {
		origin = fmt.Sprint(*st.PlayerID)
	}
	s.printf("[canvas] #%d from %s: (%g,%g)-(%g,%g) #%06x w%d",
		st.ID, origin, st.X1, st.Y1, st.X2, st.Y2, st.Color, st.Thickness)
}

func (s *Sink) Clear() {
	s.mx.Lock()
	s.strokes = 0
	s.mx.Unlock()
	s.printf("[canvas] cleared")
}

// Strokes returns the number of segments drawn since the last clear.
func (s *Sink) Strokes() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.strokes
}
