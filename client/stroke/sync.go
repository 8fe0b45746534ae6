// Package stroke replicates drawing input.
//
// Local strokes are rendered before they are sent, to hide latency; a local
// render says nothing about whether the server accepted or relayed the stroke.
package stroke

import (
	"sync"
	"time"

	"github.com/adwski/scribble-client/client/metrics"
	"github.com/adwski/scribble-client/client/model"
	"github.com/adwski/scribble-client/client/protocol"
	"github.com/rs/zerolog"
)

type (
	Canvas interface {
		DrawStroke(s model.Stroke)
		Clear()
	}

	Sender interface {
		Send(t model.MessageType, data any) bool
	}

	// Identity is the read-only view of the local player.
	Identity interface {
		PlayerID() (uint32, bool)
		IsDrawing() bool
	}

	// Segment is one line of local input before it is stamped.
	Segment struct {
		X1, Y1, X2, Y2 float64
		Color          uint32
		Thickness      int
	}

	Config struct {
		Logger   *zerolog.Logger
		Metrics  *metrics.Metrics
		Canvas   Canvas
		Sender   Sender
		Identity Identity
		Now      func() time.Time
	}

	Synchronizer struct {
		mx       *sync.Mutex
		nextID   uint32
		canvas   Canvas
		sender   Sender
		identity Identity
		metrics  *metrics.Metrics
		now      func() time.Time
		logger   zerolog.Logger
	}
)

func NewSynchronizer(cfg Config) *Synchronizer {
	s := &Synchronizer{
		mx:       &sync.Mutex{},
		canvas:   cfg.Canvas,
		sender:   cfg.Sender,
		identity: cfg.Identity,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		logger:   cfg.Logger.With().Str("component", "stroke-sync").Logger(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Synchronizer) RegisterRoutes(b *protocol.Builder) {
	protocol.On(b, model.TypeStroke, s.Receive)
	protocol.OnSignal(b, model.TypeClearCanvas, s.Clear)
}

// Reset restarts stroke numbering; called for every new connection.
func (s *Synchronizer) Reset() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.nextID = 0
}

// Draw stamps a local segment, renders it and streams it.
// It refuses input unless the local player is the current drawer.
func (s *Synchronizer) Draw(seg Segment) (model.Stroke, bool) {
	self, ok := s.identity.PlayerID()
	if !ok || !s.identity.IsDrawing() {
		s.logger.Debug().Msg("ignoring drawing input from a non-drawer")
		return model.Stroke{}, false
	}

	s.mx.Lock()
	id := s.nextID
	s.nextID++
	s.mx.Unlock()

	st := model.Stroke{
		ID:        id,
		X1:        seg.X1,
		Y1:        seg.Y1,
		X2:        seg.X2,
		Y2:        seg.Y2,
		Color:     seg.Color,
		Thickness: seg.Thickness,
		Timestamp: s.now().UnixMilli(),
		PlayerID:  &self,
	}

	s.canvas.DrawStroke(st)
	if s.sender.Send(model.TypeStroke, st) {
		s.metrics.Stroke("sent")
	}
	return st, true
}

// Receive renders a replicated stroke unless it is our own echo. Without an
// origin id the stroke is dropped while we are the drawer.
func (s *Synchronizer) Receive(st model.Stroke) {
	if s.isEcho(st) {
		s.metrics.Stroke("suppressed")
		s.logger.Trace().Uint32("stroke", st.ID).Msg("suppressed own stroke")
		return
	}
	s.metrics.Stroke("rendered")
	s.canvas.DrawStroke(st)
}

func (s *Synchronizer) isEcho(st model.Stroke) bool {
	if st.PlayerID != nil {
		self, ok := s.identity.PlayerID()
		return ok && *st.PlayerID == self
	}
	return s.identity.IsDrawing()
}

// Clear erases the canvas on a broadcast clear.
func (s *Synchronizer) Clear() {
	s.canvas.Clear()
}

// ClearLocal erases the canvas and asks the server to clear everyone else's.
func (s *Synchronizer) ClearLocal() bool {
	s.canvas.Clear()
	return s.sender.Send(model.TypeClearCanvas, model.Empty{})
}
