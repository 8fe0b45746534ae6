package memory

import (
	"errors"
	"sync"

	"github.com/adwski/scribble-client/client/model"
)

var (
	ErrPlayerNotFound = errors.New("player is not in the roster")
)

// Roster keeps the room's players in arrival order. Players are patched in
// place and never removed while a room is active.
type Roster struct {
	mx    *sync.Mutex
	order []uint32
	db    map[uint32]*model.Player
}

func NewRoster() *Roster {
	return &Roster{
		mx: &sync.Mutex{},
		db: make(map[uint32]*model.Player),
	}
}

// Replace swaps the whole roster for a server-provided list.
func (r *Roster) Replace(players []model.Player) {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.order = make([]uint32, 0, len(players))
	r.db = make(map[uint32]*model.Player, len(players))
	for i := range players {
		p := players[i]
		if _, ok := r.db[p.ID]; !ok {
			r.order = append(r.order, p.ID)
		}
		r.db[p.ID] = &p
	}
}

// Upsert appends a newly arrived player or refreshes a known one in place.
func (r *Roster) Upsert(p model.Player) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.db[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.db[p.ID] = &p
}

func (r *Roster) SetScore(playerID uint32, score int) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	p, ok := r.db[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	p.Score = score
	return nil
}

func (r *Roster) MarkOffline(playerID uint32) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	p, ok := r.db[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	p.Online = false
	return nil
}

// SetDrawer flags playerID as the only drawer.
func (r *Roster) SetDrawer(playerID uint32) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.db[playerID]; !ok {
		return ErrPlayerNotFound
	}
	for id, p := range r.db {
		p.IsDrawing = id == playerID
	}
	return nil
}

func (r *Roster) ClearDrawer() {
	r.mx.Lock()
	defer r.mx.Unlock()

	for _, p := range r.db {
		p.IsDrawing = false
	}
}

func (r *Roster) Get(playerID uint32) (model.Player, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()

	p, ok := r.db[playerID]
	if !ok {
		return model.Player{}, false
	}
	return *p, true
}

// Drawers returns the ids of every player currently flagged as drawing.
func (r *Roster) Drawers() []uint32 {
	r.mx.Lock()
	defer r.mx.Unlock()

	var out []uint32
	for _, id := range r.order {
		if r.db[id].IsDrawing {
			out = append(out, id)
		}
	}
	return out
}

// Players returns a copy of the roster in arrival order.
func (r *Roster) Players() []model.Player {
	r.mx.Lock()
	defer r.mx.Unlock()

	out := make([]model.Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.db[id])
	}
	return out
}

func (r *Roster) Len() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.order)
}

func (r *Roster) Reset() {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.order = nil
	r.db = make(map[uint32]*model.Player)
}
