package memory

import (
	"testing"

	"github.com/adwski/scribble-client/client/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func players() []model.Player {
	return []model.Player{
		{ID: 1, Username: "A", Score: 30, Online: true},
		{ID: 2, Username: "B", Score: 50, Online: true, IsDrawing: true},
		{ID: 3, Username: "C", Score: 50, Online: true},
	}
}

func TestRoster_ReplaceKeepsArrivalOrder(t *testing.T) {
	r := NewRoster()
	r.Replace(players())

	got := r.Players()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{got[0].Username, got[1].Username, got[2].Username})
	assert.Equal(t, []uint32{2}, r.Drawers())

	// The returned slice is a copy.
	got[0].Score = 999
	p, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, 30, p.Score)
}

func TestRoster_SetScoreIsIdempotent(t *testing.T) {
	r := NewRoster()
	r.Replace(players())

	require.NoError(t, r.SetScore(3, 80))
	once := r.Players()
	require.NoError(t, r.SetScore(3, 80))
	assert.Equal(t, once, r.Players())

	p, _ := r.Get(3)
	assert.Equal(t, model.Player{ID: 3, Username: "C", Score: 80, Online: true}, p)
	assert.ErrorIs(t, r.SetScore(42, 1), ErrPlayerNotFound)
}

func TestRoster_MarkOffline(t *testing.T) {
	r := NewRoster()
	r.Replace(players())

	require.NoError(t, r.MarkOffline(2))
	assert.Equal(t, 3, r.Len())
	p, _ := r.Get(2)
	assert.False(t, p.Online)
	assert.True(t, p.IsDrawing)
	assert.Equal(t, 50, p.Score)
	assert.ErrorIs(t, r.MarkOffline(42), ErrPlayerNotFound)
}

func TestRoster_DrawerIsExclusive(t *testing.T) {
	r := NewRoster()
	r.Replace(players())

	require.NoError(t, r.SetDrawer(3))
	assert.Equal(t, []uint32{3}, r.Drawers())
	assert.ErrorIs(t, r.SetDrawer(42), ErrPlayerNotFound)
	assert.Equal(t, []uint32{3}, r.Drawers())

	r.ClearDrawer()
	assert.Empty(t, r.Drawers())
}

func TestRoster_Upsert(t *testing.T) {
	r := NewRoster()
	r.Replace(players())

	r.Upsert(model.Player{ID: 4, Username: "D", Online: true})
	r.Upsert(model.Player{ID: 1, Username: "A2", Score: 30, Online: true})

	got := r.Players()
	require.Len(t, got, 4)
	assert.Equal(t, "A2", got[0].Username)
	assert.Equal(t, "D", got[3].Username)

	r.Reset()
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get(1)
	assert.False(t, ok)
}
