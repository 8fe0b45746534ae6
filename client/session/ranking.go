package session

import (
	"sort"

	"github.com/adwski/scribble-client/client/model"
)

type Rank struct {
	Position int
	Player   model.Player
	Winner   bool
}

// Ranking orders players by descending score. Ties keep their order in players.
func Ranking(players []model.Player) []Rank {
	sorted := make([]model.Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	ranks := make([]Rank, 0, len(sorted))
	for i, p := range sorted {
		ranks = append(ranks, Rank{
			Position: i + 1,
			Player:   p,
			Winner:   i == 0,
		})
	}
	return ranks
}
