package controllers

import (
	"sort"

	"next2play/internal/models"
)

// SortGames orders In Progress games first, then the rest, each group by
// case-insensitive name. desc reverses the whole ordering, groups included.
func SortGames(games []models.Game, desc bool) {
	sort.SliceStable(games, func(i, j int) bool {
		a, b := games[i], games[j]
		aActive := a.ProgressStatus == models.StatusInProgress
		bActive := b.ProgressStatus == models.StatusInProgress
		if aActive != bActive {
			return aActive
		}
		return models.NameKey(a.GameName) < models.NameKey(b.GameName)
	})

	if desc {
		for i, j := 0, len(games)-1; i < j; i, j = i+1, j-1 {
			games[i], games[j] = games[j], games[i]
		}
	}
}
