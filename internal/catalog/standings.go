package catalog

import (
	"sort"
	"strings"

	"github.com/thereayou/ligabpi/internal/league"
)

func sortStandings(rows []league.Standing) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if da, db := a.GoalsFor-a.GoalsAgainst, b.GoalsFor-b.GoalsAgainst; da != db {
			return da > db
		}
		if a.GoalsFor != b.GoalsFor {
			return a.GoalsFor > b.GoalsFor
		}
		return strings.ToLower(a.ClubName) < strings.ToLower(b.ClubName)
	})
}
