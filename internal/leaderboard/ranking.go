package leaderboard

import (
	"fmt"
	"sort"

	"github.com/park285/cheese-chess-web/internal/domain"
)

// Capacity is the number of entries each difficulty table keeps.
const Capacity = 5

const MaxPlayerNameRunes = 255

var tableNames = map[domain.Difficulty]string{
	domain.DifficultyEasy:   "leaderboard_easy",
	domain.DifficultyMedium: "leaderboard_medium",
	domain.DifficultyHard:   "leaderboard_hard",
}

// TableName maps a difficulty to its table. Only the three fixed names can be
// returned, so the result is safe to splice into SQL.
func TableName(d domain.Difficulty) (string, error) {
	name, ok := tableNames[d]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, d)
	}
	return name, nil
}

// Placement is the outcome of an insert. Rank is 1-based; 0 means the entry
// was trimmed straight away because five faster times already exist.
type Placement struct {
	Entry domain.LeaderboardEntry
	Rank  int
}

func (p Placement) Ranked() bool { return p.Rank > 0 }

// Less orders by time ascending, then by insertion order.
func Less(a, b domain.LeaderboardEntry) bool {
	if a.TimeSeconds != b.TimeSeconds {
		return a.TimeSeconds < b.TimeSeconds
	}
	return a.ID < b.ID
}

func SortEntries(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return Less(entries[i], entries[j]) })
}

// FormatTime renders seconds as m:ss.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
