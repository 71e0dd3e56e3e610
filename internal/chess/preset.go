package chess

import (
	"fmt"
	"sync"

	"github.com/park285/cheese-chess-web/internal/domain"
)

// DifficultyPreset is the engine tuning bound to one difficulty.
type DifficultyPreset struct {
	Difficulty     domain.Difficulty
	SkillLevel     int
	Threads        int
	HashMB         int
	DepthCap       int
	MoveTimeMillis int
}

var presetMu sync.RWMutex

var DefaultPresets = map[domain.Difficulty]DifficultyPreset{
	domain.DifficultyEasy: {
		Difficulty: domain.DifficultyEasy,
		SkillLevel: 3,
		Threads:    1,
		HashMB:     16,
		DepthCap:   2,
	},
	domain.DifficultyMedium: {
		Difficulty: domain.DifficultyMedium,
		SkillLevel: 10,
		Threads:    1,
		HashMB:     32,
		DepthCap:   6,
	},
	domain.DifficultyHard: {
		Difficulty: domain.DifficultyHard,
		SkillLevel: 20,
		Threads:    2,
		HashMB:     64,
		DepthCap:   12,
	},
}

func GetPreset(d domain.Difficulty) (DifficultyPreset, error) {
	if !d.Valid() {
		return DifficultyPreset{}, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, d)
	}
	presetMu.RLock()
	p, ok := DefaultPresets[d]
	presetMu.RUnlock()
	if !ok {
		return DifficultyPreset{}, fmt.Errorf("no preset for difficulty %s", d)
	}
	return p, nil
}

// SetPresetDepth overrides the search depth of one difficulty. Used by
// configuration; the skill level stays bound to the difficulty.
func SetPresetDepth(d domain.Difficulty, depth int) error {
	presetMu.Lock()
	defer presetMu.Unlock()

	p, ok := DefaultPresets[d]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, d)
	}
	p.DepthCap = depth
	if err := ValidatePreset(p); err != nil {
		return err
	}
	DefaultPresets[d] = p
	return nil
}

func ValidatePreset(p DifficultyPreset) error {
	switch {
	case !p.Difficulty.Valid():
		return fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, p.Difficulty)
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.DepthCap < 0:
		return fmt.Errorf("depth cap must be >= 0: %d", p.DepthCap)
	case p.MoveTimeMillis < 0:
		return fmt.Errorf("move time must be >= 0: %d", p.MoveTimeMillis)
	case p.DepthCap == 0 && p.MoveTimeMillis == 0:
		return fmt.Errorf("preset %s does not define search limits", p.Difficulty)
	}
	return nil
}
