package gang

import "math"

const (
	MaxLevel   = 30
	BaseXP     = 200.0
	XPExponent = 1.7
)

// xpTable[L] is the cumulative XP needed to reach level L.
var xpTable = buildXPTable()

func buildXPTable() [MaxLevel + 1]int64 {
	var t [MaxLevel + 1]int64
	for lvl := 1; lvl <= MaxLevel; lvl++ {
		t[lvl] = int64(math.Floor(BaseXP * math.Pow(float64(lvl), XPExponent)))
	}
	return t
}

// RequiredXP returns the cumulative XP needed to reach level.
func RequiredXP(level int) int64 {
	if level <= 0 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return xpTable[level]
}

// LevelForXP returns the highest level whose requirement is met, or 0.
func LevelForXP(xp int64) int {
	for lvl := MaxLevel; lvl >= 1; lvl-- {
		if xp >= xpTable[lvl] {
			return lvl
		}
	}
	return 0
}

func XPToNextLevel(level int, xp int64) int64 {
	if level >= MaxLevel {
		return 0
	}
	remaining := RequiredXP(level+1) - xp
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Progress reports how far xp is between level and level+1, in [0,1].
func Progress(level int, xp int64) float64 {
	if level >= MaxLevel {
		return 1
	}
	lo, hi := RequiredXP(level), RequiredXP(level+1)
	if hi <= lo {
		return 1
	}
	p := float64(xp-lo) / float64(hi-lo)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

func MemberCapacity(level int) int {
	c := 5 + 3*(level/5)
	if c > 20 {
		return 20
	}
	return c
}

func PerkBudget(level int) int {
	if level < 2 {
		return 0
	}
	return level - 2
}
