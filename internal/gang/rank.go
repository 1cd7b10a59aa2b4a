package gang

import (
	"math"
	"strings"
)

type Rank uint8

const (
	RankRecruit Rank = iota + 1
	RankMember
	RankUnderboss
	RankBoss
)

type rankInfo struct {
	Name           string
	Priority       int
	FeeMultiplier  float64
	CanInvite      bool
	CanKick        bool
	CanClaim       bool
	CanManagePerks bool
	CanDisband     bool
}

// Indexed by Rank; slot 0 is the invalid rank.
var rankTable = [...]rankInfo{
	{Name: "UNKNOWN"},
	RankRecruit:   {Name: "RECRUIT", Priority: 1, FeeMultiplier: 1.0},
	RankMember:    {Name: "MEMBER", Priority: 2, FeeMultiplier: 1.0, CanInvite: true},
	RankUnderboss: {Name: "UNDERBOSS", Priority: 3, FeeMultiplier: 0.5, CanInvite: true, CanKick: true, CanClaim: true},
	RankBoss:      {Name: "BOSS", Priority: 4, FeeMultiplier: 0, CanInvite: true, CanKick: true, CanClaim: true, CanManagePerks: true, CanDisband: true},
}

func (r Rank) info() rankInfo {
	if !r.Valid() {
		return rankTable[0]
	}
	return rankTable[r]
}

func (r Rank) Valid() bool {
	return r >= RankRecruit && r <= RankBoss
}

func (r Rank) String() string { return r.info().Name }
func (r Rank) Priority() int { return r.info().Priority }
func (r Rank) FeeMultiplier() float64 { return r.info().FeeMultiplier }
func (r Rank) CanInvite() bool { return r.info().CanInvite }
func (r Rank) CanKick() bool { return r.info().CanKick }
func (r Rank) CanClaim() bool { return r.info().CanClaim }
func (r Rank) CanManagePerks() bool { return r.info().CanManagePerks }
func (r Rank) CanDisband() bool { return r.info().CanDisband }

// Ranks lists every valid rank from lowest to highest authority.
func Ranks() []Rank {
	return []Rank{RankRecruit, RankMember, RankUnderboss, RankBoss}
}

func ParseRank(s string) (Rank, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, r := range Ranks() {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, ErrInvalidRank
}

// CanKickRank reports whether kicker may remove a member holding target.
func CanKickRank(kicker, target Rank) bool {
	return kicker.CanKick() && kicker.Priority() > target.Priority()
}

// CanPromoteTo reports whether promoter may set a member's rank to to.
// Boss transfer is handled separately by the directory.
func CanPromoteTo(promoter, to Rank) bool {
	return to.Valid() &&
		promoter.Priority() > to.Priority() &&
		to.Priority() > RankRecruit.Priority()
}

// DuesFor returns the weekly charge for a member of the given rank.
func DuesFor(weeklyFee int64, r Rank) int64 {
	if weeklyFee <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(weeklyFee) * r.FeeMultiplier()))
}

func (r Rank) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRank
	}
	return []byte(r.String()), nil
}

func (r *Rank) UnmarshalText(b []byte) error {
	v, err := ParseRank(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
