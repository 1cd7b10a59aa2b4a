package gang

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSnapshotLoadRoundTrip(t *testing.T) {
	d, _ := newTestDirectory(t)
	boss := uuid.New()
	v, _ := d.CreateGang(boss, "Vipers", "VIP", "green")
	ps := addMembers(t, d, boss, v.ID, 2)
	_ = d.PromoteMember(boss, ps[0], RankUnderboss)
	_, _ = d.AdminSetLevel(v.ID, 6)
	_ = d.UnlockPerk(boss, PerkTerritoryExpansion)
	_ = d.ClaimTerritory(boss, PackChunk(1, 2))
	_ = d.ClaimTerritory(boss, PackChunk(-4, 9))
	_ = d.SetWeeklyFee(boss, 75)
	g, _ := d.Gang(v.ID)
	_ = g.Deposit(900)
	want, _ := d.Info(v.ID)

	loaded, _ := newTestDirectory(t)
	rep := loaded.Load(d.Snapshot())
	if rep.Gangs != 1 || rep.Members != 3 || rep.SkippedGangs != 0 || rep.Repaired != 0 {
		t.Fatalf("load report: %+v", rep)
	}
	got, err := loaded.Info(v.ID)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got.Name != want.Name || got.Tag != want.Tag || got.Color != want.Color ||
		got.Level != want.Level || got.XP != want.XP || got.Balance != want.Balance ||
		got.WeeklyFee != want.WeeklyFee {
		t.Fatalf("scalar mismatch:\n got %+v\nwant %+v", got, want)
	}
	if !slices.Equal(got.Perks, want.Perks) || !slices.Equal(got.Territory, want.Territory) {
		t.Fatalf("sets mismatch: perks %v/%v territory %v/%v", got.Perks, want.Perks, got.Territory, want.Territory)
	}
	for i := range want.Members {
		if got.Members[i].Player != want.Members[i].Player || got.Members[i].Rank != want.Members[i].Rank {
			t.Fatalf("member %d mismatch", i)
		}
	}
	if gg, ok := loaded.GangByTag("vip"); !ok || gg.ID() != v.ID {
		t.Fatalf("tag index not rebuilt")
	}
	if owner, ok := loaded.TerritoryOwner(PackChunk(1, 2)); !ok || owner != v.ID {
		t.Fatalf("territory index not rebuilt")
	}
	mustConsistent(t, loaded)
}

func TestLoadRecoversDamagedRecords(t *testing.T) {
	founded := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	boss := uuid.New()
	shared := uuid.New()
	second := uuid.New()

	good := Record{
		ID:      uuid.NewString(),
		Name:    "Vipers",
		Tag:     "VIP",
		Level:   3,
		Founded: founded,
		Members: map[string]MemberRecord{
			boss.String():   {Rank: "BOSS", JoinedAt: founded},
			shared.String(): {Rank: "consigliere", JoinedAt: founded.Add(time.Hour)},
			"not-a-uuid":    {Rank: "MEMBER"},
		},
		Perks:     []string{"ECONOMY_TAX_BREAK", "PRODUCTION_YIELD", "GHOST_PERK"},
		Territory: []int64{int64(PackChunk(0, 0))},
	}
	leaderless := Record{
		ID:      uuid.NewString(),
		Name:    "Cobras",
		Tag:     "COB",
		Level:   1,
		Founded: founded,
		Members: map[string]MemberRecord{
			shared.String(): {Rank: "MEMBER"},
			second.String(): {Rank: "UNDERBOSS", JoinedAt: founded},
		},
		Territory: []int64{int64(PackChunk(0, 0))},
	}
	records := []Record{
		good,
		leaderless,
		{ID: "garbage", Name: "Broken", Tag: "BRK"},
		{ID: uuid.NewString(), Name: "Copycats", Tag: "vip", Members: map[string]MemberRecord{uuid.NewString(): {Rank: "BOSS"}}},
		{ID: uuid.NewString(), Name: "Empty", Tag: "EMP", Members: map[string]MemberRecord{"bad": {Rank: "BOSS"}}},
	}

	d, _ := newTestDirectory(t)
	rep := d.Load(records)
	if rep.Gangs != 2 || rep.SkippedGangs != 3 || rep.Repaired != 1 {
		t.Fatalf("load report: %+v", rep)
	}
	if rep.SkippedMembers != 3 {
		t.Fatalf("skipped members = %d", rep.SkippedMembers)
	}

	vipers, ok := d.GangByTag("VIP")
	if !ok {
		t.Fatalf("good gang missing")
	}
	if m, _ := vipers.Member(shared); m.Rank != RankRecruit {
		t.Fatalf("unknown rank should default to recruit, got %s", m.Rank)
	}
	if !slices.Equal(vipers.UnlockedPerks(), []string{"ECONOMY_TAX_BREAK"}) {
		t.Fatalf("perks = %v", vipers.UnlockedPerks())
	}

	cobras, ok := d.GangByTag("COB")
	if !ok {
		t.Fatalf("leaderless gang missing")
	}
	if cobras.MemberCount() != 1 {
		t.Fatalf("shared player should only be in one gang")
	}
	if b, _ := cobras.Boss(); b.Player != second {
		t.Fatalf("boss not repaired: %s", b.Player)
	}
	if len(cobras.Territory()) != 0 {
		t.Fatalf("duplicate chunk should be dropped")
	}
	mustConsistent(t, d)
}

func TestLoadClampsValues(t *testing.T) {
	boss := uuid.New()
	d, _ := newTestDirectory(t)
	d.Load([]Record{{
		ID:        uuid.NewString(),
		Name:      "Vipers",
		Tag:       "VIP",
		Color:     "this color is way too long",
		Level:     99,
		XP:        -5,
		Balance:   -100,
		WeeklyFee: MaxWeeklyFee * 2,
		Members: map[string]MemberRecord{
			boss.String(): {Rank: "BOSS", MissedPayments: 9, ContributedXP: -1},
		},
	}})
	g, ok := d.GangOf(boss)
	if !ok {
		t.Fatalf("gang not loaded")
	}
	if g.Level() != MaxLevel || g.XP() != 0 || g.Balance() != 0 || g.WeeklyFee() != MaxWeeklyFee || g.Color() != DefaultColor {
		t.Fatalf("values not clamped: level=%d xp=%d bal=%d fee=%d color=%s",
			g.Level(), g.XP(), g.Balance(), g.WeeklyFee(), g.Color())
	}
	m, _ := g.Member(boss)
	if m.MissedPayments != MaxMissedPayments || m.ContributedXP != 0 {
		t.Fatalf("member not clamped: %+v", m)
	}
}

func TestLoadDropsPerksAndClaimsTheLevelCannotHold(t *testing.T) {
	boss := uuid.New()
	d, _ := newTestDirectory(t)
	var chunks []int64
	for x := int32(0); x < 6; x++ {
		chunks = append(chunks, int64(PackChunk(x, 0)))
	}
	rep := d.Load([]Record{{
		ID:    uuid.NewString(),
		Name:  "Vipers",
		Tag:   "VIP",
		Level: 4,
		Members: map[string]MemberRecord{
			boss.String(): {Rank: "BOSS"},
		},
		// Budget at level 4 is 2; the empire perk needs level 28.
		Perks:     []string{PerkTerritoryEmpire, "ECONOMY_TAX_BREAK", "PRODUCTION_YIELD", "CRIME_FAST_HEIST"},
		Territory: chunks,
	}})
	if rep.Gangs != 1 {
		t.Fatalf("load report: %+v", rep)
	}
	g, _ := d.GangOf(boss)
	if !slices.Equal(g.UnlockedPerks(), []string{"ECONOMY_TAX_BREAK", "PRODUCTION_YIELD"}) {
		t.Fatalf("perks = %v", g.UnlockedPerks())
	}
	if g.HasPerk(PerkTerritoryEmpire) {
		t.Fatalf("perk above gang level was restored")
	}
	if got, want := len(g.Territory()), BaseTerritoryCapacity(4); got != want {
		t.Fatalf("territory = %d, want %d", got, want)
	}
	if _, ok := d.TerritoryOwner(ChunkKey(chunks[len(chunks)-1])); ok {
		t.Fatalf("over-capacity chunk indexed")
	}
	mustConsistent(t, d)
}
