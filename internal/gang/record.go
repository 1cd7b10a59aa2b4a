package gang

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Record is the persisted form of a gang. IDs and ranks are kept as
// strings so a damaged row can be skipped or defaulted on load.
type Record struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Tag       string                  `json:"tag"`
	Color     string                  `json:"color"`
	Level     int                     `json:"level"`
	XP        int64                   `json:"xp"`
	Balance   int64                   `json:"balance"`
	Founded   time.Time               `json:"founded"`
	WeeklyFee int64                   `json:"weekly_fee"`
	Members   map[string]MemberRecord `json:"members"`
	Perks     []string                `json:"perks"`
	Territory []int64                 `json:"territory"`
}

type MemberRecord struct {
	Rank           string    `json:"rank"`
	ContributedXP  int64     `json:"contributed_xp"`
	JoinedAt       time.Time `json:"joined_at"`
	LastFeePaid    time.Time `json:"last_fee_paid"`
	MissedPayments int       `json:"missed_payments"`
}

func (g *Gang) Record() Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec := Record{
		ID:        g.id.String(),
		Name:      g.name,
		Tag:       g.tag,
		Color:     g.color,
		Level:     g.level,
		XP:        g.xp,
		Balance:   g.balance.Load(),
		Founded:   g.founded,
		WeeklyFee: g.weeklyFee,
		Members:   make(map[string]MemberRecord, len(g.members)),
		Perks:     append([]string(nil), g.perks...),
		Territory: make([]int64, 0, len(g.territory)),
	}
	for id, m := range g.members {
		rec.Members[id.String()] = MemberRecord{
			Rank:           m.Rank.String(),
			ContributedXP:  m.ContributedXP,
			JoinedAt:       m.JoinedAt,
			LastFeePaid:    m.LastFeePaid,
			MissedPayments: m.MissedPayments,
		}
	}
	for k := range g.territory {
		rec.Territory = append(rec.Territory, int64(k))
	}
	return rec
}

// Snapshot returns a record for every gang.
func (d *Directory) Snapshot() []Record {
	gangs := d.snapshotGangs()
	out := make([]Record, 0, len(gangs))
	for _, g := range gangs {
		out = append(out, g.Record())
	}
	return out
}

// Load replaces the directory's contents with records. Damaged entries are
// logged and skipped rather than failing the whole load: a bad gang id or
// name drops the gang, a bad player id drops the member, an unknown rank
// defaults to Recruit.
func (d *Directory) Load(records []Record) LoadReport {
	var rep LoadReport
	gangs := make(map[uuid.UUID]*Gang, len(records))
	byPlayer := make(map[uuid.UUID]uuid.UUID)
	byName := make(map[string]uuid.UUID, len(records))
	byTag := make(map[string]uuid.UUID, len(records))
	byChunk := make(map[ChunkKey]uuid.UUID)

	for _, rec := range records {
		g, err := d.gangFromRecord(rec)
		if err != nil {
			d.log.Warn("skip gang record", "gang", rec.ID, "err", err)
			rep.SkippedGangs++
			continue
		}
		if _, ok := gangs[g.id]; ok {
			d.log.Warn("skip gang record", "gang", rec.ID, "err", "duplicate id")
			rep.SkippedGangs++
			continue
		}
		if _, ok := byName[foldKey(g.name)]; ok {
			d.log.Warn("skip gang record", "gang", rec.ID, "err", ErrNameTaken)
			rep.SkippedGangs++
			continue
		}
		if _, ok := byTag[g.tag]; ok {
			d.log.Warn("skip gang record", "gang", rec.ID, "err", ErrTagTaken)
			rep.SkippedGangs++
			continue
		}

		for pid, mr := range rec.Members {
			player, err := uuid.Parse(pid)
			if err != nil || player == uuid.Nil {
				d.log.Warn("skip member record", "gang", rec.ID, "player", pid, "err", "bad player id")
				rep.SkippedMembers++
				continue
			}
			if _, ok := g.members[player]; ok {
				rep.SkippedMembers++
				continue
			}
			if other, ok := byPlayer[player]; ok {
				d.log.Warn("skip member record", "gang", rec.ID, "player", pid, "err", fmt.Sprintf("already in gang %s", other))
				rep.SkippedMembers++
				continue
			}
			rank, err := ParseRank(mr.Rank)
			if err != nil {
				d.log.Warn("default member rank", "gang", rec.ID, "player", pid, "rank", mr.Rank)
				rank = RankRecruit
			}
			g.members[player] = &Member{
				Player:         player,
				Rank:           rank,
				ContributedXP:  max(mr.ContributedXP, 0),
				JoinedAt:       mr.JoinedAt,
				LastFeePaid:    mr.LastFeePaid,
				MissedPayments: min(max(mr.MissedPayments, 0), MaxMissedPayments),
			}
		}
		if len(g.members) == 0 {
			d.log.Warn("skip gang record", "gang", rec.ID, "err", "no members")
			rep.SkippedGangs++
			continue
		}
		if repairBoss(g) {
			d.log.Warn("repaired gang leadership", "gang", rec.ID)
			rep.Repaired++
		}

		capacity := TerritoryCapacity(g.level, g.perks)
		for _, raw := range rec.Territory {
			k := ChunkKey(raw)
			if _, ok := byChunk[k]; ok {
				d.log.Warn("skip territory record", "gang", rec.ID, "chunk", k.String())
				continue
			}
			if capacity != Unlimited && len(g.territory) >= capacity {
				d.log.Warn("skip territory over capacity", "gang", rec.ID, "chunk", k.String())
				continue
			}
			g.territory[k] = struct{}{}
			byChunk[k] = g.id
		}
		for id := range g.members {
			byPlayer[id] = g.id
		}
		gangs[g.id] = g
		byName[foldKey(g.name)] = g.id
		byTag[g.tag] = g.id
		rep.Gangs++
		rep.Members += len(g.members)
	}

	d.mu.Lock()
	d.gangs = gangs
	d.byPlayer = byPlayer
	d.byName = byName
	d.byTag = byTag
	d.byChunk = byChunk
	d.mu.Unlock()
	return rep
}

func (d *Directory) gangFromRecord(rec Record) (*Gang, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: gang id: %v", ErrValidation, err)
	}
	name, err := NormalizeName(rec.Name)
	if err != nil {
		return nil, err
	}
	tag, err := NormalizeTag(rec.Tag)
	if err != nil {
		return nil, err
	}
	color, err := normalizeColor(rec.Color)
	if err != nil {
		color = DefaultColor
	}
	g := newGang(id, name, tag, color, rec.Founded, d.clock)
	g.level = clampLevel(rec.Level)
	g.xp = max(rec.XP, 0)
	g.weeklyFee = min(max(rec.WeeklyFee, 0), MaxWeeklyFee)
	g.balance.Store(max(rec.Balance, 0))

	budget := PerkBudget(g.level)
	for _, pn := range rec.Perks {
		p, ok := LookupPerk(pn)
		if !ok {
			d.log.Warn("skip unknown perk", "gang", rec.ID, "perk", pn)
			continue
		}
		if p.RequiredLevel > g.level {
			d.log.Warn("skip perk above gang level", "gang", rec.ID, "perk", pn, "level", g.level)
			continue
		}
		if len(g.perks) >= budget {
			d.log.Warn("skip perk over budget", "gang", rec.ID, "perk", pn)
			continue
		}
		if !slices.Contains(g.perks, p.Name) {
			g.perks = append(g.perks, p.Name)
		}
	}
	return g, nil
}

// repairBoss leaves exactly one Boss: the earliest-joined existing Boss, or
// else the highest-ranked earliest-joined member. It reports whether it
// changed anything.
func repairBoss(g *Gang) bool {
	ms := make([]Member, 0, len(g.members))
	for _, m := range g.members {
		ms = append(ms, *m)
	}
	sortMembers(ms)
	bosses := 0
	for _, m := range ms {
		if m.Rank == RankBoss {
			bosses++
		}
	}
	if bosses == 1 {
		return false
	}
	if bosses == 0 {
		g.members[ms[0].Player].Rank = RankBoss
		return true
	}
	kept := false
	for _, m := range ms {
		if m.Rank != RankBoss {
			continue
		}
		if !kept {
			kept = true
			continue
		}
		g.members[m.Player].Rank = RankUnderboss
	}
	return true
}
