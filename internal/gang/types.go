package gang

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Economy is the player wallet service. Any error is treated as
// insufficient funds by the billing sweep.
type Economy interface {
	Balance(ctx context.Context, player uuid.UUID) (int64, error)
	Withdraw(ctx context.Context, player uuid.UUID, amount int64) (bool, error)
	Deposit(ctx context.Context, player uuid.UUID, amount int64) error
}

// Presence tells the billing sweep which players are connected.
type Presence interface {
	IsOnline(player uuid.UUID) bool
}

// Notifier receives gang change events after the change has been applied.
// Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// Store persists the whole directory as a list of records.
type Store interface {
	LoadGangs(ctx context.Context) ([]Record, error)
	SaveGangs(ctx context.Context, records []Record) error
}

type EventKind string

const (
	EventCreated           EventKind = "created"
	EventJoined            EventKind = "joined"
	EventLeft              EventKind = "left"
	EventKicked            EventKind = "kicked"
	EventDuesKicked        EventKind = "dues_kicked"
	EventRankChanged       EventKind = "rank_changed"
	EventLevelChanged      EventKind = "level_changed"
	EventPerkUnlocked      EventKind = "perk_unlocked"
	EventTerritoryClaimed  EventKind = "territory_claimed"
	EventTerritoryReleased EventKind = "territory_released"
	EventDisbanded         EventKind = "disbanded"
)

type Event struct {
	Kind     EventKind `json:"kind"`
	GangID   uuid.UUID `json:"gang_id"`
	GangName string    `json:"gang_name"`
	Player   uuid.UUID `json:"player"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

type alwaysOnline struct{}

func (alwaysOnline) IsOnline(uuid.UUID) bool { return true }

type GangView struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Tag               string    `json:"tag"`
	Color             string    `json:"color"`
	Founded           time.Time `json:"founded"`
	Level             int       `json:"level"`
	XP                int64     `json:"xp"`
	XPToNextLevel     int64     `json:"xp_to_next_level"`
	Progress          float64   `json:"progress"`
	Balance           int64     `json:"balance"`
	WeeklyFee         int64     `json:"weekly_fee"`
	MemberCount       int       `json:"member_count"`
	MemberCapacity    int       `json:"member_capacity"`
	Members           []Member  `json:"members"`
	Perks             []string  `json:"perks"`
	PerkPointsUsed    int       `json:"perk_points_used"`
	PerkBudget        int       `json:"perk_budget"`
	Territory         []string  `json:"territory"`
	TerritoryCapacity int       `json:"territory_capacity"`
}

// View snapshots the gang for display.
func (g *Gang) View() GangView {
	g.mu.Lock()
	v := GangView{
		ID:                g.id,
		Name:              g.name,
		Tag:               g.tag,
		Color:             g.color,
		Founded:           g.founded,
		Level:             g.level,
		XP:                g.xp,
		XPToNextLevel:     XPToNextLevel(g.level, g.xp),
		Progress:          Progress(g.level, g.xp),
		Balance:           g.balance.Load(),
		WeeklyFee:         g.weeklyFee,
		MemberCount:       len(g.members),
		MemberCapacity:    MemberCapacity(g.level),
		Perks:             append([]string(nil), g.perks...),
		PerkPointsUsed:    len(g.perks),
		PerkBudget:        PerkBudget(g.level),
		TerritoryCapacity: TerritoryCapacity(g.level, g.perks),
	}
	v.Members = make([]Member, 0, len(g.members))
	for _, m := range g.members {
		v.Members = append(v.Members, *m)
	}
	keys := make([]ChunkKey, 0, len(g.territory))
	for k := range g.territory {
		keys = append(keys, k)
	}
	g.mu.Unlock()

	sortMembers(v.Members)
	slices.Sort(keys)
	v.Territory = make([]string, len(keys))
	for i, k := range keys {
		v.Territory[i] = k.String()
	}
	return v
}

type BillingReport struct {
	Gangs     int   `json:"gangs"`
	Assessed  int   `json:"assessed"`
	Paid      int   `json:"paid"`
	Missed    int   `json:"missed"`
	Offline   int   `json:"offline"`
	Kicked    int   `json:"kicked"`
	Disbanded int   `json:"disbanded"`
	Collected int64 `json:"collected"`
	Invites   int   `json:"invites_expired"`
}

type LoadReport struct {
	Gangs          int `json:"gangs"`
	Members        int `json:"members"`
	SkippedGangs   int `json:"skipped_gangs"`
	SkippedMembers int `json:"skipped_members"`
	Repaired       int `json:"repaired"`
}
