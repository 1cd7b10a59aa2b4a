package gang

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Tests swap it for a fake.
type Clock func() time.Time

type Member struct {
	Player         uuid.UUID `json:"player"`
	Rank           Rank      `json:"rank"`
	ContributedXP  int64     `json:"contributed_xp"`
	JoinedAt       time.Time `json:"joined_at"`
	LastFeePaid    time.Time `json:"last_fee_paid"`
	MissedPayments int       `json:"missed_payments"`
}

// FeeDue reports whether a full fee period has passed since the last payment.
func (m Member) FeeDue(now time.Time) bool {
	return now.Sub(m.LastFeePaid) >= FeePeriod
}

// Gang is the guild aggregate. Roster changes that affect the player index
// must go through Directory; the methods here only guard the gang's own
// invariants.
type Gang struct {
	id      uuid.UUID
	name    string
	tag     string
	founded time.Time
	now     Clock

	balance atomic.Int64

	mu        sync.Mutex
	level     int
	xp        int64
	weeklyFee int64
	color     string
	members   map[uuid.UUID]*Member
	perks     []string // unlock order
	territory map[ChunkKey]struct{}
	invites   map[uuid.UUID]time.Time
}

// NewGang validates name, tag and color and returns an empty level 1 gang.
func NewGang(name, tag, color string, clock Clock) (*Gang, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	tag, err = NormalizeTag(tag)
	if err != nil {
		return nil, err
	}
	color, err = normalizeColor(color)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return newGang(uuid.New(), name, tag, color, clock(), clock), nil
}

func newGang(id uuid.UUID, name, tag, color string, founded time.Time, clock Clock) *Gang {
	return &Gang{
		id:        id,
		name:      name,
		tag:       tag,
		founded:   founded,
		now:       clock,
		level:     1,
		color:     color,
		members:   make(map[uuid.UUID]*Member),
		territory: make(map[ChunkKey]struct{}),
		invites:   make(map[uuid.UUID]time.Time),
	}
}

func (g *Gang) ID() uuid.UUID { return g.id }
func (g *Gang) Name() string { return g.name }
func (g *Gang) Tag() string { return g.tag }
func (g *Gang) Founded() time.Time { return g.founded }
func (g *Gang) Balance() int64 { return g.balance.Load() }

func (g *Gang) Level() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

func (g *Gang) XP() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.xp
}

func (g *Gang) Color() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.color
}

func (g *Gang) WeeklyFee() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.weeklyFee
}

func (g *Gang) SetColor(color string) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.color = color
	g.mu.Unlock()
	return nil
}

func (g *Gang) SetWeeklyFee(fee int64) error {
	if fee < 0 || fee > MaxWeeklyFee {
		return ErrInvalidFee
	}
	g.mu.Lock()
	g.weeklyFee = fee
	g.mu.Unlock()
	return nil
}

// AddXP credits amount to the gang and to contributor's tally. It reports
// whether the gang's level increased. At max level it does nothing.
func (g *Gang) AddXP(amount int64, contributor uuid.UUID) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[contributor]
	if !ok {
		return false, ErrMemberNotFound
	}
	if g.level >= MaxLevel {
		return false, nil
	}
	m.ContributedXP += amount
	return g.addXPLocked(amount), nil
}

// AddXPAdmin is AddXP without contributor attribution.
func (g *Gang) AddXPAdmin(amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.level >= MaxLevel {
		return false, nil
	}
	return g.addXPLocked(amount), nil
}

func (g *Gang) addXPLocked(amount int64) bool {
	g.xp += amount
	lvl := clampLevel(LevelForXP(g.xp))
	if lvl > g.level {
		g.level = lvl
		return true
	}
	return false
}

// SetLevel forces the level (clamped to 1..MaxLevel) and resets XP to the
// level's threshold. Perks beyond the new budget are revoked newest first
// and returned.
func (g *Gang) SetLevel(level int) []string {
	level = clampLevel(level)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.level = level
	g.xp = RequiredXP(level)
	budget := PerkBudget(level)
	if len(g.perks) <= budget {
		return nil
	}
	revoked := slices.Clone(g.perks[budget:])
	g.perks = g.perks[:budget]
	return revoked
}

func (g *Gang) AddMember(player uuid.UUID, rank Rank) error {
	if player == uuid.Nil {
		return ErrInvalidPlayer
	}
	if !rank.Valid() {
		return ErrInvalidRank
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addMemberLocked(player, rank)
}

func (g *Gang) addMemberLocked(player uuid.UUID, rank Rank) error {
	if _, ok := g.members[player]; ok {
		return ErrAlreadyMember
	}
	if len(g.members) >= MemberCapacity(g.level) {
		return ErrRosterFull
	}
	now := g.now()
	g.members[player] = &Member{
		Player:      player,
		Rank:        rank,
		JoinedAt:    now,
		LastFeePaid: now,
	}
	delete(g.invites, player)
	return nil
}

// RemoveMember removes player unconditionally and reports whether it was present.
func (g *Gang) RemoveMember(player uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[player]; !ok {
		return false
	}
	delete(g.members, player)
	return true
}

func (g *Gang) SetRank(player uuid.UUID, rank Rank) error {
	if !rank.Valid() {
		return ErrInvalidRank
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[player]
	if !ok {
		return ErrMemberNotFound
	}
	m.Rank = rank
	return nil
}

func (g *Gang) Member(player uuid.UUID) (Member, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[player]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// Members returns a copy of the roster, highest rank first, then by join time.
func (g *Gang) Members() []Member {
	g.mu.Lock()
	out := make([]Member, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, *m)
	}
	g.mu.Unlock()
	sortMembers(out)
	return out
}

func sortMembers(ms []Member) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Rank != ms[j].Rank {
			return ms[i].Rank > ms[j].Rank
		}
		if !ms[i].JoinedAt.Equal(ms[j].JoinedAt) {
			return ms[i].JoinedAt.Before(ms[j].JoinedAt)
		}
		return ms[i].Player.String() < ms[j].Player.String()
	})
}

func (g *Gang) MemberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (g *Gang) Boss() (Member, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.members {
		if m.Rank == RankBoss {
			return *m, true
		}
	}
	return Member{}, false
}

// kick removes target on behalf of kicker, checking both ranks under one lock.
func (g *Gang) kick(kicker, target uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	km, ok := g.members[kicker]
	if !ok {
		return ErrNotInGang
	}
	tm, ok := g.members[target]
	if !ok {
		return ErrMemberNotFound
	}
	if !km.Rank.CanKick() {
		return ErrNoPermission
	}
	if !CanKickRank(km.Rank, tm.Rank) {
		return ErrRankTooLow
	}
	delete(g.members, target)
	return nil
}

// promote sets target's rank on behalf of promoter. Promoting to Boss hands
// leadership over and drops the promoter to Underboss in the same step.
func (g *Gang) promote(promoter, target uuid.UUID, to Rank) error {
	if !to.Valid() {
		return ErrInvalidRank
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	pm, ok := g.members[promoter]
	if !ok {
		return ErrNotInGang
	}
	tm, ok := g.members[target]
	if !ok {
		return ErrMemberNotFound
	}
	if to == RankBoss {
		if pm.Rank != RankBoss {
			return ErrNoPermission
		}
		tm.Rank = RankBoss
		pm.Rank = RankUnderboss
		return nil
	}
	if tm.Rank.Priority() >= pm.Rank.Priority() || !CanPromoteTo(pm.Rank, to) {
		return ErrRankTooLow
	}
	tm.Rank = to
	return nil
}

// leave removes player unless they are the Boss of a gang with other members.
func (g *Gang) leave(player uuid.UUID) (remaining int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[player]
	if !ok {
		return len(g.members), ErrNotInGang
	}
	if m.Rank == RankBoss && len(g.members) > 1 {
		return len(g.members), ErrBossMustTransfer
	}
	delete(g.members, player)
	return len(g.members), nil
}

func (g *Gang) rankOf(player uuid.UUID) (Rank, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[player]
	if !ok {
		return 0, false
	}
	return m.Rank, true
}

// asRank runs fn under the gang lock if actor's rank passes allowed.
func (g *Gang) asRank(actor uuid.UUID, allowed func(Rank) bool, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[actor]
	if !ok {
		return ErrNotInGang
	}
	if !allowed(m.Rank) {
		return ErrNoPermission
	}
	return fn()
}

// Invite records a pending invite for player, replacing any earlier one.
func (g *Gang) Invite(player uuid.UUID) error {
	if player == uuid.Nil {
		return ErrInvalidPlayer
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inviteLocked(player)
}

func (g *Gang) inviteLocked(player uuid.UUID) error {
	if _, ok := g.members[player]; ok {
		return ErrAlreadyMember
	}
	if len(g.members) >= MemberCapacity(g.level) {
		return ErrRosterFull
	}
	g.invites[player] = g.now().Add(InviteTTL)
	return nil
}

// HasValidInvite evicts the invite if it has expired.
func (g *Gang) HasValidInvite(player uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validInviteLocked(player)
}

func (g *Gang) validInviteLocked(player uuid.UUID) bool {
	exp, ok := g.invites[player]
	if !ok {
		return false
	}
	if !g.now().Before(exp) {
		delete(g.invites, player)
		return false
	}
	return true
}

func (g *Gang) RemoveInvite(player uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.invites[player]; !ok {
		return false
	}
	delete(g.invites, player)
	return true
}

// CleanExpiredInvites drops every expired invite and returns how many went.
func (g *Gang) CleanExpiredInvites() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	n := 0
	for p, exp := range g.invites {
		if !now.Before(exp) {
			delete(g.invites, p)
			n++
		}
	}
	return n
}

func (g *Gang) PendingInvites() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.invites)
}

// acceptInvite consumes a valid invite and adds player as Recruit.
func (g *Gang) acceptInvite(player uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[player]; ok {
		return ErrAlreadyMember
	}
	if !g.validInviteLocked(player) {
		return ErrInviteMissing
	}
	return g.addMemberLocked(player, RankRecruit)
}

func (g *Gang) UnlockPerk(name string) error {
	p, ok := LookupPerk(name)
	if !ok {
		return ErrPerkNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlockPerkLocked(p)
}

func (g *Gang) unlockPerkLocked(p Perk) error {
	if g.level < p.RequiredLevel {
		return ErrLevelTooLow
	}
	if slices.Contains(g.perks, p.Name) {
		return ErrPerkUnlocked
	}
	if len(g.perks) >= PerkBudget(g.level) {
		return ErrPerkBudget
	}
	g.perks = append(g.perks, p.Name)
	return nil
}

func (g *Gang) HasPerk(name string) bool {
	p, ok := LookupPerk(name)
	if !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Contains(g.perks, p.Name)
}

// UnlockedPerks returns perk names in unlock order.
func (g *Gang) UnlockedPerks() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.perks)
}

func (g *Gang) UsedPerkPoints() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.perks)
}

func (g *Gang) AddTerritory(key ChunkKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.territory[key]; ok {
		return ErrTerritoryOwned
	}
	capacity := TerritoryCapacity(g.level, g.perks)
	if capacity != Unlimited && len(g.territory) >= capacity {
		return ErrTerritoryFull
	}
	g.territory[key] = struct{}{}
	return nil
}

func (g *Gang) RemoveTerritory(key ChunkKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.territory[key]; !ok {
		return false
	}
	delete(g.territory, key)
	return true
}

func (g *Gang) OwnsTerritory(key ChunkKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.territory[key]
	return ok
}

// Territory returns the claimed chunks in ascending key order.
func (g *Gang) Territory() []ChunkKey {
	g.mu.Lock()
	out := make([]ChunkKey, 0, len(g.territory))
	for k := range g.territory {
		out = append(out, k)
	}
	g.mu.Unlock()
	slices.Sort(out)
	return out
}

func (g *Gang) TerritoryCapacity() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return TerritoryCapacity(g.level, g.perks)
}

func (g *Gang) Deposit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	g.balance.Add(amount)
	return nil
}

// Withdraw subtracts amount if the balance covers it. The check and the
// subtraction happen in one compare-and-swap, retried on contention.
func (g *Gang) Withdraw(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	for {
		cur := g.balance.Load()
		if amount > cur {
			return ErrInsufficientFunds
		}
		if g.balance.CompareAndSwap(cur, cur-amount) {
			return nil
		}
	}
}

// dueMembers snapshots the non-Boss members whose dues are due at now.
func (g *Gang) dueMembers(now time.Time) []Member {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Member
	for _, m := range g.members {
		if m.Rank == RankBoss || !m.FeeDue(now) {
			continue
		}
		out = append(out, *m)
	}
	sortMembers(out)
	return out
}

// recordPayment clears the member's arrears. It returns false if the player
// left in the meantime.
func (g *Gang) recordPayment(player uuid.UUID, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[player]
	if !ok {
		return false
	}
	m.LastFeePaid = now
	m.MissedPayments = 0
	return true
}

// recordMiss counts a strike and restarts the billing period at now, or one
// period past the old anchor if that is later, so a member carrying a
// backlog gets at most one strike per period.
func (g *Gang) recordMiss(player uuid.UUID, now time.Time) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[player]
	if !ok {
		return 0, false
	}
	if m.MissedPayments < MaxMissedPayments {
		m.MissedPayments++
	}
	next := m.LastFeePaid.Add(FeePeriod)
	if next.Before(now) {
		next = now
	}
	m.LastFeePaid = next
	return m.MissedPayments, true
}

// removeIfDelinquent removes player only if they still have MaxMissedPayments strikes.
func (g *Gang) removeIfDelinquent(player uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[player]
	if !ok || m.Rank == RankBoss || m.MissedPayments < MaxMissedPayments {
		return false
	}
	delete(g.members, player)
	return true
}
