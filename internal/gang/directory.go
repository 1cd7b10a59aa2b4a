package gang

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Directory owns every gang and the player→gang index. All roster changes
// that move a player in or out of a gang take mu for writing so the roster
// and the index are never observed out of step. Lock order is Directory.mu
// then Gang.mu.
type Directory struct {
	mu       sync.RWMutex
	gangs    map[uuid.UUID]*Gang
	byPlayer map[uuid.UUID]uuid.UUID
	byName   map[string]uuid.UUID
	byTag    map[string]uuid.UUID
	byChunk  map[ChunkKey]uuid.UUID

	clock    Clock
	log      *slog.Logger
	notifier Notifier
	economy  Economy
	presence Presence
}

type Option func(*Directory)

func WithClock(c Clock) Option {
	return func(d *Directory) {
		if c != nil {
			d.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.log = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(d *Directory) {
		if n != nil {
			d.notifier = n
		}
	}
}

func WithEconomy(e Economy) Option {
	return func(d *Directory) { d.economy = e }
}

func WithPresence(p Presence) Option {
	return func(d *Directory) {
		if p != nil {
			d.presence = p
		}
	}
}

func NewDirectory(opts ...Option) *Directory {
	d := &Directory{
		gangs:    make(map[uuid.UUID]*Gang),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
		byName:   make(map[string]uuid.UUID),
		byTag:    make(map[string]uuid.UUID),
		byChunk:  make(map[ChunkKey]uuid.UUID),
		clock:    time.Now,
		log:      slog.Default(),
		notifier: nopNotifier{},
		presence: alwaysOnline{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) emit(g *Gang, kind EventKind, player uuid.UUID, detail string) {
	d.notifier.Notify(Event{
		Kind:     kind,
		GangID:   g.ID(),
		GangName: g.Name(),
		Player:   player,
		Detail:   detail,
		At:       d.clock(),
	})
}

// memberGangLocked resolves the gang of player. Caller holds mu.
func (d *Directory) memberGangLocked(player uuid.UUID) (*Gang, error) {
	if player == uuid.Nil {
		return nil, ErrInvalidPlayer
	}
	gid, ok := d.byPlayer[player]
	if !ok {
		return nil, ErrNotInGang
	}
	g, ok := d.gangs[gid]
	if !ok {
		return nil, ErrGangNotFound
	}
	return g, nil
}

func (d *Directory) memberGang(player uuid.UUID) (*Gang, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.memberGangLocked(player)
}

func (d *Directory) CreateGang(founder uuid.UUID, name, tag, color string) (GangView, error) {
	if founder == uuid.Nil {
		return GangView{}, ErrInvalidPlayer
	}
	g, err := NewGang(name, tag, color, d.clock)
	if err != nil {
		return GangView{}, err
	}
	if err := g.AddMember(founder, RankBoss); err != nil {
		return GangView{}, err
	}

	d.mu.Lock()
	if _, ok := d.byPlayer[founder]; ok {
		d.mu.Unlock()
		return GangView{}, ErrAlreadyInGang
	}
	if _, ok := d.byName[foldKey(g.Name())]; ok {
		d.mu.Unlock()
		return GangView{}, ErrNameTaken
	}
	if _, ok := d.byTag[g.Tag()]; ok {
		d.mu.Unlock()
		return GangView{}, ErrTagTaken
	}
	d.gangs[g.ID()] = g
	d.byName[foldKey(g.Name())] = g.ID()
	d.byTag[g.Tag()] = g.ID()
	d.byPlayer[founder] = g.ID()
	d.mu.Unlock()

	d.log.Info("gang created", "gang", g.ID(), "name", g.Name(), "tag", g.Tag(), "player", founder)
	d.emit(g, EventCreated, founder, "")
	return g.View(), nil
}

// removeGangLocked drops g and every index entry pointing at it. Caller holds mu.
func (d *Directory) removeGangLocked(g *Gang) {
	for _, m := range g.Members() {
		if d.byPlayer[m.Player] == g.ID() {
			delete(d.byPlayer, m.Player)
		}
		g.RemoveMember(m.Player)
	}
	for _, k := range g.Territory() {
		if d.byChunk[k] == g.ID() {
			delete(d.byChunk, k)
		}
	}
	delete(d.byName, foldKey(g.Name()))
	delete(d.byTag, g.Tag())
	delete(d.gangs, g.ID())
}

func (d *Directory) DisbandGang(actor uuid.UUID) error {
	d.mu.Lock()
	g, err := d.memberGangLocked(actor)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	r, _ := g.rankOf(actor)
	if !r.CanDisband() {
		d.mu.Unlock()
		return ErrNoPermission
	}
	d.removeGangLocked(g)
	d.mu.Unlock()

	d.log.Info("gang disbanded", "gang", g.ID(), "player", actor)
	d.emit(g, EventDisbanded, actor, "")
	return nil
}

func (d *Directory) InvitePlayer(inviter, target uuid.UUID) error {
	if target == uuid.Nil {
		return ErrInvalidPlayer
	}
	if inviter == target {
		return ErrSelfTarget
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, err := d.memberGangLocked(inviter)
	if err != nil {
		return err
	}
	if _, ok := d.byPlayer[target]; ok {
		return ErrAlreadyInGang
	}
	return g.asRank(inviter, Rank.CanInvite, func() error {
		return g.inviteLocked(target)
	})
}

// JoinGang consumes player's invite to gangID and adds them as Recruit.
func (d *Directory) JoinGang(player, gangID uuid.UUID) error {
	if player == uuid.Nil {
		return ErrInvalidPlayer
	}
	d.mu.Lock()
	if _, ok := d.byPlayer[player]; ok {
		d.mu.Unlock()
		return ErrAlreadyInGang
	}
	g, ok := d.gangs[gangID]
	if !ok {
		d.mu.Unlock()
		return ErrGangNotFound
	}
	if err := g.acceptInvite(player); err != nil {
		d.mu.Unlock()
		return err
	}
	d.byPlayer[player] = g.ID()
	d.mu.Unlock()

	d.log.Info("member joined", "gang", g.ID(), "player", player)
	d.emit(g, EventJoined, player, RankRecruit.String())
	return nil
}

// LeaveGang removes player from their gang. A sole remaining member
// leaving disbands the gang; disbanded reports that.
func (d *Directory) LeaveGang(player uuid.UUID) (disbanded bool, err error) {
	d.mu.Lock()
	g, err := d.memberGangLocked(player)
	if err != nil {
		d.mu.Unlock()
		return false, err
	}
	remaining, err := g.leave(player)
	if err != nil {
		d.mu.Unlock()
		return false, err
	}
	delete(d.byPlayer, player)
	if remaining == 0 {
		d.removeGangLocked(g)
		disbanded = true
	}
	d.mu.Unlock()

	d.emit(g, EventLeft, player, "")
	if disbanded {
		d.log.Info("gang disbanded after last member left", "gang", g.ID(), "player", player)
		d.emit(g, EventDisbanded, player, "last member left")
	}
	return disbanded, nil
}

func (d *Directory) KickMember(kicker, target uuid.UUID) error {
	if kicker == target {
		return ErrSelfTarget
	}
	d.mu.Lock()
	g, err := d.memberGangLocked(kicker)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if d.byPlayer[target] != g.ID() {
		d.mu.Unlock()
		return ErrMemberNotFound
	}
	if err := g.kick(kicker, target); err != nil {
		d.mu.Unlock()
		return err
	}
	delete(d.byPlayer, target)
	d.mu.Unlock()

	d.log.Info("member kicked", "gang", g.ID(), "player", target, "by", kicker)
	d.emit(g, EventKicked, target, kicker.String())
	return nil
}

// PromoteMember sets target's rank. Promoting to Boss transfers leadership.
func (d *Directory) PromoteMember(promoter, target uuid.UUID, to Rank) error {
	if promoter == target {
		return ErrSelfTarget
	}
	if !to.Valid() {
		return ErrInvalidRank
	}
	d.mu.RLock()
	g, err := d.memberGangLocked(promoter)
	if err == nil && d.byPlayer[target] != g.ID() {
		err = ErrMemberNotFound
	}
	if err == nil {
		err = g.promote(promoter, target, to)
	}
	d.mu.RUnlock()
	if err != nil {
		return err
	}

	d.log.Info("rank changed", "gang", g.ID(), "player", target, "rank", to.String(), "by", promoter)
	d.emit(g, EventRankChanged, target, to.String())
	if to == RankBoss {
		d.emit(g, EventRankChanged, promoter, RankUnderboss.String())
	}
	return nil
}

func (d *Directory) UnlockPerk(actor uuid.UUID, perk string) error {
	p, ok := LookupPerk(perk)
	if !ok {
		return ErrPerkNotFound
	}
	g, err := d.memberGang(actor)
	if err != nil {
		return err
	}
	err = g.asRank(actor, Rank.CanManagePerks, func() error {
		return g.unlockPerkLocked(p)
	})
	if err != nil {
		return err
	}
	d.log.Info("perk unlocked", "gang", g.ID(), "perk", p.Name, "player", actor)
	d.emit(g, EventPerkUnlocked, actor, p.Name)
	return nil
}

// AddXP credits amount to player's gang, attributed to player.
func (d *Directory) AddXP(player uuid.UUID, amount int64) (bool, error) {
	g, err := d.memberGang(player)
	if err != nil {
		return false, err
	}
	leveled, err := g.AddXP(amount, player)
	if err != nil {
		return false, err
	}
	if leveled {
		d.emit(g, EventLevelChanged, player, fmt.Sprint(g.Level()))
	}
	return leveled, nil
}

func (d *Directory) AdminAddXP(gangID uuid.UUID, amount int64) (bool, error) {
	g, ok := d.Gang(gangID)
	if !ok {
		return false, ErrGangNotFound
	}
	leveled, err := g.AddXPAdmin(amount)
	if err != nil {
		return false, err
	}
	if leveled {
		d.emit(g, EventLevelChanged, uuid.Nil, fmt.Sprint(g.Level()))
	}
	return leveled, nil
}

// AdminSetLevel forces a gang's level and returns the perks revoked to fit
// the new budget.
func (d *Directory) AdminSetLevel(gangID uuid.UUID, level int) ([]string, error) {
	g, ok := d.Gang(gangID)
	if !ok {
		return nil, ErrGangNotFound
	}
	revoked := g.SetLevel(level)
	d.log.Info("gang level set", "gang", g.ID(), "level", g.Level(), "revoked_perks", len(revoked))
	d.emit(g, EventLevelChanged, uuid.Nil, fmt.Sprint(g.Level()))
	return revoked, nil
}

func isBoss(r Rank) bool { return r == RankBoss }

func (d *Directory) SetWeeklyFee(actor uuid.UUID, fee int64) error {
	if fee < 0 || fee > MaxWeeklyFee {
		return ErrInvalidFee
	}
	g, err := d.memberGang(actor)
	if err != nil {
		return err
	}
	return g.asRank(actor, isBoss, func() error {
		g.weeklyFee = fee
		return nil
	})
}

func (d *Directory) SetColor(actor uuid.UUID, color string) error {
	color, err := normalizeColor(color)
	if err != nil {
		return err
	}
	g, err := d.memberGang(actor)
	if err != nil {
		return err
	}
	return g.asRank(actor, isBoss, func() error {
		g.color = color
		return nil
	})
}

func (d *Directory) ClaimTerritory(actor uuid.UUID, key ChunkKey) error {
	d.mu.Lock()
	g, err := d.memberGangLocked(actor)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if r, _ := g.rankOf(actor); !r.CanClaim() {
		d.mu.Unlock()
		return ErrNoPermission
	}
	if owner, ok := d.byChunk[key]; ok {
		d.mu.Unlock()
		if owner == g.ID() {
			return ErrTerritoryOwned
		}
		return ErrChunkTaken
	}
	if err := g.AddTerritory(key); err != nil {
		d.mu.Unlock()
		return err
	}
	d.byChunk[key] = g.ID()
	d.mu.Unlock()

	d.emit(g, EventTerritoryClaimed, actor, key.String())
	return nil
}

func (d *Directory) UnclaimTerritory(actor uuid.UUID, key ChunkKey) error {
	d.mu.Lock()
	g, err := d.memberGangLocked(actor)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if r, _ := g.rankOf(actor); !r.CanClaim() {
		d.mu.Unlock()
		return ErrNoPermission
	}
	if !g.RemoveTerritory(key) {
		d.mu.Unlock()
		return ErrChunkNotOwned
	}
	delete(d.byChunk, key)
	d.mu.Unlock()

	d.emit(g, EventTerritoryReleased, actor, key.String())
	return nil
}

// TerritoryOwner returns the gang that holds key, if any.
func (d *Directory) TerritoryOwner(key ChunkKey) (uuid.UUID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byChunk[key]
	return id, ok
}

// DepositToTreasury moves amount from player's wallet into their gang's treasury.
func (d *Directory) DepositToTreasury(ctx context.Context, player uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	g, err := d.memberGang(player)
	if err != nil {
		return err
	}
	if d.economy == nil {
		return ErrInsufficientFunds
	}
	ok, err := d.economy.Withdraw(ctx, player, amount)
	if err != nil {
		return fmt.Errorf("wallet withdraw: %w", err)
	}
	if !ok {
		return ErrInsufficientFunds
	}

	// The wallet call ran unlocked; the player may have left or the gang
	// may be gone by now.
	d.mu.RLock()
	cur, err := d.memberGangLocked(player)
	if err == nil && cur != g {
		err = ErrNotInGang
	}
	if err == nil {
		err = g.asRank(player, Rank.Valid, func() error {
			return g.Deposit(amount)
		})
	}
	d.mu.RUnlock()
	if err != nil {
		d.refund(ctx, player, amount)
		return err
	}
	return nil
}

// WithdrawFromTreasury pays amount from the treasury into the Boss's wallet.
// The treasury is refunded if the wallet credit fails.
func (d *Directory) WithdrawFromTreasury(ctx context.Context, actor uuid.UUID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if d.economy == nil {
		return fmt.Errorf("%w: wallet service unavailable", ErrInvalidState)
	}
	g, err := d.memberGang(actor)
	if err != nil {
		return err
	}
	err = g.asRank(actor, isBoss, func() error {
		return g.Withdraw(amount)
	})
	if err != nil {
		return err
	}
	if err := d.economy.Deposit(ctx, actor, amount); err != nil {
		_ = g.Deposit(amount)
		return fmt.Errorf("wallet deposit: %w", err)
	}
	return nil
}

func (d *Directory) Gang(id uuid.UUID) (*Gang, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.gangs[id]
	return g, ok
}

func (d *Directory) GangOf(player uuid.UUID) (*Gang, bool) {
	g, err := d.memberGang(player)
	return g, err == nil
}

func (d *Directory) GangByName(name string) (*Gang, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[foldKey(name)]
	if !ok {
		return nil, false
	}
	return d.gangs[id], true
}

func (d *Directory) GangByTag(tag string) (*Gang, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byTag[tagKey(tag)]
	if !ok {
		return nil, false
	}
	return d.gangs[id], true
}

// Resolve finds a gang by id, tag, or name, in that order.
func (d *Directory) Resolve(ref string) (*Gang, error) {
	if id, err := uuid.Parse(ref); err == nil {
		if g, ok := d.Gang(id); ok {
			return g, nil
		}
		return nil, ErrGangNotFound
	}
	if g, ok := d.GangByTag(ref); ok {
		return g, nil
	}
	if g, ok := d.GangByName(ref); ok {
		return g, nil
	}
	return nil, ErrGangNotFound
}

func (d *Directory) Info(id uuid.UUID) (GangView, error) {
	g, ok := d.Gang(id)
	if !ok {
		return GangView{}, ErrGangNotFound
	}
	return g.View(), nil
}

func (d *Directory) snapshotGangs() []*Gang {
	d.mu.RLock()
	out := make([]*Gang, 0, len(d.gangs))
	for _, g := range d.gangs {
		out = append(out, g)
	}
	d.mu.RUnlock()
	return out
}

// List returns every gang ordered by level, then XP, then name.
func (d *Directory) List() []GangView {
	gangs := d.snapshotGangs()
	out := make([]GangView, 0, len(gangs))
	for _, g := range gangs {
		out = append(out, g.View())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return foldKey(out[i].Name) < foldKey(out[j].Name)
	})
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.gangs)
}

// CleanExpiredInvites sweeps expired invites from every gang.
func (d *Directory) CleanExpiredInvites() int {
	n := 0
	for _, g := range d.snapshotGangs() {
		n += g.CleanExpiredInvites()
	}
	return n
}

// CheckConsistency verifies that the player index and every roster agree,
// as do the chunk index and every territory set.
func (d *Directory) CheckConsistency() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := 0
	chunks := 0
	for id, g := range d.gangs {
		members := g.Members()
		if len(members) == 0 {
			return fmt.Errorf("gang %s has no members", id)
		}
		bosses := 0
		for _, m := range members {
			if m.Rank == RankBoss {
				bosses++
			}
			if d.byPlayer[m.Player] != id {
				return fmt.Errorf("member %s of gang %s missing from player index", m.Player, id)
			}
			seen++
		}
		if bosses != 1 {
			return fmt.Errorf("gang %s has %d bosses", id, bosses)
		}
		for _, k := range g.Territory() {
			if d.byChunk[k] != id {
				return fmt.Errorf("chunk %s of gang %s missing from territory index", k, id)
			}
			chunks++
		}
	}
	if seen != len(d.byPlayer) {
		return fmt.Errorf("player index has %d entries, rosters have %d", len(d.byPlayer), seen)
	}
	if chunks != len(d.byChunk) {
		return fmt.Errorf("territory index has %d entries, gangs hold %d", len(d.byChunk), chunks)
	}
	return nil
}
