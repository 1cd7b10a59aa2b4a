package gang

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunBillingSweep assesses weekly dues for every gang with a fee.
//
// Each due, non-Boss member who is online pays DuesFor(fee, rank) from
// their wallet into the treasury. A member who cannot pay gets a strike;
// at MaxMissedPayments strikes they are removed. Offline members are left
// alone for the cycle. A gang whose roster empties is disbanded.
func (d *Directory) RunBillingSweep(ctx context.Context) BillingReport {
	var rep BillingReport
	now := d.clock()
	for _, g := range d.snapshotGangs() {
		if ctx.Err() != nil {
			break
		}
		rep.Invites += g.CleanExpiredInvites()
		fee := g.WeeklyFee()
		if fee <= 0 {
			continue
		}
		rep.Gangs++

		var delinquent []uuid.UUID
		for _, m := range g.dueMembers(now) {
			if !d.presence.IsOnline(m.Player) {
				rep.Offline++
				continue
			}
			rep.Assessed++
			amount := DuesFor(fee, m.Rank)
			if amount <= 0 {
				g.recordPayment(m.Player, now)
				rep.Paid++
				continue
			}
			if d.collect(ctx, m.Player, amount) {
				if !g.recordPayment(m.Player, now) {
					// Left mid-sweep; hand the money back.
					d.refund(ctx, m.Player, amount)
					continue
				}
				_ = g.Deposit(amount)
				rep.Paid++
				rep.Collected += amount
				continue
			}
			missed, ok := g.recordMiss(m.Player, now)
			if !ok {
				continue
			}
			rep.Missed++
			if missed >= MaxMissedPayments {
				delinquent = append(delinquent, m.Player)
			}
		}

		for _, p := range delinquent {
			removed, disbanded := d.removeDelinquent(g, p)
			if removed {
				rep.Kicked++
			}
			if disbanded {
				rep.Disbanded++
			}
		}
	}
	d.log.Info("billing sweep complete",
		"gangs", rep.Gangs,
		"assessed", rep.Assessed,
		"paid", rep.Paid,
		"missed", rep.Missed,
		"offline", rep.Offline,
		"kicked", rep.Kicked,
		"disbanded", rep.Disbanded,
		"collected", rep.Collected,
	)
	return rep
}

// collect takes amount from player's wallet. Missing economy, lookup
// errors and short balances all count as a failed payment.
func (d *Directory) collect(ctx context.Context, player uuid.UUID, amount int64) bool {
	if d.economy == nil {
		return false
	}
	bal, err := d.economy.Balance(ctx, player)
	if err != nil {
		d.log.Warn("dues balance lookup failed", "player", player, "err", err)
		return false
	}
	if bal < amount {
		return false
	}
	ok, err := d.economy.Withdraw(ctx, player, amount)
	if err != nil {
		d.log.Warn("dues withdraw failed", "player", player, "err", err)
		return false
	}
	return ok
}

func (d *Directory) refund(ctx context.Context, player uuid.UUID, amount int64) {
	if err := d.economy.Deposit(ctx, player, amount); err != nil {
		d.log.Error("dues refund failed", "player", player, "amount", amount, "err", err)
	}
}

func (d *Directory) removeDelinquent(g *Gang, player uuid.UUID) (removed, disbanded bool) {
	d.mu.Lock()
	if cur, ok := d.gangs[g.ID()]; !ok || cur != g || d.byPlayer[player] != g.ID() {
		d.mu.Unlock()
		return false, false
	}
	if !g.removeIfDelinquent(player) {
		d.mu.Unlock()
		return false, false
	}
	delete(d.byPlayer, player)
	if g.MemberCount() == 0 {
		d.removeGangLocked(g)
		disbanded = true
	}
	d.mu.Unlock()

	d.log.Info("member removed for unpaid dues", "gang", g.ID(), "player", player)
	d.emit(g, EventDuesKicked, player, "")
	if disbanded {
		d.log.Info("gang disbanded after dues removal", "gang", g.ID())
		d.emit(g, EventDisbanded, player, "no members left")
	}
	return true, disbanded
}

// RunBilling runs RunBillingSweep every interval until ctx is done.
func (d *Directory) RunBilling(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	d.log.Info("billing scheduler started", "every", every.String())
	for {
		select {
		case <-ctx.Done():
			d.log.Info("billing scheduler stopped")
			return
		case <-ticker.C:
			d.RunBillingSweep(ctx)
		}
	}
}
