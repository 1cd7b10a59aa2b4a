package gang

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBillingCollectsDues(t *testing.T) {
	econ := newFakeEconomy()
	d, clock := newTestDirectory(t, WithEconomy(econ))
	boss := uuid.New()
	v, _ := d.CreateGang(boss, "Vipers", "VIP", "")
	ps := addMembers(t, d, boss, v.ID, 2)
	recruit, under := ps[0], ps[1]
	_ = d.PromoteMember(boss, under, RankUnderboss)
	_ = d.SetWeeklyFee(boss, 100)
	econ.set(recruit, 500)
	econ.set(under, 500)
	econ.set(boss, 500)

	clock.Advance(FeePeriod - time.Hour)
	rep := d.RunBillingSweep(context.Background())
	if rep.Assessed != 0 {
		t.Fatalf("nobody should be due yet: %+v", rep)
	}

	clock.Advance(time.Hour)
	rep = d.RunBillingSweep(context.Background())
	if rep.Paid != 2 || rep.Collected != 150 || rep.Missed != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	g, _ := d.Gang(v.ID)
	if g.Balance() != 150 || econ.get(recruit) != 400 || econ.get(under) != 450 || econ.get(boss) != 500 {
		t.Fatalf("balances treasury=%d recruit=%d under=%d boss=%d",
			g.Balance(), econ.get(recruit), econ.get(under), econ.get(boss))
	}

	rep = d.RunBillingSweep(context.Background())
	if rep.Assessed != 0 {
		t.Fatalf("second sweep in the same week should not bill: %+v", rep)
	}
}

func TestBillingThreeStrikes(t *testing.T) {
	econ := newFakeEconomy()
	events := &eventLog{}
	d, clock := newTestDirectory(t, WithEconomy(econ), WithNotifier(events))
	boss := uuid.New()
	v, _ := d.CreateGang(boss, "Vipers", "VIP", "")
	ps := addMembers(t, d, boss, v.ID, 2)
	broke, payer := ps[0], ps[1]
	_ = d.SetWeeklyFee(boss, 100)
	econ.set(payer, 1_000)

	for week := 1; week <= 2; week++ {
		clock.Advance(FeePeriod)
		rep := d.RunBillingSweep(context.Background())
		if rep.Missed != 1 || rep.Kicked != 0 {
			t.Fatalf("week %d: %+v", week, rep)
		}
		g, _ := d.Gang(v.ID)
		m, _ := g.Member(broke)
		if m.MissedPayments != week {
			t.Fatalf("week %d: missed = %d", week, m.MissedPayments)
		}
	}

	clock.Advance(FeePeriod)
	rep := d.RunBillingSweep(context.Background())
	if rep.Kicked != 1 || rep.Disbanded != 0 {
		t.Fatalf("week 3: %+v", rep)
	}
	if _, ok := d.GangOf(broke); ok {
		t.Fatalf("delinquent member still in gang")
	}
	if _, ok := d.GangOf(payer); !ok {
		t.Fatalf("paying member was removed")
	}
	if events.count(EventDuesKicked) != 1 {
		t.Fatalf("expected a dues_kicked event")
	}
	mustConsistent(t, d)
}

func TestBillingPaymentResetsStrikes(t *testing.T) {
	econ := newFakeEconomy()
	d, clock := newTestDirectory(t, WithEconomy(econ))
	boss := uuid.New()
	v, _ := d.CreateGang(boss, "Vipers", "VIP", "")
	p := addMembers(t, d, boss, v.ID, 1)[0]
	_ = d.SetWeeklyFee(boss, 100)

	clock.Advance(FeePeriod)
	d.RunBillingSweep(context.Background())
	clock.Advance(FeePeriod)
	d.RunBillingSweep(context.Background())

	econ.set(p, 100)
	clock.Advance(FeePeriod)
	rep := d.RunBillingSweep(context.Background())
	if rep.Paid != 1 {
		t.Fatalf("expected payment: %+v", rep)
	}
	g, _ := d.Gang(v.ID)
	if m, _ := g.Member(p); m.MissedPayments != 0 {
		t.Fatalf("strikes not reset: %d", m.MissedPayments)
	}
}

func TestBillingSkipsOffline(t *testing.T) {
	econ := newFakeEconomy()
	boss, away := uuid.New(), uuid.New()
	presence := fakePresence{away: false}
	d, clock := newTestDirectory(t, WithEconomy(econ), WithPresence(presence))
	v, _ := d.CreateGang(boss, "Vipers", "VIP", "")
	_ = d.InvitePlayer(boss, away)
	_ = d.JoinGang(away, v.ID)
	_ = d.SetWeeklyFee(boss, 100)

	for i := 0; i < 5; i++ {
		clock.Advance(FeePeriod)
		rep := d.RunBillingSweep(context.Background())
		if rep.Offline != 1 || rep.Missed != 0 {
			t.Fatalf("sweep %d: %+v", i, rep)
		}
	}
	g, _ := d.Gang(v.ID)
	if m, ok := g.Member(away); !ok || m.MissedPayments != 0 {
		t.Fatalf("offline member penalised: %+v ok=%v", m, ok)
	}
}

func TestBillingWalletErrorsCountAsMiss(t *testing.T) {
	econ := newFakeEconomy()
	econ.failAll = true
	d, clock := newTestDirectory(t, WithEconomy(econ))
	boss := uuid.New()
	v, _ := d.CreateGang(boss, "Vipers", "VIP", "")
	addMembers(t, d, boss, v.ID, 1)
	_ = d.SetWeeklyFee(boss, 10)

	clock.Advance(FeePeriod)
	rep := d.RunBillingSweep(context.Background())
	if rep.Missed != 1 {
		t.Fatalf("wallet error should be a miss: %+v", rep)
	}
}

func TestBillingNoFeeNoEconomy(t *testing.T) {
	d, clock := newTestDirectory(t)
	boss := uuid.New()
	v, _ := d.CreateGang(boss, "Vipers", "VIP", "")
	addMembers(t, d, boss, v.ID, 1)

	clock.Advance(FeePeriod)
	rep := d.RunBillingSweep(context.Background())
	if rep.Gangs != 0 || rep.Assessed != 0 {
		t.Fatalf("zero fee gang billed: %+v", rep)
	}

	_ = d.SetWeeklyFee(boss, 5)
	rep = d.RunBillingSweep(context.Background())
	if rep.Missed != 1 {
		t.Fatalf("missing economy should count as a miss: %+v", rep)
	}
}

func TestRunBillingStopsOnCancel(t *testing.T) {
	d, _ := newTestDirectory(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.RunBilling(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("billing loop did not stop")
	}
}

func TestBillingKicksMemberAfterThreeShortWeeks(t *testing.T) {
	econ := newFakeEconomy()
	d, clock := newTestDirectory(t, WithEconomy(econ))
	a, b := uuid.New(), uuid.New()
	v, err := d.CreateGang(a, "Vipers", "VIP", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := d.InvitePlayer(a, b); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if err := d.JoinGang(b, v.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	g, _ := d.Gang(v.ID)
	if m, _ := g.Member(b); m.Rank != RankRecruit || g.MemberCount() != 2 {
		t.Fatalf("after join: rank=%v size=%d", m.Rank, g.MemberCount())
	}
	if err := d.PromoteMember(a, b, RankMember); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := d.SetWeeklyFee(a, 100); err != nil {
		t.Fatalf("fee: %v", err)
	}
	econ.set(b, 99)

	for week := 0; week < MaxMissedPayments; week++ {
		clock.Advance(FeePeriod)
		d.RunBillingSweep(context.Background())
	}
	if g.MemberCount() != 1 {
		t.Fatalf("roster size = %d, want 1", g.MemberCount())
	}
	if _, ok := d.GangOf(b); ok {
		t.Fatalf("b is still indexed to a gang")
	}
	if econ.get(b) != 99 || g.Balance() != 0 {
		t.Fatalf("money moved: wallet=%d treasury=%d", econ.get(b), g.Balance())
	}
	mustConsistent(t, d)
}

func TestBillingDisbandsEmptiedGang(t *testing.T) {
	econ := newFakeEconomy()
	events := &eventLog{}
	d, clock := newTestDirectory(t, WithEconomy(econ), WithNotifier(events))
	founder := uuid.New()
	v, _ := d.CreateGang(founder, "Vipers", "VIP", "")
	other := addMembers(t, d, founder, v.ID, 1)[0]
	_ = d.SetWeeklyFee(founder, 50)

	// A leaderless roster: every member owes dues.
	g, _ := d.Gang(v.ID)
	if err := g.SetRank(founder, RankMember); err != nil {
		t.Fatalf("set rank: %v", err)
	}

	var rep BillingReport
	for week := 0; week < MaxMissedPayments; week++ {
		clock.Advance(FeePeriod)
		rep = d.RunBillingSweep(context.Background())
	}
	if rep.Kicked != 2 || rep.Disbanded != 1 {
		t.Fatalf("final sweep: %+v", rep)
	}
	if _, ok := d.Gang(v.ID); ok {
		t.Fatalf("emptied gang still in directory")
	}
	if _, ok := d.GangOf(founder); ok {
		t.Fatalf("founder still indexed")
	}
	if _, ok := d.GangOf(other); ok {
		t.Fatalf("member still indexed")
	}
	if _, ok := d.GangByTag("VIP"); ok {
		t.Fatalf("tag not released")
	}
	if events.count(EventDisbanded) != 1 {
		t.Fatalf("expected one disbanded event")
	}
	if err := d.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}

func TestBillingBacklogGivesOneStrikePerPeriod(t *testing.T) {
	econ := newFakeEconomy()
	boss, away := uuid.New(), uuid.New()
	presence := fakePresence{away: false}
	d, clock := newTestDirectory(t, WithEconomy(econ), WithPresence(presence))
	v, _ := d.CreateGang(boss, "Vipers", "VIP", "")
	_ = d.InvitePlayer(boss, away)
	if err := d.JoinGang(away, v.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	_ = d.SetWeeklyFee(boss, 100)

	for week := 0; week < 5; week++ {
		clock.Advance(FeePeriod)
		d.RunBillingSweep(context.Background())
	}
	g, _ := d.Gang(v.ID)
	if m, _ := g.Member(away); m.MissedPayments != 0 {
		t.Fatalf("offline weeks counted as misses: %d", m.MissedPayments)
	}

	presence[away] = true
	for i := 0; i < MaxMissedPayments; i++ {
		clock.Advance(time.Minute)
		d.RunBillingSweep(context.Background())
	}
	m, ok := g.Member(away)
	if !ok {
		t.Fatalf("member kicked within minutes of coming online")
	}
	if m.MissedPayments != 1 {
		t.Fatalf("missed = %d, want 1", m.MissedPayments)
	}
	if !m.LastFeePaid.Equal(clock.Now().Add(-2 * time.Minute)) {
		t.Fatalf("anchor = %v", m.LastFeePaid)
	}
	mustConsistent(t, d)
}
