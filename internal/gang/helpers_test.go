package gang

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeEconomy struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	failAll  bool
}

func newFakeEconomy() *fakeEconomy {
	return &fakeEconomy{balances: make(map[uuid.UUID]int64)}
}

func (e *fakeEconomy) set(player uuid.UUID, amount int64) {
	e.mu.Lock()
	e.balances[player] = amount
	e.mu.Unlock()
}

func (e *fakeEconomy) get(player uuid.UUID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[player]
}

func (e *fakeEconomy) Balance(_ context.Context, player uuid.UUID) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAll {
		return 0, errors.New("wallet offline")
	}
	return e.balances[player], nil
}

func (e *fakeEconomy) Withdraw(_ context.Context, player uuid.UUID, amount int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAll {
		return false, errors.New("wallet offline")
	}
	if e.balances[player] < amount {
		return false, nil
	}
	e.balances[player] -= amount
	return true, nil
}

func (e *fakeEconomy) Deposit(_ context.Context, player uuid.UUID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAll {
		return errors.New("wallet offline")
	}
	e.balances[player] += amount
	return nil
}

type fakePresence map[uuid.UUID]bool

func (p fakePresence) IsOnline(player uuid.UUID) bool {
	online, ok := p[player]
	return !ok || online
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Notify(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestDirectory(t *testing.T, opts ...Option) (*Directory, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	base := []Option{WithClock(clock.Now), WithLogger(quietLogger())}
	return NewDirectory(append(base, opts...)...), clock
}

// addMembers invites and joins n fresh players into the gang bossed by boss.
func addMembers(t *testing.T, d *Directory, boss uuid.UUID, gangID uuid.UUID, n int) []uuid.UUID {
	t.Helper()
	out := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		p := uuid.New()
		if err := d.InvitePlayer(boss, p); err != nil {
			t.Fatalf("invite %d: %v", i, err)
		}
		if err := d.JoinGang(p, gangID); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		out = append(out, p)
	}
	return out
}

func mustConsistent(t *testing.T, d *Directory) {
	t.Helper()
	if err := d.CheckConsistency(); err != nil {
		t.Fatalf("directory inconsistent: %v", err)
	}
}

// hookEconomy runs onWithdraw after a successful wallet withdrawal.
type hookEconomy struct {
	*fakeEconomy
	onWithdraw func()
}

func (e *hookEconomy) Withdraw(ctx context.Context, player uuid.UUID, amount int64) (bool, error) {
	ok, err := e.fakeEconomy.Withdraw(ctx, player, amount)
	if ok && e.onWithdraw != nil {
		e.onWithdraw()
	}
	return ok, err
}
