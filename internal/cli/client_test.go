package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"gangs/internal/api"
	"gangs/internal/config"
	"gangs/internal/gang"
)

func newTestClient(t *testing.T, adminKey string) *Client {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dir := gang.NewDirectory(gang.WithLogger(logger))
	s := api.New(config.ServerConfig{APIKey: "k", AdminKey: "a"}, logger, dir, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "k", adminKey)
}

func TestClientFlow(t *testing.T) {
	c := newTestClient(t, "a")
	ctx := context.Background()
	boss, recruit := uuid.New(), uuid.New()

	out, err := c.CreateGang(ctx, boss, "Vipers", "VIP", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out["name"] != "Vipers" {
		t.Fatalf("create body: %v", out)
	}
	if _, err := c.Invite(ctx, boss, recruit); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := c.Join(ctx, recruit, "VIP"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := c.Claim(ctx, boss, "0,0"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	out, err = c.TerritoryOwner(ctx, recruit, "0,0")
	if err != nil || out["owned"] != true {
		t.Fatalf("owner: %v %v", out, err)
	}
	out, err = c.AdminSetLevel(ctx, "VIP", 4)
	if err != nil || out["level"].(float64) != 4 {
		t.Fatalf("admin level: %v %v", out, err)
	}
	out, err = c.MyGang(ctx, recruit)
	if err != nil || out["member_count"].(float64) != 2 {
		t.Fatalf("my gang: %v %v", out, err)
	}
}

func TestClientErrors(t *testing.T) {
	c := newTestClient(t, "")
	ctx := context.Background()

	_, err := c.Kick(ctx, uuid.New(), uuid.New())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("kick outside gang: %v", err)
	}
	if apiErr.Message == "" {
		t.Fatalf("empty error message")
	}
	if _, err := c.AdminRunBilling(ctx); err == nil {
		t.Fatalf("admin call without key should fail locally")
	}

	c.APIKey = "wrong"
	_, err = c.ListGangs(ctx, uuid.New())
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("bad key: %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := LoadSession(); err == nil {
		t.Fatalf("load without session should fail")
	}
	if err := SaveSession(Session{}); err == nil {
		t.Fatalf("empty session should be rejected")
	}
	want := Session{PlayerID: uuid.New(), BaseURL: "http://localhost:8080"}
	if err := SaveSession(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSession()
	if err != nil || got != want {
		t.Fatalf("load = %+v, %v", got, err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
}
