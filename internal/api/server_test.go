package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"gangs/internal/config"
	"gangs/internal/gang"
)

const (
	testKey   = "player-key"
	testAdmin = "admin-key"
)

type testClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) (*testClient, *gang.Directory) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dir := gang.NewDirectory(gang.WithLogger(logger))
	s := New(config.ServerConfig{APIKey: testKey, AdminKey: testAdmin}, logger, dir, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testClient{t: t, srv: srv}, dir
}

func (c *testClient) do(method, path, key string, player uuid.UUID, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	if player != uuid.Nil {
		req.Header.Set(playerHeader, player.String())
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (c *testClient) as(method, path string, player uuid.UUID, body any) (int, map[string]any) {
	return c.do(method, path, testKey, player, body)
}

func TestAuthRequired(t *testing.T) {
	c, _ := newTestServer(t)
	p := uuid.New()
	if code, _ := c.do(http.MethodGet, "/v1/gangs", "", p, nil); code != http.StatusUnauthorized {
		t.Fatalf("no key: %d", code)
	}
	if code, _ := c.do(http.MethodGet, "/v1/gangs", "wrong", p, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad key: %d", code)
	}
	if code, _ := c.do(http.MethodGet, "/v1/gangs", testKey, uuid.Nil, nil); code != http.StatusBadRequest {
		t.Fatalf("no player: %d", code)
	}
	if code, _ := c.do(http.MethodPost, "/v1/admin/billing/run", testKey, p, nil); code != http.StatusForbidden {
		t.Fatalf("player key on admin route: %d", code)
	}
	if code, _ := c.do(http.MethodGet, "/healthz", "", uuid.Nil, nil); code != http.StatusOK {
		t.Fatalf("healthz: %d", code)
	}
}

func TestGangLifecycleOverHTTP(t *testing.T) {
	c, dir := newTestServer(t)
	boss, recruit := uuid.New(), uuid.New()

	code, body := c.as(http.MethodPost, "/v1/gangs", boss, map[string]any{"name": "Vipers", "tag": "vip"})
	if code != http.StatusCreated || body["tag"] != "VIP" {
		t.Fatalf("create: %d %v", code, body)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gangs", uuid.New(), map[string]any{"name": "vipers", "tag": "ABC"}); code != http.StatusConflict {
		t.Fatalf("duplicate name: %d", code)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gangs", uuid.New(), map[string]any{"name": "x", "tag": "ABC"}); code != http.StatusBadRequest {
		t.Fatalf("short name: %d", code)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gangs", uuid.New(), map[string]any{"name": "Cobras", "tag": "COB", "extra": 1}); code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", code)
	}

	if code, _ := c.as(http.MethodPost, "/v1/gangs/VIP/join", recruit, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("join without invite: %d", code)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gang/invites", boss, map[string]any{"player": recruit.String()}); code != http.StatusCreated {
		t.Fatalf("invite: %d", code)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gangs/vip/join", recruit, nil); code != http.StatusOK {
		t.Fatalf("join: %d", code)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gang/invites", recruit, map[string]any{"player": uuid.NewString()}); code != http.StatusForbidden {
		t.Fatalf("recruit invite: %d", code)
	}

	code, body = c.as(http.MethodGet, "/v1/me/gang", recruit, nil)
	if code != http.StatusOK || body["member_count"].(float64) != 2 {
		t.Fatalf("me/gang: %d %v", code, body)
	}
	if code, _ := c.as(http.MethodGet, "/v1/me/gang", uuid.New(), nil); code != http.StatusNotFound {
		t.Fatalf("me/gang outsider: %d", code)
	}

	if code, _ := c.as(http.MethodPost, "/v1/gang/leave", boss, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("boss leave: %d", code)
	}
	code, body = c.as(http.MethodPost, "/v1/gang/promote", boss, map[string]any{"player": recruit.String(), "rank": "boss"})
	if code != http.StatusOK || body["rank"] != "BOSS" {
		t.Fatalf("transfer: %d %v", code, body)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gang/promote", boss, map[string]any{"player": recruit.String(), "rank": "capo"}); code != http.StatusBadRequest {
		t.Fatalf("bad rank: %d", code)
	}
	code, body = c.as(http.MethodPost, "/v1/gang/leave", boss, nil)
	if code != http.StatusOK || body["disbanded"] != false {
		t.Fatalf("leave after transfer: %d %v", code, body)
	}
	if err := dir.CheckConsistency(); err != nil {
		t.Fatalf("inconsistent: %v", err)
	}
}

func TestTerritoryAndPerksOverHTTP(t *testing.T) {
	c, _ := newTestServer(t)
	boss := uuid.New()
	c.as(http.MethodPost, "/v1/gangs", boss, map[string]any{"name": "Vipers", "tag": "VIP"})

	if code, _ := c.as(http.MethodPost, "/v1/gang/territory/claim", boss, map[string]any{"chunk": "3,-4"}); code != http.StatusCreated {
		t.Fatalf("claim: %d", code)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gang/territory/claim", boss, map[string]any{"chunk": "3,5"}); code != http.StatusConflict {
		t.Fatalf("claim over cap: %d", code)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gang/territory/claim", boss, map[string]any{"chunk": "nope"}); code != http.StatusBadRequest {
		t.Fatalf("bad chunk: %d", code)
	}
	code, body := c.as(http.MethodGet, "/v1/territory/3,-4", boss, nil)
	if code != http.StatusOK || body["owned"] != true {
		t.Fatalf("owner: %d %v", code, body)
	}
	code, body = c.as(http.MethodGet, "/v1/territory/3%2C-4", boss, nil)
	if code != http.StatusOK || body["owned"] != true || body["chunk"] != "3,-4" {
		t.Fatalf("owner with escaped comma: %d %v", code, body)
	}

	if code, _ := c.as(http.MethodPost, "/v1/gang/perks", boss, map[string]any{"perk": "ECONOMY_TAX_BREAK"}); code != http.StatusUnprocessableEntity {
		t.Fatalf("perk too early: %d", code)
	}
	code, body = c.do(http.MethodPost, "/v1/admin/gangs/VIP/level", testAdmin, uuid.Nil, map[string]any{"level": 5})
	if code != http.StatusOK || body["level"].(float64) != 5 {
		t.Fatalf("admin level: %d %v", code, body)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gang/perks", boss, map[string]any{"perk": "territory_expansion"}); code != http.StatusOK {
		t.Fatalf("unlock: %d", code)
	}
	if code, _ := c.as(http.MethodPost, "/v1/gang/perks", boss, map[string]any{"perk": "MYSTERY"}); code != http.StatusNotFound {
		t.Fatalf("unknown perk: %d", code)
	}
	code, body = c.as(http.MethodGet, "/v1/gangs/VIP", boss, nil)
	if code != http.StatusOK || body["territory_capacity"].(float64) != 10 {
		t.Fatalf("info: %d %v", code, body)
	}
}

func TestAdminEndpoints(t *testing.T) {
	c, _ := newTestServer(t)
	boss := uuid.New()
	c.as(http.MethodPost, "/v1/gangs", boss, map[string]any{"name": "Vipers", "tag": "VIP"})
	c.as(http.MethodPost, "/v1/gang/fee", boss, map[string]any{"fee": 100})

	code, body := c.do(http.MethodPost, "/v1/admin/gangs/Vipers/xp", testAdmin, uuid.Nil, map[string]any{"amount": gang.RequiredXP(3)})
	if code != http.StatusOK || body["leveled_up"] != true {
		t.Fatalf("admin xp: %d %v", code, body)
	}
	if code, _ := c.do(http.MethodPost, "/v1/admin/gangs/NOPE/xp", testAdmin, uuid.Nil, map[string]any{"amount": 5}); code != http.StatusNotFound {
		t.Fatalf("admin xp unknown gang: %d", code)
	}
	code, body = c.do(http.MethodPost, "/v1/admin/billing/run", testAdmin, uuid.Nil, nil)
	if code != http.StatusOK || body["gangs"].(float64) != 1 {
		t.Fatalf("billing: %d %v", code, body)
	}
	if code, _ := c.do(http.MethodPost, "/v1/admin/save", testAdmin, uuid.Nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("save without store: %d", code)
	}
	code, body = c.do(http.MethodGet, "/v1/admin/consistency", testAdmin, uuid.Nil, nil)
	if code != http.StatusOK || body["ok"] != true {
		t.Fatalf("consistency: %d %v", code, body)
	}
}

func TestPerksCatalog(t *testing.T) {
	c, _ := newTestServer(t)
	code, body := c.as(http.MethodGet, "/v1/perks", uuid.New(), nil)
	if code != http.StatusOK {
		t.Fatalf("perks: %d", code)
	}
	if perks, ok := body["perks"].([]any); !ok || len(perks) != 16 {
		t.Fatalf("perks body: %v", body["perks"])
	}
}

func TestEscapedGangRefs(t *testing.T) {
	c, _ := newTestServer(t)
	boss, recruit := uuid.New(), uuid.New()
	c.as(http.MethodPost, "/v1/gangs", boss, map[string]any{"name": "Rats, Inc", "tag": "RAT"})

	code, body := c.as(http.MethodGet, "/v1/gangs/Rats%2C%20Inc", recruit, nil)
	if code != http.StatusOK || body["tag"] != "RAT" {
		t.Fatalf("info by escaped name: %d %v", code, body)
	}
	c.as(http.MethodPost, "/v1/gang/invites", boss, map[string]any{"player": recruit.String()})
	if code, _ := c.as(http.MethodPost, "/v1/gangs/Rats%2C%20Inc/join", recruit, nil); code != http.StatusOK {
		t.Fatalf("join by escaped name: %d", code)
	}
	code, body = c.do(http.MethodPost, "/v1/admin/gangs/Rats%2C%20Inc/level", testAdmin, uuid.Nil, map[string]any{"level": 4})
	if code != http.StatusOK || body["level"].(float64) != 4 {
		t.Fatalf("admin level by escaped name: %d %v", code, body)
	}
}
