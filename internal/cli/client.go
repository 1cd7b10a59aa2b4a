package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const playerHeader = "X-Player-ID"

// APIError is a non-2xx response from the gang server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL  string
	APIKey   string
	AdminKey string
	HTTP     *http.Client
}

func NewClient(baseURL, apiKey, adminKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		AdminKey: adminKey,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Perks(ctx context.Context, player uuid.UUID) (map[string]any, error) {
	return c.player(ctx, http.MethodGet, "/v1/perks", player, nil)
}

func (c *Client) ListGangs(ctx context.Context, player uuid.UUID) (map[string]any, error) {
	return c.player(ctx, http.MethodGet, "/v1/gangs", player, nil)
}

func (c *Client) CreateGang(ctx context.Context, player uuid.UUID, name, tag, color string) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gangs", player, map[string]any{
		"name":  name,
		"tag":   tag,
		"color": color,
	})
}

// GangInfo looks a gang up by id, name or tag.
func (c *Client) GangInfo(ctx context.Context, player uuid.UUID, ref string) (map[string]any, error) {
	return c.player(ctx, http.MethodGet, "/v1/gangs/"+url.PathEscape(ref), player, nil)
}

func (c *Client) MyGang(ctx context.Context, player uuid.UUID) (map[string]any, error) {
	return c.player(ctx, http.MethodGet, "/v1/me/gang", player, nil)
}

func (c *Client) Join(ctx context.Context, player uuid.UUID, ref string) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gangs/"+url.PathEscape(ref)+"/join", player, nil)
}

func (c *Client) Invite(ctx context.Context, player, target uuid.UUID) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/invites", player, map[string]any{
		"player": target.String(),
	})
}

func (c *Client) Leave(ctx context.Context, player uuid.UUID) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/leave", player, nil)
}

func (c *Client) Kick(ctx context.Context, player, target uuid.UUID) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/kick", player, map[string]any{
		"player": target.String(),
	})
}

func (c *Client) Promote(ctx context.Context, player, target uuid.UUID, rank string) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/promote", player, map[string]any{
		"player": target.String(),
		"rank":   rank,
	})
}

func (c *Client) Disband(ctx context.Context, player uuid.UUID) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/disband", player, nil)
}

func (c *Client) UnlockPerk(ctx context.Context, player uuid.UUID, perk string) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/perks", player, map[string]any{
		"perk": perk,
	})
}

func (c *Client) SetFee(ctx context.Context, player uuid.UUID, fee int64) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/fee", player, map[string]any{
		"fee": fee,
	})
}

func (c *Client) SetColor(ctx context.Context, player uuid.UUID, color string) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/color", player, map[string]any{
		"color": color,
	})
}

func (c *Client) AddXP(ctx context.Context, player uuid.UUID, amount int64) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/xp", player, map[string]any{
		"amount": amount,
	})
}

func (c *Client) Deposit(ctx context.Context, player uuid.UUID, amount int64) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/treasury/deposit", player, map[string]any{
		"amount": amount,
	})
}

func (c *Client) Withdraw(ctx context.Context, player uuid.UUID, amount int64) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/treasury/withdraw", player, map[string]any{
		"amount": amount,
	})
}

func (c *Client) Claim(ctx context.Context, player uuid.UUID, chunk string) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/territory/claim", player, map[string]any{
		"chunk": chunk,
	})
}

func (c *Client) Unclaim(ctx context.Context, player uuid.UUID, chunk string) (map[string]any, error) {
	return c.player(ctx, http.MethodPost, "/v1/gang/territory/unclaim", player, map[string]any{
		"chunk": chunk,
	})
}

func (c *Client) TerritoryOwner(ctx context.Context, player uuid.UUID, chunk string) (map[string]any, error) {
	return c.player(ctx, http.MethodGet, "/v1/territory/"+url.PathEscape(chunk), player, nil)
}

func (c *Client) AdminSetLevel(ctx context.Context, ref string, level int) (map[string]any, error) {
	return c.admin(ctx, http.MethodPost, "/v1/admin/gangs/"+url.PathEscape(ref)+"/level", map[string]any{
		"level": level,
	})
}

func (c *Client) AdminAddXP(ctx context.Context, ref string, amount int64) (map[string]any, error) {
	return c.admin(ctx, http.MethodPost, "/v1/admin/gangs/"+url.PathEscape(ref)+"/xp", map[string]any{
		"amount": amount,
	})
}

func (c *Client) AdminRunBilling(ctx context.Context) (map[string]any, error) {
	return c.admin(ctx, http.MethodPost, "/v1/admin/billing/run", nil)
}

func (c *Client) AdminSave(ctx context.Context) (map[string]any, error) {
	return c.admin(ctx, http.MethodPost, "/v1/admin/save", nil)
}

func (c *Client) AdminConsistency(ctx context.Context) (map[string]any, error) {
	return c.admin(ctx, http.MethodGet, "/v1/admin/consistency", nil)
}

func (c *Client) player(ctx context.Context, method, path string, player uuid.UUID, body map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, c.APIKey, player, body, &out)
	return out, err
}

func (c *Client) admin(ctx context.Context, method, path string, body map[string]any) (map[string]any, error) {
	if strings.TrimSpace(c.AdminKey) == "" {
		return nil, fmt.Errorf("admin key is not configured (set GANG_ADMIN_KEY)")
	}
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, c.AdminKey, uuid.Nil, body, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, player uuid.UUID, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if player != uuid.Nil {
		req.Header.Set(playerHeader, player.String())
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
