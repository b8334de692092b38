// Package discord grants the credential role and sends direct messages
// through the Discord REST API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// roleColor is the gold used for the credential role.
const roleColor = 0xFFD700

// ErrNoGuild is returned when a grant has no guild to grant in.
var ErrNoGuild = errors.New("no guild for claimant")

// APIError is a non-2xx response from Discord.
type APIError struct {
	Status     int     `json:"-"`
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("discord %d: %s (retry after %.1fs)", e.Status, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("discord %d: %s", e.Status, e.Message)
}

// Client is a minimal Discord bot client.
type Client struct {
	baseURL      string
	token        string
	roleName     string
	defaultGuild string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu    sync.Mutex
	roles map[string]string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithDefaultGuild sets the guild used when a grant carries no origin.
func WithDefaultGuild(guildID string) Option {
	return func(client *Client) {
		client.defaultGuild = guildID
	}
}

// WithRateLimit sets the request rate shared by all calls.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(client *Client) {
		client.limiter = rate.NewLimiter(limit, burst)
	}
}

// New creates a Discord client authenticating with a bot token.
func New(baseURL, token, roleName string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		roleName: roleName,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(40), 5),
		logger:  logger,
		roles:   make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GrantCredential gives the member the credential role in the guild named by
// originContext, or the default guild, creating the role first if the guild
// lacks it. Granting a role the member already has succeeds.
func (c *Client) GrantCredential(ctx context.Context, claimantID, originContext string) error {
	guildID := originContext
	if guildID == "" {
		guildID = c.defaultGuild
	}
	if guildID == "" {
		return ErrNoGuild
	}

	roleID, err := c.ensureRole(ctx, guildID)
	if err != nil {
		return fmt.Errorf("ensuring role: %w", err)
	}

	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s",
		url.PathEscape(guildID), url.PathEscape(claimantID), url.PathEscape(roleID))
	if err := c.request(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("adding role: %w", err)
	}
	c.logger.Info("credential role granted", "guild", guildID, "claimant", claimantID, "role", roleID)
	return nil
}

func (c *Client) ensureRole(ctx context.Context, guildID string) (string, error) {
	c.mu.Lock()
	id, ok := c.roles[guildID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var roles []role
	if err := c.request(ctx, http.MethodGet, "/guilds/"+url.PathEscape(guildID)+"/roles", nil, &roles); err != nil {
		return "", err
	}
	for _, r := range roles {
		if r.Name == c.roleName {
			c.cacheRole(guildID, r.ID)
			return r.ID, nil
		}
	}

	var created role
	body := map[string]any{
		"name":        c.roleName,
		"color":       roleColor,
		"permissions": "0",
		"mentionable": false,
	}
	if err := c.request(ctx, http.MethodPost, "/guilds/"+url.PathEscape(guildID)+"/roles", body, &created); err != nil {
		return "", err
	}
	c.logger.Info("credential role created", "guild", guildID, "role", created.ID, "name", c.roleName)
	c.cacheRole(guildID, created.ID)
	return created.ID, nil
}

func (c *Client) cacheRole(guildID, roleID string) {
	c.mu.Lock()
	c.roles[guildID] = roleID
	c.mu.Unlock()
}

// Notify sends message to the user as a direct message.
func (c *Client) Notify(ctx context.Context, claimantID, message string) error {
	var channel struct {
		ID string `json:"id"`
	}
	if err := c.request(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": claimantID}, &channel); err != nil {
		return fmt.Errorf("opening dm channel: %w", err)
	}
	if err := c.request(ctx, http.MethodPost, "/channels/"+url.PathEscape(channel.ID)+"/messages", map[string]string{"content": message}, nil); err != nil {
		return fmt.Errorf("sending dm: %w", err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/monito83/OgWalletBot, 1.0)")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return parseError(resp)
	}
	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
