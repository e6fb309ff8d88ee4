package opencast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/walsidalw/opencast-matomo-adapter/internal/config"
	"github.com/walsidalw/opencast-matomo-adapter/internal/domain"
	"github.com/walsidalw/opencast-matomo-adapter/internal/ports"
)

// Client resolves episode metadata through the Opencast External API. A
// bounded episode→series cache sits in front of the network; entries expire
// a fixed duration after their last access.
type Client struct {
	baseURL  string
	user     string
	password string
	orgaID   string
	http     *http.Client
	limiter  *rate.Limiter
	cache    *ttlcache.Cache[string, string]
	logger   *slog.Logger
}

var _ ports.SeriesResolver = (*Client)(nil)

// New builds a client from configuration. The cache is constructed per
// client with explicit capacity and TTL so tests can wire isolated
// instances; zero cache bounds disable caching, a zero rate limit disables
// throttling.
func New(cfg config.OpencastConfig, logger *slog.Logger) *Client {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	var cache *ttlcache.Cache[string, string]
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		cache = ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cfg.CacheTTL.Std()),
			ttlcache.WithCapacity[string, string](uint64(cfg.CacheSize)),
		)
		go cache.Start()
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		user:     cfg.User,
		password: cfg.Password,
		orgaID:   cfg.Organization,
		http:     &http.Client{Timeout: cfg.Timeout.Std()},
		limiter:  limiter,
		cache:    cache,
		logger:   logger,
	}
}

// OrganizationID returns the organization all lookups run under.
func (c *Client) OrganizationID() string { return c.orgaID }

// Close stops the cache's expiration loop.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Stop()
	}
}

// SeriesForEpisode returns the series the episode belongs to, or "" when the
// catalog has no series for it (including unknown episodes, answered with
// 404). Results with a series are cached; a cache hit refreshes the entry's
// TTL through the access itself.
func (c *Client) SeriesForEpisode(ctx context.Context, orgaID, episodeID string) (string, error) {
	if c.cache != nil {
		if item := c.cache.Get(episodeID); item != nil {
			return item.Value(), nil
		}
	}

	c.logger.Info("retrieving series for episode", "organization", orgaID, "episode", episodeID)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("opencast rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events/"+episodeID, nil)
	if err != nil {
		return "", fmt.Errorf("build opencast request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("opencast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown episodes are expected; the impression is still emitted.
		c.logger.Info("episode not found in catalog", "organization", orgaID, "episode", episodeID)
		return "", nil
	}
	if resp.StatusCode/100 != 2 {
		return "", &domain.RemoteServiceError{Service: "opencast", Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read opencast response: %w", err)
	}

	var event struct {
		IsPartOf *string `json:"is_part_of"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return "", &domain.MalformedResponseError{Body: string(body), Err: err}
	}
	if event.IsPartOf == nil || *event.IsPartOf == "" {
		return "", nil
	}

	if c.cache != nil {
		c.cache.Set(episodeID, *event.IsPartOf, ttlcache.DefaultTTL)
	}
	return *event.IsPartOf, nil
}
