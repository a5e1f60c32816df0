// Package killstats imports daily boss kills from a TibiaData-compatible kill
// statistics API.
//
// The API reports, per creature race, how many were killed during the last server
// day. A tracked boss with last_day_killed > 0 is recorded as an imported appearance
// on the previous effective day at the default appearance hour, unless that day
// already holds an appearance.
package killstats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Client provides access to the kill statistics API
type Client struct {
	apiBaseURL     string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
}

// Entry is one creature race in the kill statistics
type Entry struct {
	Race                  string `json:"race"`
	LastDayKilled         int    `json:"last_day_killed"`
	LastDayPlayersKilled  int    `json:"last_day_players_killed"`
	LastWeekKilled        int    `json:"last_week_killed"`
	LastWeekPlayersKilled int    `json:"last_week_players_killed"`
}

type killStatisticsResponse struct {
	KillStatistics struct {
		World   string  `json:"world"`
		Entries []Entry `json:"entries"`
	} `json:"killstatistics"`
}

// NewClient creates a new kill statistics client limited to requestsPerMinute
func NewClient(apiBaseURL string, timeout time.Duration, requestsPerMinute, maxRetries int) *Client {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rps := float64(requestsPerMinute) / 60.0

	return &Client{
		apiBaseURL: apiBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries:     maxRetries,
		retryDelayBase: time.Second,
	}
}

// FetchKillStatistics retrieves the kill statistics of a world
func (c *Client) FetchKillStatistics(ctx context.Context, world string) ([]Entry, error) {
	if world == "" {
		return nil, fmt.Errorf("world is required")
	}
	u := fmt.Sprintf("%s/v4/killstatistics/%s", c.apiBaseURL, url.PathEscape(world))

	body, err := c.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch kill statistics: %w", err)
	}

	var response killStatisticsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode kill statistics: %w", err)
	}
	if response.KillStatistics.Entries == nil {
		return nil, fmt.Errorf("kill statistics response for %s has no entries", world)
	}

	return response.KillStatistics.Entries, nil
}

// doRequest performs a rate-limited GET with retry on transport errors and 5xx
// responses. Other non-200 statuses fail immediately.
func (c *Client) doRequest(ctx context.Context, u string) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response body: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
