// Package roblox talks to the public Roblox game-statistics endpoints:
// place→universe resolution, visit statistics, and the cursor-paginated
// public server list. All calls go through the shared rate limiter and a
// bounded retry policy; exhausted retries surface as errors for the game
// client's fallback policy, never as fabricated data.
package roblox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/visitlens/visitlens/internal/core"
)

const (
	defaultGamesBaseURL = "https://games.roblox.com"
	defaultApisBaseURL  = "https://apis.roblox.com"
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	defaultMaxRetries     = 3
	defaultMaxPages       = 3
	defaultTransientDelay = 5 * time.Second
	defaultQuotaDelay     = 60 * time.Second
)

// Limiter gates every upstream request.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// ServerPage is one page of the public server list.
type ServerPage struct {
	Playing    []int64
	NextCursor string
}

// Fetcher issues the upstream calls with rate limiting and retries.
type Fetcher struct {
	Client  *http.Client
	Limiter Limiter
	Logger  *zap.Logger

	// BaseURL overrides for tests.
	GamesBaseURL string
	ApisBaseURL  string
	UserAgent    string

	// MaxRetries bounds retry attempts per call kind; MaxPages caps
	// server-list pagination per cycle.
	MaxRetries int
	MaxPages   int

	// TransientDelay is the progressive retry step for transient failures
	// (delay = step * attempt). QuotaDelay is the exponential base for
	// quota rejections (delay = base * 2^attempt). Shrunk in tests.
	TransientDelay time.Duration
	QuotaDelay     time.Duration
}

// ResolveUniverse resolves a place id to its universe id.
func (f *Fetcher) ResolveUniverse(ctx context.Context, placeID string) (int64, error) {
	return retryCall(ctx, f, "universe", func(ctx context.Context) (int64, error) {
		var payload struct {
			UniverseID *int64 `json:"universeId"`
		}
		endpoint := fmt.Sprintf("%s/universes/v1/places/%s/universe",
			f.apisBaseURL(), url.PathEscape(placeID))
		if err := f.getJSON(ctx, endpoint, &payload); err != nil {
			return 0, err
		}
		if payload.UniverseID == nil {
			return 0, &core.TransientFetchError{
				Endpoint: endpoint,
				Cause:    fmt.Errorf("universeId missing from response"),
			}
		}
		return *payload.UniverseID, nil
	})
}

// FetchVisits returns the total visit count for a universe.
func (f *Fetcher) FetchVisits(ctx context.Context, universeID int64) (int64, error) {
	return retryCall(ctx, f, "visits", func(ctx context.Context) (int64, error) {
		var payload struct {
			Data []struct {
				Visits *int64 `json:"visits"`
			} `json:"data"`
		}
		endpoint := fmt.Sprintf("%s/v1/games?universeIds=%d", f.gamesBaseURL(), universeID)
		if err := f.getJSON(ctx, endpoint, &payload); err != nil {
			return 0, err
		}
		if len(payload.Data) == 0 || payload.Data[0].Visits == nil {
			return 0, &core.TransientFetchError{
				Endpoint: endpoint,
				Cause:    fmt.Errorf("visits missing from response"),
			}
		}
		return *payload.Data[0].Visits, nil
	})
}

// FetchServerPage returns one page of the public server list.
func (f *Fetcher) FetchServerPage(ctx context.Context, placeID, cursor string) (ServerPage, error) {
	return retryCall(ctx, f, "servers", func(ctx context.Context) (ServerPage, error) {
		var payload struct {
			Data []struct {
				Playing int64 `json:"playing"`
			} `json:"data"`
			NextPageCursor string `json:"nextPageCursor"`
		}
		endpoint := fmt.Sprintf("%s/v1/games/%s/servers/Public?sortOrder=Asc&limit=100",
			f.gamesBaseURL(), url.PathEscape(placeID))
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}
		if err := f.getJSON(ctx, endpoint, &payload); err != nil {
			return ServerPage{}, err
		}
		page := ServerPage{NextCursor: payload.NextPageCursor}
		for _, server := range payload.Data {
			page.Playing = append(page.Playing, server.Playing)
		}
		return page, nil
	})
}

// CountPlayers sums player counts across at most MaxPages server pages,
// trading completeness for request-budget safety. It reports how many
// servers were seen so callers can tell "no servers" from "zero players".
func (f *Fetcher) CountPlayers(ctx context.Context, placeID string) (players int64, servers int, err error) {
	cursor := ""
	for page := 0; page < f.maxPages(); page++ {
		result, pageErr := f.FetchServerPage(ctx, placeID, cursor)
		if pageErr != nil {
			if page == 0 {
				return 0, 0, pageErr
			}
			// Later pages are best effort: keep the partial sum.
			f.logger().Warn("server page fetch failed, keeping partial sum",
				zap.String("place", placeID),
				zap.Int("page", page),
				zap.Error(pageErr))
			return players, servers, nil
		}
		for _, playing := range result.Playing {
			players += playing
			servers++
		}
		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	return players, servers, nil
}

// getJSON performs one rate-limited GET and decodes the body.
func (f *Fetcher) getJSON(ctx context.Context, endpoint string, target any) error {
	if f.Limiter != nil {
		if err := f.Limiter.Acquire(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &core.TransientFetchError{Endpoint: endpoint, Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent())

	resp, err := f.client().Do(req)
	if err != nil {
		return &core.TransientFetchError{Endpoint: endpoint, Cause: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &core.QuotaExceededError{
			Endpoint:   endpoint,
			RetryAfter: retryAfterHeader(resp),
		}
	case resp.StatusCode != http.StatusOK:
		return &core.TransientFetchError{
			Endpoint: endpoint,
			Cause:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return &core.TransientFetchError{Endpoint: endpoint, Cause: err}
	}
	return nil
}

// retryCall retries op per the fetch policy: quota rejections wait
// 2^attempt times the quota base, other transient failures wait the
// progressive step, both capped at MaxRetries attempts. The last error is
// returned unwrapped once the budget is spent.
func retryCall[T any](ctx context.Context, f *Fetcher, call string, op func(context.Context) (T, error)) (T, error) {
	attempts := 0
	wrapped := func() (T, error) {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		var zero T
		if attempts >= f.maxRetries() {
			return zero, backoff.Permanent(err)
		}
		attempts++
		if core.IsQuotaExceeded(err) {
			delay := f.quotaDelay() << (attempts - 1)
			f.logger().Warn("quota exceeded, backing off",
				zap.String("call", call),
				zap.Int("attempt", attempts),
				zap.Duration("delay", delay))
			return zero, &backoff.RetryAfterError{Duration: delay}
		}
		f.logger().Warn("fetch failed, retrying",
			zap.String("call", call),
			zap.Int("attempt", attempts),
			zap.Error(err))
		return zero, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(&progressiveBackOff{step: f.transientDelay()}),
		backoff.WithMaxTries(uint(f.maxRetries()+1)),
	)
}

// progressiveBackOff waits step, 2*step, 3*step, ...
type progressiveBackOff struct {
	step    time.Duration
	attempt int64
}

func (b *progressiveBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.step * time.Duration(b.attempt)
}

func (b *progressiveBackOff) Reset() { b.attempt = 0 }

func retryAfterHeader(resp *http.Response) time.Duration {
	retry := resp.Header.Get("Retry-After")
	if retry == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retry); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return time.Until(parsed)
	}
	return 0
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return zap.NewNop()
}

func (f *Fetcher) gamesBaseURL() string {
	if f.GamesBaseURL != "" {
		return f.GamesBaseURL
	}
	return defaultGamesBaseURL
}

func (f *Fetcher) apisBaseURL() string {
	if f.ApisBaseURL != "" {
		return f.ApisBaseURL
	}
	return defaultApisBaseURL
}

func (f *Fetcher) userAgent() string {
	if f.UserAgent != "" {
		return f.UserAgent
	}
	return defaultUserAgent
}

func (f *Fetcher) maxRetries() int {
	if f.MaxRetries > 0 {
		return f.MaxRetries
	}
	return defaultMaxRetries
}

func (f *Fetcher) maxPages() int {
	if f.MaxPages > 0 {
		return f.MaxPages
	}
	return defaultMaxPages
}

func (f *Fetcher) transientDelay() time.Duration {
	if f.TransientDelay > 0 {
		return f.TransientDelay
	}
	return defaultTransientDelay
}

func (f *Fetcher) quotaDelay() time.Duration {
	if f.QuotaDelay > 0 {
		return f.QuotaDelay
	}
	return defaultQuotaDelay
}
