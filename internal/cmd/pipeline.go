package cmd

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/visitlens/visitlens/internal/config"
	"github.com/visitlens/visitlens/internal/core/engine"
	"github.com/visitlens/visitlens/internal/core/roblox"
)

// buildGameClient assembles the fetch pipeline: rate limiter, retrying
// fetcher, and the composing game client.
func buildGameClient(cfg config.Config, logger *zap.Logger) *roblox.GameClient {
	limiter := engine.NewRateLimiter(engine.RateLimitConfig{
		Floor:     cfg.Upstream.RequestFloor,
		Requests:  cfg.Upstream.QuotaRequests,
		Window:    cfg.Upstream.QuotaWindow,
		JitterMin: cfg.Upstream.RequestJitterMin,
		JitterMax: cfg.Upstream.RequestJitterMax,
	}, logger)

	fetcher := &roblox.Fetcher{
		Client:       &http.Client{Timeout: cfg.Upstream.Timeout},
		Limiter:      limiter,
		Logger:       logger,
		GamesBaseURL: cfg.Upstream.GamesBaseURL,
		ApisBaseURL:  cfg.Upstream.ApisBaseURL,
		UserAgent:    cfg.Upstream.UserAgent,
		MaxRetries:   cfg.Upstream.MaxRetries,
		MaxPages:     cfg.Upstream.MaxPages,
	}

	return &roblox.GameClient{
		Source: fetcher,
		Logger: logger,
	}
}
