// Package price supplies USD spot prices for USD-denominated thresholds.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultURL is the public CoinGecko API root.
const DefaultURL = "https://api.coingecko.com/api/v3"

var (
	// ErrNoPrice is returned when no fresh or cached price is available.
	ErrNoPrice = errors.New("price unavailable")
	// ErrCoolingDown is returned while backing off after a 429.
	ErrCoolingDown = errors.New("price source cooling down")
)

// Config tunes CoinGecko.
type Config struct {
	BaseURL   string
	TTL       time.Duration
	Cooldown  time.Duration
	Timeout   time.Duration
	RateLimit float64
}

type quote struct {
	usd       decimal.Decimal
	fetchedAt time.Time
}

// CoinGecko fetches /simple/price quotes and caches them per asset id.
// After a 429 it serves the last known quote until the cooldown elapses.
type CoinGecko struct {
	http     *resty.Client
	limiter  *rate.Limiter
	ttl      time.Duration
	cooldown time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu            sync.Mutex
	quotes        map[string]quote
	cooldownUntil time.Time
}

func NewCoinGecko(cfg Config, logger *zap.Logger) *CoinGecko {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &CoinGecko{
		http:     resty.New().SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).SetTimeout(cfg.Timeout),
		limiter:  rate.NewLimiter(limit, 1),
		ttl:      cfg.TTL,
		cooldown: cfg.Cooldown,
		logger:   logger,
		now:      time.Now,
		quotes:   make(map[string]quote),
	}
}

// USD returns the spot price of assetID, from cache when fresh.
func (c *CoinGecko) USD(ctx context.Context, assetID string) (decimal.Decimal, error) {
	now := c.now()

	c.mu.Lock()
	cached, ok := c.quotes[assetID]
	coolingDown := now.Before(c.cooldownUntil)
	c.mu.Unlock()

	if ok && now.Sub(cached.fetchedAt) < c.ttl {
		return cached.usd, nil
	}
	if coolingDown {
		if ok {
			return cached.usd, nil
		}
		return decimal.Zero, fmt.Errorf("%s: %w", assetID, ErrCoolingDown)
	}

	price, err := c.fetch(ctx, assetID)
	if err != nil {
		if ok {
			c.logger.Warn("price refresh failed, using stale quote",
				zap.String("asset", assetID),
				zap.Duration("age", now.Sub(cached.fetchedAt)),
				zap.Error(err),
			)
			return cached.usd, nil
		}
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.quotes[assetID] = quote{usd: price, fetchedAt: now}
	c.mu.Unlock()
	return price, nil
}

func (c *CoinGecko) fetch(ctx context.Context, assetID string) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"ids": assetID, "vs_currencies": "usd"}).
		Get("/simple/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch price %s: %w", assetID, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		c.mu.Lock()
		c.cooldownUntil = c.now().Add(c.cooldown)
		c.mu.Unlock()
		c.logger.Warn("price source rate limited", zap.String("asset", assetID), zap.Duration("cooldown", c.cooldown))
		return decimal.Zero, fmt.Errorf("%s: %w", assetID, ErrCoolingDown)
	}
	if !resp.IsSuccess() {
		return decimal.Zero, fmt.Errorf("fetch price %s: http status %d", assetID, resp.StatusCode())
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price %s: %w", assetID, err)
	}
	usd, ok := body[assetID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", assetID, ErrNoPrice)
	}
	return usd, nil
}
