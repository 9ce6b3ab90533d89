// Package client issues authenticated, rate-limited provider calls and
// returns normalized entities.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/metrics"
	"portfolio_bridge/internal/models"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultRefreshBuffer = 5 * time.Minute
	defaultLifetime      = 24 * time.Hour

	maxBodySize  = 10 << 20
	maxErrorBody = 512

	// sharedCallTimeout bounds a de-duplicated call, including any rate
	// limit delay, once it no longer follows the caller's context.
	sharedCallTimeout = 2 * time.Minute
)

// SessionStore is the part of session.Store the client needs.
type SessionStore interface {
	Peek(p models.Provider) *models.Session
	Update(p models.Provider, fn func(current *models.Session) *models.Session) *models.Session
}

// Limiter delays callers that exceed a provider's request budget.
type Limiter interface {
	Wait(ctx context.Context, p models.Provider) error
}

// Options tunes the client.
type Options struct {
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// RefreshBuffer is how close to expiry a session is refreshed.
	RefreshBuffer time.Duration
	// SessionLifetime is applied when a refresh response carries no expiry.
	SessionLifetime time.Duration
}

// Client is the authenticated request client shared by every service.
type Client struct {
	registry *broker.Registry
	store    SessionStore
	limiter  Limiter
	http     *http.Client
	logger   *zap.Logger

	refreshBuffer time.Duration
	lifetime      time.Duration
	now           func() time.Time

	group singleflight.Group
}

// New creates a client.
func New(registry *broker.Registry, store SessionStore, limiter Limiter, opts Options, logger *zap.Logger) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.RefreshBuffer <= 0 {
		opts.RefreshBuffer = defaultRefreshBuffer
	}
	if opts.SessionLifetime <= 0 {
		opts.SessionLifetime = defaultLifetime
	}
	return &Client{
		registry:      registry,
		store:         store,
		limiter:       limiter,
		http:          opts.HTTPClient,
		logger:        logging.OrNop(logger).Named("client"),
		refreshBuffer: opts.RefreshBuffer,
		lifetime:      opts.SessionLifetime,
		now:           time.Now,
	}
}

// Request performs op against provider p. Concurrent calls with the same
// provider, operation and params share one underlying call and its result;
// callers must treat returned slices as read-only.
func (c *Client) Request(ctx context.Context, p models.Provider, op models.Operation, params broker.Params) (any, error) {
	key := string(p) + "|" + string(op) + "|" + params.Key()

	v, err, shared := c.share(ctx, key, func(ctx context.Context) (any, error) {
		return c.do(ctx, p, op, params)
	})
	if shared {
		metrics.DeduplicatedRequestsTotal.WithLabelValues(string(p), string(op)).Inc()
	}
	return v, err
}

// share runs fn once per key for all concurrent callers. fn runs detached
// from any single caller's cancellation; each caller stops waiting when its
// own ctx is done.
func (c *Client) share(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error, bool) {
	if err := ctx.Err(); err != nil {
		return nil, err, false
	}

	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(callCtx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

func (c *Client) do(ctx context.Context, p models.Provider, op models.Operation, params broker.Params) (result any, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordProviderRequest(string(p), string(op), outcome(err), time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx, p); err != nil {
		return nil, err
	}

	adapter, err := c.registry.Get(p)
	if err != nil {
		return nil, err
	}

	sess, err := c.ValidateSession(ctx, p)
	if err != nil {
		return nil, err
	}

	req, err := adapter.BuildRequest(ctx, op, params, sess)
	if err != nil {
		return nil, err
	}

	body, err := c.send(p, req)
	if err != nil {
		c.logger.Debug("provider call failed",
			zap.String("provider", string(p)),
			zap.String("operation", string(op)),
			zap.Int("status", apperrors.StatusOf(err)),
			zap.Error(err))
		return nil, err
	}

	return adapter.ParseResponse(op, body)
}

// ValidateSession returns a usable session for p, refreshing it when it is
// expired or about to expire. A failed refresh of a still-active session is
// logged and the current session is used.
func (c *Client) ValidateSession(ctx context.Context, p models.Provider) (*models.Session, error) {
	sess := c.store.Peek(p)
	if sess == nil {
		return nil, apperrors.SessionMissing(p)
	}

	now := c.now()
	if !sess.NeedsRefresh(now, c.refreshBuffer) {
		return sess, nil
	}

	adapter, err := c.registry.Get(p)
	if err != nil {
		return nil, err
	}
	refresher, ok := adapter.(broker.Refresher)
	if !ok || sess.RefreshToken == "" {
		if sess.IsActive(now) {
			return sess, nil
		}
		return nil, apperrors.SessionInvalid(p, nil)
	}

	v, err, _ := c.share(ctx, string(p)+"|"+string(models.OpRefresh), func(ctx context.Context) (any, error) {
		return c.refresh(ctx, p, refresher, sess)
	})
	if err != nil {
		metrics.SessionRefreshesTotal.WithLabelValues(string(p), "failed").Inc()
		if sess.IsActive(c.now()) {
			c.logger.Warn("proactive session refresh failed", zap.String("provider", string(p)), zap.Error(err))
			return sess, nil
		}
		return nil, apperrors.SessionInvalid(p, err)
	}
	metrics.SessionRefreshesTotal.WithLabelValues(string(p), "ok").Inc()
	return v.(*models.Session), nil
}

func (c *Client) refresh(ctx context.Context, p models.Provider, refresher broker.Refresher, sess *models.Session) (*models.Session, error) {
	if err := c.limiter.Wait(ctx, p); err != nil {
		return nil, err
	}

	req, err := refresher.BuildRefreshRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	body, err := c.send(p, req)
	if err != nil {
		return nil, err
	}
	res, err := refresher.ParseRefreshResponse(body)
	if err != nil {
		return nil, err
	}

	lifetime := res.ExpiresIn
	if lifetime <= 0 {
		lifetime = c.lifetime
	}
	expiresAt := c.now().Add(lifetime)

	updated := c.store.Update(p, func(cur *models.Session) *models.Session {
		if cur == nil {
			cur = sess.Clone()
		}
		maps.Copy(cur.Tokens, res.Tokens)
		if res.RefreshToken != "" {
			cur.RefreshToken = res.RefreshToken
		}
		cur.ExpiresAt = expiresAt
		return cur
	})

	c.logger.Info("session refreshed", zap.String("provider", string(p)), zap.Time("expires_at", expiresAt))
	return updated, nil
}

// send issues req and returns the body of a 2xx response.
func (c *Client) send(p models.Provider, req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NetworkFailure(p, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperrors.NetworkFailure(p, resp.StatusCode, fmt.Errorf("reading body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, apperrors.NetworkFailure(p, resp.StatusCode, fmt.Errorf("body: %s", snippet))
	}
	return body, nil
}

// CheckConnection performs the provider's lightweight connectivity call.
func (c *Client) CheckConnection(ctx context.Context, p models.Provider) error {
	_, err := c.Request(ctx, p, models.OpConnectionCheck, broker.Params{})
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrSessionMissing):
		return "session_missing"
	case errors.Is(err, apperrors.ErrSessionInvalid):
		return "session_invalid"
	case errors.Is(err, apperrors.ErrNetworkFailure):
		return "network"
	case errors.Is(err, apperrors.ErrParse):
		return "parse"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
