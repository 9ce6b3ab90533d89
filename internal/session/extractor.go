package session

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"portfolio_bridge/internal/broker"
	apperrors "portfolio_bridge/internal/errors"
	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/metrics"
	"portfolio_bridge/internal/models"
)

// Browser is the embedded login view owned by the UI layer.
type Browser interface {
	// InjectScript runs script in the current page. Results arrive later
	// through HandleMessage.
	InjectScript(ctx context.Context, script string) error

	// Cookies returns the native cookie jar contents for url.
	Cookies(ctx context.Context, url string) (string, error)
}

// ExtractStatus describes how Extract ended.
type ExtractStatus string

const (
	StatusNotReady     ExtractStatus = "not_ready"
	StatusExtracted    ExtractStatus = "extracted"
	StatusFallback     ExtractStatus = "fallback"
	StatusKeptExisting ExtractStatus = "kept_existing"
)

// ExtractResult is returned by Extract.
type ExtractResult struct {
	Status  ExtractStatus   `json:"status"`
	Session *models.Session `json:"-"`
}

// MessageOutcome is returned by HandleMessage.
type MessageOutcome struct {
	Applied       bool `json:"applied"`
	LoginDetected bool `json:"login_detected"`
}

var refreshTokenKeys = []string{"refresh_token", "refreshToken"}

type pendingExtraction struct {
	provider models.Provider
	done     chan error
}

// Extractor turns post-login browser state into stored sessions.
type Extractor struct {
	store    *Store
	registry *broker.Registry
	logger   *zap.Logger
	timeout  time.Duration
	lifetime time.Duration
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	pending map[string]*pendingExtraction
}

// NewExtractor creates an extractor. timeout bounds the wait for the browser's
// reply; lifetime is the expiry extension applied to harvested sessions.
func NewExtractor(store *Store, registry *broker.Registry, timeout, lifetime time.Duration, logger *zap.Logger) *Extractor {
	return &Extractor{
		store:    store,
		registry: registry,
		logger:   logging.OrNop(logger).Named("session_extractor"),
		timeout:  timeout,
		lifetime: lifetime,
		now:      time.Now,
		newID:    uuid.NewString,
		pending:  make(map[string]*pendingExtraction),
	}
}

// IsLoginSuccess reports whether currentURL is inside the provider's authenticated area.
func (e *Extractor) IsLoginSuccess(p models.Provider, currentURL string) bool {
	adapter, err := e.registry.Get(p)
	if err != nil {
		return false
	}
	return adapter.IsLoginSuccess(currentURL)
}

// Extract harvests a session once the browser reaches an authenticated page.
// Without force it does nothing until IsLoginSuccess holds. It waits for the
// injected script's reply, then falls back to a cookie-only session unless a
// session with tokens is already stored.
func (e *Extractor) Extract(ctx context.Context, p models.Provider, browser Browser, currentURL string, force bool) (*ExtractResult, error) {
	adapter, err := e.registry.Get(p)
	if err != nil {
		return nil, err
	}
	if !force && !adapter.IsLoginSuccess(currentURL) {
		return &ExtractResult{Status: StatusNotReady}, nil
	}

	id := e.newID()
	entry := &pendingExtraction{provider: p, done: make(chan error, 1)}
	e.mu.Lock()
	e.pending[id] = entry
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
	}()

	log := e.logger.With(zap.String("provider", string(p)), zap.String("request_id", id))

	waitErr := browser.InjectScript(ctx, ExtractionScript(id, adapter.TokenKeys()))
	if waitErr == nil {
		waitErr = e.wait(ctx, entry)
	}

	switch {
	case waitErr == nil:
		metrics.ExtractionsTotal.WithLabelValues(string(p), "message").Inc()
		log.Info("session extracted")
		return &ExtractResult{Status: StatusExtracted, Session: e.store.Peek(p)}, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case apperrors.IsExtractionTimeout(waitErr):
		log.Warn("no extraction message before timeout, falling back", zap.Duration("timeout", e.timeout))
	default:
		metrics.ExtractionsTotal.WithLabelValues(string(p), "script_error").Inc()
		log.Warn("extraction script failed, falling back", zap.Error(waitErr))
	}

	return e.fallback(ctx, p, browser, currentURL)
}

func (e *Extractor) wait(ctx context.Context, entry *pendingExtraction) error {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case err := <-entry.done:
		return err
	case <-timer.C:
		return apperrors.ExtractionTimeout(entry.provider)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fallback stores a minimal session from the native cookie jar, keeping an
// existing session that already carries tokens.
func (e *Extractor) fallback(ctx context.Context, p models.Provider, browser Browser, currentURL string) (*ExtractResult, error) {
	if existing := e.store.Peek(p); existing != nil && existing.HasTokens() {
		metrics.ExtractionsTotal.WithLabelValues(string(p), "kept_existing").Inc()
		return &ExtractResult{Status: StatusKeptExisting, Session: existing}, nil
	}

	cookies, err := browser.Cookies(ctx, currentURL)
	if err != nil {
		e.logger.Warn("reading browser cookies", zap.String("provider", string(p)), zap.Error(err))
	}
	if strings.TrimSpace(cookies) == "" {
		return nil, apperrors.ExtractionTimeout(p)
	}

	sess := &models.Session{
		Provider:  p,
		Cookies:   cookies,
		Tokens:    map[string]string{},
		ExpiresAt: e.now().Add(e.lifetime),
	}
	e.store.Put(sess)
	metrics.ExtractionsTotal.WithLabelValues(string(p), "fallback").Inc()
	return &ExtractResult{Status: StatusFallback, Session: sess.Clone()}, nil
}

// ApplyExtractedMessage merges a message's cookies and tokens into the stored
// session, creating it if absent, and extends its expiry.
func (e *Extractor) ApplyExtractedMessage(p models.Provider, msg Message) (*models.Session, error) {
	adapter, err := e.registry.Get(p)
	if err != nil {
		return nil, err
	}

	tokens := harvestTokens(msg, slices.Concat(adapter.TokenKeys(), refreshTokenKeys))
	expiresAt := e.now().Add(e.lifetime)

	return e.store.Update(p, func(cur *models.Session) *models.Session {
		if cur == nil {
			cur = &models.Session{Provider: p, Tokens: map[string]string{}}
		}
		cur.Cookies = broker.MergeCookies(cur.Cookies, msg.Cookies)
		maps.Copy(cur.Tokens, tokens)
		for _, k := range refreshTokenKeys {
			if v := tokens[k]; v != "" {
				cur.RefreshToken = v
			}
		}
		if msg.UserID != "" {
			cur.UserID = msg.UserID
		}
		cur.ExpiresAt = expiresAt
		return cur
	}), nil
}

// HandleMessage routes one browser message for provider p.
func (e *Extractor) HandleMessage(p models.Provider, msg Message) (*MessageOutcome, error) {
	if err := msg.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	adapter, err := e.registry.Get(p)
	if err != nil {
		return nil, err
	}

	log := e.logger.With(zap.String("provider", string(p)), zap.String("type", string(msg.Type)))

	switch msg.Type {
	case MsgSessionExtracted, MsgAuthDataExtracted, MsgCookiesExtracted:
		if _, err := e.ApplyExtractedMessage(p, msg); err != nil {
			return nil, err
		}
		e.resolve(p, msg.RequestID, nil)
		log.Debug("browser session data applied")
		return &MessageOutcome{Applied: true}, nil

	case MsgAuthToken:
		if msg.Token == "" {
			return nil, apperrors.ValidationField("token", "token is required")
		}
		name := msg.Name
		if name == "" {
			name = "access_token"
		}
		if _, err := e.ApplyExtractedMessage(p, Message{Tokens: map[string]string{name: msg.Token}}); err != nil {
			return nil, err
		}
		return &MessageOutcome{Applied: true}, nil

	case MsgStorageUpdate:
		if msg.Value == "" || !slices.Contains(adapter.TokenKeys(), msg.Key) {
			return &MessageOutcome{}, nil
		}
		if _, err := e.ApplyExtractedMessage(p, Message{Tokens: map[string]string{msg.Key: msg.Value}}); err != nil {
			return nil, err
		}
		return &MessageOutcome{Applied: true}, nil

	case MsgPageLoaded:
		return &MessageOutcome{LoginDetected: adapter.IsLoginSuccess(msg.URL)}, nil

	case MsgScriptResult:
		log.Debug("script result", zap.ByteString("result", msg.Result))
		return &MessageOutcome{}, nil

	case MsgScriptError:
		log.Warn("browser script error", zap.String("error", msg.Error))
		e.resolve(p, msg.RequestID, errors.New(msg.Error))
		return &MessageOutcome{}, nil
	}

	return &MessageOutcome{}, nil
}

// resolve completes the pending extraction with the given id. An empty id
// completes any pending request for the provider.
func (e *Extractor) resolve(p models.Provider, id string, result error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.pending[id]
	if !ok && id == "" {
		for _, candidate := range e.pending {
			if candidate.provider == p {
				entry, ok = candidate, true
				break
			}
		}
	}
	if !ok || entry.provider != p {
		return
	}
	select {
	case entry.done <- result:
	default:
	}
}

// Pending reports the number of extractions awaiting a browser reply.
func (e *Extractor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// harvestTokens collects tokens from the payload map, from storage entries
// named by keys, and from JSON storage values holding such keys.
func harvestTokens(msg Message, keys []string) map[string]string {
	out := make(map[string]string)
	for k, v := range msg.Tokens {
		if v != "" {
			out[k] = v
		}
	}

	for _, store := range []map[string]string{msg.SessionStorage, msg.LocalStorage} {
		for k, v := range store {
			if v == "" {
				continue
			}
			if slices.Contains(keys, k) {
				if _, seen := out[k]; !seen {
					out[k] = v
				}
				continue
			}
			if strings.HasPrefix(strings.TrimSpace(v), "{") {
				var nested map[string]any
				if json.Unmarshal([]byte(v), &nested) != nil {
					continue
				}
				for nk, nv := range nested {
					s, ok := nv.(string)
					if ok && s != "" && slices.Contains(keys, nk) {
						if _, seen := out[nk]; !seen {
							out[nk] = s
						}
					}
				}
			}
		}
	}
	return out
}
