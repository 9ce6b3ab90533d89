// Package session stores provider sessions encrypted at rest and harvests
// them from the login browser.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"portfolio_bridge/internal/logging"
	"portfolio_bridge/internal/metrics"
	"portfolio_bridge/internal/models"
)

const (
	blobKey = "sessions"
	purpose = "sessions"
)

// BlobStore persists opaque values by key.
type BlobStore interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

// Sealer encrypts and decrypts blobs for a purpose.
type Sealer interface {
	Seal(plaintext []byte, purpose string) ([]byte, error)
	Open(blob []byte, purpose string) ([]byte, error)
}

// Store keeps one session per provider in memory and mirrors every
// change to a single encrypted blob.
type Store struct {
	mu       sync.RWMutex
	sessions map[models.Provider]*models.Session

	// serializes snapshot+write so the last write carries the latest state
	saveMu sync.Mutex

	blobs  BlobStore
	sealer Sealer
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates an empty store. Call Load to read persisted sessions.
func NewStore(blobs BlobStore, sealer Sealer, logger *zap.Logger) *Store {
	return &Store{
		sessions: make(map[models.Provider]*models.Session),
		blobs:    blobs,
		sealer:   sealer,
		logger:   logging.OrNop(logger).Named("session_store"),
		now:      time.Now,
	}
}

// Load replaces the in-memory mapping with the persisted one, dropping
// expired entries. Unreadable or corrupt data yields an empty store.
func (s *Store) Load() {
	loaded := s.read()

	now := s.now()
	active := make(map[models.Provider]*models.Session, len(loaded))
	for p, sess := range loaded {
		if sess == nil || !p.Valid() {
			continue
		}
		if !sess.IsActive(now) {
			s.logger.Debug("dropping expired session", zap.String("provider", string(p)), zap.Time("expires_at", sess.ExpiresAt))
			continue
		}
		sess.Provider = p
		if sess.Tokens == nil {
			sess.Tokens = map[string]string{}
		}
		active[p] = sess
	}

	s.mu.Lock()
	s.sessions = active
	s.mu.Unlock()

	metrics.ActiveSessionsGauge.Set(float64(len(active)))
	s.logger.Info("sessions loaded", zap.Int("count", len(active)))
}

func (s *Store) read() map[models.Provider]*models.Session {
	blob, err := s.blobs.Get(blobKey)
	if err != nil {
		s.logger.Warn("reading session blob", zap.Error(err))
		return nil
	}
	if blob == nil {
		return nil
	}

	plaintext, err := s.sealer.Open(blob, purpose)
	if err != nil {
		s.logger.Warn("decrypting session blob, starting empty", zap.Error(err))
		return nil
	}

	var out map[models.Provider]*models.Session
	if err := json.Unmarshal(plaintext, &out); err != nil {
		s.logger.Warn("decoding session blob, starting empty", zap.Error(err))
		return nil
	}
	return out
}

// Save re-encrypts and writes the whole mapping. Failures are logged only.
func (s *Store) Save() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	data, err := json.Marshal(s.sessions)
	count := 0
	now := s.now()
	for _, sess := range s.sessions {
		if sess.IsActive(now) {
			count++
		}
	}
	s.mu.RUnlock()

	metrics.ActiveSessionsGauge.Set(float64(count))

	if err != nil {
		s.logger.Error("encoding sessions", zap.Error(err))
		return
	}
	blob, err := s.sealer.Seal(data, purpose)
	if err != nil {
		s.logger.Error("encrypting sessions", zap.Error(err))
		return
	}
	if err := s.blobs.Put(blobKey, blob); err != nil {
		s.logger.Error("writing session blob", zap.Error(err))
	}
}

// Get returns a copy of the provider's session if present and unexpired, else nil.
func (s *Store) Get(p models.Provider) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[p]
	if !ok || !sess.IsActive(s.now()) {
		return nil
	}
	return sess.Clone()
}

// Peek returns a copy of the provider's session regardless of expiry, else nil.
func (s *Store) Peek(p models.Provider) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[p].Clone()
}

// Put stores a copy of sess and persists.
func (s *Store) Put(sess *models.Session) {
	s.mu.Lock()
	s.sessions[sess.Provider] = sess.Clone()
	s.mu.Unlock()
	s.Save()
}

// Update applies fn to a copy of the provider's current session (nil if absent)
// and stores the result. Returning nil leaves the store unchanged.
func (s *Store) Update(p models.Provider, fn func(current *models.Session) *models.Session) *models.Session {
	s.mu.Lock()
	next := fn(s.sessions[p].Clone())
	if next == nil {
		s.mu.Unlock()
		return nil
	}
	next.Provider = p
	s.sessions[p] = next.Clone()
	s.mu.Unlock()

	s.Save()
	return next
}

// Clear removes the provider's session and persists.
func (s *Store) Clear(p models.Provider) {
	s.mu.Lock()
	delete(s.sessions, p)
	s.mu.Unlock()
	s.Save()
}

// ClearAll removes every session and persists.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.sessions = make(map[models.Provider]*models.Session)
	s.mu.Unlock()
	s.Save()
}

// ActiveProviders lists providers with an unexpired session in canonical order.
func (s *Store) ActiveProviders() []models.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var out []models.Provider
	for _, p := range models.Providers {
		if sess, ok := s.sessions[p]; ok && sess.IsActive(now) {
			out = append(out, p)
		}
	}
	return out
}

// Status describes every stored session, expired ones included.
func (s *Store) Status() []models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := []models.SessionStatus{}
	for _, p := range models.Providers {
		sess, ok := s.sessions[p]
		if !ok {
			continue
		}
		out = append(out, models.SessionStatus{
			Provider:  p,
			ExpiresAt: sess.ExpiresAt,
			Active:    sess.IsActive(now),
			HasTokens: sess.HasTokens(),
		})
	}
	return out
}
