package verify

import (
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"
)

// Namespace identifies one of the independent key→entry mappings.
type Namespace string

const (
	// RegistrationCodes holds 6-digit registration codes keyed by email.
	RegistrationCodes Namespace = "registration_codes"
	// ResetCodes holds 6-digit password reset codes keyed by email.
	ResetCodes Namespace = "reset_codes"
	// ResetTokens holds opaque password reset tokens keyed by the token itself.
	ResetTokens Namespace = "reset_tokens"
	// EmailChangeTokens holds opaque email change tokens keyed by the token itself.
	EmailChangeTokens Namespace = "email_change_tokens"
)

// Default entry lifetimes. Callers may override via configuration.
const (
	DefaultCodeTTL        = 10 * time.Minute
	DefaultResetTokenTTL  = 15 * time.Minute
	DefaultEmailChangeTTL = 24 * time.Hour
)

var (
	// ErrCodeNotFound indicates no entry exists for the key.
	ErrCodeNotFound = errors.New("verify: code not found")
	// ErrCodeExpired indicates the entry existed but its lifetime has passed.
	ErrCodeExpired = errors.New("verify: code expired")
	// ErrCodeMismatch indicates the presented secret does not match the stored one.
	ErrCodeMismatch = errors.New("verify: code mismatch")
)

// Entry is a single short-lived secret with its auxiliary data.
type Entry struct {
	// Secret is the value a caller must present to consume the entry.
	Secret string
	// Subject is the email address the secret was issued for.
	Subject string
	// OldEmail and NewEmail carry the pending address change for
	// email-change tokens; empty otherwise.
	OldEmail string
	NewEmail string

	ExpiresAt time.Time
}

// Live reports whether the entry has not yet expired at the given instant.
func (e Entry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Store holds short-lived, single-use secrets in process memory.
//
// Entries do not survive a restart; callers must treat "code not found"
// after a restart as normal and never use the store as a system of record.
// All operations are safe for concurrent use and linearizable per key.
type Store struct {
	mu      sync.Mutex
	entries map[Namespace]map[string]Entry
	now     func() time.Time
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithClock injects a custom time source, primarily for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs an empty store. Each process owns exactly one
// instance, created by the composition root and injected into the flows
// that need it.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[Namespace]map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeKey canonicalises a store key. Email keys vary in case and
// surrounding whitespace between issue and verify requests, so the same
// normalization must run on both paths. Generated tokens are lowercase hex
// and pass through unchanged.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Put unconditionally overwrites any existing entry for the key. The
// previous entry, if any, is discarded; at most one live entry exists per
// key per namespace.
func (s *Store) Put(ns Namespace, key string, entry Entry, ttl time.Duration) {
	key = NormalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ExpiresAt = s.now().Add(ttl)
	bucket := s.entries[ns]
	if bucket == nil {
		bucket = make(map[string]Entry)
		s.entries[ns] = bucket
	}
	bucket[key] = entry
}

// Get returns the stored entry if present. It deliberately does not check
// expiry; Verify is the only operation that authorizes anything and it
// always enforces the entry lifetime.
func (s *Store) Get(ns Namespace, key string) (Entry, bool) {
	key = NormalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[ns][key]
	return entry, ok
}

// Delete removes the entry for the key. Deleting an absent key is a no-op.
func (s *Store) Delete(ns Namespace, key string) {
	key = NormalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries[ns], key)
}

// Sweep removes every entry across all namespaces whose lifetime has
// passed at the given instant and returns the number of entries removed.
// Flows call this opportunistically before reading the store; there is no
// dependency on a background scheduler.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked(now, "", "")
}

// Len reports the number of live and expired entries currently held in a
// namespace. Used by tests and debug introspection only.
func (s *Store) Len(ns Namespace) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries[ns])
}

// Verify runs the shared consumption algorithm:
//
//	normalize key → sweep → lookup → not-found / expired / mismatch / match
//
// On a match the entry is deleted (single use) and returned so callers can
// read its auxiliary data. On a mismatch the entry is retained, allowing
// bounded retries within the TTL. On expiry the entry is deleted.
func (s *Store) Verify(ns Namespace, key, presented string) (Entry, error) {
	key = NormalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// Lazy cleanup of everything except the entry under inspection, so an
	// expired-but-unswept entry still reports ErrCodeExpired rather than
	// ErrCodeNotFound.
	s.sweepLocked(now, ns, key)

	entry, ok := s.entries[ns][key]
	if !ok {
		return Entry{}, ErrCodeNotFound
	}

	if now.After(entry.ExpiresAt) {
		delete(s.entries[ns], key)
		return Entry{}, ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(entry.Secret)) != 1 {
		return Entry{}, ErrCodeMismatch
	}

	delete(s.entries[ns], key)
	return entry, nil
}

// sweepLocked removes expired entries, skipping the (skipNS, skipKey) pair.
// Callers must hold s.mu.
func (s *Store) sweepLocked(now time.Time, skipNS Namespace, skipKey string) int {
	removed := 0
	for ns, bucket := range s.entries {
		for key, entry := range bucket {
			if ns == skipNS && key == skipKey {
				continue
			}
			if !entry.ExpiresAt.After(now) {
				delete(bucket, key)
				removed++
			}
		}
	}
	return removed
}
