// Package store owns subscription and verification state. It is the single
// handle shared by the ingestion monitor and the HTTP surface.
package store

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrAlreadySubscribed = errors.New("this email is already subscribed")
	ErrNoPending         = errors.New("no pending verification for this email")
	ErrInvalidToken      = errors.New("invalid verification token")
	ErrTokenExpired      = errors.New("verification link has expired")
	ErrNoItems           = errors.New("select at least one item")
	ErrNotVerified       = errors.New("email is not verified")
	ErrNotSubscribed     = errors.New("email is not subscribed")
)

// DefaultTokenTTL is how long a verification link stays valid.
const DefaultTokenTTL = 24 * time.Hour

type Pending struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

type Subscriber struct {
	Email string
	Items []string
}

type Counts struct {
	Subscriptions int `json:"subscriptions"`
	Verified      int `json:"verified"`
	Pending       int `json:"pending"`
}

// State is a detached copy of everything the store holds.
type State struct {
	Pending       map[string]Pending
	Verified      map[string]time.Time
	Subscriptions map[string][]string
}

// Persister mirrors state somewhere durable. The store keeps working from
// memory when it fails.
type Persister interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
}

type Options struct {
	RequireVerification bool
	TokenTTL            time.Duration
	Now                 func() time.Time
	Persister           Persister
	Logger              *zap.Logger
}

type Store struct {
	mu       sync.RWMutex
	pending  map[string]Pending
	verified map[string]time.Time
	subs     map[string]map[string]struct{}

	requireVerification bool
	ttl                 time.Duration
	now                 func() time.Time
	persister           Persister
	persistMu           sync.Mutex
	log                 *zap.Logger
}

func New(opts Options) *Store {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		pending:             make(map[string]Pending),
		verified:            make(map[string]time.Time),
		subs:                make(map[string]map[string]struct{}),
		requireVerification: opts.RequireVerification,
		ttl:                 opts.TokenTTL,
		now:                 opts.Now,
		persister:           opts.Persister,
		log:                 opts.Logger,
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewToken returns 256 random bits, base64url encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RequireVerification reports whether Subscribe demands a verified email.
func (s *Store) RequireVerification() bool { return s.requireVerification }

// Load replaces memory with the persister's state. Without a persister it
// is a no-op.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	st, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]Pending, len(st.Pending))
	for k, v := range st.Pending {
		s.pending[k] = v
	}
	s.verified = make(map[string]time.Time, len(st.Verified))
	for k, v := range st.Verified {
		s.verified[k] = v
	}
	s.subs = make(map[string]map[string]struct{}, len(st.Subscriptions))
	for k, items := range st.Subscriptions {
		s.subs[k] = toSet(items)
	}
	return nil
}

// RequestVerification issues a fresh token for email, replacing any earlier
// pending entry. Subscribed emails are rejected.
func (s *Store) RequestVerification(email string) (string, error) {
	email = NormalizeEmail(email)
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if _, ok := s.subs[email]; ok {
		s.mu.Unlock()
		return "", ErrAlreadySubscribed
	}
	s.pending[email] = Pending{Token: token, CreatedAt: s.now()}
	s.mu.Unlock()
	s.persist()
	return token, nil
}

// Verify consumes a pending token. Failures leave state untouched.
func (s *Store) Verify(email, token string) error {
	email = NormalizeEmail(email)
	s.mu.Lock()
	p, ok := s.pending[email]
	if !ok {
		s.mu.Unlock()
		return ErrNoPending
	}
	if subtle.ConstantTimeCompare([]byte(p.Token), []byte(token)) != 1 {
		s.mu.Unlock()
		return ErrInvalidToken
	}
	now := s.now()
	if now.Sub(p.CreatedAt) >= s.ttl {
		s.mu.Unlock()
		return ErrTokenExpired
	}
	delete(s.pending, email)
	s.verified[email] = now
	s.mu.Unlock()
	s.persist()
	return nil
}

func (s *Store) IsVerified(email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.verified[NormalizeEmail(email)]
	return ok
}

// Subscribe replaces email's watch set with items.
func (s *Store) Subscribe(email string, items []string) error {
	email = NormalizeEmail(email)
	set := toSet(items)
	if len(set) == 0 {
		return ErrNoItems
	}
	s.mu.Lock()
	if s.requireVerification {
		if _, ok := s.verified[email]; !ok {
			s.mu.Unlock()
			return ErrNotVerified
		}
	}
	s.subs[email] = set
	s.mu.Unlock()
	s.persist()
	return nil
}

// Unsubscribe drops the subscription and the verification with it, so a
// returning user verifies again.
func (s *Store) Unsubscribe(email string) error {
	email = NormalizeEmail(email)
	s.mu.Lock()
	if _, ok := s.subs[email]; !ok {
		s.mu.Unlock()
		return ErrNotSubscribed
	}
	delete(s.subs, email)
	delete(s.verified, email)
	s.mu.Unlock()
	s.persist()
	return nil
}

// Subscription returns email's watch set, sorted.
func (s *Store) Subscription(email string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.subs[NormalizeEmail(email)]
	if !ok {
		return nil, false
	}
	return fromSet(set), true
}

func (s *Store) IsSubscribed(email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subs[NormalizeEmail(email)]
	return ok
}

// Subscribers returns a copy of every subscription, sorted by email, safe to
// iterate while the store keeps changing.
func (s *Store) Subscribers() []Subscriber {
	s.mu.RLock()
	out := make([]Subscriber, 0, len(s.subs))
	for email, set := range s.subs {
		out = append(out, Subscriber{Email: email, Items: fromSet(set)})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{Subscriptions: len(s.subs), Verified: len(s.verified), Pending: len(s.pending)}
}

// SweepExpired deletes pending verifications older than the TTL.
func (s *Store) SweepExpired() int {
	now := s.now()
	s.mu.Lock()
	n := 0
	for email, p := range s.pending {
		if now.Sub(p.CreatedAt) >= s.ttl {
			delete(s.pending, email)
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.persist()
	}
	return n
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.log.Info("verification sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepSafely()
		}
	}
}

func (s *Store) sweepSafely() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("verification sweep panicked", zap.Any("panic", r))
		}
	}()
	if n := s.SweepExpired(); n > 0 {
		s.log.Info("expired verifications removed", zap.Int("count", n))
	}
}

// Snapshot returns a detached copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{
		Pending:       make(map[string]Pending, len(s.pending)),
		Verified:      make(map[string]time.Time, len(s.verified)),
		Subscriptions: make(map[string][]string, len(s.subs)),
	}
	for k, v := range s.pending {
		st.Pending[k] = v
	}
	for k, v := range s.verified {
		st.Verified[k] = v
	}
	for k, set := range s.subs {
		st.Subscriptions[k] = fromSet(set)
	}
	return st
}

// persist writes the current state through. It snapshots after taking
// persistMu, so the last writer always saves the newest state.
func (s *Store) persist() {
	if s.persister == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.persister.Save(ctx, s.Snapshot()); err != nil {
		s.log.Error("persist state failed", zap.Error(err))
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

func fromSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for it := range set {
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
