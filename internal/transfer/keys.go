package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	keyPrefix      = "walletclient:attempt:v1:"
	inFlightSuffix = ":inflight"
	claimTTL       = 2 * time.Minute
)

// ErrUnknownAttempt is returned when no unanswered attempt has the given id.
var ErrUnknownAttempt = errors.New("unknown or already answered transfer attempt")

// NewKey returns a fresh idempotency key.
func NewKey() string {
	return uuid.NewString()
}

// Pending is an attempt that has not had a definitive answer yet.
type Pending struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Recipient      string          `json:"recipient"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Note           string          `json:"note,omitempty"`
}

// KeyStore journals unanswered attempts by attempt id so that an attempt can
// be resumed with its key after a restart. Keys are never shared between
// attempts.
type KeyStore interface {
	// Save records p until Release.
	Save(ctx context.Context, p Pending) error
	// Load returns the attempt saved under id or ErrUnknownAttempt.
	Load(ctx context.Context, id string) (Pending, error)
	// Claim marks the attempt in flight. It reports false when another
	// request of the same attempt holds the claim.
	Claim(ctx context.Context, id string) (bool, error)
	// Unclaim drops the in-flight mark.
	Unclaim(ctx context.Context, id string) error
	// Release forgets the attempt once it has a definitive answer.
	Release(ctx context.Context, id string) error
}

// MemoryKeyStore keeps attempts for the life of the process.
type MemoryKeyStore struct {
	mu       sync.Mutex
	attempts map[string]Pending
	inFlight map[string]struct{}
}

// NewMemoryKeyStore creates an empty store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		attempts: make(map[string]Pending),
		inFlight: make(map[string]struct{}),
	}
}

// Save implements KeyStore.
func (s *MemoryKeyStore) Save(_ context.Context, p Pending) error {
	s.mu.Lock()
	s.attempts[p.ID] = p
	s.mu.Unlock()
	return nil
}

// Load implements KeyStore.
func (s *MemoryKeyStore) Load(_ context.Context, id string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.attempts[id]
	if !ok {
		return Pending{}, ErrUnknownAttempt
	}
	return p, nil
}

// Claim implements KeyStore.
func (s *MemoryKeyStore) Claim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false, nil
	}
	s.inFlight[id] = struct{}{}
	return true, nil
}

// Unclaim implements KeyStore.
func (s *MemoryKeyStore) Unclaim(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
	return nil
}

// Release implements KeyStore.
func (s *MemoryKeyStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.attempts, id)
	delete(s.inFlight, id)
	s.mu.Unlock()
	return nil
}

// RedisKeyStore keeps attempts in Redis so they survive a restart of the
// client.
type RedisKeyStore struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewRedisKeyStore creates a store whose attempts expire after ttl.
func NewRedisKeyStore(cache *redis.Client, ttl time.Duration) *RedisKeyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisKeyStore{cache: cache, ttl: ttl}
}

// Save implements KeyStore.
func (s *RedisKeyStore) Save(ctx context.Context, p Pending) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	if err := s.cache.Set(ctx, keyPrefix+p.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

// Load implements KeyStore.
func (s *RedisKeyStore) Load(ctx context.Context, id string) (Pending, error) {
	raw, err := s.cache.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Pending{}, ErrUnknownAttempt
	}
	if err != nil {
		return Pending{}, fmt.Errorf("load attempt: %w", err)
	}
	var p Pending
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pending{}, fmt.Errorf("decode attempt %s: %w", id, err)
	}
	return p, nil
}

// Claim implements KeyStore. The claim expires on its own if the holder dies.
func (s *RedisKeyStore) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := s.cache.SetNX(ctx, keyPrefix+id+inFlightSuffix, "1", claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim attempt: %w", err)
	}
	return ok, nil
}

// Unclaim implements KeyStore.
func (s *RedisKeyStore) Unclaim(ctx context.Context, id string) error {
	if err := s.cache.Del(ctx, keyPrefix+id+inFlightSuffix).Err(); err != nil {
		return fmt.Errorf("unclaim attempt: %w", err)
	}
	return nil
}

// Release implements KeyStore.
func (s *RedisKeyStore) Release(ctx context.Context, id string) error {
	if err := s.cache.Del(ctx, keyPrefix+id, keyPrefix+id+inFlightSuffix).Err(); err != nil {
		return fmt.Errorf("release attempt: %w", err)
	}
	return nil
}
