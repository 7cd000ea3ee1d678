package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// ErrCodeNotFound is returned by an OTPStore for a missing or expired entry.
var ErrCodeNotFound = errors.New("code not found")

// OTPStore keeps one pending code hash per phone until it expires.
type OTPStore interface {
	Save(ctx context.Context, phone, hash string, ttl time.Duration) error
	Load(ctx context.Context, phone string) (string, error)
	Delete(ctx context.Context, phone string) error
}

// Sweeper is implemented by stores that need expired entries purged
// explicitly.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// OTPs issues and checks one-time login codes. Only bcrypt hashes of codes
// reach the store.
type OTPs struct {
	store OTPStore
	ttl   time.Duration
}

func NewOTPs(store OTPStore, ttl time.Duration) *OTPs {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OTPs{store: store, ttl: ttl}
}

func (o *OTPs) Store() OTPStore { return o.store }

// Issue creates a fresh six-digit code for phone, replacing any pending one.
func (o *OTPs) Issue(ctx context.Context, phone string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64()+100000)

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}
	if err := o.store.Save(ctx, phone, string(hash), o.ttl); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Verify consumes the pending code for phone if code matches. A wrong code
// leaves the pending one in place.
func (o *OTPs) Verify(ctx context.Context, phone, code string) error {
	hash, err := o.store.Load(ctx, phone)
	if errors.Is(err, ErrCodeNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return ErrInvalidCode
	}
	if err := o.store.Delete(ctx, phone); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	return nil
}

// MemoryOTPStore keeps codes in process memory. Suitable for a single
// instance only.
type MemoryOTPStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	hash    string
	expires time.Time
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryOTPStore) Save(_ context.Context, phone, hash string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[phone] = memoryEntry{hash: hash, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryOTPStore) Load(_ context.Context, phone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[phone]
	if !ok {
		return "", ErrCodeNotFound
	}
	if m.now().After(e.expires) {
		delete(m.entries, phone)
		return "", ErrCodeNotFound
	}
	return e.hash, nil
}

func (m *MemoryOTPStore) Delete(_ context.Context, phone string) error {
	m.mu.Lock()
	delete(m.entries, phone)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired entries and reports how many were removed.
func (m *MemoryOTPStore) Sweep(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for phone, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, phone)
			n++
		}
	}
	return n, nil
}

// RedisOTPStore shares codes across instances. Redis expires keys itself.
type RedisOTPStore struct {
	client *redis.Client
	prefix string
}

func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client, prefix: "anyclaw:otp:"}
}

// NewRedisOTPStoreFromURL parses url and pings the server.
func NewRedisOTPStoreFromURL(ctx context.Context, url string) (*RedisOTPStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisOTPStore(client), nil
}

func (r *RedisOTPStore) key(phone string) string { return r.prefix + phone }

func (r *RedisOTPStore) Save(ctx context.Context, phone, hash string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(phone), hash, ttl).Err()
}

func (r *RedisOTPStore) Load(ctx context.Context, phone string) (string, error) {
	hash, err := r.client.Get(ctx, r.key(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCodeNotFound
	}
	return hash, err
}

func (r *RedisOTPStore) Delete(ctx context.Context, phone string) error {
	return r.client.Del(ctx, r.key(phone)).Err()
}

func (r *RedisOTPStore) Close() error { return r.client.Close() }
