package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultMagicLinkPrefix matches the key layout written by the link issuer.
	DefaultMagicLinkPrefix = "magic_link_token:"
	// DefaultMagicLinkTimeout bounds every store round trip.
	DefaultMagicLinkTimeout = 2 * time.Second
)

var (
	ErrMagicLinkNotFound           = errors.New("magic link token not found")
	ErrMagicLinkCorrupt            = errors.New("magic link record corrupt")
	ErrMagicLinkBackendUnavailable = errors.New("magic link backend unavailable")
)

// takeMagicLinkLua atomically reads and deletes a magic link record.
// KEYS[1] = record key
//
// Returns the record bytes, or nil when the key does not exist.
var takeMagicLinkLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return false
end
redis.call('DEL', KEYS[1])
return data
`)

// MagicLink is the value stored under a redeemable token.
type MagicLink struct {
	AppID string `json:"appId"`
}

type MagicLinkStoreConfig struct {
	Prefix  string
	Timeout time.Duration
}

// MagicLinkStore reads and invalidates single-use magic link tokens.
type MagicLinkStore struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
	log     *zap.Logger
}

func NewMagicLinkStore(redisClient redis.UniversalClient, cfg MagicLinkStoreConfig, log *zap.Logger) *MagicLinkStore {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultMagicLinkPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMagicLinkTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MagicLinkStore{
		redis:   redisClient,
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
		log:     log.Named("magic_link_store"),
	}
}

func (s *MagicLinkStore) key(token string) string {
	return s.prefix + token
}

func (s *MagicLinkStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Put writes a record. A zero ttl stores the key without expiry.
func (s *MagicLinkStore) Put(ctx context.Context, token string, record *MagicLink, ttl time.Duration) error {
	if record == nil || record.AppID == "" {
		return fmt.Errorf("%w: empty app id", ErrMagicLinkCorrupt)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMagicLinkCorrupt, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.redis.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMagicLinkBackendUnavailable, err)
	}
	return nil
}

// Get reads the record for token without consuming it.
func (s *MagicLinkStore) Get(ctx context.Context, token string) (*MagicLink, error) {
	if s == nil || s.redis == nil {
		return nil, fmt.Errorf("%w: no client configured", ErrMagicLinkBackendUnavailable)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMagicLinkNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrMagicLinkBackendUnavailable, err)
	}
	return decodeMagicLink(data)
}

// Delete removes the record. Deleting a missing key is not an error; the bool
// reports whether a key was removed.
func (s *MagicLinkStore) Delete(ctx context.Context, token string) (bool, error) {
	if s == nil || s.redis == nil {
		return false, fmt.Errorf("%w: no client configured", ErrMagicLinkBackendUnavailable)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.redis.Del(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMagicLinkBackendUnavailable, err)
	}
	return n > 0, nil
}

// Take reads and deletes the record in a single server-side step, so two
// concurrent redemptions of one token cannot both succeed.
func (s *MagicLinkStore) Take(ctx context.Context, token string) (*MagicLink, error) {
	if s == nil || s.redis == nil {
		return nil, fmt.Errorf("%w: no client configured", ErrMagicLinkBackendUnavailable)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := takeMagicLinkLua.Run(ctx, s.redis, []string{s.key(token)}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMagicLinkNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrMagicLinkBackendUnavailable, err)
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrMagicLinkBackendUnavailable)
	}
	return decodeMagicLink([]byte(data))
}

// Lookup is Get with every failure reported as absent. Backend and decode
// failures are logged.
func (s *MagicLinkStore) Lookup(ctx context.Context, token string) (*MagicLink, bool) {
	record, err := s.Get(ctx, token)
	return s.failClosed("lookup", token, record, err)
}

// Consume is Take with every failure reported as absent.
func (s *MagicLinkStore) Consume(ctx context.Context, token string) (*MagicLink, bool) {
	record, err := s.Take(ctx, token)
	return s.failClosed("consume", token, record, err)
}

// Invalidate deletes the record on a best-effort basis. Failures are logged and
// swallowed: a session may already have been issued for the token.
func (s *MagicLinkStore) Invalidate(ctx context.Context, token string) {
	if _, err := s.Delete(ctx, token); err != nil {
		s.logger().Error("failed to delete magic link token",
			zap.String("token_prefix", tokenPrefix(token)),
			zap.Error(err),
		)
	}
}

func (s *MagicLinkStore) failClosed(op, token string, record *MagicLink, err error) (*MagicLink, bool) {
	if err == nil {
		return record, true
	}
	if !errors.Is(err, ErrMagicLinkNotFound) {
		s.logger().Error("failed to "+op+" magic link token",
			zap.String("token_prefix", tokenPrefix(token)),
			zap.Error(err),
		)
	}
	return nil, false
}

func (s *MagicLinkStore) logger() *zap.Logger {
	if s == nil || s.log == nil {
		return zap.NewNop()
	}
	return s.log
}

func decodeMagicLink(data []byte) (*MagicLink, error) {
	var record MagicLink
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMagicLinkCorrupt, err)
	}
	if record.AppID == "" {
		return nil, fmt.Errorf("%w: missing appId", ErrMagicLinkCorrupt)
	}
	return &record, nil
}

// tokenPrefix keeps enough of a token to correlate log lines without making
// the logged value redeemable.
func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
