package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "authgate:sess:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps session records in redis so revocation takes
// effect across gateway instances. It owns its connection; Ping and
// Close exist for the main's startup check and readiness probe.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			// session lookups sit on the request path; fail fast
			DialTimeout:  2 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		}),
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Create(ctx context.Context, tokenHash string, rec Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)

	if err != nil {
		return err
	}

	return s.rdb.Set(ctx, keyPrefix+tokenHash, raw, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, tokenHash string) (Record, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+tokenHash).Bytes()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}

		return Record{}, err
	}

	var rec Record

	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}

	return rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	return s.rdb.Del(ctx, keyPrefix+tokenHash).Err()
}
