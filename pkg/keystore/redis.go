package keystore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore adapts a go-redis UniversalClient to the Store interface. It
// runs unmodified against a single node, sentinel, or cluster deployment.
type redisStore struct {
	client redis.UniversalClient
}

// NewRedis wraps an already-initialized redis.UniversalClient as a Store.
func NewRedis(client redis.UniversalClient) (Store, error) {
	if client == nil {
		return nil, errors.New("keystore: nil redis client")
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, expire time.Duration, createOnly bool) error {
	if expire < 0 {
		expire = 0
	}
	if createOnly {
		ok, err := s.client.SetNX(ctx, key, value, expire).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotSet
		}
		return nil
	}
	return s.client.Set(ctx, key, value, expire).Err()
}

func (s *redisStore) Del(ctx context.Context, key string) (int64, error) {
	return s.client.Del(ctx, key).Result()
}

func (s *redisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// go-redis passes Redis's -1/-2 sentinels through unscaled (as -1ns and
	// -2ns), so map them onto TTLNoExpire / TTLAbsent here.
	switch d {
	case -1:
		return TTLNoExpire, nil
	case -2:
		return TTLAbsent, nil
	}
	return d, nil
}

func (s *redisStore) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return redis.NewScript(script).Run(ctx, s.client, keys, args...).Result()
}
