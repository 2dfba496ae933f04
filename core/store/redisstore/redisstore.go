// Package redisstore 提供基于 Redis 的会话存储，便于多进程共享同一凭证。
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	coreerrors "github.com/dnslin/tokenretry/core/errors"
	"github.com/dnslin/tokenretry/core/store"
)

// DefaultTimeout 单次 Redis 操作的超时。
const DefaultTimeout = 3 * time.Second

// Store 以 JSON 形式把会话保存在单个 Redis key 中。
type Store[T any] struct {
	client  redis.UniversalClient
	key     string
	ttl     time.Duration
	timeout time.Duration
}

// Option 自定义 Store。
type Option func(*options)

type options struct {
	ttl     time.Duration
	timeout time.Duration
}

// WithTTL 设置 key 过期时间，0 表示不过期。
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithTimeout 设置单次操作超时。
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// New 创建 Redis 会话存储。
func New[T any](client redis.UniversalClient, key string, opts ...Option) (*Store[T], error) {
	if client == nil {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidConfig, "redisstore: 未配置 Redis 客户端")
	}
	if key == "" {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidArgument, "redisstore: key 不能为空")
	}
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	return &Store[T]{client: client, key: key, ttl: o.ttl, timeout: o.timeout}, nil
}

func (s *Store[T]) SaveSession(session T) error {
	data, err := json.Marshal(session)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "redisstore: 会话序列化失败", err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *Store[T]) LoadSession() (T, error) {
	var out T
	ctx, cancel := s.ctx()
	defer cancel()
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, store.ErrNotFound
	}
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, coreerrors.Wrap(coreerrors.ErrCodeInvalidState, "redisstore: 会话数据损坏", err)
	}
	return out, nil
}

func (s *Store[T]) ClearSession() error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Del(ctx, s.key).Err()
}

func (s *Store[T]) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}
