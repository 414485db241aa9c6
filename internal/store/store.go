// Package store provides the Store Adapter: a thin, error-classifying
// wrapper over named Redis connections, plus the primitives the lock
// manager and registry engine compose into higher-level operations.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jasonwang1/registercenter/pkg/metrics"
)

// ErrKind classifies a Store error the way the caller needs to react to it.
type ErrKind int

const (
	ErrKindNone ErrKind = iota
	ErrKindConnection
	ErrKindProtocol
	ErrKindTimeout
)

// String renders the kind as a metrics label value.
func (k ErrKind) String() string {
	switch k {
	case ErrKindConnection:
		return "connection"
	case ErrKindProtocol:
		return "protocol"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Error wraps an underlying store failure with the operation that failed
// and a coarse classification, mirroring cache.CacheError's Code+Cause
// shape.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrKindProtocol
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrKindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrKindTimeout
	case errors.Is(err, redis.ErrClosed):
		kind = ErrKindConnection
	default:
		var netOpErr *net.OpError
		if errors.As(err, &netOpErr) {
			kind = ErrKindConnection
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Store is the page of Redis primitives the registry coordination plane
// needs from a single named connection. Page size for cursor scans is
// fixed at 1024, matching RedisInteracts::GetAllServiceInfo's HSCAN loop.
type Store interface {
	HashGet(ctx context.Context, key, field string) (string, bool, error)
	HashMGet(ctx context.Context, key string, fields []string) (map[string]string, error)
	HashSet(ctx context.Context, key, field, value string) error
	HashDel(ctx context.Context, key, field string) error
	HashScanAll(ctx context.Context, key string) (map[string]string, error)

	SetAdd(ctx context.Context, key, member string) error
	SetRem(ctx context.Context, key, member string) error
	SetScanAll(ctx context.Context, key string) ([]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	AtomicSetIfAbsentWithTTL(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Unlink(ctx context.Context, key string) error

	Ping(ctx context.Context) error
}

const scanPageSize = 1024

// RedisStore implements Store over a single *redis.Client, recording
// per-operation counts, latency, and classified errors against the
// supplied metrics category.
type RedisStore struct {
	client  *redis.Client
	metrics *metrics.StoreMetrics
}

// NewRedisStore builds a Store backed by an already-configured client. m
// may be nil in tests that don't care about instrumentation.
func NewRedisStore(client *redis.Client, m *metrics.StoreMetrics) *RedisStore {
	return &RedisStore{client: client, metrics: m}
}

func (s *RedisStore) record(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.OpsTotal.WithLabelValues(op).Inc()
	s.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	kind := ErrKindProtocol.String()
	var serr *Error
	if errors.As(err, &serr) {
		kind = serr.Kind.String()
	}
	s.metrics.ErrorsByKind.WithLabelValues(op, kind).Inc()
}

func (s *RedisStore) HashGet(ctx context.Context, key, field string) (v string, found bool, err error) {
	defer func(start time.Time) { s.record("HGET", start, err) }(time.Now())
	res, e := s.client.HGet(ctx, key, field).Result()
	if errors.Is(e, redis.Nil) {
		return "", false, nil
	}
	if e != nil {
		err = classify("HGET", e)
		return "", false, err
	}
	return res, true, nil
}

func (s *RedisStore) HashMGet(ctx context.Context, key string, fields []string) (out map[string]string, err error) {
	if len(fields) == 0 {
		return map[string]string{}, nil
	}
	defer func(start time.Time) { s.record("HMGET", start, err) }(time.Now())
	vals, e := s.client.HMGet(ctx, key, fields...).Result()
	if e != nil {
		err = classify("HMGET", e)
		return nil, err
	}
	out = make(map[string]string, len(fields))
	for i, f := range fields {
		if vals[i] == nil {
			continue
		}
		if str, ok := vals[i].(string); ok {
			out[f] = str
		}
	}
	return out, nil
}

func (s *RedisStore) HashSet(ctx context.Context, key, field, value string) (err error) {
	defer func(start time.Time) { s.record("HSET", start, err) }(time.Now())
	if e := s.client.HSet(ctx, key, field, value).Err(); e != nil {
		err = classify("HSET", e)
		return err
	}
	return nil
}

func (s *RedisStore) HashDel(ctx context.Context, key, field string) (err error) {
	defer func(start time.Time) { s.record("HDEL", start, err) }(time.Now())
	if e := s.client.HDel(ctx, key, field).Err(); e != nil {
		err = classify("HDEL", e)
		return err
	}
	return nil
}

func (s *RedisStore) HashScanAll(ctx context.Context, key string) (out map[string]string, err error) {
	defer func(start time.Time) { s.record("HSCAN", start, err) }(time.Now())
	out = make(map[string]string)
	var cursor uint64
	for {
		keys, next, e := s.client.HScan(ctx, key, cursor, "", scanPageSize).Result()
		if e != nil {
			err = classify("HSCAN", e)
			return nil, err
		}
		for i := 0; i+1 < len(keys); i += 2 {
			out[keys[i]] = keys[i+1]
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) SetAdd(ctx context.Context, key, member string) (err error) {
	defer func(start time.Time) { s.record("SADD", start, err) }(time.Now())
	if e := s.client.SAdd(ctx, key, member).Err(); e != nil {
		err = classify("SADD", e)
		return err
	}
	return nil
}

func (s *RedisStore) SetRem(ctx context.Context, key, member string) (err error) {
	defer func(start time.Time) { s.record("SREM", start, err) }(time.Now())
	if e := s.client.SRem(ctx, key, member).Err(); e != nil {
		err = classify("SREM", e)
		return err
	}
	return nil
}

func (s *RedisStore) SetScanAll(ctx context.Context, key string) (out []string, err error) {
	defer func(start time.Time) { s.record("SSCAN", start, err) }(time.Now())
	var cursor uint64
	for {
		members, next, e := s.client.SScan(ctx, key, cursor, "", scanPageSize).Result()
		if e != nil {
			err = classify("SSCAN", e)
			return nil, err
		}
		out = append(out, members...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) (err error) {
	defer func(start time.Time) { s.record("ZADD", start, err) }(time.Now())
	if e := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); e != nil {
		err = classify("ZADD", e)
		return err
	}
	return nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) (out []string, err error) {
	defer func(start time.Time) { s.record("ZRANGEBYSCORE", start, err) }(time.Now())
	vals, e := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", min),
		Max: fmt.Sprintf("%f", max),
	}).Result()
	if e != nil {
		err = classify("ZRANGEBYSCORE", e)
		return nil, err
	}
	return vals, nil
}

func (s *RedisStore) AtomicSetIfAbsentWithTTL(ctx context.Context, key, value string, ttl time.Duration) (ok bool, err error) {
	defer func(start time.Time) { s.record("SETNX", start, err) }(time.Now())
	ok, e := s.client.SetNX(ctx, key, value, ttl).Result()
	if e != nil {
		err = classify("SETNX", e)
		return false, err
	}
	return ok, nil
}

func (s *RedisStore) Unlink(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { s.record("UNLINK", start, err) }(time.Now())
	if e := s.client.Unlink(ctx, key).Err(); e != nil {
		err = classify("UNLINK", e)
		return err
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { s.record("PING", start, err) }(time.Now())
	if e := s.client.Ping(ctx).Err(); e != nil {
		err = classify("PING", e)
		return err
	}
	return nil
}
