// Package kv is a typed façade over an external key-value store with
// sorted-set and pub/sub primitives, split into a writer client
// (mutations, scripts, publish) and a reader client (plain reads,
// subscribe).
package kv

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/apperr"
)

// Gateway is the contract the rest of the system consumes. The backend
// is fixed at startup from configuration; tests substitute a fake.
type Gateway interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	EvalAtomic(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error)
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) (cancel func(), err error)
}

// Redis implements Gateway over go-redis, holding independent writer and
// reader clients. When no replica URL is configured the reader is the
// writer.
type Redis struct {
	writer *redis.Client
	reader *redis.Client

	writerReady atomic.Bool
	readerReady atomic.Bool

	// reconnecting collapses concurrent markDown calls into one background
	// Reconnect attempt.
	reconnecting atomic.Bool

	mu sync.Mutex
}

// Options configures a Redis gateway. When SentinelAddrs is set the
// writer is a failover client resolved through Sentinel using
// SentinelMaster; otherwise WriterURL is dialed directly.
type Options struct {
	WriterURL      string
	ReplicaURL     string
	SentinelAddrs  []string
	SentinelMaster string
}

// Connect dials both clients and waits for readiness with a 10-second
// deadline.
func Connect(opts Options) (*Redis, error) {
	g := &Redis{}
	if len(opts.SentinelAddrs) > 0 {
		g.writer = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    opts.SentinelMaster,
			SentinelAddrs: opts.SentinelAddrs,
		})
	} else {
		writerOpt, err := redis.ParseURL(opts.WriterURL)
		if err != nil {
			return nil, fmt.Errorf("parse writer url: %w", err)
		}
		g.writer = redis.NewClient(writerOpt)
	}

	if opts.ReplicaURL != "" {
		readerOpt, err := redis.ParseURL(opts.ReplicaURL)
		if err != nil {
			return nil, fmt.Errorf("parse replica url: %w", err)
		}
		g.reader = redis.NewClient(readerOpt)
	} else {
		g.reader = g.writer
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := g.writer.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("writer not ready: %w", err)
	}
	g.writerReady.Store(true)

	if g.reader == g.writer {
		g.readerReady.Store(true)
	} else if err := g.reader.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("reader not ready: %w", err)
	} else {
		g.readerReady.Store(true)
	}

	return g, nil
}

// reconnectBackoff implements min(100*2^(n-1), 3000)ms, capped at 5
// attempts, after which the gateway stays down until Reconnect succeeds.
func reconnectBackoff(attempt int) time.Duration {
	ms := 100 * (1 << (attempt - 1))
	if ms > 3000 {
		ms = 3000
	}
	return time.Duration(ms) * time.Millisecond
}

// Reconnect retries the writer and reader connections with exponential
// backoff, up to 5 attempts each.
func (g *Redis) Reconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if err := g.writer.Ping(ctx).Err(); err == nil {
			g.writerReady.Store(true)
			lastErr = nil
			break
		} else {
			lastErr = err
			time.Sleep(reconnectBackoff(attempt))
		}
	}
	if lastErr != nil {
		g.writerReady.Store(false)
		return fmt.Errorf("reconnect writer: %w", lastErr)
	}

	if g.reader == g.writer {
		g.readerReady.Store(true)
		return nil
	}

	lastErr = nil
	for attempt := 1; attempt <= 5; attempt++ {
		if err := g.reader.Ping(ctx).Err(); err == nil {
			g.readerReady.Store(true)
			lastErr = nil
			break
		} else {
			lastErr = err
			time.Sleep(reconnectBackoff(attempt))
		}
	}
	if lastErr != nil {
		g.readerReady.Store(false)
		return fmt.Errorf("reconnect reader: %w", lastErr)
	}
	return nil
}

func (g *Redis) checkWriter() error {
	if !g.writerReady.Load() {
		return apperr.ErrKVUnavailable
	}
	return nil
}

func (g *Redis) checkReader() error {
	if !g.readerReady.Load() {
		return apperr.ErrKVUnavailable
	}
	return nil
}

// markDown flips the relevant readiness flag when an operation surfaces a
// connectivity error, so subsequent calls fail fast, and kicks off one
// background Reconnect attempt. redis.Nil (a plain cache miss) is not a
// connectivity error and must never trip this.
func (g *Redis) markDown(client *redis.Client, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	if client == g.writer {
		g.writerReady.Store(false)
	}
	if client == g.reader {
		g.readerReady.Store(false)
	}
	if g.reconnecting.CompareAndSwap(false, true) {
		go func() {
			defer g.reconnecting.Store(false)
			if err := g.Reconnect(context.Background()); err != nil {
				log.Printf("kv: reconnect failed, operations stay unavailable: %v", err)
			}
		}()
	}
}

func (g *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if err := g.checkReader(); err != nil {
		return "", false, err
	}
	val, err := g.reader.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		g.markDown(g.reader, err)
		return "", false, fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}
	return val, true, nil
}

func (g *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := g.checkWriter(); err != nil {
		return err
	}
	if err := g.writer.Set(ctx, key, value, ttl).Err(); err != nil {
		g.markDown(g.writer, err)
		return fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}
	return nil
}

func (g *Redis) Del(ctx context.Context, key string) error {
	if err := g.checkWriter(); err != nil {
		return err
	}
	if err := g.writer.Del(ctx, key).Err(); err != nil {
		g.markDown(g.writer, err)
		return fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}
	return nil
}

func (g *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	if err := g.checkWriter(); err != nil {
		return 0, err
	}
	v, err := g.writer.IncrBy(ctx, key, delta).Result()
	if err != nil {
		g.markDown(g.writer, err)
		return 0, fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}
	return v, nil
}

func (g *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := g.checkWriter(); err != nil {
		return err
	}
	if err := g.writer.Expire(ctx, key, ttl).Err(); err != nil {
		g.markDown(g.writer, err)
		return fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}
	return nil
}

func (g *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := g.checkReader(); err != nil {
		return nil, err
	}
	keys, err := g.reader.Keys(ctx, pattern).Result()
	if err != nil {
		g.markDown(g.reader, err)
		return nil, fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}
	return keys, nil
}

// EvalAtomic runs a pre-compiled Lua script on the writer client.
func (g *Redis) EvalAtomic(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	if err := g.checkWriter(); err != nil {
		return nil, err
	}
	res, err := script.Run(ctx, g.writer, keys, args...).Result()
	if err != nil {
		g.markDown(g.writer, err)
		return nil, fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}
	return res, nil
}

func (g *Redis) Publish(ctx context.Context, channel string, message []byte) error {
	if err := g.checkWriter(); err != nil {
		return err
	}
	if err := g.writer.Publish(ctx, channel, message).Err(); err != nil {
		g.markDown(g.writer, err)
		return fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection on the reader client and
// dispatches every message to handler until the returned cancel func is
// called.
func (g *Redis) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) (cancel func(), err error) {
	if err := g.checkReader(); err != nil {
		return nil, err
	}
	sub := g.reader.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("%w: %v", apperr.ErrKVUnavailable, err)
	}

	msgCh := sub.Channel()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return func() {
		close(done)
		_ = sub.Close()
	}, nil
}

// Close shuts down both underlying client connections.
func (g *Redis) Close() error {
	if err := g.writer.Close(); err != nil {
		return err
	}
	if g.reader != g.writer {
		return g.reader.Close()
	}
	return nil
}
