package redis

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by Get on a cache miss.
const Nil = redis.Nil

type RedisProvider struct {
	Client *redis.Client
	URL    string
	logger *zap.SugaredLogger
	ttl    time.Duration
	cancel context.CancelFunc
}

func NewRedisProvider(redisURL string, logger *zap.Logger, ttl time.Duration) *RedisProvider {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 500 * time.Millisecond

	client := redis.NewClient(opts)

	ctx, cancel := context.WithCancel(context.Background())
	provider := &RedisProvider{
		Client: client,
		URL:    redisURL,
		logger: logger.Sugar(),
		ttl:    ttl,
		cancel: cancel,
	}

	client.AddHook(&loggerHook{logger: provider.logger})

	go provider.startConnectionMonitor(ctx)

	return provider
}

func (r *RedisProvider) SetEX(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.Client.Set(ctx, key, value, ttl)
}

func (r *RedisProvider) Get(ctx context.Context, key string) *redis.StringCmd {
	return r.Client.Get(ctx, key)
}

func (r *RedisProvider) Incr(ctx context.Context, key string) *redis.IntCmd {
	return r.Client.Incr(ctx, key)
}

func (r *RedisProvider) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return r.Client.Del(ctx, keys...)
}

func (r *RedisProvider) Close() error {
	r.cancel()
	return r.Client.Close()
}

func (r *RedisProvider) startConnectionMonitor(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	connected := r.Client.Ping(ctx).Err() == nil
	if connected {
		r.logger.Infow("Redis connected", "url", r.URL, "default_ttl", r.ttl.String())
	} else {
		r.logger.Warnw("Redis unavailable at startup, cache disabled until it recovers", "url", r.URL)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.Client.Ping(ctx).Err()
			switch {
			case err != nil && connected:
				r.logger.Errorw("Redis disconnected", "error", err)
				connected = false
			case err == nil && !connected:
				r.logger.Infow("Redis reconnected", "url", r.URL)
				connected = true
			}
		}
	}
}

type loggerHook struct {
	logger *zap.SugaredLogger
}

func (h *loggerHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.logger.Errorw("Redis dial failed", "addr", addr, "error", err)
		}
		return conn, err
	}
}

func (h *loggerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.log(cmd, err, time.Since(start))
		return err
	}
}

func (h *loggerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)
		for _, cmd := range cmds {
			h.log(cmd, cmd.Err(), elapsed)
		}
		return err
	}
}

// log skips healthy pings and treats a cache miss as success.
func (h *loggerHook) log(cmd redis.Cmder, err error, elapsed time.Duration) {
	if cmd.Name() == "ping" && err == nil {
		return
	}
	if err == redis.Nil {
		err = nil
	}

	fields := []interface{}{
		"command", cmd.Name(),
		"duration_ms", elapsed.Milliseconds(),
	}
	if err != nil {
		h.logger.Errorw("Redis command failed", append(fields, "error", err)...)
		return
	}
	h.logger.Debugw("Redis command executed", fields...)
}
