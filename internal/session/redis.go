package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tiffix/order-calendar/internal/calendar"
)

const keyPrefix = "tiffix:calendar:session:"

// maxUpdateRetries bounds the optimistic retries of Update under contention.
const maxUpdateRetries = 20

// ErrConflict is returned when Update keeps losing the race for a session.
var ErrConflict = errors.New("session update conflict")

// Redis shares sessions between service replicas.
type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
}

// DialRedis connects and pings before returning.
func DialRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, ttl), nil
}

// NewRedis wraps an existing client. Sessions expire ttl after their last write.
func NewRedis(rdb *goredis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Create(ctx context.Context, st calendar.State) (string, error) {
	id := NewID()
	raw, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	if err := r.rdb.Set(ctx, keyPrefix+id, raw, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set session: %w", err)
	}
	return id, nil
}

func (r *Redis) Load(ctx context.Context, id string) (calendar.State, error) {
	raw, err := r.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return calendar.State{}, ErrNotFound
	}
	if err != nil {
		return calendar.State{}, fmt.Errorf("redis get session: %w", err)
	}
	var st calendar.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return calendar.State{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	if r.ttl > 0 {
		r.rdb.Expire(ctx, keyPrefix+id, r.ttl)
	}
	return st, nil
}

// Save only overwrites sessions that still exist.
func (r *Redis) Save(ctx context.Context, id string, st calendar.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetXX(ctx, keyPrefix+id, raw, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Update is a WATCH/MULTI compare-and-set, so replicas serialize transitions
// on the same session.
func (r *Redis) Update(ctx context.Context, id string, fn UpdateFunc) (calendar.State, error) {
	key := keyPrefix + id
	var next calendar.State
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get session: %w", err)
		}
		var st calendar.State
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("decode session %s: %w", id, err)
		}
		next, err = fn(st)
		if err != nil {
			return err
		}
		out, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return calendar.State{}, err
		}
		return next, nil
	}
	return calendar.State{}, fmt.Errorf("%w: %s", ErrConflict, id)
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	n, err := r.rdb.Del(ctx, keyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
