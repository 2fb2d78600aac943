package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const defaultDedupWindow = 10 * time.Minute

// UpdateDeduper remembers which Telegram updates were already handled.
// Update ids are only unique per bot.
type UpdateDeduper interface {
	Seen(ctx context.Context, botID string, updateID int64) (bool, error)
}

// NewUpdateDeduper remembers updates for window in Redis, or in process
// memory when client is nil.
func NewUpdateDeduper(client *redis.Client, window time.Duration) UpdateDeduper {
	if window <= 0 {
		window = defaultDedupWindow
	}
	if client == nil {
		return NewMemoryDeduper(window)
	}
	return NewRedisDeduper(client, window)
}

type updateKey struct {
	botID    string
	updateID int64
}

// MemoryDeduper keeps recent update keys in a map, sweeping expired ones at
// most once per window.
type MemoryDeduper struct {
	window time.Duration

	mu      sync.Mutex
	seen    map[updateKey]time.Time
	sweepAt time.Time
}

func NewMemoryDeduper(window time.Duration) *MemoryDeduper {
	return &MemoryDeduper{
		window:  window,
		seen:    make(map[updateKey]time.Time),
		sweepAt: time.Now().Add(window),
	}
}

func (m *MemoryDeduper) Seen(_ context.Context, botID string, updateID int64) (bool, error) {
	now := time.Now()
	key := updateKey{botID: botID, updateID: updateID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !now.Before(m.sweepAt) {
		for k, exp := range m.seen {
			if !exp.After(now) {
				delete(m.seen, k)
			}
		}
		m.sweepAt = now.Add(m.window)
	}

	if exp, ok := m.seen[key]; ok && exp.After(now) {
		return true, nil
	}
	m.seen[key] = now.Add(m.window)
	return false, nil
}

// RedisDeduper claims each update with SET NX so several API instances agree
// on which one handles it.
type RedisDeduper struct {
	client *redis.Client
	window time.Duration
}

func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, window: window}
}

func (r *RedisDeduper) Seen(ctx context.Context, botID string, updateID int64) (bool, error) {
	key := fmt.Sprintf("botdesk:tg:update:%s:%d", botID, updateID)
	claimed, err := r.client.SetNX(ctx, key, 1, r.window).Result()
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// peekUpdateID reads update_id from the request body and puts the body back
// for the next handler.
func peekUpdateID(req *http.Request) (int64, bool) {
	if req.Body == nil {
		return 0, false
	}
	raw, err := io.ReadAll(req.Body)
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return 0, false
	}

	var payload struct {
		UpdateID int64 `json:"update_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.UpdateID == 0 {
		return 0, false
	}
	return payload.UpdateID, true
}

// TelegramUpdateDedup answers repeated deliveries of an update with 200 and
// skips the handler. Store errors let the update through.
func TelegramUpdateDedup(deduper UpdateDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}
			updateID, ok := peekUpdateID(c.Request())
			if !ok {
				return next(c)
			}

			dup, err := deduper.Seen(c.Request().Context(), c.Param("botID"), updateID)
			if err == nil && dup {
				// Telegram only needs a 2xx response to stop retries.
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
