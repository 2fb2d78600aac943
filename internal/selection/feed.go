package selection

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Feed delivers "bot list changed" notifications per tenant. Without Redis the
// notifications stay in process; with Redis they are published on
// botdesk:bots:<tenantID> so every API instance reconciles its sessions.
type Feed struct {
	client *redis.Client
	prefix string
	logger *zap.Logger

	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]func(context.Context)
}

// NewFeed creates a feed. client may be nil.
func NewFeed(client *redis.Client, logger *zap.Logger) *Feed {
	return &Feed{
		client: client,
		prefix: "botdesk:bots:",
		logger: logger,
		subs:   make(map[string]map[uint64]func(context.Context)),
	}
}

// Subscribe registers fn for changes of tenantID's bots. The returned func
// removes the subscription.
func (f *Feed) Subscribe(tenantID string, fn func(context.Context)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	id := f.next
	if f.subs[tenantID] == nil {
		f.subs[tenantID] = make(map[uint64]func(context.Context))
	}
	f.subs[tenantID][id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[tenantID], id)
		if len(f.subs[tenantID]) == 0 {
			delete(f.subs, tenantID)
		}
	}
}

// Subscribers returns how many callbacks are registered for tenantID.
func (f *Feed) Subscribers(tenantID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[tenantID])
}

// Notify announces that tenantID's bot list changed. It reports whether the
// local subscribers already ran; when the notification went through Redis
// they run later, from Listen.
func (f *Feed) Notify(ctx context.Context, tenantID string) (dispatched bool) {
	if f.client != nil {
		err := f.client.Publish(ctx, f.prefix+tenantID, tenantID).Err()
		if err == nil {
			return false
		}
		f.logger.Warn("Failed to publish bot change, notifying locally",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
	f.dispatch(ctx, tenantID)
	return true
}

// Listen relays Redis notifications to local subscribers until ctx ends.
// Without Redis it just waits for ctx.
func (f *Feed) Listen(ctx context.Context) {
	if f.client == nil {
		<-ctx.Done()
		return
	}

	pubsub := f.client.PSubscribe(ctx, f.prefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			f.dispatch(ctx, strings.TrimPrefix(msg.Channel, f.prefix))
		}
	}
}

func (f *Feed) dispatch(ctx context.Context, tenantID string) {
	f.mu.RLock()
	fns := make([]func(context.Context), 0, len(f.subs[tenantID]))
	for _, fn := range f.subs[tenantID] {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx)
	}
}
