// Package watch provides the observe capability: subscribe to an entity key,
// receive a coalesced stream of change notifications, cancel on teardown.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Subscription is a cancelable handle on one entity key. Close is mandatory
// teardown; a subscription that is never closed leaks its broker slot.
type Subscription struct {
	broker *Broker
	key    string
	ch     chan struct{}
	once   sync.Once
}

// Updates signals at least once after every change to the observed entity.
// Notifications coalesce: at most one is pending at any time.
func (s *Subscription) Updates() <-chan struct{} {
	return s.ch
}

// Close detaches the subscription from the broker. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
	})
}

// Broker fans change notifications out to per-key subscribers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Observe registers a subscriber for the given entity key.
func (b *Broker) Observe(key string) *Subscription {
	sub := &Subscription{broker: b, key: key, ch: make(chan struct{}, 1)}
	b.mu.Lock()
	set, ok := b.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[key] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Notify wakes every subscriber of the key without blocking.
func (b *Broker) Notify(key string) {
	b.mu.Lock()
	for sub := range b.subs[key] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[sub.key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.key)
		}
	}
	b.mu.Unlock()
}

// subscriberCount is used by tests to assert teardown.
func (b *Broker) subscriberCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[key])
}

// Watcher ties a Broker to a Redis pub/sub channel so notifications reach
// every service instance. With a nil Redis client it degrades to in-process
// delivery only.
type Watcher struct {
	broker  *Broker
	rc      *redis.Client
	channel string
}

// NewWatcher creates a Watcher publishing and consuming on the given channel.
func NewWatcher(rc *redis.Client, channel string) *Watcher {
	return &Watcher{broker: NewBroker(), rc: rc, channel: channel}
}

// Observe registers a subscriber for the given entity key.
func (w *Watcher) Observe(key string) *Subscription {
	return w.broker.Observe(key)
}

// Publish announces a change to the entity key.
func (w *Watcher) Publish(ctx context.Context, key string) error {
	if w.rc == nil {
		w.broker.Notify(key)
		return nil
	}
	return w.rc.Publish(ctx, w.channel, key).Err()
}

// Run consumes the pub/sub channel and dispatches to local subscribers until
// the context is canceled, reconnecting when the channel closes.
func (w *Watcher) Run(ctx context.Context, logger *log.Logger) {
	if w.rc == nil {
		<-ctx.Done()
		return
	}
	for {
		sub := w.rc.Subscribe(ctx, w.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				w.broker.Notify(msg.Payload)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("watch pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

// AccountKey is the entity key for one account document.
func AccountKey(id string) string { return "account:" + id }

// LinksKey is the entity key for a manager's linked-client list.
func LinksKey(managerID string) string { return "links:" + managerID }

// TasksKey is the entity key for a manager's task partition.
func TasksKey(managerID string) string { return "tasks:" + managerID }

// CommentsKey is the entity key for a task's comment thread.
func CommentsKey(taskID string) string { return "comments:" + taskID }
