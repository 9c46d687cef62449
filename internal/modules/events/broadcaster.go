// README: Broadcaster fans ride events out to per-ride and global subscribers.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"transfer/internal/logger"
	"transfer/internal/metrics"
	"transfer/internal/types"
)

var (
	ErrDisconnected        = errors.New("subscriber disconnected")
	ErrClosed              = errors.New("broadcaster closed")
	ErrDuplicateSubscriber = errors.New("subscriber already attached")
)

type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	QueueSize    int
}

type Broadcaster struct {
	mu      sync.Mutex
	rides   map[types.ID]*topic
	global  map[string]*subscription
	closed  bool
	opts    Options
	log     logger.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type topic struct {
	seq         int64
	lastVersion int
	terminal    bool
	subs        map[string]*subscription
}

type subscription struct {
	sub     Subscriber
	channel Channel
	rideID  types.ID
	queue   chan Event
	closed  bool
}

func NewBroadcaster(opts Options, log logger.Logger, m *metrics.Metrics) *Broadcaster {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		rides:   make(map[types.ID]*topic),
		global:  make(map[string]*subscription),
		opts:    opts,
		log:     log,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Subscribe attaches sub to one ride. The returned func detaches it and is
// safe to call more than once.
func (b *Broadcaster) Subscribe(rideID types.ID, ch Channel, sub Subscriber) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	t := b.topicLocked(rideID)
	if _, ok := t.subs[sub.ID()]; ok {
		return nil, ErrDuplicateSubscriber
	}
	s := b.startLocked(sub, ch, rideID)
	t.subs[sub.ID()] = s
	return func() { b.unsubscribe(s) }, nil
}

// SubscribeAll attaches sub to every ride, e.g. an admin console or an outbound relay.
func (b *Broadcaster) SubscribeAll(ch Channel, sub Subscriber) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.global[sub.ID()]; ok {
		return nil, ErrDuplicateSubscriber
	}
	s := b.startLocked(sub, ch, "")
	b.global[sub.ID()] = s
	return func() { b.unsubscribe(s) }, nil
}

// Publish stamps the per-ride sequence number and enqueues the event for
// every current subscriber. It never blocks on delivery.
func (b *Broadcaster) Publish(_ context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.metrics.EventDropped("closed")
		return
	}

	t := b.topicLocked(e.RideID)
	if t.terminal {
		b.metrics.EventDropped("terminal")
		return
	}
	if e.IsStatusChange() {
		if e.Version <= t.lastVersion {
			b.metrics.EventDropped("stale")
			return
		}
		t.lastVersion = e.Version
	} else if e.Version < t.lastVersion {
		b.metrics.EventDropped("stale")
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	t.seq++
	e.Sequence = t.seq
	b.metrics.EventPublished(string(e.Type))

	for _, s := range t.subs {
		b.enqueueLocked(s, e)
	}
	for id, s := range b.global {
		if _, dup := t.subs[id]; dup {
			continue
		}
		b.enqueueLocked(s, e)
	}

	if e.Terminal() {
		t.terminal = true
		if len(t.subs) == 0 {
			delete(b.rides, e.RideID)
		}
	}
}

// Sequence returns the last sequence number issued for a ride.
func (b *Broadcaster) Sequence(rideID types.ID) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.rides[rideID]; ok {
		return t.seq
	}
	return 0
}

// Close detaches every subscriber and waits for in-flight deliveries.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, t := range b.rides {
		for _, s := range t.subs {
			b.stopLocked(s)
		}
	}
	for _, s := range b.global {
		b.stopLocked(s)
	}
	b.rides = make(map[types.ID]*topic)
	b.global = make(map[string]*subscription)
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

func (b *Broadcaster) topicLocked(rideID types.ID) *topic {
	t, ok := b.rides[rideID]
	if !ok {
		t = &topic{subs: make(map[string]*subscription)}
		b.rides[rideID] = t
	}
	return t
}

func (b *Broadcaster) startLocked(sub Subscriber, ch Channel, rideID types.ID) *subscription {
	s := &subscription{
		sub:     sub,
		channel: ch,
		rideID:  rideID,
		queue:   make(chan Event, b.opts.QueueSize),
	}
	b.metrics.SubscriberDelta(1)
	b.wg.Add(1)
	go b.run(s)
	return s
}

func (b *Broadcaster) enqueueLocked(s *subscription, e Event) {
	select {
	case s.queue <- e:
	default:
		b.metrics.EventDropped("queue_full")
		b.log.Warn("event dropped, subscriber queue full",
			"ride_id", e.RideID, "type", e.Type, "sequence", e.Sequence, "subscriber", s.sub.ID())
	}
}

func (b *Broadcaster) unsubscribe(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	if s.rideID == "" {
		delete(b.global, s.sub.ID())
	} else if t, ok := b.rides[s.rideID]; ok {
		delete(t.subs, s.sub.ID())
		if t.terminal && len(t.subs) == 0 {
			delete(b.rides, s.rideID)
		}
	}
	b.stopLocked(s)
}

func (b *Broadcaster) stopLocked(s *subscription) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
	b.metrics.SubscriberDelta(-1)
}

func (b *Broadcaster) run(s *subscription) {
	defer b.wg.Done()
	for e := range s.queue {
		if b.ctx.Err() != nil {
			b.metrics.EventDropped("closed")
			continue
		}
		b.deliver(s, e)
	}
}

func (b *Broadcaster) deliver(s *subscription, e Event) {
	for attempt := 1; ; attempt++ {
		err := s.sub.Deliver(b.ctx, e)
		if err == nil {
			return
		}
		if errors.Is(err, ErrDisconnected) {
			b.metrics.EventDropped("disconnected")
			return
		}
		if attempt >= b.opts.MaxAttempts {
			b.metrics.EventDropped("delivery_failed")
			b.log.Warn("event delivery failed, dropping",
				"ride_id", e.RideID, "type", e.Type, "sequence", e.Sequence,
				"subscriber", s.sub.ID(), "channel", s.channel, "attempts", attempt, "error", err)
			return
		}
		b.metrics.DeliveryRetry()
		select {
		case <-b.ctx.Done():
			b.metrics.EventDropped("closed")
			return
		case <-time.After(b.opts.RetryBackoff * time.Duration(attempt)):
		}
	}
}
