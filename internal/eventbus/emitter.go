// Package eventbus is an in-process broadcast emitter with named channels.
//
// Contract:
//   - Emit MUST be non-blocking. Broadcasts are queued and a full queue drops.
//   - A single delivery loop (Run) hands each broadcast to every listener of its
//     channel, to completion, before taking the next one.
//   - Deliver bypasses the queue but is serialized with the loop, so listeners
//     never run concurrently with each other.
//
// Listeners must not call Deliver themselves (it would deadlock); Emit is fine.
package eventbus

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"pushrelay/internal/sdk"
	logx "pushrelay/pkg/logx"
)

const defaultQueueSize = 256

// Broadcast is one raw event on a named channel.
type Broadcast struct {
	Channel string
	Time    time.Time
	Payload any
}

type listener struct {
	id      uint64
	fn      sdk.Listener
	removed atomic.Bool
}

// Emitter implements sdk.EventSource.
//
// It intentionally owns no goroutines; callers run Run() under their supervisor.
type Emitter struct {
	log logx.Logger

	mu        sync.RWMutex
	listeners map[string]map[uint64]*listener
	seq       atomic.Uint64

	queue chan Broadcast

	// dispatchMu makes Deliver and the Run loop a single logical thread.
	dispatchMu sync.Mutex

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// Stats is a best-effort counter snapshot.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Panics    uint64 `json:"panics"`
	Queued    int    `json:"queued"`
}

func New(queueSize int, log logx.Logger) *Emitter {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Emitter{
		log:       log,
		listeners: map[string]map[uint64]*listener{},
		queue:     make(chan Broadcast, queueSize),
	}
}

type subscription struct {
	e       *Emitter
	channel string
	l       *listener
	once    sync.Once
}

func (s *subscription) Remove() {
	s.once.Do(func() {
		// Mark first so a delivery already holding a snapshot skips this listener.
		s.l.removed.Store(true)
		s.e.mu.Lock()
		if m := s.e.listeners[s.channel]; m != nil {
			delete(m, s.l.id)
			if len(m) == 0 {
				delete(s.e.listeners, s.channel)
			}
		}
		s.e.mu.Unlock()
		s.e.log.Debug("listener removed", logx.String("channel", s.channel), logx.Int64("id", int64(s.l.id)))
	})
}

// AddListener registers fn for channel. A nil fn yields a subscription that
// never fires.
func (e *Emitter) AddListener(channel string, fn sdk.Listener) sdk.Subscription {
	if fn == nil {
		fn = func(any) {}
	}
	l := &listener{id: e.seq.Add(1), fn: fn}

	e.mu.Lock()
	m := e.listeners[channel]
	if m == nil {
		m = map[uint64]*listener{}
		e.listeners[channel] = m
	}
	m[l.id] = l
	e.mu.Unlock()

	e.log.Debug("listener added", logx.String("channel", channel), logx.Int64("id", int64(l.id)))
	return &subscription{e: e, channel: channel, l: l}
}

// ListenerCount reports the number of active listeners on channel.
func (e *Emitter) ListenerCount(channel string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[channel])
}

// Emit queues a broadcast for the Run loop. It reports false if the queue is
// full and the broadcast was dropped.
func (e *Emitter) Emit(channel string, payload any) bool {
	b := Broadcast{Channel: channel, Time: time.Now(), Payload: payload}
	select {
	case e.queue <- b:
		return true
	default:
		e.dropped.Add(1)
		e.log.Warn("emitter queue full; dropping broadcast",
			logx.String("channel", channel),
			logx.Int("queue_len", len(e.queue)),
			logx.Int("queue_cap", cap(e.queue)))
		return false
	}
}

// Deliver hands payload to the listeners of channel synchronously.
func (e *Emitter) Deliver(channel string, payload any) {
	e.dispatch(Broadcast{Channel: channel, Time: time.Now(), Payload: payload})
}

// Run drains the queue until ctx is done.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case b := <-e.queue:
			e.dispatch(b)
		}
	}
}

// Drain delivers everything currently queued and returns how many broadcasts
// were handled. Useful when no Run loop is active (tests, shutdown).
func (e *Emitter) Drain() int {
	n := 0
	for {
		select {
		case b := <-e.queue:
			e.dispatch(b)
			n++
		default:
			return n
		}
	}
}

func (e *Emitter) Stats() Stats {
	return Stats{
		Delivered: e.delivered.Load(),
		Dropped:   e.dropped.Load(),
		Panics:    e.panics.Load(),
		Queued:    len(e.queue),
	}
}

func (e *Emitter) dispatch(b Broadcast) {
	// Snapshot listeners so we don't hold mu while listeners run.
	e.mu.RLock()
	ls := make([]*listener, 0, len(e.listeners[b.Channel]))
	for _, l := range e.listeners[b.Channel] {
		ls = append(ls, l)
	}
	e.mu.RUnlock()
	sort.Slice(ls, func(i, j int) bool { return ls[i].id < ls[j].id })

	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()
	for _, l := range ls {
		if l.removed.Load() {
			continue
		}
		e.invoke(b, l)
	}
}

func (e *Emitter) invoke(b Broadcast, l *listener) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error("panic in broadcast listener",
				logx.String("channel", b.Channel),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	l.fn(b.Payload)
	e.delivered.Add(1)
}
