package relay

import (
	"runtime/debug"
	"sync"

	logx "pushrelay/pkg/logx"
)

// Handler receives one opaque payload.
type Handler func(payload any)

// Primer runs the one-shot side effects tied to registering for t.
type Primer func(t EventType)

// Registry maps each event type to at most one handler and parks payloads
// that arrive while no handler is registered.
//
// Handlers are never invoked with mu held, so a handler may register or
// unregister (itself or others) while running.
type Registry struct {
	mu       sync.Mutex
	handlers map[EventType]Handler
	cache    *replayCache
	// handing counts registrations of a type still priming or handing over
	// its cached payload. Arrivals meanwhile go to the cache so the
	// registering goroutine delivers them in order.
	handing map[EventType]int

	prime Primer
	log   logx.Logger
}

func NewRegistry(prime Primer, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		handlers: map[EventType]Handler{},
		cache:    newReplayCache(),
		handing:  map[EventType]int{},
		prime:    prime,
		log:      log,
	}
}

// Register installs h for t, replacing any previous handler. Priming runs on
// every call, before a pending payload (if any) is handed to h and dropped
// from the cache. Payloads arriving before the handover finishes are
// delivered after it, in arrival order with latest wins. A nil h leaves t
// without a handler and does not consume the cache.
func (r *Registry) Register(t EventType, h Handler) error {
	if err := validate(t); err != nil {
		return err
	}

	r.mu.Lock()
	_, replaced := r.handlers[t]
	var (
		pending    any
		hasPending bool
	)
	if h != nil {
		r.handlers[t] = h
		r.handing[t]++
		pending, hasPending = r.cache.take(t)
	} else {
		delete(r.handlers, t)
	}
	r.mu.Unlock()

	r.log.Debug("handler registered",
		logx.String("event", t.String()),
		logx.Bool("replaced", replaced),
		logx.Bool("flush", hasPending))

	if r.prime != nil {
		r.prime(t)
	}
	if h != nil {
		r.handover(t, h, pending, hasPending)
	}
	return nil
}

// handover delivers pending, then whatever was cached while it ran, until
// the cache for t is empty or t lost its handler.
func (r *Registry) handover(t EventType, h Handler, pending any, ok bool) {
	for {
		if ok {
			r.invoke(t, h, pending)
		}
		r.mu.Lock()
		cur := r.handlers[t]
		ok = false
		if cur != nil {
			pending, ok = r.cache.take(t)
		}
		if !ok {
			if r.handing[t]--; r.handing[t] <= 0 {
				delete(r.handing, t)
			}
			r.mu.Unlock()
			return
		}
		h = cur
		r.mu.Unlock()
	}
}

// Unregister removes the handler for t. A pending payload stays cached for
// the next registration.
func (r *Registry) Unregister(t EventType) error {
	if err := validate(t); err != nil {
		return err
	}
	r.mu.Lock()
	_, had := r.handlers[t]
	delete(r.handlers, t)
	r.mu.Unlock()

	r.log.Debug("handler unregistered", logx.String("event", t.String()), logx.Bool("had_handler", had))
	return nil
}

// OnArrival delivers payload to the handler for t, or caches it (latest wins)
// when no handler is registered or a registration is still handing over.
func (r *Registry) OnArrival(t EventType, payload any) {
	if !t.Valid() {
		r.log.Warn("dropping broadcast with unknown event type", logx.String("event", t.String()))
		return
	}
	r.mu.Lock()
	h := r.handlers[t]
	deferred := h != nil && r.handing[t] > 0
	replaced := false
	if h == nil || deferred {
		replaced = r.cache.put(t, payload)
	}
	r.mu.Unlock()

	if deferred {
		r.log.Debug("payload queued behind handover", logx.String("event", t.String()))
		return
	}
	if h == nil {
		if replaced {
			r.log.Debug("pending payload overwritten", logx.String("event", t.String()))
		} else {
			r.log.Debug("payload cached until a handler registers", logx.String("event", t.String()))
		}
		return
	}
	r.invoke(t, h, payload)
}

// HasHandler reports whether a handler is registered for t.
func (r *Registry) HasHandler(t EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[t]
	return ok
}

// Pending returns the cached payload for t without consuming it.
func (r *Registry) Pending(t EventType) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.peek(t)
}

// PendingCount reports how many event types have a cached payload.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.len()
}

// Flush drops the cached payload for t and reports whether there was one.
func (r *Registry) Flush(t EventType) bool {
	r.mu.Lock()
	_, ok := r.cache.take(t)
	r.mu.Unlock()
	if ok {
		r.log.Debug("pending payload flushed", logx.String("event", t.String()))
	}
	return ok
}

func (r *Registry) invoke(t EventType, h Handler, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in event handler",
				logx.String("event", t.String()),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	h(payload)
}
