package relay

import (
	"sync"
	"sync/atomic"

	"pushrelay/internal/sdk"
	logx "pushrelay/pkg/logx"
)

// subscriber bridges the native broadcast channels to event types. It holds
// exactly one sdk.Subscription per channel until teardown.
type subscriber struct {
	log logx.Logger

	mu   sync.Mutex
	subs map[EventType]sdk.Subscription

	// closed is checked on every broadcast so that anything the source delivers
	// after teardown (already queued, snapshot in flight) is ignored.
	closed atomic.Bool
}

func subscribe(src sdk.EventSource, sink func(EventType, any), log logx.Logger) *subscriber {
	s := &subscriber{log: log, subs: make(map[EventType]sdk.Subscription, len(eventTable))}
	for _, t := range EventTypes() {
		t := t
		s.subs[t] = src.AddListener(t.Channel(), func(payload any) {
			if s.closed.Load() {
				return
			}
			sink(t, payload)
		})
	}
	log.Debug("subscribed to broadcast channels", logx.Int("channels", len(s.subs)))
	return s
}

// teardown releases every subscription. Safe to call more than once.
func (s *subscriber) teardown() int {
	if s.closed.Swap(true) {
		return 0
	}
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub.Remove()
		}
	}
	s.log.Debug("broadcast subscriptions released", logx.Int("channels", len(subs)))
	return len(subs)
}

func (s *subscriber) active() bool { return !s.closed.Load() }
