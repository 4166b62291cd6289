// Package sdktest provides a recording sdk.Module for tests.
package sdktest

import (
	"sync"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/sdk"
	logx "pushrelay/pkg/logx"
)

// Module records every command and keeps query futures pending unless Answer
// settles them. Broadcasts go through the embedded emitter (use Deliver for
// synchronous delivery in tests).
type Module struct {
	*eventbus.Emitter

	// Answer, when set, is consulted for every query. Returning handled=false
	// leaves the future pending.
	Answer func(cmd sdk.Command) (v any, err error, handled bool)

	// Unavailable makes the module report itself absent (see sdk.Present).
	Unavailable bool

	mu      sync.Mutex
	cmds    []sdk.Command
	pending map[string][]*sdk.Future[any]
}

func New() *Module {
	return &Module{
		Emitter: eventbus.New(64, logx.Nop()),
		pending: map[string][]*sdk.Future[any]{},
	}
}

func (m *Module) Available() bool { return !m.Unavailable }

func (m *Module) Exec(cmd sdk.Command) {
	m.mu.Lock()
	m.cmds = append(m.cmds, cmd)
	m.mu.Unlock()
}

func (m *Module) Query(cmd sdk.Command) *sdk.Future[any] {
	f := sdk.NewFuture[any]()
	m.mu.Lock()
	m.cmds = append(m.cmds, cmd)
	answer := m.Answer
	m.mu.Unlock()

	if answer != nil {
		if v, err, ok := answer(cmd); ok {
			if err != nil {
				f.Reject(err)
			} else {
				f.Resolve(v)
			}
			return f
		}
	}
	m.mu.Lock()
	m.pending[cmd.Name] = append(m.pending[cmd.Name], f)
	m.mu.Unlock()
	return f
}

// Commands returns every recorded command in call order.
func (m *Module) Commands() []sdk.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sdk.Command(nil), m.cmds...)
}

// Last returns the most recent command named name.
func (m *Module) Last(name string) (sdk.Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.cmds) - 1; i >= 0; i-- {
		if m.cmds[i].Name == name {
			return m.cmds[i], true
		}
	}
	return sdk.Command{}, false
}

// Count returns how many commands named name were issued.
func (m *Module) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.cmds {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Pending returns the unanswered futures for query name, oldest first.
func (m *Module) Pending(name string) []*sdk.Future[any] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*sdk.Future[any](nil), m.pending[name]...)
}

func (m *Module) Reset() {
	m.mu.Lock()
	m.cmds = nil
	m.pending = map[string][]*sdk.Future[any]{}
	m.mu.Unlock()
}

var _ sdk.Module = (*Module)(nil)
