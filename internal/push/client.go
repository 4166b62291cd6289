// Package push is the application-facing API over the native push module.
//
// Every operation first checks that the native module was present when the
// Client was built; without it the Client is inert and issues no native
// command. Platform-restricted operations then go through the platform Gate,
// which refuses them on the wrong OS with a diagnostic notice instead of an
// error. Event listeners are delegated to a relay.Relay.
package push

import (
	"errors"

	"pushrelay/internal/platform"
	"pushrelay/internal/relay"
	"pushrelay/internal/sdk"
	logx "pushrelay/pkg/logx"
)

var (
	// ErrUnavailable settles queries issued while the native module is absent.
	ErrUnavailable = errors.New("push: native module unavailable")
	// ErrInvalidArgument reports a missing mandatory callback.
	ErrInvalidArgument = errors.New("push: must provide a valid callback")
	// ErrUnexpectedResult reports a query answer of the wrong shape.
	ErrUnexpectedResult = errors.New("push: unexpected native result")
)

type Options struct {
	Platform platform.OS
	// Gate overrides the platform gate built from Platform.
	Gate *platform.Gate
	Log  logx.Logger
}

type Client struct {
	mod   sdk.Module
	relay *relay.Relay
	gate  *platform.Gate
	log   logx.Logger
}

// New builds a Client. A nil or absent mod yields an inert Client.
func New(mod sdk.Module, opts Options) *Client {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if !sdk.Present(mod) {
		mod = nil
	}
	gate := opts.Gate
	if gate == nil {
		gate = platform.NewGate(opts.Platform, platform.Config{}, log.With(logx.String("comp", "platform")))
	}
	return &Client{
		mod:   mod,
		relay: relay.Activate(mod, gate.OS(), log.With(logx.String("comp", "relay"))),
		gate:  gate,
		log:   log,
	}
}

// Available reports whether the native module was present.
func (c *Client) Available() bool { return c.mod != nil }

func (c *Client) Platform() platform.OS { return c.gate.OS() }

// AddEventListener sets the single handler for t. It fails with
// relay.ErrInvalidEventType for unknown types.
func (c *Client) AddEventListener(t relay.EventType, h relay.Handler) error {
	if !c.Available() {
		return nil
	}
	return c.relay.Register(t, h)
}

// AddEventListenerByName resolves name ("received", "opened", "ids",
// "emailSubscription", "inAppMessageClicked") and registers h.
func (c *Client) AddEventListenerByName(name string, h relay.Handler) error {
	if !c.Available() {
		return nil
	}
	t, err := relay.ParseEventType(name)
	if err != nil {
		return err
	}
	return c.relay.Register(t, h)
}

func (c *Client) RemoveEventListener(t relay.EventType) error {
	if !c.Available() {
		return nil
	}
	return c.relay.Unregister(t)
}

// ClearListeners releases every broadcast subscription for good.
func (c *Client) ClearListeners() {
	if !c.Available() {
		return
	}
	c.relay.TeardownAll()
}

// Configure is deprecated: the ids event now fires on registration.
func (c *Client) Configure() {
	c.log.Warn("the 'configure' method has been deprecated; the 'ids' event is now triggered automatically")
}

func (c *Client) exec(name string, args map[string]any) {
	c.log.Debug("native command", logx.String("cmd", name))
	c.mod.Exec(sdk.Command{Name: name, Args: args})
}

func (c *Client) query(name string, args map[string]any) *sdk.Future[any] {
	c.log.Debug("native query", logx.String("cmd", name))
	return c.mod.Query(sdk.Command{Name: name, Args: args})
}

func unavailable[T any]() *sdk.Future[T] { return sdk.Failed[T](ErrUnavailable) }

func asBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	default:
		return false, ErrUnexpectedResult
	}
}

func asMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, ErrUnexpectedResult
	}
}
