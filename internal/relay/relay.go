// Package relay routes native broadcasts to application handlers.
//
// A Relay subscribes once to each of the five broadcast channels, keeps at
// most one handler per event type, and parks the latest payload of a type
// that has no handler yet so a late registration still sees it.
//
// Relay replaces process-wide state: each Activate call builds an independent
// instance, and TeardownAll is its terminal state.
package relay

import (
	"pushrelay/internal/platform"
	"pushrelay/internal/sdk"
	logx "pushrelay/pkg/logx"
)

type Relay struct {
	mod sdk.Module
	os  platform.OS
	log logx.Logger

	reg *Registry
	sub *subscriber
}

// Activate wires a Relay to mod. A nil or absent (see sdk.Present) mod yields
// an inert Relay: every operation is a silent no-op and no native command is
// ever issued.
func Activate(mod sdk.Module, os platform.OS, log logx.Logger) *Relay {
	if log.IsZero() {
		log = logx.Nop()
	}
	if !sdk.Present(mod) {
		mod = nil
	}
	r := &Relay{mod: mod, os: os, log: log}
	if mod == nil {
		log.Warn("native module unavailable; relay is inert")
		return r
	}
	r.reg = NewRegistry(r.prime, log)
	r.sub = subscribe(mod, r.reg.OnArrival, log)
	log.Info("relay active", logx.String("platform", string(os)))
	return r
}

// Available reports whether the native module was present at activation.
func (r *Relay) Available() bool { return r != nil && r.mod != nil }

// Active reports whether broadcasts are still being observed.
func (r *Relay) Active() bool { return r.Available() && r.sub.active() }

// Register sets the handler for t (last registration wins), primes the native
// side for t, and hands over a pending payload if one was cached.
func (r *Relay) Register(t EventType, h Handler) error {
	if !r.Available() {
		return nil
	}
	return r.reg.Register(t, h)
}

// Unregister removes the handler for t. The cache is left alone.
func (r *Relay) Unregister(t EventType) error {
	if !r.Available() {
		return nil
	}
	return r.reg.Unregister(t)
}

// TeardownAll releases every channel subscription. It cannot be undone.
func (r *Relay) TeardownAll() {
	if !r.Available() {
		return
	}
	if n := r.sub.teardown(); n > 0 {
		r.log.Info("relay torn down", logx.Int("released", n))
	}
}

// Pending returns the cached payload for t without consuming it.
func (r *Relay) Pending(t EventType) (any, bool) {
	if !r.Available() {
		return nil, false
	}
	return r.reg.Pending(t)
}

// Flush drops the cached payload for t.
func (r *Relay) Flush(t EventType) bool {
	if !r.Available() {
		return false
	}
	return r.reg.Flush(t)
}

func (r *Relay) HasHandler(t EventType) bool {
	if !r.Available() {
		return false
	}
	return r.reg.HasHandler(t)
}

func (r *Relay) prime(t EventType) {
	for _, cmd := range PrimingCommands(t, r.os) {
		r.log.Debug("priming native module", logx.String("event", t.String()), logx.String("cmd", cmd.Name))
		r.mod.Exec(cmd)
	}
}

// PrimingCommands returns the native commands issued when registering for t.
//
// Registering for ids is what makes the native side emit them. In-app click
// priming differs per platform but has the same effect.
func PrimingCommands(t EventType, os platform.OS) []sdk.Command {
	switch t {
	case IdsAvailable:
		return []sdk.Command{{Name: sdk.CmdIDsAvailable}}
	case NotificationOpened:
		return []sdk.Command{{Name: sdk.CmdInitNotificationOpenedHandlerParams}}
	case InAppMessageClicked:
		switch os {
		case platform.Android:
			return []sdk.Command{{Name: sdk.CmdInitInAppMessageClickHandlerParams}}
		case platform.IOS:
			return []sdk.Command{{Name: sdk.CmdSetInAppMessageClickHandler}}
		}
	}
	return nil
}
