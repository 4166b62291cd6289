// Package storage persists the simulated native module's state.
//
// It currently supports:
//   - A command journal (every native call the relay daemon issued)
//   - Namespaced key/value state (tags, triggers, consent, identity)
package storage
