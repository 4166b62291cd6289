// Package platform decides which native operations may run on the host OS.
//
// A small fixed set of operations exists on only one platform. Calling one of
// them elsewhere is not an error: the Gate refuses it, logs a diagnostic
// notice, and the caller skips the native call.
package platform

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	logx "pushrelay/pkg/logx"
)

// OS is the host platform.
type OS string

const (
	IOS     OS = "ios"
	Android OS = "android"
)

func ParseOS(s string) (OS, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ios":
		return IOS, nil
	case "android":
		return Android, nil
	default:
		return "", fmt.Errorf("unknown platform %q (want ios or android)", s)
	}
}

// Notice is a diagnostic emitted when a platform-restricted operation is
// called on the wrong platform.
type Notice struct {
	Op       Op
	Platform OS
	Required OS
	Message  string
	Time     time.Time
}

// NoticeSink receives every notice, independent of log rate limiting.
type NoticeSink func(Notice)

type Config struct {
	// NoticesPerSec bounds how many notices per second reach the log.
	// <= 0 means 5.
	NoticesPerSec int
	Sink          NoticeSink
}

// Gate checks operations against the policy table for one host OS.
type Gate struct {
	os   OS
	log  logx.Logger
	sink NoticeSink

	mu      sync.Mutex
	limiter *rate.Limiter

	refused    atomic.Uint64
	suppressed atomic.Uint64
}

func NewGate(os OS, cfg Config, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	g := &Gate{os: os, log: log, sink: cfg.Sink}
	g.SetRate(cfg.NoticesPerSec)
	return g
}

func (g *Gate) OS() OS          { return g.os }
func (g *Gate) IsIOS() bool     { return g.os == IOS }
func (g *Gate) IsAndroid() bool { return g.os == Android }

// SetRate swaps the notice log limiter (config hot reload).
func (g *Gate) SetRate(perSec int) {
	if perSec <= 0 {
		perSec = 5
	}
	g.mu.Lock()
	g.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	g.mu.Unlock()
}

// Allow reports whether op may run here. Unrestricted operations are always
// allowed. A refusal emits a notice and never fails the caller.
func (g *Gate) Allow(op Op) bool {
	need, restricted := Restricted(op)
	if !restricted || need == g.os {
		return true
	}
	g.refused.Add(1)
	n := Notice{
		Op:       op,
		Platform: g.os,
		Required: need,
		Message:  unsupportedMessage(need),
		Time:     time.Now(),
	}
	if g.sink != nil {
		g.sink(n)
	}

	g.mu.Lock()
	lim := g.limiter
	g.mu.Unlock()
	if lim != nil && !lim.Allow() {
		g.suppressed.Add(1)
		return false
	}
	g.log.Warn(n.Message,
		logx.String("op", string(op)),
		logx.String("platform", string(g.os)),
		logx.String("required", string(need)))
	return false
}

// Refused reports how many calls were refused and how many of those notices
// were not logged because of rate limiting.
func (g *Gate) Refused() (total, suppressed uint64) {
	return g.refused.Load(), g.suppressed.Load()
}

func unsupportedMessage(need OS) string {
	switch need {
	case Android:
		return "This function is only supported on Android"
	case IOS:
		return "This function is only supported on iOS"
	default:
		return fmt.Sprintf("This function is only supported on %s", need)
	}
}
