package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/goleak"

	"pushrelay/internal/platform"
	"pushrelay/internal/relay"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type notifyRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *notifyRecorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *notifyRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const baseConfig = `
platform: android
sdk:
  app_id: "test-app"
logging:
  level: error
  console: true
storage:
  driver: memory
`

func newApp(t *testing.T, body string, environ map[string]string) (*App, *notifyRecorder) {
	t.Helper()
	rec := &notifyRecorder{}
	if environ == nil {
		environ = map[string]string{}
	}
	a, err := New(writeConfig(t, body), WithEnviron(environ), WithNotify(rec.notify))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, rec
}

func stop(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartDeliversIDs(t *testing.T) {
	a, rec := newApp(t, baseConfig, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "ids delivery", func() bool { return a.Deliveries()["ids"] > 0 })
	p, ok := a.LastPayload("ids")
	if !ok {
		t.Fatal("no ids payload recorded")
	}
	ids, _ := p.(map[string]any)
	if id, _ := ids["userId"].(string); id == "" {
		t.Fatalf("ids payload = %#v, want userId", p)
	}

	stop(t, a)
	states := rec.seen()
	if len(states) != 2 || states[0] != daemon.SdNotifyReady || states[1] != daemon.SdNotifyStopping {
		t.Fatalf("notify states = %q", states)
	}
}

func TestPostNotificationReachesReceivedHandler(t *testing.T) {
	a, _ := newApp(t, baseConfig, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stop(t, a)

	a.Client().PostNotification(map[string]any{"en": "hi"}, nil, "player-1", nil)
	waitFor(t, "received delivery", func() bool { return a.Deliveries()["received"] == 1 })

	p, _ := a.LastPayload("received")
	n, _ := p.(map[string]any)
	if n["playerId"] != "player-1" {
		t.Fatalf("payload = %#v", p)
	}
	contents, _ := n["contents"].(map[string]any)
	if contents["en"] != "hi" {
		t.Fatalf("contents = %#v", n["contents"])
	}
}

func TestInertWhenSDKDisabled(t *testing.T) {
	a, rec := newApp(t, `
platform: ios
sdk:
  available: false
logging: { level: error, console: true }
`, nil)
	if a.Client().Available() {
		t.Fatal("client should be inert")
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(a.Deliveries()) != 0 {
		t.Fatalf("deliveries = %v", a.Deliveries())
	}
	stop(t, a)
	if len(rec.seen()) != 2 {
		t.Fatalf("notify states = %q", rec.seen())
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	a, _ := newApp(t, baseConfig, map[string]string{
		"PUSHRELAY_PLATFORM":      "ios",
		"PUSHRELAY_SDK_AVAILABLE": "false",
	})
	defer stop(t, a)

	if got := a.Client().Platform(); got != platform.IOS {
		t.Fatalf("platform = %q, want ios", got)
	}
	if a.Client().Available() {
		t.Fatal("PUSHRELAY_SDK_AVAILABLE=false should make the client inert")
	}
}

func TestNewRejectsBadBroadcasts(t *testing.T) {
	cases := []struct {
		name string
		body string
		is   error
	}{
		{"unknown event", `
platform: android
sdk:
  broadcasts:
    - { name: x, event: clicked, schedule: "@every 1m" }
`, relay.ErrInvalidEventType},
		{"bad schedule", `
platform: android
sdk:
  broadcasts:
    - { name: x, event: opened, schedule: "every blue moon" }
`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(writeConfig(t, tc.body), WithEnviron(map[string]string{}), WithNotify((&notifyRecorder{}).notify))
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("err = %v, want %v", err, tc.is)
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	a, _ := newApp(t, baseConfig, nil)
	defer stop(t, a)

	cfg := *a.Config()
	if _, enabled, err := mapStorageConfig(&cfg); err != nil || !enabled {
		t.Fatalf("memory: enabled=%v err=%v", enabled, err)
	}
	cfg.Storage = nil
	if _, enabled, err := mapStorageConfig(&cfg); err != nil || enabled {
		t.Fatalf("nil storage: enabled=%v err=%v", enabled, err)
	}
}
