package sim

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"pushrelay/internal/relay"
	logx "pushrelay/pkg/logx"
)

// Broadcast is a recurring simulated event.
type Broadcast struct {
	Name string
	// Event is a listener name: received, opened, ids, emailSubscription or
	// inAppMessageClicked.
	Event    string
	Schedule string
	Payload  map[string]any
}

type job struct {
	name     string
	event    relay.EventType
	spec     ParsedSpec
	schedule cron.Schedule
	payload  map[string]any
}

// scheduler fires Broadcasts through robfig/cron. Jobs only enqueue on the
// emitter, so a slow listener never delays the cron runner.
type scheduler struct {
	m    *Module
	log  logx.Logger
	jobs []job

	mu sync.Mutex
	c  *cron.Cron
}

func newScheduler(m *Module, defs []Broadcast, log logx.Logger) (*scheduler, error) {
	s := &scheduler{m: m, log: log}
	seen := map[string]bool{}
	for i, d := range defs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			name = fmt.Sprintf("broadcast-%d", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("broadcast %q: duplicate name", name)
		}
		seen[name] = true

		t, err := relay.ParseEventType(d.Event)
		if err != nil {
			return nil, fmt.Errorf("broadcast %q: %w", name, err)
		}
		spec, err := ParseSchedule(d.Schedule)
		if err != nil {
			return nil, fmt.Errorf("broadcast %q: %w", name, err)
		}
		sched, err := spec.Schedule()
		if err != nil {
			return nil, fmt.Errorf("broadcast %q: %w", name, err)
		}
		s.jobs = append(s.jobs, job{name: name, event: t, spec: spec, schedule: sched, payload: d.Payload})
	}
	return s, nil
}

func (s *scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || len(s.jobs) == 0 {
		return
	}
	s.c = cron.New(cron.WithParser(cronParser))
	for _, j := range s.jobs {
		j := j
		s.c.Schedule(j.schedule, cron.FuncJob(func() { s.fire(j) }))
		s.log.Debug("broadcast scheduled",
			logx.String("name", j.name),
			logx.String("event", j.event.String()),
			logx.String("source", j.spec.Source))
	}
	s.c.Start()
	s.log.Info("broadcast schedules started", logx.Int("schedules", len(s.jobs)))
}

// stop halts triggering and waits for running jobs.
func (s *scheduler) stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.log.Info("broadcast schedules stopped")
	}
}

func (s *scheduler) fire(j job) {
	payload := s.payload(j)
	if !s.m.Emit(j.event.Channel(), payload) {
		s.log.Warn("scheduled broadcast dropped", logx.String("name", j.name))
		return
	}
	s.log.Debug("scheduled broadcast", logx.String("name", j.name), logx.String("event", j.event.String()))
}

// payload copies the configured payload and fills the fields a device would
// stamp on each event.
func (s *scheduler) payload(j job) map[string]any {
	out := make(map[string]any, len(j.payload)+3)
	for k, v := range j.payload {
		out[k] = v
	}
	switch j.event {
	case relay.IdsAvailable:
		for k, v := range s.m.ids() {
			out[k] = v
		}
	case relay.NotificationReceived, relay.NotificationOpened:
		if _, ok := out["notificationId"]; !ok {
			out["notificationId"] = uuid.NewString()
		}
	}
	out["sentAt"] = s.m.now().UTC().Format(time.RFC3339)
	out["broadcast"] = j.name
	return out
}
