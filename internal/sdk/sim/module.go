// Package sim is a stand-in for the native push module.
//
// It answers every command the relay and client issue, keeps user state
// (tags, triggers, consent, email, external id) in a storage.Store, journals
// each call, and emits broadcasts on the same channels a device would: ids
// after registration, received for posted notifications, and whatever the
// configured broadcast schedules produce.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/relay"
	"pushrelay/internal/sdk"
	"pushrelay/internal/storage"
	logx "pushrelay/pkg/logx"
)

var ErrUnknownCommand = errors.New("sim: unknown command")

// Config configures the simulated module.
type Config struct {
	// QueueSize bounds pending broadcasts (<= 0 uses the emitter default).
	QueueSize int
	// AcceptPrompts is the simulated user's answer to permission prompts.
	AcceptPrompts bool
	// StoreTimeout bounds each storage call. 0 means 2s.
	StoreTimeout time.Duration
	Broadcasts   []Broadcast
}

// Module implements sdk.Module and sdk.Runner.
type Module struct {
	*eventbus.Emitter

	cfg   Config
	store storage.Store
	log   logx.Logger
	now   func() time.Time

	mu          sync.Mutex
	appID       string
	userID      string
	pushToken   string
	permissions map[string]bool
	uniqueSent  map[string]bool

	sched *scheduler
}

// New builds a Module. A nil store keeps state in memory.
func New(cfg Config, store storage.Store, log logx.Logger) (*Module, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if store == nil {
		store = storage.NewMemory()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	m := &Module{
		Emitter:     eventbus.New(cfg.QueueSize, log.With(logx.String("comp", "emitter"))),
		cfg:         cfg,
		store:       store,
		log:         log,
		now:         time.Now,
		permissions: map[string]bool{},
		uniqueSent:  map[string]bool{},
	}
	sched, err := newScheduler(m, cfg.Broadcasts, log.With(logx.String("comp", "broadcasts")))
	if err != nil {
		return nil, err
	}
	m.sched = sched
	m.userID = m.stateOrNew("userId")
	m.pushToken = m.stateOrNew("pushToken")
	return m, nil
}

// Run starts scheduled broadcasts and the delivery loop. It blocks until ctx
// is done.
func (m *Module) Run(ctx context.Context) error {
	m.sched.start()
	defer m.sched.stop()
	return m.Emitter.Run(ctx)
}

// UserID is the simulated device's player id.
func (m *Module) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

func (m *Module) Exec(cmd sdk.Command) {
	m.journal(cmd, false, nil)
	switch cmd.Name {
	case sdk.CmdInit, sdk.CmdInitWithAppID:
		appID, _ := cmd.Arg("appId").(string)
		m.mu.Lock()
		m.appID = appID
		m.mu.Unlock()
		m.log.Info("sdk initialized", logx.String("app_id", appID))

	case sdk.CmdIDsAvailable, sdk.CmdRegisterForPushNotifications:
		m.Emit(relay.ChannelIdsAvailable, m.ids())

	case sdk.CmdRequestPermissions:
		m.mu.Lock()
		for _, k := range []string{"alert", "badge", "sound"} {
			v, _ := cmd.Arg(k).(bool)
			m.permissions[k] = v && m.cfg.AcceptPrompts
		}
		m.mu.Unlock()

	case sdk.CmdSendTag:
		key, _ := cmd.Arg("key").(string)
		m.put(storage.NSTags, key, cmd.Arg("value"))
	case sdk.CmdSendTags:
		tags, _ := cmd.Arg("tags").(map[string]any)
		for k, v := range tags {
			m.put(storage.NSTags, k, v)
		}
	case sdk.CmdDeleteTag:
		key, _ := cmd.Arg("key").(string)
		m.del(storage.NSTags, key)

	case sdk.CmdAddTriggers:
		triggers, _ := cmd.Arg("triggers").(map[string]any)
		for k, v := range triggers {
			m.put(storage.NSTriggers, k, v)
		}
	case sdk.CmdRemoveTriggersForKeys:
		keys, _ := cmd.Arg("keys").([]string)
		for _, k := range keys {
			m.del(storage.NSTriggers, k)
		}
	case sdk.CmdRemoveTriggerForKey:
		key, _ := cmd.Arg("key").(string)
		m.del(storage.NSTriggers, key)

	case sdk.CmdSetRequiresUserPrivacyConsent:
		m.put(storage.NSState, "consentRequired", cmd.Arg("required"))
	case sdk.CmdProvideUserConsent:
		m.put(storage.NSState, "consentGiven", cmd.Arg("granted"))
	case sdk.CmdSetExternalUserID:
		m.put(storage.NSState, "externalUserId", cmd.Arg("externalId"))
	case sdk.CmdRemoveExternalUserID:
		m.del(storage.NSState, "externalUserId")
	case sdk.CmdSetSubscription:
		m.put(storage.NSState, "subscribed", cmd.Arg("enable"))
	case sdk.CmdSyncHashedEmail:
		m.put(storage.NSState, "email", cmd.Arg("email"))

	case sdk.CmdPostNotification:
		m.Emit(relay.ChannelNotificationReceived, m.notification(cmd))

	default:
		// Display, logging, location and notification-tray commands have no
		// observable state here.
	}
}

func (m *Module) Query(cmd sdk.Command) *sdk.Future[any] {
	v, err := m.answer(cmd)
	m.journal(cmd, true, err)
	if err != nil {
		return sdk.Failed[any](err)
	}
	return sdk.Resolved(v)
}

func (m *Module) answer(cmd sdk.Command) (any, error) {
	switch cmd.Name {
	case sdk.CmdGetTags:
		return m.list(storage.NSTags)

	case sdk.CmdGetTriggerValueForKey:
		key, _ := cmd.Arg("key").(string)
		v, ok, err := m.get(storage.NSTriggers, key)
		if err != nil || !ok {
			return nil, err
		}
		return v, nil

	case sdk.CmdUserProvidedPrivacyConsent:
		v, _, err := m.get(storage.NSState, "consentGiven")
		b, _ := v.(bool)
		return b, err

	case sdk.CmdCheckPermissions:
		m.mu.Lock()
		defer m.mu.Unlock()
		out := map[string]any{}
		for _, k := range []string{"alert", "badge", "sound"} {
			out[k] = m.permissions[k]
		}
		return out, nil

	case sdk.CmdPromptForPushNotificationsWithUserResponse, sdk.CmdPromptForPushNotificationPermissions:
		if m.cfg.AcceptPrompts {
			m.mu.Lock()
			for _, k := range []string{"alert", "badge", "sound"} {
				m.permissions[k] = true
			}
			m.mu.Unlock()
		}
		return m.cfg.AcceptPrompts, nil

	case sdk.CmdGetPermissionSubscriptionState:
		return m.subscriptionState()

	case sdk.CmdSetEmail, sdk.CmdSetUnauthenticatedEmail:
		email, _ := cmd.Arg("email").(string)
		if email == "" {
			return nil, fmt.Errorf("sim: email required")
		}
		m.put(storage.NSState, "email", email)
		m.put(storage.NSState, "emailUserId", uuid.NewString())
		m.Emit(relay.ChannelEmailSubscription, m.emailState())
		return nil, nil

	case sdk.CmdLogoutEmail:
		m.del(storage.NSState, "email")
		m.del(storage.NSState, "emailUserId")
		m.Emit(relay.ChannelEmailSubscription, m.emailState())
		return nil, nil

	case sdk.CmdSendOutcome, sdk.CmdSendUniqueOutcome, sdk.CmdSendOutcomeWithValue:
		return m.outcome(cmd), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name)
}

func (m *Module) ids() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{"userId": m.userID, "pushToken": m.pushToken}
}

func (m *Module) emailState() map[string]any {
	email, _, _ := m.get(storage.NSState, "email")
	emailUserID, _, _ := m.get(storage.NSState, "emailUserId")
	return map[string]any{
		"emailAddress": email,
		"emailUserId":  emailUserID,
		"isSubscribed": email != nil,
	}
}

func (m *Module) subscriptionState() (any, error) {
	state, err := m.list(storage.NSState)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	enabled := m.permissions["alert"] || m.permissions["sound"] || m.permissions["badge"]
	state["userId"] = m.userID
	state["pushToken"] = m.pushToken
	m.mu.Unlock()
	state["notificationsEnabled"] = enabled
	if _, ok := state["subscribed"]; !ok {
		state["subscribed"] = true
	}
	return state, nil
}

// notification builds a received payload from a postNotification command.
// Android passes the maps as JSON strings.
func (m *Module) notification(cmd sdk.Command) map[string]any {
	return map[string]any{
		"notificationId": uuid.NewString(),
		"playerId":       cmd.Arg("playerId"),
		"contents":       decodeMaybeJSON(cmd.Arg("contents")),
		"data":           decodeMaybeJSON(cmd.Arg("data")),
		"sentAt":         m.now().UTC().Format(time.RFC3339),
	}
}

func (m *Module) outcome(cmd sdk.Command) any {
	name, _ := cmd.Arg("name").(string)
	if cmd.Name == sdk.CmdSendUniqueOutcome {
		m.mu.Lock()
		seen := m.uniqueSent[name]
		m.uniqueSent[name] = true
		m.mu.Unlock()
		if seen {
			return nil
		}
	}
	ev := map[string]any{
		"name":      name,
		"timestamp": m.now().Unix(),
		"weight":    0.0,
	}
	if v, ok := cmd.Arg("value").(float64); ok {
		ev["weight"] = v
	}
	return ev
}

// ---- storage helpers ----

func (m *Module) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
}

// put stores v JSON-encoded so getters return the original type.
func (m *Module) put(ns, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		m.log.Warn("unencodable value", logx.String("ns", ns), logx.String("key", key), logx.Err(err))
		return
	}
	ctx, cancel := m.ctx()
	defer cancel()
	if err := m.store.Put(ctx, ns, key, string(b)); err != nil {
		m.log.Warn("store put failed", logx.String("ns", ns), logx.String("key", key), logx.Err(err))
	}
}

func (m *Module) del(ns, key string) {
	ctx, cancel := m.ctx()
	defer cancel()
	if err := m.store.Delete(ctx, ns, key); err != nil {
		m.log.Warn("store delete failed", logx.String("ns", ns), logx.String("key", key), logx.Err(err))
	}
}

func (m *Module) get(ns, key string) (any, bool, error) {
	ctx, cancel := m.ctx()
	defer cancel()
	raw, ok, err := m.store.Get(ctx, ns, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return decodeValue(raw), true, nil
}

func (m *Module) list(ns string) (map[string]any, error) {
	ctx, cancel := m.ctx()
	defer cancel()
	raw, err := m.store.List(ctx, ns)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = decodeValue(v)
	}
	return out, nil
}

// stateOrNew returns the persisted identifier key, minting one on first use.
func (m *Module) stateOrNew(key string) string {
	if v, ok, _ := m.get(storage.NSState, key); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	id := uuid.NewString()
	m.put(storage.NSState, key, id)
	return id
}

func (m *Module) journal(cmd sdk.Command, query bool, err error) {
	rec := storage.CommandRecord{At: m.now(), Name: cmd.Name, Query: query}
	if len(cmd.Args) > 0 {
		if b, jerr := json.Marshal(cmd.Args); jerr == nil {
			rec.ArgsJSON = string(b)
		}
	}
	if err != nil {
		rec.Error = err.Error()
	}
	ctx, cancel := m.ctx()
	defer cancel()
	if jerr := m.store.AppendCommand(ctx, rec); jerr != nil {
		m.log.Debug("journal append failed", logx.String("cmd", cmd.Name), logx.Err(jerr))
	}
}

func decodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	// Whole numbers come back as float64; keep them integral for callers.
	if f, ok := v.(float64); ok {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil && float64(i) == f {
			return i
		}
	}
	return v
}

func decodeMaybeJSON(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s
	}
	return out
}

var (
	_ sdk.Module = (*Module)(nil)
	_ sdk.Runner = (*Module)(nil)
)
