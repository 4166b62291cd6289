package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pushrelay/internal/platform"
	"pushrelay/internal/relay"
	"pushrelay/internal/sdk"
	"pushrelay/internal/sdk/sdktest"
	logx "pushrelay/pkg/logx"
)

func newClient(t *testing.T, os platform.OS) (*Client, *sdktest.Module, *[]platform.Notice) {
	t.Helper()
	mod := sdktest.New()
	var notices []platform.Notice
	gate := platform.NewGate(os, platform.Config{Sink: func(n platform.Notice) { notices = append(notices, n) }}, logx.Nop())
	return New(mod, Options{Gate: gate, Log: logx.Nop()}), mod, &notices
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

// exerciseAll calls every public operation once.
func exerciseAll(c *Client) []error {
	var errs []error
	add := func(err error) { errs = append(errs, err) }

	add(c.AddEventListener(relay.IdsAvailable, func(any) {}))
	add(c.AddEventListener(relay.EventType(42), func(any) {}))
	add(c.AddEventListenerByName("bogus", func(any) {}))
	add(c.RemoveEventListener(relay.IdsAvailable))
	c.ClearListeners()
	c.Configure()
	c.Init("app", nil)
	c.RegisterForPushNotifications()
	add(c.PromptForPushNotificationsWithUserResponse(nil))
	c.RequestPermissions(nil)
	c.CheckPermissions()
	c.PromptForPushNotificationPermissions(nil)
	c.GetPermissionSubscriptionState()
	c.EnableVibrate(true)
	c.EnableSound(true)
	c.ClearOneSignalNotifications()
	c.CancelNotification(1)
	c.InFocusDisplaying(DisplayNotification)
	c.SendTag("k", true)
	c.SendTags(map[string]any{"k": "v"})
	c.GetTags()
	c.DeleteTag("k")
	c.SetEmail("a@b.c", "", nil)
	add(c.LogoutEmail(nil))
	c.SyncHashedEmail("a@b.c")
	c.SetSubscription(true)
	c.SetLocationShared(true)
	c.PromptLocation()
	c.SetLogLevel(6, 0)
	c.PostNotification(map[string]any{"en": "hi"}, nil, "p1", nil)
	c.SetRequiresUserPrivacyConsent(true)
	c.ProvideUserConsent(true)
	c.UserProvidedPrivacyConsent()
	c.SetExternalUserID("x")
	c.RemoveExternalUserID()
	c.AddTrigger("k", 1)
	c.AddTriggers(map[string]any{"k": 1})
	c.RemoveTriggersForKeys([]string{"k"})
	c.RemoveTriggerForKey("k")
	c.GetTriggerValueForKey("k")
	c.PauseInAppMessages(true)
	c.SendOutcome("o", nil)
	c.SendUniqueOutcome("o", nil)
	c.SendOutcomeWithValue("o", 1.5, nil)
	return errs
}

func TestInertClientIssuesNoCommands(t *testing.T) {
	t.Parallel()
	for _, os := range []platform.OS{platform.IOS, platform.Android} {
		mod := sdktest.New()
		mod.Unavailable = true
		c := New(mod, Options{Platform: os, Log: logx.Nop()})
		if c.Available() {
			t.Fatalf("%s: client reports available", os)
		}
		for i, err := range exerciseAll(c) {
			if err != nil {
				t.Fatalf("%s: call %d returned %v, want nil", os, i, err)
			}
		}
		if got := mod.Commands(); len(got) != 0 {
			t.Fatalf("%s: inert client issued %d commands: %v", os, len(got), got)
		}
		for _, et := range relay.EventTypes() {
			if n := mod.ListenerCount(et.Channel()); n != 0 {
				t.Fatalf("%s: inert client subscribed to %s", os, et.Channel())
			}
		}
	}
}

func TestInertQueriesSettleUnavailable(t *testing.T) {
	t.Parallel()
	c := New(nil, Options{Platform: platform.IOS})
	ctx := waitCtx(t)
	if _, err := c.GetTags().Wait(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("GetTags err = %v, want ErrUnavailable", err)
	}
	if _, err := c.GetTriggerValueForKey("k").Wait(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("GetTriggerValueForKey err = %v, want ErrUnavailable", err)
	}
	if _, err := c.CheckPermissions().Wait(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CheckPermissions err = %v, want ErrUnavailable", err)
	}
	if _, err := c.GetPermissionSubscriptionState().Wait(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("GetPermissionSubscriptionState err = %v, want ErrUnavailable", err)
	}
	if _, err := c.UserProvidedPrivacyConsent().Wait(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("UserProvidedPrivacyConsent err = %v, want ErrUnavailable", err)
	}
}

func TestPlatformGate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		call func(c *Client)
		cmd  string
		on   platform.OS
	}{
		{name: "register", call: func(c *Client) { c.RegisterForPushNotifications() }, cmd: sdk.CmdRegisterForPushNotifications, on: platform.IOS},
		{name: "request permissions", call: func(c *Client) { c.RequestPermissions(nil) }, cmd: sdk.CmdRequestPermissions, on: platform.IOS},
		{name: "check permissions", call: func(c *Client) { c.CheckPermissions() }, cmd: sdk.CmdCheckPermissions, on: platform.IOS},
		{name: "prompt permissions", call: func(c *Client) { c.PromptForPushNotificationPermissions(nil) }, cmd: sdk.CmdPromptForPushNotificationPermissions, on: platform.IOS},
		{name: "prompt with response", call: func(c *Client) { _ = c.PromptForPushNotificationsWithUserResponse(func(bool) {}) }, cmd: sdk.CmdPromptForPushNotificationsWithUserResponse, on: platform.IOS},
		{name: "vibrate", call: func(c *Client) { c.EnableVibrate(false) }, cmd: sdk.CmdEnableVibrate, on: platform.Android},
		{name: "sound", call: func(c *Client) { c.EnableSound(false) }, cmd: sdk.CmdEnableSound, on: platform.Android},
		{name: "clear", call: func(c *Client) { c.ClearOneSignalNotifications() }, cmd: sdk.CmdClearOneSignalNotifications, on: platform.Android},
		{name: "cancel", call: func(c *Client) { c.CancelNotification(7) }, cmd: sdk.CmdCancelNotification, on: platform.Android},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for _, os := range []platform.OS{platform.IOS, platform.Android} {
				c, mod, notices := newClient(t, os)
				tt.call(c)
				got := mod.Count(tt.cmd)
				if os == tt.on {
					if got != 1 || len(*notices) != 0 {
						t.Fatalf("%s on %s: commands=%d notices=%d, want 1/0", tt.name, os, got, len(*notices))
					}
					continue
				}
				if got != 0 || len(mod.Commands()) != 0 {
					t.Fatalf("%s on %s: issued %v, want none", tt.name, os, mod.Commands())
				}
				if len(*notices) != 1 || (*notices)[0].Required != tt.on {
					t.Fatalf("%s on %s: notices=%v, want one requiring %s", tt.name, os, *notices, tt.on)
				}
			}
		})
	}
}

func TestInAppClickPrimingPerPlatform(t *testing.T) {
	t.Parallel()
	ios, iosMod, _ := newClient(t, platform.IOS)
	android, androidMod, _ := newClient(t, platform.Android)
	if err := ios.AddEventListener(relay.InAppMessageClicked, func(any) {}); err != nil {
		t.Fatalf("ios AddEventListener: %v", err)
	}
	if err := android.AddEventListener(relay.InAppMessageClicked, func(any) {}); err != nil {
		t.Fatalf("android AddEventListener: %v", err)
	}
	if iosMod.Count(sdk.CmdSetInAppMessageClickHandler) != 1 || iosMod.Count(sdk.CmdInitInAppMessageClickHandlerParams) != 0 {
		t.Fatalf("ios priming = %v", iosMod.Commands())
	}
	if androidMod.Count(sdk.CmdInitInAppMessageClickHandlerParams) != 1 || androidMod.Count(sdk.CmdSetInAppMessageClickHandler) != 0 {
		t.Fatalf("android priming = %v", androidMod.Commands())
	}
}

func TestAddEventListenerByName(t *testing.T) {
	t.Parallel()
	c, mod, _ := newClient(t, platform.Android)
	mod.Deliver(relay.ChannelNotificationOpened, "opened-early")
	var got any
	if err := c.AddEventListenerByName("opened", func(p any) { got = p }); err != nil {
		t.Fatalf("AddEventListenerByName: %v", err)
	}
	if got != "opened-early" {
		t.Fatalf("got %v, want opened-early", got)
	}
	if err := c.AddEventListenerByName("clicked", func(any) {}); !errors.Is(err, relay.ErrInvalidEventType) {
		t.Fatalf("err = %v, want ErrInvalidEventType", err)
	}
}

func TestMandatoryCallbacks(t *testing.T) {
	t.Parallel()
	c, mod, _ := newClient(t, platform.IOS)
	if err := c.PromptForPushNotificationsWithUserResponse(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("prompt err = %v, want ErrInvalidArgument", err)
	}
	if err := c.LogoutEmail(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("logout err = %v, want ErrInvalidArgument", err)
	}
	if len(mod.Commands()) != 0 {
		t.Fatalf("commands issued despite invalid argument: %v", mod.Commands())
	}

	// Off iOS the gate refuses first, so a nil callback is not an error.
	android, _, _ := newClient(t, platform.Android)
	if err := android.PromptForPushNotificationsWithUserResponse(nil); err != nil {
		t.Fatalf("android prompt err = %v, want nil", err)
	}
}

func TestCallbackReceivesQueryOutcome(t *testing.T) {
	t.Parallel()
	c, mod, _ := newClient(t, platform.IOS)
	var accepted *bool
	if err := c.PromptForPushNotificationsWithUserResponse(func(ok bool) { accepted = &ok }); err != nil {
		t.Fatalf("prompt: %v", err)
	}
	pending := mod.Pending(sdk.CmdPromptForPushNotificationsWithUserResponse)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if accepted != nil {
		t.Fatal("callback fired before the native answer")
	}
	pending[0].Resolve(true)
	pending[0].Resolve(false) // ignored
	if accepted == nil || !*accepted {
		t.Fatalf("accepted = %v, want true", accepted)
	}

	var logoutErr error
	called := 0
	if err := c.LogoutEmail(func(err error) { called++; logoutErr = err }); err != nil {
		t.Fatalf("LogoutEmail: %v", err)
	}
	boom := errors.New("boom")
	mod.Pending(sdk.CmdLogoutEmail)[0].Reject(boom)
	if called != 1 || !errors.Is(logoutErr, boom) {
		t.Fatalf("logout callback called=%d err=%v", called, logoutErr)
	}
}

func TestTypedQueries(t *testing.T) {
	t.Parallel()
	c, mod, _ := newClient(t, platform.IOS)
	mod.Answer = func(cmd sdk.Command) (any, error, bool) {
		switch cmd.Name {
		case sdk.CmdGetTags:
			return map[string]string{"level": "3"}, nil, true
		case sdk.CmdCheckPermissions:
			return map[string]any{"alert": true, "sound": true}, nil, true
		case sdk.CmdUserProvidedPrivacyConsent:
			return true, nil, true
		case sdk.CmdGetTriggerValueForKey:
			return "v-" + cmd.Arg("key").(string), nil, true
		case sdk.CmdGetPermissionSubscriptionState:
			return 12, nil, true
		}
		return nil, nil, false
	}
	ctx := waitCtx(t)

	tags, err := c.GetTags().Wait(ctx)
	if err != nil || tags["level"] != "3" {
		t.Fatalf("GetTags = %v, %v", tags, err)
	}
	perms, err := c.CheckPermissions().Wait(ctx)
	if err != nil || perms != (Permissions{Alert: true, Sound: true}) {
		t.Fatalf("CheckPermissions = %+v, %v", perms, err)
	}
	consent, err := c.UserProvidedPrivacyConsent().Wait(ctx)
	if err != nil || !consent {
		t.Fatalf("UserProvidedPrivacyConsent = %v, %v", consent, err)
	}
	v, err := c.GetTriggerValueForKey("k").Wait(ctx)
	if err != nil || v != "v-k" {
		t.Fatalf("GetTriggerValueForKey = %v, %v", v, err)
	}
	if _, err := c.GetPermissionSubscriptionState().Wait(ctx); !errors.Is(err, ErrUnexpectedResult) {
		t.Fatalf("GetPermissionSubscriptionState err = %v, want ErrUnexpectedResult", err)
	}
}

func TestUnansweredQueryStaysPending(t *testing.T) {
	t.Parallel()
	c, _, _ := newClient(t, platform.Android)
	f := c.GetTags()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if f.Settled() {
		t.Fatal("giving up on Wait must not settle the future")
	}
}

func TestCheckPermissionsOffIOSResolvesZero(t *testing.T) {
	t.Parallel()
	c, mod, notices := newClient(t, platform.Android)
	p, err := c.CheckPermissions().Wait(waitCtx(t))
	if err != nil || p != (Permissions{}) {
		t.Fatalf("got %+v, %v", p, err)
	}
	if len(mod.Commands()) != 0 || len(*notices) != 1 {
		t.Fatalf("commands=%v notices=%d", mod.Commands(), len(*notices))
	}
}

func TestArgumentMarshalling(t *testing.T) {
	t.Parallel()
	c, mod, _ := newClient(t, platform.Android)

	c.SendTag("vip", true)
	if cmd, _ := mod.Last(sdk.CmdSendTag); cmd.Arg("value") != "true" {
		t.Fatalf("sendTag value = %#v, want \"true\"", cmd.Arg("value"))
	}
	c.SendTags(map[string]any{"a": false, "b": 2})
	sent, _ := mod.Last(sdk.CmdSendTags)
	tags := sent.Arg("tags").(map[string]any)
	if tags["a"] != "false" || tags["b"] != 2 {
		t.Fatalf("sendTags = %v", tags)
	}
	c.SendTags(nil)
	if cmd, _ := mod.Last(sdk.CmdSendTags); len(cmd.Arg("tags").(map[string]any)) != 0 {
		t.Fatalf("nil tags should be sent as empty map")
	}

	c.AddTrigger("level", 5)
	if cmd, _ := mod.Last(sdk.CmdAddTriggers); cmd.Arg("triggers").(map[string]any)["level"] != 5 {
		t.Fatalf("addTrigger = %v", cmd.Args)
	}

	c.SetEmail("a@b.c", "", nil)
	c.SetEmail("a@b.c", "hash", nil)
	if mod.Count(sdk.CmdSetUnauthenticatedEmail) != 1 || mod.Count(sdk.CmdSetEmail) != 1 {
		t.Fatalf("email commands = %v", mod.Commands())
	}

	c.PostNotification(map[string]any{"en": "hi"}, map[string]any{"k": 1}, "p1", nil)
	cmd, _ := mod.Last(sdk.CmdPostNotification)
	var contents map[string]any
	if err := json.Unmarshal([]byte(cmd.Arg("contents").(string)), &contents); err != nil || contents["en"] != "hi" {
		t.Fatalf("android contents = %v (%v)", cmd.Arg("contents"), err)
	}
	if v, present := cmd.Args["otherParameters"]; !present || v != nil {
		t.Fatalf("otherParameters = %#v, want nil", v)
	}
	if _, isString := cmd.Arg("data").(string); !isString {
		t.Fatalf("android data = %#v, want JSON string", cmd.Arg("data"))
	}

	c.Init("app-1", map[string]any{"kOSSettingsKeyAutoPrompt": true})
	if cmd, ok := mod.Last(sdk.CmdInit); !ok || cmd.Arg("appId") != "app-1" || mod.Count(sdk.CmdInitWithAppID) != 0 {
		t.Fatalf("android init = %v", mod.Commands())
	}
	c.InFocusDisplaying(DisplayInAppAlert)
	if mod.Count(sdk.CmdInFocusDisplaying) != 1 || mod.Count(sdk.CmdSetInFocusDisplayType) != 0 {
		t.Fatalf("android in-focus = %v", mod.Commands())
	}
}

func TestIOSVariants(t *testing.T) {
	t.Parallel()
	c, mod, _ := newClient(t, platform.IOS)

	c.RequestPermissions(nil)
	cmd, _ := mod.Last(sdk.CmdRequestPermissions)
	for _, k := range []string{"alert", "badge", "sound"} {
		if cmd.Arg(k) != true {
			t.Fatalf("default permission %s = %v, want true", k, cmd.Arg(k))
		}
	}
	c.RequestPermissions(&Permissions{Badge: true})
	cmd, _ = mod.Last(sdk.CmdRequestPermissions)
	if cmd.Arg("alert") != false || cmd.Arg("badge") != true || cmd.Arg("sound") != false {
		t.Fatalf("explicit permissions = %v", cmd.Args)
	}

	c.Init("app-1", nil)
	c.InFocusDisplaying(DisplayNone)
	c.PostNotification(map[string]any{"en": "hi"}, nil, "p1", nil)
	if mod.Count(sdk.CmdInitWithAppID) != 1 || mod.Count(sdk.CmdSetInFocusDisplayType) != 1 {
		t.Fatalf("ios variants = %v", mod.Commands())
	}
	post, _ := mod.Last(sdk.CmdPostNotification)
	if _, ok := post.Arg("contents").(map[string]any); !ok {
		t.Fatalf("ios contents should be passed as a map, got %T", post.Arg("contents"))
	}
}

func TestClearListenersReleasesRelay(t *testing.T) {
	t.Parallel()
	c, mod, _ := newClient(t, platform.Android)
	got := 0
	_ = c.AddEventListener(relay.NotificationReceived, func(any) { got++ })
	c.ClearListeners()
	mod.Deliver(relay.ChannelNotificationReceived, "late")
	if got != 0 {
		t.Fatalf("handler invoked after ClearListeners")
	}
	for _, et := range relay.EventTypes() {
		if n := mod.ListenerCount(et.Channel()); n != 0 {
			t.Fatalf("%s still has %d native listeners", et, n)
		}
	}
}
