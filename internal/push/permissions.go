package push

import (
	"pushrelay/internal/platform"
	"pushrelay/internal/sdk"
)

// Permissions is the iOS notification permission set.
type Permissions struct {
	Alert bool `json:"alert"`
	Badge bool `json:"badge"`
	Sound bool `json:"sound"`
}

func (p Permissions) args() map[string]any {
	return map[string]any{"alert": p.Alert, "badge": p.Badge, "sound": p.Sound}
}

func permissionsFrom(v any) (Permissions, error) {
	m, err := asMap(v)
	if err != nil {
		return Permissions{}, err
	}
	b := func(k string) bool {
		x, _ := m[k].(bool)
		return x
	}
	return Permissions{Alert: b("alert"), Badge: b("badge"), Sound: b("sound")}, nil
}

// SubscriptionState is the native permission/subscription snapshot. Its keys
// are defined by the native SDK.
type SubscriptionState map[string]any

// Init starts the native SDK. iOS takes its settings map, Android only the app id.
func (c *Client) Init(appID string, iosSettings map[string]any) {
	if !c.Available() {
		return
	}
	if c.gate.IsIOS() {
		c.exec(sdk.CmdInitWithAppID, map[string]any{"appId": appID, "settings": iosSettings})
		return
	}
	c.exec(sdk.CmdInit, map[string]any{"appId": appID})
}

func (c *Client) RegisterForPushNotifications() {
	if !c.Available() || !c.gate.Allow(platform.OpRegisterForPushNotifications) {
		return
	}
	c.exec(sdk.CmdRegisterForPushNotifications, nil)
}

// PromptForPushNotificationsWithUserResponse asks the user for permission and
// reports the answer to cb. cb is mandatory on iOS.
func (c *Client) PromptForPushNotificationsWithUserResponse(cb func(accepted bool)) error {
	if !c.Available() || !c.gate.Allow(platform.OpPromptForPushNotificationsWithUserResponse) {
		return nil
	}
	if cb == nil {
		return ErrInvalidArgument
	}
	c.query(sdk.CmdPromptForPushNotificationsWithUserResponse, nil).OnComplete(func(v any, err error) {
		accepted, _ := asBool(v)
		cb(err == nil && accepted)
	})
	return nil
}

// RequestPermissions asks for p, or for every permission when p is nil.
func (c *Client) RequestPermissions(p *Permissions) {
	if !c.Available() || !c.gate.Allow(platform.OpRequestPermissions) {
		return
	}
	req := Permissions{Alert: true, Badge: true, Sound: true}
	if p != nil {
		req = *p
	}
	c.exec(sdk.CmdRequestPermissions, req.args())
}

// CheckPermissions queries the current iOS permission set. Off iOS the
// returned future is already settled with the zero value.
func (c *Client) CheckPermissions() *sdk.Future[Permissions] {
	if !c.Available() {
		return unavailable[Permissions]()
	}
	if !c.gate.Allow(platform.OpCheckPermissions) {
		return sdk.Resolved(Permissions{})
	}
	return sdk.Map(c.query(sdk.CmdCheckPermissions, nil), permissionsFrom)
}

// PromptForPushNotificationPermissions shows the iOS prompt; cb is optional.
func (c *Client) PromptForPushNotificationPermissions(cb func(accepted bool)) {
	if !c.Available() || !c.gate.Allow(platform.OpPromptForPushNotificationPermissions) {
		return
	}
	f := c.query(sdk.CmdPromptForPushNotificationPermissions, nil)
	if cb != nil {
		f.OnComplete(func(v any, err error) {
			accepted, _ := asBool(v)
			cb(err == nil && accepted)
		})
	}
}

func (c *Client) GetPermissionSubscriptionState() *sdk.Future[SubscriptionState] {
	if !c.Available() {
		return unavailable[SubscriptionState]()
	}
	return sdk.Map(c.query(sdk.CmdGetPermissionSubscriptionState, nil), func(v any) (SubscriptionState, error) {
		m, err := asMap(v)
		return SubscriptionState(m), err
	})
}

func (c *Client) EnableVibrate(enable bool) {
	if !c.Available() || !c.gate.Allow(platform.OpEnableVibrate) {
		return
	}
	c.exec(sdk.CmdEnableVibrate, map[string]any{"enable": enable})
}

func (c *Client) EnableSound(enable bool) {
	if !c.Available() || !c.gate.Allow(platform.OpEnableSound) {
		return
	}
	c.exec(sdk.CmdEnableSound, map[string]any{"enable": enable})
}

func (c *Client) ClearOneSignalNotifications() {
	if !c.Available() || !c.gate.Allow(platform.OpClearOneSignalNotifications) {
		return
	}
	c.exec(sdk.CmdClearOneSignalNotifications, nil)
}

func (c *Client) CancelNotification(id int) {
	if !c.Available() || !c.gate.Allow(platform.OpCancelNotification) {
		return
	}
	c.exec(sdk.CmdCancelNotification, map[string]any{"id": id})
}

// DisplayOption controls how notifications show while the app is in focus.
type DisplayOption int

const (
	DisplayNone DisplayOption = iota
	DisplayInAppAlert
	DisplayNotification
)

func (c *Client) InFocusDisplaying(opt DisplayOption) {
	if !c.Available() {
		return
	}
	args := map[string]any{"displayOption": int(opt)}
	switch c.gate.OS() {
	case platform.Android:
		c.exec(sdk.CmdInFocusDisplaying, args)
	case platform.IOS:
		c.exec(sdk.CmdSetInFocusDisplayType, args)
	}
}
