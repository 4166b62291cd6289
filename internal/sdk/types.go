// Package sdk describes the boundary with the native push-messaging module.
//
// The module is an opaque collaborator: it emits broadcasts on named channels
// and accepts commands. Commands are fire-and-forget; queries settle a single
// Future. Nothing in this package knows what a notification looks like.
package sdk

import "context"

// Command is one outbound call to the native module.
//
// Args carries primitive or flat key/value arguments. Callback-style native
// methods are expressed as queries: the callback fires when the Future settles.
type Command struct {
	Name string
	Args map[string]any
}

// Arg returns the named argument (nil when absent).
func (c Command) Arg(name string) any {
	if c.Args == nil {
		return nil
	}
	return c.Args[name]
}

// Listener receives one opaque payload per broadcast.
type Listener func(payload any)

// Subscription is the handle returned for one channel listener.
// Remove is idempotent.
type Subscription interface {
	Remove()
}

// EventSource delivers broadcasts on named channels.
type EventSource interface {
	AddListener(channel string, fn Listener) Subscription
}

// Module is the native messaging module as seen from Go.
type Module interface {
	EventSource

	// Exec issues a fire-and-forget command. It must not block on the native side.
	Exec(cmd Command)

	// Query issues a command whose answer arrives later, exactly once.
	Query(cmd Command) *Future[any]
}

// Present reports whether mod can be used. A module may report itself
// absent by implementing Available() bool (for example when the native side
// failed to load).
func Present(mod Module) bool {
	if mod == nil {
		return false
	}
	if a, ok := mod.(interface{ Available() bool }); ok {
		return a.Available()
	}
	return true
}

// Runner is implemented by modules that own a delivery loop (see eventbus.Emitter).
type Runner interface {
	Run(ctx context.Context) error
}

// Native command names.
const (
	CmdIDsAvailable                        = "idsAvailable"
	CmdInitNotificationOpenedHandlerParams = "initNotificationOpenedHandlerParams"
	CmdInitInAppMessageClickHandlerParams  = "initInAppMessageClickHandlerParams"
	CmdSetInAppMessageClickHandler         = "setInAppMessageClickHandler"

	CmdInit                                       = "init"
	CmdInitWithAppID                              = "initWithAppId"
	CmdRegisterForPushNotifications               = "registerForPushNotifications"
	CmdPromptForPushNotificationsWithUserResponse = "promptForPushNotificationsWithUserResponse"
	CmdRequestPermissions                         = "requestPermissions"
	CmdCheckPermissions                           = "checkPermissions"
	CmdPromptForPushNotificationPermissions       = "promptForPushNotificationPermissions"
	CmdGetPermissionSubscriptionState             = "getPermissionSubscriptionState"

	CmdSendTag   = "sendTag"
	CmdSendTags  = "sendTags"
	CmdGetTags   = "getTags"
	CmdDeleteTag = "deleteTag"

	CmdEnableVibrate = "enableVibrate"
	CmdEnableSound   = "enableSound"

	CmdSetEmail                = "setEmail"
	CmdSetUnauthenticatedEmail = "setUnauthenticatedEmail"
	CmdLogoutEmail             = "logoutEmail"
	CmdSyncHashedEmail         = "syncHashedEmail"

	CmdSetLocationShared = "setLocationShared"
	CmdPromptLocation    = "promptLocation"
	CmdSetSubscription   = "setSubscription"

	CmdInFocusDisplaying     = "inFocusDisplaying"
	CmdSetInFocusDisplayType = "setInFocusDisplayType"

	CmdPostNotification            = "postNotification"
	CmdClearOneSignalNotifications = "clearOneSignalNotifications"
	CmdCancelNotification          = "cancelNotification"

	CmdSetLogLevel                   = "setLogLevel"
	CmdSetRequiresUserPrivacyConsent = "setRequiresUserPrivacyConsent"
	CmdProvideUserConsent            = "provideUserConsent"
	CmdUserProvidedPrivacyConsent    = "userProvidedPrivacyConsent"

	CmdSetExternalUserID    = "setExternalUserId"
	CmdRemoveExternalUserID = "removeExternalUserId"

	CmdAddTriggers           = "addTriggers"
	CmdRemoveTriggersForKeys = "removeTriggersForKeys"
	CmdRemoveTriggerForKey   = "removeTriggerForKey"
	CmdGetTriggerValueForKey = "getTriggerValueForKey"
	CmdPauseInAppMessages    = "pauseInAppMessages"

	CmdSendOutcome          = "sendOutcome"
	CmdSendUniqueOutcome    = "sendUniqueOutcome"
	CmdSendOutcomeWithValue = "sendOutcomeWithValue"
)
