package platform

// Op names a platform-restricted operation.
type Op string

const (
	OpRegisterForPushNotifications               Op = "registerForPushNotifications"
	OpPromptForPushNotificationsWithUserResponse Op = "promptForPushNotificationsWithUserResponse"
	OpRequestPermissions                         Op = "requestPermissions"
	OpCheckPermissions                           Op = "checkPermissions"
	OpPromptForPushNotificationPermissions       Op = "promptForPushNotificationPermissions"

	OpEnableVibrate               Op = "enableVibrate"
	OpEnableSound                 Op = "enableSound"
	OpClearOneSignalNotifications Op = "clearOneSignalNotifications"
	OpCancelNotification          Op = "cancelNotification"
)

// policy is the fixed table of operations that exist on a single platform.
var policy = map[Op]OS{
	OpRegisterForPushNotifications:               IOS,
	OpPromptForPushNotificationsWithUserResponse: IOS,
	OpRequestPermissions:                         IOS,
	OpCheckPermissions:                           IOS,
	OpPromptForPushNotificationPermissions:       IOS,

	OpEnableVibrate:               Android,
	OpEnableSound:                 Android,
	OpClearOneSignalNotifications: Android,
	OpCancelNotification:          Android,
}

// Restricted returns the only platform op runs on, if it is restricted.
func Restricted(op Op) (OS, bool) {
	os, ok := policy[op]
	return os, ok
}

// RestrictedOps lists the restricted operations for os.
func RestrictedOps(os OS) []Op {
	out := make([]Op, 0, len(policy))
	for op, need := range policy {
		if need == os {
			out = append(out, op)
		}
	}
	return out
}
