package relay

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEventType = errors.New("relay only supports 'received', 'opened', 'ids', 'emailSubscription', and 'inAppMessageClicked' events")

// EventType is one of the five logical event kinds an application can listen to.
type EventType int

const (
	NotificationReceived EventType = iota + 1
	NotificationOpened
	IdsAvailable
	EmailSubscriptionChanged
	InAppMessageClicked
)

// Broadcast channel names as emitted by the native module.
const (
	ChannelNotificationReceived = "OneSignal-remoteNotificationReceived"
	ChannelNotificationOpened   = "OneSignal-remoteNotificationOpened"
	ChannelIdsAvailable         = "OneSignal-idsAvailable"
	ChannelEmailSubscription    = "OneSignal-emailSubscription"
	ChannelInAppMessageClicked  = "OneSignal-inAppMessageClicked"
)

type eventInfo struct {
	name    string
	channel string
}

// eventTable is the fixed 1:1 channel correspondence. Index by EventType.
var eventTable = [...]eventInfo{
	NotificationReceived:     {name: "received", channel: ChannelNotificationReceived},
	NotificationOpened:       {name: "opened", channel: ChannelNotificationOpened},
	IdsAvailable:             {name: "ids", channel: ChannelIdsAvailable},
	EmailSubscriptionChanged: {name: "emailSubscription", channel: ChannelEmailSubscription},
	InAppMessageClicked:      {name: "inAppMessageClicked", channel: ChannelInAppMessageClicked},
}

// EventTypes lists every valid type in declaration order.
func EventTypes() []EventType {
	return []EventType{
		NotificationReceived,
		NotificationOpened,
		IdsAvailable,
		EmailSubscriptionChanged,
		InAppMessageClicked,
	}
}

func (t EventType) Valid() bool {
	return t >= NotificationReceived && t <= InAppMessageClicked
}

func (t EventType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("EventType(%d)", int(t))
	}
	return eventTable[t].name
}

// Channel returns the broadcast channel for t ("" when t is invalid).
func (t EventType) Channel() string {
	if !t.Valid() {
		return ""
	}
	return eventTable[t].channel
}

// ParseEventType resolves a listener name ("received", "opened", ...).
func ParseEventType(name string) (EventType, error) {
	n := strings.TrimSpace(name)
	for _, t := range EventTypes() {
		if eventTable[t].name == n {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidEventType, name)
}

// EventTypeForChannel resolves a broadcast channel name.
func EventTypeForChannel(channel string) (EventType, bool) {
	for _, t := range EventTypes() {
		if eventTable[t].channel == channel {
			return t, true
		}
	}
	return 0, false
}

func validate(t EventType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: got %s", ErrInvalidEventType, t)
	}
	return nil
}
