package push

import (
	"encoding/json"
	"strconv"

	"pushrelay/internal/sdk"
	logx "pushrelay/pkg/logx"
)

// ---- Tags ----

// SendTag stores one tag. Booleans are sent as "true"/"false".
func (c *Client) SendTag(key string, value any) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdSendTag, map[string]any{"key": key, "value": tagValue(value)})
}

// SendTags stores tags in one call. A nil map is sent as empty.
func (c *Client) SendTags(tags map[string]any) {
	if !c.Available() {
		return
	}
	out := make(map[string]any, len(tags))
	for k, v := range tags {
		out[k] = tagValue(v)
	}
	c.exec(sdk.CmdSendTags, map[string]any{"tags": out})
}

func (c *Client) GetTags() *sdk.Future[map[string]any] {
	if !c.Available() {
		return unavailable[map[string]any]()
	}
	return sdk.Map(c.query(sdk.CmdGetTags, nil), asMap)
}

func (c *Client) DeleteTag(key string) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdDeleteTag, map[string]any{"key": key})
}

func tagValue(v any) any {
	if b, ok := v.(bool); ok {
		return strconv.FormatBool(b)
	}
	return v
}

// ---- Email ----

// SetEmail links an email address. An empty authCode uses the unauthenticated
// variant. cb is optional and receives the native outcome.
func (c *Client) SetEmail(email, authCode string, cb func(err error)) {
	if !c.Available() {
		return
	}
	var f *sdk.Future[any]
	if authCode == "" {
		f = c.query(sdk.CmdSetUnauthenticatedEmail, map[string]any{"email": email})
	} else {
		f = c.query(sdk.CmdSetEmail, map[string]any{"email": email, "emailAuthCode": authCode})
	}
	if cb != nil {
		f.OnComplete(func(_ any, err error) { cb(err) })
	}
}

// LogoutEmail unlinks the email address. cb is mandatory.
func (c *Client) LogoutEmail(cb func(err error)) error {
	if !c.Available() {
		return nil
	}
	if cb == nil {
		return ErrInvalidArgument
	}
	c.query(sdk.CmdLogoutEmail, nil).OnComplete(func(_ any, err error) { cb(err) })
	return nil
}

func (c *Client) SyncHashedEmail(email string) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdSyncHashedEmail, map[string]any{"email": email})
}

// ---- Subscription, location, logging ----

func (c *Client) SetSubscription(enable bool) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdSetSubscription, map[string]any{"enable": enable})
}

func (c *Client) SetLocationShared(shared bool) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdSetLocationShared, map[string]any{"shared": shared})
}

func (c *Client) PromptLocation() {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdPromptLocation, nil)
}

func (c *Client) SetLogLevel(logLevel, visualLevel int) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdSetLogLevel, map[string]any{"logLevel": logLevel, "visualLevel": visualLevel})
}

// ---- Notifications ----

// PostNotification sends a notification to playerID. Android's native bridge
// takes the maps as JSON strings; iOS takes them as-is. A nil map is sent as
// nil on both platforms.
func (c *Client) PostNotification(contents, data map[string]any, playerID string, other map[string]any) {
	if !c.Available() {
		return
	}
	if c.gate.IsAndroid() {
		c.exec(sdk.CmdPostNotification, map[string]any{
			"contents":        c.jsonArg("contents", contents),
			"data":            c.jsonArg("data", data),
			"playerId":        playerID,
			"otherParameters": c.jsonArg("otherParameters", other),
		})
		return
	}
	c.exec(sdk.CmdPostNotification, map[string]any{
		"contents":        contents,
		"data":            data,
		"playerId":        playerID,
		"otherParameters": other,
	})
}

// jsonArg encodes v for the Android bridge. nil stays nil so the native side
// sees the argument as absent rather than the string "null".
func (c *Client) jsonArg(name string, v map[string]any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("postNotification argument not encodable; sending nil",
			logx.String("arg", name), logx.Err(err))
		return nil
	}
	return string(b)
}

// ---- Privacy ----

func (c *Client) SetRequiresUserPrivacyConsent(required bool) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdSetRequiresUserPrivacyConsent, map[string]any{"required": required})
}

func (c *Client) ProvideUserConsent(granted bool) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdProvideUserConsent, map[string]any{"granted": granted})
}

func (c *Client) UserProvidedPrivacyConsent() *sdk.Future[bool] {
	if !c.Available() {
		return unavailable[bool]()
	}
	return sdk.Map(c.query(sdk.CmdUserProvidedPrivacyConsent, nil), asBool)
}

func (c *Client) SetExternalUserID(id string) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdSetExternalUserID, map[string]any{"externalId": id})
}

func (c *Client) RemoveExternalUserID() {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdRemoveExternalUserID, nil)
}

// ---- In-app messaging ----

// AddTrigger is AddTriggers with a single entry.
func (c *Client) AddTrigger(key string, value any) {
	c.AddTriggers(map[string]any{key: value})
}

func (c *Client) AddTriggers(triggers map[string]any) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdAddTriggers, map[string]any{"triggers": triggers})
}

func (c *Client) RemoveTriggersForKeys(keys []string) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdRemoveTriggersForKeys, map[string]any{"keys": append([]string(nil), keys...)})
}

func (c *Client) RemoveTriggerForKey(key string) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdRemoveTriggerForKey, map[string]any{"key": key})
}

func (c *Client) GetTriggerValueForKey(key string) *sdk.Future[any] {
	if !c.Available() {
		return unavailable[any]()
	}
	return c.query(sdk.CmdGetTriggerValueForKey, map[string]any{"key": key})
}

func (c *Client) PauseInAppMessages(pause bool) {
	if !c.Available() {
		return
	}
	c.exec(sdk.CmdPauseInAppMessages, map[string]any{"pause": pause})
}

// ---- Outcomes ----

// OutcomeCallback receives the native outcome event (shape defined by the SDK).
type OutcomeCallback func(event any, err error)

func (c *Client) SendOutcome(name string, cb OutcomeCallback) {
	if !c.Available() {
		return
	}
	c.outcome(c.query(sdk.CmdSendOutcome, map[string]any{"name": name}), name, cb)
}

func (c *Client) SendUniqueOutcome(name string, cb OutcomeCallback) {
	if !c.Available() {
		return
	}
	c.outcome(c.query(sdk.CmdSendUniqueOutcome, map[string]any{"name": name}), name, cb)
}

func (c *Client) SendOutcomeWithValue(name string, value float64, cb OutcomeCallback) {
	if !c.Available() {
		return
	}
	c.outcome(c.query(sdk.CmdSendOutcomeWithValue, map[string]any{"name": name, "value": value}), name, cb)
}

func (c *Client) outcome(f *sdk.Future[any], name string, cb OutcomeCallback) {
	f.OnComplete(func(v any, err error) {
		if err != nil {
			c.log.Debug("outcome failed", logx.String("name", name), logx.Err(err))
		}
		if cb != nil {
			cb(v, err)
		}
	})
}
