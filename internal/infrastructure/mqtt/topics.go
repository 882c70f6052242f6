package mqtt

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "servicedesk"

// Topics builds the MQTT topics this service publishes on.
//
//	topics := mqtt.Topics{Prefix: "servicedesk"}
//	topics.AuthEvent("login_failed")
//	// Returns: "servicedesk/auth/events/login_failed"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
//
// Example: servicedesk/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AuthEvent is the topic for one kind of session lifecycle event.
//
// Example: servicedesk/auth/events/logout_all
func (t Topics) AuthEvent(kind string) string {
	return t.prefix() + "/auth/events/" + kind
}

// AllAuthEvents matches every session lifecycle event topic.
//
// Example: servicedesk/auth/events/#
func (t Topics) AllAuthEvents() string {
	return t.prefix() + "/auth/events/#"
}
