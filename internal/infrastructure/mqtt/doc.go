// Package mqtt publishes session lifecycle events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - JSON event publishing with the configured QoS
//   - A retained online/offline status topic, with Last Will and Testament
//     for crash detection
//
// Topics:
//
//	<prefix>/system/status        retained online/offline status
//	<prefix>/auth/events/<kind>   login_succeeded, logout_all, ...
//
// Event payloads never contain passwords, access tokens or refresh tokens.
//
// # Security Considerations
//
//   - Enable TLS for production deployments (cfg.Broker.TLS=true)
//   - Broker ACLs should restrict who can subscribe to auth events
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().AuthEvent("logout"), evt)
package mqtt
