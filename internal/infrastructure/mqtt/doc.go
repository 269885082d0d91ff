// Package mqtt provides the broker client used by the bridge.
//
// This package manages:
//   - Connection to the broker with a fixed client id
//   - Last Will and Testament (LWT) so the broker announces an unexpected exit
//   - Fire-and-forget publishing and subscriptions
//   - Connection health monitoring
//
// # Reconnection
//
// Automatic reconnection in paho is disabled. The bridge controller owns the
// reconnect schedule and replays its subscriptions after every connect, so
// this client does not track subscriptions.
//
// # Usage
//
//	client := mqtt.NewClient(cfg.MQTT, mqtt.Identity{
//	    ClientID:    id,
//	    WillTopic:   "clients/" + id,
//	    WillPayload: "Adios!",
//	})
//	client.SetOnConnect(func() { ... })
//	if err := client.Connect(); err != nil {
//	    // retry later
//	}
//	defer client.Disconnect()
package mqtt
