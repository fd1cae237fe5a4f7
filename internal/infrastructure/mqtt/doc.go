// Package mqtt wraps the paho client with the behaviour the bridge
// needs: a blocking Connect with automatic reconnection, subscription
// replay after every reconnect, and a retained availability contract
// on the bridge topic (online on connect, offline via last will or
// graceful Close).
//
// Handlers registered through Subscribe run on paho's goroutines
// wrapped in panic containment, so a malformed payload cannot take
// down message delivery. Outbound payloads are capped at 1 MiB to stay
// within common broker limits.
//
// The Topics type builds every topic the bridge publishes or
// subscribes to, covering the bridge's own tree (state, availability,
// commands, scene recall) and Home Assistant discovery under the
// configured prefix:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllDeviceCommands(), 1, handleCommand)
//	...
//	client.PublishRetained(client.Topics().DeviceState("c7f2a91e"), payload)
//
// Production deployments set cfg.Broker.TLS and broker credentials;
// anonymous plaintext is for local development against the compose
// broker only.
package mqtt
