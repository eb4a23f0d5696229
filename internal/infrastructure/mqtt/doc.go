// Package mqtt provides MQTT client connectivity used by the bridge's MQTT
// Endpoint Worker.
//
// This package manages:
//   - Connection to a broker with auto-reconnect and capped exponential backoff
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored automatically on
//     reconnect
//   - Connection health monitoring
//
// One Client corresponds to one configured MQTT endpoint. The bridge
// supervisor creates one Client per enabled MQTT endpoint; there is no
// process-wide singleton.
//
// # Usage
//
//	client, err := mqtt.Connect(mqtt.ConnConfig{
//	    Host: "localhost", Port: 1883, ClientID: "bridge-mqtt-1",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("sensors/+/t", 1, func(topic string, payload []byte) error {
//	    log.Printf("received: %s = %s", topic, payload)
//	    return nil
//	})
//
//	client.Publish("bridged/a/b", []byte("payload"), 1, false)
package mqtt
