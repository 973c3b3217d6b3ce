// Package mqtt provides the broker connection used by the device session.
//
// This package manages:
//   - One paho.mqtt.golang client per connection attempt
//   - TLS in two exclusive modes: server-authenticated TLS with
//     username/password, or mutual TLS with a client certificate
//   - Publishing with or without waiting for acknowledgement
//   - Subscription tracking and restoration after automatic reconnects
//   - Bridging paho's internal log output into the structured logger
//
// # Failure kinds
//
// Connect distinguishes two failure kinds:
//
//   - ErrConnectionFailed: the broker was not reached (dial, TLS, timeout).
//     The caller retries after a delay.
//   - ErrConnectionRefused (*RefusedError): the broker answered CONNECT with
//     a non-zero return code. The caller restarts its whole run sequence.
//
// A connection that drops after being established is re-established by paho
// on the same Client; OnConnectionLost and OnConnect report both edges.
//
// # Security Considerations
//
//   - TLS 1.2 is the minimum protocol version
//   - In mutual TLS mode no username or password is sent
//   - InsecureSkipVerify only applies to mutual TLS and is off by default
//
// # Usage
//
//	client, err := mqtt.New(mqtt.Options{
//	    Connection: cfg.Connection(),
//	    ClientID:   identity.Serial,
//	    Username:   creds.MQTTUsername(),
//	    Password:   creds.Password,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	client.Publish("s/us", []byte("100,dm-example-device-0001,c8y_dm_example_device"), 2, false)
package mqtt
