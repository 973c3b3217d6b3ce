// Package smartrest implements the comma-separated SmartREST message format
// exchanged with the device-management endpoint over MQTT.
//
// A message is a message-id followed by zero or more fields:
//
//	100,dm-example-device-0001,c8y_dm_example_device
//	510,0001
//	500
//
// Inbound payloads are split on every comma with no quote handling.
// Outbound fields that contain a comma, a double quote or a line break are
// wrapped in double quotes (embedded quotes doubled) so the endpoint reads
// them as one field.
//
// The package also defines the message ids and topics the agent uses.
package smartrest
