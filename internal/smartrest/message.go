package smartrest

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Message is one SmartREST message.
//
// ID is always present (possibly empty). Fields keep their order.
// A decoded Message is treated as immutable once handed to listeners.
type Message struct {
	Topic  string
	ID     string
	Fields []string
}

// New builds an outbound message on the upstream topic.
func New(id string, fields ...string) Message {
	return Message{Topic: TopicUpstream, ID: id, Fields: fields}
}

// NewOn builds an outbound message on a specific topic.
func NewOn(topic, id string, fields ...string) Message {
	return Message{Topic: topic, ID: id, Fields: fields}
}

// Decode parses a raw payload received on topic.
//
// The message-id is everything before the first comma and the fields are
// the remaining comma-separated parts. An empty payload yields ID "" and no
// fields.
//
// Returns:
//   - Message: The decoded message
//   - error: ErrDecode if the payload is not valid UTF-8
func Decode(topic string, payload []byte) (Message, error) {
	if !utf8.Valid(payload) {
		return Message{}, fmt.Errorf("%w: topic %s, %d bytes", ErrDecode, topic, len(payload))
	}

	parts := strings.Split(string(payload), ",")
	msg := Message{Topic: topic, ID: parts[0]}
	if len(parts) > 1 {
		msg.Fields = parts[1:]
	}
	return msg, nil
}

// Field returns the i-th field or "" when absent.
func (m Message) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return m.Fields[i]
}

// Payload renders the message as it is sent on the wire.
func (m Message) Payload() []byte {
	return []byte(m.String())
}

// String renders the message-id and fields joined by commas.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.ID)
	for _, f := range m.Fields {
		b.WriteByte(',')
		b.WriteString(quoteField(f))
	}
	return b.String()
}

func quoteField(f string) string {
	if !strings.ContainsAny(f, ",\"\r\n") {
		return f
	}
	return `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
}

// Measurement builds a 200 message for one custom measurement value.
func Measurement(fragment, series string, value float64, unit string) Message {
	return New(MsgMeasurement, fragment, series, strconv.FormatFloat(value, 'f', -1, 64), unit)
}

// Executing builds the 501 status message for an operation fragment.
func Executing(fragment string) Message {
	return New(MsgOperationExecuting, fragment)
}

// Failed builds the 502 status message for an operation fragment.
func Failed(fragment, reason string) Message {
	return New(MsgOperationFailed, fragment, reason)
}

// Successful builds the 503 status message for an operation fragment.
func Successful(fragment string, result ...string) Message {
	return New(MsgOperationSuccessful, append([]string{fragment}, result...)...)
}
