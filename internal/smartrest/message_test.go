package smartrest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantID     string
		wantFields []string
	}{
		{name: "empty payload", payload: "", wantID: "", wantFields: nil},
		{name: "id only", payload: "500", wantID: "500", wantFields: nil},
		{name: "token", payload: "71,abc123", wantID: "71", wantFields: []string{"abc123"}},
		{name: "operation", payload: "511,serial-1,ls -la", wantID: "511", wantFields: []string{"serial-1", "ls -la"}},
		{name: "empty fields kept", payload: "503,,x,", wantID: "503", wantFields: []string{"", "x", ""}},
		{name: "trailing comma", payload: "510,", wantID: "510", wantFields: []string{""}},
		{name: "no quote handling inbound", payload: `513,s,"a,b"`, wantID: "513", wantFields: []string{"s", `"a`, `b"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(TopicDownstream, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, TopicDownstream, msg.Topic)
			assert.Equal(t, tt.wantID, msg.ID)
			assert.Equal(t, tt.wantFields, msg.Fields)
		})
	}
}

func TestDecode_InvalidUTF8(t *testing.T) {
	_, err := Decode(TopicDownstream, []byte{0xff, 0xfe, ','})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestMessage_String(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{name: "id only", msg: New("500"), want: "500"},
		{name: "fields", msg: New("100", "dm-example-device-0001", "c8y_dm_example_device"), want: "100,dm-example-device-0001,c8y_dm_example_device"},
		{name: "empty field", msg: New("503", "c8y_Command", ""), want: "503,c8y_Command,"},
		{name: "comma is quoted", msg: New("113", "a=1,b=2"), want: `113,"a=1,b=2"`},
		{name: "quote is doubled", msg: New("503", "c8y_Command", `say "hi"`), want: `503,c8y_Command,"say ""hi"""`},
		{name: "newline is quoted", msg: New("113", "a=1\nb=2"), want: "113,\"a=1\nb=2\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.String())
			assert.Equal(t, []byte(tt.want), tt.msg.Payload())
		})
	}
}

func TestMessage_Field(t *testing.T) {
	msg := New("511", "serial-1", "uptime")

	assert.Equal(t, "serial-1", msg.Field(0))
	assert.Equal(t, "uptime", msg.Field(1))
	assert.Equal(t, "", msg.Field(2))
	assert.Equal(t, "", msg.Field(-1))
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, "200,c8y_MemoryMeasurement,used,42.5,%", Measurement("c8y_MemoryMeasurement", "used", 42.5, "%").String())
	assert.Equal(t, "501,c8y_Restart", Executing("c8y_Restart").String())
	assert.Equal(t, "502,c8y_Command,exit status 1", Failed("c8y_Command", "exit status 1").String())
	assert.Equal(t, "503,c8y_Restart", Successful("c8y_Restart").String())
	assert.Equal(t, "503,c8y_Command,ok", Successful("c8y_Command", "ok").String())

	refresh := NewOn(TopicTokenRefresh, "")
	assert.Equal(t, TopicTokenRefresh, refresh.Topic)
	assert.Empty(t, refresh.Payload())
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	assert.Equal(t, "s/dc/c8y_Template", topics.CustomDownstream("c8y_Template"))
	assert.Equal(t, []string{"s/e", "s/ds"}, topics.Subscriptions(nil))
	assert.Equal(t,
		[]string{"s/e", "s/ds", "s/dc/a", "s/dc/b"},
		topics.Subscriptions([]string{"a", "b"}))
}
