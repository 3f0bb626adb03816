package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchEvent struct {
	Query  string `json:"query"`
	Groups int    `json:"groups"`
}

func TestDecodeJSON(t *testing.T) {
	ev, err := DecodeJSON[searchEvent]([]byte(`{"query":"imu","groups":3}`))
	require.NoError(t, err)
	assert.Equal(t, searchEvent{Query: "imu", Groups: 3}, ev)

	_, err = DecodeJSON[searchEvent]([]byte(`{"query":`))
	assert.Error(t, err)
}

func TestEncodeMessagesSkipsBadValues(t *testing.T) {
	messages, skipped := encodeMessages([]Event{
		{Key: "s1", Value: searchEvent{Query: "imu", Groups: 1}},
		{Key: "s2", Value: make(chan int)},
		{Key: "s1", Value: searchEvent{Query: "imu_", Groups: 0}},
	})
	assert.Equal(t, 1, skipped)
	require.Len(t, messages, 2)
	assert.Equal(t, "s1", string(messages[0].Key))
	assert.JSONEq(t, `{"query":"imu","groups":1}`, string(messages[0].Value))
	assert.JSONEq(t, `{"query":"imu_","groups":0}`, string(messages[1].Value))
}
