package events

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope("booking.confirmed", map[string]string{"booking_id": "bk_1"})

	assert.Equal(t, "booking.confirmed", env.Type)
	assert.False(t, env.OccurredAt.IsZero())

	body, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"booking.confirmed"`)
	assert.Contains(t, string(body), `"booking_id":"bk_1"`)
}

func TestNewPublisher_InvalidURL(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	publisher, err := NewPublisher("not-a-broker-url", "", logger)
	assert.Nil(t, publisher)
	assert.Error(t, err)
}
