package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderCompleted struct {
	OrderID string `json:"order_id"`
}

func TestRegisterJSONDecodesTypedValue(t *testing.T) {
	reg := NewDecoderRegistry()
	RegisterJSON[orderCompleted](reg, "order_completed", 1)

	out, err := reg.Decode("order_completed", 1, json.RawMessage(`{"order_id":"42"}`))
	require.NoError(t, err)
	assert.Equal(t, orderCompleted{OrderID: "42"}, out)

	_, err = reg.Decode("order_completed", 1, json.RawMessage(`{"order_id":`))
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestDecodeUnknownVersionIsNonRetryable(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register("order_completed", 1, func(json.RawMessage) (any, error) { return nil, nil })

	_, err := reg.Decode("order_completed", 2, json.RawMessage(`{}`))
	var nonRetry NonRetryableError
	require.True(t, errors.As(err, &nonRetry))
	assert.Contains(t, err.Error(), "order_completed@v2")
}

func TestRegisterReplaces(t *testing.T) {
	reg := NewDecoderRegistry()
	reg.Register("x", 1, func(json.RawMessage) (any, error) { return "old", nil })
	reg.Register("x", 1, func(json.RawMessage) (any, error) { return "new", nil })
	out, err := reg.Decode("x", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", out)
}
