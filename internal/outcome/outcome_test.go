package outcome

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	cause := errors.New("socket closed")
	tests := []struct {
		name string
		err  error
		want StatusCode
	}{
		{name: "nil", err: nil, want: OK},
		{name: "typed", err: NotFoundf("section %s not found", "RabbitMQ:x"), want: NotFound},
		{name: "wrapped typed", err: fmt.Errorf("publish: %w", Internal(cause, "channel closed")), want: InternalServerError},
		{name: "bad request", err: BadRequestf("empty"), want: BadRequest},
		{name: "untyped", err: cause, want: InternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestErrorUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Internal(cause, "connect %s", "RedisBroker")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connect RedisBroker: dial tcp: refused", err.Error())
}

func TestFromErrorHidesUntypedMessages(t *testing.T) {
	result := FromError(errors.New("pq: password authentication failed"))

	assert.False(t, result.IsSuccess)
	assert.Equal(t, InternalServerError, result.StatusCode)
	assert.Equal(t, "internal error", result.Message)
}

func TestResultWireShape(t *testing.T) {
	encoded, err := json.Marshal(FromError(NotFoundf("RabbitMQ:RedisBroker section not found")))
	require.NoError(t, err)

	assert.JSONEq(t, `{"isSuccess":false,"statusCode":404,"message":"RabbitMQ:RedisBroker section not found"}`, string(encoded))
}
