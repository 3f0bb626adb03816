package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unresolved", fmt.Errorf("resolve: %w", ErrUnresolvedTarget), http.StatusNotFound},
		{"session", ErrSessionNotFound, http.StatusNotFound},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"limit", ErrSessionLimit, http.StatusTooManyRequests},
		{"shard", fmt.Errorf("x: %w", ErrShardLoad), http.StatusServiceUnavailable},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "limit %d", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: limit -1", err.Error())
}
