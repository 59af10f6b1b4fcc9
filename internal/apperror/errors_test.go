package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsKeepsKindThroughWrapping(t *testing.T) {
	base := NewNotFound("studio %q not found", "s1")
	wrapped := fmt.Errorf("load studio: %w", base)

	got := As(wrapped)
	assert.Equal(t, KindNotFound, got.Kind)
	assert.Equal(t, `studio "s1" not found`, got.Message)
	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, Is(wrapped, KindValidation))
}

func TestAsWrapsPlainErrors(t *testing.T) {
	raw := errors.New("pq: relation does not exist")

	got := As(raw)
	assert.Equal(t, KindInternal, got.Kind)
	assert.NotContains(t, got.Message, "pq")
	assert.ErrorIs(t, got, raw)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
