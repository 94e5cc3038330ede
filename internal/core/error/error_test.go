package errx

import (
	"errors"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapRedis(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.Nil(t, WrapRedis(nil))
	})

	t.Run("missing key maps to not found", func(t *testing.T) {
		err := WrapRedis(redis.Nil)
		require.NotNil(t, err)
		assert.Equal(t, http.StatusNotFound, err.Status)
		assert.True(t, NotFound(err))
		assert.ErrorIs(t, err, redis.Nil)
	})

	t.Run("other failures map to bad gateway", func(t *testing.T) {
		err := WrapRedis(errors.New("connection refused"))
		require.NotNil(t, err)
		assert.Equal(t, http.StatusBadGateway, err.Status)
		assert.False(t, NotFound(err))
	})
}

func TestError_Chain(t *testing.T) {
	base := errors.New("boom")
	err := New(base, http.StatusInternalServerError, SystemErrorMessage)

	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), SystemErrorMessage)
	assert.Contains(t, err.Error(), "boom")

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusInternalServerError, e.Status)
}
