package storage

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dustline/internal/config"
)

func TestNewRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := &config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		MaxConnections: 4,
	}

	cache, err := NewRedisCache(testContext(t), cfg)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, cache.Close())
	}()

	assert.NoError(t, cache.Ping(testContext(t)))
	assert.NotNil(t, cache.Client())
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cfg := &config.RedisConfig{Host: mr.Host(), Port: mr.Port()}
	mr.Close()

	_, err = NewRedisCache(testContext(t), cfg)
	assert.Error(t, err)
}
