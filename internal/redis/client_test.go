package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := NewClient(&Config{Address: mr.Addr()})
	require.NoError(t, err)

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.Error(t, err)
	})

	t.Run("sets default pool size", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		config := &Config{Address: mr.Addr()}
		client, err := NewClient(config)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 10, config.PoolSize)
		assert.NoError(t, client.Health())
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		_, err = NewClient(&Config{Address: addr})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})
}

func TestClient_PubSub(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	channel := "test:channel"

	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()

	// wait for the subscription to be established
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, channel, "plain"))
	require.NoError(t, client.Publish(ctx, channel, map[string]string{"type": "deploy"}))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "plain", msg.Payload)

	msg, err = pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"deploy"}`, msg.Payload)

	err = client.Publish(ctx, channel, make(chan int))
	assert.Contains(t, err.Error(), "failed to marshal message")
}

func TestClient_Hash(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	key := "test:hash"

	require.NoError(t, client.HSet(ctx, key, "orders", map[string]string{"context": "/orders"}))
	require.NoError(t, client.HSet(ctx, key, "raw", []byte("bytes")))

	all, err := client.HGetAll(ctx, key)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.JSONEq(t, `{"context":"/orders"}`, all["orders"])
	assert.Equal(t, "bytes", all["raw"])

	require.NoError(t, client.HDel(ctx, key, "raw"))
	all, err = client.HGetAll(ctx, key)
	require.NoError(t, err)
	assert.NotContains(t, all, "raw")

	err = client.HSet(ctx, key, "bad", make(chan int))
	assert.Contains(t, err.Error(), "failed to marshal value")

	mr.Close()
	assert.Error(t, client.Health())
}
