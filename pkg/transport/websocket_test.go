package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocket(t *testing.T) {
	listener, err := ListenWebsocket("127.0.0.1:0", "")
	require.NoError(t, err)
	defer listener.Close()

	assert.Contains(t, listener.URL(), DefaultWebsocketPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := DialWebsocket(ctx, listener.URL())
	require.NoError(t, err)
	defer client.Close()

	server, err := listener.Accept(ctx)
	require.NoError(t, err)
	defer server.Close()

	t.Run("client to server", func(t *testing.T) {
		_, err := client.Write([]byte{0xFF, 0xFF, 0x01})
		require.NoError(t, err)
		_, err = client.Write([]byte{0x02, 0x01, 0xFB})
		require.NoError(t, err)

		assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}, readWithTimeout(t, server, 6))
	})

	t.Run("server to client", func(t *testing.T) {
		_, err := server.Write([]byte{1, 2, 3, 4})
		require.NoError(t, err)

		assert.Equal(t, []byte{1, 2}, readWithTimeout(t, client, 2))
		assert.Equal(t, []byte{3, 4}, readWithTimeout(t, client, 2))
	})

	t.Run("peer close ends reads", func(t *testing.T) {
		require.NoError(t, client.Close())

		_, err := server.Read(make([]byte, 1))
		assert.True(t, errors.Is(err, ErrClosed))
	})
}

func TestWebsocketListener_AcceptHonorsContext(t *testing.T) {
	listener, err := ListenWebsocket("127.0.0.1:0", "/servos")
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = listener.Accept(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
