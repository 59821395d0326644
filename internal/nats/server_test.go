package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedServerStartStop(t *testing.T) {
	srv, err := NewEmbeddedServer(EmbeddedServerConfig{Port: 14222})
	require.NoError(t, err)
	require.False(t, srv.IsRunning())

	require.NoError(t, srv.Start())
	require.True(t, srv.IsRunning())
	require.Equal(t, "nats://127.0.0.1:14222", srv.URL())

	err = srv.Start()
	require.Error(t, err, "starting an already-running server should fail")

	srv.Shutdown()
	require.False(t, srv.IsRunning())
}

func TestClientPublishSubscribe(t *testing.T) {
	srv, err := NewEmbeddedServer(EmbeddedServerConfig{Port: 14223})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Shutdown()

	client, err := NewClient(srv.URL(), nil)
	require.NoError(t, err)
	defer client.Close()
	require.True(t, client.IsConnected())

	received := make(chan *Message, 1)
	sub, err := client.Subscribe("orchestrator.test", func(m *Message) {
		received <- m
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, client.Publish("orchestrator.test", []byte("payload")))
	require.NoError(t, client.Flush())

	select {
	case m := <-received:
		require.Equal(t, "orchestrator.test", m.Subject)
		require.Equal(t, "payload", string(m.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive published message in time")
	}
}
