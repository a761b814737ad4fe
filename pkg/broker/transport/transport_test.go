package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/core"
)

func TestConnLinkFramesMessagesAndFilters(t *testing.T) {
	server, err := New(Config{DisableSSL: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const addr = "127.0.0.1:18372"
	accepted, err := server.Listen(ctx, addr)
	require.NoError(t, err)

	client, err := New(Config{DisableSSL: true})
	require.NoError(t, err)

	clientLink, err := client.Dial(context.Background(), "peer", broker.NetworkInfo{Address: "127.0.0.1", Port: 18372})
	require.NoError(t, err)
	defer clientLink.Close()

	var serverLink core.PeerLink
	select {
	case serverLink = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
	}
	defer serverLink.Close()

	require.NoError(t, clientLink.SendFilter(broker.Filter{"/events"}))
	select {
	case f := <-serverLink.Filters():
		assert.Equal(t, broker.Filter{"/events"}, f)
	case <-time.After(time.Second):
		t.Fatal("server never received the filter")
	}

	msg := broker.NewDataMessage("/events/conn", broker.NewCount(9))
	require.NoError(t, clientLink.Send(msg))
	select {
	case got := <-serverLink.Incoming():
		assert.Equal(t, broker.Topic("/events/conn"), got.Topic())
		count, ok := func() (uint64, bool) {
			d, ok := got.Data()
			if !ok {
				return 0, false
			}
			return d.AsCount()
		}()
		require.True(t, ok)
		assert.EqualValues(t, 9, count)
	case <-time.After(time.Second):
		t.Fatal("server never received the message")
	}
}
