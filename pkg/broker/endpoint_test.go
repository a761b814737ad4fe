package broker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/store"
)

func newTestEndpoint(t *testing.T) *broker.Endpoint {
	t.Helper()
	e, err := broker.New(broker.EndpointConfig{
		Self: broker.NodeID("node-" + t.Name()),
		Options: broker.Options{
			UseRealTime:     true,
			FrontendTimeout: 200 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(e.Shutdown)
	return e
}

func TestEndpointPublishDeliversToLocalSubscriber(t *testing.T) {
	e := newTestEndpoint(t)
	topic := broker.NewTopic("a", "b")
	sub := e.MakeSubscriber(broker.Filter{topic}, 4)
	defer sub.Unsubscribe()

	require.NoError(t, e.Publish(topic, broker.NewCount(7)))

	select {
	case msg := <-sub.Messages():
		d, ok := msg.Data()
		require.True(t, ok)
		assert.Equal(t, broker.NewCount(7), d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestEndpointPublisherBoundToTopic(t *testing.T) {
	e := newTestEndpoint(t)
	topic := broker.NewTopic("x")
	sub := e.MakeSubscriber(broker.Filter{topic}, 4)
	defer sub.Unsubscribe()

	pub := e.MakePublisher(topic)
	require.NoError(t, pub.Publish(broker.NewString("hello")))

	select {
	case msg := <-sub.Messages():
		d, ok := msg.Data()
		require.True(t, ok)
		assert.Equal(t, broker.NewString("hello"), d)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestEndpointStatusSubscriberReceivesPeerEvents(t *testing.T) {
	e := newTestEndpoint(t)
	statusSub := e.MakeStatusSubscriber(8)

	// No Dial was configured for this endpoint, so the peering attempt
	// fails immediately and surfaces as unreachable rather than added.
	e.PeerNosync(broker.NetworkInfo{Address: "127.0.0.1", Port: 0})

	select {
	case ev := <-statusSub.Events():
		assert.Equal(t, broker.StatusPeerUnreachable, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status event")
	}
}

func TestEndpointAttachMasterAndCloneReplicateOverPubsub(t *testing.T) {
	e := newTestEndpoint(t)

	masterBackend := store.NewMemoryBackend(e.Clock().Now)
	master := e.AttachMaster("kv", masterBackend)

	cloneBackend := store.NewMemoryBackend(e.Clock().Now)
	clone := e.AttachClone("kv", cloneBackend)

	key := broker.NewString("k")
	val := broker.NewString("v")
	_, err := master.Submit(broker.NewPut(key, val, nil))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := clone.Backend().Get(key)
		return err == nil && got.Equal(val)
	}, 2*time.Second, 10*time.Millisecond)
}

// TestEndpointAttachMasterAndCloneConvergeOverPubsub drives the full
// put/put/add/erase convergence sequence over the master/clone pubsub
// wiring: k1 ends at 3 (put 1, add 2), k2 is put then erased, so the clone
// ends with exactly one live key.
func TestEndpointAttachMasterAndCloneConvergeOverPubsub(t *testing.T) {
	e := newTestEndpoint(t)

	masterBackend := store.NewMemoryBackend(e.Clock().Now)
	master := e.AttachMaster("kv", masterBackend)

	cloneBackend := store.NewMemoryBackend(e.Clock().Now)
	clone := e.AttachClone("kv", cloneBackend)

	k1 := broker.NewString("k1")
	k2 := broker.NewString("k2")

	_, err := master.Submit(broker.NewPut(k1, broker.NewCount(1), nil))
	require.NoError(t, err)
	_, err = master.Submit(broker.NewPut(k2, broker.NewCount(99), nil))
	require.NoError(t, err)
	_, err = master.Submit(broker.NewAdd(k1, broker.NewCount(2), nil))
	require.NoError(t, err)
	_, err = master.Submit(broker.NewErase(k2))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := clone.Backend().Get(k1)
		if err != nil || !got.Equal(broker.NewCount(3)) {
			return false
		}
		exists, err := clone.Backend().Exists(k2)
		if err != nil || exists {
			return false
		}
		size, err := clone.Backend().Size()
		return err == nil && size == 1
	}, 2*time.Second, 10*time.Millisecond)
}
