package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jabolina/broker/pkg/broker"
)

func TestNetworkCacheAddFindRemove(t *testing.T) {
	c := NewNetworkCache(nil)
	info := broker.NetworkInfo{Address: "10.0.0.1", Port: 9999}
	c.Add("node-a", info)

	got, ok := c.FindByHandle("node-a")
	require.True(t, ok)
	assert.Equal(t, info, got)

	handle, ok := c.FindByInfo(info)
	require.True(t, ok)
	assert.Equal(t, broker.NodeID("node-a"), handle)

	c.Remove("node-a")
	_, ok = c.FindByHandle("node-a")
	assert.False(t, ok)
	_, ok = c.FindByInfo(info)
	assert.False(t, ok)
}

func TestNetworkCacheFetchImmediateOnCached(t *testing.T) {
	c := NewNetworkCache(nil)
	info := broker.NetworkInfo{Address: "10.0.0.2", Port: 1}
	c.Add("node-b", info)

	reply := <-c.Fetch(context.Background(), info)
	require.NoError(t, reply.Err)
	assert.Equal(t, broker.NodeID("node-b"), reply.Handle)
}

func TestNetworkCacheFetchResolvesAsynchronously(t *testing.T) {
	resolved := make(chan struct{})
	resolve := func(ctx context.Context, info broker.NetworkInfo) (broker.NodeID, error) {
		<-resolved
		return "node-c", nil
	}
	c := NewNetworkCache(resolve)
	info := broker.NetworkInfo{Address: "10.0.0.3", Port: 2}

	fetch := c.Fetch(context.Background(), info)
	close(resolved)

	select {
	case comp := <-c.Completions():
		c.Complete(comp)
	case <-time.After(time.Second):
		t.Fatal("resolver never reported a completion")
	}

	select {
	case reply := <-fetch:
		require.NoError(t, reply.Err)
		assert.Equal(t, broker.NodeID("node-c"), reply.Handle)
	default:
		t.Fatal("fetch channel has no reply after Complete")
	}

	handle, ok := c.FindByInfo(info)
	require.True(t, ok)
	assert.Equal(t, broker.NodeID("node-c"), handle)
}

func TestNetworkCacheFetchSharesInFlightResolution(t *testing.T) {
	var calls int
	release := make(chan struct{})
	resolve := func(ctx context.Context, info broker.NetworkInfo) (broker.NodeID, error) {
		calls++
		<-release
		return "node-d", nil
	}
	c := NewNetworkCache(resolve)
	info := broker.NetworkInfo{Address: "10.0.0.4", Port: 3}

	first := c.Fetch(context.Background(), info)
	second := c.Fetch(context.Background(), info)
	close(release)

	comp := <-c.Completions()
	c.Complete(comp)

	r1 := <-first
	r2 := <-second
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.Equal(t, 1, calls)
}

func TestNetworkCacheFetchWithNilResolverFails(t *testing.T) {
	c := NewNetworkCache(nil)
	info := broker.NetworkInfo{Address: "10.0.0.5", Port: 4}

	reply := <-c.Fetch(context.Background(), info)
	assert.ErrorIs(t, reply.Err, broker.ErrPeerUnavailable)
}
