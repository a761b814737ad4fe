package core

import (
	"context"
	"fmt"

	"github.com/jabolina/broker/pkg/broker"
)

// Resolver resolves a NetworkInfo to a peer handle. The Endpoint installs a
// ReltResolver when a discovery group is configured and no Resolver
// otherwise; no Resolver in this module dials through the transport. Tests
// substitute an in-memory function.
type Resolver func(ctx context.Context, info broker.NetworkInfo) (broker.NodeID, error)

// FetchReply is the result of a Fetch resolution.
type FetchReply struct {
	Key    broker.NetworkInfo
	Handle broker.NodeID
	Err    error
}

// NetworkCache is the bidirectional handle<->NetworkInfo table of §4.2.
// It is only ever touched from its owning Router's goroutine (single
// writer); Fetch's asynchronous resolution runs on a helper goroutine and
// reports its result over Completions() instead of mutating the cache
// directly, so the cache itself never needs a mutex. Grounded on
// src/detail/network_cache.cc's find/add/fetch shape, adapted to Go's
// channel-based request/response instead of CAF response promises.
type NetworkCache struct {
	resolve Resolver

	byHandle map[broker.NodeID]broker.NetworkInfo
	byInfo   map[networkKey]broker.NodeID

	inflight map[networkKey][]chan FetchReply

	completions chan FetchReply
}

type networkKey struct {
	address string
	port    uint16
}

func keyOf(info broker.NetworkInfo) networkKey {
	return networkKey{address: info.Address, port: info.Port}
}

func (k networkKey) String() string {
	return fmt.Sprintf("%s:%d", k.address, k.port)
}

// NewNetworkCache builds an empty cache. resolve may be nil; Fetch will
// then only ever succeed for already-cached entries.
func NewNetworkCache(resolve Resolver) *NetworkCache {
	return &NetworkCache{
		resolve:     resolve,
		byHandle:    make(map[broker.NodeID]broker.NetworkInfo),
		byInfo:      make(map[networkKey]broker.NodeID),
		inflight:    make(map[networkKey][]chan FetchReply),
		completions: make(chan FetchReply, 64),
	}
}

// Add inserts (handle, info) into both directions of the cache.
func (c *NetworkCache) Add(handle broker.NodeID, info broker.NetworkInfo) {
	c.byHandle[handle] = info
	c.byInfo[keyOf(info)] = handle
}

// Remove deletes handle (and its NetworkInfo) from both directions.
func (c *NetworkCache) Remove(handle broker.NodeID) {
	info, ok := c.byHandle[handle]
	if !ok {
		return
	}
	delete(c.byHandle, handle)
	delete(c.byInfo, keyOf(info))
}

// FindByHandle returns the NetworkInfo cached for handle, if any.
func (c *NetworkCache) FindByHandle(handle broker.NodeID) (broker.NetworkInfo, bool) {
	info, ok := c.byHandle[handle]
	return info, ok
}

// FindByInfo returns the handle cached for info, if any.
func (c *NetworkCache) FindByInfo(info broker.NetworkInfo) (broker.NodeID, bool) {
	handle, ok := c.byInfo[keyOf(info)]
	return handle, ok
}

// Fetch resolves info to a handle: immediately on the returned channel if
// cached, otherwise by calling Resolver on a helper goroutine whose
// result arrives later on Completions(). Concurrent Fetch calls for the
// same info share one in-flight resolution.
func (c *NetworkCache) Fetch(ctx context.Context, info broker.NetworkInfo) <-chan FetchReply {
	reply := make(chan FetchReply, 1)
	if handle, ok := c.FindByInfo(info); ok {
		reply <- FetchReply{Key: info, Handle: handle}
		return reply
	}

	key := keyOf(info)
	c.inflight[key] = append(c.inflight[key], reply)
	if len(c.inflight[key]) > 1 {
		// A resolution for this info is already running.
		return reply
	}

	if c.resolve == nil {
		c.deliver(info, "", broker.ErrPeerUnavailable)
		return reply
	}

	go func() {
		handle, err := c.resolve(ctx, info)
		c.completions <- FetchReply{Key: info, Handle: handle, Err: err}
	}()
	return reply
}

// Completions is the channel of resolver results; the owning Router's
// select loop reads from it alongside its mailbox and calls Complete for
// each, keeping cache mutation single-threaded.
func (c *NetworkCache) Completions() <-chan FetchReply {
	return c.completions
}

// Complete applies a resolver result: caching it on success, then waking
// every Fetch call waiting on the same NetworkInfo.
func (c *NetworkCache) Complete(result FetchReply) {
	if result.Err == nil {
		c.Add(result.Handle, result.Key)
	}
	c.deliver(result.Key, result.Handle, result.Err)
}

func (c *NetworkCache) deliver(info broker.NetworkInfo, handle broker.NodeID, err error) {
	key := keyOf(info)
	waiters := c.inflight[key]
	delete(c.inflight, key)
	for _, w := range waiters {
		w <- FetchReply{Key: info, Handle: handle, Err: err}
	}
}
