package broker

// NodeID identifies a peer endpoint. An Endpoint takes its own NodeID from
// its configuration at construction (see New); the peering handshake sends
// only a Filter, so NodeIDs are not exchanged between peers.
type NodeID string

// MessageKind tags whether a Message carries application Data or a store
// Command.
type MessageKind uint8

const (
	MessageData MessageKind = iota
	MessageCommand
)

// Message is either a DataMessage or a CommandMessage, published on a
// Topic and routed by the core the same way regardless of payload kind.
// visited carries the set of node ids the message has already traversed,
// so the router can deduplicate across peering cycles (§4.6).
type Message struct {
	kind    MessageKind
	topic   Topic
	data    Data
	command Command
	visited map[NodeID]struct{}
}

// NewDataMessage builds a DataMessage for topic t carrying data d.
func NewDataMessage(t Topic, d Data) Message {
	return Message{kind: MessageData, topic: t, data: d}
}

// NewCommandMessage builds a CommandMessage for topic t carrying command c.
func NewCommandMessage(t Topic, c Command) Message {
	return Message{kind: MessageCommand, topic: t, command: c}
}

func (m Message) Kind() MessageKind { return m.kind }
func (m Message) Topic() Topic      { return m.topic }

// Data returns the payload and true if this is a DataMessage.
func (m Message) Data() (Data, bool) {
	if m.kind != MessageData {
		return Data{}, false
	}
	return m.data, true
}

// Command returns the payload and true if this is a CommandMessage.
func (m Message) Command() (Command, bool) {
	if m.kind != MessageCommand {
		return Command{}, false
	}
	return m.command, true
}

// Visited reports whether node has already seen this message, for
// loop-prevention when forwarding between peers.
func (m Message) Visited(node NodeID) bool {
	_, ok := m.visited[node]
	return ok
}

// WithVisited returns a copy of m with node added to the visited set. The
// original message (and its visited set) is left untouched, since the
// router fans a single published message out to many peers and each
// forward must not leak visited-set mutations into siblings.
func (m Message) WithVisited(node NodeID) Message {
	cp := m
	cp.visited = make(map[NodeID]struct{}, len(m.visited)+1)
	for n := range m.visited {
		cp.visited[n] = struct{}{}
	}
	cp.visited[node] = struct{}{}
	return cp
}
