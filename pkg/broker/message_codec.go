package broker

import "github.com/vmihailenco/msgpack/v5"

var _ msgpack.CustomEncoder = Message{}
var _ msgpack.CustomDecoder = (*Message)(nil)

// EncodeMsgpack/DecodeMsgpack let a Message cross the wire between peers
// (transport.connLink frames a Message through msgpack.Marshal/Unmarshal),
// encoding the visited set as an unsorted slice of NodeID rather than a map
// since msgpack has no native map-with-struct-key-set shape and ordering
// doesn't matter for the loop-prevention check on the receiving end.
func (m Message) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeUint8(uint8(m.kind)); err != nil {
		return err
	}
	if err := enc.EncodeString(string(m.topic)); err != nil {
		return err
	}
	if err := enc.Encode(m.data); err != nil {
		return err
	}
	if err := enc.Encode(m.command); err != nil {
		return err
	}
	visited := make([]string, 0, len(m.visited))
	for n := range m.visited {
		visited = append(visited, string(n))
	}
	return enc.Encode(visited)
}

func (m *Message) DecodeMsgpack(dec *msgpack.Decoder) error {
	kind, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	m.kind = MessageKind(kind)
	topic, err := dec.DecodeString()
	if err != nil {
		return err
	}
	m.topic = Topic(topic)
	if err := dec.Decode(&m.data); err != nil {
		return err
	}
	if err := dec.Decode(&m.command); err != nil {
		return err
	}
	var visited []string
	if err := dec.Decode(&visited); err != nil {
		return err
	}
	if len(visited) > 0 {
		m.visited = make(map[NodeID]struct{}, len(visited))
		for _, n := range visited {
			m.visited[NodeID(n)] = struct{}{}
		}
	}
	return nil
}
