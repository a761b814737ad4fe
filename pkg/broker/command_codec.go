package broker

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var _ msgpack.CustomEncoder = Command{}
var _ msgpack.CustomDecoder = (*Command)(nil)
var _ msgpack.CustomEncoder = StoreState{}
var _ msgpack.CustomDecoder = (*StoreState)(nil)

// EncodeCommandBytes and DecodeCommandBytes round-trip a Command through
// msgpack as a standalone byte blob, the Command analogue of
// EncodeDataBytes/DecodeDataBytes, used by the recording writer/reader.
func EncodeCommandBytes(c Command) ([]byte, error) {
	return msgpack.Marshal(c)
}

func DecodeCommandBytes(b []byte) (Command, error) {
	var c Command
	if err := msgpack.Unmarshal(b, &c); err != nil {
		return Command{}, err
	}
	return c, nil
}

func (c Command) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeUint8(uint8(c.Kind)); err != nil {
		return err
	}
	if err := enc.Encode(c.Key); err != nil {
		return err
	}
	if err := enc.Encode(c.Value); err != nil {
		return err
	}
	if c.Expiry == nil {
		if err := enc.EncodeBool(false); err != nil {
			return err
		}
	} else {
		if err := enc.EncodeBool(true); err != nil {
			return err
		}
		if err := enc.EncodeTime(*c.Expiry); err != nil {
			return err
		}
	}
	if err := enc.Encode(c.State); err != nil {
		return err
	}
	return enc.EncodeUint64(c.SequenceNumber)
}

func (c *Command) DecodeMsgpack(dec *msgpack.Decoder) error {
	kind, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	c.Kind = CommandKind(kind)
	if err := dec.Decode(&c.Key); err != nil {
		return err
	}
	if err := dec.Decode(&c.Value); err != nil {
		return err
	}
	hasExpiry, err := dec.DecodeBool()
	if err != nil {
		return err
	}
	if hasExpiry {
		t, err := dec.DecodeTime()
		if err != nil {
			return err
		}
		c.Expiry = &t
	} else {
		c.Expiry = nil
	}
	if err := dec.Decode(&c.State); err != nil {
		return err
	}
	c.SequenceNumber, err = dec.DecodeUint64()
	return err
}

func (s StoreState) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(len(s.entries)); err != nil {
		return err
	}
	for _, e := range s.entries {
		if err := enc.Encode(e.key); err != nil {
			return err
		}
		if err := enc.Encode(e.entry.Value); err != nil {
			return err
		}
		if e.entry.Expiry == nil {
			if err := enc.EncodeBool(false); err != nil {
				return err
			}
		} else {
			if err := enc.EncodeBool(true); err != nil {
				return err
			}
			if err := enc.EncodeTime(*e.entry.Expiry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *StoreState) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	s.entries = make(map[string]storeStateEntry, n)
	for i := 0; i < n; i++ {
		var key, value Data
		if err := dec.Decode(&key); err != nil {
			return err
		}
		if err := dec.Decode(&value); err != nil {
			return err
		}
		hasExpiry, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		var expiry *time.Time
		if hasExpiry {
			t, err := dec.DecodeTime()
			if err != nil {
				return err
			}
			expiry = &t
		}
		s.entries[key.canonicalKey()] = storeStateEntry{key: key, entry: StoreEntry{Value: value, Expiry: expiry}}
	}
	return nil
}
