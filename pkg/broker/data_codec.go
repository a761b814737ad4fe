package broker

import (
	"fmt"
	"net"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeDataBytes and DecodeDataBytes round-trip a Data value through
// msgpack as a standalone byte blob, used by backends (e.g.
// store/sqlitebackend) that persist values as opaque BLOB columns rather
// than as part of a larger framed message.
func EncodeDataBytes(d Data) ([]byte, error) {
	return msgpack.Marshal(d)
}

func DecodeDataBytes(b []byte) (Data, error) {
	var d Data
	if err := msgpack.Unmarshal(b, &d); err != nil {
		return Data{}, err
	}
	return d, nil
}

// EncodeMsgpack and DecodeMsgpack implement msgpack.CustomEncoder/
// CustomDecoder so each Data variant serializes itself rather than relying
// on reflection over the unexported struct fields, per the design note
// "serialization is a function per variant".
var _ msgpack.CustomEncoder = Data{}
var _ msgpack.CustomDecoder = (*Data)(nil)

func (d Data) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeUint8(uint8(d.kind)); err != nil {
		return err
	}
	switch d.kind {
	case KindNone:
		return nil
	case KindBool:
		return enc.EncodeBool(d.boolV)
	case KindCount:
		return enc.EncodeUint64(d.countV)
	case KindInt:
		return enc.EncodeInt64(d.intV)
	case KindReal:
		return enc.EncodeFloat64(d.realV)
	case KindString:
		return enc.EncodeString(d.stringV)
	case KindEnum:
		return enc.EncodeString(d.enumV)
	case KindAddress:
		return enc.EncodeBytes(d.addrV)
	case KindSubnet:
		return enc.EncodeString(d.subnetV.String())
	case KindPort:
		if err := enc.EncodeUint16(d.portV.Number); err != nil {
			return err
		}
		return enc.EncodeUint8(uint8(d.portV.Proto))
	case KindTimestamp:
		return enc.EncodeTime(d.timeV)
	case KindTimespan:
		return enc.EncodeInt64(int64(d.spanV))
	case KindSet:
		elems, _ := d.AsSet()
		if err := enc.EncodeArrayLen(len(elems)); err != nil {
			return err
		}
		for _, e := range elems {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	case KindVector:
		if err := enc.EncodeArrayLen(len(d.vecV)); err != nil {
			return err
		}
		for _, e := range d.vecV {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	case KindTable:
		if err := enc.EncodeMapLen(len(d.tableV)); err != nil {
			return err
		}
		for _, e := range d.tableV {
			if err := enc.Encode(e.key); err != nil {
				return err
			}
			if err := enc.Encode(e.value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("broker: cannot encode data of kind %v", d.kind)
	}
}

func (d *Data) DecodeMsgpack(dec *msgpack.Decoder) error {
	k, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	d.kind = Kind(k)
	switch d.kind {
	case KindNone:
		return nil
	case KindBool:
		d.boolV, err = dec.DecodeBool()
		return err
	case KindCount:
		d.countV, err = dec.DecodeUint64()
		return err
	case KindInt:
		d.intV, err = dec.DecodeInt64()
		return err
	case KindReal:
		d.realV, err = dec.DecodeFloat64()
		return err
	case KindString:
		d.stringV, err = dec.DecodeString()
		return err
	case KindEnum:
		d.enumV, err = dec.DecodeString()
		return err
	case KindAddress:
		b, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		d.addrV = net.IP(b)
		return nil
	case KindSubnet:
		s, err := dec.DecodeString()
		if err != nil {
			return err
		}
		_, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return err
		}
		d.subnetV = ipnet
		return nil
	case KindPort:
		num, err := dec.DecodeUint16()
		if err != nil {
			return err
		}
		proto, err := dec.DecodeUint8()
		if err != nil {
			return err
		}
		d.portV = Port{Number: num, Proto: PortProto(proto)}
		return nil
	case KindTimestamp:
		d.timeV, err = dec.DecodeTime()
		return err
	case KindTimespan:
		span, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		d.spanV = time.Duration(span)
		return nil
	case KindSet:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		m := make(map[string]Data, n)
		for i := 0; i < n; i++ {
			var e Data
			if err := dec.Decode(&e); err != nil {
				return err
			}
			m[e.canonicalKey()] = e
		}
		d.setV = m
		return nil
	case KindVector:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		vec := make([]Data, n)
		for i := 0; i < n; i++ {
			if err := dec.Decode(&vec[i]); err != nil {
				return err
			}
		}
		d.vecV = vec
		return nil
	case KindTable:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		m := make(map[string]tableEntry, n)
		for i := 0; i < n; i++ {
			var key, value Data
			if err := dec.Decode(&key); err != nil {
				return err
			}
			if err := dec.Decode(&value); err != nil {
				return err
			}
			m[key.canonicalKey()] = tableEntry{key: key, value: value}
		}
		d.tableV = m
		return nil
	default:
		return fmt.Errorf("broker: cannot decode data of kind %v", d.kind)
	}
}
