package broker

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
)

// canonicalKey returns a deterministic byte-string encoding of d, used both
// to order Data values (Set/Table entries must be totally ordered) and as
// the backing map key for Set/Table, since Go maps require comparable keys
// and Data itself is not (it embeds maps and slices).
func (d Data) canonicalKey() string {
	var buf bytes.Buffer
	d.encodeCanonical(&buf)
	return buf.String()
}

// Key exposes the canonical encoding used internally for Set/Table map
// keys, so other packages (e.g. store.Backend implementations) can index
// their own maps by Data without re-deriving an encoding of their own.
func (d Data) Key() string {
	return d.canonicalKey()
}

func (d Data) encodeCanonical(buf *bytes.Buffer) {
	buf.WriteByte(byte(d.kind))
	switch d.kind {
	case KindNone:
	case KindBool:
		if d.boolV {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindCount:
		writeUint64(buf, d.countV)
	case KindInt:
		writeUint64(buf, uint64(d.intV))
	case KindReal:
		writeUint64(buf, orderedFloatBits(d.realV))
	case KindString, KindEnum:
		s := d.stringV
		if d.kind == KindEnum {
			s = d.enumV
		}
		writeLenPrefixed(buf, []byte(s))
	case KindAddress:
		writeLenPrefixed(buf, []byte(d.addrV.String()))
	case KindSubnet:
		writeLenPrefixed(buf, []byte(d.subnetV.String()))
	case KindPort:
		writeUint64(buf, uint64(d.portV.Number))
		buf.WriteByte(byte(d.portV.Proto))
	case KindTimestamp:
		writeUint64(buf, uint64(d.timeV.UnixNano()))
	case KindTimespan:
		writeUint64(buf, uint64(d.spanV))
	case KindSet:
		keys := sortedKeys(d.setV)
		writeUint64(buf, uint64(len(keys)))
		for _, k := range keys {
			writeLenPrefixed(buf, []byte(k))
		}
	case KindTable:
		keys := make([]string, 0, len(d.tableV))
		for k := range d.tableV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeUint64(buf, uint64(len(keys)))
		for _, k := range keys {
			writeLenPrefixed(buf, []byte(k))
			d.tableV[k].value.encodeCanonical(buf)
		}
	case KindVector:
		writeUint64(buf, uint64(len(d.vecV)))
		for _, e := range d.vecV {
			e.encodeCanonical(buf)
		}
	}
}

func sortedKeys(m map[string]Data) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	writeUint64(buf, uint64(len(b)))
	buf.Write(b)
}

// orderedFloatBits reinterprets a float64's bits into a uint64 whose
// unsigned ordering matches the float's numeric ordering: for
// non-negative floats the IEEE 754 bit pattern already sorts correctly, so
// the sign bit is simply set; for negative floats every bit is flipped,
// which both clears the sign bit and reverses the magnitude ordering (more
// negative sorts lower). This is exact (no quantization, no overflow),
// unlike truncating to a fixed-point integer.
func orderedFloatBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

// Less defines a total order over Data: first by Kind, then by the
// canonical encoding of the payload. This is what makes Data usable as a
// Set element or Table key.
func (d Data) Less(other Data) bool {
	if d.kind != other.kind {
		return d.kind < other.kind
	}
	return d.canonicalKey() < other.canonicalKey()
}

// Equal reports whether two Data values are identical, including for the
// composite Set/Table/Vector kinds.
func (d Data) Equal(other Data) bool {
	return d.canonicalKey() == other.canonicalKey()
}
