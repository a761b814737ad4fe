package broker

import (
	"fmt"
	"net"
	"time"
)

// Kind tags the variant held by a Data value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindCount
	KindInt
	KindReal
	KindString
	KindAddress
	KindSubnet
	KindPort
	KindTimestamp
	KindTimespan
	KindEnum
	KindSet
	KindTable
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindCount:
		return "count"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindString:
		return "string"
	case KindAddress:
		return "address"
	case KindSubnet:
		return "subnet"
	case KindPort:
		return "port"
	case KindTimestamp:
		return "timestamp"
	case KindTimespan:
		return "timespan"
	case KindEnum:
		return "enum"
	case KindSet:
		return "set"
	case KindTable:
		return "table"
	case KindVector:
		return "vector"
	default:
		return "unknown"
	}
}

// PortProto is the protocol tag carried by a Port value.
type PortProto uint8

const (
	ProtoUnknown PortProto = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
)

// Port is a transport-layer port number paired with a protocol.
type Port struct {
	Number uint16
	Proto  PortProto
}

// tableEntry keeps the original key alongside its value, since the map
// itself is indexed by the key's canonical encoding rather than by the key
// itself (Go map keys must be comparable; Data is not).
type tableEntry struct {
	key   Data
	value Data
}

// Data is a tagged sum value: exactly one of the fields below is
// meaningful, selected by Kind. All variants are comparable with Less/Equal
// and serializable, matching the spec's requirement that Data be usable as
// a Set/Table key.
type Data struct {
	kind Kind

	boolV   bool
	countV  uint64
	intV    int64
	realV   float64
	stringV string
	addrV   net.IP
	subnetV *net.IPNet
	portV   Port
	timeV   time.Time
	spanV   time.Duration
	enumV   string

	setV   map[string]Data
	tableV map[string]tableEntry
	vecV   []Data
}

func NewNone() Data { return Data{kind: KindNone} }

func NewBool(v bool) Data { return Data{kind: KindBool, boolV: v} }

func NewCount(v uint64) Data { return Data{kind: KindCount, countV: v} }

func NewInt(v int64) Data { return Data{kind: KindInt, intV: v} }

func NewReal(v float64) Data { return Data{kind: KindReal, realV: v} }

func NewString(v string) Data { return Data{kind: KindString, stringV: v} }

func NewAddress(v net.IP) Data { return Data{kind: KindAddress, addrV: v} }

func NewSubnet(v *net.IPNet) Data { return Data{kind: KindSubnet, subnetV: v} }

func NewPort(v Port) Data { return Data{kind: KindPort, portV: v} }

func NewTimestamp(v time.Time) Data { return Data{kind: KindTimestamp, timeV: v.UTC()} }

func NewTimespan(v time.Duration) Data { return Data{kind: KindTimespan, spanV: v} }

func NewEnum(v string) Data { return Data{kind: KindEnum, enumV: v} }

func NewSet(elems ...Data) Data {
	m := make(map[string]Data, len(elems))
	for _, e := range elems {
		m[e.canonicalKey()] = e
	}
	return Data{kind: KindSet, setV: m}
}

// TableEntry is one (key, value) pair of a Table Data value. Table is
// exposed as a []TableEntry rather than a Go map keyed by Data, since Data
// embeds maps and slices and so is not itself a comparable type.
type TableEntry struct {
	Key   Data
	Value Data
}

func NewTable(pairs ...TableEntry) Data {
	m := make(map[string]tableEntry, len(pairs))
	for _, p := range pairs {
		m[p.Key.canonicalKey()] = tableEntry{key: p.Key, value: p.Value}
	}
	return Data{kind: KindTable, tableV: m}
}

func NewVector(elems ...Data) Data {
	cp := make([]Data, len(elems))
	copy(cp, elems)
	return Data{kind: KindVector, vecV: cp}
}

// Kind reports the variant held.
func (d Data) Kind() Kind { return d.kind }

func (d Data) AsBool() (bool, bool)             { return d.boolV, d.kind == KindBool }
func (d Data) AsCount() (uint64, bool)          { return d.countV, d.kind == KindCount }
func (d Data) AsInt() (int64, bool)             { return d.intV, d.kind == KindInt }
func (d Data) AsReal() (float64, bool)          { return d.realV, d.kind == KindReal }
func (d Data) AsString() (string, bool)         { return d.stringV, d.kind == KindString }
func (d Data) AsAddress() (net.IP, bool)        { return d.addrV, d.kind == KindAddress }
func (d Data) AsSubnet() (*net.IPNet, bool)     { return d.subnetV, d.kind == KindSubnet }
func (d Data) AsPort() (Port, bool)             { return d.portV, d.kind == KindPort }
func (d Data) AsTimestamp() (time.Time, bool)   { return d.timeV, d.kind == KindTimestamp }
func (d Data) AsTimespan() (time.Duration, bool) { return d.spanV, d.kind == KindTimespan }
func (d Data) AsEnum() (string, bool)           { return d.enumV, d.kind == KindEnum }

// AsSet returns the set's elements in an unspecified order.
func (d Data) AsSet() ([]Data, bool) {
	if d.kind != KindSet {
		return nil, false
	}
	out := make([]Data, 0, len(d.setV))
	for _, v := range d.setV {
		out = append(out, v)
	}
	return out, true
}

// AsTable returns the table's (key, value) pairs in an unspecified order.
func (d Data) AsTable() ([]TableEntry, bool) {
	if d.kind != KindTable {
		return nil, false
	}
	out := make([]TableEntry, 0, len(d.tableV))
	for _, e := range d.tableV {
		out = append(out, TableEntry{Key: e.key, Value: e.value})
	}
	return out, true
}

func (d Data) AsVector() ([]Data, bool) {
	if d.kind != KindVector {
		return nil, false
	}
	return d.vecV, true
}

func (d Data) String() string {
	switch d.kind {
	case KindNone:
		return "none"
	case KindBool:
		return fmt.Sprintf("%v", d.boolV)
	case KindCount:
		return fmt.Sprintf("%d", d.countV)
	case KindInt:
		return fmt.Sprintf("%d", d.intV)
	case KindReal:
		return fmt.Sprintf("%g", d.realV)
	case KindString:
		return d.stringV
	case KindAddress:
		return d.addrV.String()
	case KindSubnet:
		return d.subnetV.String()
	case KindPort:
		return fmt.Sprintf("%d/%d", d.portV.Number, d.portV.Proto)
	case KindTimestamp:
		return d.timeV.Format(time.RFC3339Nano)
	case KindTimespan:
		return d.spanV.String()
	case KindEnum:
		return d.enumV
	case KindSet:
		return fmt.Sprintf("set(%d)", len(d.setV))
	case KindTable:
		return fmt.Sprintf("table(%d)", len(d.tableV))
	case KindVector:
		return fmt.Sprintf("vector(%d)", len(d.vecV))
	default:
		return "?"
	}
}
