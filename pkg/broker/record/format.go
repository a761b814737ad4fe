// Package record implements the binary recording/replay format of §4.4: a
// flat log of new-topic and message entries with topic interning, written
// buffered and read back via a memory-mapped file. Grounded on go-mcast's
// wire-framing style in protocol.go (length-prefixed fields, a small fixed
// header) generalized from a single message shape to a three-entry-kind log.
package record

import "errors"

// magic and version are fixed 32-bit constants identifying the format; a
// Reader rejects any file whose header doesn't match exactly.
const (
	magic          uint32 = 0x42524b31 // "BRK1"
	formatVersion  uint32 = 1
	headerSize            = 8 // magic + version, both u32
	defaultFlushThreshold = 1024
)

// entryKind tags each record in the log.
type entryKind uint8

const (
	entryNewTopic entryKind = iota + 1
	entryDataMessage
	entryCommandMessage
)

var (
	ErrBadMagic            = errors.New("record: bad magic")
	ErrUnsupportedVersion  = errors.New("record: unsupported version")
	ErrFormatTruncated     = errors.New("record: truncated entry")
	ErrUnknownEntryKind    = errors.New("record: unknown entry type")
	ErrTopicIDOutOfRange   = errors.New("record: topic id out of range")
	ErrNotAtEnd            = errors.New("record: rewind requires the reader to be at end")
)
