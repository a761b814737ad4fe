package record

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/jabolina/broker/pkg/broker"
)

// Entry is a single materialized record from the log: a data message or a
// command message, tagged so callers can dispatch on Kind without a type
// switch on Message itself.
type Entry struct {
	Topic   broker.Topic
	Kind    MessageKind
	Data    broker.Data
	Command broker.Command
}

// MessageKind mirrors broker.MessageKind for recorded entries; record
// entries never carry a new_topic kind, since that's interning metadata
// consumed internally by Reader, not a message a caller asked to replay.
type MessageKind uint8

const (
	Data MessageKind = iota
	CommandMsg
)

// Reader replays a recording file written by Writer, memory-mapping it via
// github.com/edsrzf/mmap-go per spec.md §4.4's "memory-maps the file".
type Reader struct {
	file *os.File
	mmap mmap.MMap
	pos  int

	topics       []broker.Topic
	dataEntries  int
	cmdEntries   int
}

// Open memory-maps path and validates its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	if len(m) < headerSize {
		m.Unmap()
		f.Close()
		return nil, ErrFormatTruncated
	}
	gotMagic := binary.BigEndian.Uint32(m[0:4])
	if gotMagic != magic {
		m.Unmap()
		f.Close()
		return nil, ErrBadMagic
	}
	gotVersion := binary.BigEndian.Uint32(m[4:8])
	if gotVersion != formatVersion {
		m.Unmap()
		f.Close()
		return nil, ErrUnsupportedVersion
	}
	return &Reader{file: f, mmap: m, pos: headerSize}, nil
}

// Close releases the memory mapping and the underlying file descriptor.
func (r *Reader) Close() error {
	if err := r.mmap.Unmap(); err != nil {
		return err
	}
	return r.file.Close()
}

// AtEnd reports whether every entry has been consumed.
func (r *Reader) AtEnd() bool {
	return r.pos >= len(r.mmap)
}

// Rewind resets the reader to the first entry after the header. Allowed
// only when AtEnd(), per spec.
func (r *Reader) Rewind() error {
	if !r.AtEnd() {
		return ErrNotAtEnd
	}
	r.pos = headerSize
	return nil
}

// Topics returns the topic table as interned so far, in insertion order.
func (r *Reader) Topics() []broker.Topic {
	out := make([]broker.Topic, len(r.topics))
	copy(out, r.topics)
	return out
}

// DataEntries returns the count of data_message entries seen so far.
func (r *Reader) DataEntries() int { return r.dataEntries }

// CommandEntries returns the count of command_message entries seen so far.
func (r *Reader) CommandEntries() int { return r.cmdEntries }

// Read materializes the next message entry, transparently consuming any
// new_topic entries along the way. Returns (Entry{}, false, nil) at end of
// file.
func (r *Reader) Read() (Entry, bool, error) {
	for {
		if r.AtEnd() {
			return Entry{}, false, nil
		}
		kind := entryKind(r.mmap[r.pos])
		r.pos++
		switch kind {
		case entryNewTopic:
			name, err := r.readLenPrefixed32()
			if err != nil {
				return Entry{}, false, err
			}
			r.topics = append(r.topics, broker.Topic(name))
		case entryDataMessage, entryCommandMessage:
			topicID, err := r.readUint16()
			if err != nil {
				return Entry{}, false, err
			}
			if int(topicID) >= len(r.topics) {
				return Entry{}, false, ErrTopicIDOutOfRange
			}
			payload, err := r.readLenPrefixed32Bytes()
			if err != nil {
				return Entry{}, false, err
			}
			topic := r.topics[topicID]
			if kind == entryDataMessage {
				d, err := broker.DecodeDataBytes(payload)
				if err != nil {
					return Entry{}, false, err
				}
				r.dataEntries++
				return Entry{Topic: topic, Kind: Data, Data: d}, true, nil
			}
			c, err := broker.DecodeCommandBytes(payload)
			if err != nil {
				return Entry{}, false, err
			}
			r.cmdEntries++
			return Entry{Topic: topic, Kind: CommandMsg, Command: c}, true, nil
		default:
			return Entry{}, false, fmt.Errorf("%w: %d", ErrUnknownEntryKind, kind)
		}
	}
}

// Skip advances past one message entry (consuming any intervening
// new_topic entries) by calling Read and discarding the result, so the
// payload is still decoded and a decode error is returned.
func (r *Reader) Skip() error {
	_, _, err := r.Read()
	return err
}

// SkipToEnd advances past every remaining entry.
func (r *Reader) SkipToEnd() error {
	for !r.AtEnd() {
		if err := r.Skip(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readUint16() (uint16, error) {
	if r.pos+2 > len(r.mmap) {
		return 0, ErrFormatTruncated
	}
	v := binary.BigEndian.Uint16(r.mmap[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *Reader) readLenPrefixed32() (string, error) {
	b, err := r.readLenPrefixed32Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) readLenPrefixed32Bytes() ([]byte, error) {
	if r.pos+4 > len(r.mmap) {
		return nil, ErrFormatTruncated
	}
	n := binary.BigEndian.Uint32(r.mmap[r.pos : r.pos+4])
	r.pos += 4
	end := r.pos + int(n)
	if end > len(r.mmap) {
		return nil, ErrFormatTruncated
	}
	b := r.mmap[r.pos:end]
	r.pos = end
	return b, nil
}
