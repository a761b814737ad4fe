package record

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/definition"
)

// Writer appends data/command messages to a recording file, interning
// topics as it goes. Buffers up to flushThreshold bytes before writing to
// the underlying file, grounded on go-mcast's buffered-write-then-flush
// style (protocol.go's framed writes) and spec.md's own default of 1024.
type Writer struct {
	fs   definition.FileSystem
	log  definition.Logger
	path string
	file *os.File

	buf            bytes.Buffer
	flushThreshold int

	topics  []broker.Topic
	topicID map[broker.Topic]uint16
}

// NewWriter creates (or truncates) path and returns a Writer over it.
func NewWriter(fs definition.FileSystem, log definition.Logger, path string) (*Writer, error) {
	if log == nil {
		log = definition.NewDefaultLogger()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], magic)
	binary.BigEndian.PutUint32(header[4:8], formatVersion)
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{
		fs:             fs,
		log:            log.WithField("component", "record-writer"),
		path:           path,
		file:           f,
		flushThreshold: defaultFlushThreshold,
		topicID:        make(map[broker.Topic]uint16),
	}, nil
}

// WriteData appends a data_message entry, interning topic if new.
func (w *Writer) WriteData(topic broker.Topic, d broker.Data) error {
	payload, err := broker.EncodeDataBytes(d)
	if err != nil {
		return err
	}
	return w.writeMessage(entryDataMessage, topic, payload)
}

// WriteCommand appends a command_message entry, interning topic if new.
func (w *Writer) WriteCommand(topic broker.Topic, c broker.Command) error {
	payload, err := broker.EncodeCommandBytes(c)
	if err != nil {
		return err
	}
	return w.writeMessage(entryCommandMessage, topic, payload)
}

func (w *Writer) writeMessage(kind entryKind, topic broker.Topic, payload []byte) error {
	id, ok := w.topicID[topic]
	if !ok {
		id = uint16(len(w.topics))
		w.topics = append(w.topics, topic)
		w.topicID[topic] = id
		if err := w.appendNewTopic(topic); err != nil {
			return err
		}
	}

	w.buf.WriteByte(byte(kind))
	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], id)
	w.buf.Write(idBuf[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	w.buf.Write(lenBuf[:])
	w.buf.Write(payload)

	if w.buf.Len() >= w.flushThreshold {
		return w.Flush()
	}
	return nil
}

func (w *Writer) appendNewTopic(topic broker.Topic) error {
	w.buf.WriteByte(byte(entryNewTopic))
	name := []byte(topic.String())
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(name)))
	w.buf.Write(lenBuf[:])
	w.buf.Write(name)
	return nil
}

// Flush writes any buffered entries to the file. Idempotent when the
// buffer is empty, per spec.
func (w *Writer) Flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	if _, err := w.file.Write(w.buf.Bytes()); err != nil {
		return err
	}
	w.buf.Reset()
	return nil
}

// Close flushes any remaining entries and closes the file, the Go
// analogue of the C++ writer's destructor-time flush (spec.md §4.4):
// callers are expected to `defer w.Close()`.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		w.log.Errorf("flushing recording on close: %v", err)
	}
	return w.file.Close()
}
