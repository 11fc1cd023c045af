// Package preset implements the persisted preset blob (spec §6): a
// versioned, tagged binary format carrying engine configuration that
// the engine core itself never interprets.
package preset

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrUnsupportedVersion is returned by Deserialize when the blob's
// version header does not match the version this codec writes.
var ErrUnsupportedVersion = errors.New("preset: unsupported version")

const codecVersion uint32 = 1

// serializer accumulates tagged records in write order, mirroring
// original_source/sdrbase/settings/preset.cpp's SimpleSerializer.
type serializer struct {
	buf bytes.Buffer
}

func newSerializer() *serializer {
	return &serializer{}
}

func (s *serializer) writeRecord(tag uint32, value []byte) {
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], tag)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(value)))
	s.buf.Write(header[:])
	s.buf.Write(value)
}

func (s *serializer) writeString(tag uint32, v string) {
	s.writeRecord(tag, []byte(v))
}

func (s *serializer) writeBlob(tag uint32, v []byte) {
	s.writeRecord(tag, v)
}

func (s *serializer) writeBool(tag uint32, v bool) {
	value := byte(0)
	if v {
		value = 1
	}
	s.writeRecord(tag, []byte{value})
}

func (s *serializer) writeU64(tag uint32, v uint64) {
	var value [8]byte
	binary.BigEndian.PutUint64(value[:], v)
	s.writeRecord(tag, value[:])
}

func (s *serializer) writeS32(tag uint32, v int32) {
	var value [4]byte
	binary.BigEndian.PutUint32(value[:], uint32(v))
	s.writeRecord(tag, value[:])
}

// final prepends the version header and returns the complete blob.
func (s *serializer) final() []byte {
	out := make([]byte, 4, 4+s.buf.Len())
	binary.BigEndian.PutUint32(out, codecVersion)
	return append(out, s.buf.Bytes()...)
}

// deserializer indexes a blob's records by tag for out-of-order reads,
// mirroring original_source's SimpleDeserializer.
type deserializer struct {
	version uint32
	records map[uint32][]byte
	valid   bool
}

func newDeserializer(data []byte) *deserializer {
	d := &deserializer{records: make(map[uint32][]byte)}

	if len(data) < 4 {
		return d
	}
	d.version = binary.BigEndian.Uint32(data[0:4])

	pos := 4
	for pos+8 <= len(data) {
		tag := binary.BigEndian.Uint32(data[pos : pos+4])
		length := binary.BigEndian.Uint32(data[pos+4 : pos+8])
		pos += 8

		end := pos + int(length)
		if end < pos || end > len(data) {
			return d // truncated record, leave d.valid false
		}
		d.records[tag] = data[pos:end]
		pos = end
	}

	d.valid = pos == len(data)
	return d
}

func (d *deserializer) isValid() bool {
	return d.valid
}

func (d *deserializer) readString(tag uint32, fallback string) string {
	if v, ok := d.records[tag]; ok {
		return string(v)
	}
	return fallback
}

func (d *deserializer) readBlob(tag uint32) []byte {
	v := d.records[tag]
	if len(v) == 0 {
		return nil
	}
	return v
}

func (d *deserializer) readBool(tag uint32, fallback bool) bool {
	v, ok := d.records[tag]
	if !ok || len(v) < 1 {
		return fallback
	}
	return v[0] != 0
}

func (d *deserializer) readU64(tag uint32, fallback uint64) uint64 {
	v, ok := d.records[tag]
	if !ok || len(v) < 8 {
		return fallback
	}
	return binary.BigEndian.Uint64(v)
}

func (d *deserializer) readS32(tag uint32, fallback int32) int32 {
	v, ok := d.records[tag]
	if !ok || len(v) < 4 {
		return fallback
	}
	return int32(binary.BigEndian.Uint32(v))
}
