package leveldb

import (
	"bytes"
	"time"
)

type intWriter struct {
	bytes.Buffer
}

func (w *intWriter) varint(x int64) {
	w.uvarint(uint64(x)<<1 ^ uint64(x>>63))
}

func (w *intWriter) uvarint(x uint64) {
	for x >= 0x80 {
		w.WriteByte(byte(x) | 0x80)
		x >>= 7
	}
	w.WriteByte(byte(x))
}

// writer implements the index write.
//
// data format(use uvarint to encode integers):
//
//   - version
//   - string data length
//   - index data length
//   - string data
//   - index data
//
// for string data part, each string is encoded as:
//
//   - string length
//   - string
//
// the empty string is always stored at offset 0.
//
// for index data part, each object value is encoded as:
//
//   - coder
//   - value
//
// * coder is the identifier of value's type.
// * specially for string, it's value is the offset in string data part.
type writer struct {
	data        intWriter
	strings     intWriter
	stringIndex map[string]uint64
}

func newWriter() *writer {
	w := &writer{
		stringIndex: make(map[string]uint64),
	}
	w.strings.uvarint(0) // offset 0: ""
	w.stringIndex[""] = 0
	return w
}

func (w *writer) coder(o coder)    { w.data.WriteByte(byte(o)) }
func (w *writer) varint(x int64)   { w.data.varint(x) }
func (w *writer) uvarint(x uint64) { w.data.uvarint(x) }
func (w *writer) nil()             { w.coder(coderNil) }

func (w *writer) int64(i int64) {
	w.coder(coderInt64)
	w.varint(i)
}

func (w *writer) time(t time.Time) {
	w.coder(coderTime)
	if t.IsZero() {
		w.varint(0)
		return
	}
	w.varint(t.UnixNano())
}

func (w *writer) array(n int) {
	w.coder(coderArray)
	w.uvarint(uint64(n))
}

func (w *writer) string(s string) {
	w.coder(coderString)
	off, ok := w.stringIndex[s]
	if !ok {
		// not found write to string data part
		// | string length | string |
		off = uint64(w.strings.Len())
		w.strings.uvarint(uint64(len(s)))
		_, _ = w.strings.WriteString(s)
		w.stringIndex[s] = off
	}
	// write offset to index data part
	w.uvarint(off)
}

func (w *writer) bytes() []byte {
	var out intWriter
	out.uvarint(dataVersion)
	out.uvarint(uint64(w.strings.Len()))
	out.uvarint(uint64(w.data.Len()))
	_, _ = w.strings.WriteTo(&out)
	_, _ = w.data.WriteTo(&out)
	return out.Bytes()
}
