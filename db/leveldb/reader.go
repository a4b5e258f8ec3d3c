package leveldb

import (
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type intReader struct {
	data string
	*strings.Reader
}

func newIntReader(s string) intReader {
	return intReader{
		data:   s,
		Reader: strings.NewReader(s),
	}
}

func (r *intReader) varint() int64 {
	i, err := binary.ReadVarint(r)
	if err != nil {
		panic("db/leveldb: bad varint: " + err.Error())
	}
	return i
}

func (r *intReader) uvarint() uint64 {
	i, err := binary.ReadUvarint(r)
	if err != nil {
		panic("db/leveldb: bad uvarint: " + err.Error())
	}
	return i
}

type reader struct {
	data        intReader
	strings     intReader
	stringIndex map[uint64]string
}

func (r *reader) coder() coder    { o, _ := r.data.ReadByte(); return coder(o) }
func (r *reader) varint() int64   { return r.data.varint() }
func (r *reader) uvarint() uint64 { return r.data.uvarint() }

func (r *reader) sync(c coder) {
	if coder := r.coder(); coder != c {
		panic("db/leveldb: bad sync expected " + strconv.Itoa(int(c)) + " but got " + strconv.Itoa(int(coder)))
	}
}

func (r *reader) int64() int64 {
	r.sync(coderInt64)
	return r.varint()
}

func (r *reader) time() time.Time {
	r.sync(coderTime)
	n := r.varint()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (r *reader) array() int {
	r.sync(coderArray)
	return int(r.uvarint())
}

func (r *reader) string() string {
	r.sync(coderString)
	off := r.data.uvarint()
	if s, ok := r.stringIndex[off]; ok {
		return s
	}
	_, _ = r.strings.Seek(int64(off), io.SeekStart)
	l := int64(r.strings.uvarint())
	whence, _ := r.strings.Seek(0, io.SeekCurrent)
	if whence+l > int64(len(r.strings.data)) {
		panic("db/leveldb: string out of range")
	}
	s := r.strings.data[whence : whence+l]
	r.stringIndex[off] = s
	return s
}

func newReader(data string) (*reader, error) {
	in := newIntReader(data)
	v, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, errors.Wrap(err, "read version error")
	}
	if v != dataVersion {
		return nil, errors.Errorf("unsupported data version %d", v)
	}
	sl, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, errors.Wrap(err, "read string length error")
	}
	dl, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, errors.Wrap(err, "read data length error")
	}
	whence, _ := in.Seek(0, io.SeekCurrent)
	if whence+int64(sl)+int64(dl) > int64(len(data)) {
		return nil, errors.New("truncated data")
	}
	sData := data[whence : whence+int64(sl)]
	dData := data[whence+int64(sl) : whence+int64(sl)+int64(dl)]
	r := reader{
		data:        newIntReader(dData),
		strings:     newIntReader(sData),
		stringIndex: make(map[uint64]string),
	}
	return &r, nil
}
