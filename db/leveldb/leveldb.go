package leveldb

import (
	"encoding/binary"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"gopkg.in/yaml.v3"

	"github.com/qqgroup/go-group-backup/db"
	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
	"github.com/qqgroup/go-group-backup/modules/config"
)

type database struct {
	path string
	db   *leveldb.DB
	mu   sync.Mutex // 保护日志序号分配
}

func init() {
	db.Register("leveldb", func(node yaml.Node) db.Database {
		conf := new(config.LevelDBConfig)
		_ = node.Decode(conf)
		if !conf.Enable {
			return nil
		}
		if conf.Path == "" {
			conf.Path = path.Join("data", "leveldb")
		}
		return New(conf.Path)
	})
}

// New 创建位于 p 的 leveldb 后端, 需调用 Open 后使用
func New(p string) db.Database {
	return &database{path: p}
}

func (ldb *database) Open() error {
	d, err := leveldb.OpenFile(ldb.path, &opt.Options{
		WriteBuffer: 32 * opt.KiB,
	})
	if err != nil {
		return errors.Wrap(err, "open leveldb error")
	}
	ldb.db = d
	return nil
}

func (ldb *database) Close() error {
	return ldb.db.Close()
}

func groupKey(prefix []byte, groupID int64) []byte {
	k := make([]byte, len(prefix)+8, len(prefix)+16)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], uint64(groupID))
	return k
}

func logKey(groupID int64, seq uint64) []byte {
	k := groupKey(prefixLog, groupID)
	return binary.BigEndian.AppendUint64(k, seq)
}

func decode[T any](v []byte, flag uint64, read func(*reader) T) (ret T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
	}()
	r, err := newReader(string(v))
	if err != nil {
		return ret, err
	}
	if f := r.uvarint(); f != flag {
		return ret, errors.Errorf("unknown record flag %d", f)
	}
	return read(r), nil
}

func (ldb *database) Get(groupID int64) (*snapshot.GroupSnapshot, error) {
	v, err := ldb.db.Get(groupKey(prefixSnapshot, groupID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.Wrapf(snapshot.ErrNotFound, "group %d", groupID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get value error")
	}
	s, err := decode(v, recordSnapshot, (*reader).readGroupSnapshot)
	if err != nil {
		return nil, errors.Wrap(err, "decode snapshot error")
	}
	if s == nil {
		return nil, errors.Wrapf(snapshot.ErrNotFound, "group %d", groupID)
	}
	return s, nil
}

func (ldb *database) Put(s *snapshot.GroupSnapshot) error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	w := newWriter()
	w.uvarint(recordSnapshot)
	w.writeGroupSnapshot(s)
	err := ldb.db.Put(groupKey(prefixSnapshot, s.GroupID), w.bytes(), nil)
	return errors.Wrap(err, "put data error")
}

func (ldb *database) Delete(groupID int64) error {
	err := ldb.db.Delete(groupKey(prefixSnapshot, groupID), nil)
	return errors.Wrap(err, "delete data error")
}

// lastSeq 返回群最后一条日志的序号, 没有日志时返回 0
func (ldb *database) lastSeq(groupID int64) uint64 {
	iter := ldb.db.NewIterator(util.BytesPrefix(groupKey(prefixLog, groupID)), nil)
	defer iter.Release()
	if !iter.Last() {
		return 0
	}
	k := iter.Key()
	return binary.BigEndian.Uint64(k[len(k)-8:])
}

func (ldb *database) Append(events ...changelog.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	ldb.mu.Lock()
	defer ldb.mu.Unlock()
	seqs := make(map[int64]uint64)
	batch := new(leveldb.Batch)
	for i := range events {
		e := &events[i]
		seq, ok := seqs[e.GroupID]
		if !ok {
			seq = ldb.lastSeq(e.GroupID)
		}
		seq++
		seqs[e.GroupID] = seq
		w := newWriter()
		w.uvarint(recordEvent)
		w.writeChangeEvent(e)
		batch.Put(logKey(e.GroupID, seq), w.bytes())
	}
	return errors.Wrap(ldb.db.Write(batch, nil), "write batch error")
}

func (ldb *database) List(groupID int64, since time.Time) ([]changelog.ChangeEvent, error) {
	iter := ldb.db.NewIterator(util.BytesPrefix(groupKey(prefixLog, groupID)), nil)
	defer iter.Release()
	var events []changelog.ChangeEvent
	for iter.Next() {
		e, err := decode(iter.Value(), recordEvent, (*reader).readChangeEvent)
		if err != nil {
			return nil, errors.Wrap(err, "decode change event error")
		}
		if !e.Kind.Valid() {
			return nil, errors.Errorf("unknown change event kind %q", e.Kind)
		}
		events = append(events, e)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate change log error")
	}
	return changelog.Filter(events, since), nil
}

func (ldb *database) Purge(groupID int64) error {
	ldb.mu.Lock()
	defer ldb.mu.Unlock()
	iter := ldb.db.NewIterator(util.BytesPrefix(groupKey(prefixLog, groupID)), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.Wrap(err, "iterate change log error")
	}
	return errors.Wrap(ldb.db.Write(batch, nil), "write batch error")
}
