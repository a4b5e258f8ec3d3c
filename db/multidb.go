package db

import (
	"time"

	"github.com/pkg/errors"

	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
)

// ErrDisabled 未启用任何数据库后端
var ErrDisabled = errors.New("database disabled")

// MultiDatabase 多数据库支持
// 写入会对所有 Backend 进行写入
// 读取只会读取第一个库
type MultiDatabase struct {
	names    []string
	backends []Database
}

// NewMultiDatabase 创建 MultiDatabase
func NewMultiDatabase() *MultiDatabase {
	return &MultiDatabase{}
}

// UseDB 追加后端
func (db *MultiDatabase) UseDB(name string, backend Database) {
	db.names = append(db.names, name)
	db.backends = append(db.backends, backend)
}

// Names 已启用后端的名称
func (db *MultiDatabase) Names() []string {
	return db.names
}

// Open impl Database
func (db *MultiDatabase) Open() error {
	for i, b := range db.backends {
		if err := b.Open(); err != nil {
			return errors.Wrapf(err, "open backend %s error", db.names[i])
		}
	}
	return nil
}

// Get impl snapshot.Store
func (db *MultiDatabase) Get(groupID int64) (*snapshot.GroupSnapshot, error) {
	if len(db.backends) == 0 {
		return nil, ErrDisabled
	}
	return db.backends[0].Get(groupID)
}

// Put impl snapshot.Store
func (db *MultiDatabase) Put(s *snapshot.GroupSnapshot) error {
	for i, b := range db.backends {
		if err := b.Put(s); err != nil {
			return errors.Wrapf(err, "put snapshot to backend %s error", db.names[i])
		}
	}
	return nil
}

// Delete impl snapshot.Store
func (db *MultiDatabase) Delete(groupID int64) error {
	for i, b := range db.backends {
		if err := b.Delete(groupID); err != nil {
			return errors.Wrapf(err, "delete snapshot from backend %s error", db.names[i])
		}
	}
	return nil
}

// Append impl changelog.Log
func (db *MultiDatabase) Append(events ...changelog.ChangeEvent) error {
	for i, b := range db.backends {
		if err := b.Append(events...); err != nil {
			return errors.Wrapf(err, "append change log to backend %s error", db.names[i])
		}
	}
	return nil
}

// List impl changelog.Log
func (db *MultiDatabase) List(groupID int64, since time.Time) ([]changelog.ChangeEvent, error) {
	if len(db.backends) == 0 {
		return nil, ErrDisabled
	}
	return db.backends[0].List(groupID, since)
}

// Purge impl changelog.Log
func (db *MultiDatabase) Purge(groupID int64) error {
	for i, b := range db.backends {
		if err := b.Purge(groupID); err != nil {
			return errors.Wrapf(err, "purge change log from backend %s error", db.names[i])
		}
	}
	return nil
}

// Close 关闭所有实现了 io.Closer 的后端
func (db *MultiDatabase) Close() error {
	var first error
	for _, b := range db.backends {
		if c, ok := b.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
