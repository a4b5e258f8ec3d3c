// Package db 快照与变更日志的持久化后端
package db

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
)

// Database 数据库操作接口定义
type Database interface {
	// Open 初始化数据库
	Open() error

	snapshot.Store
	changelog.Log
}

var (
	drivers   = make(map[string]func(yaml.Node) Database)
	driversMu sync.Mutex
)

// Register 注册数据库后端, 由各后端在 init 中调用
//
// 构造函数在后端未启用时应返回 nil
func Register(name string, init func(yaml.Node) Database) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[name]; ok {
		panic("database driver conflict: " + name)
	}
	drivers[name] = init
}

// Init 根据配置创建所有启用的后端, 按名称排序以保证读取后端稳定
func Init(conf map[string]yaml.Node) (*MultiDatabase, error) {
	driversMu.Lock()
	defer driversMu.Unlock()
	multi := NewMultiDatabase()
	for _, name := range sortedKeys(conf) {
		init, ok := drivers[name]
		if !ok {
			return nil, errors.Errorf("未知的数据库后端: %s", name)
		}
		if d := init(conf[name]); d != nil {
			log.Debugf("启用数据库后端: %s", name)
			multi.UseDB(name, d)
		}
	}
	return multi, nil
}

func sortedKeys(m map[string]yaml.Node) []string {
	// 本地后端优先作为读取后端
	rank := map[string]int{"leveldb": -2, "sqlite3": -1}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if rank[keys[i]] != rank[keys[j]] {
			return rank[keys[i]] < rank[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
