// Package memory 内存数据库后端, 进程退出后数据丢失, 主要用于测试与试运行
package memory

import (
	"gopkg.in/yaml.v3"

	"github.com/qqgroup/go-group-backup/db"
	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
)

type database struct {
	*snapshot.MemoryStore
	*changelog.MemoryLog
}

type config struct {
	Enable bool `yaml:"enable"`
}

func init() {
	db.Register("memory", func(node yaml.Node) db.Database {
		conf := new(config)
		_ = node.Decode(conf)
		if !conf.Enable {
			return nil
		}
		return New()
	})
}

// New 创建内存后端
func New() db.Database {
	return &database{
		MemoryStore: snapshot.NewMemoryStore(),
		MemoryLog:   changelog.NewMemoryLog(),
	}
}

func (*database) Open() error { return nil }
