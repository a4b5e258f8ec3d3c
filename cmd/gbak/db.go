package gbak

import (
	log "github.com/sirupsen/logrus"

	"github.com/qqgroup/go-group-backup/db"
	"github.com/qqgroup/go-group-backup/db/memory"
	"github.com/qqgroup/go-group-backup/modules/config"

	// 注册数据库后端
	_ "github.com/qqgroup/go-group-backup/db/leveldb"
	_ "github.com/qqgroup/go-group-backup/db/mongodb"
	_ "github.com/qqgroup/go-group-backup/db/redis"
	_ "github.com/qqgroup/go-group-backup/db/sqlite3"
)

// InitDB 初始化数据库
func InitDB(conf *config.Config) *db.MultiDatabase {
	multi, err := db.Init(conf.Database)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	if len(multi.Names()) == 0 {
		log.Warn("未启用任何数据库后端, 将使用内存存储, 快照与变更记录在退出后丢失.")
		multi.UseDB("memory", memory.New())
	}
	if err := multi.Open(); err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	log.Infof("已启用数据库后端: %v", multi.Names())
	return multi
}
