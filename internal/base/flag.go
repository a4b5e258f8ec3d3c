// Package base provides base config for go-group-backup
package base

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/qqgroup/go-group-backup/modules/config"
)

// command flags
var (
	LittleC string // config file
	LittleD bool   // debug mode
	LittleH bool   // Help
)

// config file flags
var (
	Debug           bool          // 是否开启 debug 模式
	DataDir         string        // 备份数据目录
	Options         []string      // 启用的备份选项
	DownloadThreads int           // 相册下载并发数
	DownloadTimeout time.Duration // 单个文件下载超时
	Proxy           string        // 下载时使用的代理, 空则读取环境变量

	LogLevel    string // 日志等级
	LogAging    = time.Hour * 24 * 15
	LogForceNew bool // 是否在每次启动时强制创建全新的文件储存日志
)

// Parse parse flags
func Parse() {
	flag.StringVar(&LittleC, "c", "config.yml", "configuration filename")
	flag.BoolVar(&LittleD, "D", false, "debug mode")
	flag.BoolVar(&LittleH, "h", false, "this Help")
	flag.Parse()
}

// Help cli命令行-h的帮助提示
func Help() {
	fmt.Printf(`go-group-backup
version: %s

Usage:
  gbak [OPTIONS] <command> [args]

Commands:
  backup  <group>...               备份群数据
  export  <group> [-o file] [-to-group id] [-to-user id]
                                   导出群数据为 Excel
  archive <group> [-o file]        打包群的全部本地备份
  restore <source> <target> [-fields 群名称,群头像,群公告,群名片]
                                   将备份恢复到目标群
  delete  <group>                  删除群的全部备份
  log     <group> [-since 2006-01-02]
                                   查看群的变更记录

Options:
`, Version)
	flag.PrintDefaults()
	os.Exit(0)
}

// Init read config from yml file
func Init(conf *config.Config) {
	{ // bool config
		Debug = conf.Output.Debug || LittleD
		LogForceNew = conf.Output.LogForceNew
	}
	{ // string/int config
		DataDir = conf.Backup.DataDir
		Options = conf.Backup.Options
		DownloadThreads = conf.Backup.DownloadThreads
		DownloadTimeout = time.Second * time.Duration(conf.Backup.DownloadTimeout)
		Proxy = conf.Backup.Proxy
		LogLevel = conf.Output.LogLevel
		if conf.Output.LogAging > 0 {
			LogAging = time.Hour * 24 * time.Duration(conf.Output.LogAging)
		} else {
			LogAging = 0
		}
	}
	if Debug {
		log.SetLevel(log.DebugLevel)
		log.Warnf("已开启Debug模式.")
	}
}
