// Package gbak 程序的主体部分
package gbak

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/qqgroup/go-group-backup/internal/backup"
	"github.com/qqgroup/go-group-backup/internal/base"
	"github.com/qqgroup/go-group-backup/internal/napcat"
	"github.com/qqgroup/go-group-backup/modules/config"
)

// Main 启动主程序
func Main() {
	base.Parse()
	if base.LittleH || flag.NArg() == 0 {
		base.Help()
	}

	if _, err := os.Stat(base.LittleC); os.IsNotExist(err) {
		if err := config.Generate(base.LittleC); err != nil {
			log.Fatalf("生成默认配置文件失败: %v", err)
		}
		log.Infof("默认配置文件已生成到 %s, 请修改后重新运行.", base.LittleC)
		os.Exit(0)
	}
	conf, err := config.Parse(base.LittleC)
	if err != nil {
		log.Fatalf("读取配置文件 %s 失败: %v", base.LittleC, err)
	}
	base.Init(conf)
	InitLog()
	log.Info("当前版本:", base.Version)
	if base.Debug {
		log.SetReportCaller(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caller, err := napcat.Dial(ctx, &conf.Gateway)
	if err != nil {
		log.Fatalf("连接 NapCat 失败: %v", err)
	}
	database := InitDB(conf)
	svc := backup.New(napcat.NewClient(caller), database, database, backup.Options{
		DataDir:         base.DataDir,
		Options:         base.Options,
		DownloadThreads: base.DownloadThreads,
		DownloadTimeout: base.DownloadTimeout,
	})

	err = Run(ctx, svc, os.Stdout, flag.Args())
	if c, ok := caller.(io.Closer); ok {
		_ = c.Close()
	}
	if cerr := database.Close(); cerr != nil {
		log.Errorf("关闭数据库失败: %v", cerr)
	}
	if err != nil {
		log.Errorf("执行失败: %v", err)
		stop()
		os.Exit(1)
	}
}
