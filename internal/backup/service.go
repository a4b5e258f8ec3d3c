// Package backup 串联网关、快照与变更日志, 实现群备份的各项操作
package backup

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/napcat"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
	"github.com/qqgroup/go-group-backup/modules/config"
)

// ErrNoBackup 群没有任何本地备份
var ErrNoBackup = errors.New("no backup")

// DefaultAvatarURL 群头像地址, 两个占位符均为群号
const DefaultAvatarURL = "http://p.qlogo.cn/gh/%d/%d/640/"

// Options 备份行为
type Options struct {
	DataDir         string
	Options         []string
	DownloadThreads int
	DownloadTimeout time.Duration

	AvatarURL string           // 为空时使用 DefaultAvatarURL
	Clock     func() time.Time // 为空时使用 time.Now
}

// Service 群备份服务
//
// 同一个群的操作需由调用方串行执行
type Service struct {
	client *napcat.Client
	store  snapshot.Store
	log    changelog.Log
	opt    Options
}

// New 创建备份服务
func New(client *napcat.Client, store snapshot.Store, log changelog.Log, opt Options) *Service {
	if opt.DataDir == "" {
		opt.DataDir = "data"
	}
	if len(opt.Options) == 0 {
		opt.Options = config.AllOptions
	}
	if opt.DownloadThreads <= 0 {
		opt.DownloadThreads = 5
	}
	if opt.DownloadTimeout <= 0 {
		opt.DownloadTimeout = time.Minute
	}
	if opt.AvatarURL == "" {
		opt.AvatarURL = DefaultAvatarURL
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}
	return &Service{client: client, store: store, log: log, opt: opt}
}

func (s *Service) enabled(option string) bool {
	return (&config.Backup{Options: s.opt.Options}).Enabled(option)
}

func (s *Service) avatarURL(groupID int64) string {
	return fmt.Sprintf(s.opt.AvatarURL, groupID, groupID)
}

// groupDir <data>/<group>
func (s *Service) groupDir(groupID int64) string {
	return filepath.Join(s.opt.DataDir, strconv.FormatInt(groupID, 10))
}

func (s *Service) avatarPath(groupID int64) string {
	return filepath.Join(s.groupDir(groupID), "group_avatar.png")
}

func (s *Service) albumsDir(groupID int64) string {
	return filepath.Join(s.groupDir(groupID), "albums")
}

// trashDir 已删除相册内容的存放目录
func (s *Service) trashDir(groupID int64) string {
	return filepath.Join(s.groupDir(groupID), "logs", "deleted_items", "albums")
}

func (s *Service) deletedItemsPath(groupID int64) string {
	return filepath.Join(s.groupDir(groupID), "logs", "deleted_items.json")
}
