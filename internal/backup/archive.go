package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/qqgroup/go-group-backup/global"
	"github.com/qqgroup/go-group-backup/internal/napcat"
)

// 备份目录名格式
const dirLayout = "20060102_150405"

var dirPattern = regexp.MustCompile(`^\d{8}_\d{6}$`)

// Archive 一次备份的原始数据, 每个字段对应备份目录中的一个 json 文件
type Archive struct {
	GroupInfo   json.RawMessage
	GroupDetail json.RawMessage
	Members     []napcat.Member
	Notices     []napcat.Notice
	Essence     []napcat.Essence
	Honors      json.RawMessage
	Albums      []napcat.Album
	AlbumMedia  map[string][]napcat.Media
	Metadata    Metadata
}

// Metadata metadata.json
type Metadata struct {
	BackupTime string   `json:"backup_time"`
	GroupID    int64    `json:"group_id"`
	Options    []string `json:"options"`
}

func rawOrEmpty(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

type archiveFile struct {
	name string
	v    interface{}
}

func (a *Archive) files() []archiveFile {
	return []archiveFile{
		{"group_info.json", &a.GroupInfo},
		{"group_detail.json", &a.GroupDetail},
		{"members.json", &a.Members},
		{"notices.json", &a.Notices},
		{"essence.json", &a.Essence},
		{"honors.json", &a.Honors},
		{"albums.json", &a.Albums},
		{"album_media.json", &a.AlbumMedia},
		{"metadata.json", &a.Metadata},
	}
}

// writeArchive 将原始数据写入 dir
func writeArchive(dir string, a *Archive) error {
	if err := global.MkdirAll(dir); err != nil {
		return err
	}
	if a.GroupInfo == nil {
		a.GroupInfo = rawOrEmpty("")
	}
	if a.GroupDetail == nil {
		a.GroupDetail = rawOrEmpty("")
	}
	if a.Honors == nil {
		a.Honors = rawOrEmpty("")
	}
	if a.Members == nil {
		a.Members = []napcat.Member{}
	}
	if a.Notices == nil {
		a.Notices = []napcat.Notice{}
	}
	if a.Essence == nil {
		a.Essence = []napcat.Essence{}
	}
	if a.Albums == nil {
		a.Albums = []napcat.Album{}
	}
	if a.AlbumMedia == nil {
		a.AlbumMedia = map[string][]napcat.Media{}
	}
	for _, f := range a.files() {
		path := filepath.Join(dir, f.name)
		if err := global.WriteJSON(path, f.v); err != nil {
			return err
		}
		log.Debugf("成功保存备份快照文件: %s", path)
	}
	return nil
}

// readArchive 读取 dir 中的原始数据, 缺失的文件会被忽略
func readArchive(dir string) (*Archive, error) {
	a := &Archive{}
	for _, f := range a.files() {
		path := filepath.Join(dir, f.name)
		if !global.PathExists(path) {
			continue
		}
		if err := global.ReadJSON(path, f.v); err != nil {
			log.Warnf("加载备份文件 %s 失败: %v", path, err)
		}
	}
	return a, nil
}

// Archives 列出群的全部备份目录名, 按时间升序
func (s *Service) Archives(groupID int64) ([]string, error) {
	entries, err := os.ReadDir(s.groupDir(groupID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read backup dir")
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && dirPattern.MatchString(e.Name()) {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// LatestArchive 读取群最近一次的备份数据
func (s *Service) LatestArchive(groupID int64) (*Archive, string, error) {
	dirs, err := s.Archives(groupID)
	if err != nil {
		return nil, "", err
	}
	if len(dirs) == 0 {
		return nil, "", errors.Wrapf(ErrNoBackup, "group %d", groupID)
	}
	dir := filepath.Join(s.groupDir(groupID), dirs[len(dirs)-1])
	a, err := readArchive(dir)
	return a, dir, err
}

// deletedItem deleted_items.json 中的一条记录
type deletedItem struct {
	DeletedAt string      `json:"deleted_at"`
	Content   interface{} `json:"content"`
}

// archiveDeleted 将已删除的公告/精华追加到 logs/deleted_items.json
func (s *Service) archiveDeleted(groupID int64, itemType string, at time.Time, items []interface{}) error {
	if len(items) == 0 {
		return nil
	}
	path := s.deletedItemsPath(groupID)
	archived := map[string][]deletedItem{}
	if global.PathExists(path) {
		if err := global.ReadJSON(path, &archived); err != nil {
			log.Warnf("读取 %s 失败, 将重新创建: %v", path, err)
			archived = map[string][]deletedItem{}
		}
	}
	for _, item := range items {
		archived[itemType] = append(archived[itemType], deletedItem{
			DeletedAt: at.Format("2006-01-02 15:04:05"),
			Content:   item,
		})
	}
	if err := global.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	if err := global.WriteJSON(path, archived); err != nil {
		return err
	}
	log.Infof("已归档 %d 个已删除的项目（类型: '%s'）到 %s", len(items), itemType, path)
	return nil
}
