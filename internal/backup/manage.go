package backup

import (
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/qqgroup/go-group-backup/global"
	"github.com/qqgroup/go-group-backup/internal/changelog"
)

// Delete 删除群的全部备份: 本地文件, 快照与变更日志
func (s *Service) Delete(groupID int64) error {
	dir := s.groupDir(groupID)
	existed := global.PathExists(dir)
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, "删除备份目录失败")
	}
	if err := s.store.Delete(groupID); err != nil {
		return errors.Wrap(err, "删除快照失败")
	}
	if err := s.log.Purge(groupID); err != nil {
		return errors.Wrap(err, "清空变更日志失败")
	}
	if existed {
		log.Infof("已删除群 %d 的备份: %s", groupID, dir)
	} else {
		log.Infof("群 %d 没有本地备份文件, 已清理快照与变更日志", groupID)
	}
	return nil
}

// History 列出群的变更记录, since 为零值时返回全部
func (s *Service) History(groupID int64, since time.Time) ([]changelog.ChangeEvent, error) {
	events, err := s.log.List(groupID, since)
	return events, errors.Wrap(err, "读取变更日志失败")
}
