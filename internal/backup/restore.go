package backup

import (
	"bytes"
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/qqgroup/go-group-backup/modules/mime"
)

// 可恢复的字段
const (
	FieldName    = "群名称"
	FieldAvatar  = "群头像"
	FieldNotices = "群公告"
	FieldCards   = "群名片"
)

// AllFields 全部可恢复字段
var AllFields = []string{FieldName, FieldAvatar, FieldNotices, FieldCards}

// RestoreResult 恢复结果, Errors 以字段名为键
type RestoreResult struct {
	Source  int64
	Target  int64
	Name    bool
	Avatar  bool
	Notices int
	Cards   int
	Errors  map[string]error
}

func (r *RestoreResult) fail(field string, err error) {
	log.Warnf("恢复%s失败: %v", field, err)
	r.Errors[field] = err
}

// Restore 将 source 群最近一次备份中的部分字段恢复到 target 群
//
// fields 为空时恢复全部字段. 单个字段失败不影响其余字段.
func (s *Service) Restore(ctx context.Context, source, target int64, fields []string) (*RestoreResult, error) {
	if len(fields) == 0 {
		fields = AllFields
	}
	for _, f := range fields {
		if !validField(f) {
			return nil, errors.Errorf("未知的恢复字段: %s", f)
		}
	}
	archive, dir, err := s.LatestArchive(source)
	if err != nil {
		return nil, err
	}
	log.Infof("正在从 %s 恢复数据到群 %d...", dir, target)
	ret := &RestoreResult{Source: source, Target: target, Errors: map[string]error{}}

	for _, field := range fields {
		switch field {
		case FieldName:
			name := gjson.GetBytes(archive.GroupInfo, "group_name").String()
			if name == "" {
				ret.fail(field, errors.New("备份中没有群名称"))
				continue
			}
			if err := s.client.SetGroupName(ctx, target, name); err != nil {
				ret.fail(field, err)
				continue
			}
			ret.Name = true
		case FieldAvatar:
			data, err := os.ReadFile(s.avatarPath(source))
			if err != nil {
				ret.fail(field, errors.Wrap(err, "读取备份头像失败"))
				continue
			}
			if ok, mt := mime.CheckImage(bytes.NewReader(data)); !ok {
				ret.fail(field, errors.Errorf("备份头像不是有效的图片: %s", mt))
				continue
			}
			if err := s.client.SetGroupPortrait(ctx, target, data); err != nil {
				ret.fail(field, err)
				continue
			}
			ret.Avatar = true
		case FieldNotices:
			for _, n := range archive.Notices {
				if n.Content == "" {
					continue
				}
				if err := s.client.SendGroupNotice(ctx, target, n.Content); err != nil {
					ret.fail(field, err)
					continue
				}
				ret.Notices++
			}
		case FieldCards:
			if err := s.restoreCards(ctx, archive, target, ret); err != nil {
				ret.fail(field, err)
			}
		}
	}
	log.Infof("群 %d 恢复完成: 群名称=%v 群头像=%v 公告 %d 条 名片 %d 个", target, ret.Name, ret.Avatar, ret.Notices, ret.Cards)
	return ret, nil
}

// restoreCards 只修改目标群中存在且名片不同的成员
func (s *Service) restoreCards(ctx context.Context, archive *Archive, target int64, ret *RestoreResult) error {
	members, err := s.client.GetGroupMemberList(ctx, target)
	if err != nil {
		return errors.Wrap(err, "获取目标群成员失败")
	}
	current := make(map[int64]string, len(members))
	for _, m := range members {
		current[m.UserID] = m.Card
	}
	var last error
	for _, m := range archive.Members {
		card, ok := current[m.UserID]
		if !ok || card == m.Card {
			continue
		}
		if err := s.client.SetGroupCard(ctx, target, m.UserID, m.Card); err != nil {
			log.Warnf("恢复成员 %d 的群名片失败: %v", m.UserID, err)
			last = err
			continue
		}
		ret.Cards++
	}
	return last
}

func validField(f string) bool {
	for _, v := range AllFields {
		if v == f {
			return true
		}
	}
	return false
}
