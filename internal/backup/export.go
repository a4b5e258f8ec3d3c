package backup

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/xuri/excelize/v2"

	"github.com/qqgroup/go-group-backup/modules/config"
)

// ErrNoData 没有获取到任何可导出的数据
var ErrNoData = errors.New("未能获取到任何数据进行导出")

const sheetChanges = "变更记录"

var roleNames = map[string]string{
	"owner":  "群主",
	"admin":  "管理员",
	"member": "成员",
}

func formatTimestamp(ts int64) string {
	if ts > 0 {
		return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
	}
	return "未知"
}

func roleName(role string) string {
	if r, ok := roleNames[role]; ok {
		return r
	}
	return role
}

// sheet 一个待写入的工作表
type sheet struct {
	name   string
	header []interface{}
	rows   [][]interface{}
}

// Export 获取群的实时数据并导出为 Excel, 返回文件内容与文件名
func (s *Service) Export(ctx context.Context, groupID int64) ([]byte, string, error) {
	log.Infof("正在导出群 %d 的数据...", groupID)
	var sheets []sheet

	if s.enabled(config.OptionInfo) {
		if detail, err := s.client.GetGroupDetailInfo(ctx, groupID); err != nil {
			log.Warnf("导出群概况失败: %v", err)
		} else if detail.IsObject() {
			sh := sheet{name: "群概况", header: []interface{}{"属性", "值"}}
			detail.ForEach(func(k, v gjson.Result) bool {
				sh.rows = append(sh.rows, []interface{}{k.String(), cellValue(v)})
				return true
			})
			if s.enabled(config.OptionAvatar) {
				if p := s.avatarPath(groupID); fileExists(p) {
					sh.rows = append(sh.rows, []interface{}{"本地头像路径", p})
				}
			}
			sheets = append(sheets, sh)
		}
	}

	if s.enabled(config.OptionMembers) {
		if members, err := s.client.GetGroupMemberList(ctx, groupID); err != nil {
			log.Warnf("导出群成员失败: %v", err)
		} else {
			sh := sheet{name: "群成员", header: []interface{}{"QQ号", "昵称", "群昵称", "权限", "加群时间", "最后发言"}}
			for _, m := range members {
				sh.rows = append(sh.rows, []interface{}{
					m.UserID, m.Nickname, m.Card, roleName(m.Role),
					formatTimestamp(m.JoinTime), formatTimestamp(m.LastSentTime),
				})
			}
			sheets = append(sheets, sh)
		}
	}

	if s.enabled(config.OptionNotices) {
		if notices, err := s.client.GetGroupNotice(ctx, groupID); err != nil {
			log.Warnf("导出群公告失败: %v", err)
		} else if len(notices) > 0 {
			sh := sheet{name: "群公告", header: []interface{}{"发布者", "发布时间", "内容"}}
			for _, n := range notices {
				sh.rows = append(sh.rows, []interface{}{n.SenderID, formatTimestamp(n.PublishTime), n.Content})
			}
			sheets = append(sheets, sh)
		}
	}

	if s.enabled(config.OptionEssence) {
		if essence, err := s.client.GetEssenceMsgList(ctx, groupID); err != nil {
			log.Warnf("导出精华消息失败: %v", err)
		} else if len(essence) > 0 {
			sh := sheet{name: "精华消息", header: []interface{}{"发送者", "发送时间", "内容", "操作者"}}
			for _, e := range essence {
				sh.rows = append(sh.rows, []interface{}{e.SenderID, formatTimestamp(e.MsgTime), e.Content, e.OperatorID})
			}
			sheets = append(sheets, sh)
		}
	}

	if s.enabled(config.OptionHonors) {
		if _, honors, err := s.client.GetGroupHonorInfo(ctx, groupID); err != nil {
			log.Warnf("导出群荣誉失败: %v", err)
		} else if len(honors) > 0 {
			sh := sheet{name: "群荣誉", header: []interface{}{"荣誉类型", "QQ号", "描述"}}
			for _, h := range honors {
				sh.rows = append(sh.rows, []interface{}{h.Type, h.UserID, h.Nickname})
			}
			sheets = append(sheets, sh)
		}
	}

	if s.enabled(config.OptionAlbums) {
		if albums, err := s.client.GetQunAlbumList(ctx, groupID); err != nil {
			log.Warnf("导出群相册失败: %v", err)
		} else if len(albums) > 0 {
			sh := sheet{name: "群相册列表", header: []interface{}{"相册名", "相册ID", "图片数量", "创建者", "创建时间"}}
			for _, a := range albums {
				sh.rows = append(sh.rows, []interface{}{a.Name, a.AlbumID, a.PicCount, a.CreateUser, formatTimestamp(a.CreateTime)})
			}
			sheets = append(sheets, sh)
		}
	}

	if events, err := s.log.List(groupID, time.Time{}); err != nil {
		log.Warnf("导出变更记录失败: %v", err)
	} else if len(events) > 0 {
		sh := sheet{name: sheetChanges, header: []interface{}{"时间", "类型", "对象", "原值", "新值"}}
		for _, e := range events {
			sh.rows = append(sh.rows, []interface{}{
				e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.Kind.String(), e.SubjectID, e.OldValue, e.NewValue,
			})
		}
		sheets = append(sheets, sh)
	}

	if len(sheets) == 0 {
		return nil, "", ErrNoData
	}
	data, err := writeWorkbook(sheets)
	if err != nil {
		return nil, "", errors.Wrap(err, "生成 Excel 失败")
	}
	name := ExportFileName(groupID, s.opt.Clock())
	log.Infof("群 %d 数据导出成功: %s (%s)", groupID, name, humanize.Bytes(uint64(len(data))))
	return data, name, nil
}

// ExportFileName 导出文件名
func ExportFileName(groupID int64, t time.Time) string {
	return "群" + strconv.FormatInt(groupID, 10) + "_全数据导出_" + t.Format("20060102") + ".xlsx"
}

func cellValue(v gjson.Result) interface{} {
	switch v.Type {
	case gjson.Number:
		if v.Num == float64(v.Int()) {
			return v.Int()
		}
		return v.Num
	case gjson.True, gjson.False:
		return v.Bool()
	case gjson.Null:
		return ""
	case gjson.JSON:
		return v.Raw
	default:
		return v.String()
	}
}

func writeWorkbook(sheets []sheet) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, sh := range sheets {
		idx, err := f.NewSheet(sh.name)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err = f.SetSheetRow(sh.name, "A1", &sh.header); err != nil {
			return nil, err
		}
		for r, row := range sh.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return nil, err
			}
			row := row
			if err = f.SetSheetRow(sh.name, cell, &row); err != nil {
				return nil, err
			}
		}
	}
	f.DeleteSheet("Sheet1")
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Target 导出文件的发送目标, 二者只能设置一个
type Target struct {
	GroupID int64
	UserID  int64
}

// Send 将导出文件上传到群文件或私聊
func (s *Service) Send(ctx context.Context, target Target, name string, data []byte) error {
	switch {
	case target.GroupID != 0:
		return errors.Wrapf(s.client.UploadGroupFile(ctx, target.GroupID, name, data), "上传群文件到 %d 失败", target.GroupID)
	case target.UserID != 0:
		return errors.Wrapf(s.client.UploadPrivateFile(ctx, target.UserID, name, data), "发送私聊文件到 %d 失败", target.UserID)
	default:
		return errors.New("未指定发送目标")
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
