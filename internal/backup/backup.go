package backup

import (
	"context"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/diff"
	"github.com/qqgroup/go-group-backup/internal/download"
	"github.com/qqgroup/go-group-backup/internal/napcat"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
	"github.com/qqgroup/go-group-backup/modules/config"
)

// Report 一次备份的结果
type Report struct {
	GroupID   int64
	GroupName string
	Time      time.Time
	Dir       string // 本次备份的原始数据目录
	First     bool   // 是否为首次备份
	Events    []changelog.ChangeEvent

	Members int
	Notices int
	Essence int
	Albums  int
	Media   int

	Downloaded     int64
	DownloadFailed int64
	DownloadBytes  int64

	Warnings []string // 获取失败并沿用上次数据的部分
}

func (r *Report) warn(section string, err error) {
	log.Warnf("获取%s失败: %v", section, err)
	r.Warnings = append(r.Warnings, section+": "+err.Error())
}

// Backup 备份群数据
//
// 获取数据 -> 与上次快照比较 -> 追加变更日志 -> 保存快照.
// 可选部分获取失败时沿用上次快照, 不会产生虚假的变更.
func (s *Service) Backup(ctx context.Context, groupID int64) (*Report, error) {
	prev, err := s.store.Get(groupID)
	if errors.Is(err, snapshot.ErrNotFound) {
		prev, err = nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "读取上次快照失败")
	}

	now := s.opt.Clock()
	report := &Report{GroupID: groupID, Time: now, First: prev == nil}
	archive := &Archive{}

	info, rawInfo, err := s.client.GetGroupInfo(ctx, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "获取群信息失败")
	}
	report.GroupName = info.GroupName
	archive.GroupInfo = rawOrEmpty(rawInfo.Raw)
	log.Infof("正在开始备份群 %s(%d) 的数据...", info.GroupName, groupID)

	cur := &snapshot.GroupSnapshot{GroupID: groupID, CapturedAt: now}
	var last *Archive
	previous := func() *Archive {
		if last == nil {
			a, _, err := s.LatestArchive(groupID)
			if err != nil || a == nil {
				a = &Archive{}
			}
			last = a
		}
		return last
	}
	// carry 沿用上次快照和上次备份文件中的某一部分.
	// 只有上次确实获取过的部分才会标记为已获取, 避免之后开启该部分时产生虚假的变更.
	carry := func(section snapshot.Section, fn func(p *snapshot.GroupSnapshot, a *Archive)) {
		if prev == nil {
			return
		}
		fn(prev, previous())
		if prev.Captured(section) {
			cur.Capture(section)
		}
	}

	if s.enabled(config.OptionAvatar) {
		if _, err := (download.Request{URL: s.avatarURL(groupID), Context: ctx}).
			WithTimeout(s.opt.DownloadTimeout).WriteToFile(s.avatarPath(groupID)); err != nil {
			report.warn(config.OptionAvatar, err)
		}
	}

	if s.enabled(config.OptionInfo) {
		detail, err := s.client.GetGroupDetailInfo(ctx, groupID)
		if err != nil {
			report.warn(config.OptionInfo, err)
			archive.GroupDetail = previous().GroupDetail
		} else {
			archive.GroupDetail = rawOrEmpty(detail.Raw)
		}
	}

	if s.enabled(config.OptionMembers) {
		members, err := s.client.GetGroupMemberList(ctx, groupID)
		if err != nil {
			return nil, errors.Wrap(err, "获取群成员失败")
		}
		log.Infof("获取到 %d 名成员。", len(members))
		archive.Members = members
		cur.Members = toMembers(members)
		cur.Capture(snapshot.SectionMembers)
	} else {
		carry(snapshot.SectionMembers, func(p *snapshot.GroupSnapshot, a *Archive) {
			cur.Members, archive.Members = p.Members, a.Members
		})
	}

	carryNotices := func(p *snapshot.GroupSnapshot, a *Archive) {
		cur.Notices, archive.Notices = p.Notices, a.Notices
	}
	if s.enabled(config.OptionNotices) {
		notices, err := s.client.GetGroupNotice(ctx, groupID)
		if err != nil {
			report.warn(config.OptionNotices, err)
			carry(snapshot.SectionNotices, carryNotices)
		} else {
			archive.Notices = notices
			cur.Notices = toNotices(notices)
			cur.Capture(snapshot.SectionNotices)
		}
	} else {
		carry(snapshot.SectionNotices, carryNotices)
	}

	carryEssence := func(p *snapshot.GroupSnapshot, a *Archive) {
		cur.Essence, archive.Essence = p.Essence, a.Essence
	}
	if s.enabled(config.OptionEssence) {
		essence, err := s.client.GetEssenceMsgList(ctx, groupID)
		if err != nil {
			report.warn(config.OptionEssence, err)
			carry(snapshot.SectionEssence, carryEssence)
		} else {
			archive.Essence = essence
			cur.Essence = toEssence(essence)
			cur.Capture(snapshot.SectionEssence)
		}
	} else {
		carry(snapshot.SectionEssence, carryEssence)
	}

	if s.enabled(config.OptionHonors) {
		raw, _, err := s.client.GetGroupHonorInfo(ctx, groupID)
		if err != nil {
			report.warn(config.OptionHonors, err)
			archive.Honors = previous().Honors
		} else {
			archive.Honors = rawOrEmpty(raw.Raw)
		}
	}

	var albums *albumResult
	carryAlbums := func(p *snapshot.GroupSnapshot, a *Archive) {
		cur.AlbumItems = p.AlbumItems
		archive.Albums, archive.AlbumMedia = a.Albums, a.AlbumMedia
	}
	if s.enabled(config.OptionAlbums) {
		albums, err = s.fetchAlbums(ctx, groupID)
		if err != nil {
			report.warn(config.OptionAlbums, err)
			albums = nil
			carry(snapshot.SectionAlbums, carryAlbums)
		} else {
			archive.Albums = albums.albums
			archive.AlbumMedia = make(map[string][]napcat.Media, len(albums.media)+len(albums.failed))
			for id, media := range albums.media {
				archive.AlbumMedia[id] = media
			}
			for id := range albums.failed {
				report.Warnings = append(report.Warnings, config.OptionAlbums+": "+id)
				if media, ok := previous().AlbumMedia[id]; ok {
					archive.AlbumMedia[id] = media
				}
			}
			cur.AlbumItems = albums.albumItems(prev)
			cur.Capture(snapshot.SectionAlbums)
		}
	} else {
		carry(snapshot.SectionAlbums, carryAlbums)
	}

	events, err := diff.Diff(prev, cur)
	if err != nil {
		return nil, errors.Wrap(err, "比较快照失败")
	}
	report.Events = events
	for _, e := range events {
		log.Infof("检测到变更: %s %s %s -> %s", e.Kind, e.SubjectID, e.OldValue, e.NewValue)
	}

	s.applyAlbumEvents(groupID, prev, cur, events)
	s.archiveRemovedContent(groupID, now, events)

	if albums != nil && len(albums.albums) > 0 {
		log.Infof("发现 %d 个相册，正在备份原图...", len(albums.albums))
		stat := s.downloadAlbums(ctx, groupID, albums)
		report.Downloaded, report.DownloadFailed, report.DownloadBytes = stat.downloaded, stat.failed, stat.bytes
	}

	report.Dir = filepath.Join(s.groupDir(groupID), now.Format(dirLayout))
	archive.Metadata = Metadata{BackupTime: now.Format(time.RFC3339), GroupID: groupID, Options: s.opt.Options}
	if err := writeArchive(report.Dir, archive); err != nil {
		return nil, errors.Wrap(err, "保存备份文件失败")
	}

	if err := s.log.Append(events...); err != nil {
		return nil, errors.Wrap(err, "追加变更日志失败")
	}
	if err := s.store.Put(cur); err != nil {
		return nil, errors.Wrap(err, "保存快照失败")
	}

	report.Members = len(cur.Members)
	report.Notices = len(cur.Notices)
	report.Essence = len(cur.Essence)
	for _, item := range cur.AlbumItems {
		if item.Kind == snapshot.KindAlbum {
			report.Albums++
		} else {
			report.Media++
		}
	}
	log.Infof("群 %d 备份成功！数据已保存至 %s", groupID, report.Dir)
	return report, nil
}

// archiveRemovedContent 将被删除的公告与精华消息写入回收站
func (s *Service) archiveRemovedContent(groupID int64, at time.Time, events []changelog.ChangeEvent) {
	var notices, essence []interface{}
	var prevArchive *Archive
	lookup := func() *Archive {
		if prevArchive == nil {
			prevArchive, _, _ = s.LatestArchive(groupID)
			if prevArchive == nil {
				prevArchive = &Archive{}
			}
		}
		return prevArchive
	}
	for _, e := range events {
		switch e.Kind {
		case changelog.NoticeRemoved:
			var item interface{} = snapshot.ContentItem{ID: e.SubjectID, Text: e.OldValue}
			for _, n := range lookup().Notices {
				if n.NoticeID == e.SubjectID {
					item = n
					break
				}
			}
			notices = append(notices, item)
		case changelog.EssenceRemoved:
			var item interface{} = snapshot.ContentItem{ID: e.SubjectID, Text: e.OldValue}
			for _, m := range lookup().Essence {
				if m.MessageID == e.SubjectID {
					item = m
					break
				}
			}
			essence = append(essence, item)
		}
	}
	if err := s.archiveDeleted(groupID, "notices", at, notices); err != nil {
		log.Errorf("归档已删除的群公告失败: %v", err)
	}
	if err := s.archiveDeleted(groupID, "essence", at, essence); err != nil {
		log.Errorf("归档已删除的精华消息失败: %v", err)
	}
}

func toMembers(members []napcat.Member) []snapshot.Member {
	ret := make([]snapshot.Member, 0, len(members))
	seen := make(map[int64]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m.UserID]; ok || m.UserID == 0 {
			continue
		}
		seen[m.UserID] = struct{}{}
		ret = append(ret, snapshot.Member{MemberID: m.UserID, DisplayName: m.Nickname, CardName: m.Card})
	}
	return ret
}

func toContent(n int, at func(i int) (id, text string)) []snapshot.ContentItem {
	var ret []snapshot.ContentItem
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id, text := at(i)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ret = append(ret, snapshot.ContentItem{ID: id, Text: text})
	}
	return ret
}

func toNotices(notices []napcat.Notice) []snapshot.ContentItem {
	return toContent(len(notices), func(i int) (string, string) {
		return notices[i].NoticeID, notices[i].Content
	})
}

func toEssence(essence []napcat.Essence) []snapshot.ContentItem {
	return toContent(len(essence), func(i int) (string, string) {
		return essence[i].MessageID, essence[i].Content
	})
}
