// Package diff 比较两次群快照并生成变更事件
package diff

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
)

// ErrInvalidSnapshot 快照缺少必要字段
var ErrInvalidSnapshot = errors.New("invalid snapshot")

type category int

const (
	removals category = iota
	renames
	additions
)

// rank 决定同一分类、同一 subject_id 下的先后
var rank = map[changelog.Kind]int{
	changelog.MemberLeft:       0,
	changelog.AlbumItemRemoved: 1,
	changelog.NoticeRemoved:    2,
	changelog.EssenceRemoved:   3,
	changelog.CardRenamed:      4,
	changelog.AlbumItemRenamed: 5,
	changelog.MemberJoined:     6,
}

func categoryOf(k changelog.Kind) category {
	switch k {
	case changelog.CardRenamed, changelog.AlbumItemRenamed:
		return renames
	case changelog.MemberJoined:
		return additions
	default:
		return removals
	}
}

// Diff 比较 old 与 cur, old 为 nil 表示首次备份, 不产生任何事件
//
// 只比较两次快照都抓取过的部分.
// 输出顺序: 删除类, 改名类, 新增类; 同类内按 subject_id 升序.
func Diff(old, cur *snapshot.GroupSnapshot) ([]changelog.ChangeEvent, error) {
	if err := Validate(cur); err != nil {
		return nil, errors.Wrap(err, "new snapshot")
	}
	if old == nil {
		return nil, nil
	}
	if err := Validate(old); err != nil {
		return nil, errors.Wrap(err, "old snapshot")
	}
	if old.GroupID != cur.GroupID {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "group mismatch %d != %d", old.GroupID, cur.GroupID)
	}

	var events []changelog.ChangeEvent
	emit := func(kind changelog.Kind, subject, oldValue, newValue string) {
		events = append(events, changelog.ChangeEvent{
			GroupID:    cur.GroupID,
			OccurredAt: cur.CapturedAt,
			Kind:       kind,
			SubjectID:  subject,
			OldValue:   oldValue,
			NewValue:   newValue,
		})
	}

	both := func(section snapshot.Section) bool {
		return old.Captured(section) && cur.Captured(section)
	}

	if both(snapshot.SectionMembers) {
		oldMembers := make(map[int64]snapshot.Member, len(old.Members))
		for _, m := range old.Members {
			oldMembers[m.MemberID] = m
		}
		newMembers := make(map[int64]snapshot.Member, len(cur.Members))
		for _, m := range cur.Members {
			newMembers[m.MemberID] = m
		}
		for id, m := range oldMembers {
			n, ok := newMembers[id]
			if !ok {
				emit(changelog.MemberLeft, strconv.FormatInt(id, 10), m.DisplayName, "")
				continue
			}
			if n.CardName != m.CardName {
				emit(changelog.CardRenamed, strconv.FormatInt(id, 10), m.CardName, n.CardName)
			}
		}
		for id, n := range newMembers {
			if _, ok := oldMembers[id]; !ok {
				emit(changelog.MemberJoined, strconv.FormatInt(id, 10), "", n.DisplayName)
			}
		}
	}

	if both(snapshot.SectionAlbums) {
		newItems := make(map[string]snapshot.AlbumItem, len(cur.AlbumItems))
		for _, a := range cur.AlbumItems {
			newItems[a.ItemID] = a
		}
		for _, a := range old.AlbumItems {
			n, ok := newItems[a.ItemID]
			if !ok {
				emit(changelog.AlbumItemRemoved, a.ItemID, a.Name, "")
				continue
			}
			if n.Name != a.Name {
				emit(changelog.AlbumItemRenamed, a.ItemID, a.Name, n.Name)
			}
		}
	}

	removed := func(kind changelog.Kind, before, after []snapshot.ContentItem) {
		keep := make(map[string]struct{}, len(after))
		for _, c := range after {
			keep[c.ID] = struct{}{}
		}
		for _, c := range before {
			if _, ok := keep[c.ID]; !ok {
				emit(kind, c.ID, c.Text, "")
			}
		}
	}
	if both(snapshot.SectionNotices) {
		removed(changelog.NoticeRemoved, old.Notices, cur.Notices)
	}
	if both(snapshot.SectionEssence) {
		removed(changelog.EssenceRemoved, old.Essence, cur.Essence)
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if ca, cb := categoryOf(a.Kind), categoryOf(b.Kind); ca != cb {
			return ca < cb
		}
		if a.SubjectID != b.SubjectID {
			return lessID(a.SubjectID, b.SubjectID)
		}
		return rank[a.Kind] < rank[b.Kind]
	})
	return events, nil
}

// lessID 纯数字 id 按数值比较, 其余按字典序, 数字排在非数字之前
func lessID(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// Validate 检查快照是否完整
func Validate(s *snapshot.GroupSnapshot) error {
	if s == nil {
		return errors.Wrap(ErrInvalidSnapshot, "nil snapshot")
	}
	if s.GroupID == 0 {
		return errors.Wrap(ErrInvalidSnapshot, "missing group_id")
	}
	if s.CapturedAt.IsZero() {
		return errors.Wrap(ErrInvalidSnapshot, "missing captured_at")
	}
	sections := make(map[snapshot.Section]struct{}, len(s.Sections))
	for _, sec := range s.Sections {
		if !sec.Valid() {
			return errors.Wrapf(ErrInvalidSnapshot, "unknown section %q", sec)
		}
		if _, ok := sections[sec]; ok {
			return errors.Wrapf(ErrInvalidSnapshot, "duplicate section %s", sec)
		}
		sections[sec] = struct{}{}
	}
	members := make(map[int64]struct{}, len(s.Members))
	for i, m := range s.Members {
		if m.MemberID == 0 {
			return errors.Wrapf(ErrInvalidSnapshot, "member #%d missing member_id", i)
		}
		if _, ok := members[m.MemberID]; ok {
			return errors.Wrapf(ErrInvalidSnapshot, "duplicate member %d", m.MemberID)
		}
		members[m.MemberID] = struct{}{}
	}
	items := make(map[string]struct{}, len(s.AlbumItems))
	for i, a := range s.AlbumItems {
		if a.ItemID == "" {
			return errors.Wrapf(ErrInvalidSnapshot, "album item #%d missing item_id", i)
		}
		if a.Kind != snapshot.KindAlbum && a.Kind != snapshot.KindMedia {
			return errors.Wrapf(ErrInvalidSnapshot, "album item %s has unknown kind %q", a.ItemID, a.Kind)
		}
		if _, ok := items[a.ItemID]; ok {
			return errors.Wrapf(ErrInvalidSnapshot, "duplicate album item %s", a.ItemID)
		}
		items[a.ItemID] = struct{}{}
	}
	for _, list := range [...]struct {
		name  string
		items []snapshot.ContentItem
	}{{"notice", s.Notices}, {"essence", s.Essence}} {
		seen := make(map[string]struct{}, len(list.items))
		for i, c := range list.items {
			if c.ID == "" {
				return errors.Wrapf(ErrInvalidSnapshot, "%s #%d missing id", list.name, i)
			}
			if _, ok := seen[c.ID]; ok {
				return errors.Wrapf(ErrInvalidSnapshot, "duplicate %s %s", list.name, c.ID)
			}
			seen[c.ID] = struct{}{}
		}
	}
	return nil
}
