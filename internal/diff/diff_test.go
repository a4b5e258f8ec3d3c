package diff

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
)

var (
	t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
)

func sample() *snapshot.GroupSnapshot {
	return &snapshot.GroupSnapshot{
		GroupID:    10001,
		CapturedAt: t0,
		Sections:   append([]snapshot.Section(nil), snapshot.AllSections...),
		Members: []snapshot.Member{
			{MemberID: 1, DisplayName: "A", CardName: "A"},
			{MemberID: 20, DisplayName: "B", CardName: ""},
			{MemberID: 3, DisplayName: "C", CardName: "c"},
		},
		AlbumItems: []snapshot.AlbumItem{
			{ItemID: "alb1", Name: "旅行", Kind: snapshot.KindAlbum},
			{ItemID: "alb1/m1", Kind: snapshot.KindMedia, Parent: "alb1"},
		},
		Notices: []snapshot.ContentItem{{ID: "n1", Text: "欢迎"}},
		Essence: []snapshot.ContentItem{{ID: "e1", Text: "精华"}},
	}
}

func kinds(events []changelog.ChangeEvent) []changelog.Kind {
	ret := make([]changelog.Kind, len(events))
	for i, e := range events {
		ret[i] = e.Kind
	}
	return ret
}

func TestDiffFirstBackup(t *testing.T) {
	events, err := Diff(nil, sample())
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestDiffIdentical(t *testing.T) {
	s := sample()
	events, err := Diff(s, s.Clone())
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestDiffMemberLeft(t *testing.T) {
	old := sample()
	cur := old.Clone()
	cur.CapturedAt = t1
	cur.Members = cur.Members[:2]

	events, err := Diff(old, cur)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, changelog.ChangeEvent{
		GroupID:    10001,
		OccurredAt: t1,
		Kind:       changelog.MemberLeft,
		SubjectID:  "3",
		OldValue:   "C",
	}, events[0])
}

func TestDiffCardRenamed(t *testing.T) {
	old := sample()
	cur := old.Clone()
	cur.Members[1].CardName = "新名片"

	events, err := Diff(old, cur)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, changelog.CardRenamed, events[0].Kind)
	assert.Equal(t, "20", events[0].SubjectID)
	assert.Equal(t, "", events[0].OldValue)
	assert.Equal(t, "新名片", events[0].NewValue)
}

func TestDiffNicknameChangeIgnored(t *testing.T) {
	old := sample()
	cur := old.Clone()
	cur.Members[0].DisplayName = "AA"

	events, err := Diff(old, cur)
	assert.NoError(t, err)
	assert.Empty(t, events)
}

// 排序规则为 删除 -> 改名 -> 新增, 改名必须排在同一批次的入群之前
func TestDiffRenamesBeforeAdditions(t *testing.T) {
	members := []snapshot.Section{snapshot.SectionMembers}
	old := &snapshot.GroupSnapshot{
		GroupID: 1, CapturedAt: t0, Sections: members,
		Members: []snapshot.Member{{MemberID: 1, DisplayName: "A", CardName: "A"}},
	}
	cur := &snapshot.GroupSnapshot{
		GroupID: 1, CapturedAt: t1, Sections: members,
		Members: []snapshot.Member{
			{MemberID: 2, DisplayName: "C", CardName: "C"},
			{MemberID: 1, DisplayName: "A", CardName: "B"},
		},
	}

	events, err := Diff(old, cur)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, changelog.CardRenamed, events[0].Kind)
	assert.Equal(t, "1", events[0].SubjectID)
	assert.Equal(t, "A", events[0].OldValue)
	assert.Equal(t, "B", events[0].NewValue)
	assert.Equal(t, changelog.MemberJoined, events[1].Kind)
	assert.Equal(t, "2", events[1].SubjectID)
	assert.Equal(t, "C", events[1].NewValue)
}

func TestDiffOrdering(t *testing.T) {
	old := sample()
	cur := old.Clone()
	cur.CapturedAt = t1
	cur.Members = []snapshot.Member{
		{MemberID: 100, DisplayName: "N2"},
		{MemberID: 3, DisplayName: "C", CardName: "cc"},
		{MemberID: 9, DisplayName: "N1"},
	}
	cur.AlbumItems = []snapshot.AlbumItem{{ItemID: "alb1", Name: "旅行2", Kind: snapshot.KindAlbum}}
	cur.Notices = nil
	cur.Essence = nil

	events, err := Diff(old, cur)
	require.NoError(t, err)
	assert.Equal(t, []changelog.Kind{
		changelog.MemberLeft,       // 1
		changelog.MemberLeft,       // 20
		changelog.AlbumItemRemoved, // alb1/m1
		changelog.EssenceRemoved,   // e1
		changelog.NoticeRemoved,    // n1
		changelog.CardRenamed,      // 3
		changelog.AlbumItemRenamed, // alb1
		changelog.MemberJoined,     // 9
		changelog.MemberJoined,     // 100
	}, kinds(events))
	assert.Equal(t, "1", events[0].SubjectID)
	assert.Equal(t, "20", events[1].SubjectID)
	assert.Equal(t, "9", events[7].SubjectID)
	assert.Equal(t, "100", events[8].SubjectID)
}

func TestDiffDeterministic(t *testing.T) {
	old := sample()
	cur := old.Clone()
	cur.Members = []snapshot.Member{{MemberID: 7}, {MemberID: 5}, {MemberID: 6}}
	cur.AlbumItems = nil

	var outputs [][]byte
	for i := 0; i < 20; i++ {
		events, err := Diff(old, cur)
		require.NoError(t, err)
		b, err := json.Marshal(events)
		require.NoError(t, err)
		outputs = append(outputs, b)
	}
	for _, b := range outputs[1:] {
		assert.Equal(t, outputs[0], b)
	}
}

func TestDiffInvalidSnapshot(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *snapshot.GroupSnapshot)
	}{
		{"group id", func(s *snapshot.GroupSnapshot) { s.GroupID = 0 }},
		{"captured at", func(s *snapshot.GroupSnapshot) { s.CapturedAt = time.Time{} }},
		{"member id", func(s *snapshot.GroupSnapshot) { s.Members[0].MemberID = 0 }},
		{"duplicate member", func(s *snapshot.GroupSnapshot) { s.Members[1].MemberID = 1 }},
		{"album id", func(s *snapshot.GroupSnapshot) { s.AlbumItems[0].ItemID = "" }},
		{"album kind", func(s *snapshot.GroupSnapshot) { s.AlbumItems[0].Kind = "folder" }},
		{"notice id", func(s *snapshot.GroupSnapshot) { s.Notices[0].ID = "" }},
		{"unknown section", func(s *snapshot.GroupSnapshot) { s.Sections = append(s.Sections, "honors") }},
		{"duplicate section", func(s *snapshot.GroupSnapshot) { s.Sections = append(s.Sections, snapshot.SectionMembers) }},
		{"duplicate essence", func(s *snapshot.GroupSnapshot) {
			s.Essence = append(s.Essence, snapshot.ContentItem{ID: "e1"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := sample()
			tt.mutate(bad)

			events, err := Diff(sample(), bad)
			assert.True(t, errors.Is(err, ErrInvalidSnapshot), "%v", err)
			assert.Nil(t, events)

			_, err = Diff(bad, sample())
			assert.True(t, errors.Is(err, ErrInvalidSnapshot), "%v", err)
		})
	}
}

func TestDiffSectionNotCaptured(t *testing.T) {
	// 上次未抓取成员与公告, 本次首次抓取不应产生入群事件
	old := sample()
	old.Sections = []snapshot.Section{snapshot.SectionAlbums, snapshot.SectionEssence}
	old.Members = nil
	old.Notices = nil
	cur := sample()
	cur.CapturedAt = t1
	cur.Notices = []snapshot.ContentItem{{ID: "n2", Text: "新公告"}}

	events, err := Diff(old, cur)
	require.NoError(t, err)
	assert.Empty(t, events)

	// 本次未抓取的部分同样跳过
	cur = sample()
	cur.CapturedAt = t1
	cur.Sections = []snapshot.Section{snapshot.SectionMembers}
	cur.AlbumItems = nil
	cur.Essence = nil
	events, err = Diff(sample(), cur)
	require.NoError(t, err)
	assert.Empty(t, events)

	cur.Members = cur.Members[:1]
	events, err = Diff(sample(), cur)
	require.NoError(t, err)
	assert.Equal(t, []changelog.Kind{changelog.MemberLeft, changelog.MemberLeft}, kinds(events))
}

func TestDiffGroupMismatch(t *testing.T) {
	other := sample()
	other.GroupID = 2
	_, err := Diff(sample(), other)
	assert.True(t, errors.Is(err, ErrInvalidSnapshot))
}

func TestLessID(t *testing.T) {
	assert.True(t, lessID("2", "10"))
	assert.False(t, lessID("10", "2"))
	assert.True(t, lessID("99", "a"))
	assert.True(t, lessID("alb1", "alb1/m1"))
}
