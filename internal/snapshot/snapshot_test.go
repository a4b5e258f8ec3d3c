package snapshot

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(42)
	assert.True(t, errors.Is(err, ErrNotFound))

	s := &GroupSnapshot{
		GroupID:    42,
		CapturedAt: time.Unix(1700000000, 0),
		Members:    []Member{{MemberID: 1, DisplayName: "A"}},
	}
	require.NoError(t, store.Put(s))

	// 存储内部持有副本
	s.Members[0].DisplayName = "changed"
	got, err := store.Get(42)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Members[0].DisplayName)

	replaced := &GroupSnapshot{GroupID: 42, CapturedAt: time.Unix(1700000100, 0)}
	require.NoError(t, store.Put(replaced))
	got, err = store.Get(42)
	require.NoError(t, err)
	assert.Empty(t, got.Members)

	require.NoError(t, store.Delete(42))
	_, err = store.Get(42)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGroupSnapshotHelpers(t *testing.T) {
	s := &GroupSnapshot{
		AlbumItems: []AlbumItem{
			{ItemID: "a", Name: "相册", Kind: KindAlbum},
			{ItemID: "a/1", Kind: KindMedia, Parent: "a"},
		},
	}
	assert.Equal(t, []AlbumItem{{ItemID: "a", Name: "相册", Kind: KindAlbum}}, s.Albums())
	assert.Nil(t, (*GroupSnapshot)(nil).Clone())
}

func TestSections(t *testing.T) {
	s := &GroupSnapshot{}
	assert.False(t, s.Captured(SectionMembers))
	s.Capture(SectionMembers)
	s.Capture(SectionMembers)
	assert.True(t, s.Captured(SectionMembers))
	assert.Equal(t, []Section{SectionMembers}, s.Sections)

	c := s.Clone()
	c.Capture(SectionNotices)
	assert.False(t, s.Captured(SectionNotices))

	assert.True(t, SectionEssence.Valid())
	assert.False(t, Section("honors").Valid())
}
