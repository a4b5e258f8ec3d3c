package sqlite3

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
)

func open(t *testing.T) *database {
	d := New(filepath.Join(t.TempDir(), "sub", "backup.db")).(*database)
	require.NoError(t, d.Open())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestSnapshot(t *testing.T) {
	d := open(t)
	_, err := d.Get(1)
	assert.True(t, errors.Is(err, snapshot.ErrNotFound))

	s := &snapshot.GroupSnapshot{
		GroupID:    1,
		CapturedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Members:    []snapshot.Member{{MemberID: 7, DisplayName: "七", CardName: "7"}},
		AlbumItems: []snapshot.AlbumItem{{ItemID: "a", Name: "A", Kind: snapshot.KindAlbum}},
		Sections:   []snapshot.Section{snapshot.SectionMembers, snapshot.SectionAlbums},
	}
	require.NoError(t, d.Put(s))
	s.Members[0].CardName = "八"
	require.NoError(t, d.Put(s))

	got, err := d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "八", got.Members[0].CardName)
	assert.True(t, s.CapturedAt.Equal(got.CapturedAt))
	assert.Equal(t, s.Sections, got.Sections)

	require.NoError(t, d.Delete(1))
	_, err = d.Get(1)
	assert.True(t, errors.Is(err, snapshot.ErrNotFound))
}

func TestChangeLog(t *testing.T) {
	d := open(t)
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.Append(
		changelog.ChangeEvent{GroupID: 1, OccurredAt: t0, Kind: changelog.MemberLeft, SubjectID: "2", OldValue: "B"},
		changelog.ChangeEvent{GroupID: 1, OccurredAt: t0.Add(time.Hour), Kind: changelog.CardRenamed, SubjectID: "3", OldValue: "a", NewValue: "b"},
	))
	all, err := d.List(1, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, changelog.ChangeEvent{GroupID: 1, OccurredAt: t0, Kind: changelog.MemberLeft, SubjectID: "2", OldValue: "B"}, all[0])

	later, err := d.List(1, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, changelog.CardRenamed, later[0].Kind)

	require.NoError(t, d.Purge(1))
	all, err = d.List(1, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestChangeLogUnknownKind(t *testing.T) {
	d := open(t)
	_, err := d.db.Exec(`INSERT INTO change_log (group_id, occurred_at, kind, subject_id, old_value, new_value) VALUES (?, ?, ?, ?, ?, ?)`,
		1, time.Now().UnixNano(), "group_exploded", "1", "", "")
	require.NoError(t, err)
	_, err = d.List(1, time.Time{})
	assert.Error(t, err)
}
