package db_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/qqgroup/go-group-backup/db"
	"github.com/qqgroup/go-group-backup/db/memory"
	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
	"github.com/qqgroup/go-group-backup/modules/config"
)

type enable struct {
	Enable bool `yaml:"enable"`
}

func TestInit(t *testing.T) {
	multi, err := db.Init(map[string]yaml.Node{
		"memory": config.Node(enable{Enable: true}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"memory"}, multi.Names())

	multi, err = db.Init(map[string]yaml.Node{
		"memory": config.Node(enable{Enable: false}),
	})
	require.NoError(t, err)
	assert.Empty(t, multi.Names())
	_, err = multi.Get(1)
	assert.True(t, errors.Is(err, db.ErrDisabled))

	_, err = db.Init(map[string]yaml.Node{"cassandra": config.Node(enable{Enable: true})})
	assert.Error(t, err)
}

func TestMultiDatabase(t *testing.T) {
	first, second := memory.New(), memory.New()
	multi := db.NewMultiDatabase()
	multi.UseDB("a", first)
	multi.UseDB("b", second)
	require.NoError(t, multi.Open())

	s := &snapshot.GroupSnapshot{GroupID: 1, CapturedAt: time.Now()}
	require.NoError(t, multi.Put(s))
	for _, b := range []db.Database{first, second} {
		got, err := b.Get(1)
		require.NoError(t, err)
		assert.Equal(t, s.GroupID, got.GroupID)
	}

	e := changelog.ChangeEvent{GroupID: 1, OccurredAt: time.Now(), Kind: changelog.MemberJoined, SubjectID: "2"}
	require.NoError(t, multi.Append(e))
	events, err := second.List(1, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, multi.Delete(1))
	require.NoError(t, multi.Purge(1))
	_, err = first.Get(1)
	assert.True(t, errors.Is(err, snapshot.ErrNotFound))
	events, err = multi.List(1, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
