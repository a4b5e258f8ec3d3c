package global

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFileName(t *testing.T) {
	tests := [...]struct {
		in, out string
	}{
		{"旅行", "旅行"},
		{"a/b", "a_b"},
		{`x:y*z?`, "x_y_z_"},
		{"", "_"},
		{"..", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, SafeFileName(tt.in))
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "deep", "er", "b.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.NoError(t, MoveFile(src, dst))
	assert.False(t, PathExists(src))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, WriteJSON(path, MSG{"backup_time": "2024-05-01 12:00:00"}))
	var m MSG
	require.NoError(t, ReadJSON(path, &m))
	assert.Equal(t, "2024-05-01 12:00:00", m.String("backup_time"))
}

func TestMSGInt64(t *testing.T) {
	m := MSG{"a": 1, "b": float64(2), "c": "3"}
	v, ok := m.Int64("a")
	assert.True(t, ok)
	assert.EqualValues(t, 1, v)
	v, ok = m.Int64("b")
	assert.True(t, ok)
	assert.EqualValues(t, 2, v)
	_, ok = m.Int64("c")
	assert.False(t, ok)
}

func TestLogFormat(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local),
		Level:   logrus.WarnLevel,
		Message: "备份失败",
		Data:    logrus.Fields{"group": 1, "action": "get_group_info"},
	}
	b, err := LogFormat{}.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2024-05-01 08:00:00] [WARNING]: 备份失败 action=get_group_info group=1 \n", string(b))

	b, err = LogFormat{EnableColor: true}.Format(entry)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), colorCodeWarn))
	assert.True(t, strings.HasSuffix(string(b), colorReset))
}

func TestLocalHookWriter(t *testing.T) {
	var buf bytes.Buffer
	hook := NewLocalHook(&buf, LogFormat{}, LogFormat{}, GetLogLevel("warn")...)
	assert.NotContains(t, hook.Levels(), logrus.InfoLevel)
	require.NoError(t, hook.Fire(&logrus.Entry{Level: logrus.ErrorLevel, Message: "x", Time: time.Now()}))
	assert.Contains(t, buf.String(), "[ERROR]: x")
}
