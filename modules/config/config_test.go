package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_expand(t *testing.T) {
	tests := []struct {
		src      string
		mapping  func(string) string
		expected string
	}{
		{
			src:      "foo: ${bar}",
			mapping:  strings.ToUpper,
			expected: "foo: BAR",
		},
		{
			src:      "$123",
			mapping:  strings.ToUpper,
			expected: "$123",
		},
		{
			src:      "addr: ${ADDR:http://127.0.0.1:3000}",
			mapping:  func(string) string { return "" },
			expected: "addr: http://127.0.0.1:3000",
		},
		{
			src:      "addr: ${ADDR:http://127.0.0.1:3000}",
			mapping:  func(string) string { return "ws://napcat" },
			expected: "addr: ws://napcat",
		},
	}
	for i, tt := range tests {
		if got := expand(tt.src, tt.mapping); got != tt.expected {
			t.Errorf("testcase %d failed, expected %v but got %v", i, tt.expected, got)
		}
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("NAPCAT_ADDRESS", "")
	t.Setenv("GBAK_PROXY", "")
	c, err := Decode([]byte(defaultConfig))
	require.NoError(t, err)
	assert.Equal(t, "http", c.Gateway.Type)
	assert.Equal(t, "http://127.0.0.1:3000", c.Gateway.Address)
	assert.Equal(t, "", c.Gateway.AccessToken)
	assert.Equal(t, AllOptions, c.Backup.Options)
	assert.Equal(t, 5, c.Backup.DownloadThreads)
	assert.Contains(t, c.Database, "leveldb")
	assert.Equal(t, "", c.Backup.Proxy)
}

func TestDecodeProxy(t *testing.T) {
	t.Setenv("GBAK_PROXY", "http://127.0.0.1:7890")
	c, err := Decode([]byte(defaultConfig))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7890", c.Backup.Proxy)
}

func TestDecode(t *testing.T) {
	c, err := Decode([]byte(`
gateway:
  type: ws
  address: ws://127.0.0.1:3001
backup:
  options: [群成员, 群相册]
`))
	require.NoError(t, err)
	assert.Equal(t, 30, c.Gateway.Timeout)
	assert.Equal(t, "data", c.Backup.DataDir)
	assert.True(t, c.Backup.Enabled(OptionMembers))
	assert.False(t, c.Backup.Enabled(OptionAvatar))
	assert.Equal(t, "info", c.Output.LogLevel)
}

func TestDecodeInvalid(t *testing.T) {
	tests := []string{
		"gateway: {type: grpc, address: x}",
		"gateway: {type: http}",
		"gateway: {address: x}\nbackup: {options: [群文件]}",
		"gateway: [",
	}
	for _, src := range tests {
		_, err := Decode([]byte(src))
		assert.Error(t, err, src)
	}
}
