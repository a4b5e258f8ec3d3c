// Package config 包含群备份工具操作配置文件的相关函数
package config

import (
	_ "embed" // embed the default config file
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// defaultConfig 默认配置文件
//
//go:embed default_config.yml
var defaultConfig string

// 备份选项
const (
	OptionInfo    = "群信息"
	OptionAvatar  = "群头像"
	OptionMembers = "群成员"
	OptionNotices = "群公告"
	OptionEssence = "精华消息"
	OptionAlbums  = "群相册"
	OptionHonors  = "群荣誉"
)

// AllOptions 全部备份选项, 未配置时默认全部启用
var AllOptions = []string{
	OptionInfo, OptionAvatar, OptionMembers, OptionNotices,
	OptionEssence, OptionAlbums, OptionHonors,
}

// RateLimit 调用频率限制
type RateLimit struct {
	Enabled   bool    `yaml:"enabled"`
	Frequency float64 `yaml:"frequency"`
	Bucket    int     `yaml:"bucket"`
}

// Gateway NapCat / OneBot v11 网关配置
type Gateway struct {
	Type        string    `yaml:"type"` // http 或 ws
	Address     string    `yaml:"address"`
	AccessToken string    `yaml:"access-token"`
	Timeout     int       `yaml:"timeout"` // 单位秒
	RateLimit   RateLimit `yaml:"rate-limit"`
}

// Backup 备份行为配置
type Backup struct {
	DataDir         string   `yaml:"data-dir"`
	Options         []string `yaml:"options"`
	DownloadThreads int      `yaml:"download-threads"`
	DownloadTimeout int      `yaml:"download-timeout"` // 单位秒
	Proxy           string   `yaml:"proxy"`            // 下载代理, 为空时读取环境变量
}

// Config 总配置文件
type Config struct {
	Gateway Gateway `yaml:"gateway"`
	Backup  Backup  `yaml:"backup"`

	Output struct {
		LogLevel    string `yaml:"log-level"`
		LogAging    int    `yaml:"log-aging"`
		LogForceNew bool   `yaml:"log-force-new"`
		Debug       bool   `yaml:"debug"`
	} `yaml:"output"`

	Database map[string]yaml.Node `yaml:"database"`
}

// LevelDBConfig leveldb 相关配置
type LevelDBConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

// SQLite3Config sqlite 相关配置
type SQLite3Config struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

// MongoDBConfig mongodb 相关配置
type MongoDBConfig struct {
	Enable   bool   `yaml:"enable"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Enabled 判断备份选项是否启用
func (b *Backup) Enabled(option string) bool {
	for _, o := range b.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Parse 从给定路径读取配置文件, 文件不存在时返回 os.ErrNotExist
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Decode 展开环境变量后解析配置, 并填充默认值
func Decode(b []byte) (*Config, error) {
	config := &Config{}
	src := expand(string(b), os.Getenv)
	if err := yaml.NewDecoder(strings.NewReader(src)).Decode(config); err != nil {
		return nil, errors.Wrap(err, "配置文件不合法")
	}
	config.fill()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) fill() {
	if c.Gateway.Type == "" {
		c.Gateway.Type = "http"
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 30
	}
	if c.Backup.DataDir == "" {
		c.Backup.DataDir = "data"
	}
	if len(c.Backup.Options) == 0 {
		c.Backup.Options = append([]string(nil), AllOptions...)
	}
	if c.Backup.DownloadThreads <= 0 {
		c.Backup.DownloadThreads = 5
	}
	if c.Backup.DownloadTimeout <= 0 {
		c.Backup.DownloadTimeout = 60
	}
	if c.Output.LogLevel == "" {
		c.Output.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.Gateway.Type {
	case "http", "ws":
	default:
		return errors.Errorf("未知的网关类型: %s", c.Gateway.Type)
	}
	if c.Gateway.Address == "" {
		return errors.New("未配置网关地址 gateway.address")
	}
	for _, o := range c.Backup.Options {
		known := false
		for _, a := range AllOptions {
			known = known || a == o
		}
		if !known {
			return errors.Errorf("未知的备份选项: %s", o)
		}
	}
	return nil
}

// Generate 在 path 写入默认配置文件
func Generate(path string) error {
	log.Info("未找到配置文件，正在为您生成配置文件中！")
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return errors.Wrap(err, "写入默认配置文件失败")
	}
	fmt.Printf("默认配置文件已生成，请修改 %s 后重新启动!\n", path)
	return nil
}

// Node 将配置编码为 yaml.Node, 用于在代码中构造数据库配置
func Node(v interface{}) yaml.Node {
	n := yaml.Node{}
	_ = n.Encode(v)
	return n
}

var envRe = regexp.MustCompile(`\${([a-zA-Z_]+[a-zA-Z0-9_:/.]*)}`)

// expand 使用正则进行环境变量展开
// os.ExpandEnv 字符 $ 无法逃逸
// https://github.com/golang/go/issues/43482
func expand(s string, mapping func(string) string) string {
	return envRe.ReplaceAllStringFunc(s, func(s string) string {
		s = strings.Trim(s, "${}")
		before, after, ok := strings.Cut(s, ":")
		m := mapping(before)
		if ok && m == "" {
			return after
		}
		return m
	})
}
