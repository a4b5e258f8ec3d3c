package global

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PathExists 判断给定path是否存在
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || os.IsExist(err)
}

// MkdirAll 创建目录, 已存在时不报错
func MkdirAll(path string) error {
	return errors.Wrapf(os.MkdirAll(path, 0o755), "create dir %s", path)
}

// MoveFile 将 src 移动到 dst, 自动创建 dst 所在目录
//
// dst 已存在时会先被删除
func MoveFile(src, dst string) error {
	if err := MkdirAll(filepath.Dir(dst)); err != nil {
		return err
	}
	if PathExists(dst) {
		if err := os.RemoveAll(dst); err != nil {
			return errors.Wrapf(err, "remove %s", dst)
		}
	}
	return errors.Wrapf(os.Rename(src, dst), "move %s to %s", src, dst)
}

// WriteJSON 将 v 以缩进格式写入 path
func WriteJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return errors.Wrapf(os.WriteFile(path, b, 0o644), "write %s", path)
}

// ReadJSON 读取 path 并解码到 v
func ReadJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	return errors.Wrapf(json.Unmarshal(b, v), "decode %s", path)
}

var unsafeName = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)

// SafeFileName 替换文件名中不允许出现的字符
func SafeFileName(name string) string {
	s := unsafeName.ReplaceAllString(name, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Check 检测err是否为nil
func Check(err error) {
	if err != nil {
		log.Fatalf("遇到错误: %v", err)
	}
}
