// Package mime 提供MIME检查功能
package mime

import (
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

var lawfulImage = [...]string{
	"image/bmp",
	"image/gif",
	"image/jpeg",
	"image/png",
	"image/webp",
}

var lawfulVideo = [...]string{
	"video/mp4",
	"video/quicktime",
	"video/webm",
	"video/x-matroska",
	"video/x-msvideo",
}

func check(r io.ReadSeeker, list []string) (bool, string) {
	_, _ = r.Seek(0, io.SeekStart)
	defer r.Seek(0, io.SeekStart)
	t, err := mimetype.DetectReader(r)
	if err != nil {
		logrus.Debugf("扫描 Mime 时出现问题: %v", err)
		return false, ""
	}
	for _, lt := range list {
		if t.Is(lt) {
			return true, t.String()
		}
	}
	return false, t.String()
}

// CheckImage 判断给定流是否为合法图片
// 返回 是否合法, 实际Mime
// 判断后会自动将 Stream Seek 至 0
func CheckImage(r io.ReadSeeker) (bool, string) {
	return check(r, lawfulImage[:])
}

// CheckVideo 判断给定流是否为合法视频
func CheckVideo(r io.ReadSeeker) (bool, string) {
	return check(r, lawfulVideo[:])
}

// Extension 根据文件内容返回后缀 (含 .), 无法识别时返回 fallback
func Extension(path, fallback string) string {
	t, err := mimetype.DetectFile(path)
	if err != nil {
		logrus.Debugf("扫描 Mime 时出现问题: %v", err)
		return fallback
	}
	if t.Extension() == "" {
		return fallback
	}
	return t.Extension()
}
