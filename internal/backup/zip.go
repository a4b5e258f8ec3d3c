package backup

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Zip 将群的全部本地备份 (<data>/<group>) 打包写入 w, 返回写入的文件数
func (s *Service) Zip(groupID int64, w io.Writer) (int, error) {
	root := s.groupDir(groupID)
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return 0, errors.Wrapf(ErrNoBackup, "group %d", groupID)
	}
	zw := zip.NewWriter(w)
	count := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		name := filepath.ToSlash(rel)
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		if info.IsDir() {
			header.Name = name + "/"
			_, err = zw.CreateHeader(header)
			return err
		}
		header.Name = name
		header.Method = zip.Deflate
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		if _, err = io.Copy(fw, f); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return count, errors.Wrap(err, "打包备份失败")
	}
	if err = zw.Close(); err != nil {
		return count, errors.Wrap(err, "打包备份失败")
	}
	log.Infof("群 %d 的备份已打包, 共 %d 个文件", groupID, count)
	return count, nil
}

// ZipFileName 打包文件名
func ZipFileName(groupID int64) string {
	return "群" + strconv.FormatInt(groupID, 10) + "_备份.zip"
}
