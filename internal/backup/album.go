package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qqgroup/go-group-backup/global"
	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/download"
	"github.com/qqgroup/go-group-backup/internal/napcat"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
	"github.com/qqgroup/go-group-backup/modules/mime"
)

// mediaItemID 相册内媒体在快照中的 id
func mediaItemID(albumID, mediaID string) string {
	return albumID + "/" + mediaID
}

// albumResult 相册抓取结果
type albumResult struct {
	albums []napcat.Album
	media  map[string][]napcat.Media
	failed map[string]struct{} // 媒体列表获取失败的相册
}

func (s *Service) fetchAlbums(ctx context.Context, groupID int64) (*albumResult, error) {
	albums, err := s.client.GetQunAlbumList(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ret := &albumResult{
		albums: albums,
		media:  make(map[string][]napcat.Media, len(albums)),
		failed: make(map[string]struct{}),
	}
	for _, a := range albums {
		media, err := s.client.GetGroupAlbumMediaList(ctx, groupID, a.AlbumID)
		if err != nil {
			log.Warnf("获取相册 %s(%s) 媒体列表失败: %v", a.Name, a.AlbumID, err)
			ret.failed[a.AlbumID] = struct{}{}
			continue
		}
		ret.media[a.AlbumID] = media
	}
	return ret, nil
}

// albumItems 将抓取结果转换为快照条目, 媒体列表获取失败的相册沿用上次快照
func (r *albumResult) albumItems(prev *snapshot.GroupSnapshot) []snapshot.AlbumItem {
	var items []snapshot.AlbumItem
	seen := make(map[string]struct{})
	add := func(item snapshot.AlbumItem) {
		if item.ItemID == "" {
			return
		}
		if _, ok := seen[item.ItemID]; ok {
			return
		}
		seen[item.ItemID] = struct{}{}
		items = append(items, item)
	}
	for _, a := range r.albums {
		add(snapshot.AlbumItem{ItemID: a.AlbumID, Name: a.Name, Kind: snapshot.KindAlbum})
		if _, ok := r.failed[a.AlbumID]; ok {
			if prev != nil {
				for _, item := range prev.AlbumItems {
					if item.Kind == snapshot.KindMedia && item.Parent == a.AlbumID {
						add(item)
					}
				}
			}
			continue
		}
		for _, m := range r.media[a.AlbumID] {
			if m.MediaID == "" {
				continue
			}
			add(snapshot.AlbumItem{ItemID: mediaItemID(a.AlbumID, m.MediaID), Kind: snapshot.KindMedia, Parent: a.AlbumID})
		}
	}
	return items
}

// albumDir 相册在本地的目录
func (s *Service) albumDir(groupID int64, name string) string {
	return filepath.Join(s.albumsDir(groupID), global.SafeFileName(name))
}

// findMedia 查找已下载的媒体文件, 后缀不固定
func findMedia(dir, mediaID string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, globEscape(global.SafeFileName(mediaID))+".*"))
	for _, m := range matches {
		if !strings.HasSuffix(m, ".download") {
			return m
		}
	}
	return ""
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}

// applyAlbumEvents 根据变更事件整理本地相册目录
//
// 改名的相册目录随之改名, 被删除的相册或媒体移入 logs/deleted_items/albums
func (s *Service) applyAlbumEvents(groupID int64, prev, cur *snapshot.GroupSnapshot, events []changelog.ChangeEvent) {
	names := make(map[string]string) // 相册 id -> 当前名称
	for _, a := range cur.Albums() {
		names[a.ItemID] = a.Name
	}
	prevNames := make(map[string]string)
	if prev != nil {
		for _, a := range prev.Albums() {
			prevNames[a.ItemID] = a.Name
		}
	}
	for _, e := range events {
		if e.Kind != changelog.AlbumItemRenamed {
			continue
		}
		oldPath, newPath := s.albumDir(groupID, e.OldValue), s.albumDir(groupID, e.NewValue)
		if global.PathExists(oldPath) && !global.PathExists(newPath) {
			log.Infof("检测到相册改名: %s -> %s。正在重命名文件夹。", e.OldValue, e.NewValue)
			if err := os.Rename(oldPath, newPath); err != nil {
				log.Errorf("重命名相册文件夹失败: %v", err)
			}
		}
	}
	for _, e := range events {
		if e.Kind != changelog.AlbumItemRemoved {
			continue
		}
		parent, mediaID, isMedia := strings.Cut(e.SubjectID, "/")
		if !isMedia {
			name := prevNames[e.SubjectID]
			if name == "" {
				name = e.SubjectID
			}
			src := s.albumDir(groupID, name)
			if !global.PathExists(src) {
				continue
			}
			dst := filepath.Join(s.trashDir(groupID), global.SafeFileName(name))
			log.Infof("正在将已删除的相册目录从 %s 移动到 %s", src, dst)
			if err := global.MoveFile(src, dst); err != nil {
				log.Errorf("移动已删除的相册失败: %v", err)
			}
			continue
		}
		name, ok := names[parent]
		if !ok {
			continue // 所属相册已被整体移走
		}
		src := findMedia(s.albumDir(groupID, name), mediaID)
		if src == "" {
			continue
		}
		dst := filepath.Join(s.trashDir(groupID), global.SafeFileName(name), filepath.Base(src))
		log.Infof("正在将已删除的媒体文件从 %s 移动到 %s", src, dst)
		if err := global.MoveFile(src, dst); err != nil {
			log.Errorf("移动已删除的媒体文件失败: %v", err)
		}
	}
}

// downloadStat 下载统计
type downloadStat struct {
	downloaded int64
	skipped    int64
	failed     int64
	bytes      int64
}

// downloadAlbums 并发下载相册原图, 已存在的文件跳过
func (s *Service) downloadAlbums(ctx context.Context, groupID int64, r *albumResult) *downloadStat {
	stat := &downloadStat{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opt.DownloadThreads)
	for _, a := range r.albums {
		dir := s.albumDir(groupID, a.Name)
		for _, m := range r.media[a.AlbumID] {
			m := m
			if m.URL == "" || m.MediaID == "" {
				continue
			}
			if findMedia(dir, m.MediaID) != "" {
				atomic.AddInt64(&stat.skipped, 1)
				continue
			}
			g.Go(func() error {
				n, err := s.downloadMedia(ctx, dir, &m)
				if err != nil {
					log.Errorf("下载文件失败 %s: %v", m.URL, err)
					atomic.AddInt64(&stat.failed, 1)
					return nil
				}
				atomic.AddInt64(&stat.downloaded, 1)
				atomic.AddInt64(&stat.bytes, n)
				return nil
			})
		}
	}
	_ = g.Wait()
	if stat.downloaded+stat.failed > 0 {
		log.Infof("群 %d 相册下载完成: 新增 %d 个文件 (%s), 跳过 %d 个, 失败 %d 个",
			groupID, stat.downloaded, humanize.Bytes(uint64(stat.bytes)), stat.skipped, stat.failed)
	}
	return stat
}

// downloadMedia 下载单个媒体文件, 按文件内容确定后缀
func (s *Service) downloadMedia(ctx context.Context, dir string, m *napcat.Media) (int64, error) {
	base := filepath.Join(dir, global.SafeFileName(m.MediaID))
	tmp := base + ".download"
	log.Debugf("正在从 %s 下载文件到 %s", m.URL, dir)
	n, err := download.Request{URL: m.URL, Context: ctx}.WithTimeout(s.opt.DownloadTimeout).WriteToFile(tmp)
	if err != nil {
		return 0, err
	}
	ext := ".jpg"
	if m.IsVideo() {
		ext = ".mp4"
	}
	if ok, t := checkMedia(tmp, m.IsVideo()); !ok {
		log.Warnf("媒体 %s 的内容类型 %s 与相册记录不符", m.MediaID, t)
	}
	ext = mime.Extension(tmp, ext)
	if err := global.MoveFile(tmp, base+ext); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// checkMedia 检查已下载文件的内容是否为图片/视频, 返回 是否合法, 实际Mime
func checkMedia(path string, video bool) (bool, string) {
	f, err := os.Open(path)
	if err != nil {
		return false, ""
	}
	defer f.Close()
	if video {
		return mime.CheckVideo(f)
	}
	return mime.CheckImage(f)
}
