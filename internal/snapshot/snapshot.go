// Package snapshot 群数据快照及其存储
package snapshot

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound 群从未备份过时返回此错误
var ErrNotFound = errors.New("snapshot not found")

// AlbumItemKind 相册条目类型
type AlbumItemKind string

// 相册条目类型
const (
	KindAlbum AlbumItemKind = "album" // 相册本身
	KindMedia AlbumItemKind = "media" // 相册内的图片/视频
)

// Section 快照中可比较的部分
type Section string

// 快照中可比较的部分
const (
	SectionMembers Section = "members"
	SectionAlbums  Section = "albums"
	SectionNotices Section = "notices"
	SectionEssence Section = "essence"
)

// AllSections 全部可比较的部分
var AllSections = []Section{SectionMembers, SectionAlbums, SectionNotices, SectionEssence}

// Valid 是否为已知部分
func (s Section) Valid() bool {
	for _, a := range AllSections {
		if s == a {
			return true
		}
	}
	return false
}

type (
	// GroupSnapshot 某一时刻的群数据快照
	//
	// Sections 记录实际抓取过的部分, 未抓取的部分为空并不代表群内没有数据
	GroupSnapshot struct {
		GroupID    int64         `json:"group_id" bson:"groupId"`
		CapturedAt time.Time     `json:"captured_at" bson:"capturedAt"`
		Sections   []Section     `json:"sections" bson:"sections"`
		Members    []Member      `json:"members" bson:"members"`
		AlbumItems []AlbumItem   `json:"album_items" bson:"albumItems"`
		Notices    []ContentItem `json:"notices" bson:"notices"`
		Essence    []ContentItem `json:"essence" bson:"essence"`
	}

	// Member 群成员
	Member struct {
		MemberID    int64  `json:"member_id" bson:"memberId"`
		DisplayName string `json:"display_name" bson:"displayName"`
		CardName    string `json:"card_name" bson:"cardName"`
	}

	// AlbumItem 相册或相册内媒体
	//
	// 媒体条目的 Parent 为所属相册的 ItemID
	AlbumItem struct {
		ItemID string        `json:"item_id" bson:"itemId"`
		Name   string        `json:"name" bson:"name"`
		Kind   AlbumItemKind `json:"kind" bson:"kind"`
		Parent string        `json:"parent,omitempty" bson:"parent,omitempty"`
	}

	// ContentItem 公告、精华消息等只关心是否被删除的内容
	ContentItem struct {
		ID   string `json:"id" bson:"id"`
		Text string `json:"text" bson:"text"`
	}
)

// Captured 快照是否抓取过 section
func (s *GroupSnapshot) Captured(section Section) bool {
	for _, c := range s.Sections {
		if c == section {
			return true
		}
	}
	return false
}

// Capture 标记 section 已抓取, 重复标记无副作用
func (s *GroupSnapshot) Capture(section Section) {
	if !s.Captured(section) {
		s.Sections = append(s.Sections, section)
	}
}

// Albums 返回快照中的相册条目
func (s *GroupSnapshot) Albums() []AlbumItem {
	var albums []AlbumItem
	for _, a := range s.AlbumItems {
		if a.Kind == KindAlbum {
			albums = append(albums, a)
		}
	}
	return albums
}

// Store 快照存储, 每个群只保留最近一次快照
type Store interface {
	// Get 获取群的最近一次快照, 从未备份时返回 ErrNotFound
	Get(groupID int64) (*GroupSnapshot, error)
	// Put 整体替换群的快照
	Put(s *GroupSnapshot) error
	// Delete 删除群的快照
	Delete(groupID int64) error
}

// MemoryStore 内存快照存储
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[int64]*GroupSnapshot
}

// NewMemoryStore 创建内存快照存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[int64]*GroupSnapshot)}
}

// Get impl Store
func (m *MemoryStore) Get(groupID int64) (*GroupSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[groupID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "group %d", groupID)
	}
	return s.Clone(), nil
}

// Put impl Store
func (m *MemoryStore) Put(s *GroupSnapshot) error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.GroupID] = s.Clone()
	return nil
}

// Delete impl Store
func (m *MemoryStore) Delete(groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, groupID)
	return nil
}

// Clone 深拷贝快照
func (s *GroupSnapshot) Clone() *GroupSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Sections = append([]Section(nil), s.Sections...)
	c.Members = append([]Member(nil), s.Members...)
	c.AlbumItems = append([]AlbumItem(nil), s.AlbumItems...)
	c.Notices = append([]ContentItem(nil), s.Notices...)
	c.Essence = append([]ContentItem(nil), s.Essence...)
	return &c
}
