// Package changelog 群数据变更日志
package changelog

import (
	"sync"
	"time"
)

// Kind 变更类型
type Kind string

// 变更类型
const (
	MemberJoined     Kind = "member_joined"
	MemberLeft       Kind = "member_left"
	CardRenamed      Kind = "card_renamed"
	AlbumItemRenamed Kind = "album_item_renamed"
	AlbumItemRemoved Kind = "album_item_removed"
	NoticeRemoved    Kind = "notice_removed"
	EssenceRemoved   Kind = "essence_removed"
)

var kindNames = map[Kind]string{
	MemberJoined:     "入群",
	MemberLeft:       "退群",
	CardRenamed:      "群名片修改",
	AlbumItemRenamed: "相册已改名",
	AlbumItemRemoved: "相册内容已删除",
	NoticeRemoved:    "公告已删除",
	EssenceRemoved:   "精华消息已删除",
}

// String 变更类型的中文描述
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return string(k)
}

// Valid 是否为已知类型
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ChangeEvent 一次变更, 创建后不可修改
//
// 改名事件 OldValue/NewValue 为修改前后的值;
// 删除/退群事件 OldValue 为被移除对象的名称, 入群事件 NewValue 为新成员昵称.
type ChangeEvent struct {
	GroupID    int64     `json:"group_id" bson:"groupId"`
	OccurredAt time.Time `json:"occurred_at" bson:"occurredAt"`
	Kind       Kind      `json:"kind" bson:"kind"`
	SubjectID  string    `json:"subject_id" bson:"subjectId"`
	OldValue   string    `json:"old_value,omitempty" bson:"oldValue,omitempty"`
	NewValue   string    `json:"new_value,omitempty" bson:"newValue,omitempty"`
}

// Log 只追加的变更日志
type Log interface {
	// Append 按参数顺序追加事件
	Append(events ...ChangeEvent) error
	// List 按追加顺序列出群的事件, since 为零值时返回全部
	List(groupID int64, since time.Time) ([]ChangeEvent, error)
	// Purge 清空群的全部事件, 仅在删除备份时使用
	Purge(groupID int64) error
}

// Filter 过滤出 OccurredAt 不早于 since 的事件
func Filter(events []ChangeEvent, since time.Time) []ChangeEvent {
	if since.IsZero() {
		return events
	}
	ret := make([]ChangeEvent, 0, len(events))
	for _, e := range events {
		if !e.OccurredAt.Before(since) {
			ret = append(ret, e)
		}
	}
	return ret
}

// MemoryLog 内存变更日志
type MemoryLog struct {
	mu     sync.RWMutex
	events map[int64][]ChangeEvent
}

// NewMemoryLog 创建内存变更日志
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{events: make(map[int64][]ChangeEvent)}
}

// Append impl Log
func (l *MemoryLog) Append(events ...ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range events {
		l.events[e.GroupID] = append(l.events[e.GroupID], e)
	}
	return nil
}

// List impl Log
func (l *MemoryLog) List(groupID int64, since time.Time) ([]ChangeEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Filter(append([]ChangeEvent(nil), l.events[groupID]...), since), nil
}

// Purge impl Log
func (l *MemoryLog) Purge(groupID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, groupID)
	return nil
}
