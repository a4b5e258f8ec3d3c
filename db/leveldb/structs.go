package leveldb

import (
	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
)

func (w *writer) writeGroupSnapshot(x *snapshot.GroupSnapshot) {
	if x == nil {
		w.nil()
		return
	}
	w.coder(coderStruct)
	w.int64(x.GroupID)
	w.time(x.CapturedAt)
	w.array(len(x.Sections))
	for _, sec := range x.Sections {
		w.string(string(sec))
	}
	w.array(len(x.Members))
	for i := range x.Members {
		w.writeMember(&x.Members[i])
	}
	w.array(len(x.AlbumItems))
	for i := range x.AlbumItems {
		w.writeAlbumItem(&x.AlbumItems[i])
	}
	w.writeContentItems(x.Notices)
	w.writeContentItems(x.Essence)
}

func (r *reader) readGroupSnapshot() *snapshot.GroupSnapshot {
	if r.coder() == coderNil {
		return nil
	}
	x := &snapshot.GroupSnapshot{}
	x.GroupID = r.int64()
	x.CapturedAt = r.time()
	if n := r.array(); n > 0 {
		x.Sections = make([]snapshot.Section, n)
		for i := range x.Sections {
			x.Sections[i] = snapshot.Section(r.string())
		}
	}
	if n := r.array(); n > 0 {
		x.Members = make([]snapshot.Member, n)
		for i := range x.Members {
			x.Members[i] = r.readMember()
		}
	}
	if n := r.array(); n > 0 {
		x.AlbumItems = make([]snapshot.AlbumItem, n)
		for i := range x.AlbumItems {
			x.AlbumItems[i] = r.readAlbumItem()
		}
	}
	x.Notices = r.readContentItems()
	x.Essence = r.readContentItems()
	return x
}

func (w *writer) writeMember(x *snapshot.Member) {
	w.coder(coderStruct)
	w.int64(x.MemberID)
	w.string(x.DisplayName)
	w.string(x.CardName)
}

func (r *reader) readMember() snapshot.Member {
	r.sync(coderStruct)
	return snapshot.Member{
		MemberID:    r.int64(),
		DisplayName: r.string(),
		CardName:    r.string(),
	}
}

func (w *writer) writeAlbumItem(x *snapshot.AlbumItem) {
	w.coder(coderStruct)
	w.string(x.ItemID)
	w.string(x.Name)
	w.string(string(x.Kind))
	w.string(x.Parent)
}

func (r *reader) readAlbumItem() snapshot.AlbumItem {
	r.sync(coderStruct)
	return snapshot.AlbumItem{
		ItemID: r.string(),
		Name:   r.string(),
		Kind:   snapshot.AlbumItemKind(r.string()),
		Parent: r.string(),
	}
}

func (w *writer) writeContentItems(items []snapshot.ContentItem) {
	w.array(len(items))
	for _, c := range items {
		w.coder(coderStruct)
		w.string(c.ID)
		w.string(c.Text)
	}
}

func (r *reader) readContentItems() []snapshot.ContentItem {
	n := r.array()
	if n == 0 {
		return nil
	}
	items := make([]snapshot.ContentItem, n)
	for i := range items {
		r.sync(coderStruct)
		items[i] = snapshot.ContentItem{ID: r.string(), Text: r.string()}
	}
	return items
}

func (w *writer) writeChangeEvent(x *changelog.ChangeEvent) {
	w.coder(coderStruct)
	w.int64(x.GroupID)
	w.time(x.OccurredAt)
	w.string(string(x.Kind))
	w.string(x.SubjectID)
	w.string(x.OldValue)
	w.string(x.NewValue)
}

func (r *reader) readChangeEvent() changelog.ChangeEvent {
	r.sync(coderStruct)
	return changelog.ChangeEvent{
		GroupID:    r.int64(),
		OccurredAt: r.time(),
		Kind:       changelog.Kind(r.string()),
		SubjectID:  r.string(),
		OldValue:   r.string(),
		NewValue:   r.string(),
	}
}
