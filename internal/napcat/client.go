package napcat

import (
	"context"
	"strconv"
	"strings"

	"github.com/segmentio/asm/base64"
	"github.com/tidwall/gjson"

	"github.com/qqgroup/go-group-backup/global"
)

type (
	// GroupInfo get_group_info
	GroupInfo struct {
		GroupID        int64  `json:"group_id"`
		GroupName      string `json:"group_name"`
		MemberCount    int64  `json:"member_count"`
		MaxMemberCount int64  `json:"max_member_count"`
	}

	// Member 群成员, 只保留备份需要的字段
	Member struct {
		UserID       int64  `json:"user_id"`
		Nickname     string `json:"nickname"`
		Card         string `json:"card"`
		Role         string `json:"role"`
		JoinTime     int64  `json:"join_time"`
		LastSentTime int64  `json:"last_sent_time"`
	}

	// Notice 群公告
	Notice struct {
		NoticeID    string `json:"notice_id"`
		SenderID    int64  `json:"sender_id"`
		PublishTime int64  `json:"publish_time"`
		Content     string `json:"content"`
	}

	// Essence 精华消息
	Essence struct {
		MessageID  string `json:"message_id"`
		SenderID   int64  `json:"sender_id"`
		SenderNick string `json:"sender_nick"`
		OperatorID int64  `json:"operator_id"`
		MsgTime    int64  `json:"msg_time"`
		Content    string `json:"content"`
	}

	// Honor 群荣誉条目
	Honor struct {
		Type     string `json:"type"`
		UserID   int64  `json:"user_id"`
		Nickname string `json:"nickname"`
	}

	// Album 群相册
	Album struct {
		AlbumID    string `json:"album_id"`
		Name       string `json:"name"`
		PicCount   int64  `json:"pic_cnt"`
		CreateUser string `json:"create_user"`
		CreateTime int64  `json:"create_time"`
	}

	// Media 相册内的图片或视频
	Media struct {
		MediaID   string `json:"media_id"`
		MediaType string `json:"media_type"`
		URL       string `json:"url"`
	}
)

// IsVideo 是否为视频
func (m *Media) IsVideo() bool {
	return strings.Contains(strings.ToLower(m.MediaType), "video")
}

// Client 封装备份需要的 action
type Client struct {
	caller Caller
}

// NewClient 创建 Client
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

// GetGroupInfo get_group_info
func (c *Client) GetGroupInfo(ctx context.Context, groupID int64) (*GroupInfo, gjson.Result, error) {
	r, err := c.caller.Call(ctx, "get_group_info", global.MSG{"group_id": groupID, "no_cache": true})
	if err != nil {
		return nil, r, err
	}
	return &GroupInfo{
		GroupID:        r.Get("group_id").Int(),
		GroupName:      r.Get("group_name").String(),
		MemberCount:    r.Get("member_count").Int(),
		MaxMemberCount: r.Get("max_member_count").Int(),
	}, r, nil
}

// GetGroupDetailInfo get_group_detail_info, 返回原始对象
func (c *Client) GetGroupDetailInfo(ctx context.Context, groupID int64) (gjson.Result, error) {
	return c.caller.Call(ctx, "get_group_detail_info", global.MSG{"group_id": groupID})
}

// GetGroupMemberList get_group_member_list
func (c *Client) GetGroupMemberList(ctx context.Context, groupID int64) ([]Member, error) {
	r, err := c.caller.Call(ctx, "get_group_member_list", global.MSG{"group_id": groupID, "no_cache": true})
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(r.Array()))
	r.ForEach(func(_, m gjson.Result) bool {
		members = append(members, Member{
			UserID:       m.Get("user_id").Int(),
			Nickname:     m.Get("nickname").String(),
			Card:         m.Get("card").String(),
			Role:         m.Get("role").String(),
			JoinTime:     m.Get("join_time").Int(),
			LastSentTime: m.Get("last_sent_time").Int(),
		})
		return true
	})
	return members, nil
}

// GetGroupNotice _get_group_notice
func (c *Client) GetGroupNotice(ctx context.Context, groupID int64) ([]Notice, error) {
	r, err := c.caller.Call(ctx, "_get_group_notice", global.MSG{"group_id": groupID})
	if err != nil {
		return nil, err
	}
	var notices []Notice
	r.ForEach(func(_, n gjson.Result) bool {
		content := n.Get("message.text").String()
		if content == "" {
			content = n.Get("content").String()
		}
		notices = append(notices, Notice{
			NoticeID:    n.Get("notice_id").String(),
			SenderID:    n.Get("sender_id").Int(),
			PublishTime: n.Get("publish_time").Int(),
			Content:     content,
		})
		return true
	})
	return notices, nil
}

// GetEssenceMsgList get_essence_msg_list
func (c *Client) GetEssenceMsgList(ctx context.Context, groupID int64) ([]Essence, error) {
	r, err := c.caller.Call(ctx, "get_essence_msg_list", global.MSG{"group_id": groupID})
	if err != nil {
		return nil, err
	}
	var list []Essence
	r.ForEach(func(_, e gjson.Result) bool {
		id := e.Get("message_id").String()
		if id == "" {
			id = e.Get("msg_seq").String() + "_" + e.Get("msg_random").String()
		}
		t := e.Get("msg_time").Int()
		if t == 0 {
			t = e.Get("operator_time").Int()
		}
		list = append(list, Essence{
			MessageID:  id,
			SenderID:   e.Get("sender_id").Int(),
			SenderNick: e.Get("sender_nick").String(),
			OperatorID: e.Get("operator_id").Int(),
			MsgTime:    t,
			Content:    segmentsText(e.Get("content")),
		})
		return true
	})
	return list, nil
}

// segmentsText 将消息段数组拼成纯文本, 非文本段以 [type] 表示
func segmentsText(r gjson.Result) string {
	if !r.IsArray() {
		return r.String()
	}
	var sb strings.Builder
	r.ForEach(func(_, seg gjson.Result) bool {
		typ := seg.Get("type").String()
		if typ == "text" {
			sb.WriteString(seg.Get("data.text").String())
		} else {
			sb.WriteString("[" + typ + "]")
		}
		return true
	})
	return sb.String()
}

// GetGroupHonorInfo get_group_honor_info, 返回原始对象与展开后的荣誉列表
func (c *Client) GetGroupHonorInfo(ctx context.Context, groupID int64) (gjson.Result, []Honor, error) {
	r, err := c.caller.Call(ctx, "get_group_honor_info", global.MSG{"group_id": groupID, "type": "all"})
	if err != nil {
		return r, nil, err
	}
	var honors []Honor
	r.ForEach(func(k, v gjson.Result) bool {
		switch {
		case v.IsObject() && v.Get("user_id").Exists():
			honors = append(honors, Honor{Type: k.String(), UserID: v.Get("user_id").Int(), Nickname: v.Get("nickname").String()})
		case v.IsArray():
			v.ForEach(func(_, h gjson.Result) bool {
				honors = append(honors, Honor{Type: k.String(), UserID: h.Get("user_id").Int(), Nickname: h.Get("nickname").String()})
				return true
			})
		}
		return true
	})
	return r, honors, nil
}

// GetQunAlbumList get_qun_album_list
func (c *Client) GetQunAlbumList(ctx context.Context, groupID int64) ([]Album, error) {
	r, err := c.caller.Call(ctx, "get_qun_album_list", global.MSG{"group_id": strconv.FormatInt(groupID, 10)})
	if err != nil {
		return nil, err
	}
	var albums []Album
	r.ForEach(func(_, a gjson.Result) bool {
		id := a.Get("album_id").String()
		name := a.Get("name").String()
		if name == "" {
			name = id
		}
		creator := a.Get("create_user")
		if creator.IsObject() {
			creator = creator.Get("nick")
		}
		albums = append(albums, Album{
			AlbumID:    id,
			Name:       name,
			PicCount:   a.Get("pic_cnt").Int(),
			CreateUser: creator.String(),
			CreateTime: a.Get("create_time").Int(),
		})
		return true
	})
	return albums, nil
}

// GetGroupAlbumMediaList get_group_album_media_list, 自动翻页直到 is_finished
func (c *Client) GetGroupAlbumMediaList(ctx context.Context, groupID int64, albumID string) ([]Media, error) {
	var (
		media  []Media
		attach string
	)
	for {
		r, err := c.caller.Call(ctx, "get_group_album_media_list", global.MSG{
			"group_id":    strconv.FormatInt(groupID, 10),
			"album_id":    albumID,
			"attach_info": attach,
		})
		if err != nil {
			return nil, err
		}
		list := r.Get("m_media")
		if !list.Exists() {
			break
		}
		list.ForEach(func(_, m gjson.Result) bool {
			url := m.Get("origin_url").String()
			if url == "" {
				url = m.Get("pre_url").String()
			}
			if url == "" {
				url = m.Get("url").String()
			}
			media = append(media, Media{
				MediaID:   m.Get("media_id").String(),
				MediaType: m.Get("media_type").String(),
				URL:       url,
			})
			return true
		})
		next := r.Get("attach_info").String()
		if r.Get("is_finished").Bool() || next == "" || next == attach {
			break
		}
		attach = next
	}
	return media, nil
}

func base64File(data []byte) string {
	return "base64://" + base64.StdEncoding.EncodeToString(data)
}

// UploadGroupFile upload_group_file
func (c *Client) UploadGroupFile(ctx context.Context, groupID int64, name string, data []byte) error {
	_, err := c.caller.Call(ctx, "upload_group_file", global.MSG{
		"group_id": groupID,
		"file":     base64File(data),
		"name":     name,
	})
	return err
}

// UploadPrivateFile upload_private_file
func (c *Client) UploadPrivateFile(ctx context.Context, userID int64, name string, data []byte) error {
	_, err := c.caller.Call(ctx, "upload_private_file", global.MSG{
		"user_id": userID,
		"file":    base64File(data),
		"name":    name,
	})
	return err
}

// SetGroupName set_group_name
func (c *Client) SetGroupName(ctx context.Context, groupID int64, name string) error {
	_, err := c.caller.Call(ctx, "set_group_name", global.MSG{"group_id": groupID, "group_name": name})
	return err
}

// SetGroupPortrait set_group_portrait
func (c *Client) SetGroupPortrait(ctx context.Context, groupID int64, image []byte) error {
	_, err := c.caller.Call(ctx, "set_group_portrait", global.MSG{"group_id": groupID, "file": base64File(image)})
	return err
}

// SetGroupCard set_group_card
func (c *Client) SetGroupCard(ctx context.Context, groupID, userID int64, card string) error {
	_, err := c.caller.Call(ctx, "set_group_card", global.MSG{"group_id": groupID, "user_id": userID, "card": card})
	return err
}

// SendGroupNotice _send_group_notice
func (c *Client) SendGroupNotice(ctx context.Context, groupID int64, content string) error {
	_, err := c.caller.Call(ctx, "_send_group_notice", global.MSG{"group_id": groupID, "content": content})
	return err
}
