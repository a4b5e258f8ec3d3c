package napcat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/qqgroup/go-group-backup/global"
	"github.com/qqgroup/go-group-backup/modules/config"
)

// responder 根据 action 与参数返回 data 字段的 JSON
type responder func(action string, params gjson.Result) (string, bool)

func ok(data string) string {
	return `{"status":"ok","retcode":0,"data":` + data + `}`
}

func failed(msg string) string {
	return `{"status":"failed","retcode":1200,"data":null,"message":"` + msg + `"}`
}

func newHTTPServer(t *testing.T, token string, fn responder) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		data, good := fn(strings.TrimPrefix(r.URL.Path, "/"), gjson.ParseBytes(body))
		if !good {
			_, _ = w.Write([]byte(failed(data)))
			return
		}
		_, _ = w.Write([]byte(ok(data)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPCaller(t *testing.T) {
	srv := newHTTPServer(t, "secret", func(action string, p gjson.Result) (string, bool) {
		switch action {
		case "get_group_info":
			return `{"group_id":` + p.Get("group_id").Raw + `,"group_name":"测试群","member_count":3}`, true
		default:
			return "不支持的API", false
		}
	})

	c := NewClient(NewHTTPCaller(srv.URL+"/", "secret", time.Second))
	info, raw, err := c.GetGroupInfo(context.Background(), 10001)
	require.NoError(t, err)
	assert.Equal(t, &GroupInfo{GroupID: 10001, GroupName: "测试群", MemberCount: 3}, info)
	assert.Equal(t, "测试群", raw.Get("group_name").String())

	_, err = c.GetGroupDetailInfo(context.Background(), 10001)
	assert.True(t, errors.Is(err, ErrActionFailed))
	assert.Contains(t, err.Error(), "不支持的API")

	bad := NewHTTPCaller(srv.URL, "wrong", time.Second)
	_, err = bad.Call(context.Background(), "get_group_info", nil)
	assert.Error(t, err)
}

func TestClientPaging(t *testing.T) {
	var calls int32
	caller := CallerFunc(func(_ context.Context, action string, p global.MSG) (gjson.Result, error) {
		assert.Equal(t, "get_group_album_media_list", action)
		assert.Equal(t, "10001", p["group_id"])
		atomic.AddInt32(&calls, 1)
		switch p["attach_info"] {
		case "":
			return gjson.Parse(`{"m_media":[{"media_id":"m1","origin_url":"http://x/1"},{"media_id":"m2","pre_url":"http://x/2","media_type":"VIDEO"}],"attach_info":"p2","is_finished":false}`), nil
		case "p2":
			return gjson.Parse(`{"m_media":[{"media_id":"m3","url":"http://x/3"}],"attach_info":"p3","is_finished":true}`), nil
		}
		t.Fatalf("unexpected attach_info %v", p["attach_info"])
		return gjson.Result{}, nil
	})
	media, err := NewClient(caller).GetGroupAlbumMediaList(context.Background(), 10001, "alb1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
	require.Len(t, media, 3)
	assert.Equal(t, "http://x/1", media[0].URL)
	assert.Equal(t, "http://x/2", media[1].URL)
	assert.True(t, media[1].IsVideo())
	assert.Equal(t, "m3", media[2].MediaID)
}

func TestClientDecode(t *testing.T) {
	data := map[string]string{
		"get_group_member_list": `[{"user_id":1,"nickname":"A","card":"a","role":"owner","join_time":100,"last_sent_time":200,"level":"99"}]`,
		"_get_group_notice":     `[{"notice_id":"n1","sender_id":1,"publish_time":300,"message":{"text":"欢迎新人"}}]`,
		"get_essence_msg_list":  `[{"message_id":7,"sender_id":2,"operator_id":1,"operator_time":400,"content":[{"type":"text","data":{"text":"好"}},{"type":"image","data":{}}]}]`,
		"get_group_honor_info":  `{"group_id":1,"current_talkative":{"user_id":3,"nickname":"龙王"},"legend_list":[{"user_id":4,"nickname":"群聊之火"}]}`,
		"get_qun_album_list":    `[{"album_id":"a1","name":"","create_user":{"nick":"群主"},"create_time":500}]`,
	}
	caller := CallerFunc(func(_ context.Context, action string, _ global.MSG) (gjson.Result, error) {
		return gjson.Parse(data[action]), nil
	})
	c := NewClient(caller)
	ctx := context.Background()

	members, err := c.GetGroupMemberList(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Member{{UserID: 1, Nickname: "A", Card: "a", Role: "owner", JoinTime: 100, LastSentTime: 200}}, members)

	notices, err := c.GetGroupNotice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "欢迎新人", notices[0].Content)

	essence, err := c.GetEssenceMsgList(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "7", essence[0].MessageID)
	assert.EqualValues(t, 400, essence[0].MsgTime)
	assert.Equal(t, "好[image]", essence[0].Content)

	_, honors, err := c.GetGroupHonorInfo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Honor{
		{Type: "current_talkative", UserID: 3, Nickname: "龙王"},
		{Type: "legend_list", UserID: 4, Nickname: "群聊之火"},
	}, honors)

	albums, err := c.GetQunAlbumList(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a1", albums[0].Name)
	assert.Equal(t, "群主", albums[0].CreateUser)
}

func TestUploadUsesBase64(t *testing.T) {
	var got global.MSG
	caller := CallerFunc(func(_ context.Context, action string, p global.MSG) (gjson.Result, error) {
		assert.Equal(t, "upload_group_file", action)
		got = p
		return gjson.Result{}, nil
	})
	require.NoError(t, NewClient(caller).UploadGroupFile(context.Background(), 1, "a.xlsx", []byte("hi")))
	assert.Equal(t, "base64://aGk=", got["file"])
	assert.Equal(t, "a.xlsx", got["name"])
}

func TestUseOrder(t *testing.T) {
	var trace []string
	mw := func(name string) Handler {
		return func(next Caller) Caller {
			return CallerFunc(func(ctx context.Context, action string, p global.MSG) (gjson.Result, error) {
				trace = append(trace, name)
				return next.Call(ctx, action, p)
			})
		}
	}
	base := CallerFunc(func(context.Context, string, global.MSG) (gjson.Result, error) {
		trace = append(trace, "call")
		return gjson.Result{}, nil
	})
	_, _ = Use(base, mw("a"), mw("b")).Call(context.Background(), "x", nil)
	assert.Equal(t, []string{"a", "b", "call"}, trace)
}

func TestRateLimitCanceled(t *testing.T) {
	base := CallerFunc(func(context.Context, string, global.MSG) (gjson.Result, error) {
		return gjson.Result{}, nil
	})
	c := Use(base, RateLimit(0.001, 1))
	_, err := c.Call(context.Background(), "x", nil) // 消耗唯一的令牌
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, "x", nil)
	assert.Error(t, err)
}

func TestWebsocketCaller(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tk", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"post_type":"meta_event","meta_event_type":"lifecycle"}`))
		var reqs []gjson.Result
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reqs = append(reqs, gjson.ParseBytes(payload))
			if len(reqs) < 2 {
				continue
			}
			// 倒序回复, 验证 echo 匹配
			for i := len(reqs) - 1; i >= 0; i-- {
				req := reqs[i]
				var resp string
				if req.Get("action").String() == "set_group_name" {
					resp = `{"status":"failed","retcode":102,"wording":"权限不足","echo":` + req.Get("echo").Raw + `}`
				} else {
					resp = `{"status":"ok","retcode":0,"data":{"group_name":` + req.Get("params.group_id").Raw + `},"echo":` + req.Get("echo").Raw + `}`
				}
				_ = conn.WriteMessage(websocket.TextMessage, []byte(resp))
			}
			reqs = nil
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	ws, err := DialWebsocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), "tk", 2*time.Second)
	require.NoError(t, err)
	defer ws.Close()

	type result struct {
		r   gjson.Result
		err error
	}
	first := make(chan result, 1)
	go func() {
		r, err := ws.Call(ctx, "get_group_info", global.MSG{"group_id": 1})
		first <- result{r, err}
	}()
	time.Sleep(50 * time.Millisecond)
	r, err := ws.Call(ctx, "get_group_info", global.MSG{"group_id": 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.Get("group_name").Int())
	res := <-first
	require.NoError(t, res.err)
	assert.EqualValues(t, 1, res.r.Get("group_name").Int())

	done := make(chan error, 1)
	go func() {
		done <- NewClient(ws).SetGroupName(ctx, 1, "x")
	}()
	time.Sleep(50 * time.Millisecond)
	_, _ = ws.Call(ctx, "get_group_info", global.MSG{"group_id": 3})
	err = <-done
	assert.True(t, errors.Is(err, ErrActionFailed))
	assert.Contains(t, err.Error(), "权限不足")
}

func TestDialClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	closed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(closed)
				return
			}
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	caller, err := Dial(ctx, &config.Gateway{Type: "ws", Address: "ws" + strings.TrimPrefix(srv.URL, "http"), Timeout: 2})
	require.NoError(t, err)
	c, ok := caller.(io.Closer)
	require.True(t, ok)
	require.NoError(t, c.Close())
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("websocket connection not closed")
	}
	_, err = caller.Call(ctx, "get_group_info", nil)
	assert.Error(t, err)

	caller, err = Dial(ctx, &config.Gateway{Type: "http", Address: srv.URL, Timeout: 2})
	require.NoError(t, err)
	_, ok = caller.(io.Closer)
	assert.False(t, ok)
}
