package napcat

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/qqgroup/go-group-backup/global"
)

// ErrClosed 连接已关闭
var ErrClosed = errors.New("websocket closed")

type wsRequest struct {
	Action string     `json:"action"`
	Params global.MSG `json:"params"`
	Echo   string     `json:"echo"`
}

// WebsocketCaller 正向 Websocket Caller, 响应通过 echo 匹配
type WebsocketCaller struct {
	conn    *websocket.Conn
	timeout time.Duration

	wmu     sync.Mutex // 保护 conn 写
	seq     uint64
	pending sync.Map // map[string]chan gjson.Result

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// DialWebsocket 连接到正向 Websocket 地址
func DialWebsocket(ctx context.Context, address, token string, timeout time.Duration) (*WebsocketCaller, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, header)
	if err != nil {
		return nil, errors.Wrapf(err, "连接 websocket %s 失败", address)
	}
	c := &WebsocketCaller{
		conn:    conn,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go c.listen()
	return c, nil
}

func (c *WebsocketCaller) listen() {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		msg := gjson.ParseBytes(payload)
		echo := msg.Get("echo")
		if !echo.Exists() {
			// 事件推送, 备份工具不关心
			log.Tracef("忽略网关事件: %s", msg.Get("post_type").String())
			continue
		}
		if ch, ok := c.pending.LoadAndDelete(echo.String()); ok {
			ch.(chan gjson.Result) <- msg
		}
	}
}

func (c *WebsocketCaller) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.conn.Close()
	})
}

// Close 关闭连接
func (c *WebsocketCaller) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	c.shutdown(ErrClosed)
	return nil
}

// Call impl Caller
func (c *WebsocketCaller) Call(ctx context.Context, action string, params global.MSG) (gjson.Result, error) {
	if params == nil {
		params = global.MSG{}
	}
	echo := strconv.FormatUint(atomic.AddUint64(&c.seq, 1), 10)
	ch := make(chan gjson.Result, 1)
	c.pending.Store(echo, ch)
	defer c.pending.Delete(echo)

	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	err := c.conn.WriteJSON(wsRequest{Action: action, Params: params, Echo: echo})
	c.wmu.Unlock()
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "send %s", action)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return parseResponse(action, resp)
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	case <-timer.C:
		return gjson.Result{}, errors.Errorf("API调用超时: %s", action)
	case <-c.done:
		return gjson.Result{}, errors.Wrapf(c.err, "call %s", action)
	}
}
