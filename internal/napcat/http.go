package napcat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/qqgroup/go-group-backup/global"
	"github.com/qqgroup/go-group-backup/internal/download"
)

// HTTPCaller 通过 HTTP API 调用网关, POST {address}/{action}
type HTTPCaller struct {
	address string
	token   string
	timeout time.Duration
}

// NewHTTPCaller 创建 HTTP Caller
func NewHTTPCaller(address, token string, timeout time.Duration) *HTTPCaller {
	return &HTTPCaller{
		address: strings.TrimRight(address, "/"),
		token:   token,
		timeout: timeout,
	}
}

// Call impl Caller
func (c *HTTPCaller) Call(ctx context.Context, action string, params global.MSG) (gjson.Result, error) {
	if params == nil {
		params = global.MSG{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "encode %s params", action)
	}
	header := map[string]string{"Content-Type": "application/json"}
	if c.token != "" {
		header["Authorization"] = "Bearer " + c.token
	}
	resp, err := download.Request{
		Method:  http.MethodPost,
		URL:     c.address + "/" + action,
		Header:  header,
		Body:    bytes.NewReader(body),
		Context: ctx,
	}.WithTimeout(c.timeout).JSON()
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "call %s", action)
	}
	return parseResponse(action, resp)
}

func secondOf(n int) time.Duration {
	if n <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n) * time.Second
}
