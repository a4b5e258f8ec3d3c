// Package napcat 通过 OneBot v11 协议调用 NapCat 网关
package napcat

import (
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/qqgroup/go-group-backup/global"
	"github.com/qqgroup/go-group-backup/modules/config"
)

// ErrActionFailed 网关返回 status != ok 时返回此错误
var ErrActionFailed = errors.New("action failed")

// Caller 调用一个 OneBot action, 返回响应中的 data 字段
type Caller interface {
	Call(ctx context.Context, action string, params global.MSG) (gjson.Result, error)
}

// CallerFunc 函数形式的 Caller
type CallerFunc func(ctx context.Context, action string, params global.MSG) (gjson.Result, error)

// Call impl Caller
func (f CallerFunc) Call(ctx context.Context, action string, params global.MSG) (gjson.Result, error) {
	return f(ctx, action, params)
}

// Handler 中间件
type Handler func(next Caller) Caller

// Use 为 Caller 依次套上中间件, 先传入的先执行
func Use(c Caller, middlewares ...Handler) Caller {
	for i := len(middlewares) - 1; i >= 0; i-- {
		c = middlewares[i](c)
	}
	return c
}

// RateLimit 令牌桶限速中间件
func RateLimit(frequency float64, bucketSize int) Handler {
	limiter := rate.NewLimiter(rate.Limit(frequency), bucketSize)
	return func(next Caller) Caller {
		return CallerFunc(func(ctx context.Context, action string, params global.MSG) (gjson.Result, error) {
			if err := limiter.Wait(ctx); err != nil {
				return gjson.Result{}, errors.Wrapf(err, "rate limit %s", action)
			}
			return next.Call(ctx, action, params)
		})
	}
}

// Logging 记录每次调用的调试日志
func Logging(next Caller) Caller {
	return CallerFunc(func(ctx context.Context, action string, params global.MSG) (gjson.Result, error) {
		log.Debugf("调用 API: %s 参数: %v", action, params)
		ret, err := next.Call(ctx, action, params)
		if err != nil {
			log.Debugf("API %s 调用失败: %v", action, err)
		} else {
			log.Tracef("API %s 响应: %s", action, ret.Raw)
		}
		return ret, err
	})
}

// parseResponse 解析 {"status","retcode","data","message"} 响应
func parseResponse(action string, resp gjson.Result) (gjson.Result, error) {
	if !resp.IsObject() {
		return gjson.Result{}, errors.Wrapf(ErrActionFailed, "%s: malformed response %q", action, resp.Raw)
	}
	status := resp.Get("status").String()
	if status != "ok" && status != "async" {
		msg := resp.Get("message").String()
		if msg == "" {
			msg = resp.Get("wording").String()
		}
		return gjson.Result{}, errors.Wrapf(ErrActionFailed, "%s: retcode %d %s", action, resp.Get("retcode").Int(), msg)
	}
	return resp.Get("data"), nil
}

// closableCaller 中间件包装后仍保留底层连接的 Close
type closableCaller struct {
	Caller
	io.Closer
}

// Dial 根据配置创建 Caller
//
// ws 网关返回的 Caller 同时实现 io.Closer, 使用完毕后需要关闭
func Dial(ctx context.Context, conf *config.Gateway) (Caller, error) {
	handlers := []Handler{Logging}
	if conf.RateLimit.Enabled {
		handlers = append(handlers, RateLimit(conf.RateLimit.Frequency, conf.RateLimit.Bucket))
	}
	switch conf.Type {
	case "ws":
		ws, err := DialWebsocket(ctx, conf.Address, conf.AccessToken, secondOf(conf.Timeout))
		if err != nil {
			return nil, err
		}
		log.Infof("已连接到 NapCat 网关: %s (%s)", conf.Address, conf.Type)
		return closableCaller{Caller: Use(ws, handlers...), Closer: ws}, nil
	default:
		log.Infof("已连接到 NapCat 网关: %s (%s)", conf.Address, conf.Type)
		return Use(NewHTTPCaller(conf.Address, conf.AccessToken, secondOf(conf.Timeout)), handlers...), nil
	}
}
