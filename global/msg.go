package global

// MSG 消息Map, 用作 OneBot action 的参数
type MSG map[string]interface{}

// Int64 尝试以 int64 取出 key 对应的值
func (m MSG) Int64(key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// String 尝试以 string 取出 key 对应的值, 不存在时返回空字符串
func (m MSG) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
