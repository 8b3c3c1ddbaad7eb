package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

// Payload 数据源原始记录（任意JSON对象），字段一律视为可空
type Payload map[string]interface{}

// ParsePayload 解析JSON对象；空输入返回空Payload
func ParsePayload(raw []byte) (Payload, error) {
	p := Payload{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("解析payload失败: %w", err)
	}
	return p, nil
}

// JSON 序列化为 datatypes.JSON 以便落库
func (p Payload) JSON() datatypes.JSON {
	if p == nil {
		return datatypes.JSON("{}")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return b
}

// Lookup 支持点号路径（如 "metacritic.score"）
func (p Payload) Lookup(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(p)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// String 取字符串形式；数字按最短形式格式化
func (p Payload) String(path string) string {
	v, ok := p.Lookup(path)
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Stringify 将标量转为字符串，非标量返回空串
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
