// Package normalize 数据源字段级归一化：评分量纲统一、平台名规范化
package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"GamePriceSync/internal/model"
)

// Field 按优先级排列的候选字段
type Field struct {
	Key   string
	Value interface{}
}

// FieldsFrom 按给定顺序从payload取候选字段（缺失字段 Value 为 nil）
func FieldsFrom(p model.Payload, keys ...string) []Field {
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		v, _ := p.Lookup(k)
		fields = append(fields, Field{Key: k, Value: v})
	}
	return fields
}

const (
	maxStars   = 5.0
	maxPercent = 100.0
)

// "4.5", "4.5/5", "86 / 100", "4,5 stars"
var starPattern = regexp.MustCompile(`^\s*(-?\d+(?:[.,]\d+)?)\s*(?:/\s*(\d+(?:[.,]\d+)?))?`)

// NormalizeRating 取第一个非空字段并映射到 0-5；无可用值返回 false（不默认为0）
func NormalizeRating(fields []Field) (float64, bool) {
	v, ok := firstPresent(fields)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case string:
		return normalizeRatingString(t)
	default:
		n, ok := asFloat(t)
		if !ok {
			return 0, false
		}
		return rescale(n)
	}
}

func normalizeRatingString(s string) (float64, bool) {
	m := starPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num, err := parseDecimal(m[1])
	if err != nil || !finite(num) {
		return 0, false
	}
	if m[2] != "" {
		den, err := parseDecimal(m[2])
		if err == nil && finite(den) && den > 0 {
			return clamp(num/den*maxStars, 0, maxStars), true
		}
	}
	return rescale(num)
}

// rescale 按数量级推断量纲：<=5 星级；(5,10] 十分制；>10 百分制
func rescale(v float64) (float64, bool) {
	if !finite(v) {
		return 0, false
	}
	switch {
	case v <= 5:
	case v <= 10:
		v = v / 2
	default:
		v = v / 20
	}
	return clamp(v, 0, maxStars), true
}

// IGDBPercentage IGDB 自身就是 0-100，不做量纲推断，只截断并保留8位小数
func IGDBPercentage(fields []Field) (float64, bool) {
	v, ok := firstPresent(fields)
	if !ok {
		return 0, false
	}
	var n float64
	switch t := v.(type) {
	case string:
		f, err := parseDecimal(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		n = f
	default:
		f, ok := asFloat(t)
		if !ok {
			return 0, false
		}
		n = f
	}
	if !finite(n) {
		return 0, false
	}
	n = clamp(n, 0, maxPercent)
	return math.Round(n*1e8) / 1e8, true
}

// ExtractCount 返回第一个存在且为非负整数的字段
func ExtractCount(fields []Field) (uint32, bool) {
	for _, f := range fields {
		if isBlank(f.Value) {
			continue
		}
		var n float64
		switch t := f.Value.(type) {
		case string:
			s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				continue
			}
			n = float64(i)
		default:
			v, ok := asFloat(t)
			if !ok || !finite(v) || v != math.Trunc(v) {
				continue
			}
			n = v
		}
		if n < 0 {
			continue
		}
		if n > math.MaxUint32 {
			n = math.MaxUint32
		}
		return uint32(n), true
	}
	return 0, false
}

func firstPresent(fields []Field) (interface{}, bool) {
	for _, f := range fields {
		if !isBlank(f.Value) {
			return f.Value, true
		}
	}
	return nil, false
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
