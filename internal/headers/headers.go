package headers

import (
	"strings"

	"github.com/tidwall/gjson"

	"mediasniff/pkg/model"
)

// Range 字节范围请求头，始终从回放请求头中剔除
const Range = "range"

// UserAgent 单独作为下载器参数传递的请求头
const UserAgent = "user-agent"

// Normalize 按小写名称去重（后出现的值覆盖先出现的），保持首次出现的顺序，并剔除 range
func Normalize(in []model.HeaderEntry) []model.HeaderEntry {
	order := make([]string, 0, len(in))
	values := make(map[string]string, len(in))
	for _, h := range in {
		name := strings.ToLower(h.Name)
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = h.Value
	}
	out := make([]model.HeaderEntry, 0, len(order))
	for _, name := range order {
		if name == Range {
			continue
		}
		out = append(out, model.HeaderEntry{Name: name, Value: values[name]})
	}
	return out
}

// Parse 宽松解析原始请求头 JSON 并归一化
// 支持 [{name,value}] 数组与 {name: value} 对象两种形式，格式不合法的条目跳过
func Parse(raw []byte) []model.HeaderEntry {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return []model.HeaderEntry{}
	}
	doc := gjson.ParseBytes(raw)
	var entries []model.HeaderEntry
	switch {
	case doc.IsArray():
		doc.ForEach(func(_, item gjson.Result) bool {
			if !item.IsObject() {
				return true
			}
			name := item.Get("name")
			if name.Type != gjson.String {
				return true
			}
			entries = append(entries, model.HeaderEntry{Name: name.Str, Value: stringValue(item.Get("value"))})
			return true
		})
	case doc.IsObject():
		doc.ForEach(func(key, value gjson.Result) bool {
			entries = append(entries, model.HeaderEntry{Name: key.Str, Value: stringValue(value)})
			return true
		})
	default:
		return []model.HeaderEntry{}
	}
	return Normalize(entries)
}

// stringValue 缺失或非字符串的值视为空串
func stringValue(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return ""
}

// Lines 将请求头渲染为 "Name: Value" 形式
func Lines(in []model.HeaderEntry) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		out = append(out, h.Name+": "+h.Value)
	}
	return out
}
