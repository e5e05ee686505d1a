package classify

import (
	"net/url"
	"strings"

	"mediasniff/pkg/model"
)

// UnknownID 未携带标识参数时使用的占位标识
const UnknownID = "unknown"

// rangeParam 字节范围参数名，规范地址总是请求完整资源
const rangeParam = "range"

var (
	videoItags = map[string]struct{}{
		"137": {}, "136": {}, "135": {}, "134": {}, "133": {},
		"298": {}, "299": {}, "264": {}, "267": {}, "268": {},
	}
	audioItags = map[string]struct{}{
		"140": {}, "141": {}, "251": {}, "250": {}, "249": {}, "171": {}, "172": {},
	}
	mediaHosts = []string{
		"drive.google.com",
		"googlevideo.com",
		"c.drive.google.com",
		"sn-",
		"mime=video",
		"mime=audio",
	}
)

// Info 媒体请求地址的解析结果
type Info struct {
	ID           string
	Kind         model.StreamKind
	Itag         string
	Mime         string
	Range        string
	CanonicalURL string
}

// Key 返回该地址的复合键
func (i Info) Key() string { return Key(i.ID, i.Kind, i.Itag) }

// Key 由 (标识, 流类型, 画质标签) 生成复合键，插入与更新两条路径共用
func Key(id string, kind model.StreamKind, itag string) string {
	return id + "_" + string(kind) + "_" + itag
}

// Parse 解析媒体请求地址，纯函数，无副作用
func Parse(rawURL string) Info {
	q := query(rawURL)
	info := Info{
		ID:           firstNonEmpty(q.Get("id"), q.Get("driveid"), UnknownID),
		Itag:         q.Get("itag"),
		Mime:         q.Get("mime"),
		Range:        q.Get(rangeParam),
		CanonicalURL: CanonicalURL(rawURL),
	}
	info.Kind = Kind(info.Mime, info.Itag)
	return info
}

// Kind 依次按 mime、已知视频 itag、已知音频 itag 判定流类型
func Kind(mime, itag string) model.StreamKind {
	switch {
	case strings.Contains(mime, "video"):
		return model.StreamVideo
	case strings.Contains(mime, "audio"):
		return model.StreamAudio
	}
	if _, ok := videoItags[itag]; ok {
		return model.StreamVideo
	}
	if _, ok := audioItags[itag]; ok {
		return model.StreamAudio
	}
	return model.StreamUnknown
}

// CanonicalURL 去掉 range 参数及其之后的全部参数，之前的参数保持不变
func CanonicalURL(rawURL string) string {
	qIndex := strings.IndexByte(rawURL, '?')
	if qIndex == -1 {
		return rawURL
	}
	// 只识别参数边界处的 range=，避免误伤 xrange= 之类的参数
	pos := qIndex
	for pos < len(rawURL) {
		name := rawURL[pos+1:]
		if strings.HasPrefix(name, rangeParam+"=") {
			return rawURL[:pos]
		}
		next := strings.IndexByte(name, '&')
		if next == -1 {
			break
		}
		pos += next + 1
	}
	return rawURL
}

// IsMediaURL 判断请求是否为需要采集的媒体流请求
func IsMediaURL(rawURL string) bool {
	if !strings.Contains(rawURL, "videoplayback") {
		return false
	}
	for _, marker := range mediaHosts {
		if strings.Contains(rawURL, marker) {
			return true
		}
	}
	return false
}

// query 宽松解析查询串，格式错误的键值对直接忽略
func query(rawURL string) url.Values {
	_, rawQuery, found := strings.Cut(rawURL, "?")
	if !found {
		return url.Values{}
	}
	if i := strings.IndexByte(rawQuery, '?'); i != -1 {
		rawQuery = rawQuery[:i]
	}
	q, _ := url.ParseQuery(rawQuery)
	if q == nil {
		return url.Values{}
	}
	return q
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
