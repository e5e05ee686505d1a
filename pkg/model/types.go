package model

// TabID 页面标识（CDP 目标ID）
type TabID string

// StreamKind 媒体流类型
type StreamKind string

const (
	StreamVideo   StreamKind = "video"
	StreamAudio   StreamKind = "audio"
	StreamUnknown StreamKind = "unknown"
)

// DefaultMethod 未观测到请求方法时使用的默认方法
const DefaultMethod = "GET"

// HeaderEntry 单个请求头，名称已统一为小写
type HeaderEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MediaRecord 目录中的一条媒体记录，每个复合键唯一
type MediaRecord struct {
	URL            string        `json:"url"`
	OriginalURL    string        `json:"originalUrl"`
	Type           StreamKind    `json:"type"`
	Itag           string        `json:"itag"`
	Mime           string        `json:"mime"`
	ID             string        `json:"id"`
	Timestamp      int64         `json:"timestamp"`
	TabID          TabID         `json:"tabId"`
	Range          string        `json:"range"`
	RequestHeaders []HeaderEntry `json:"requestHeaders"`
	Method         string        `json:"method"`
}

// Clone 返回记录的深拷贝，调用方不会持有目录内部引用
func (r *MediaRecord) Clone() *MediaRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.RequestHeaders = make([]HeaderEntry, len(r.RequestHeaders))
	copy(cp.RequestHeaders, r.RequestHeaders)
	return &cp
}

// Header 按名称查找请求头的值
func (r *MediaRecord) Header(name string) (string, bool) {
	for _, h := range r.RequestHeaders {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// PlaybackURL 返回用于下载的地址，优先使用去除 range 后的地址
func (r *MediaRecord) PlaybackURL() string {
	if r.URL != "" {
		return r.URL
	}
	return r.OriginalURL
}

// Aria2Settings 外部下载代理配置
type Aria2Settings struct {
	URL   string `json:"aria2Url"`
	Token string `json:"aria2Token"`
}

// ==================== 观察者事件 ====================

const (
	ActionVideoURLDetected = "videoUrlDetected"
	ActionNotification     = "notification"
)

// ObserverEvent 推送给 UI 观察者的消息
type ObserverEvent struct {
	Action  string       `json:"action"`
	Data    *MediaRecord `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
}

// ==================== UI 消息 ====================

const (
	MsgGetVideoURLs      = "getVideoUrls"
	MsgClearURLs         = "clearUrls"
	MsgDownloadVideo     = "downloadVideo"
	MsgOpenVideoInNewTab = "openVideoInNewTab"
	MsgSendToAria2       = "sendToAria2"
	MsgGetCurlForItem    = "getCurlForItem"
)

// ItemRef 通过 (id, type, itag) 引用目录条目
type ItemRef struct {
	ID   string     `json:"id"`
	Type StreamKind `json:"type"`
	Itag string     `json:"itag"`
}

// DownloadRequest downloadVideo 消息
type DownloadRequest struct {
	URL            string     `json:"url"`
	Type           StreamKind `json:"type"`
	Filename       string     `json:"filename,omitempty"`
	CustomFilename string     `json:"customFilename,omitempty"`
}

// PreferredFilename 返回调用方指定的文件名（兼容旧字段）
func (d DownloadRequest) PreferredFilename() string {
	if d.Filename != "" {
		return d.Filename
	}
	return d.CustomFilename
}

// Aria2Request sendToAria2 消息
type Aria2Request struct {
	ItemRef
	Filename string `json:"filename,omitempty"`
}
