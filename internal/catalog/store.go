package catalog

import (
	"sort"
	"sync"
	"time"

	"mediasniff/internal/classify"
	"mediasniff/internal/headers"
	"mediasniff/internal/logger"
	"mediasniff/pkg/model"
)

// Publisher 目录变更通知出口，在目录锁内调用，实现方不得阻塞；发送失败由实现方自行吞掉
type Publisher interface {
	Publish(tab model.TabID, rec *model.MediaRecord)
}

// Hooks 可选的统计回调
type Hooks struct {
	OnInsert  func(kind model.StreamKind)
	OnHeaders func(merged bool)
	OnPurge   func(removed int)
	OnClear   func()
}

// pendingHeaders 尚未找到对应记录的请求头，按原始地址缓存
type pendingHeaders struct {
	headers  []model.HeaderEntry
	method   string
	observed time.Time
}

// Store 媒体记录目录，每个复合键最多一条记录
type Store struct {
	mu      sync.Mutex
	records map[string]*model.MediaRecord
	pending map[string]pendingHeaders
	pub     Publisher
	hooks   Hooks
	now     func() time.Time
	log     logger.Logger
}

// Option 目录构造选项
type Option func(*Store)

// WithPublisher 设置变更通知出口
func WithPublisher(p Publisher) Option { return func(s *Store) { s.pub = p } }

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithHooks 设置统计回调
func WithHooks(h Hooks) Option { return func(s *Store) { s.hooks = h } }

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) Option { return func(s *Store) { s.log = l } }

// New 创建空目录
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*model.MediaRecord),
		pending: make(map[string]pendingHeaders),
		now:     time.Now,
		log:     logger.NewNoopLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ObserveURL 处理一次媒体请求地址观测；同键已存在时不做任何修改
func (s *Store) ObserveURL(rawURL string, tab model.TabID) {
	info := classify.Parse(rawURL)
	key := info.Key()

	s.mu.Lock()
	if _, ok := s.records[key]; ok {
		s.mu.Unlock()
		return
	}
	rec := &model.MediaRecord{
		URL:            info.CanonicalURL,
		OriginalURL:    rawURL,
		Type:           info.Kind,
		Itag:           info.Itag,
		Mime:           info.Mime,
		ID:             info.ID,
		Timestamp:      s.now().UnixMilli(),
		TabID:          tab,
		Range:          info.Range,
		RequestHeaders: []model.HeaderEntry{},
		Method:         model.DefaultMethod,
	}
	// 请求头先于地址到达时，沿用缓存的请求头，使两种到达顺序的最终状态一致
	if p, ok := s.pending[rawURL]; ok {
		rec.RequestHeaders = p.headers
		rec.Method = p.method
		delete(s.pending, rawURL)
	}
	s.records[key] = rec
	s.publish(rec.Clone())
	s.mu.Unlock()

	s.log.Debug("新增媒体记录", "key", key, "tab", string(tab), "type", string(info.Kind))
	if s.hooks.OnInsert != nil {
		s.hooks.OnInsert(info.Kind)
	}
}

// ObserveHeaders 处理一次请求头观测；记录存在时原地替换请求头与方法并重新通知
func (s *Store) ObserveHeaders(rawURL string, hs []model.HeaderEntry, method string) {
	norm := headers.Normalize(hs)
	if method == "" {
		method = model.DefaultMethod
	}
	key := classify.Parse(rawURL).Key()

	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		s.pending[rawURL] = pendingHeaders{headers: norm, method: method, observed: s.now()}
		s.mu.Unlock()
		if s.hooks.OnHeaders != nil {
			s.hooks.OnHeaders(false)
		}
		return
	}
	rec.RequestHeaders = norm
	rec.Method = method
	s.publish(rec.Clone())
	s.mu.Unlock()

	s.log.Debug("合并请求头", "key", key, "headers", len(norm))
	if s.hooks.OnHeaders != nil {
		s.hooks.OnHeaders(true)
	}
}

// Get 按复合键查询记录副本
func (s *Store) Get(key string) (*model.MediaRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Lookup 按 (id, type, itag) 查询记录副本
func (s *Store) Lookup(ref model.ItemRef) (*model.MediaRecord, bool) {
	return s.Get(classify.Key(ref.ID, ref.Type, ref.Itag))
}

// ListForTab 返回指定页面的记录副本，按观测时间倒序
func (s *Store) ListForTab(tab model.TabID) []model.MediaRecord {
	s.mu.Lock()
	out := make([]model.MediaRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.TabID == tab {
			out = append(out, *rec.Clone())
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// Clear 清空目录
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = make(map[string]*model.MediaRecord)
	s.pending = make(map[string]pendingHeaders)
	s.mu.Unlock()
	s.log.Info("目录已清空")
	if s.hooks.OnClear != nil {
		s.hooks.OnClear()
	}
}

// PurgeOlderThan 删除存活时间超过 maxAge 的记录，返回删除数量；过期的请求头缓存一并清理
func (s *Store) PurgeOlderThan(maxAge time.Duration, now time.Time) int {
	cutoff := now.Add(-maxAge)

	s.mu.Lock()
	removed := 0
	for key, rec := range s.records {
		if time.UnixMilli(rec.Timestamp).Before(cutoff) {
			delete(s.records, key)
			removed++
		}
	}
	for u, p := range s.pending {
		if p.observed.Before(cutoff) {
			delete(s.pending, u)
		}
	}
	s.mu.Unlock()

	if s.hooks.OnPurge != nil {
		s.hooks.OnPurge(removed)
	}
	return removed
}

// Len 返回当前记录数
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// keys 返回当前全部复合键（无序）
func (s *Store) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for k := range s.records {
		out = append(out, k)
	}
	return out
}

// pendingLen 返回请求头缓存条目数
func (s *Store) pendingLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// publish 须持有 s.mu 调用，保证通知顺序与变更顺序一致
func (s *Store) publish(rec *model.MediaRecord) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(rec.TabID, rec)
}
