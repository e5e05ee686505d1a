package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediasniff/internal/classify"
	"mediasniff/internal/command"
	"mediasniff/internal/logger"
	"mediasniff/internal/metrics"
	"mediasniff/internal/storage"
	"mediasniff/pkg/model"
)

var (
	// ErrNotFound 目录中不存在引用的条目
	ErrNotFound = errors.New("video entry not found")
	// ErrNoHost 未接入浏览器宿主
	ErrNoHost = errors.New("browser host unavailable")
	// ErrMissingURL 请求缺少地址
	ErrMissingURL = errors.New("missing url")
)

// 用户通知文案
const (
	msgAria2Started   = "Sent to aria2. Download started."
	msgAria2Failed    = "Aria2 error: %s"
	msgDownloadFailed = "Failed to start download. Please try again."
	msgTabFailed      = "Could not open video in new tab."
)

// Catalog 消息处理依赖的目录操作
type Catalog interface {
	ListForTab(tab model.TabID) []model.MediaRecord
	Lookup(ref model.ItemRef) (*model.MediaRecord, bool)
	Clear()
}

// Host 浏览器宿主：原生下载、新标签页与当前标题
type Host interface {
	Download(ctx context.Context, url, filename string) (string, error)
	OpenTab(ctx context.Context, url string) (model.TabID, error)
	ActiveTitle(ctx context.Context) string
}

// Settings 外部下载代理配置来源
type Settings interface {
	Aria2() (model.Aria2Settings, error)
}

// Agent 外部下载代理
type Agent interface {
	AddURI(ctx context.Context, settings model.Aria2Settings, rec *model.MediaRecord, filename string) (any, error)
}

// Notifier 用户通知出口
type Notifier interface {
	Broadcast(ev model.ObserverEvent)
}

// History 投递历史写入
type History interface {
	Record(rec *storage.DeliveryRecord) error
}

// Config 服务依赖
type Config struct {
	Catalog  Catalog
	Host     Host
	Settings Settings
	Agent    Agent
	Notifier Notifier
	History  History
	Logger   logger.Logger
	Now      func() time.Time
}

// Service UI 消息处理与投递桥接
type Service struct {
	catalog  Catalog
	host     Host
	settings Settings
	agent    Agent
	notifier Notifier
	history  History
	log      logger.Logger
	now      func() time.Time
}

// New 创建服务实例
func New(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		catalog:  cfg.Catalog,
		host:     cfg.Host,
		settings: cfg.Settings,
		agent:    cfg.Agent,
		notifier: cfg.Notifier,
		history:  cfg.History,
		log:      logger.Component(cfg.Logger, "service"),
		now:      now,
	}
}

// URLsResult getVideoUrls 的响应
type URLsResult struct {
	URLs []model.MediaRecord `json:"urls"`
}

// Result 通用成功/失败响应
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DownloadResult downloadVideo 的响应
type DownloadResult struct {
	Success    bool   `json:"success"`
	DownloadID string `json:"downloadId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TabResult openVideoInNewTab 的响应
type TabResult struct {
	Success bool        `json:"success"`
	TabID   model.TabID `json:"tabId,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Aria2Result sendToAria2 的响应
type Aria2Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CommandResult getCurlForItem 的响应
type CommandResult struct {
	Success bool   `json:"success"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GetVideoURLs 返回指定页面的记录，按时间倒序
func (s *Service) GetVideoURLs(tab model.TabID) URLsResult {
	urls := s.catalog.ListForTab(tab)
	if urls == nil {
		urls = []model.MediaRecord{}
	}
	return URLsResult{URLs: urls}
}

// ClearURLs 清空目录
func (s *Service) ClearURLs() Result {
	s.catalog.Clear()
	s.log.Info("目录已清空")
	return Result{Success: true}
}

// DownloadVideo 交给浏览器原生下载
func (s *Service) DownloadVideo(ctx context.Context, req model.DownloadRequest) DownloadResult {
	filename := req.PreferredFilename()
	if filename == "" {
		filename = command.SuggestFilename(req.Type, s.activeTitle(ctx), s.now())
	}

	id, err := s.download(ctx, req.URL, filename)
	s.record(&storage.DeliveryRecord{Action: storage.DeliveryNative, URL: req.URL, Filename: filename, Result: id}, err)
	if err != nil {
		s.log.Err(err, "启动下载失败", "url", req.URL)
		s.notify(msgDownloadFailed)
		return DownloadResult{Success: false, Error: "Download failed"}
	}
	s.log.Info("下载已启动", "downloadId", id, "filename", filename)
	return DownloadResult{Success: true, DownloadID: id}
}

func (s *Service) download(ctx context.Context, url, filename string) (string, error) {
	if s.host == nil {
		return "", ErrNoHost
	}
	if url == "" {
		return "", ErrMissingURL
	}
	return s.host.Download(ctx, url, filename)
}

// OpenVideoInNewTab 在新标签页打开地址
func (s *Service) OpenVideoInNewTab(ctx context.Context, url string) TabResult {
	tab, err := s.openTab(ctx, url)
	s.record(&storage.DeliveryRecord{Action: storage.DeliveryTab, URL: url, Result: string(tab)}, err)
	if err != nil {
		s.log.Err(err, "打开新标签页失败", "url", url)
		s.notify(msgTabFailed)
		return TabResult{Success: false, Error: "Tab open failed"}
	}
	return TabResult{Success: true, TabID: tab}
}

func (s *Service) openTab(ctx context.Context, url string) (model.TabID, error) {
	if s.host == nil {
		return "", ErrNoHost
	}
	if url == "" {
		return "", ErrMissingURL
	}
	return s.host.OpenTab(ctx, url)
}

// SendToAria2 把条目交给外部下载代理
func (s *Service) SendToAria2(ctx context.Context, req model.Aria2Request) Aria2Result {
	rec, filename, result, err := s.sendToAria2(ctx, req)
	hr := &storage.DeliveryRecord{Action: storage.DeliveryAria2, ItemKey: refKey(req.ItemRef), Filename: filename}
	if rec != nil {
		hr.URL = rec.PlaybackURL()
	}
	if result != nil {
		hr.Result = fmt.Sprint(result)
	}
	s.record(hr, err)
	if err != nil {
		s.log.Err(err, "提交外部下载代理失败", "item", hr.ItemKey)
		s.notify(fmt.Sprintf(msgAria2Failed, err.Error()))
		return Aria2Result{Success: false, Error: err.Error()}
	}
	s.log.Info("已提交外部下载代理", "item", hr.ItemKey, "result", hr.Result)
	s.notify(msgAria2Started)
	return Aria2Result{Success: true, Result: result}
}

func (s *Service) sendToAria2(ctx context.Context, req model.Aria2Request) (*model.MediaRecord, string, any, error) {
	rec, ok := s.catalog.Lookup(req.ItemRef)
	if !ok {
		return nil, "", nil, ErrNotFound
	}
	now := s.now()
	preferred := req.Filename
	if preferred == "" {
		preferred = command.SuggestFilename(rec.Type, s.activeTitle(ctx), now)
	}
	filename := command.FinalizeFilename(preferred, rec.Type, now)

	var settings model.Aria2Settings
	if s.settings != nil {
		var err error
		if settings, err = s.settings.Aria2(); err != nil {
			return rec, filename, nil, fmt.Errorf("load aria2 settings: %w", err)
		}
	}
	if s.agent == nil {
		return rec, filename, nil, errors.New("aria2 client unavailable")
	}
	result, err := s.agent.AddURI(ctx, settings, rec, filename)
	return rec, filename, result, err
}

// GetCurlForItem 生成条目的 aria2c 命令行
func (s *Service) GetCurlForItem(ref model.ItemRef) CommandResult {
	rec, ok := s.catalog.Lookup(ref)
	if !ok {
		return CommandResult{Success: false, Error: "Not found"}
	}
	return CommandResult{Success: true, Command: command.Aria2cCommand(rec)}
}

func (s *Service) activeTitle(ctx context.Context) string {
	if s.host == nil {
		return ""
	}
	return s.host.ActiveTitle(ctx)
}

func (s *Service) notify(msg string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Broadcast(model.ObserverEvent{Action: model.ActionNotification, Message: msg})
}

// record 写入投递历史，失败只记日志
func (s *Service) record(rec *storage.DeliveryRecord, err error) {
	rec.Success = err == nil
	if err != nil {
		rec.Error = err.Error()
	}
	rec.Timestamp = s.now().UnixMilli()
	metrics.RecordDelivery(rec.Action, rec.Success)
	if s.history == nil {
		return
	}
	if herr := s.history.Record(rec); herr != nil {
		s.log.Warn("写入投递历史失败", "error", herr)
	}
}

func refKey(ref model.ItemRef) string {
	return classify.Key(ref.ID, ref.Type, ref.Itag)
}
